package app

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type (
	Config struct {
		Mongo    MongoConfig
		Webhook  WebhookConfig
		Deletion DeletionConfig
		Kafka    KafkaConfig
	}

	MongoConfig struct {
		URI      string
		Database string
	}

	WebhookConfig struct {
		// VerificationToken is the shared secret presented by the
		// platform on each delivery and mixed into the handshake hash.
		VerificationToken string
		// EndpointURL is the callback URL registered with the platform.
		EndpointURL string
		Port        string
	}

	DeletionConfig struct {
		Policy            string
		Concurrency       int
		CollectionTimeout time.Duration
		QueueBuffer       int
		// FieldRefs optionally overrides the candidate identity field
		// list, as comma-separated path=kind pairs.
		FieldRefs string
	}

	KafkaConfig struct {
		Brokers []string
		GroupID string
		Topic   string
	}
)

// Load reads .env (when present) and assembles the configuration. It is
// the only place that touches the environment; everything else receives
// config by value.
func Load() *Config {
	if err := godotenv.Load(".env"); err != nil {
		logrus.WithError(err).Debug("no .env file loaded")
	}

	cfg := &Config{
		Mongo: MongoConfig{
			URI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
			Database: getEnv("MONGO_DB", "ebay_deletion"),
		},
		Webhook: WebhookConfig{
			VerificationToken: os.Getenv("VERIFICATION_TOKEN"),
			EndpointURL:       os.Getenv("ENDPOINT_URL"),
			Port:              getEnv("WEB_PORT", "3636"),
		},
		Deletion: DeletionConfig{
			Policy:            getEnv("DELETION_POLICY", "delete"),
			Concurrency:       getEnvAsInt("DELETION_CONCURRENCY", 4),
			CollectionTimeout: time.Duration(getEnvAsInt("COLLECTION_TIMEOUT_SECONDS", 30)) * time.Second,
			QueueBuffer:       getEnvAsInt("DELETION_QUEUE_BUFFER", 64),
			FieldRefs:         os.Getenv("IDENTITY_FIELDS"),
		},
		Kafka: KafkaConfig{
			GroupID: getEnv("KAFKA_GROUP_ID", "ebay-deletion-handler"),
			Topic:   getEnv("DELETION_TOPIC", "account_deletion_jobs"),
		},
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.Kafka.Brokers = strings.Split(brokers, ",")
	}

	if cfg.Webhook.VerificationToken == "" {
		logrus.Warn("VERIFICATION_TOKEN is not set; inbound notifications cannot be verified")
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return i
}
