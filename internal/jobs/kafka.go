package jobs

import (
	"context"

	libkafka "github.com/bmlam89/ebay-deletion-handler/lib/kafka"
	"github.com/sirupsen/logrus"
)

// KafkaQueue publishes deletion jobs to a topic and consumes them with
// the shared worker. Used when KAFKA_BROKERS is configured; it survives
// process restarts between ack and deletion run.
type KafkaQueue struct {
	processor *Processor
	producer  *libkafka.Producer
	worker    *libkafka.Worker[Job]
	topic     string
	cancel    context.CancelFunc
}

func NewKafkaQueue(p *Processor, brokers []string, groupID, topic string, concurrency int) *KafkaQueue {
	if err := libkafka.CreateTopic(brokers, topic, 3, 1); err != nil {
		logrus.WithError(err).WithField("topic", topic).Warn("kafka topic create failed")
	}
	q := &KafkaQueue{
		processor: p,
		producer:  libkafka.NewProducer(brokers),
		topic:     topic,
	}
	q.worker = libkafka.NewWorker(brokers, groupID, []string{topic}, concurrency, func(ctx context.Context, msg libkafka.Message[Job]) error {
		p.Process(ctx, msg.Value)
		return nil
	})
	return q
}

func (q *KafkaQueue) Enqueue(ctx context.Context, j Job) error {
	// Keyed on user id so runs for one identity land on one partition
	// and stay ordered.
	return q.producer.Send(ctx, q.topic, j.Identity.UserID, j)
}

func (q *KafkaQueue) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	q.cancel = cancel
	go func() {
		if err := q.worker.Run(ctx); err != nil && ctx.Err() == nil {
			logrus.WithError(err).Error("kafka deletion worker exited")
		}
	}()
	logrus.WithField("topic", q.topic).Info("kafka deletion queue started")
}

func (q *KafkaQueue) Stop() {
	if q.cancel != nil {
		q.cancel()
	}
	if err := q.worker.Close(); err != nil {
		logrus.WithError(err).Warn("kafka reader close failed")
	}
	if err := q.producer.Close(); err != nil {
		logrus.WithError(err).Warn("kafka writer close failed")
	}
}
