package handler

import (
	"encoding/json"
	"time"

	"github.com/bmlam89/ebay-deletion-handler/app"
	"github.com/bmlam89/ebay-deletion-handler/internal/jobs"
	"github.com/bmlam89/ebay-deletion-handler/internal/metrics"
	"github.com/bmlam89/ebay-deletion-handler/internal/middleware"
	"github.com/bmlam89/ebay-deletion-handler/internal/model"
	"github.com/bmlam89/ebay-deletion-handler/internal/repo"
	"github.com/bmlam89/ebay-deletion-handler/internal/verify"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
)

const accountDeletionTopic = "MARKETPLACE_ACCOUNT_DELETION"

// deletionEvent is the platform's account-deletion payload shape.
type deletionEvent struct {
	Metadata struct {
		Topic string `json:"topic"`
	} `json:"metadata"`
	Notification struct {
		NotificationID      string `json:"notificationId"`
		EventDate           string `json:"eventDate"`
		PublishDate         string `json:"publishDate"`
		PublishAttemptCount int    `json:"publishAttemptCount"`
		Data                struct {
			Username  string `json:"username"`
			UserID    string `json:"userId"`
			EiasToken string `json:"eiasToken"`
		} `json:"data"`
	} `json:"notification"`
}

type Deletion struct {
	cfg           app.WebhookConfig
	notifications *repo.NotificationRepo
	queue         jobs.Queue
}

func NewDeletion(cfg app.WebhookConfig, n *repo.NotificationRepo, q jobs.Queue) *Deletion {
	return &Deletion{cfg: cfg, notifications: n, queue: q}
}

func Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": true, "message": "ok"})
}

// Challenge answers the platform's endpoint-ownership handshake.
func (h *Deletion) Challenge(c *fiber.Ctx) error {
	code := c.Query("challenge_code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"status": false, "error": "challenge_code is required"})
	}
	return h.challengeResponse(c, code)
}

func (h *Deletion) challengeResponse(c *fiber.Ctx, code string) error {
	resp := verify.ChallengeResponse(code, h.cfg.VerificationToken, h.cfg.EndpointURL)
	return c.JSON(fiber.Map{"challengeResponse": resp})
}

// Notify receives deletion notifications. The platform's delivery
// contract requires a 200 ack for every delivery; nothing that goes
// wrong past this line may change the response status.
func (h *Deletion) Notify(c *fiber.Ctx) error {
	var raw bson.M
	if err := json.Unmarshal(c.Body(), &raw); err != nil || len(raw) == 0 {
		logrus.WithError(err).Warn("unparseable notification payload, acknowledging anyway")
		metrics.NotificationsReceived.WithLabelValues("malformed").Inc()
		return c.JSON(fiber.Map{"status": true})
	}

	// A challenge delivered in the body is handled like the GET form.
	if code, ok := raw["challenge_code"].(string); ok && code != "" {
		return h.challengeResponse(c, code)
	}

	// Set by middleware.TokenAuth on the notification route.
	verified, _ := c.Locals(middleware.VerifiedKey).(bool)

	var event deletionEvent
	if err := json.Unmarshal(c.Body(), &event); err != nil ||
		event.Metadata.Topic != accountDeletionTopic ||
		event.Notification.NotificationID == "" {
		logrus.WithField("topic", event.Metadata.Topic).Warn("unrecognized notification payload, acknowledging anyway")
		metrics.NotificationsReceived.WithLabelValues("unrecognized").Inc()
		return c.JSON(fiber.Map{"status": true})
	}
	n := model.DeletionNotification{
		NotificationID:      event.Notification.NotificationID,
		Username:            event.Notification.Data.Username,
		UserID:              event.Notification.Data.UserID,
		EiasToken:           event.Notification.Data.EiasToken,
		EventDate:           parseTime(event.Notification.EventDate),
		PublishDate:         parseTime(event.Notification.PublishDate),
		PublishAttemptCount: event.Notification.PublishAttemptCount,
		RawPayload:          raw,
	}

	log := logrus.WithFields(logrus.Fields{"notification_id": n.NotificationID, "user_id": n.UserID})

	// Unverified events are still recorded for reconciliation, but no
	// deletion is ever run off them.
	if err := h.notifications.Save(c.Context(), &n); err != nil {
		log.WithError(err).Error("failed to persist notification")
	}
	if !verified {
		metrics.NotificationsReceived.WithLabelValues("unverified").Inc()
		return c.JSON(fiber.Map{"status": true, "message": "verification failed"})
	}

	job := jobs.Job{JobID: uuid.NewString(), NotificationID: n.NotificationID, Identity: n.Identity()}
	if err := h.queue.Enqueue(c.Context(), job); err != nil {
		log.WithError(err).Error("failed to enqueue deletion job")
	}

	metrics.NotificationsReceived.WithLabelValues("accepted").Inc()
	return c.JSON(fiber.Map{"status": true})
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
