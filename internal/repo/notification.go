package repo

import (
	"context"
	"time"

	"github.com/bmlam89/ebay-deletion-handler/internal/model"
	"github.com/bmlam89/ebay-deletion-handler/internal/store"
	"go.mongodb.org/mongo-driver/bson"
)

// Collections owned by this service. The deletion engine must never purge
// from these; doing so would corrupt the audit trail.
const (
	NotificationCollection = "deletion_notifications"
	DeletionLogCollection  = "deletion_logs"
)

const dbTimeout = 10 * time.Second

// NotificationRepo persists inbound deletion notifications.
type NotificationRepo struct {
	store store.Store
}

func NewNotificationRepo(s store.Store) *NotificationRepo {
	return &NotificationRepo{store: s}
}

// Save upserts the notification keyed on its external notification id, so
// a re-delivered event updates the existing record instead of duplicating
// it. The raw payload is written as received.
func (r *NotificationRepo) Save(ctx context.Context, n *model.DeletionNotification) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"username":              n.Username,
			"user_id":               n.UserID,
			"eias_token":            n.EiasToken,
			"event_date":            n.EventDate,
			"publish_date":          n.PublishDate,
			"publish_attempt_count": n.PublishAttemptCount,
			"raw_payload":           n.RawPayload,
		},
		"$setOnInsert": bson.M{
			"notification_id": n.NotificationID,
			"processed":       false,
			"created_at":      time.Now(),
		},
	}
	return r.store.UpsertOne(ctx, NotificationCollection, bson.M{"notification_id": n.NotificationID}, update)
}

// MarkProcessed flips the processed flag once the deletion run for this
// notification has finished, successfully or not.
func (r *NotificationRepo) MarkProcessed(ctx context.Context, notificationID string) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	now := time.Now()
	update := bson.M{"$set": bson.M{"processed": true, "processed_at": now}}
	return r.store.UpdateOne(ctx, NotificationCollection, bson.M{"notification_id": notificationID}, update)
}
