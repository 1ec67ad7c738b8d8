package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeletionNotification is one inbound marketplace account-deletion event.
// The raw payload is kept verbatim for audit and reprocessing.
type DeletionNotification struct {
	ID                  primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	NotificationID      string             `bson:"notification_id" json:"notification_id"`
	Username            string             `bson:"username" json:"username"`
	UserID              string             `bson:"user_id" json:"user_id"`
	EiasToken           string             `bson:"eias_token" json:"eias_token"`
	EventDate           time.Time          `bson:"event_date" json:"event_date"`
	PublishDate         time.Time          `bson:"publish_date" json:"publish_date"`
	PublishAttemptCount int                `bson:"publish_attempt_count" json:"publish_attempt_count"`
	RawPayload          bson.M             `bson:"raw_payload" json:"raw_payload"`
	Processed           bool               `bson:"processed" json:"processed"`
	ProcessedAt         *time.Time         `bson:"processed_at,omitempty" json:"processed_at,omitempty"`
	CreatedAt           time.Time          `bson:"created_at" json:"created_at"`
}

// Identity is the (username, user id, eias token) triple the deletion
// engine matches against. EiasToken is eBay's internal account token.
type Identity struct {
	Username  string `bson:"username" json:"username"`
	UserID    string `bson:"user_id" json:"user_id"`
	EiasToken string `bson:"eias_token" json:"eias_token"`
}

func (n *DeletionNotification) Identity() Identity {
	return Identity{Username: n.Username, UserID: n.UserID, EiasToken: n.EiasToken}
}
