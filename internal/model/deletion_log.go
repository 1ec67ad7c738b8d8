package model

import (
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Deletion run statuses. Transitions only move forward:
// started -> completed | completed_with_errors | failed.
const (
	StatusStarted             = "started"
	StatusCompleted           = "completed"
	StatusCompletedWithErrors = "completed_with_errors"
	StatusFailed              = "failed"
)

// DeletionLog is the audit record for one execution of the deletion
// engine for one subject. Retained indefinitely as compliance evidence.
type DeletionLog struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Username  string             `bson:"username" json:"username"`
	UserID    string             `bson:"user_id" json:"user_id"`
	EiasToken string             `bson:"eias_token" json:"eias_token"`
	Status    string             `bson:"status" json:"status"`
	Detail    bson.M             `bson:"detail,omitempty" json:"detail,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// CollectionError records a single collection's scan/delete failure.
type CollectionError struct {
	Collection string `bson:"collection" json:"collection"`
	Error      string `bson:"error" json:"error"`
}

// DeletionStatistics aggregates per-collection outcomes of one run.
type DeletionStatistics struct {
	CollectionsScanned  int               `bson:"collections_scanned" json:"collections_scanned"`
	DocumentsDeleted    int64             `bson:"documents_deleted" json:"documents_deleted"`
	DocumentsAnonymized int64             `bson:"documents_anonymized" json:"documents_anonymized"`
	Errors              []CollectionError `bson:"errors,omitempty" json:"errors,omitempty"`
}

// TerminalStatus picks the run's final status from its error list.
func (s *DeletionStatistics) TerminalStatus() string {
	if len(s.Errors) > 0 {
		return StatusCompletedWithErrors
	}
	return StatusCompleted
}
