package repo

import (
	"context"
	"time"

	"github.com/bmlam89/ebay-deletion-handler/internal/model"
	"github.com/bmlam89/ebay-deletion-handler/internal/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DeletionLogRepo owns the audit trail of deletion engine runs.
type DeletionLogRepo struct {
	store store.Store
}

func NewDeletionLogRepo(s store.Store) *DeletionLogRepo {
	return &DeletionLogRepo{store: s}
}

// Start anchors a new run with status=started. The engine aborts if this
// insert fails; statistics without a log anchor cannot be trusted.
func (r *DeletionLogRepo) Start(ctx context.Context, id model.Identity) (primitive.ObjectID, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	entry := model.DeletionLog{
		ID:        primitive.NewObjectID(),
		Username:  id.Username,
		UserID:    id.UserID,
		EiasToken: id.EiasToken,
		Status:    model.StatusStarted,
		Detail:    bson.M{"started_at": time.Now()},
		CreatedAt: time.Now(),
	}
	if _, err := r.store.InsertOne(ctx, DeletionLogCollection, entry); err != nil {
		return primitive.NilObjectID, err
	}
	return entry.ID, nil
}

// Finish moves the entry to a terminal status exactly once. The filter
// only matches while the entry is still "started", so a terminal entry
// can never be rewritten.
func (r *DeletionLogRepo) Finish(ctx context.Context, logID primitive.ObjectID, status string, detail bson.M) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	filter := bson.M{"_id": logID, "status": model.StatusStarted}
	update := bson.M{"$set": bson.M{"status": status, "detail": detail}}
	return r.store.FindOneAndUpdate(ctx, DeletionLogCollection, filter, update, nil)
}
