package jobs

import (
	"context"

	"github.com/bmlam89/ebay-deletion-handler/internal/engine"
	"github.com/bmlam89/ebay-deletion-handler/internal/model"
	"github.com/bmlam89/ebay-deletion-handler/internal/repo"
	"github.com/sirupsen/logrus"
)

// Job is one scheduled deletion run, queued after the webhook ack. JobID
// correlates queue, engine, and log lines for one handoff.
type Job struct {
	JobID          string         `json:"job_id"`
	NotificationID string         `json:"notification_id"`
	Identity       model.Identity `json:"identity"`
}

// Queue hands a deletion job off for background execution. Enqueue must
// return quickly; it runs on the webhook request path.
type Queue interface {
	Enqueue(ctx context.Context, j Job) error
	Start()
	Stop()
}

// Processor runs one job end to end: deletion engine run, then flip the
// notification's processed flag. Fatal run errors are logged, never
// propagated; nothing from here may reach the webhook boundary.
type Processor struct {
	engine        *engine.Engine
	notifications *repo.NotificationRepo
}

func NewProcessor(e *engine.Engine, n *repo.NotificationRepo) *Processor {
	return &Processor{engine: e, notifications: n}
}

func (p *Processor) Process(ctx context.Context, j Job) {
	log := logrus.WithFields(logrus.Fields{
		"job_id":          j.JobID,
		"notification_id": j.NotificationID,
		"user_id":         j.Identity.UserID,
	})

	if _, err := p.engine.Run(ctx, j.Identity); err != nil {
		log.WithError(err).Error("deletion run failed")
	}

	// The notification is marked processed whether the run succeeded or
	// not; the deletion log carries the actual outcome.
	if err := p.notifications.MarkProcessed(ctx, j.NotificationID); err != nil {
		log.WithError(err).Error("failed to mark notification processed")
	}
}
