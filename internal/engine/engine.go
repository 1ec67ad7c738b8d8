package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bmlam89/ebay-deletion-handler/internal/metrics"
	"github.com/bmlam89/ebay-deletion-handler/internal/model"
	"github.com/bmlam89/ebay-deletion-handler/internal/repo"
	"github.com/bmlam89/ebay-deletion-handler/internal/store"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Deletion policies.
const (
	PolicyDelete    = "delete"
	PolicyAnonymize = "anonymize"
)

const redactedPlaceholder = "REDACTED"

// Config tunes one engine instance.
type Config struct {
	Policy            string        // PolicyDelete (default) or PolicyAnonymize
	Concurrency       int           // max collections purged in parallel
	CollectionTimeout time.Duration // time allowed per collection; overrun counts as that collection's failure
	Fields            []FieldRef    // candidate identity fields; nil means DefaultFieldRefs
}

func (c *Config) normalize() {
	if c.Policy == "" {
		c.Policy = PolicyDelete
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 4
	}
	if c.CollectionTimeout <= 0 {
		c.CollectionTimeout = 30 * time.Second
	}
	if len(c.Fields) == 0 {
		c.Fields = DefaultFieldRefs()
	}
}

// Engine purges a subject's personal data from every eligible collection
// and writes exactly one audit log entry per run.
type Engine struct {
	store store.Store
	logs  *repo.DeletionLogRepo
	cfg   Config

	mu       sync.Mutex
	inflight map[string]*identityLock
}

type identityLock struct {
	mu      sync.Mutex
	waiters int
}

func New(s store.Store, logs *repo.DeletionLogRepo, cfg Config) *Engine {
	cfg.normalize()
	return &Engine{store: s, logs: logs, cfg: cfg, inflight: make(map[string]*identityLock)}
}

// acquire serializes runs for the same identity so two runs cannot race
// their log entries; the lock is dropped from the map when the last
// waiter releases it.
func (e *Engine) acquire(key string) func() {
	e.mu.Lock()
	l, ok := e.inflight[key]
	if !ok {
		l = &identityLock{}
		e.inflight[key] = l
	}
	l.waiters++
	e.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		e.mu.Lock()
		l.waiters--
		if l.waiters == 0 {
			delete(e.inflight, key)
		}
		e.mu.Unlock()
	}
}

// outcome is one collection's result, kept in enumeration order so the
// final fold is deterministic.
type outcome struct {
	collection string
	deleted    int64
	anonymized int64
	err        error
}

// Run executes one deletion for the identity. It returns the aggregated
// statistics; the returned error is non-nil only for run-fatal failures
// (log anchor insert, collection enumeration, or the final log update).
// Per-collection failures are folded into the statistics instead.
func (e *Engine) Run(ctx context.Context, id model.Identity) (model.DeletionStatistics, error) {
	release := e.acquire(id.UserID + "|" + id.Username + "|" + id.EiasToken)
	defer release()

	start := time.Now()
	var stats model.DeletionStatistics

	logID, err := e.logs.Start(ctx, id)
	if err != nil {
		metrics.DeletionRuns.WithLabelValues(model.StatusFailed).Inc()
		return stats, err
	}

	log := logrus.WithFields(logrus.Fields{"user_id": id.UserID, "deletion_log_id": logID.Hex()})
	log.Info("deletion run started")

	collections, err := e.store.ListCollections(ctx)
	if err != nil {
		if ferr := e.finish(ctx, logID, model.StatusFailed, start, stats, err); ferr != nil {
			log.WithError(ferr).Error("failed to finalize deletion log")
		}
		metrics.DeletionRuns.WithLabelValues(model.StatusFailed).Inc()
		return stats, err
	}

	eligible := make([]string, 0, len(collections))
	for _, c := range collections {
		if excluded(c) {
			continue
		}
		eligible = append(eligible, c)
	}

	outcomes := make([]outcome, len(eligible))

	var wg sync.WaitGroup
	sem := make(chan struct{}, e.cfg.Concurrency)
	for i, name := range eligible {
		wg.Add(1)
		sem <- struct{}{}
		go func(i int, name string) {
			defer wg.Done()
			defer func() { <-sem }()
			cctx, cancel := context.WithTimeout(ctx, e.cfg.CollectionTimeout)
			defer cancel()
			deleted, anonymized, err := e.purge(cctx, name, id)
			outcomes[i] = outcome{collection: name, deleted: deleted, anonymized: anonymized, err: err}
		}(i, name)
	}
	wg.Wait()

	// Join point: fold per-collection outcomes in enumeration order.
	for _, o := range outcomes {
		stats.CollectionsScanned++
		stats.DocumentsDeleted += o.deleted
		stats.DocumentsAnonymized += o.anonymized
		if o.err != nil {
			stats.Errors = append(stats.Errors, model.CollectionError{Collection: o.collection, Error: o.err.Error()})
			log.WithError(o.err).WithField("collection", o.collection).Warn("collection purge failed")
		}
	}

	status := stats.TerminalStatus()
	if err := e.finish(ctx, logID, status, start, stats, nil); err != nil {
		log.WithError(err).Error("failed to finalize deletion log")
		return stats, err
	}

	metrics.DeletionRuns.WithLabelValues(status).Inc()
	metrics.DocumentsPurged.WithLabelValues(PolicyDelete).Add(float64(stats.DocumentsDeleted))
	metrics.DocumentsPurged.WithLabelValues(PolicyAnonymize).Add(float64(stats.DocumentsAnonymized))
	metrics.RunDuration.Observe(time.Since(start).Seconds())

	log.WithFields(logrus.Fields{
		"status":     status,
		"scanned":    stats.CollectionsScanned,
		"deleted":    stats.DocumentsDeleted,
		"anonymized": stats.DocumentsAnonymized,
		"errors":     len(stats.Errors),
	}).Info("deletion run finished")
	return stats, nil
}

func (e *Engine) finish(ctx context.Context, logID primitive.ObjectID, status string, start time.Time, stats model.DeletionStatistics, runErr error) error {
	detail := bson.M{
		"started_at":  start,
		"finished_at": time.Now(),
		"duration_ms": time.Since(start).Milliseconds(),
		"statistics":  stats,
	}
	if runErr != nil {
		detail["error"] = runErr.Error()
	}
	return e.logs.Finish(ctx, logID, status, detail)
}

// excluded reports whether a collection must never be purged: internal
// mongo/system collections and this service's own audit collections.
func excluded(name string) bool {
	if strings.HasPrefix(name, "system.") {
		return true
	}
	return name == repo.NotificationCollection || name == repo.DeletionLogCollection
}

// purge handles one collection: count matches, then delete or anonymize
// per policy. A zero count is a clean no-op, which is what makes whole
// runs idempotent.
func (e *Engine) purge(ctx context.Context, collection string, id model.Identity) (deleted, anonymized int64, err error) {
	filter := matchFilter(e.cfg.Fields, id)
	n, err := e.store.CountDocuments(ctx, collection, filter)
	if err != nil {
		return 0, 0, err
	}
	if n == 0 {
		return 0, 0, nil
	}

	if e.cfg.Policy == PolicyAnonymize {
		if err := e.anonymize(ctx, collection, id); err != nil {
			return 0, 0, err
		}
		return 0, n, nil
	}

	deleted, err = e.store.DeleteMany(ctx, collection, filter)
	if err != nil {
		return 0, 0, err
	}
	return deleted, 0, nil
}

// anonymize overwrites each matching identity field with a placeholder
// and stamps the removal time, leaving the rest of the document intact.
// Fields are patched one ref at a time so only paths that actually held
// the subject's value get rewritten.
func (e *Engine) anonymize(ctx context.Context, collection string, id model.Identity) error {
	now := time.Now()
	for _, ref := range e.cfg.Fields {
		v := value(id, ref.Kind)
		if v == "" {
			continue
		}
		update := bson.M{"$set": bson.M{ref.Path: redactedPlaceholder, "personal_data_removed_at": now}}
		if _, err := e.store.UpdateMany(ctx, collection, bson.M{ref.Path: v}, update); err != nil {
			return err
		}
	}
	return nil
}
