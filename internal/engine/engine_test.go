package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bmlam89/ebay-deletion-handler/internal/model"
	"github.com/bmlam89/ebay-deletion-handler/internal/repo"
	"github.com/bmlam89/ebay-deletion-handler/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

var testIdentity = model.Identity{Username: "alice", UserID: "u1", EiasToken: "eias-1"}

// failingStore wraps a Store and injects failures for specific calls.
type failingStore struct {
	store.Store
	failDeleteOn string
	failCountOn  string
	failList     bool
	failInsertOn string
	failFinish   bool
}

func (f *failingStore) DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error) {
	if collection == f.failDeleteOn {
		return 0, errors.New("delete refused")
	}
	return f.Store.DeleteMany(ctx, collection, filter)
}

func (f *failingStore) CountDocuments(ctx context.Context, collection string, filter bson.M) (int64, error) {
	if collection == f.failCountOn {
		return 0, errors.New("count refused")
	}
	return f.Store.CountDocuments(ctx, collection, filter)
}

func (f *failingStore) ListCollections(ctx context.Context) ([]string, error) {
	if f.failList {
		return nil, errors.New("enumeration refused")
	}
	return f.Store.ListCollections(ctx)
}

func (f *failingStore) InsertOne(ctx context.Context, collection string, doc interface{}) (interface{}, error) {
	if collection == f.failInsertOn {
		return nil, errors.New("insert refused")
	}
	return f.Store.InsertOne(ctx, collection, doc)
}

func (f *failingStore) FindOneAndUpdate(ctx context.Context, collection string, filter, update bson.M, out interface{}) error {
	if f.failFinish && collection == repo.DeletionLogCollection {
		return errors.New("update refused")
	}
	return f.Store.FindOneAndUpdate(ctx, collection, filter, update, out)
}

func seededMemory() *store.Memory {
	mem := store.NewMemory()
	mem.Seed("orders",
		bson.M{"userId": "u1", "total": 42},
		bson.M{"userId": "someone-else", "total": 7},
	)
	mem.Seed("messages",
		bson.M{"user": bson.M{"username": "alice"}, "body": "hi"},
	)
	mem.Seed("profiles",
		bson.M{"eias_token": "eias-1", "bio": "..."},
		bson.M{"eias_token": "eias-other"},
	)
	return mem
}

func newEngine(s store.Store, cfg Config) *Engine {
	return New(s, repo.NewDeletionLogRepo(s), cfg)
}

func logEntries(t *testing.T, mem *store.Memory) []bson.M {
	t.Helper()
	return mem.Docs(repo.DeletionLogCollection)
}

func TestRunDeletesMatchesAcrossCollections(t *testing.T) {
	mem := seededMemory()
	eng := newEngine(mem, Config{})

	stats, err := eng.Run(context.Background(), testIdentity)
	require.NoError(t, err)

	assert.Equal(t, 3, stats.CollectionsScanned)
	assert.Equal(t, int64(3), stats.DocumentsDeleted)
	assert.Equal(t, int64(0), stats.DocumentsAnonymized)
	assert.Empty(t, stats.Errors)

	// Non-matching documents survive.
	assert.Len(t, mem.Docs("orders"), 1)
	assert.Empty(t, mem.Docs("messages"))
	assert.Len(t, mem.Docs("profiles"), 1)
}

func TestRunIsIdempotent(t *testing.T) {
	mem := seededMemory()
	eng := newEngine(mem, Config{})

	first, err := eng.Run(context.Background(), testIdentity)
	require.NoError(t, err)
	require.Equal(t, int64(3), first.DocumentsDeleted)

	second, err := eng.Run(context.Background(), testIdentity)
	require.NoError(t, err)
	assert.Equal(t, int64(0), second.DocumentsDeleted)
	assert.Equal(t, int64(0), second.DocumentsAnonymized)
	assert.Empty(t, second.Errors)

	entries := logEntries(t, mem)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, model.StatusCompleted, e["status"])
	}
}

func TestRunIsolatesCollectionFailure(t *testing.T) {
	mem := seededMemory()
	s := &failingStore{Store: mem, failDeleteOn: "orders"}
	eng := newEngine(s, Config{})

	stats, err := eng.Run(context.Background(), testIdentity)
	require.NoError(t, err)

	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "orders", stats.Errors[0].Collection)
	assert.Equal(t, 3, stats.CollectionsScanned)
	assert.Equal(t, int64(2), stats.DocumentsDeleted)

	// The failed collection keeps its documents, the others are purged.
	assert.Len(t, mem.Docs("orders"), 2)
	assert.Empty(t, mem.Docs("messages"))

	entries := logEntries(t, mem)
	require.Len(t, entries, 1)
	assert.Equal(t, model.StatusCompletedWithErrors, entries[0]["status"])
}

func TestRunScanFailureIsIsolatedToo(t *testing.T) {
	mem := seededMemory()
	s := &failingStore{Store: mem, failCountOn: "profiles"}
	eng := newEngine(s, Config{})

	stats, err := eng.Run(context.Background(), testIdentity)
	require.NoError(t, err)
	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "profiles", stats.Errors[0].Collection)
	assert.Equal(t, int64(2), stats.DocumentsDeleted)
}

// stallingStore blocks one collection's scan until its context expires.
type stallingStore struct {
	store.Store
	stallOn string
}

func (s *stallingStore) CountDocuments(ctx context.Context, collection string, filter bson.M) (int64, error) {
	if collection == s.stallOn {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	return s.Store.CountDocuments(ctx, collection, filter)
}

func TestRunCollectionTimeoutCountsAsFailure(t *testing.T) {
	mem := seededMemory()
	s := &stallingStore{Store: mem, stallOn: "orders"}
	eng := newEngine(s, Config{CollectionTimeout: 50 * time.Millisecond})

	stats, err := eng.Run(context.Background(), testIdentity)
	require.NoError(t, err)

	require.Len(t, stats.Errors, 1)
	assert.Equal(t, "orders", stats.Errors[0].Collection)
	assert.Contains(t, stats.Errors[0].Error, context.DeadlineExceeded.Error())

	// The stalled collection must not hold up the rest of the run.
	assert.Equal(t, 3, stats.CollectionsScanned)
	assert.Equal(t, int64(2), stats.DocumentsDeleted)
	assert.Len(t, mem.Docs("orders"), 2)

	entries := logEntries(t, mem)
	require.Len(t, entries, 1)
	assert.Equal(t, model.StatusCompletedWithErrors, entries[0]["status"])
}

func TestRunNeverTouchesOwnCollections(t *testing.T) {
	mem := seededMemory()
	mem.Seed(repo.NotificationCollection,
		bson.M{"username": "alice", "user_id": "u1", "notification_id": "n-1"},
	)
	eng := newEngine(mem, Config{})

	_, err := eng.Run(context.Background(), testIdentity)
	require.NoError(t, err)

	// The notification record matches the identity predicate but must
	// survive the purge.
	assert.Len(t, mem.Docs(repo.NotificationCollection), 1)

	entries := logEntries(t, mem)
	require.Len(t, entries, 1)
	assert.NotEqual(t, model.StatusStarted, entries[0]["status"])
}

func TestRunProducesExactlyOneTerminalLogEntry(t *testing.T) {
	mem := seededMemory()
	eng := newEngine(mem, Config{})

	stats, err := eng.Run(context.Background(), testIdentity)
	require.NoError(t, err)

	entries := logEntries(t, mem)
	require.Len(t, entries, 1)
	entry := entries[0]
	assert.Equal(t, model.StatusCompleted, entry["status"])
	assert.Equal(t, "alice", entry["username"])
	assert.Equal(t, "u1", entry["user_id"])

	detail, ok := entry["detail"].(bson.M)
	require.True(t, ok, "detail should be attached on finish")
	recorded, ok := detail["statistics"].(model.DeletionStatistics)
	require.True(t, ok)
	assert.Equal(t, stats.DocumentsDeleted, recorded.DocumentsDeleted)
	assert.Equal(t, stats.CollectionsScanned, recorded.CollectionsScanned)
}

func TestRunAnonymizePolicy(t *testing.T) {
	mem := seededMemory()
	eng := newEngine(mem, Config{Policy: PolicyAnonymize})

	stats, err := eng.Run(context.Background(), testIdentity)
	require.NoError(t, err)

	assert.Equal(t, int64(0), stats.DocumentsDeleted)
	assert.Equal(t, int64(3), stats.DocumentsAnonymized)

	orders := mem.Docs("orders")
	require.Len(t, orders, 2, "anonymization keeps records")
	for _, doc := range orders {
		if doc["total"] == 42 {
			assert.Equal(t, "REDACTED", doc["userId"])
			assert.Contains(t, doc, "personal_data_removed_at")
		} else {
			assert.Equal(t, "someone-else", doc["userId"])
		}
	}
}

func TestRunLogAnchorFailureIsFatal(t *testing.T) {
	mem := seededMemory()
	s := &failingStore{Store: mem, failInsertOn: repo.DeletionLogCollection}
	eng := newEngine(s, Config{})

	_, err := eng.Run(context.Background(), testIdentity)
	require.Error(t, err)

	// Nothing may be deleted without a log anchor.
	assert.Len(t, mem.Docs("orders"), 2)
	assert.Len(t, mem.Docs("messages"), 1)
}

func TestRunEnumerationFailureMarksLogFailed(t *testing.T) {
	mem := seededMemory()
	s := &failingStore{Store: mem, failList: true}
	eng := newEngine(s, Config{})

	_, err := eng.Run(context.Background(), testIdentity)
	require.Error(t, err)

	entries := logEntries(t, mem)
	require.Len(t, entries, 1)
	assert.Equal(t, model.StatusFailed, entries[0]["status"])
	detail, ok := entries[0]["detail"].(bson.M)
	require.True(t, ok)
	assert.Contains(t, detail, "error")
}

func TestRunEnumerationFailureSurvivesBrokenFinish(t *testing.T) {
	mem := seededMemory()
	s := &failingStore{Store: mem, failList: true, failFinish: true}
	eng := newEngine(s, Config{})

	// The caller gets the enumeration failure, not the secondary log
	// write failure; the entry is left at started with nothing to
	// overwrite it.
	_, err := eng.Run(context.Background(), testIdentity)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "enumeration refused")

	entries := logEntries(t, mem)
	require.Len(t, entries, 1)
	assert.Equal(t, model.StatusStarted, entries[0]["status"])
	assert.Len(t, mem.Docs("orders"), 2)
}

func TestConcurrentRunsForSameIdentityStayCoherent(t *testing.T) {
	mem := seededMemory()
	eng := newEngine(mem, Config{Concurrency: 2})

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Run(context.Background(), testIdentity)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	entries := logEntries(t, mem)
	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.NotEqual(t, model.StatusStarted, e["status"])
	}
	// Serialized runs: the matches are deleted exactly once overall.
	assert.Len(t, mem.Docs("orders"), 1)
}
