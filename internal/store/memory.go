package store

import (
	"context"
	"reflect"
	"sort"
	"strings"
	"sync"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// Memory is an in-memory Store used in tests and for local development
// without a MongoDB instance. It supports the filter/update subset this
// service issues: equality on dotted paths, $or, $exists, $set and
// $setOnInsert.
type Memory struct {
	mu          sync.RWMutex
	collections map[string][]bson.M
}

func NewMemory() *Memory {
	return &Memory{collections: make(map[string][]bson.M)}
}

// Seed replaces a collection's contents.
func (m *Memory) Seed(collection string, docs ...bson.M) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append([]bson.M{}, docs...)
}

// Docs returns a snapshot of a collection.
func (m *Memory) Docs(collection string) []bson.M {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]bson.M{}, m.collections[collection]...)
}

func (m *Memory) ListCollections(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *Memory) Find(ctx context.Context, collection string, filter bson.M) ([]bson.M, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []bson.M
	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			out = append(out, doc)
		}
	}
	return out, nil
}

func (m *Memory) CountDocuments(ctx context.Context, collection string, filter bson.M) (int64, error) {
	docs, err := m.Find(ctx, collection, filter)
	if err != nil {
		return 0, err
	}
	return int64(len(docs)), nil
}

func (m *Memory) DeleteMany(ctx context.Context, collection string, filter bson.M) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []bson.M
	var removed int64
	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			removed++
			continue
		}
		kept = append(kept, doc)
	}
	m.collections[collection] = kept
	return removed, nil
}

func (m *Memory) UpdateMany(ctx context.Context, collection string, filter, update bson.M) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var modified int64
	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			applyUpdate(doc, update)
			modified++
		}
	}
	return modified, nil
}

func (m *Memory) InsertOne(ctx context.Context, collection string, doc interface{}) (interface{}, error) {
	asMap, err := toMap(doc)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collection] = append(m.collections[collection], asMap)
	return asMap["_id"], nil
}

func (m *Memory) UpdateOne(ctx context.Context, collection string, filter, update bson.M) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			applyUpdate(doc, update)
			return nil
		}
	}
	return nil
}

func (m *Memory) UpsertOne(ctx context.Context, collection string, filter, update bson.M) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			applyUpdate(doc, update)
			return nil
		}
	}
	doc := bson.M{}
	for k, v := range filter {
		if !strings.HasPrefix(k, "$") {
			doc[k] = v
		}
	}
	applyUpdate(doc, update)
	if extra, ok := update["$setOnInsert"].(bson.M); ok {
		for k, v := range extra {
			setPath(doc, k, v)
		}
	}
	m.collections[collection] = append(m.collections[collection], doc)
	return nil
}

func (m *Memory) FindOneAndUpdate(ctx context.Context, collection string, filter, update bson.M, out interface{}) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, doc := range m.collections[collection] {
		if matches(doc, filter) {
			applyUpdate(doc, update)
			if out == nil {
				return nil
			}
			raw, err := bson.Marshal(doc)
			if err != nil {
				return err
			}
			return bson.Unmarshal(raw, out)
		}
	}
	return mongo.ErrNoDocuments
}

func toMap(doc interface{}) (bson.M, error) {
	if asMap, ok := doc.(bson.M); ok {
		return asMap, nil
	}
	raw, err := bson.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var asMap bson.M
	if err := bson.Unmarshal(raw, &asMap); err != nil {
		return nil, err
	}
	return asMap, nil
}

func matches(doc bson.M, filter bson.M) bool {
	for key, want := range filter {
		if key == "$or" {
			clauses, ok := want.([]bson.M)
			if !ok {
				return false
			}
			anyMatch := false
			for _, clause := range clauses {
				if matches(doc, clause) {
					anyMatch = true
					break
				}
			}
			if !anyMatch {
				return false
			}
			continue
		}
		got, present := lookup(doc, key)
		if cond, ok := want.(bson.M); ok {
			if exists, has := cond["$exists"]; has {
				if exists.(bool) != present {
					return false
				}
				continue
			}
		}
		if !present || !reflect.DeepEqual(got, want) {
			return false
		}
	}
	return true
}

func lookup(doc bson.M, path string) (interface{}, bool) {
	parts := strings.Split(path, ".")
	var current interface{} = doc
	for _, part := range parts {
		asMap, ok := asDocument(current)
		if !ok {
			return nil, false
		}
		current, ok = asMap[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

func asDocument(v interface{}) (bson.M, bool) {
	switch t := v.(type) {
	case bson.M:
		return t, true
	case map[string]interface{}:
		return bson.M(t), true
	case bson.D:
		out := bson.M{}
		for _, e := range t {
			out[e.Key] = e.Value
		}
		return out, true
	}
	return nil, false
}

func applyUpdate(doc bson.M, update bson.M) {
	if set, ok := update["$set"].(bson.M); ok {
		for path, v := range set {
			setPath(doc, path, v)
		}
	}
}

func setPath(doc bson.M, path string, v interface{}) {
	parts := strings.Split(path, ".")
	current := doc
	for _, part := range parts[:len(parts)-1] {
		next, ok := asDocument(current[part])
		if !ok {
			next = bson.M{}
			current[part] = next
		}
		current = next
	}
	current[parts[len(parts)-1]] = v
}
