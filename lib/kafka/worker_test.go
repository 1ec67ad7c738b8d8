package kafka

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	msgs      []kafka.Message
	idx       int
	committed []kafka.Message
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.idx >= len(f.msgs) {
		return kafka.Message{}, io.EOF
	}
	m := f.msgs[f.idx]
	f.idx++
	return m, nil
}

func (f *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.committed = append(f.committed, msgs...)
	return nil
}

func (f *fakeReader) Close() error { return nil }

func (f *fakeReader) committedKeys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.committed))
	for _, m := range f.committed {
		keys = append(keys, string(m.Key))
	}
	return keys
}

type payload struct {
	N int `json:"n"`
}

func TestWorkerCommitsOnlyAfterHandlerSucceeds(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		{Topic: "t", Key: []byte("bad"), Value: []byte(`{"n":1}`)},
		{Topic: "t", Key: []byte("good"), Value: []byte(`{"n":2}`)},
	}}

	var handled sync.Map
	w := &Worker[payload]{r: r, sem: make(chan struct{}, 1), handle: func(ctx context.Context, msg Message[payload]) error {
		handled.Store(msg.Key, msg.Value.N)
		if msg.Key == "bad" {
			return errors.New("handler refused")
		}
		return nil
	}}

	err := w.Run(context.Background())
	require.ErrorIs(t, err, io.EOF)

	// Handlers run in goroutines; wait for the commits to settle.
	assert.Eventually(t, func() bool {
		return len(r.committedKeys()) == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, []string{"good"}, r.committedKeys(), "the failed message must stay uncommitted for redelivery")
	_, badHandled := handled.Load("bad")
	assert.True(t, badHandled)
}

func TestWorkerCommitsUndecodableMessages(t *testing.T) {
	r := &fakeReader{msgs: []kafka.Message{
		{Topic: "t", Key: []byte("junk"), Value: []byte(`{{{`)},
	}}
	w := &Worker[payload]{r: r, sem: make(chan struct{}, 1), handle: func(ctx context.Context, msg Message[payload]) error {
		t.Error("handler must not run for undecodable messages")
		return nil
	}}

	err := w.Run(context.Background())
	require.ErrorIs(t, err, io.EOF)

	// Poison messages are committed so they are not redelivered forever.
	assert.Eventually(t, func() bool {
		return len(r.committedKeys()) == 1
	}, time.Second, 5*time.Millisecond)
}
