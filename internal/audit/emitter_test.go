package audit

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BerniPi/BGBB-IKT/internal/persistence"
)

type sinkStub struct {
	mu      sync.Mutex
	entries []persistence.ActivityEntry
	err     error
	calls   int
}

func (s *sinkStub) AppendActivity(ctx context.Context, entry persistence.ActivityEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func (s *sinkStub) snapshot() []persistence.ActivityEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]persistence.ActivityEntry, len(s.entries))
	copy(out, s.entries)
	return out
}

type retrierStub struct {
	attempts int
}

func (r *retrierStub) WithRetry(ctx context.Context, fn func() error) error {
	var err error
	for i := 0; i < 2; i++ {
		r.attempts++
		if err = fn(); err == nil {
			return nil
		}
	}
	return err
}

var fixedNow = time.Date(2024, time.March, 1, 12, 0, 0, 0, time.UTC)

func TestEmitter_WritesQueuedRecords(t *testing.T) {
	sink := &sinkStub{}
	emitter := NewEmitter(sink, WithClock(func() time.Time { return fixedNow }))
	emitter.Start()

	emitter.Record(context.Background(), Record{
		Actor:      "admin",
		Action:     persistence.ActionMove,
		EntityType: "device",
		EntityID:   "dev-1",
		Details:    map[string]any{"action": "move-to-room", "newRoomId": "r-2"},
	})
	emitter.Record(context.Background(), Record{
		Actor:      "admin",
		Action:     persistence.ActionBulkUpdate,
		EntityType: "device",
		Details:    map[string]any{"count": 3},
	})

	require.NoError(t, emitter.Close(context.Background()))

	entries := sink.snapshot()
	require.Len(t, entries, 2)
	assert.Equal(t, "admin", entries[0].Username)
	assert.Equal(t, persistence.ActionMove, entries[0].ActionType)
	require.NotNil(t, entries[0].EntityID)
	assert.Equal(t, "dev-1", *entries[0].EntityID)
	assert.Equal(t, fixedNow, entries[0].Timestamp)
	assert.JSONEq(t, `{"action":"move-to-room","newRoomId":"r-2"}`, string(entries[0].Details))
	assert.Nil(t, entries[1].EntityID)
}

func TestEmitter_SinkFailureIsLoggedNotReturned(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	sink := &sinkStub{err: errors.New("database is locked")}
	retrier := &retrierStub{}

	emitter := NewEmitter(sink, WithLogger(logger), WithRetrier(retrier))
	emitter.Start()
	emitter.Record(context.Background(), Record{Actor: "admin", Action: persistence.ActionUpdate, EntityType: "device", EntityID: "dev-1"})
	require.NoError(t, emitter.Close(context.Background()))

	assert.Equal(t, 2, retrier.attempts)
	assert.Equal(t, 2, sink.calls)
	assert.Contains(t, buf.String(), "failed to write audit record")
	assert.Contains(t, buf.String(), "dev-1")
}

func TestEmitter_DropsWhenQueueFull(t *testing.T) {
	var buf bytes.Buffer
	sink := &sinkStub{}
	emitter := NewEmitter(sink, WithQueueSize(1), WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	emitter.Record(context.Background(), Record{Action: persistence.ActionUpdate, EntityID: "first"})
	emitter.Record(context.Background(), Record{Action: persistence.ActionUpdate, EntityID: "second"})

	require.NoError(t, emitter.Close(context.Background()))

	entries := sink.snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "first", *entries[0].EntityID)
	assert.Contains(t, buf.String(), "queue full")
}

func TestEmitter_RecordAfterCloseIsDropped(t *testing.T) {
	sink := &sinkStub{}
	emitter := NewEmitter(sink)
	emitter.Start()
	require.NoError(t, emitter.Close(context.Background()))
	require.NoError(t, emitter.Close(context.Background()))

	assert.NotPanics(t, func() {
		emitter.Record(context.Background(), Record{Action: persistence.ActionDelete})
	})
	assert.Empty(t, sink.snapshot())

	var nilEmitter *Emitter
	assert.NotPanics(t, func() {
		nilEmitter.Record(context.Background(), Record{})
	})
}

func TestEmitter_UnencodableDetailsAreSkipped(t *testing.T) {
	sink := &sinkStub{}
	emitter := NewEmitter(sink)
	emitter.Start()
	emitter.Record(context.Background(), Record{Action: persistence.ActionOther, Details: map[string]any{"bad": make(chan int)}})
	emitter.Record(context.Background(), Record{Action: persistence.ActionOther, EntityID: "ok"})
	require.NoError(t, emitter.Close(context.Background()))

	entries := sink.snapshot()
	require.Len(t, entries, 1)
	assert.Equal(t, "ok", *entries[0].EntityID)
}
