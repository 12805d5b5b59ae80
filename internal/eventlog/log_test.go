package eventlog

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aura-webinar/autoswitch/internal/models"
)

var t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

func TestLog_QueryNewestFirst(t *testing.T) {
	l := New(uuid.New(), 10, nil)
	for i := 0; i < 5; i++ {
		l.AppendDecision(models.SwitchDecision{TargetCameraID: "host", EvaluatedAt: t0.Add(time.Duration(i) * time.Second)})
	}

	got := l.Query(time.Time{}, 3)
	require.Len(t, got, 3)
	assert.Equal(t, uint64(5), got[0].Seq)
	assert.Equal(t, uint64(3), got[2].Seq)
	assert.Equal(t, KindDecision, got[0].Kind)
}

func TestLog_QuerySince(t *testing.T) {
	l := New(uuid.New(), 10, nil)
	for i := 0; i < 5; i++ {
		l.AppendSession(NoteStarted, "host", t0.Add(time.Duration(i)*time.Second))
	}
	got := l.Query(t0.Add(3*time.Second), 0)
	require.Len(t, got, 2)
	assert.Equal(t, t0.Add(4*time.Second), got[0].At)
}

func TestLog_TimestampsAreMonotonic(t *testing.T) {
	l := New(uuid.New(), 10, nil)
	l.AppendSession(NoteStarted, "host", t0.Add(time.Second))
	e := l.AppendDecision(models.SwitchDecision{EvaluatedAt: t0})
	assert.Equal(t, t0.Add(time.Second), e.At)
}

func TestLog_EvictionKeepsSwitchCount(t *testing.T) {
	l := New(uuid.New(), 3, nil)
	for i := 0; i < 5; i++ {
		l.AppendSwitch(models.SwitchRecord{ToCameraID: "guest", ExecutedAt: t0.Add(time.Duration(i) * time.Second)})
	}
	assert.Equal(t, 3, l.Len())
	assert.Equal(t, 5, l.SwitchCount())

	all := l.All()
	require.Len(t, all, 3)
	assert.Equal(t, uint64(3), all[0].Seq)
	assert.Equal(t, uint64(5), all[2].Seq)

	assert.False(t, l.Covers(t0))
	assert.True(t, l.Covers(t0.Add(2*time.Second)))
}

func TestClampLimit(t *testing.T) {
	assert.Equal(t, DefaultLimit, ClampLimit(0))
	assert.Equal(t, 10, ClampLimit(10))
	assert.Equal(t, MaxLimit, ClampLimit(10_000))
}

type memStore struct {
	mu      sync.Mutex
	batches [][]Entry
}

func (m *memStore) InsertBatch(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, append([]Entry(nil), entries...))
	return nil
}

func (m *memStore) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, b := range m.batches {
		n += len(b)
	}
	return n
}

func TestWriter_DrainsOnCancel(t *testing.T) {
	store := &memStore{}
	w := NewWriter(store, zap.NewNop(), 16, 2, time.Hour)
	l := New(uuid.New(), 10, w)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	for i := 0; i < 5; i++ {
		l.AppendSession(NoteStarted, "host", t0)
	}
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 5, store.count())
}

func TestWriter_DropsWhenFull(t *testing.T) {
	store := &memStore{}
	w := NewWriter(store, zap.NewNop(), 1, 10, time.Hour)
	w.Enqueue(Entry{Seq: 1})
	w.Enqueue(Entry{Seq: 2})
	assert.Len(t, w.in, 1)
}
