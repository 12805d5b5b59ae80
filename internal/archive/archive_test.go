package archive

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/autoswitch/internal/eventlog"
	"github.com/aura-webinar/autoswitch/internal/models"
	"github.com/aura-webinar/autoswitch/pkg/queue"
	"github.com/aura-webinar/autoswitch/pkg/storage"
)

type memStore struct {
	mu      sync.Mutex
	objects map[string][]byte
	failOn  string
}

func newMemStore() *memStore { return &memStore{objects: map[string][]byte{}} }

func (m *memStore) Upload(_ context.Context, key, _ string, body io.Reader, _ int64) (string, error) {
	if key == m.failOn {
		return "", errors.New("boom")
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = b
	return "s3://" + key, nil
}

func (m *memStore) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok, nil
}

func (m *memStore) PresignedDownloadURL(_ context.Context, key string) (string, error) {
	return "https://signed/" + key, nil
}

type fixedSessions struct {
	sess *models.Session
	m    *models.Metrics
}

func (f fixedSessions) GetByID(context.Context, uuid.UUID) (*models.Session, *models.Metrics, error) {
	return f.sess, f.m, nil
}

type fixedEntries []eventlog.Entry

func (f fixedEntries) ListAll(context.Context, uuid.UUID) ([]eventlog.Entry, error) { return f, nil }

func archiveJob(t *testing.T, id uuid.UUID) *queue.Job {
	t.Helper()
	body, err := json.Marshal(queue.ArchivePayload{SessionID: id})
	require.NoError(t, err)
	return &queue.Job{ID: "j1", Type: queue.JobTypeSessionArchive, Payload: body}
}

func fixture() (uuid.UUID, fixedSessions, fixedEntries) {
	id := uuid.New()
	at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	sess := &models.Session{ID: id, InterviewID: "ep-12", Mode: models.ModeAutomatic, State: models.StateStopped, ActiveCameraID: "guest"}
	entries := fixedEntries{
		{Seq: 1, SessionID: id, Kind: eventlog.KindSession, At: at, Note: eventlog.NoteStarted, CameraID: "host"},
		{Seq: 2, SessionID: id, Kind: eventlog.KindSession, At: at.Add(time.Minute), Note: eventlog.NoteStopped, CameraID: "guest"},
	}
	return id, fixedSessions{sess: sess, m: &models.Metrics{TotalSwitches: 3}}, entries
}

func TestProcess_WritesEventsAndSummary(t *testing.T) {
	id, sessions, entries := fixture()
	store := newMemStore()
	p := NewProcessor(entries, sessions, store, nil, nil)

	require.NoError(t, p.Process(context.Background(), archiveJob(t, id)))

	events := store.objects[storage.SessionKey(id.String(), EventsObject)]
	var lines int
	sc := bufio.NewScanner(bytes.NewReader(events))
	for sc.Scan() {
		var e eventlog.Entry
		require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
		lines++
		assert.Equal(t, uint64(lines), e.Seq)
	}
	assert.Equal(t, 2, lines)

	var sum Summary
	require.NoError(t, json.Unmarshal(store.objects[storage.SessionKey(id.String(), SummaryObject)], &sum))
	assert.Equal(t, "ep-12", sum.Session.InterviewID)
	assert.Equal(t, 2, sum.Entries)
	require.NotNil(t, sum.Metrics)
	assert.Equal(t, 3, sum.Metrics.TotalSwitches)
}

func TestProcess_SkipsArchived(t *testing.T) {
	id, sessions, entries := fixture()
	store := newMemStore()
	store.objects[storage.SessionKey(id.String(), SummaryObject)] = []byte("{}")
	p := NewProcessor(entries, sessions, store, nil, nil)

	require.NoError(t, p.Process(context.Background(), archiveJob(t, id)))
	assert.Len(t, store.objects, 1)
}

func TestProcess_Errors(t *testing.T) {
	id, sessions, entries := fixture()
	store := newMemStore()

	p := NewProcessor(entries, fixedSessions{}, store, nil, nil)
	assert.ErrorIs(t, p.Process(context.Background(), archiveJob(t, id)), ErrSessionNotPersisted)

	running := *sessions.sess
	running.State = models.StateActive
	p = NewProcessor(entries, fixedSessions{sess: &running, m: sessions.m}, store, nil, nil)
	assert.ErrorIs(t, p.Process(context.Background(), archiveJob(t, id)), ErrSessionNotFinal)

	store.failOn = storage.SessionKey(id.String(), SummaryObject)
	p = NewProcessor(entries, sessions, store, nil, nil)
	assert.Error(t, p.Process(context.Background(), archiveJob(t, id)))
	ok, _ := store.Exists(context.Background(), store.failOn)
	assert.False(t, ok)

	assert.Error(t, p.Process(context.Background(), &queue.Job{Type: "other"}))
}

// flushingEntries returns the log without its tail until the second read.
type flushingEntries struct {
	mu    sync.Mutex
	reads int
	all   fixedEntries
}

func (f *flushingEntries) ListAll(context.Context, uuid.UUID) ([]eventlog.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reads++
	if f.reads == 1 {
		return f.all[:len(f.all)-1], nil
	}
	return f.all, nil
}

func TestProcess_WaitsForEventTail(t *testing.T) {
	id, sessions, entries := fixture()
	store := newMemStore()
	src := &flushingEntries{all: entries}
	p := NewProcessor(src, sessions, store, nil, nil)

	assert.ErrorIs(t, p.Process(context.Background(), archiveJob(t, id)), ErrSessionNotFinal)
	ok, _ := store.Exists(context.Background(), storage.SessionKey(id.String(), SummaryObject))
	assert.False(t, ok)

	require.NoError(t, p.Process(context.Background(), archiveJob(t, id)))
	var summary Summary
	require.NoError(t, json.Unmarshal(store.objects[storage.SessionKey(id.String(), SummaryObject)], &summary))
	assert.Equal(t, len(entries), summary.Entries)
	assert.Equal(t, 2, src.reads)
}

type scriptedQueue struct {
	mu      sync.Mutex
	jobs    []*queue.Job
	retried []*queue.Job
	cancel  context.CancelFunc
}

func (q *scriptedQueue) Dequeue(ctx context.Context) (*queue.Job, string, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.jobs) == 0 {
		q.cancel()
		<-ctx.Done()
		return nil, "", ctx.Err()
	}
	j := q.jobs[0]
	q.jobs = q.jobs[1:]
	return j, queue.QueueArchive, nil
}

func (q *scriptedQueue) Retry(_ context.Context, job *queue.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.retried = append(q.retried, job)
	return nil
}

func TestRun_RetriesFailures(t *testing.T) {
	id, sessions, entries := fixture()
	ctx, cancel := context.WithCancel(context.Background())
	q := &scriptedQueue{jobs: []*queue.Job{{ID: "bad", Type: "other"}, archiveJob(t, id)}, cancel: cancel}
	store := newMemStore()
	p := NewProcessor(entries, sessions, store, q, nil)
	p.backoff = time.Millisecond

	p.Run(ctx)

	require.Len(t, q.retried, 1)
	assert.Equal(t, "bad", q.retried[0].ID)
	ok, _ := store.Exists(context.Background(), storage.SessionKey(id.String(), SummaryObject))
	assert.True(t, ok)
}

func TestHandler_Links(t *testing.T) {
	gin.SetMode(gin.TestMode)
	store := newMemStore()
	r := gin.New()
	r.GET("/sessions/:id/archive", NewHandler(store, nil).Get)

	id := uuid.New()
	get := func(path string) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		return w
	}
	assert.Equal(t, http.StatusBadRequest, get("/sessions/nope/archive").Code)
	assert.Equal(t, http.StatusNotFound, get("/sessions/"+id.String()+"/archive").Code)

	store.objects[storage.SessionKey(id.String(), SummaryObject)] = []byte("{}")
	w := get("/sessions/" + id.String() + "/archive")
	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data Links `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, "https://signed/sessions/"+id.String()+"/events.jsonl", env.Data.EventsURL)
}
