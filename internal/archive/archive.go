// Package archive exports stopped switching sessions to S3: the event log as
// JSON lines plus the session summary with its final metrics.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/aura-webinar/autoswitch/internal/eventlog"
	"github.com/aura-webinar/autoswitch/internal/models"
	"github.com/aura-webinar/autoswitch/pkg/queue"
	"github.com/aura-webinar/autoswitch/pkg/storage"
)

// Object names under sessions/{id}/.
const (
	EventsObject  = "events.jsonl"
	SummaryObject = "session.json"
)

var (
	// ErrSessionNotPersisted is returned when the job names a session the database does not hold.
	ErrSessionNotPersisted = errors.New("session not persisted")
	// ErrSessionNotFinal is returned while the stopped row, its metrics or the
	// final event log entry have not landed yet.
	ErrSessionNotFinal = errors.New("session not finalized")
)

// EntrySource reads a session's persisted event log.
type EntrySource interface {
	ListAll(ctx context.Context, sessionID uuid.UUID) ([]eventlog.Entry, error)
}

// SessionSource reads a persisted session and its final metrics.
type SessionSource interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Session, *models.Metrics, error)
}

// ObjectStore is the subset of storage.S3 the archive uses.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, body io.Reader, contentLength int64) (string, error)
	Exists(ctx context.Context, key string) (bool, error)
	PresignedDownloadURL(ctx context.Context, key string) (string, error)
}

// JobQueue is the subset of queue.Queue the processor consumes.
type JobQueue interface {
	Dequeue(ctx context.Context) (*queue.Job, string, error)
	Retry(ctx context.Context, job *queue.Job) error
}

// Summary is the body of session.json.
type Summary struct {
	Session    models.Session  `json:"session"`
	Metrics    *models.Metrics `json:"metrics,omitempty"`
	Entries    int             `json:"entries"`
	ArchivedAt time.Time       `json:"archived_at"`
}

// Enqueuer schedules archive jobs; it satisfies sessions.Archiver.
type Enqueuer struct {
	q *queue.Queue
}

// NewEnqueuer wraps q.
func NewEnqueuer(q *queue.Queue) *Enqueuer {
	return &Enqueuer{q: q}
}

// EnqueueArchive pushes an archive job for sessionID.
func (e *Enqueuer) EnqueueArchive(ctx context.Context, sessionID uuid.UUID) error {
	return e.q.EnqueueArchive(ctx, queue.ArchivePayload{SessionID: sessionID})
}

// Processor processes archive jobs: read the session and its log, write both to S3.
type Processor struct {
	entries  EntrySource
	sessions SessionSource
	store    ObjectStore
	queue    JobQueue
	logger   *zap.Logger
	now      func() time.Time
	backoff  time.Duration
}

// NewProcessor creates an archive processor.
func NewProcessor(entries EntrySource, sessions SessionSource, store ObjectStore, q JobQueue, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		entries:  entries,
		sessions: sessions,
		store:    store,
		queue:    q,
		logger:   logger,
		now:      time.Now,
		backoff:  queue.RetryBackoff,
	}
}

// Process executes one archive job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeSessionArchive {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var payload queue.ArchivePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	id := payload.SessionID.String()
	summaryKey := storage.SessionKey(id, SummaryObject)

	done, err := p.store.Exists(ctx, summaryKey)
	if err != nil {
		return err
	}
	if done {
		p.logger.Info("session already archived", zap.String("session_id", id))
		return nil
	}

	sess, m, err := p.sessions.GetByID(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("load session: %w", err)
	}
	if sess == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotPersisted, id)
	}
	if sess.State != models.StateStopped || m == nil {
		return fmt.Errorf("%w: %s", ErrSessionNotFinal, id)
	}
	list, err := p.entries.ListAll(ctx, payload.SessionID)
	if err != nil {
		return fmt.Errorf("load events: %w", err)
	}
	// The event writer flushes asynchronously; the stopped entry is written last.
	if n := len(list); n == 0 || list[n-1].Kind != eventlog.KindSession || list[n-1].Note != eventlog.NoteStopped {
		return fmt.Errorf("%w: %s: event log tail not flushed", ErrSessionNotFinal, id)
	}

	var lines bytes.Buffer
	enc := json.NewEncoder(&lines)
	for i := range list {
		if err := enc.Encode(list[i]); err != nil {
			return fmt.Errorf("encode event: %w", err)
		}
	}
	if _, err := p.store.Upload(ctx, storage.SessionKey(id, EventsObject), "application/x-ndjson", &lines, int64(lines.Len())); err != nil {
		return fmt.Errorf("s3 upload events: %w", err)
	}

	body, err := json.Marshal(Summary{Session: *sess, Metrics: m, Entries: len(list), ArchivedAt: p.now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	// Summary goes last; its presence marks the archive complete.
	if _, err := p.store.Upload(ctx, summaryKey, "application/json", bytes.NewReader(body), int64(len(body))); err != nil {
		return fmt.Errorf("s3 upload summary: %w", err)
	}

	p.logger.Info("session archived", zap.String("session_id", id), zap.Int("entries", len(list)))
	return nil
}

// Run starts the worker loop: dequeue, process, retry on error.
func (p *Processor) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("archive worker stopping")
			return
		default:
		}

		job, _, err := p.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			p.logger.Warn("dequeue error", zap.Error(err))
			p.sleep(ctx)
			continue
		}
		if job == nil {
			continue
		}

		p.logger.Debug("processing job", zap.String("job_id", job.ID), zap.String("type", string(job.Type)))
		if err := p.Process(ctx, job); err != nil {
			p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Error(err))
			if reErr := p.queue.Retry(ctx, job); reErr != nil {
				p.logger.Error("retry enqueue failed", zap.Error(reErr))
			}
			p.sleep(ctx)
		}
	}
}

func (p *Processor) sleep(ctx context.Context) {
	t := time.NewTimer(p.backoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
