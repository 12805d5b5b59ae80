package eventlog

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Store persists batches of entries.
type Store interface {
	InsertBatch(ctx context.Context, entries []Entry) error
}

// Writer drains appended entries to a Store in the background. Enqueue never
// blocks the session loop; entries are dropped with a warning when the buffer is full.
type Writer struct {
	store     Store
	logger    *zap.Logger
	in        chan Entry
	batchSize int
	interval  time.Duration
}

// NewWriter creates a writer with the given buffer and flush settings.
func NewWriter(store Store, logger *zap.Logger, buffer, batchSize int, interval time.Duration) *Writer {
	if buffer <= 0 {
		buffer = 1024
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	if interval <= 0 {
		interval = time.Second
	}
	return &Writer{
		store:     store,
		logger:    logger,
		in:        make(chan Entry, buffer),
		batchSize: batchSize,
		interval:  interval,
	}
}

// Enqueue implements Sink.
func (w *Writer) Enqueue(e Entry) {
	select {
	case w.in <- e:
	default:
		w.logger.Warn("event log buffer full, dropping entry",
			zap.String("session_id", e.SessionID.String()), zap.Uint64("seq", e.Seq))
	}
}

// Run flushes batches until ctx is cancelled, then drains what is buffered.
func (w *Writer) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	batch := make([]Entry, 0, w.batchSize)

	flush := func(ctx context.Context) {
		if len(batch) == 0 {
			return
		}
		if err := w.store.InsertBatch(ctx, batch); err != nil {
			w.logger.Error("persist event log batch", zap.Int("entries", len(batch)), zap.Error(err))
		}
		batch = batch[:0]
	}

	for {
		select {
		case <-ctx.Done():
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			for {
				select {
				case e := <-w.in:
					batch = append(batch, e)
					if len(batch) >= w.batchSize {
						flush(drainCtx)
					}
				default:
					flush(drainCtx)
					return nil
				}
			}
		case e := <-w.in:
			batch = append(batch, e)
			if len(batch) >= w.batchSize {
				flush(ctx)
			}
		case <-ticker.C:
			flush(ctx)
		}
	}
}
