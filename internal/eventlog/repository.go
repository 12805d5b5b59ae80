package eventlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository handles switch_events.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates an event log repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const insertEntry = `INSERT INTO switch_events (id, session_id, seq, kind, at, camera_id, note, payload)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO NOTHING`

// InsertBatch writes entries in one round trip.
func (r *Repository) InsertBatch(ctx context.Context, entries []Entry) error {
	batch := &pgx.Batch{}
	for _, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			return err
		}
		batch.Queue(insertEntry, e.ID, e.SessionID, int64(e.Seq), string(e.Kind), e.At, e.CameraID, e.Note, payload)
	}
	return r.pool.SendBatch(ctx, batch).Close()
}

// ListBySession returns persisted entries at or after since, newest first.
func (r *Repository) ListBySession(ctx context.Context, sessionID uuid.UUID, since time.Time, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT payload FROM switch_events WHERE session_id = $1 AND at >= $2 ORDER BY seq DESC LIMIT $3`,
		sessionID, since, ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Entry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e Entry
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}

// ListAll returns every persisted entry for a session, oldest first.
func (r *Repository) ListAll(ctx context.Context, sessionID uuid.UUID) ([]Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT payload FROM switch_events WHERE session_id = $1 ORDER BY seq ASC`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []Entry
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var e Entry
		if err := json.Unmarshal(payload, &e); err != nil {
			return nil, err
		}
		list = append(list, e)
	}
	return list, rows.Err()
}
