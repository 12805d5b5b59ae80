package sessions

import (
	"context"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aura-webinar/autoswitch/internal/models"
)

// Repository handles switch_sessions.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a session repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SaveSession upserts the session row.
func (r *Repository) SaveSession(ctx context.Context, s models.Session) error {
	cams, err := json.Marshal(s.Cameras)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx,
		`INSERT INTO switch_sessions (id, interview_id, mode, sensitivity, state, active_camera_id, cameras, created_at, stopped_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (id) DO UPDATE SET state = EXCLUDED.state, active_camera_id = EXCLUDED.active_camera_id,
		 cameras = EXCLUDED.cameras, stopped_at = EXCLUDED.stopped_at`,
		s.ID, s.InterviewID, string(s.Mode), string(s.Sensitivity), string(s.State), s.ActiveCameraID, cams, s.CreatedAt, s.StoppedAt)
	return err
}

// SaveMetrics stores the final aggregate of a stopped session.
func (r *Repository) SaveMetrics(ctx context.Context, sessionID uuid.UUID, m models.Metrics) error {
	payload, err := json.Marshal(m)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `UPDATE switch_sessions SET metrics = $2 WHERE id = $1`, sessionID, payload)
	return err
}

// GetByID loads a persisted session and its final metrics. Returns nil, nil, nil if not found.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Session, *models.Metrics, error) {
	var (
		s       models.Session
		mode    string
		sens    string
		state   string
		cams    []byte
		payload []byte
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, interview_id, mode, sensitivity, state, active_camera_id, cameras, created_at, stopped_at, metrics
		 FROM switch_sessions WHERE id = $1`, id).
		Scan(&s.ID, &s.InterviewID, &mode, &sens, &state, &s.ActiveCameraID, &cams, &s.CreatedAt, &s.StoppedAt, &payload)
	if err == pgx.ErrNoRows {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, err
	}
	s.Mode, s.Sensitivity, s.State = models.Mode(mode), models.Sensitivity(sens), models.SessionState(state)
	if len(cams) > 0 {
		if err := json.Unmarshal(cams, &s.Cameras); err != nil {
			return nil, nil, err
		}
	}
	var m *models.Metrics
	if len(payload) > 0 {
		m = &models.Metrics{}
		if err := json.Unmarshal(payload, m); err != nil {
			return nil, nil, err
		}
	}
	return &s, m, nil
}
