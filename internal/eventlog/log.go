// Package eventlog is the append-only, per-session audit trail of decisions,
// executed switches and lifecycle events.
package eventlog

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aura-webinar/autoswitch/internal/models"
)

const (
	// DefaultLimit bounds a query that does not ask for a limit.
	DefaultLimit = 50
	// MaxLimit is the largest page a query may return.
	MaxLimit = 500
	// DefaultRetention is the in-memory ring size.
	DefaultRetention = 200
)

// Kind classifies a log entry.
type Kind string

const (
	KindDecision Kind = "decision"
	KindSwitch   Kind = "switch"
	KindSession  Kind = "session"
)

// Session entry notes.
const (
	NoteStarted      = "started"
	NoteReconfigured = "reconfigured"
	NoteStopped      = "stopped"
)

// Entry is one immutable log line.
type Entry struct {
	Seq       uint64                 `json:"seq"`
	ID        uuid.UUID              `json:"id"`
	SessionID uuid.UUID              `json:"session_id"`
	Kind      Kind                   `json:"kind"`
	At        time.Time              `json:"at"`
	Decision  *models.SwitchDecision `json:"decision,omitempty"`
	Record    *models.SwitchRecord   `json:"record,omitempty"`
	Note      string                 `json:"note,omitempty"`
	CameraID  string                 `json:"camera_id,omitempty"`
}

// Sink receives every appended entry, e.g. for durable storage. Enqueue must not block.
type Sink interface {
	Enqueue(Entry)
}

// Log is a bounded ring of entries for one session. Appends come from the
// session loop; queries may run concurrently.
type Log struct {
	mu        sync.RWMutex
	sessionID uuid.UUID
	ring      []Entry
	head      int // index of the oldest entry
	size      int
	seq       uint64
	lastAt    time.Time
	switches  int
	sink      Sink
}

// New returns a log holding at most retention entries in memory. sink may be nil.
func New(sessionID uuid.UUID, retention int, sink Sink) *Log {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Log{sessionID: sessionID, ring: make([]Entry, retention), sink: sink}
}

// AppendDecision records an evaluation, accepted or not.
func (l *Log) AppendDecision(d models.SwitchDecision) Entry {
	return l.append(Entry{Kind: KindDecision, At: d.EvaluatedAt, Decision: &d, CameraID: d.TargetCameraID})
}

// AppendSwitch records an executed switch.
func (l *Log) AppendSwitch(r models.SwitchRecord) Entry {
	return l.append(Entry{Kind: KindSwitch, At: r.ExecutedAt, Record: &r, CameraID: r.ToCameraID})
}

// AppendSession records a lifecycle event; cameraID is the active camera afterwards.
func (l *Log) AppendSession(note, cameraID string, at time.Time) Entry {
	return l.append(Entry{Kind: KindSession, At: at, Note: note, CameraID: cameraID})
}

func (l *Log) append(e Entry) Entry {
	l.mu.Lock()
	l.seq++
	e.Seq = l.seq
	e.ID = uuid.New()
	e.SessionID = l.sessionID
	// timestamps never run backwards
	if e.At.Before(l.lastAt) {
		e.At = l.lastAt
	}
	l.lastAt = e.At
	if e.Kind == KindSwitch {
		l.switches++
	}

	idx := (l.head + l.size) % len(l.ring)
	l.ring[idx] = e
	if l.size < len(l.ring) {
		l.size++
	} else {
		l.head = (l.head + 1) % len(l.ring)
	}
	sink := l.sink
	l.mu.Unlock()

	if sink != nil {
		sink.Enqueue(e)
	}
	return e
}

// Query returns entries at or after since, newest first. A zero since means all.
func (l *Log) Query(since time.Time, limit int) []Entry {
	limit = ClampLimit(limit)
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]Entry, 0, min(limit, l.size))
	for i := l.size - 1; i >= 0 && len(out) < limit; i-- {
		e := l.ring[(l.head+i)%len(l.ring)]
		if e.At.Before(since) {
			break
		}
		out = append(out, e)
	}
	return out
}

// Covers reports whether the ring still holds every entry at or after since.
func (l *Log) Covers(since time.Time) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.seq <= uint64(l.size) {
		return true
	}
	return !since.Before(l.ring[l.head].At)
}

// SwitchCount is the number of switch entries ever appended, including evicted ones.
func (l *Log) SwitchCount() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.switches
}

// Len is the number of entries currently held in memory.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.size
}

// All returns the retained entries oldest first.
func (l *Log) All() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Entry, l.size)
	for i := range out {
		out[i] = l.ring[(l.head+i)%len(l.ring)]
	}
	return out
}

// ClampLimit applies the default and maximum page size.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
