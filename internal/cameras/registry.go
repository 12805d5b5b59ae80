// Package cameras holds the set of cameras registered for one session.
package cameras

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"

	"github.com/aura-webinar/autoswitch/internal/models"
)

// Set is an immutable, priority-ordered snapshot of cameras.
type Set struct {
	ordered []models.Camera
	byID    map[string]int
}

// NewSet validates cams and builds a snapshot. A duplicate or empty id, an
// unknown position or an out-of-range threshold fails the whole set.
func NewSet(cams []models.Camera) (*Set, error) {
	if len(cams) == 0 {
		return nil, fmt.Errorf("%w: at least one camera is required", models.ErrInvalidConfiguration)
	}
	s := &Set{ordered: make([]models.Camera, 0, len(cams)), byID: make(map[string]int, len(cams))}
	seen := make(map[string]struct{}, len(cams))
	for _, c := range cams {
		c.ID = strings.TrimSpace(c.ID)
		if c.ID == "" {
			return nil, fmt.Errorf("%w: camera_id is required", models.ErrInvalidConfiguration)
		}
		if _, dup := seen[c.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate camera_id %q", models.ErrInvalidConfiguration, c.ID)
		}
		seen[c.ID] = struct{}{}
		if c.Position == "" {
			c.Position = models.PositionOther
		}
		if !c.Position.Valid() {
			return nil, fmt.Errorf("%w: camera %q has unknown position %q", models.ErrInvalidConfiguration, c.ID, c.Position)
		}
		if !unit(c.AudioThreshold) || !unit(c.EngagementThreshold) {
			return nil, fmt.Errorf("%w: camera %q thresholds must be within [0,1]", models.ErrInvalidConfiguration, c.ID)
		}
		if c.Name == "" {
			c.Name = c.ID
		}
		c.Participants = append([]string(nil), c.Participants...)
		s.ordered = append(s.ordered, c)
	}
	sort.Slice(s.ordered, func(i, j int) bool {
		a, b := s.ordered[i], s.ordered[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		return a.ID < b.ID
	})
	for i, c := range s.ordered {
		s.byID[c.ID] = i
	}
	return s, nil
}

func unit(v float64) bool {
	return !math.IsNaN(v) && v >= 0 && v <= 1
}

// Get returns the camera with the given id.
func (s *Set) Get(id string) (models.Camera, bool) {
	i, ok := s.byID[id]
	if !ok {
		return models.Camera{}, false
	}
	return s.ordered[i], true
}

// Has reports whether id is registered.
func (s *Set) Has(id string) bool {
	_, ok := s.byID[id]
	return ok
}

// All returns the cameras ordered by priority (lowest number first).
// The returned slice is a copy.
func (s *Set) All() []models.Camera {
	out := make([]models.Camera, len(s.ordered))
	copy(out, s.ordered)
	return out
}

// Len is the number of cameras.
func (s *Set) Len() int { return len(s.ordered) }

// Default is the camera with the smallest priority number.
func (s *Set) Default() models.Camera { return s.ordered[0] }

// Wide returns the wide camera with the smallest priority number, or the
// default camera when none is positioned wide.
func (s *Set) Wide() models.Camera {
	for _, c := range s.ordered {
		if c.Position == models.PositionWide {
			return c
		}
	}
	return s.ordered[0]
}

// PriorityRange returns the smallest and largest priority numbers.
func (s *Set) PriorityRange() (lo, hi int) {
	return s.ordered[0].Priority, s.ordered[len(s.ordered)-1].Priority
}

// Registry publishes the current Set. Readers never lock; Replace swaps the
// whole snapshot so a reader sees either the old or the new set.
type Registry struct {
	cur atomic.Pointer[Set]
}

// NewRegistry builds a registry holding cams.
func NewRegistry(cams []models.Camera) (*Registry, error) {
	s, err := NewSet(cams)
	if err != nil {
		return nil, err
	}
	r := &Registry{}
	r.cur.Store(s)
	return r, nil
}

// Snapshot returns the current set.
func (r *Registry) Snapshot() *Set { return r.cur.Load() }

// Replace validates cams and swaps them in. On error the registry is unchanged.
func (r *Registry) Replace(cams []models.Camera) (*Set, error) {
	s, err := NewSet(cams)
	if err != nil {
		return nil, err
	}
	r.cur.Store(s)
	return s, nil
}
