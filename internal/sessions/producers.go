package sessions

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aura-webinar/autoswitch/internal/cameras"
	"github.com/aura-webinar/autoswitch/internal/models"
)

// AudioSource yields the next audio observation on each tick. ok=false skips the tick.
type AudioSource interface {
	NextAudio(now time.Time) (sample models.AudioSample, ok bool)
}

// EngagementSource yields the next engagement observation on each tick.
type EngagementSource interface {
	NextEngagement(now time.Time) (sample models.EngagementSample, ok bool)
}

// producer polls one source on the session clock and submits to the loop.
type producer struct {
	kind     string
	interval time.Duration
	next     func(ctx context.Context, s *Session, now time.Time) error
}

func audioProducer(src AudioSource, interval time.Duration) producer {
	return producer{kind: "audio", interval: interval, next: func(ctx context.Context, s *Session, now time.Time) error {
		sample, ok := src.NextAudio(now)
		if !ok {
			return nil
		}
		_, err := s.SubmitAudio(ctx, sample)
		return err
	}}
}

func engagementProducer(src EngagementSource, interval time.Duration) producer {
	return producer{kind: "engagement", interval: interval, next: func(ctx context.Context, s *Session, now time.Time) error {
		sample, ok := src.NextEngagement(now)
		if !ok {
			return nil
		}
		_, err := s.SubmitEngagement(ctx, sample)
		return err
	}}
}

func (p producer) run(ctx context.Context, s *Session) error {
	ticker := s.clock.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C():
			err := p.next(ctx, s, now)
			switch {
			case err == nil:
			case errors.Is(err, models.ErrInvalidTelemetry):
				s.logger.Warn("producer sample rejected", zap.String("kind", p.kind), zap.Error(err))
			case errors.Is(err, models.ErrSessionNotFound), errors.Is(err, context.Canceled):
				return nil
			default:
				return err
			}
		}
	}
}

// ScriptedAudio replays fixed samples in order, one per tick.
type ScriptedAudio struct {
	mu      sync.Mutex
	samples []models.AudioSample
}

// NewScriptedAudio returns a source for the given samples.
func NewScriptedAudio(samples ...models.AudioSample) *ScriptedAudio {
	return &ScriptedAudio{samples: samples}
}

// NextAudio implements AudioSource.
func (s *ScriptedAudio) NextAudio(now time.Time) (models.AudioSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return models.AudioSample{}, false
	}
	next := s.samples[0]
	s.samples = s.samples[1:]
	if next.ObservedAt.IsZero() {
		next.ObservedAt = now
	}
	return next, true
}

// ScriptedEngagement replays fixed samples in order, one per tick.
type ScriptedEngagement struct {
	mu      sync.Mutex
	samples []models.EngagementSample
}

// NewScriptedEngagement returns a source for the given samples.
func NewScriptedEngagement(samples ...models.EngagementSample) *ScriptedEngagement {
	return &ScriptedEngagement{samples: samples}
}

// NextEngagement implements EngagementSource.
func (s *ScriptedEngagement) NextEngagement(now time.Time) (models.EngagementSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.samples) == 0 {
		return models.EngagementSample{}, false
	}
	next := s.samples[0]
	s.samples = s.samples[1:]
	if next.ObservedAt.IsZero() {
		next.ObservedAt = now
	}
	return next, true
}

// Simulator produces plausible interview telemetry for demos: one speaker at
// a time with occasional turn changes and pauses.
type Simulator struct {
	mu      sync.Mutex
	rng     *rand.Rand
	cams    func() *cameras.Set
	speaker string
	pause   int
}

// NewSimulator seeds a simulator over the session's cameras.
func NewSimulator(seed uint64, cams func() *cameras.Set) *Simulator {
	return &Simulator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)), cams: cams}
}

// speakers lists non-wide cameras; the wide shot never "speaks".
func (s *Simulator) speakers() []models.Camera {
	var out []models.Camera
	for _, c := range s.cams().All() {
		if c.Position != models.PositionWide {
			out = append(out, c)
		}
	}
	return out
}

func (s *Simulator) pick(list []models.Camera) string {
	if len(list) == 0 {
		return ""
	}
	return list[s.rng.IntN(len(list))].ID
}

// NextAudio implements AudioSource.
func (s *Simulator) NextAudio(now time.Time) (models.AudioSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	list := s.speakers()
	if s.speaker == "" {
		s.speaker = s.pick(list)
	}
	if s.pause > 0 {
		s.pause--
		return models.AudioSample{Level: 0.02 * s.rng.Float64(), SpeakerConfidence: 0.3, ObservedAt: now}, true
	}
	switch r := s.rng.Float64(); {
	case r < 0.08:
		s.speaker = s.pick(list)
	case r < 0.10:
		s.pause = 10 + s.rng.IntN(30)
	}
	return models.AudioSample{
		Level:             0.4 + 0.5*s.rng.Float64(),
		SpeakerID:         s.speaker,
		SpeakerConfidence: 0.7 + 0.3*s.rng.Float64(),
		ObservedAt:        now,
	}, true
}

// NextEngagement implements EngagementSource.
func (s *Simulator) NextEngagement(now time.Time) (models.EngagementSample, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.pick(s.speakers())
	if id == "" {
		return models.EngagementSample{}, false
	}
	attention := 0.3 + 0.4*s.rng.Float64()
	if id == s.speaker {
		attention += 0.2
	}
	return models.EngagementSample{
		ParticipantID: id,
		Attention:     attention,
		Interaction:   s.rng.Float64(),
		ObservedAt:    now,
	}, true
}
