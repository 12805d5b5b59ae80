package telemetry

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aura-webinar/autoswitch/internal/models"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestNormalizeAudio_StampsMissingTime(t *testing.T) {
	s, err := NormalizeAudio(models.AudioSample{Level: 0.4, SpeakerID: " host ", SpeakerConfidence: 1}, t0)
	require.NoError(t, err)
	assert.Equal(t, t0, s.ObservedAt)
	assert.Equal(t, "host", s.SpeakerID)

	given := t0.Add(-time.Second)
	s, err = NormalizeAudio(models.AudioSample{Level: 0.4, ObservedAt: given}, t0)
	require.NoError(t, err)
	assert.Equal(t, given, s.ObservedAt)
}

func TestNormalize_ClampsSkewedClock(t *testing.T) {
	for name, observed := range map[string]time.Time{
		"behind": t0.Add(-time.Hour),
		"ahead":  t0.Add(MaxClockSkew + time.Millisecond),
	} {
		t.Run(name, func(t *testing.T) {
			a, err := NormalizeAudio(models.AudioSample{Level: 0.5, ObservedAt: observed}, t0)
			require.NoError(t, err)
			assert.Equal(t, t0, a.ObservedAt)

			e, err := NormalizeEngagement(models.EngagementSample{ParticipantID: "guest", Attention: 1, ObservedAt: observed}, t0)
			require.NoError(t, err)
			assert.Equal(t, t0, e.ObservedAt)

			in := NewIngestor(DefaultWindowConfig())
			in.RecordAudio(a)
			in.RecordEngagement(e)
			audio, engagement := in.Snapshot(t0.Add(100 * time.Millisecond))
			assert.Len(t, audio, 1)
			assert.Len(t, engagement, 1)
		})
	}
}

func TestNormalizeAudio_RejectsOutOfRange(t *testing.T) {
	for _, bad := range []models.AudioSample{
		{Level: -0.1},
		{Level: 1.01},
		{Level: math.NaN()},
		{Level: math.Inf(1)},
		{Level: 0.5, SpeakerConfidence: -1},
	} {
		_, err := NormalizeAudio(bad, t0)
		assert.ErrorIs(t, err, models.ErrInvalidTelemetry, "sample %+v", bad)
	}
}

func TestNormalizeEngagement(t *testing.T) {
	s, err := NormalizeEngagement(models.EngagementSample{ParticipantID: "guest", Attention: 1, Interaction: 0}, t0)
	require.NoError(t, err)
	assert.Equal(t, t0, s.ObservedAt)

	_, err = NormalizeEngagement(models.EngagementSample{Attention: 0.5}, t0)
	assert.ErrorIs(t, err, models.ErrInvalidTelemetry)
	_, err = NormalizeEngagement(models.EngagementSample{ParticipantID: "p", Attention: math.NaN()}, t0)
	assert.ErrorIs(t, err, models.ErrInvalidTelemetry)
	_, err = NormalizeEngagement(models.EngagementSample{ParticipantID: "p", Interaction: 2}, t0)
	assert.ErrorIs(t, err, models.ErrInvalidTelemetry)
}

func TestWindow_BoundedByCount(t *testing.T) {
	w := NewWindow(3, time.Minute, func(v time.Time) time.Time { return v })
	for i := 0; i < 5; i++ {
		w.Push(t0.Add(time.Duration(i) * time.Millisecond))
	}
	require.Equal(t, 3, w.Len())
	assert.Equal(t, t0.Add(2*time.Millisecond), w.Items()[0])
}

func TestWindow_BoundedByAge(t *testing.T) {
	w := NewWindow(10, time.Second, func(v time.Time) time.Time { return v })
	w.Push(t0)
	w.Push(t0.Add(500 * time.Millisecond))
	w.Push(t0.Add(1200 * time.Millisecond))

	w.Prune(t0.Add(1600 * time.Millisecond))
	assert.Equal(t, []time.Time{t0.Add(1200 * time.Millisecond)}, w.Items())
}

func TestIngestor_Snapshot(t *testing.T) {
	in := NewIngestor(WindowConfig{AudioSamples: 2, EngagementSamples: 2, MaxAge: time.Second})
	in.RecordAudio(models.AudioSample{Level: 0.1, ObservedAt: t0})
	in.RecordAudio(models.AudioSample{Level: 0.2, ObservedAt: t0.Add(100 * time.Millisecond)})
	in.RecordAudio(models.AudioSample{Level: 0.3, ObservedAt: t0.Add(200 * time.Millisecond)})
	in.RecordEngagement(models.EngagementSample{ParticipantID: "host", ObservedAt: t0})

	audio, engagement := in.Snapshot(t0.Add(1050 * time.Millisecond))
	require.Len(t, audio, 2)
	assert.Equal(t, 0.2, audio[0].Level)
	assert.Empty(t, engagement)

	in.Reset()
	audio, _ = in.Snapshot(t0)
	assert.Empty(t, audio)
}
