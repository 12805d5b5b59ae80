package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFake_AfterFuncFiresInDeadlineOrder(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	var order []string
	f.AfterFunc(2*time.Second, func() { order = append(order, "b") })
	f.AfterFunc(time.Second, func() { order = append(order, "a") })
	f.AfterFunc(5*time.Second, func() { order = append(order, "c") })

	f.Advance(3 * time.Second)
	assert.Equal(t, []string{"a", "b"}, order)
	assert.Equal(t, start.Add(3*time.Second), f.Now())
	assert.Equal(t, 1, f.Pending())
}

func TestFake_CallbackSeesDeadlineTime(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	f := NewFake(start)

	var seen time.Time
	f.AfterFunc(1500*time.Millisecond, func() { seen = f.Now() })
	f.Advance(10 * time.Second)
	assert.Equal(t, start.Add(1500*time.Millisecond), seen)
}

func TestFake_StopPreventsFiring(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	fired := false
	tm := f.AfterFunc(time.Second, func() { fired = true })

	require.True(t, tm.Stop())
	assert.False(t, tm.Stop())
	f.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestFake_CallbackCanReschedule(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	count := 0
	var arm func()
	arm = func() {
		f.AfterFunc(time.Second, func() {
			count++
			arm()
		})
	}
	arm()
	f.Advance(3500 * time.Millisecond)
	assert.Equal(t, 3, count)
}

func TestFake_TickerDropsWhenNotDrained(t *testing.T) {
	f := NewFake(time.Unix(0, 0))
	tk := f.NewTicker(time.Second)
	defer tk.Stop()

	f.Advance(3 * time.Second)
	select {
	case <-tk.C():
	default:
		t.Fatal("expected a buffered tick")
	}
	select {
	case <-tk.C():
		t.Fatal("expected extra ticks to be dropped")
	default:
	}
}
