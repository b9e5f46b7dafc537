package timer

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerManagerPeriodic(t *testing.T) {
	m := NewTimerManagerWithResolution(5 * time.Millisecond)
	defer m.Stop()

	var n int32
	m.AddTimer(10*time.Millisecond, 10*time.Millisecond, func() { atomic.AddInt32(&n, 1) })

	assert.Eventually(t, func() bool { return atomic.LoadInt32(&n) >= 3 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 1, m.Len())
}

func TestTimerManagerRemove(t *testing.T) {
	m := NewTimerManagerWithResolution(5 * time.Millisecond)
	defer m.Stop()

	var n int32
	id := m.AddTimer(30*time.Millisecond, 0, func() { atomic.AddInt32(&n, 1) })
	m.RemoveTimer(id)
	m.RemoveTimer(id)
	m.RemoveTimer(12345)

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&n))
	assert.Equal(t, 0, m.Len())
}

func TestCountdownFires(t *testing.T) {
	got := make(chan uint64, 1)
	c, err := StartCountdown(KindReadyCheck, 7, 10*time.Millisecond, func(k Kind, token uint64) {
		assert.Equal(t, KindReadyCheck, k)
		got <- token
	})
	require.NoError(t, err)
	assert.Equal(t, KindReadyCheck, c.Kind)

	select {
	case token := <-got:
		assert.Equal(t, uint64(7), token)
	case <-time.After(time.Second):
		t.Fatal("countdown did not fire")
	}

	// cancelling after fire is a no-op
	c.Cancel()
	c.Cancel()
}

func TestCountdownCancel(t *testing.T) {
	var fired int32
	c, err := StartCountdown(KindGameStart, 1, 30*time.Millisecond, func(Kind, uint64) {
		atomic.AddInt32(&fired, 1)
	})
	require.NoError(t, err)
	c.Cancel()
	c.Cancel()

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&fired))

	var nilCountdown *Countdown
	nilCountdown.Cancel()
	assert.Zero(t, nilCountdown.Remaining(time.Now()))
}
