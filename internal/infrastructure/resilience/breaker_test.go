package resilience

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errRuntime = errors.New("docker daemon unreachable")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(settings Settings) (*Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	b := New("docker", settings)
	b.now = clock.Now
	b.expiry = clock.Now().Add(b.settings.Interval)
	return b, clock
}

func call(b *Breaker, err error) error {
	return b.Do(context.Background(), func(context.Context) error { return err })
}

func TestBreakerStateTransitions(t *testing.T) {
	tests := []struct {
		name          string
		settings      Settings
		results       []error
		expectedState State
	}{
		{
			name:          "stays closed on successes",
			results:       []error{nil, nil, nil},
			expectedState: StateClosed,
		},
		{
			name:          "default trips after five failures",
			results:       []error{errRuntime, errRuntime, errRuntime, errRuntime, errRuntime},
			expectedState: StateOpen,
		},
		{
			name:          "success resets consecutive failures",
			results:       []error{errRuntime, errRuntime, errRuntime, errRuntime, nil, errRuntime},
			expectedState: StateClosed,
		},
		{
			name: "custom threshold",
			settings: Settings{
				ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 2 },
			},
			results:       []error{errRuntime, errRuntime},
			expectedState: StateOpen,
		},
		{
			name:          "cancellation is not a failure",
			results:       []error{context.Canceled, context.Canceled, context.Canceled, context.Canceled, context.Canceled, context.Canceled},
			expectedState: StateClosed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, _ := newTestBreaker(tt.settings)
			for _, err := range tt.results {
				_ = call(b, err)
			}
			assert.Equal(t, tt.expectedState, b.State())
		})
	}
}

func TestOpenBreakerRejectsWithoutCalling(t *testing.T) {
	b, _ := newTestBreaker(Settings{ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 }})
	require.ErrorIs(t, call(b, errRuntime), errRuntime)

	called := false
	err := b.Do(context.Background(), func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.False(t, called)
}

func TestHalfOpenRecovery(t *testing.T) {
	var transitions []string
	b, clock := newTestBreaker(Settings{
		Timeout:     time.Second,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
		OnStateChange: func(_ string, from, to State) {
			transitions = append(transitions, from.String()+"->"+to.String())
		},
	})

	_ = call(b, errRuntime)
	require.Equal(t, StateOpen, b.State())

	clock.Advance(2 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	require.NoError(t, call(b, nil))
	assert.Equal(t, StateClosed, b.State())
	assert.Equal(t, []string{"closed->open", "open->half-open", "half-open->closed"}, transitions)
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b, clock := newTestBreaker(Settings{
		Timeout:     time.Second,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})

	_ = call(b, errRuntime)
	clock.Advance(2 * time.Second)
	require.Equal(t, StateHalfOpen, b.State())

	_ = call(b, errRuntime)
	assert.Equal(t, StateOpen, b.State())
}

func TestHalfOpenLimitsTrialCalls(t *testing.T) {
	b, clock := newTestBreaker(Settings{
		Timeout:     time.Second,
		ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 },
	})
	_ = call(b, errRuntime)
	clock.Advance(2 * time.Second)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(context.Background(), func(context.Context) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	assert.ErrorIs(t, call(b, nil), ErrTooManyRequests)
	close(release)
	assert.NoError(t, <-done)
}

func TestIntervalClearsCounts(t *testing.T) {
	b, clock := newTestBreaker(Settings{Interval: time.Minute})
	_ = call(b, errRuntime)
	_ = call(b, errRuntime)
	require.Equal(t, uint32(2), b.Counts().ConsecutiveFailures)

	clock.Advance(2 * time.Minute)
	_ = b.State()
	assert.Equal(t, Counts{}, b.Counts())
}

func TestPanicCountsAsFailure(t *testing.T) {
	b, _ := newTestBreaker(Settings{ReadyToTrip: func(c Counts) bool { return c.ConsecutiveFailures >= 1 }})

	assert.Panics(t, func() {
		_ = b.Do(context.Background(), func(context.Context) error { panic("boom") })
	})
	assert.Equal(t, StateOpen, b.State())
}
