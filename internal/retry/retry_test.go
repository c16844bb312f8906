package retry

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper captures requested delays instead of sleeping.
type recordingSleeper struct {
	delays []time.Duration
}

func (s *recordingSleeper) Sleep(d time.Duration) {
	s.delays = append(s.delays, d)
}

func deterministic(p Policy, s *recordingSleeper) Policy {
	p.Sleep = s.Sleep
	if p.Rand == nil {
		p.Rand = func() float64 { return 0.5 } // midpoint: zero net jitter
	}
	return p
}

func TestDo_SuccessOnFirstAttempt(t *testing.T) {
	sleeper := &recordingSleeper{}
	calls := 0

	err := Do(func() error {
		calls++
		return nil
	}, deterministic(Policy{Attempts: 3}, sleeper), nil)

	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.delays)
}

func TestDo_SuccessAfterFailures(t *testing.T) {
	sleeper := &recordingSleeper{}
	calls := 0

	err := Do(func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, deterministic(Policy{Attempts: 3}, sleeper), nil)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Len(t, sleeper.delays, 2)
}

func TestDo_AllAttemptsFail(t *testing.T) {
	sleeper := &recordingSleeper{}
	sentinel := errors.New("always fails")
	calls := 0

	err := Do(func() error {
		calls++
		return sentinel
	}, deterministic(Policy{Attempts: 4}, sleeper), nil)

	// error identity preserved, not wrapped
	assert.Same(t, sentinel, err)
	assert.Equal(t, 4, calls)

	// no sleep after the final failure
	assert.Len(t, sleeper.delays, 3)
}

func TestDo_ZeroJitterIsDeterministic(t *testing.T) {
	sleeper := &recordingSleeper{}

	_ = Do(func() error {
		return errors.New("fail")
	}, Policy{
		Attempts:       3,
		BaseDelay:      100 * time.Millisecond,
		BackoffFactor:  2.0,
		MaxDelay:       10 * time.Second,
		JitterFraction: 0,
		Sleep:          sleeper.Sleep,
	}, nil)

	require.Len(t, sleeper.delays, 2)
	assert.Equal(t, 100*time.Millisecond, sleeper.delays[0])
	assert.Equal(t, 200*time.Millisecond, sleeper.delays[1])
}

func TestDo_MaxDelayCapsBackoff(t *testing.T) {
	sleeper := &recordingSleeper{}

	_ = Do(func() error {
		return errors.New("fail")
	}, Policy{
		Attempts:      5,
		BaseDelay:     time.Second,
		BackoffFactor: 10.0,
		MaxDelay:      2 * time.Second,
		Sleep:         sleeper.Sleep,
		Rand:          func() float64 { return 0.5 },
	}, nil)

	require.Len(t, sleeper.delays, 4)
	for _, d := range sleeper.delays {
		assert.LessOrEqual(t, d, 2*time.Second)
	}
}

func TestDo_JitterStaysWithinBounds(t *testing.T) {
	for _, r := range []float64{0, 0.25, 0.5, 0.75, 0.999} {
		sleeper := &recordingSleeper{}

		_ = Do(func() error {
			return errors.New("fail")
		}, Policy{
			Attempts:       2,
			BaseDelay:      100 * time.Millisecond,
			BackoffFactor:  2.0,
			MaxDelay:       time.Second,
			JitterFraction: 0.4,
			Sleep:          sleeper.Sleep,
			Rand:           func() float64 { return r },
		}, nil)

		require.Len(t, sleeper.delays, 1)
		assert.GreaterOrEqual(t, sleeper.delays[0], 60*time.Millisecond)
		assert.LessOrEqual(t, sleeper.delays[0], 140*time.Millisecond)
	}
}

func TestDo_ShouldRetryShortCircuits(t *testing.T) {
	sleeper := &recordingSleeper{}
	permanent := errors.New("not found")
	calls := 0

	err := Do(func() error {
		calls++
		return permanent
	}, deterministic(Policy{Attempts: 5}, sleeper), func(err error) bool {
		return !errors.Is(err, permanent)
	})

	assert.Same(t, permanent, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, sleeper.delays)
}

func TestDoValue_ReturnsResult(t *testing.T) {
	sleeper := &recordingSleeper{}
	calls := 0

	result, err := DoValue(func() (string, error) {
		calls++
		if calls < 2 {
			return "", errors.New("transient")
		}
		return "secret-material", nil
	}, deterministic(Policy{Attempts: 3}, sleeper), nil)

	require.NoError(t, err)
	assert.Equal(t, "secret-material", result)
	assert.Equal(t, 2, calls)
}
