package circuitbreaker

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")
var errExpected = errors.New("expected")

func TestBreaker_TripsAfterConsecutiveFailures(t *testing.T) {
	b := New[int](Settings{Name: "test", ConsecutiveFailures: 2, OpenTimeout: time.Minute})

	for i := 0; i < 2; i++ {
		_, err := b.Execute(func() (int, error) { return 0, errBoom })
		require.ErrorIs(t, err, errBoom)
	}

	called := false
	_, err := b.Execute(func() (int, error) {
		called = true
		return 1, nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called)
	assert.Equal(t, "open", b.State())
}

func TestBreaker_IgnoredErrorsDoNotTrip(t *testing.T) {
	b := New[int](Settings{
		Name:                "test",
		ConsecutiveFailures: 1,
		Ignore:              func(err error) bool { return errors.Is(err, errExpected) },
	})

	for i := 0; i < 3; i++ {
		_, err := b.Execute(func() (int, error) { return 0, errExpected })
		require.ErrorIs(t, err, errExpected)
	}

	v, err := b.Execute(func() (int, error) { return 7, nil })
	require.NoError(t, err)
	assert.Equal(t, 7, v)
	assert.Equal(t, "closed", b.State())
}
