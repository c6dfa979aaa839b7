package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var errConflict = errors.New("conflict")

func TestConflictRetrier_RetriesUntilSuccess(t *testing.T) {
	var retries []int
	r := ConflictRetrier(5, func(err error) bool { return errors.Is(err, errConflict) },
		WithInitialDelay(0),
		WithOnRetry(func(attempt int, _ error, _ time.Duration) { retries = append(retries, attempt) }),
	)

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errConflict
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, retries)
}

func TestConflictRetrier_ExhaustedKeepsCause(t *testing.T) {
	r := ConflictRetrier(3, func(err error) bool { return errors.Is(err, errConflict) }, WithInitialDelay(0))

	calls := 0
	err := r.Do(context.Background(), func(context.Context) error {
		calls++
		return errConflict
	})

	var exhausted *ExhaustedError
	assert.ErrorAs(t, err, &exhausted)
	assert.Equal(t, 3, exhausted.Attempts)
	assert.ErrorIs(t, err, errConflict)
	assert.Equal(t, 3, calls)
}

func TestRetrier_StopsOnNonRetryable(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return boom
	}, WithMaxAttempts(4), WithInitialDelay(0))

	assert.Equal(t, boom, err)
	assert.Equal(t, 1, calls)
}

func TestRetrier_PermanentUnwraps(t *testing.T) {
	boom := errors.New("boom")
	err := Do(context.Background(), func(context.Context) error {
		return Permanent(boom)
	}, WithRetryIf(func(error) bool { return true }))

	assert.Equal(t, boom, err)
}

func TestRetrier_HonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Do(ctx, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDoWithData(t *testing.T) {
	calls := 0
	got, err := DoWithData(context.Background(), New(WithInitialDelay(0)), func(context.Context) (int, error) {
		calls++
		if calls == 1 {
			return 0, Retryable(errors.New("transient"))
		}
		return 42, nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 42, got)
}
