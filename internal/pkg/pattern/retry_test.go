package pattern

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRetry_Table(t *testing.T) {
	errBoom := errors.New("boom")
	fast := []RetryOption{WithInitialDelay(time.Millisecond), WithMaxDelay(2 * time.Millisecond), WithJitter(0)}

	cases := []struct {
		name      string
		failUntil int
		fnErr     error
		opts      []RetryOption
		wantCalls int
		wantErr   error
	}{
		{name: "succeeds_after_retries", failUntil: 3, fnErr: errBoom, opts: append([]RetryOption{WithMaxAttempts(5)}, fast...), wantCalls: 3},
		{name: "exhausts_attempts", failUntil: 100, fnErr: errBoom, opts: append([]RetryOption{WithMaxAttempts(2)}, fast...), wantCalls: 2, wantErr: errBoom},
		{name: "should_retry_rejects", failUntil: 100, fnErr: errBoom, opts: append([]RetryOption{WithShouldRetry(func(error) bool { return false })}, fast...), wantCalls: 1, wantErr: errBoom},
		{name: "permanent_stops", failUntil: 100, fnErr: Permanent(errBoom), opts: append([]RetryOption{WithInfiniteAttempts()}, fast...), wantCalls: 1, wantErr: errBoom},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			calls := 0
			err := Retry(context.Background(), func(attempt int) error {
				calls++
				require.Equal(t, calls, attempt)
				if calls < tc.failUntil {
					return tc.fnErr
				}
				return nil
			}, tc.opts...)
			require.Equal(t, tc.wantCalls, calls)
			if tc.wantErr == nil {
				require.NoError(t, err)
				return
			}
			require.Equal(t, tc.wantErr, err)
		})
	}
}

func TestRetry_ContextCanceled(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := Retry(ctx, func(int) error { return errors.New("never") }, WithInfiniteAttempts(), WithInitialDelay(5*time.Millisecond))
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestPermanent_Nil(t *testing.T) {
	require.NoError(t, Permanent(nil))
}
