package apperr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKindOf_UnwrapsWrappedErrors(t *testing.T) {
	err := fmt.Errorf("assign task: %w", InvalidTransition("task %s is %s", "t1", "completed"))
	require.Equal(t, KindInvalidTransition, KindOf(err))
	require.True(t, Is(err, KindInvalidTransition))
	require.False(t, Is(err, KindBusy))
}

func TestKindOf_DeadlineIsBusy(t *testing.T) {
	require.Equal(t, KindBusy, KindOf(context.DeadlineExceeded))
	require.Equal(t, KindInternal, KindOf(errors.New("boom")))
	require.Equal(t, Kind(""), KindOf(nil))
}

func TestRetryable_OnlyBusy(t *testing.T) {
	require.True(t, Busy("room r1 locked").Retryable())
	require.False(t, Validation("bad").Retryable())
	require.False(t, Integrity("diverged").Retryable())
}
