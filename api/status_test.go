package api_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/kbroker/api"
)

func TestStatusOfMapsErrors(t *testing.T) {
	assert.Equal(t, api.StatusSuccess, api.StatusOf(nil))
	assert.Equal(t, api.StatusInvalidHandle, api.StatusOf(api.ErrInvalidHandle))
	assert.Equal(t, api.StatusAccessDenied, api.StatusOf(api.ErrAccessDenied.WithContext("h", 4)))
	assert.Equal(t, api.StatusPending, api.StatusOf(api.ErrPending))
	assert.Equal(t, api.StatusInternalError, api.StatusOf(errors.New("boom")))
	assert.Equal(t, api.StatusSemaphoreLimit, api.StatusOf(fmt.Errorf("wrapped: %w", api.ErrSemaphoreLimit)))
}

func TestErrorOfInvertsStatusOf(t *testing.T) {
	for _, err := range []*api.Error{
		api.ErrInvalidHandle, api.ErrAccessDenied, api.ErrInvalidParameter,
		api.ErrNameNotFound, api.ErrMutantNotOwned, api.ErrInvalidCID,
	} {
		require.ErrorIs(t, api.ErrorOf(api.StatusOf(err)), err)
	}
	assert.NoError(t, api.ErrorOf(api.StatusSuccess))
	assert.NoError(t, api.ErrorOf(api.StatusTimeout))
	assert.NoError(t, api.ErrorOf(api.StatusPending))
	assert.Equal(t, api.ErrCodeInternal, api.CodeOf(api.ErrorOf(0xC0001234)))
}

func TestWithContextLeavesSentinelUntouched(t *testing.T) {
	decorated := api.ErrInvalidParameter.WithContext("count", 65)
	assert.ErrorIs(t, decorated, api.ErrInvalidParameter)
	assert.NotErrorIs(t, decorated, api.ErrInvalidHandle)
	assert.Empty(t, api.ErrInvalidParameter.Context)
	assert.Contains(t, decorated.Error(), "count")
}

func TestTimeoutWireForm(t *testing.T) {
	assert.Equal(t, api.InfiniteTimeout, api.TimeoutFromMillis(-1))
	assert.Equal(t, 250*time.Millisecond, api.TimeoutFromMillis(250))
	assert.Equal(t, int64(-1), api.MillisFromTimeout(api.InfiniteTimeout))
	assert.Equal(t, int64(1500), api.MillisFromTimeout(1500*time.Millisecond))
}
