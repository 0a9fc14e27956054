package chain

import (
	"context"
	"errors"
	"testing"
	"time"

	"carma/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestPoller_FinalizedOnThirdPoll(t *testing.T) {
	ctx := context.Background()
	c := new(mockChainClient)
	c.On("GetBlockItemStatus", ctx, "tx").Return(status(models.TxStatusReceived), nil).Twice()
	c.On("GetBlockItemStatus", ctx, "tx").Return(status(models.TxStatusFinalized), nil).Once()

	ok, err := NewPoller(c, time.Millisecond, 60, nil).WaitForFinalization(ctx, "tx")
	require.NoError(t, err)
	assert.True(t, ok)
	c.AssertNumberOfCalls(t, "GetBlockItemStatus", 3)
}

func TestPoller_CommittedIsNotTerminal(t *testing.T) {
	ctx := context.Background()
	c := new(mockChainClient)
	c.On("GetBlockItemStatus", ctx, "tx").Return(status(models.TxStatusCommitted), nil).Once()
	c.On("GetBlockItemStatus", ctx, "tx").Return(status(models.TxStatusFinalized), nil).Once()

	ok, err := NewPoller(c, time.Millisecond, 5, nil).WaitForFinalization(ctx, "tx")
	require.NoError(t, err)
	assert.True(t, ok)
	c.AssertNumberOfCalls(t, "GetBlockItemStatus", 2)
}

func TestPoller_Exhausted(t *testing.T) {
	ctx := context.Background()
	c := new(mockChainClient)
	c.On("GetBlockItemStatus", ctx, "tx").Return(status(models.TxStatusReceived), nil)

	ok, err := NewPoller(c, time.Millisecond, 60, nil).WaitForFinalization(ctx, "tx")
	require.NoError(t, err)
	assert.False(t, ok)
	c.AssertNumberOfCalls(t, "GetBlockItemStatus", 60)
}

func TestPoller_ErrorsCountAsAttempts(t *testing.T) {
	ctx := context.Background()
	c := new(mockChainClient)
	c.On("GetBlockItemStatus", ctx, "tx").Return(nil, errors.New("unavailable")).Twice()
	c.On("GetBlockItemStatus", ctx, "tx").Return(status(models.TxStatusFinalized), nil).Once()

	ok, err := NewPoller(c, time.Millisecond, 3, nil).WaitForFinalization(ctx, "tx")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestPoller_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	c := new(mockChainClient)
	c.On("GetBlockItemStatus", mock.Anything, "tx").Return(status(models.TxStatusReceived), nil).Run(func(mock.Arguments) {
		cancel()
	})

	start := time.Now()
	ok, err := NewPoller(c, time.Hour, 60, nil).WaitForFinalization(ctx, "tx")
	assert.False(t, ok)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
	c.AssertNumberOfCalls(t, "GetBlockItemStatus", 1)
}
