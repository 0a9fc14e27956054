package chain

import (
	"context"
	"errors"
	"testing"

	"carma/internal/config"
	"carma/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testChainConfig() config.ChainConfig {
	return config.ChainConfig{
		ContractIndex: models.DefaultContractIndex,
		ContractName:  models.DefaultContractName,
		MaxEnergy:     models.DefaultMaxEnergy,
	}
}

func TestAmount(t *testing.T) {
	amount, err := Amount(89)
	require.NoError(t, err)
	assert.Equal(t, uint64(89_000_000), amount)

	amount, err = Amount(0.1 + 0.2)
	require.NoError(t, err)
	assert.Equal(t, uint64(300_000), amount)

	_, err = Amount(-1)
	assert.Error(t, err)

	_, err = Amount(1e14)
	assert.Error(t, err)
}

func TestInvoker_VerifyAddress(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		w := new(mockWallet)
		w.On("SignAndSendTransaction", ctx, models.TransactionRequest{
			Account:         testAccount,
			TransactionType: models.AccountTransactionUpdate,
			Payload: models.UpdateContractPayload{
				Amount:            267_000_000,
				Address:           models.ContractAddress{Index: 12282, Subindex: 0},
				ReceiveName:       "concordiun.verify_address",
				MaxContractEnergy: 30000,
			},
		}).Return("deadbeef", nil).Once()

		inv := NewInvoker(w, new(mockChainClient), testChainConfig(), nil)
		hash, err := inv.VerifyAddress(ctx, testAccount, 267)
		require.NoError(t, err)
		assert.Equal(t, "deadbeef", hash)
		w.AssertExpectations(t)
	})

	t.Run("WalletRejects", func(t *testing.T) {
		rejected := errors.New("rejected")
		w := new(mockWallet)
		w.On("SignAndSendTransaction", ctx, mock.Anything).Return("", rejected).Once()

		hash, err := NewInvoker(w, nil, testChainConfig(), nil).VerifyAddress(ctx, testAccount, 10)
		assert.ErrorIs(t, err, rejected)
		assert.Empty(t, hash)
	})

	t.Run("EmptyHash", func(t *testing.T) {
		w := new(mockWallet)
		w.On("SignAndSendTransaction", ctx, mock.Anything).Return("", nil).Once()

		_, err := NewInvoker(w, nil, testChainConfig(), nil).VerifyAddress(ctx, testAccount, 10)
		assert.ErrorIs(t, err, ErrNoHash)
	})
}

func TestInvoker_GetCode(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		c := new(mockChainClient)
		c.On("InvokeContract", ctx, mock.MatchedBy(func(req models.InvokeContractRequest) bool {
			return req.Method == "concordiun.get_code" &&
				req.Contract.Index == 12282 &&
				req.Parameter == "69752406cc939fc90ca6a73b57cee109963547f942006d219144924f8485fb0d"
		})).Return(&models.InvokeContractResult{Tag: models.InvokeSuccess, ReturnValue: "7b000000"}, nil).Once()

		code, err := NewInvoker(nil, c, testChainConfig(), nil).GetCode(ctx, testAccount)
		require.NoError(t, err)
		assert.Equal(t, uint32(123), code)
		c.AssertExpectations(t)
	})

	failures := []struct {
		name  string
		setup func(c *mockChainClient)
	}{
		{
			name: "InvocationFailure",
			setup: func(c *mockChainClient) {
				c.On("InvokeContract", ctx, mock.Anything).Return(&models.InvokeContractResult{Tag: models.InvokeFailure, Reason: "reject"}, nil)
			},
		},
		{
			name: "RPCError",
			setup: func(c *mockChainClient) {
				c.On("InvokeContract", ctx, mock.Anything).Return(nil, errors.New("timeout"))
			},
		},
		{
			name: "ShortReturnValue",
			setup: func(c *mockChainClient) {
				c.On("InvokeContract", ctx, mock.Anything).Return(&models.InvokeContractResult{Tag: models.InvokeSuccess, ReturnValue: "7b"}, nil)
			},
		},
	}
	for _, tt := range failures {
		t.Run(tt.name, func(t *testing.T) {
			c := new(mockChainClient)
			tt.setup(c)
			_, err := NewInvoker(nil, c, testChainConfig(), nil).GetCode(ctx, testAccount)
			assert.ErrorIs(t, err, ErrNoCode)
		})
	}

	t.Run("BadAddress", func(t *testing.T) {
		c := new(mockChainClient)
		_, err := NewInvoker(nil, c, testChainConfig(), nil).GetCode(ctx, "not-an-address")
		assert.ErrorIs(t, err, ErrNoCode)
		c.AssertNotCalled(t, "InvokeContract", mock.Anything, mock.Anything)
	})
}
