package chain

import (
	"context"

	"carma/internal/models"

	"github.com/stretchr/testify/mock"
)

type mockChainClient struct {
	mock.Mock
}

func (m *mockChainClient) GetBlockItemStatus(ctx context.Context, txHash string) (*models.BlockItemStatus, error) {
	args := m.Called(ctx, txHash)
	st, _ := args.Get(0).(*models.BlockItemStatus)
	return st, args.Error(1)
}

func (m *mockChainClient) InvokeContract(ctx context.Context, req models.InvokeContractRequest) (*models.InvokeContractResult, error) {
	args := m.Called(ctx, req)
	res, _ := args.Get(0).(*models.InvokeContractResult)
	return res, args.Error(1)
}

type mockWallet struct {
	mock.Mock
}

func (m *mockWallet) RequestVerifiablePresentation(
	ctx context.Context,
	account, challenge string,
	statements []models.CredentialStatement,
) (*models.VerifiablePresentation, error) {
	args := m.Called(ctx, account, challenge, statements)
	vp, _ := args.Get(0).(*models.VerifiablePresentation)
	return vp, args.Error(1)
}

func (m *mockWallet) SignAndSendTransaction(ctx context.Context, req models.TransactionRequest) (string, error) {
	args := m.Called(ctx, req)
	return args.String(0), args.Error(1)
}

func status(s string) *models.BlockItemStatus {
	return &models.BlockItemStatus{Status: s}
}
