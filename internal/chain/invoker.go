package chain

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	"carma/internal/config"
	"carma/internal/domain"
	"carma/internal/models"

	"github.com/rs/zerolog"
)

var (
	// ErrNoCode means the contract could not provide a pickup code.
	ErrNoCode = errors.New("no code available")
	ErrNoHash = errors.New("wallet returned no transaction hash")
)

const (
	entrypointVerifyAddress = "verify_address"
	entrypointGetCode       = "get_code"
)

// Invoker calls the rental contract.
type Invoker struct {
	wallet    domain.Wallet
	client    domain.ChainClient
	contract  models.ContractAddress
	name      string
	maxEnergy uint64
	logger    zerolog.Logger
}

func NewInvoker(wallet domain.Wallet, client domain.ChainClient, cfg config.ChainConfig, logger *zerolog.Logger) *Invoker {
	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "invoker").Logger()
	}
	return &Invoker{
		wallet:    wallet,
		client:    client,
		contract:  models.ContractAddress{Index: cfg.ContractIndex, Subindex: 0},
		name:      cfg.ContractName,
		maxEnergy: cfg.MaxEnergy,
		logger:    l,
	}
}

func (i *Invoker) receiveName(entrypoint string) string {
	return i.name + "." + entrypoint
}

// Amount converts a price into microCCD.
func Amount(price float64) (uint64, error) {
	if price < 0 || math.IsNaN(price) || math.IsInf(price, 0) {
		return 0, fmt.Errorf("invalid price %v", price)
	}
	micro := math.Round(price * models.MicroCCDPerCCD)
	if micro >= math.MaxUint64 {
		return 0, fmt.Errorf("price %v out of range", price)
	}
	return uint64(micro), nil
}

// VerifyAddress asks the wallet to pay price into the contract and returns
// the transaction hash. Wallet errors are wrapped unchanged.
func (i *Invoker) VerifyAddress(ctx context.Context, account string, price float64) (string, error) {
	amount, err := Amount(price)
	if err != nil {
		return "", err
	}

	req := models.TransactionRequest{
		Account:         account,
		TransactionType: models.AccountTransactionUpdate,
		Payload: models.UpdateContractPayload{
			Amount:            amount,
			Address:           i.contract,
			ReceiveName:       i.receiveName(entrypointVerifyAddress),
			MaxContractEnergy: i.maxEnergy,
		},
	}

	hash, err := i.wallet.SignAndSendTransaction(ctx, req)
	if err != nil {
		return "", fmt.Errorf("verify_address: %w", err)
	}
	if hash == "" {
		return "", ErrNoHash
	}

	i.logger.Info().Str("account", account).Str("tx_hash", hash).Uint64("amount", amount).Msg("verify_address submitted")
	return hash, nil
}

// GetCode reads the pickup code issued to account. Every failure is ErrNoCode.
func (i *Invoker) GetCode(ctx context.Context, account string) (uint32, error) {
	addr, err := DecodeAddress(account)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	param, err := EncodeAccountParameter(addr)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoCode, err)
	}

	res, err := i.client.InvokeContract(ctx, models.InvokeContractRequest{
		Contract:  i.contract,
		Method:    i.receiveName(entrypointGetCode),
		Invoker:   account,
		Parameter: hex.EncodeToString(param),
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	if res.Tag != models.InvokeSuccess {
		return 0, fmt.Errorf("%w: invocation %s %s", ErrNoCode, res.Tag, res.Reason)
	}

	code, err := DecodeHexCode(res.ReturnValue)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNoCode, err)
	}
	return code, nil
}
