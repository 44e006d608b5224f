package vault

import (
	"context"
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-vault/pkg/cache"
	"github.com/code-payments/code-vault/pkg/code/common"
	"github.com/code-payments/code-vault/pkg/metrics"
	"github.com/code-payments/code-vault/pkg/retry"
	"github.com/code-payments/code-vault/pkg/retry/backoff"
	"github.com/code-payments/code-vault/pkg/solana"
	"github.com/code-payments/code-vault/pkg/solana/vault"
)

const (
	metricsStructName = "vault.client"

	submitDurationMetricName = "Vault%sDuration"

	// Each entry saves up to two address searches.
	derivationCacheBudget = 1024
)

var (
	// ErrInvalidAmount is returned for zero lamport deposits and withdrawals,
	// before anything is submitted.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrVaultNotFound indicates the owner has no initialized vault.
	ErrVaultNotFound = errors.New("vault not found")

	// ErrOwnerKeyRequired indicates a write was attempted with an owner
	// account that has no private key.
	ErrOwnerKeyRequired = errors.New("owner private key required")
)

// Client builds, signs and submits vault transactions on behalf of owners.
type Client struct {
	log         *logrus.Entry
	conf        *conf
	sc          solana.Client
	derivations *cache.Cache[*common.VaultAccounts]
}

func NewClient(sc solana.Client, configProvider ConfigProvider) *Client {
	return &Client{
		log:         logrus.StandardLogger().WithField("type", "code/vault/client"),
		conf:        configProvider(),
		sc:          sc,
		derivations: cache.New[*common.VaultAccounts](derivationCacheBudget),
	}
}

// Initialize creates the owner's state and vault accounts.
func (c *Client) Initialize(ctx context.Context, owner *common.Account) (solana.Signature, error) {
	return c.submit(ctx, "Initialize", owner, 0, func(accounts *common.VaultAccounts) solana.Instruction {
		return accounts.GetInitializeInstruction()
	})
}

// Deposit moves amount lamports from the owner into their vault.
func (c *Client) Deposit(ctx context.Context, owner *common.Account, amount uint64) (solana.Signature, error) {
	if amount == 0 {
		return solana.Signature{}, ErrInvalidAmount
	}
	return c.submit(ctx, "Deposit", owner, amount, func(accounts *common.VaultAccounts) solana.Instruction {
		return accounts.GetDepositInstruction(amount)
	})
}

// Withdraw moves amount lamports from the owner's vault back to the owner.
func (c *Client) Withdraw(ctx context.Context, owner *common.Account, amount uint64) (solana.Signature, error) {
	if amount == 0 {
		return solana.Signature{}, ErrInvalidAmount
	}
	return c.submit(ctx, "Withdraw", owner, amount, func(accounts *common.VaultAccounts) solana.Instruction {
		return accounts.GetWithdrawInstruction(amount)
	})
}

// Close returns every lamport held by the vault and state accounts to the
// owner and deallocates both.
func (c *Client) Close(ctx context.Context, owner *common.Account) (solana.Signature, error) {
	return c.submit(ctx, "Close", owner, 0, func(accounts *common.VaultAccounts) solana.Instruction {
		return accounts.GetCloseInstruction()
	})
}

// GetState returns the owner's persisted vault state.
func (c *Client) GetState(ctx context.Context, owner *common.Account) (*vault.VaultState, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetState")
	defer tracer.End()

	state, err := c.getState(owner)
	tracer.OnError(err)
	return state, err
}

// GetVaultBalance returns the total lamports held by the owner's vault,
// including its rent exempt minimum.
func (c *Client) GetVaultBalance(ctx context.Context, owner *common.Account) (uint64, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetVaultBalance")
	defer tracer.End()

	balance, err := c.getVaultBalance(owner)
	tracer.OnError(err)
	return balance, err
}

// GetWithdrawableBalance returns the most that can be withdrawn from the
// owner's vault without dropping it below its rent exempt minimum.
func (c *Client) GetWithdrawableBalance(ctx context.Context, owner *common.Account) (uint64, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, "GetWithdrawableBalance")
	defer tracer.End()

	balance, err := c.getVaultBalance(owner)
	if err != nil {
		tracer.OnError(err)
		return 0, err
	}

	minimum, err := c.sc.GetMinimumBalanceForRentExemption(0)
	if err != nil {
		tracer.OnError(err)
		return 0, errors.Wrap(err, "error getting rent exempt minimum")
	}

	if balance <= minimum {
		return 0, nil
	}
	return balance - minimum, nil
}

func (c *Client) getState(owner *common.Account) (*vault.VaultState, error) {
	accounts, err := c.getVaultAccounts(owner)
	if err != nil {
		return nil, err
	}

	info, err := c.sc.GetAccountInfo(accounts.State.PublicKey().ToBytes(), solana.CommitmentFinalized)
	if err == solana.ErrNoAccountInfo {
		return nil, ErrVaultNotFound
	} else if err != nil {
		return nil, errors.Wrap(err, "error getting state account")
	}

	if !info.Owner.Equal(vault.PROGRAM_ID) {
		return nil, ErrVaultNotFound
	}

	var state vault.VaultState
	if err := state.Unmarshal(info.Data); err != nil {
		return nil, errors.Wrap(err, "invalid state account data")
	}
	return &state, nil
}

func (c *Client) getVaultBalance(owner *common.Account) (uint64, error) {
	accounts, err := c.getVaultAccounts(owner)
	if err != nil {
		return 0, err
	}

	info, err := c.sc.GetAccountInfo(accounts.Vault.PublicKey().ToBytes(), solana.CommitmentFinalized)
	if err == solana.ErrNoAccountInfo {
		return 0, ErrVaultNotFound
	} else if err != nil {
		return 0, errors.Wrap(err, "error getting vault account")
	}
	return info.Lamports, nil
}

func (c *Client) submit(
	ctx context.Context,
	method string,
	owner *common.Account,
	amount uint64,
	makeInstruction func(*common.VaultAccounts) solana.Instruction,
) (solana.Signature, error) {
	tracer := metrics.TraceMethodCall(ctx, metricsStructName, method)
	defer tracer.End()

	log := c.log.WithFields(logrus.Fields{
		"method": method,
		"owner":  owner.String(),
		"amount": amount,
	})

	if owner.PrivateKey() == nil {
		return solana.Signature{}, ErrOwnerKeyRequired
	}

	accounts, err := c.getVaultAccounts(owner)
	if err != nil {
		tracer.OnError(err)
		return solana.Signature{}, err
	}

	tracer.AddAttributes(map[string]interface{}{
		"owner":  owner.String(),
		"vault":  accounts.Vault.String(),
		"amount": amount,
	})

	start := time.Now()
	var sig solana.Signature
	attempts, err := retry.RetryWithContext(
		ctx,
		func(ctx context.Context) error {
			blockhash, err := c.sc.GetLatestBlockhash()
			if err != nil {
				return errors.Wrap(err, "error getting latest blockhash")
			}

			txn := solana.NewTransaction(owner.PublicKey().ToBytes(), makeInstruction(accounts))
			txn.SetBlockhash(blockhash)
			if err := txn.Sign(owner.PrivateKey().ToBytes()); err != nil {
				return errors.Wrap(err, "error signing transaction")
			}

			sig, err = c.sc.SubmitTransaction(txn, solana.CommitmentFinalized)
			return err
		},
		retry.RetriableFunc(isRetriableSubmitError),
		retry.Limit(uint(c.conf.maxSubmitAttempts.Get(ctx))),
		retry.Backoff(backoff.BinaryExponential(c.conf.submitBaseDelay.Get(ctx)), c.conf.submitMaxDelay.Get(ctx)),
	)
	metrics.RecordDuration(ctx, fmt.Sprintf(submitDurationMetricName, method), time.Since(start))

	log = log.WithFields(logrus.Fields{
		"signature": sig.String(),
		"attempts":  attempts,
	})
	if err != nil {
		tracer.OnError(err)
		log.WithError(err).Info("transaction failed")
		return sig, err
	}

	log.Debug("transaction finalized")
	return sig, nil
}

// getVaultAccounts derives the owner's state and vault addresses, reusing
// earlier derivations.
func (c *Client) getVaultAccounts(owner *common.Account) (*common.VaultAccounts, error) {
	key := owner.PublicKey().ToBase58()
	if accounts, ok := c.derivations.Retrieve(key); ok {
		return accounts, nil
	}

	accounts, err := owner.GetVaultAccounts()
	if err != nil {
		return nil, err
	}

	// A concurrent derivation may have won the insert
	if err := c.derivations.Insert(key, accounts, 1); err != nil {
		c.log.WithError(err).WithField("owner", key).Trace("derivation not cached")
	}
	return accounts, nil
}

func isRetriableSubmitError(err error) bool {
	var txErr *solana.TransactionError
	if !errors.As(err, &txErr) {
		return false
	}

	switch txErr.ErrorKey() {
	case solana.TransactionErrorBlockhashNotFound, solana.TransactionErrorAccountInUse:
		return true
	default:
		return false
	}
}
