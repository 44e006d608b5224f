package testutil

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-vault/pkg/solana"
	"github.com/code-payments/code-vault/pkg/solana/runtime"
	"github.com/code-payments/code-vault/pkg/solana/runtime/memory"
)

const (
	// FaucetLamports is the genesis balance of the test faucet.
	FaucetLamports = 1_000_000_000_000_000
)

func GenerateSolanaKeypair(t *testing.T) ed25519.PrivateKey {
	_, p, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	return p
}

func GenerateSolanaKeys(t *testing.T, n int) []ed25519.PublicKey {
	keys := make([]ed25519.PublicKey, n)
	for i := 0; i < n; i++ {
		p, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		keys[i] = p
	}
	return keys
}

// Ledger is an in memory bank with a funded faucet.
type Ledger struct {
	Bank   *runtime.Bank
	Faucet *runtime.Faucet
	Client solana.Client
}

// NewTestLedger creates an in memory bank with default economics and a
// faucet that isn't meaningfully rate limited.
func NewTestLedger(t *testing.T) *Ledger {
	conf := runtime.DefaultConfig()
	conf.AirdropsPerSecond = 1_000_000

	bank, err := runtime.NewBank(memory.New(), conf)
	require.NoError(t, err)

	faucetKey := GenerateSolanaKeypair(t)
	faucet := runtime.NewFaucet(bank, faucetKey)
	require.NoError(t, bank.Genesis(context.Background(), map[string]uint64{
		string(faucet.PublicKey()): FaucetLamports,
	}))

	return &Ledger{
		Bank:   bank,
		Faucet: faucet,
		Client: runtime.NewClient(bank, faucet),
	}
}

// Fund airdrops lamports to address.
func (l *Ledger) Fund(t *testing.T, address ed25519.PublicKey, lamports uint64) {
	_, err := l.Faucet.Airdrop(context.Background(), address, lamports)
	require.NoError(t, err)
}

// Balance returns the committed balance of address, zero if it doesn't exist.
func (l *Ledger) Balance(t *testing.T, address ed25519.PublicKey) uint64 {
	balance, err := l.Client.GetBalance(address)
	require.NoError(t, err)
	return balance
}

// Submit signs txn with the latest blockhash and processes it.
func (l *Ledger) Submit(t *testing.T, txn solana.Transaction, signers ...ed25519.PrivateKey) (*runtime.ExecutionResult, error) {
	txn.SetBlockhash(l.Bank.LatestBlockhash())
	require.NoError(t, txn.Sign(signers...))
	return l.Bank.ProcessTransaction(context.Background(), txn)
}
