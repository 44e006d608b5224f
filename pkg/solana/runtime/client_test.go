package runtime_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-vault/pkg/solana"
	"github.com/code-payments/code-vault/pkg/solana/runtime"
	"github.com/code-payments/code-vault/pkg/solana/runtime/memory"
	"github.com/code-payments/code-vault/pkg/solana/system"
	"github.com/code-payments/code-vault/pkg/testutil"
)

func TestClient_Accounts(t *testing.T) {
	env := testutil.NewTestLedger(t)

	owner := testutil.GenerateSolanaKeypair(t)
	missing := testutil.GenerateSolanaKeys(t, 1)[0]

	_, err := env.Client.GetAccountInfo(missing, solana.CommitmentFinalized)
	assert.Equal(t, solana.ErrNoAccountInfo, err)

	balance, err := env.Client.GetBalance(missing)
	require.NoError(t, err)
	assert.Zero(t, balance)

	sig, err := env.Client.RequestAirdrop(pub(owner), 2_000_000_000, solana.CommitmentFinalized)
	require.NoError(t, err)

	info, err := env.Client.GetAccountInfo(pub(owner), solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.EqualValues(t, 2_000_000_000, info.Lamports)
	assert.EqualValues(t, system.ProgramKey, info.Owner)
	assert.Empty(t, info.Data)
	assert.False(t, info.Executable)

	status, err := env.Client.GetSignatureStatus(sig, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.True(t, status.Finalized())
	assert.Nil(t, status.ErrorResult)

	slot, err := env.Client.GetSlot(solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, status.Slot, slot)

	programInfo, err := env.Client.GetAccountInfo(system.ProgramKey, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.True(t, programInfo.Executable)
	assert.EqualValues(t, runtime.NativeLoaderKey, programInfo.Owner)

	rentExempt, err := env.Client.GetMinimumBalanceForRentExemption(10)
	require.NoError(t, err)
	assert.EqualValues(t, 960_480, rentExempt)

	rentExempt, err = env.Client.GetMinimumBalanceForRentExemption(0)
	require.NoError(t, err)
	assert.EqualValues(t, 890_880, rentExempt)
}

func TestClient_SubmitTransaction(t *testing.T) {
	env := testutil.NewTestLedger(t)

	sender := testutil.GenerateSolanaKeypair(t)
	receiver := testutil.GenerateSolanaKeys(t, 1)[0]
	env.Fund(t, pub(sender), 1_000_000_000)

	blockhash, err := env.Client.GetLatestBlockhash()
	require.NoError(t, err)

	txn := solana.NewTransaction(pub(sender), system.Transfer(pub(sender), receiver, 100_000_000))
	txn.SetBlockhash(blockhash)
	require.NoError(t, txn.Sign(sender))

	sig, err := env.Client.SubmitTransaction(txn, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.EqualValues(t, txn.Signatures[0], sig)

	statuses, err := env.Client.GetSignatureStatuses([]solana.Signature{sig, {1}})
	require.NoError(t, err)
	require.Len(t, statuses, 2)
	assert.NotNil(t, statuses[0])
	assert.Nil(t, statuses[1])

	_, err = env.Client.GetSignatureStatus(solana.Signature{1}, solana.CommitmentFinalized)
	assert.Equal(t, solana.ErrSignatureNotFound, err)

	txn = solana.NewTransaction(pub(sender), system.Transfer(pub(sender), receiver, 10_000_000_000))
	txn.SetBlockhash(blockhash)
	require.NoError(t, txn.Sign(sender))

	sig, err = env.Client.SubmitTransaction(txn, solana.CommitmentFinalized)
	assertInstructionError(t, err, 0, solana.InstructionErrorInsufficientFunds)
	assert.EqualValues(t, txn.Signatures[0], sig)
}

func TestClient_AirdropsDisabled(t *testing.T) {
	bank, err := runtime.NewBank(memory.New(), runtime.DefaultConfig())
	require.NoError(t, err)

	_, err = runtime.NewClient(bank, nil).RequestAirdrop(testutil.GenerateSolanaKeys(t, 1)[0], 1, solana.CommitmentFinalized)
	assert.Equal(t, runtime.ErrAirdropsDisabled, err)
}

func TestFaucet(t *testing.T) {
	conf := runtime.DefaultConfig()
	conf.AirdropsPerSecond = 0.001

	bank, err := runtime.NewBank(memory.New(), conf)
	require.NoError(t, err)

	faucet := runtime.NewFaucet(bank, testutil.GenerateSolanaKeypair(t))
	require.NoError(t, bank.Genesis(context.Background(), map[string]uint64{
		string(faucet.PublicKey()): 100_000_000_000,
	}))

	recipient := testutil.GenerateSolanaKeys(t, 1)[0]

	_, err = faucet.Airdrop(context.Background(), recipient, conf.MaxAirdropLamports+1)
	assert.Equal(t, runtime.ErrAirdropTooLarge, err)

	sig, err := faucet.Airdrop(context.Background(), recipient, 1_000_000_000)
	require.NoError(t, err)
	_, ok := bank.GetSignatureSlot(sig)
	assert.True(t, ok)

	_, err = faucet.Airdrop(context.Background(), recipient, 1_000_000_000)
	assert.Equal(t, runtime.ErrRateLimited, err)

	// Limits are tracked per recipient
	other := testutil.GenerateSolanaKeys(t, 1)[0]
	_, err = faucet.Airdrop(context.Background(), other, 1_000_000_000)
	require.NoError(t, err)

	account, err := bank.GetAccount(context.Background(), recipient)
	require.NoError(t, err)
	assert.EqualValues(t, 1_000_000_000, account.Lamports)

	account, err = bank.GetAccount(context.Background(), faucet.PublicKey())
	require.NoError(t, err)
	assert.EqualValues(t, 100_000_000_000-2_000_000_000-2*fee, account.Lamports)
}

func TestFaucet_RateLimitRecovers(t *testing.T) {
	conf := runtime.DefaultConfig()
	conf.AirdropsPerSecond = 10

	bank, err := runtime.NewBank(memory.New(), conf)
	require.NoError(t, err)

	faucet := runtime.NewFaucet(bank, testutil.GenerateSolanaKeypair(t))
	require.NoError(t, bank.Genesis(context.Background(), map[string]uint64{
		string(faucet.PublicKey()): 100_000_000_000,
	}))

	recipient := testutil.GenerateSolanaKeys(t, 1)[0]
	for i := 0; i < 10; i++ {
		_, err = faucet.Airdrop(context.Background(), recipient, 1_000_000)
		require.NoError(t, err)
	}

	_, err = faucet.Airdrop(context.Background(), recipient, 1_000_000)
	require.Equal(t, runtime.ErrRateLimited, err)

	require.NoError(t, testutil.WaitFor(time.Second, 10*time.Millisecond, func() bool {
		_, err := faucet.Airdrop(context.Background(), recipient, 1_000_000)
		return err == nil
	}))

	account, err := bank.GetAccount(context.Background(), recipient)
	require.NoError(t, err)
	assert.EqualValues(t, 11_000_000, account.Lamports)
}
