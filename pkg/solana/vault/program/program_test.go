package program

import (
	"context"
	"crypto/ed25519"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-vault/pkg/code/common"
	"github.com/code-payments/code-vault/pkg/solana"
	"github.com/code-payments/code-vault/pkg/solana/runtime"
	"github.com/code-payments/code-vault/pkg/solana/vault"
	"github.com/code-payments/code-vault/pkg/testutil"
)

const (
	fee = runtime.DefaultLamportsPerSignature

	stateRent = 960_480
	vaultRent = 890_880
)

type testEnv struct {
	*testutil.Ledger
}

func setup(t *testing.T) *testEnv {
	env := &testEnv{testutil.NewTestLedger(t)}
	Register(env.Bank)
	return env
}

func (e *testEnv) newOwner(t *testing.T, lamports uint64) *common.VaultAccounts {
	vaultAccounts := testutil.NewRandomVaultAccounts(t)
	e.Fund(t, ownerKey(vaultAccounts), lamports)
	return vaultAccounts
}

func (e *testEnv) submit(t *testing.T, payer ed25519.PrivateKey, instructions ...solana.Instruction) error {
	_, err := e.Submit(t, solana.NewTransaction(payer.Public().(ed25519.PublicKey), instructions...), payer)
	return err
}

func (e *testEnv) submitAs(t *testing.T, owner *common.VaultAccounts, instructions ...solana.Instruction) error {
	return e.submit(t, ed25519.PrivateKey(owner.VaultOwner.PrivateKey().ToBytes()), instructions...)
}

func (e *testEnv) getVaultState(t *testing.T, owner *common.VaultAccounts) *vault.VaultState {
	info, err := e.Client.GetAccountInfo(owner.State.PublicKey().ToBytes(), solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.EqualValues(t, vault.PROGRAM_ID, info.Owner)

	var state vault.VaultState
	require.NoError(t, state.Unmarshal(info.Data))
	return &state
}

func TestVault_RoundTrip(t *testing.T) {
	env := setup(t)
	owner := env.newOwner(t, 5_000_000_000)
	ownerAddress := ownerKey(owner)
	vaultAddress := owner.Vault.PublicKey().ToBytes()
	stateAddress := owner.State.PublicKey().ToBytes()

	require.EqualValues(t, stateRent, env.Bank.Rent().MinimumBalance(vault.VaultStateSize))
	require.EqualValues(t, vaultRent, env.Bank.Rent().MinimumBalance(0))

	// Initialize
	require.NoError(t, env.submitAs(t, owner, owner.GetInitializeInstruction()))

	state := env.getVaultState(t, owner)
	assert.Equal(t, owner.StateBump, state.StateBump)
	assert.Equal(t, owner.VaultBump, state.VaultBump)

	vaultInfo, err := env.Client.GetAccountInfo(vaultAddress, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.EqualValues(t, vault.PROGRAM_ID, vaultInfo.Owner)
	assert.Empty(t, vaultInfo.Data)

	assert.EqualValues(t, vaultRent, env.Balance(t, vaultAddress))
	assert.EqualValues(t, stateRent, env.Balance(t, stateAddress))
	expectedOwnerBalance := uint64(5_000_000_000 - stateRent - vaultRent - fee)
	assert.EqualValues(t, expectedOwnerBalance, env.Balance(t, ownerAddress))

	// Deposit
	require.NoError(t, env.submitAs(t, owner, owner.GetDepositInstruction(2_000_000_000)))

	expectedOwnerBalance -= 2_000_000_000 + fee
	assert.EqualValues(t, vaultRent+2_000_000_000, env.Balance(t, vaultAddress))
	assert.EqualValues(t, expectedOwnerBalance, env.Balance(t, ownerAddress))

	// Withdraw
	require.NoError(t, env.submitAs(t, owner, owner.GetWithdrawInstruction(250_000_000)))

	expectedOwnerBalance += 250_000_000 - fee
	assert.EqualValues(t, vaultRent+1_750_000_000, env.Balance(t, vaultAddress))
	assert.EqualValues(t, expectedOwnerBalance, env.Balance(t, ownerAddress))

	// Close
	require.NoError(t, env.submitAs(t, owner, owner.GetCloseInstruction()))

	expectedOwnerBalance += vaultRent + 1_750_000_000 + stateRent - fee
	assert.EqualValues(t, expectedOwnerBalance, env.Balance(t, ownerAddress))
	assert.EqualValues(t, 5_000_000_000-4*fee, env.Balance(t, ownerAddress))

	_, err = env.Client.GetAccountInfo(stateAddress, solana.CommitmentFinalized)
	assert.Equal(t, solana.ErrNoAccountInfo, err)
	_, err = env.Client.GetAccountInfo(vaultAddress, solana.CommitmentFinalized)
	assert.Equal(t, solana.ErrNoAccountInfo, err)
	assert.Zero(t, env.Balance(t, vaultAddress))
}

func TestVault_InitializeTwice(t *testing.T) {
	env := setup(t)
	owner := env.newOwner(t, 1_000_000_000)

	require.NoError(t, env.submitAs(t, owner, owner.GetInitializeInstruction()))
	require.NoError(t, env.submitAs(t, owner, owner.GetDepositInstruction(100_000_000)))

	before := env.Balance(t, ownerKey(owner))

	err := env.submitAs(t, owner, owner.GetInitializeInstruction())
	assert.True(t, errors.Is(err, vault.ErrAlreadyInitialized), "unexpected error: %v", err)

	state := env.getVaultState(t, owner)
	assert.Equal(t, owner.StateBump, state.StateBump)
	assert.Equal(t, owner.VaultBump, state.VaultBump)
	assert.EqualValues(t, vaultRent+100_000_000, env.Balance(t, owner.Vault.PublicKey().ToBytes()))
	assert.Equal(t, before, env.Balance(t, ownerKey(owner)))
}

func TestVault_ReinitializeAfterClose(t *testing.T) {
	env := setup(t)
	owner := env.newOwner(t, 1_000_000_000)

	require.NoError(t, env.submitAs(t, owner, owner.GetInitializeInstruction()))
	require.NoError(t, env.submitAs(t, owner, owner.GetCloseInstruction()))
	require.NoError(t, env.submitAs(t, owner, owner.GetInitializeInstruction()))
	require.NoError(t, env.submitAs(t, owner, owner.GetDepositInstruction(1_000)))

	state := env.getVaultState(t, owner)
	assert.Equal(t, owner.StateBump, state.StateBump)
	assert.EqualValues(t, vaultRent+1_000, env.Balance(t, owner.Vault.PublicKey().ToBytes()))
}

func TestVault_InitializeFundedVaultAddress(t *testing.T) {
	env := setup(t)
	owner := env.newOwner(t, 1_000_000_000)
	vaultAddress := owner.Vault.PublicKey().ToBytes()

	// Anyone can send lamports to the derived vault address before it exists
	env.Fund(t, vaultAddress, vaultRent+1_000_000)

	require.NoError(t, env.submitAs(t, owner, owner.GetInitializeInstruction()))

	vaultInfo, err := env.Client.GetAccountInfo(vaultAddress, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.EqualValues(t, vault.PROGRAM_ID, vaultInfo.Owner)
	assert.Empty(t, vaultInfo.Data)
	assert.EqualValues(t, vaultRent+1_000_000, vaultInfo.Lamports)

	// Only the state account needed funding
	assert.EqualValues(t, 1_000_000_000-stateRent-fee, env.Balance(t, ownerKey(owner)))

	// The lamports sent by the third party belong to the owner now
	require.NoError(t, env.submitAs(t, owner, owner.GetWithdrawInstruction(1_000_000)))
	require.NoError(t, env.submitAs(t, owner, owner.GetCloseInstruction()))
	assert.EqualValues(t, 1_000_000_000+1_000_000+vaultRent-3*fee, env.Balance(t, ownerKey(owner)))
	assert.Zero(t, env.Balance(t, vaultAddress))
}

func TestVault_InitializeFundedStateAddress(t *testing.T) {
	env := setup(t)
	owner := env.newOwner(t, 1_000_000_000)
	stateAddress := owner.State.PublicKey().ToBytes()

	// Exempt for an empty account, short of what the state record needs
	env.Fund(t, stateAddress, vaultRent)

	require.NoError(t, env.submitAs(t, owner, owner.GetInitializeInstruction()))

	state := env.getVaultState(t, owner)
	assert.Equal(t, owner.StateBump, state.StateBump)
	assert.Equal(t, owner.VaultBump, state.VaultBump)
	assert.EqualValues(t, stateRent, env.Balance(t, stateAddress))
	assert.EqualValues(t, vaultRent, env.Balance(t, owner.Vault.PublicKey().ToBytes()))

	// The owner topped up the state account and funded the vault
	assert.EqualValues(t, 1_000_000_000-(stateRent-vaultRent)-vaultRent-fee, env.Balance(t, ownerKey(owner)))

	require.NoError(t, env.submitAs(t, owner, owner.GetCloseInstruction()))
	assert.EqualValues(t, 1_000_000_000+vaultRent-2*fee, env.Balance(t, ownerKey(owner)))
	assert.Zero(t, env.Balance(t, stateAddress))
}

func TestVault_ReinitializeFundedAddressesAfterClose(t *testing.T) {
	env := setup(t)
	owner := env.newOwner(t, 1_000_000_000)
	stateAddress := owner.State.PublicKey().ToBytes()
	vaultAddress := owner.Vault.PublicKey().ToBytes()

	require.NoError(t, env.submitAs(t, owner, owner.GetInitializeInstruction()))
	require.NoError(t, env.submitAs(t, owner, owner.GetCloseInstruction()))

	env.Fund(t, stateAddress, stateRent+500_000)
	env.Fund(t, vaultAddress, vaultRent)

	require.NoError(t, env.submitAs(t, owner, owner.GetInitializeInstruction()))

	// Both addresses were already exempt, so only the fee was paid
	assert.EqualValues(t, 1_000_000_000-3*fee, env.Balance(t, ownerKey(owner)))

	state := env.getVaultState(t, owner)
	assert.Equal(t, owner.VaultBump, state.VaultBump)

	require.NoError(t, env.submitAs(t, owner, owner.GetDepositInstruction(1_000)))
	assert.EqualValues(t, vaultRent+1_000, env.Balance(t, vaultAddress))

	require.NoError(t, env.submitAs(t, owner, owner.GetCloseInstruction()))
	assert.EqualValues(t, 1_000_000_000-5*fee+stateRent+500_000+vaultRent, env.Balance(t, ownerKey(owner)))
	assert.Zero(t, env.Balance(t, stateAddress))
	assert.Zero(t, env.Balance(t, vaultAddress))
}

func TestVault_WithdrawalCeiling(t *testing.T) {
	env := setup(t)
	owner := env.newOwner(t, 2_000_000_000)
	vaultAddress := owner.Vault.PublicKey().ToBytes()

	require.NoError(t, env.submitAs(t, owner, owner.GetInitializeInstruction()))
	require.NoError(t, env.submitAs(t, owner, owner.GetDepositInstruction(1_000_000_000)))

	before := env.Balance(t, ownerKey(owner))

	err := env.submitAs(t, owner, owner.GetWithdrawInstruction(1_000_000_001))
	assert.True(t, errors.Is(err, vault.ErrInsufficientFunds), "unexpected error: %v", err)
	assert.EqualValues(t, vaultRent+1_000_000_000, env.Balance(t, vaultAddress))
	assert.Equal(t, before, env.Balance(t, ownerKey(owner)))

	require.NoError(t, env.submitAs(t, owner, owner.GetWithdrawInstruction(1_000_000_000)))
	assert.EqualValues(t, vaultRent, env.Balance(t, vaultAddress))
	assert.Equal(t, before+1_000_000_000-fee, env.Balance(t, ownerKey(owner)))

	err = env.submitAs(t, owner, owner.GetWithdrawInstruction(1))
	assert.True(t, errors.Is(err, vault.ErrInsufficientFunds), "unexpected error: %v", err)
	assert.EqualValues(t, vaultRent, env.Balance(t, vaultAddress))
}

func TestVault_InvalidAmount(t *testing.T) {
	env := setup(t)
	owner := env.newOwner(t, 1_000_000_000)
	require.NoError(t, env.submitAs(t, owner, owner.GetInitializeInstruction()))

	err := env.submitAs(t, owner, owner.GetDepositInstruction(0))
	assert.True(t, errors.Is(err, vault.ErrInvalidAmount), "unexpected error: %v", err)

	err = env.submitAs(t, owner, owner.GetWithdrawInstruction(0))
	assert.True(t, errors.Is(err, vault.ErrInvalidAmount), "unexpected error: %v", err)
}

func TestVault_InsufficientFunds(t *testing.T) {
	env := setup(t)

	poor := env.newOwner(t, stateRent)
	err := env.submitAs(t, poor, poor.GetInitializeInstruction())
	assert.True(t, errors.Is(err, vault.ErrInsufficientFunds), "unexpected error: %v", err)

	owner := env.newOwner(t, 1_000_000_000)
	require.NoError(t, env.submitAs(t, owner, owner.GetInitializeInstruction()))

	balance := env.Balance(t, ownerKey(owner))
	err = env.submitAs(t, owner, owner.GetDepositInstruction(balance))
	assert.True(t, errors.Is(err, vault.ErrInsufficientFunds), "unexpected error: %v", err)
	assert.Equal(t, balance, env.Balance(t, ownerKey(owner)))
	assert.EqualValues(t, vaultRent, env.Balance(t, owner.Vault.PublicKey().ToBytes()))
}

func TestVault_NotInitialized(t *testing.T) {
	env := setup(t)
	owner := env.newOwner(t, 1_000_000_000)

	for _, ix := range []solana.Instruction{
		owner.GetDepositInstruction(1_000),
		owner.GetWithdrawInstruction(1_000),
		owner.GetCloseInstruction(),
	} {
		err := env.submitAs(t, owner, ix)
		assert.True(t, errors.Is(err, vault.ErrNotInitialized), "unexpected error: %v", err)
	}
}

func TestVault_DerivationMismatch(t *testing.T) {
	env := setup(t)
	owner := env.newOwner(t, 1_000_000_000)
	other := env.newOwner(t, 1_000_000_000)

	require.NoError(t, env.submitAs(t, other, other.GetInitializeInstruction()))
	require.NoError(t, env.submitAs(t, other, other.GetDepositInstruction(500_000_000)))

	// Initializing with somebody else's addresses
	crossed := &common.VaultAccounts{
		VaultOwner: owner.VaultOwner,
		State:      other.State,
		StateBump:  other.StateBump,
		Vault:      other.Vault,
		VaultBump:  other.VaultBump,
	}
	err := env.submitAs(t, owner, crossed.GetInitializeInstruction())
	assert.True(t, errors.Is(err, vault.ErrDerivationMismatch), "unexpected error: %v", err)

	require.NoError(t, env.submitAs(t, owner, owner.GetInitializeInstruction()))

	// Draining somebody else's vault
	for _, ix := range []solana.Instruction{
		crossed.GetDepositInstruction(1_000),
		crossed.GetWithdrawInstruction(1_000),
		crossed.GetCloseInstruction(),
	} {
		err := env.submitAs(t, owner, ix)
		assert.True(t, errors.Is(err, vault.ErrDerivationMismatch), "unexpected error: %v", err)
	}

	// Pairing a valid state with another vault
	mixed := &common.VaultAccounts{
		VaultOwner: owner.VaultOwner,
		State:      owner.State,
		StateBump:  owner.StateBump,
		Vault:      other.Vault,
		VaultBump:  other.VaultBump,
	}
	for _, ix := range []solana.Instruction{
		mixed.GetInitializeInstruction(),
		mixed.GetWithdrawInstruction(1_000),
		mixed.GetCloseInstruction(),
	} {
		err := env.submitAs(t, owner, ix)
		assert.True(t, errors.Is(err, vault.ErrDerivationMismatch), "unexpected error: %v", err)
	}

	// Passing the vault as the state account
	swapped := &common.VaultAccounts{
		VaultOwner: owner.VaultOwner,
		State:      owner.Vault,
		Vault:      owner.State,
	}
	err = env.submitAs(t, owner, swapped.GetWithdrawInstruction(1_000))
	assert.True(t, errors.Is(err, vault.ErrDerivationMismatch), "unexpected error: %v", err)

	assert.EqualValues(t, vaultRent+500_000_000, env.Balance(t, other.Vault.PublicKey().ToBytes()))
	assert.EqualValues(t, vaultRent, env.Balance(t, owner.Vault.PublicKey().ToBytes()))
}

func TestVault_UnauthorizedSigner(t *testing.T) {
	env := setup(t)
	owner := env.newOwner(t, 1_000_000_000)
	require.NoError(t, env.submitAs(t, owner, owner.GetInitializeInstruction()))
	require.NoError(t, env.submitAs(t, owner, owner.GetDepositInstruction(500_000_000)))

	attacker := testutil.GenerateSolanaKeypair(t)
	env.Fund(t, attacker.Public().(ed25519.PublicKey), 1_000_000_000)

	for _, ix := range []solana.Instruction{
		owner.GetWithdrawInstruction(1_000),
		owner.GetCloseInstruction(),
		owner.GetDepositInstruction(1_000),
	} {
		ix.Accounts[0].IsSigner = false

		err := env.submit(t, attacker, ix)
		assert.True(t, errors.Is(err, vault.ErrUnauthorizedSigner), "unexpected error: %v", err)
	}

	assert.EqualValues(t, vaultRent+500_000_000, env.Balance(t, owner.Vault.PublicKey().ToBytes()))
}

func TestVault_MalformedInstructions(t *testing.T) {
	env := setup(t)
	owner := env.newOwner(t, 1_000_000_000)
	require.NoError(t, env.submitAs(t, owner, owner.GetInitializeInstruction()))

	ix := owner.GetDepositInstruction(1_000)
	ix.Data = ix.Data[:len(ix.Data)-1]
	err := env.submitAs(t, owner, ix)
	assertInstructionErrorKey(t, err, solana.InstructionErrorInvalidInstructionData)

	ix = owner.GetDepositInstruction(1_000)
	ix.Data[0] ^= 0xff
	err = env.submitAs(t, owner, ix)
	assertInstructionErrorKey(t, err, solana.InstructionErrorInvalidInstructionData)

	ix = owner.GetDepositInstruction(1_000)
	ix.Accounts = ix.Accounts[:3]
	err = env.submitAs(t, owner, ix)
	assertInstructionErrorKey(t, err, solana.InstructionErrorNotEnoughAccountKeys)

	ix = owner.GetDepositInstruction(1_000)
	ix.Accounts[3] = solana.NewReadonlyAccountMeta(testutil.GenerateSolanaKeys(t, 1)[0], false)
	err = env.submitAs(t, owner, ix)
	assertInstructionErrorKey(t, err, solana.InstructionErrorIncorrectProgramID)

	ix = owner.GetWithdrawInstruction(1_000)
	ix.Accounts[2] = solana.NewReadonlyAccountMeta(ix.Accounts[2].PublicKey, false)
	err = env.submitAs(t, owner, ix)
	assert.True(t, errors.Is(err, vault.ErrAccountNotWritable), "unexpected error: %v", err)
}

func TestVault_MultipleInstructionsAreAtomic(t *testing.T) {
	env := setup(t)
	owner := env.newOwner(t, 1_000_000_000)

	err := env.submitAs(
		t,
		owner,
		owner.GetInitializeInstruction(),
		owner.GetDepositInstruction(100_000_000),
		owner.GetWithdrawInstruction(200_000_000),
	)
	assert.True(t, errors.Is(err, vault.ErrInsufficientFunds), "unexpected error: %v", err)

	var txErr *solana.TransactionError
	require.True(t, errors.As(err, &txErr))
	assert.Equal(t, 2, txErr.InstructionError().Index)

	_, err = env.Client.GetAccountInfo(owner.State.PublicKey().ToBytes(), solana.CommitmentFinalized)
	assert.Equal(t, solana.ErrNoAccountInfo, err)
	assert.EqualValues(t, 1_000_000_000, env.Balance(t, ownerKey(owner)))

	require.NoError(t, env.submitAs(
		t,
		owner,
		owner.GetInitializeInstruction(),
		owner.GetDepositInstruction(100_000_000),
		owner.GetWithdrawInstruction(50_000_000),
	))
	assert.EqualValues(t, vaultRent+50_000_000, env.Balance(t, owner.Vault.PublicKey().ToBytes()))
}

func TestVault_ConcurrentOwners(t *testing.T) {
	env := setup(t)

	const owners = 8
	const deposits = 4

	vaultAccounts := make([]*common.VaultAccounts, owners)
	for i := range vaultAccounts {
		vaultAccounts[i] = env.newOwner(t, 1_000_000_000)
		require.NoError(t, env.submitAs(t, vaultAccounts[i], vaultAccounts[i].GetInitializeInstruction()))
	}

	var wg sync.WaitGroup
	errs := make(chan error, owners*deposits)
	for _, owner := range vaultAccounts {
		wg.Add(1)
		go func(owner *common.VaultAccounts) {
			defer wg.Done()

			key := ed25519.PrivateKey(owner.VaultOwner.PrivateKey().ToBytes())
			for i := 0; i < deposits; i++ {
				txn := solana.NewTransaction(ownerKey(owner), owner.GetDepositInstruction(uint64(1_000_000+i)))
				txn.SetBlockhash(env.Bank.LatestBlockhash())
				if err := txn.Sign(key); err != nil {
					errs <- err
					continue
				}
				_, err := env.Bank.ProcessTransaction(context.Background(), txn)
				errs <- err
			}
		}(owner)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	for _, owner := range vaultAccounts {
		assert.EqualValues(t, vaultRent+4_000_006, env.Balance(t, owner.Vault.PublicKey().ToBytes()))
	}
}

func ownerKey(owner *common.VaultAccounts) ed25519.PublicKey {
	return owner.VaultOwner.PublicKey().ToBytes()
}

func assertInstructionErrorKey(t *testing.T, err error, expected solana.InstructionErrorKey) {
	require.Error(t, err)

	var txErr *solana.TransactionError
	require.True(t, errors.As(err, &txErr), "unexpected error: %v", err)
	require.NotNil(t, txErr.InstructionError())
	assert.Equal(t, expected, txErr.InstructionError().ErrorKey())
}
