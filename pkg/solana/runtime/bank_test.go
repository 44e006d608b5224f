package runtime_test

import (
	"context"
	"crypto/ed25519"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-vault/pkg/solana"
	"github.com/code-payments/code-vault/pkg/solana/runtime"
	"github.com/code-payments/code-vault/pkg/solana/runtime/memory"
	"github.com/code-payments/code-vault/pkg/solana/system"
	"github.com/code-payments/code-vault/pkg/testutil"
)

const fee = runtime.DefaultLamportsPerSignature

func TestBank_Transfer(t *testing.T) {
	env := testutil.NewTestLedger(t)

	sender := testutil.GenerateSolanaKeypair(t)
	receiver := testutil.GenerateSolanaKeys(t, 1)[0]
	env.Fund(t, pub(sender), 5_000_000_000)
	slot := env.Bank.Slot()
	blockhash := env.Bank.LatestBlockhash()

	result, err := env.Submit(t, solana.NewTransaction(pub(sender), system.Transfer(pub(sender), receiver, 1_000_000_000)), sender)
	require.NoError(t, err)

	assert.EqualValues(t, fee, result.Fee)
	assert.Equal(t, slot+1, result.Slot)
	assert.Equal(t, result.Slot, env.Bank.Slot())
	assert.NotEqual(t, blockhash, env.Bank.LatestBlockhash())
	assert.NotEmpty(t, result.Logs)

	assert.EqualValues(t, 4_000_000_000-fee, env.Balance(t, pub(sender)))
	assert.EqualValues(t, 1_000_000_000, env.Balance(t, receiver))

	committedSlot, ok := env.Bank.GetSignatureSlot(result.Signature)
	require.True(t, ok)
	assert.Equal(t, result.Slot, committedSlot)
}

func TestBank_FailedTransactionIsNotCharged(t *testing.T) {
	env := testutil.NewTestLedger(t)

	sender := testutil.GenerateSolanaKeypair(t)
	receiver := testutil.GenerateSolanaKeys(t, 1)[0]
	env.Fund(t, pub(sender), 1_000_000_000)

	txn := solana.NewTransaction(
		pub(sender),
		system.Transfer(pub(sender), receiver, 1_000),
		system.Transfer(pub(sender), receiver, 2_000_000_000),
	)
	_, err := env.Submit(t, txn, sender)
	assertInstructionError(t, err, 1, solana.InstructionErrorInsufficientFunds)

	assert.EqualValues(t, 1_000_000_000, env.Balance(t, pub(sender)))
	assert.Zero(t, env.Balance(t, receiver))

	_, ok := env.Bank.GetSignatureSlot(txn.Signatures[0])
	assert.False(t, ok)
}

func TestBank_TransactionChecks(t *testing.T) {
	env := testutil.NewTestLedger(t)

	sender := testutil.GenerateSolanaKeypair(t)
	receiver := testutil.GenerateSolanaKeys(t, 1)[0]
	env.Fund(t, pub(sender), 1_000_000_000)

	t.Run("duplicate", func(t *testing.T) {
		txn := solana.NewTransaction(pub(sender), system.Transfer(pub(sender), receiver, 1_000_000))
		_, err := env.Submit(t, txn, sender)
		require.NoError(t, err)

		_, err = env.Bank.ProcessTransaction(context.Background(), txn)
		assertTransactionError(t, err, solana.TransactionErrorAlreadyProcessed)
	})

	t.Run("unknown blockhash", func(t *testing.T) {
		txn := solana.NewTransaction(pub(sender), system.Transfer(pub(sender), receiver, 1_000_000))
		txn.SetBlockhash(solana.Blockhash{1, 2, 3})
		require.NoError(t, txn.Sign(sender))

		_, err := env.Bank.ProcessTransaction(context.Background(), txn)
		assertTransactionError(t, err, solana.TransactionErrorBlockhashNotFound)
	})

	t.Run("bad signature", func(t *testing.T) {
		txn := solana.NewTransaction(pub(sender), system.Transfer(pub(sender), receiver, 1_000_000))
		txn.SetBlockhash(env.Bank.LatestBlockhash())
		require.NoError(t, txn.Sign(sender))
		txn.Signatures[0][0] ^= 0xff

		_, err := env.Bank.ProcessTransaction(context.Background(), txn)
		assertTransactionError(t, err, solana.TransactionErrorSignatureFailure)
	})

	t.Run("missing signature", func(t *testing.T) {
		txn := solana.NewTransaction(pub(sender), system.Transfer(pub(sender), receiver, 1_000_000))
		txn.SetBlockhash(env.Bank.LatestBlockhash())

		_, err := env.Bank.ProcessTransaction(context.Background(), txn)
		assertTransactionError(t, err, solana.TransactionErrorSignatureFailure)
	})

	t.Run("unfunded fee payer", func(t *testing.T) {
		payer := testutil.GenerateSolanaKeypair(t)
		_, err := env.Submit(t, solana.NewTransaction(pub(payer), system.Transfer(pub(payer), receiver, 1)), payer)
		assertTransactionError(t, err, solana.TransactionErrorAccountNotFound)
	})

	t.Run("insufficient funds for fee", func(t *testing.T) {
		payer := testutil.GenerateSolanaKeypair(t)
		require.NoError(t, env.Bank.Genesis(context.Background(), map[string]uint64{string(pub(payer)): fee - 1}))

		_, err := env.Submit(t, solana.NewTransaction(pub(payer), system.Transfer(pub(payer), receiver, 1)), payer)
		assertTransactionError(t, err, solana.TransactionErrorInsufficientFundsForFee)
	})

	t.Run("unknown program", func(t *testing.T) {
		program := testutil.GenerateSolanaKeys(t, 1)[0]
		_, err := env.Submit(t, solana.NewTransaction(pub(sender), solana.NewInstruction(program, nil)), sender)
		assertTransactionError(t, err, solana.TransactionErrorProgramAccountNotFound)
	})

	t.Run("new account below rent exempt minimum", func(t *testing.T) {
		recipient := testutil.GenerateSolanaKeys(t, 1)[0]
		_, err := env.Submit(t, solana.NewTransaction(pub(sender), system.Transfer(pub(sender), recipient, 1_000)), sender)
		assertTransactionError(t, err, solana.TransactionErrorInsufficientFundsForRent)
		assert.Zero(t, env.Balance(t, recipient))
	})

	t.Run("emptying an account", func(t *testing.T) {
		payer := testutil.GenerateSolanaKeypair(t)
		emptied := testutil.GenerateSolanaKeypair(t)
		env.Fund(t, pub(payer), 1_000_000_000)
		env.Fund(t, pub(emptied), 2_000_000)

		txn := solana.NewTransaction(pub(payer), system.Transfer(pub(emptied), receiver, 2_000_000))
		_, err := env.Submit(t, txn, payer, emptied)
		require.NoError(t, err)

		_, err = env.Bank.GetAccount(context.Background(), pub(emptied))
		assert.Equal(t, runtime.ErrAccountNotFound, err)
	})
}

func TestBank_CreateAccount(t *testing.T) {
	env := testutil.NewTestLedger(t)
	rent := env.Bank.Rent()

	payer := testutil.GenerateSolanaKeypair(t)
	created := testutil.GenerateSolanaKeypair(t)
	owner := testutil.GenerateSolanaKeys(t, 1)[0]
	env.Fund(t, pub(payer), 1_000_000_000)

	_, err := env.Submit(t, solana.NewTransaction(pub(payer), system.CreateAccount(pub(payer), pub(created), owner, rent.MinimumBalance(64)-1, 64)), payer, created)
	assertInstructionError(t, err, 0, solana.InstructionErrorInsufficientFunds)

	_, err = env.Submit(t, solana.NewTransaction(pub(payer), system.CreateAccount(pub(payer), pub(created), owner, rent.MinimumBalance(64), 64)), payer, created)
	require.NoError(t, err)

	account, err := env.Bank.GetAccount(context.Background(), pub(created))
	require.NoError(t, err)
	assert.EqualValues(t, rent.MinimumBalance(64), account.Lamports)
	assert.EqualValues(t, owner, account.Owner)
	assert.Equal(t, make([]byte, 64), account.Data)

	_, err = env.Submit(t, solana.NewTransaction(pub(payer), system.CreateAccount(pub(payer), pub(created), owner, rent.MinimumBalance(64), 64)), payer, created)
	assertInstructionError(t, err, 0, solana.InstructionErrorAccountAlreadyInUse)
}

func TestBank_Allocate(t *testing.T) {
	env := testutil.NewTestLedger(t)
	rent := env.Bank.Rent()

	payer := testutil.GenerateSolanaKeypair(t)
	target := testutil.GenerateSolanaKeypair(t)
	env.Fund(t, pub(payer), 1_000_000_000)
	env.Fund(t, pub(target), rent.MinimumBalance(0))

	// Exempt while empty, but not once it holds 64 bytes
	_, err := env.Submit(t, solana.NewTransaction(pub(payer), system.Allocate(pub(target), 64)), payer, target)
	assertTransactionError(t, err, solana.TransactionErrorInsufficientFundsForRent)

	env.Fund(t, pub(target), rent.MinimumBalance(64)-rent.MinimumBalance(0))
	_, err = env.Submit(t, solana.NewTransaction(pub(payer), system.Allocate(pub(target), 64)), payer, target)
	require.NoError(t, err)

	account, err := env.Bank.GetAccount(context.Background(), pub(target))
	require.NoError(t, err)
	assert.EqualValues(t, system.ProgramKey, account.Owner)
	assert.Equal(t, make([]byte, 64), account.Data)

	_, err = env.Submit(t, solana.NewTransaction(pub(payer), system.Allocate(pub(target), 64)), payer, target)
	assertInstructionError(t, err, 0, solana.InstructionErrorAccountAlreadyInUse)

	_, err = env.Submit(t, solana.NewTransaction(pub(payer), system.Allocate(pub(payer), runtime.MaxPermittedDataLength+1)), payer)
	assertInstructionError(t, err, 0, solana.InstructionErrorInvalidArgument)
}

func TestBank_OwnershipRules(t *testing.T) {
	env := testutil.NewTestLedger(t)

	payer := testutil.GenerateSolanaKeypair(t)
	victim := testutil.GenerateSolanaKeypair(t)
	env.Fund(t, pub(payer), 1_000_000_000)
	env.Fund(t, pub(victim), 1_000_000_000)

	thief := testutil.GenerateSolanaKeys(t, 1)[0]
	env.Bank.RegisterProgram(thief, runtime.ProgramFunc(func(ctx *runtime.InvokeContext, _ []byte) error {
		from, err := ctx.Account(0)
		if err != nil {
			return err
		}
		to, err := ctx.Account(1)
		if err != nil {
			return err
		}
		from.Lamports -= 100
		to.Lamports += 100
		return nil
	}))

	minter := testutil.GenerateSolanaKeys(t, 1)[0]
	env.Bank.RegisterProgram(minter, runtime.ProgramFunc(func(ctx *runtime.InvokeContext, _ []byte) error {
		to, err := ctx.Account(0)
		if err != nil {
			return err
		}
		to.Lamports += 100
		return nil
	}))

	scribbler := testutil.GenerateSolanaKeys(t, 1)[0]
	env.Bank.RegisterProgram(scribbler, runtime.ProgramFunc(func(ctx *runtime.InvokeContext, _ []byte) error {
		account, err := ctx.Account(0)
		if err != nil {
			return err
		}
		account.Data = []byte{1}
		return nil
	}))

	_, err := env.Submit(t, solana.NewTransaction(pub(payer), solana.NewInstruction(
		thief,
		nil,
		solana.NewAccountMeta(pub(victim), false),
		solana.NewAccountMeta(pub(payer), false),
	)), payer)
	assertInstructionError(t, err, 0, solana.InstructionErrorExternalAccountLamportSpend)

	_, err = env.Submit(t, solana.NewTransaction(pub(payer), solana.NewInstruction(
		minter,
		nil,
		solana.NewAccountMeta(pub(victim), false),
	)), payer)
	assertInstructionError(t, err, 0, solana.InstructionErrorUnbalancedInstruction)

	_, err = env.Submit(t, solana.NewTransaction(pub(payer), solana.NewInstruction(
		scribbler,
		nil,
		solana.NewAccountMeta(pub(victim), false),
	)), payer)
	assertInstructionError(t, err, 0, solana.InstructionErrorExternalAccountDataModified)

	_, err = env.Submit(t, solana.NewTransaction(pub(payer), solana.NewInstruction(
		scribbler,
		nil,
		solana.NewReadonlyAccountMeta(pub(victim), false),
	)), payer)
	assertInstructionError(t, err, 0, solana.InstructionErrorReadonlyDataModified)

	assert.EqualValues(t, 1_000_000_000, env.Balance(t, pub(payer)))
	assert.EqualValues(t, 1_000_000_000, env.Balance(t, pub(victim)))
}

var testSeedPrefix = []byte("test")

// newDerivingProgram creates an 8 byte account at the address derived from
// the funder, signing the system program invocation with the derivation seeds
// when sign is set.
func newDerivingProgram(sign bool) runtime.Program {
	return runtime.ProgramFunc(func(ctx *runtime.InvokeContext, data []byte) error {
		if len(data) != 1 {
			return solana.InstructionErrorInvalidInstructionData
		}

		funder, err := ctx.Account(0)
		if err != nil {
			return err
		}
		derived, err := ctx.Account(1)
		if err != nil {
			return err
		}

		ix := system.CreateAccount(funder.Key, derived.Key, ctx.ProgramID(), ctx.Rent().MinimumBalance(8), 8)
		if !sign {
			return ctx.Invoke(ix)
		}

		ctx.Logf("creating %d byte account", 8)
		return ctx.Invoke(ix, [][]byte{testSeedPrefix, funder.Key, data})
	})
}

func TestBank_InvokeSigned(t *testing.T) {
	env := testutil.NewTestLedger(t)

	signing := testutil.GenerateSolanaKeys(t, 1)[0]
	env.Bank.RegisterProgram(signing, newDerivingProgram(true))

	unsigned := testutil.GenerateSolanaKeys(t, 1)[0]
	env.Bank.RegisterProgram(unsigned, newDerivingProgram(false))

	payer := testutil.GenerateSolanaKeypair(t)
	env.Fund(t, pub(payer), 1_000_000_000)

	for _, program := range []ed25519.PublicKey{signing, unsigned} {
		address, bump, err := solana.FindProgramAddressAndBump(program, testSeedPrefix, pub(payer))
		require.NoError(t, err)

		txn := solana.NewTransaction(pub(payer), solana.NewInstruction(
			program,
			[]byte{bump},
			solana.NewAccountMeta(pub(payer), true),
			solana.NewAccountMeta(address, false),
			solana.NewReadonlyAccountMeta(system.ProgramKey, false),
		))

		if program.Equal(unsigned) {
			_, err = env.Submit(t, txn, payer)
			assertInstructionError(t, err, 0, solana.InstructionErrorPrivilegeEscalation)
			continue
		}

		result, err := env.Submit(t, txn, payer)
		require.NoError(t, err)
		assert.Contains(t, result.Logs, "Program log: creating 8 byte account")
		assert.Contains(t, result.Logs, "Program 11111111111111111111111111111111 invoke [2]")

		account, err := env.Bank.GetAccount(context.Background(), address)
		require.NoError(t, err)
		assert.EqualValues(t, program, account.Owner)
		assert.EqualValues(t, env.Bank.Rent().MinimumBalance(8), account.Lamports)
		assert.Len(t, account.Data, 8)

		// The seeds must produce the derived address
		txn = solana.NewTransaction(pub(payer), solana.NewInstruction(
			program,
			[]byte{bump - 1},
			solana.NewAccountMeta(pub(payer), true),
			solana.NewAccountMeta(testutil.GenerateSolanaKeys(t, 1)[0], false),
			solana.NewReadonlyAccountMeta(system.ProgramKey, false),
		))
		_, err = env.Submit(t, txn, payer)
		require.Error(t, err)
	}
}

type testCustomError uint32

func (e testCustomError) Error() string {
	return "test custom error"
}

func (e testCustomError) Custom() solana.CustomError {
	return solana.CustomError(e)
}

func TestBank_CustomErrors(t *testing.T) {
	env := testutil.NewTestLedger(t)

	program := testutil.GenerateSolanaKeys(t, 1)[0]
	env.Bank.RegisterProgram(program, runtime.ProgramFunc(func(ctx *runtime.InvokeContext, _ []byte) error {
		return errors.Wrap(testCustomError(6003), "wrapped")
	}))

	payer := testutil.GenerateSolanaKeypair(t)
	env.Fund(t, pub(payer), 1_000_000_000)

	_, err := env.Submit(t, solana.NewTransaction(pub(payer), solana.NewInstruction(program, nil)), payer)
	require.Error(t, err)

	var txErr *solana.TransactionError
	require.True(t, errors.As(err, &txErr))
	require.NotNil(t, txErr.InstructionError())
	require.NotNil(t, txErr.InstructionError().CustomError())
	assert.EqualValues(t, 6003, *txErr.InstructionError().CustomError())
	assert.True(t, errors.Is(err, testCustomError(6003)))
	assert.False(t, errors.Is(err, testCustomError(6004)))

	raw, err := txErr.JSONString()
	require.NoError(t, err)
	assert.Equal(t, `{"InstructionError":[0,{"Custom":6003}]}`, raw)
}

func TestBank_ConcurrentTransfers(t *testing.T) {
	env := testutil.NewTestLedger(t)

	receiver := testutil.GenerateSolanaKeys(t, 1)[0]
	env.Fund(t, receiver, 1_000_000_000)

	const senders = 16
	const transfersPerSender = 8

	keys := make([]ed25519.PrivateKey, senders)
	for i := range keys {
		keys[i] = testutil.GenerateSolanaKeypair(t)
		env.Fund(t, pub(keys[i]), 1_000_000_000)
	}

	var wg sync.WaitGroup
	errs := make(chan error, senders*transfersPerSender)
	for _, key := range keys {
		wg.Add(1)
		go func(key ed25519.PrivateKey) {
			defer wg.Done()

			for i := 0; i < transfersPerSender; i++ {
				txn := solana.NewTransaction(pub(key), system.Transfer(pub(key), receiver, uint64(1_000+i)))
				txn.SetBlockhash(env.Bank.LatestBlockhash())
				if err := txn.Sign(key); err != nil {
					errs <- err
					continue
				}
				_, err := env.Bank.ProcessTransaction(context.Background(), txn)
				errs <- err
			}
		}(key)
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		require.NoError(t, err)
	}

	var perSender uint64
	for i := 0; i < transfersPerSender; i++ {
		perSender += uint64(1_000 + i)
	}
	assert.EqualValues(t, 1_000_000_000+senders*perSender, env.Balance(t, receiver))
	for _, key := range keys {
		assert.EqualValues(t, 1_000_000_000-perSender-transfersPerSender*fee, env.Balance(t, pub(key)))
	}
}

func TestBank_ExpiredSignaturesArePruned(t *testing.T) {
	conf := runtime.DefaultConfig()
	conf.MaxBlockhashAge = 2

	bank, err := runtime.NewBank(memory.New(), conf)
	require.NoError(t, err)

	sender := testutil.GenerateSolanaKeypair(t)
	receiver := testutil.GenerateSolanaKeys(t, 1)[0]
	require.NoError(t, bank.Genesis(context.Background(), map[string]uint64{string(pub(sender)): 10_000_000_000}))

	submit := func(amount uint64) (solana.Transaction, *runtime.ExecutionResult) {
		txn := solana.NewTransaction(pub(sender), system.Transfer(pub(sender), receiver, amount))
		txn.SetBlockhash(bank.LatestBlockhash())
		require.NoError(t, txn.Sign(sender))

		result, err := bank.ProcessTransaction(context.Background(), txn)
		require.NoError(t, err)
		return txn, result
	}

	first, firstResult := submit(1_000_000_000)
	_, ok := bank.GetSignatureSlot(firstResult.Signature)
	assert.True(t, ok)

	_, err = bank.ProcessTransaction(context.Background(), first)
	assertTransactionError(t, err, solana.TransactionErrorAlreadyProcessed)

	_, secondResult := submit(1_000_000_001)

	// The first transaction's blockhash has aged out, so it can't be replayed
	// and its status is no longer tracked.
	_, ok = bank.GetSignatureSlot(firstResult.Signature)
	assert.False(t, ok)
	_, ok = bank.GetSignatureSlot(secondResult.Signature)
	assert.True(t, ok)

	_, err = bank.ProcessTransaction(context.Background(), first)
	assertTransactionError(t, err, solana.TransactionErrorBlockhashNotFound)
}

func TestBank_InvalidConfig(t *testing.T) {
	conf := runtime.DefaultConfig()
	conf.MaxBlockhashAge = 0

	_, err := runtime.NewBank(memory.New(), conf)
	assert.Error(t, err)
}

func pub(key ed25519.PrivateKey) ed25519.PublicKey {
	return key.Public().(ed25519.PublicKey)
}

func assertTransactionError(t *testing.T, err error, expected solana.TransactionErrorKey) {
	require.Error(t, err)

	var txErr *solana.TransactionError
	require.True(t, errors.As(err, &txErr), "unexpected error: %v", err)
	assert.Equal(t, expected, txErr.ErrorKey())
}

func assertInstructionError(t *testing.T, err error, index int, expected solana.InstructionErrorKey) {
	assertTransactionError(t, err, solana.TransactionErrorInstructionError)

	var txErr *solana.TransactionError
	require.True(t, errors.As(err, &txErr))
	require.NotNil(t, txErr.InstructionError())
	assert.Equal(t, index, txErr.InstructionError().Index)
	assert.Equal(t, expected, txErr.InstructionError().ErrorKey())
}
