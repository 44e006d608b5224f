package tests

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-vault/pkg/solana/runtime"
	"github.com/code-payments/code-vault/pkg/solana/system"
)

func RunTests(t *testing.T, s runtime.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s runtime.Store){
		testRoundTrip,
		testUpdate,
		testDelete,
		testBatchCommit,
		testIsolation,
	} {
		tf(t, s)
		teardown()
	}
}

func testRoundTrip(t *testing.T, s runtime.Store) {
	t.Run("testRoundTrip", func(t *testing.T) {
		ctx := context.Background()

		address := generateKey(t)
		_, err := s.Get(ctx, address)
		assert.Equal(t, runtime.ErrAccountNotFound, err)

		expected := &runtime.Account{
			Lamports:   960_480,
			Owner:      generateKey(t),
			Data:       []byte{1, 2, 3, 4, 5, 6, 7, 8, 9, 10},
			Executable: false,
		}
		require.NoError(t, s.Commit(ctx, []*runtime.AccountUpdate{
			{Address: address, Account: expected},
		}))

		actual, err := s.Get(ctx, address)
		require.NoError(t, err)
		assertEquivalentAccounts(t, expected, actual)

		// Data without a payload
		empty := generateKey(t)
		require.NoError(t, s.Commit(ctx, []*runtime.AccountUpdate{
			{Address: empty, Account: &runtime.Account{Lamports: 890_880, Owner: system.ProgramKey}},
		}))

		actual, err = s.Get(ctx, empty)
		require.NoError(t, err)
		assert.EqualValues(t, 890_880, actual.Lamports)
		assert.EqualValues(t, system.ProgramKey, actual.Owner)
		assert.Empty(t, actual.Data)
	})
}

func testUpdate(t *testing.T, s runtime.Store) {
	t.Run("testUpdate", func(t *testing.T) {
		ctx := context.Background()

		address := generateKey(t)
		account := &runtime.Account{
			Lamports: 1_000_000,
			Owner:    system.ProgramKey,
		}
		require.NoError(t, s.Commit(ctx, []*runtime.AccountUpdate{{Address: address, Account: account}}))

		updated := &runtime.Account{
			Lamports: 2_500_000,
			Owner:    generateKey(t),
			Data:     make([]byte, 10),
		}
		require.NoError(t, s.Commit(ctx, []*runtime.AccountUpdate{{Address: address, Account: updated}}))

		actual, err := s.Get(ctx, address)
		require.NoError(t, err)
		assertEquivalentAccounts(t, updated, actual)
	})
}

func testDelete(t *testing.T, s runtime.Store) {
	t.Run("testDelete", func(t *testing.T) {
		ctx := context.Background()

		address := generateKey(t)
		require.NoError(t, s.Commit(ctx, []*runtime.AccountUpdate{{
			Address: address,
			Account: &runtime.Account{Lamports: 1_000_000, Owner: generateKey(t), Data: []byte{1}},
		}}))

		// Zero lamports deletes the account, regardless of its remaining state
		require.NoError(t, s.Commit(ctx, []*runtime.AccountUpdate{{
			Address: address,
			Account: &runtime.Account{Owner: generateKey(t), Data: []byte{1}},
		}}))

		_, err := s.Get(ctx, address)
		assert.Equal(t, runtime.ErrAccountNotFound, err)

		// Deleting an account that does not exist is a no-op
		require.NoError(t, s.Commit(ctx, []*runtime.AccountUpdate{{Address: generateKey(t)}}))
	})
}

func testBatchCommit(t *testing.T, s runtime.Store) {
	t.Run("testBatchCommit", func(t *testing.T) {
		ctx := context.Background()

		require.NoError(t, s.Commit(ctx, nil))

		keep, remove := generateKey(t), generateKey(t)
		require.NoError(t, s.Commit(ctx, []*runtime.AccountUpdate{
			{Address: keep, Account: &runtime.Account{Lamports: 10, Owner: system.ProgramKey}},
			{Address: remove, Account: &runtime.Account{Lamports: 20, Owner: system.ProgramKey}},
		}))

		var updates []*runtime.AccountUpdate
		var created []ed25519.PublicKey
		for i := 0; i < 10; i++ {
			address := generateKey(t)
			created = append(created, address)
			updates = append(updates, &runtime.AccountUpdate{
				Address: address,
				Account: &runtime.Account{Lamports: uint64(i + 1), Owner: system.ProgramKey},
			})
		}
		updates = append(updates,
			&runtime.AccountUpdate{Address: keep, Account: &runtime.Account{Lamports: 30, Owner: system.ProgramKey}},
			&runtime.AccountUpdate{Address: remove, Account: &runtime.Account{Owner: system.ProgramKey}},
		)
		require.NoError(t, s.Commit(ctx, updates))

		for i, address := range created {
			actual, err := s.Get(ctx, address)
			require.NoError(t, err)
			assert.EqualValues(t, i+1, actual.Lamports)
		}

		actual, err := s.Get(ctx, keep)
		require.NoError(t, err)
		assert.EqualValues(t, 30, actual.Lamports)

		_, err = s.Get(ctx, remove)
		assert.Equal(t, runtime.ErrAccountNotFound, err)
	})
}

func testIsolation(t *testing.T, s runtime.Store) {
	t.Run("testIsolation", func(t *testing.T) {
		ctx := context.Background()

		address := generateKey(t)
		account := &runtime.Account{
			Lamports: 100,
			Owner:    system.ProgramKey,
			Data:     []byte{1, 2, 3},
		}
		require.NoError(t, s.Commit(ctx, []*runtime.AccountUpdate{{Address: address, Account: account}}))

		// Mutating committed or returned values must not leak into the store
		account.Lamports = 1
		account.Data[0] = 0xff

		actual, err := s.Get(ctx, address)
		require.NoError(t, err)
		assert.EqualValues(t, 100, actual.Lamports)
		assert.Equal(t, []byte{1, 2, 3}, actual.Data)

		actual.Lamports = 2
		actual.Data[1] = 0xff

		actual, err = s.Get(ctx, address)
		require.NoError(t, err)
		assert.EqualValues(t, 100, actual.Lamports)
		assert.Equal(t, []byte{1, 2, 3}, actual.Data)
	})
}

func assertEquivalentAccounts(t *testing.T, expected, actual *runtime.Account) {
	assert.Equal(t, expected.Lamports, actual.Lamports)
	assert.EqualValues(t, expected.Owner, actual.Owner)
	assert.Equal(t, expected.Executable, actual.Executable)
	if len(expected.Data) == 0 {
		assert.Empty(t, actual.Data)
	} else {
		assert.Equal(t, expected.Data, actual.Data)
	}
}

func generateKey(t *testing.T) ed25519.PublicKey {
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}
