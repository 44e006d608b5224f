package testutil

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-vault/pkg/code/common"
)

func NewRandomAccount(t *testing.T) *common.Account {
	account, err := common.NewRandomAccount()
	require.NoError(t, err)

	return account
}

// NewRandomVaultAccounts returns the vault accounts of a new random owner.
func NewRandomVaultAccounts(t *testing.T) *common.VaultAccounts {
	vaultAccounts, err := NewRandomAccount(t).GetVaultAccounts()
	require.NoError(t, err)

	return vaultAccounts
}
