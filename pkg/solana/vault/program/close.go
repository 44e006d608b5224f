package program

import (
	"github.com/code-payments/code-vault/pkg/solana/runtime"
	"github.com/code-payments/code-vault/pkg/solana/system"
	"github.com/code-payments/code-vault/pkg/solana/vault"
)

// processClose returns every lamport held by the vault and state accounts to
// the owner and releases both accounts. The bank deletes them when the
// transaction commits.
func (p *Program) processClose(ctx *runtime.InvokeContext) error {
	accounts, err := loadInstructionAccounts(ctx)
	if err != nil {
		return err
	}

	if _, err := loadVaultState(ctx, accounts); err != nil {
		return err
	}

	reclaimed := accounts.vault.Lamports + accounts.state.Lamports
	if reclaimed < accounts.vault.Lamports || accounts.user.Lamports+reclaimed < accounts.user.Lamports {
		return vault.ErrArithmeticOverflow
	}

	accounts.user.Lamports += reclaimed

	for _, closed := range []*runtime.AccountInfo{accounts.vault, accounts.state} {
		closed.Lamports = 0
		closed.Data = nil
		closed.Owner = system.ProgramKey
	}

	return nil
}
