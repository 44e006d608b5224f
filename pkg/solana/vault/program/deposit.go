package program

import (
	"github.com/code-payments/code-vault/pkg/solana/runtime"
	"github.com/code-payments/code-vault/pkg/solana/system"
	"github.com/code-payments/code-vault/pkg/solana/vault"
)

// processDeposit moves amount lamports from the owner to the vault through
// the system program.
func (p *Program) processDeposit(ctx *runtime.InvokeContext, args *vault.DepositInstructionArgs) error {
	if args.Amount == 0 {
		return vault.ErrInvalidAmount
	}

	accounts, err := loadInstructionAccounts(ctx)
	if err != nil {
		return err
	}

	if _, err := loadVaultState(ctx, accounts); err != nil {
		return err
	}

	if accounts.user.Lamports < args.Amount {
		ctx.Logf("deposit of %d exceeds balance of %d", args.Amount, accounts.user.Lamports)
		return vault.ErrInsufficientFunds
	}
	if accounts.vault.Lamports+args.Amount < accounts.vault.Lamports {
		return vault.ErrArithmeticOverflow
	}

	return ctx.Invoke(system.Transfer(accounts.user.Key, accounts.vault.Key, args.Amount))
}
