package program

import (
	"github.com/code-payments/code-vault/pkg/solana/runtime"
	"github.com/code-payments/code-vault/pkg/solana/vault"
)

// processWithdraw debits the vault directly. The vault never drops below its
// rent exempt minimum; only close may empty it.
func (p *Program) processWithdraw(ctx *runtime.InvokeContext, args *vault.WithdrawInstructionArgs) error {
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

	minimum := ctx.Rent().MinimumBalance(uint64(len(accounts.vault.Data)))
	if accounts.vault.Lamports < minimum || args.Amount > accounts.vault.Lamports-minimum {
		ctx.Logf("withdrawal of %d exceeds available balance", args.Amount)
		return vault.ErrInsufficientFunds
	}
	if accounts.user.Lamports+args.Amount < accounts.user.Lamports {
		return vault.ErrArithmeticOverflow
	}

	accounts.vault.Lamports -= args.Amount
	accounts.user.Lamports += args.Amount

	return nil
}
