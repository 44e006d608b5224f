package program

import (
	"bytes"

	"github.com/code-payments/code-vault/pkg/solana"
	"github.com/code-payments/code-vault/pkg/solana/runtime"
	"github.com/code-payments/code-vault/pkg/solana/system"
	"github.com/code-payments/code-vault/pkg/solana/vault"
)

// processInitialize creates the owner's state account, records both bumps in
// it, and creates the vault funded at its rent exempt minimum. Either address
// may already hold lamports sent by anyone; such accounts are adopted rather
// than rejected.
func (p *Program) processInitialize(ctx *runtime.InvokeContext) error {
	accounts, err := loadInstructionAccounts(ctx)
	if err != nil {
		return err
	}

	programID := ctx.ProgramID()

	stateAddress, stateBump, err := solana.FindProgramAddressAndBump(programID, vault.StatePrefix, accounts.user.Key)
	if err != nil || !bytes.Equal(stateAddress, accounts.state.Key) {
		return vault.ErrDerivationMismatch
	}

	vaultAddress, vaultBump, err := solana.FindProgramAddressAndBump(programID, vault.VaultPrefix, stateAddress)
	if err != nil || !bytes.Equal(vaultAddress, accounts.vault.Key) {
		return vault.ErrDerivationMismatch
	}

	if !isUnclaimed(accounts.state) || !isUnclaimed(accounts.vault) {
		return vault.ErrAlreadyInitialized
	}

	rent := ctx.Rent()
	required := shortfall(accounts.state, rent.MinimumBalance(vault.VaultStateSize)) +
		shortfall(accounts.vault, rent.MinimumBalance(0))
	if accounts.user.Lamports < required {
		ctx.Logf("%d lamports required to initialize, have %d", required, accounts.user.Lamports)
		return vault.ErrInsufficientFunds
	}

	err = claim(ctx, accounts.user, accounts.state, vault.VaultStateSize, vault.StateSignerSeeds(accounts.user.Key, stateBump))
	if err != nil {
		return err
	}

	state := &vault.VaultState{
		VaultBump: vaultBump,
		StateBump: stateBump,
	}
	copy(accounts.state.Data, state.Marshal())

	return claim(ctx, accounts.user, accounts.vault, 0, vault.VaultSignerSeeds(stateAddress, vaultBump))
}

// isUnclaimed reports whether a derived address can still become a program
// account: it either doesn't exist or is a plain system account holding
// lamports someone sent to it.
func isUnclaimed(account *runtime.AccountInfo) bool {
	if !account.Exists() {
		return true
	}
	return bytes.Equal(account.Owner, system.ProgramKey) && len(account.Data) == 0
}

func shortfall(account *runtime.AccountInfo, minimum uint64) uint64 {
	if account.Lamports >= minimum {
		return 0
	}
	return minimum - account.Lamports
}

// claim turns an unclaimed derived address into a rent exempt account of size
// bytes owned by the program, paid for by payer. A funded address is topped
// up, allocated and assigned in place, since CreateAccount refuses accounts
// that already hold lamports.
func claim(ctx *runtime.InvokeContext, payer, account *runtime.AccountInfo, size uint64, seeds [][]byte) error {
	programID := ctx.ProgramID()
	minimum := ctx.Rent().MinimumBalance(size)

	if !account.Exists() {
		return ctx.Invoke(system.CreateAccount(payer.Key, account.Key, programID, minimum, size), seeds)
	}

	if topUp := shortfall(account, minimum); topUp > 0 {
		if err := ctx.Invoke(system.Transfer(payer.Key, account.Key, topUp)); err != nil {
			return err
		}
	}
	if size > 0 {
		if err := ctx.Invoke(system.Allocate(account.Key, size), seeds); err != nil {
			return err
		}
	}
	return ctx.Invoke(system.Assign(account.Key, programID), seeds)
}
