package program

import (
	"bytes"

	"github.com/mr-tron/base58"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-vault/pkg/solana"
	"github.com/code-payments/code-vault/pkg/solana/runtime"
	"github.com/code-payments/code-vault/pkg/solana/vault"
)

// Program executes vault instructions on a runtime.Bank.
type Program struct {
	log *logrus.Entry
}

func New() *Program {
	return &Program{
		log: logrus.StandardLogger().WithField("type", "solana/vault/program"),
	}
}

// Register makes the program executable at vault.PROGRAM_ID.
func Register(bank *runtime.Bank) *Program {
	p := New()
	bank.RegisterProgram(vault.PROGRAM_ID, p)
	return p
}

// Process implements runtime.Program.Process
func (p *Program) Process(ctx *runtime.InvokeContext, data []byte) error {
	typ, err := vault.GetInstructionType(data)
	if err != nil {
		return solana.InstructionErrorInvalidInstructionData
	}

	log := p.log.WithField("instruction", typ.String())

	switch typ {
	case vault.InstructionTypeInitialize:
		_, err = vault.InitializeInstructionArgsFromBinary(data)
		if err != nil {
			return solana.InstructionErrorInvalidInstructionData
		}
		ctx.Logf("Instruction: Initialize")
		err = p.processInitialize(ctx)
	case vault.InstructionTypeDeposit:
		var args *vault.DepositInstructionArgs
		args, err = vault.DepositInstructionArgsFromBinary(data)
		if err != nil {
			return solana.InstructionErrorInvalidInstructionData
		}
		ctx.Logf("Instruction: Deposit")
		err = p.processDeposit(ctx, args)
	case vault.InstructionTypeWithdraw:
		var args *vault.WithdrawInstructionArgs
		args, err = vault.WithdrawInstructionArgsFromBinary(data)
		if err != nil {
			return solana.InstructionErrorInvalidInstructionData
		}
		ctx.Logf("Instruction: Withdraw")
		err = p.processWithdraw(ctx, args)
	case vault.InstructionTypeClose:
		_, err = vault.CloseInstructionArgsFromBinary(data)
		if err != nil {
			return solana.InstructionErrorInvalidInstructionData
		}
		ctx.Logf("Instruction: Close")
		err = p.processClose(ctx)
	default:
		return solana.InstructionErrorInvalidInstructionData
	}

	if err != nil {
		if vaultErr, ok := err.(vault.VaultError); ok {
			ctx.Logf("Error Code: %s. Error Number: %d.", vaultErr.Error(), uint32(vaultErr))
		}
		log.WithError(err).Debug("instruction rejected")
	}
	return err
}

// instructionAccounts are the accounts every vault instruction takes, in
// order.
type instructionAccounts struct {
	user  *runtime.AccountInfo
	state *runtime.AccountInfo
	vault *runtime.AccountInfo
}

func loadInstructionAccounts(ctx *runtime.InvokeContext) (*instructionAccounts, error) {
	if ctx.NumAccounts() < 4 {
		return nil, solana.InstructionErrorNotEnoughAccountKeys
	}

	accounts := make([]*runtime.AccountInfo, 4)
	for i := range accounts {
		account, err := ctx.Account(i)
		if err != nil {
			return nil, err
		}
		accounts[i] = account
	}

	if !bytes.Equal(accounts[3].Key, vault.SYSTEM_PROGRAM_ID) {
		return nil, solana.InstructionErrorIncorrectProgramID
	}

	user, state, vaultAccount := accounts[0], accounts[1], accounts[2]
	if !user.IsSigner {
		ctx.Logf("%s did not sign", base58.Encode(user.Key))
		return nil, vault.ErrUnauthorizedSigner
	}
	for _, account := range []*runtime.AccountInfo{user, state, vaultAccount} {
		if !account.IsWritable {
			ctx.Logf("%s is not writable", base58.Encode(account.Key))
			return nil, vault.ErrAccountNotWritable
		}
	}

	return &instructionAccounts{
		user:  user,
		state: state,
		vault: vaultAccount,
	}, nil
}

// loadVaultState authenticates the state and vault accounts of an
// initialized vault against the bumps recorded at initialization.
func loadVaultState(ctx *runtime.InvokeContext, accounts *instructionAccounts) (*vault.VaultState, error) {
	programID := ctx.ProgramID()

	if !isInitialized(programID, accounts.state) {
		expected, _, err := solana.FindProgramAddressAndBump(programID, vault.StatePrefix, accounts.user.Key)
		if err != nil || !bytes.Equal(expected, accounts.state.Key) {
			return nil, vault.ErrDerivationMismatch
		}
		return nil, vault.ErrNotInitialized
	}

	var state vault.VaultState
	if err := state.Unmarshal(accounts.state.Data); err != nil {
		return nil, solana.InstructionErrorInvalidAccountData
	}

	stateAddress, err := solana.CreateProgramAddress(programID, vault.StateSignerSeeds(accounts.user.Key, state.StateBump)...)
	if err != nil || !bytes.Equal(stateAddress, accounts.state.Key) {
		ctx.Logf("state account does not match the owner")
		return nil, vault.ErrDerivationMismatch
	}

	vaultAddress, err := solana.CreateProgramAddress(programID, vault.VaultSignerSeeds(accounts.state.Key, state.VaultBump)...)
	if err != nil || !bytes.Equal(vaultAddress, accounts.vault.Key) {
		ctx.Logf("vault account does not match the state")
		return nil, vault.ErrDerivationMismatch
	}

	if !accounts.vault.Exists() || !bytes.Equal(accounts.vault.Owner, programID) {
		return nil, vault.ErrNotInitialized
	}

	return &state, nil
}

func isInitialized(programID []byte, account *runtime.AccountInfo) bool {
	return account.Exists() && bytes.Equal(account.Owner, programID) && len(account.Data) > 0
}
