package runtime

import (
	"bytes"
	"math/bits"

	"github.com/mr-tron/base58"

	"github.com/code-payments/code-vault/pkg/solana"
	"github.com/code-payments/code-vault/pkg/solana/system"
)

// systemProgram is the builtin that creates and allocates accounts, assigns
// owners and moves lamports out of system owned accounts.
type systemProgram struct{}

func (p *systemProgram) Process(ctx *InvokeContext, data []byte) error {
	cmd, err := system.GetCommand(data)
	if err != nil {
		return solana.InstructionErrorInvalidInstructionData
	}

	switch cmd {
	case system.CommandCreateAccount:
		return p.processCreateAccount(ctx, data)
	case system.CommandAssign:
		return p.processAssign(ctx, data)
	case system.CommandTransfer:
		return p.processTransfer(ctx, data)
	case system.CommandAllocate:
		return p.processAllocate(ctx, data)
	default:
		return solana.InstructionErrorInvalidInstructionData
	}
}

func (p *systemProgram) processCreateAccount(ctx *InvokeContext, data []byte) error {
	var args system.CreateAccountArgs
	if err := args.Unmarshal(data); err != nil {
		return solana.InstructionErrorInvalidInstructionData
	}

	if args.Size > MaxPermittedDataLength {
		return solana.InstructionErrorInvalidArgument
	}

	funder, err := ctx.Account(0)
	if err != nil {
		return err
	}
	newAccount, err := ctx.Account(1)
	if err != nil {
		return err
	}

	if !funder.IsSigner || !newAccount.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}

	if newAccount.Lamports > 0 || len(newAccount.Data) > 0 || !bytes.Equal(newAccount.Owner, system.ProgramKey) {
		ctx.Logf("Create Account: account %s already in use", base58.Encode(newAccount.Key))
		return solana.InstructionErrorAccountAlreadyInUse
	}

	if !ctx.Rent().IsExempt(args.Lamports, args.Size) {
		ctx.Logf("Create Account: %d lamports is below the rent exempt minimum", args.Lamports)
		return solana.InstructionErrorInsufficientFunds
	}

	if err := debitSystemAccount(ctx, funder, args.Lamports); err != nil {
		return err
	}

	newAccount.Lamports = args.Lamports
	newAccount.Data = make([]byte, args.Size)
	newAccount.Owner = args.Owner

	return nil
}

func (p *systemProgram) processAssign(ctx *InvokeContext, data []byte) error {
	var args system.AssignArgs
	if err := args.Unmarshal(data); err != nil {
		return solana.InstructionErrorInvalidInstructionData
	}

	account, err := ctx.Account(0)
	if err != nil {
		return err
	}

	if bytes.Equal(account.Owner, args.Owner) {
		return nil
	}
	if !account.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}
	if !bytes.Equal(account.Owner, system.ProgramKey) {
		return solana.InstructionErrorInvalidAccountOwner
	}

	account.Owner = args.Owner
	return nil
}

func (p *systemProgram) processAllocate(ctx *InvokeContext, data []byte) error {
	var args system.AllocateArgs
	if err := args.Unmarshal(data); err != nil {
		return solana.InstructionErrorInvalidInstructionData
	}

	account, err := ctx.Account(0)
	if err != nil {
		return err
	}

	if !account.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}
	if len(account.Data) > 0 || !bytes.Equal(account.Owner, system.ProgramKey) {
		ctx.Logf("Allocate: account %s already in use", base58.Encode(account.Key))
		return solana.InstructionErrorAccountAlreadyInUse
	}
	if args.Size > MaxPermittedDataLength {
		return solana.InstructionErrorInvalidArgument
	}

	account.Data = make([]byte, args.Size)
	return nil
}

func (p *systemProgram) processTransfer(ctx *InvokeContext, data []byte) error {
	var args system.TransferArgs
	if err := args.Unmarshal(data); err != nil {
		return solana.InstructionErrorInvalidInstructionData
	}

	from, err := ctx.Account(0)
	if err != nil {
		return err
	}
	to, err := ctx.Account(1)
	if err != nil {
		return err
	}

	if !from.IsSigner {
		return solana.InstructionErrorMissingRequiredSignature
	}

	if err := debitSystemAccount(ctx, from, args.Lamports); err != nil {
		return err
	}

	sum, carry := bits.Add64(to.Lamports, args.Lamports, 0)
	if carry != 0 {
		return solana.InstructionErrorArithmeticOverflow
	}
	to.Lamports = sum

	return nil
}

// debitSystemAccount removes lamports from a system owned account that holds
// no data.
func debitSystemAccount(ctx *InvokeContext, from *AccountInfo, lamports uint64) error {
	if len(from.Data) > 0 {
		ctx.Logf("Transfer: `from` must not carry data")
		return solana.InstructionErrorInvalidArgument
	}
	if !bytes.Equal(from.Owner, system.ProgramKey) {
		return solana.InstructionErrorInvalidAccountOwner
	}
	if from.Lamports < lamports {
		ctx.Logf("Transfer: insufficient lamports %d, need %d", from.Lamports, lamports)
		return solana.InstructionErrorInsufficientFunds
	}

	from.Lamports -= lamports
	return nil
}
