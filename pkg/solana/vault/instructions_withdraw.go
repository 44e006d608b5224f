package vault

import (
	"crypto/ed25519"

	"github.com/code-payments/code-vault/pkg/solana"
	"github.com/code-payments/code-vault/pkg/solana/binary"
)

var withdrawInstructionDiscriminator = []byte{
	183, 18, 70, 156, 148, 109, 161, 34,
}

const (
	WithdrawInstructionArgsSize = 8 // amount
)

type WithdrawInstructionArgs struct {
	Amount uint64
}

type WithdrawInstructionAccounts struct {
	User  ed25519.PublicKey
	State ed25519.PublicKey
	Vault ed25519.PublicKey
}

func NewWithdrawInstruction(
	accounts *WithdrawInstructionAccounts,
	args *WithdrawInstructionArgs,
) solana.Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(withdrawInstructionDiscriminator)+
			WithdrawInstructionArgsSize)

	putDiscriminator(data, withdrawInstructionDiscriminator, &offset)
	binary.PutUint64(data, args.Amount, &offset)

	return solana.NewInstruction(
		PROGRAM_ID,
		data,
		vaultAccountMetas(accounts.User, accounts.State, accounts.Vault)...,
	)
}

func WithdrawInstructionArgsFromBinary(data []byte) (*WithdrawInstructionArgs, error) {
	if len(data) != discriminatorSize+WithdrawInstructionArgsSize {
		return nil, ErrInvalidInstructionData
	}

	if typ, err := GetInstructionType(data); err != nil || typ != InstructionTypeWithdraw {
		return nil, ErrInvalidInstructionData
	}

	var args WithdrawInstructionArgs
	offset := discriminatorSize
	binary.GetUint64(data, &args.Amount, &offset)

	return &args, nil
}
