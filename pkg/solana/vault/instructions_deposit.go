package vault

import (
	"crypto/ed25519"

	"github.com/code-payments/code-vault/pkg/solana"
	"github.com/code-payments/code-vault/pkg/solana/binary"
)

var depositInstructionDiscriminator = []byte{
	242, 35, 198, 137, 82, 225, 242, 182,
}

const (
	DepositInstructionArgsSize = 8 // amount
)

type DepositInstructionArgs struct {
	Amount uint64
}

type DepositInstructionAccounts struct {
	User  ed25519.PublicKey
	State ed25519.PublicKey
	Vault ed25519.PublicKey
}

func NewDepositInstruction(
	accounts *DepositInstructionAccounts,
	args *DepositInstructionArgs,
) solana.Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(depositInstructionDiscriminator)+
			DepositInstructionArgsSize)

	putDiscriminator(data, depositInstructionDiscriminator, &offset)
	binary.PutUint64(data, args.Amount, &offset)

	return solana.NewInstruction(
		PROGRAM_ID,
		data,
		vaultAccountMetas(accounts.User, accounts.State, accounts.Vault)...,
	)
}

func DepositInstructionArgsFromBinary(data []byte) (*DepositInstructionArgs, error) {
	if len(data) != discriminatorSize+DepositInstructionArgsSize {
		return nil, ErrInvalidInstructionData
	}

	if typ, err := GetInstructionType(data); err != nil || typ != InstructionTypeDeposit {
		return nil, ErrInvalidInstructionData
	}

	var args DepositInstructionArgs
	offset := discriminatorSize
	binary.GetUint64(data, &args.Amount, &offset)

	return &args, nil
}
