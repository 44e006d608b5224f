package vault

import (
	"crypto/ed25519"

	"github.com/code-payments/code-vault/pkg/solana"
)

var closeInstructionDiscriminator = []byte{
	98, 165, 201, 177, 108, 65, 206, 96,
}

const (
	CloseInstructionArgsSize = 0
)

type CloseInstructionArgs struct {
}

type CloseInstructionAccounts struct {
	User  ed25519.PublicKey
	State ed25519.PublicKey
	Vault ed25519.PublicKey
}

func NewCloseInstruction(
	accounts *CloseInstructionAccounts,
	args *CloseInstructionArgs,
) solana.Instruction {
	var offset int

	// Serialize instruction arguments
	data := make([]byte,
		len(closeInstructionDiscriminator)+
			CloseInstructionArgsSize)

	putDiscriminator(data, closeInstructionDiscriminator, &offset)

	return solana.NewInstruction(
		PROGRAM_ID,
		data,
		vaultAccountMetas(accounts.User, accounts.State, accounts.Vault)...,
	)
}

func CloseInstructionArgsFromBinary(data []byte) (*CloseInstructionArgs, error) {
	if len(data) != discriminatorSize+CloseInstructionArgsSize {
		return nil, ErrInvalidInstructionData
	}

	if typ, err := GetInstructionType(data); err != nil || typ != InstructionTypeClose {
		return nil, ErrInvalidInstructionData
	}

	return &CloseInstructionArgs{}, nil
}
