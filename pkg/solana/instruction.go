package solana

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"fmt"

	"github.com/mr-tron/base58/base58"
)

var (
	ErrIncorrectProgram     = errors.New("incorrect program")
	ErrIncorrectInstruction = errors.New("incorrect instruction")
)

// AccountMeta describes how an instruction uses an account.
type AccountMeta struct {
	PublicKey  ed25519.PublicKey
	IsSigner   bool
	IsWritable bool

	isPayer   bool
	isProgram bool
}

// NewAccountMeta creates a writable AccountMeta.
func NewAccountMeta(pub ed25519.PublicKey, isSigner bool) AccountMeta {
	return AccountMeta{
		PublicKey:  pub,
		IsSigner:   isSigner,
		IsWritable: true,
	}
}

// NewReadonlyAccountMeta creates a readonly AccountMeta.
func NewReadonlyAccountMeta(pub ed25519.PublicKey, isSigner bool) AccountMeta {
	return AccountMeta{
		PublicKey: pub,
		IsSigner:  isSigner,
	}
}

func (m AccountMeta) String() string {
	return fmt.Sprintf("%s (signer=%t, writable=%t)", base58.Encode(m.PublicKey), m.IsSigner, m.IsWritable)
}

// precedes orders accounts as they must appear in a message: fee payer,
// then signers, then writable accounts, then invoked programs.
//
// Reference: https://docs.solana.com/developing/programming-model/transactions#account-addresses-format
func (m AccountMeta) precedes(other AccountMeta) bool {
	switch {
	case m.isPayer != other.isPayer:
		return m.isPayer
	case m.isProgram != other.isProgram:
		return other.isProgram
	case m.IsSigner != other.IsSigner:
		return m.IsSigner
	case m.IsWritable != other.IsWritable:
		return m.IsWritable
	}
	return bytes.Compare(m.PublicKey, other.PublicKey) < 0
}

// Instruction is a single program invocation within a transaction.
type Instruction struct {
	Program  ed25519.PublicKey
	Accounts []AccountMeta
	Data     []byte
}

// NewInstruction creates a new instruction.
func NewInstruction(program ed25519.PublicKey, data []byte, accounts ...AccountMeta) Instruction {
	return Instruction{
		Program:  program,
		Data:     data,
		Accounts: accounts,
	}
}

// CompiledInstruction is an instruction whose program and accounts have been
// replaced by indexes into the message account list.
type CompiledInstruction struct {
	ProgramIndex byte
	Accounts     []byte
	Data         []byte
}
