package runtime

import (
	"crypto/ed25519"

	"github.com/mr-tron/base58"

	"github.com/code-payments/code-vault/pkg/solana/system"
)

// NativeLoaderKey owns every builtin program account.
var NativeLoaderKey = ed25519.PublicKey(mustBase58Decode("NativeLoader1111111111111111111111111111111"))

// Program is a builtin program executed by the Bank.
//
// Process receives the accounts of the instruction through ctx and may modify
// their lamports, data and owner. Changes are checked against the ownership
// rules once Process returns; an error aborts the whole transaction.
type Program interface {
	Process(ctx *InvokeContext, data []byte) error
}

// ProgramFunc adapts a function to the Program interface.
type ProgramFunc func(ctx *InvokeContext, data []byte) error

func (f ProgramFunc) Process(ctx *InvokeContext, data []byte) error {
	return f(ctx, data)
}

// programAccount is the state reported for a registered program id.
func programAccount() *Account {
	return &Account{
		Lamports:   1,
		Owner:      NativeLoaderKey,
		Executable: true,
	}
}

func builtinPrograms() map[string]Program {
	return map[string]Program{
		string(system.ProgramKey): &systemProgram{},
	}
}

func mustBase58Decode(value string) []byte {
	decoded, err := base58.Decode(value)
	if err != nil {
		panic(err)
	}
	return decoded
}
