package vault

import (
	"crypto/ed25519"
	"errors"

	"github.com/code-payments/code-vault/pkg/solana/system"
)

var (
	ErrInvalidProgram         = errors.New("invalid program id")
	ErrInvalidAccountData     = errors.New("unexpected account data")
	ErrInvalidInstructionData = errors.New("unexpected instruction data")
)

var (
	PROGRAM_ADDRESS = mustBase58Decode("769rvc3M29X4F35pAeYP9CVwhTAPdkVycM1fFWYB36Ma")
	PROGRAM_ID      = ed25519.PublicKey(PROGRAM_ADDRESS)
)

var (
	SYSTEM_PROGRAM_ID = system.ProgramKey
)
