package vault

import (
	"bytes"
	"fmt"

	"github.com/code-payments/code-vault/pkg/solana/binary"
)

const (
	VaultStateSize = (8 + // discriminator
		1 + // vault_bump
		1) // state_bump
)

var VaultStateDiscriminator = anchorDiscriminator("account", "VaultState")

// VaultState holds the bumps that authenticate an owner's state and vault
// accounts. Both are fixed at initialization.
type VaultState struct {
	VaultBump uint8
	StateBump uint8
}

func (obj *VaultState) Marshal() []byte {
	data := make([]byte, VaultStateSize)

	var offset int

	putDiscriminator(data, VaultStateDiscriminator, &offset)
	binary.PutUint8(data, obj.VaultBump, &offset)
	binary.PutUint8(data, obj.StateBump, &offset)

	return data
}

func (obj *VaultState) Unmarshal(data []byte) error {
	if len(data) < VaultStateSize {
		return ErrInvalidAccountData
	}

	var offset int

	var discriminator []byte
	getDiscriminator(data, &discriminator, &offset)
	if !bytes.Equal(discriminator, VaultStateDiscriminator) {
		return ErrInvalidAccountData
	}

	binary.GetUint8(data, &obj.VaultBump, &offset)
	binary.GetUint8(data, &obj.StateBump, &offset)

	return nil
}

func (obj *VaultState) String() string {
	return fmt.Sprintf(
		"VaultState{vault_bump=%d,state_bump=%d}",
		obj.VaultBump,
		obj.StateBump,
	)
}
