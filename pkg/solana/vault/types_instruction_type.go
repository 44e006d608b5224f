package vault

import "bytes"

type InstructionType uint8

const (
	InstructionTypeUnknown InstructionType = iota
	InstructionTypeInitialize
	InstructionTypeDeposit
	InstructionTypeWithdraw
	InstructionTypeClose
)

// GetInstructionType identifies an instruction by its 8 byte discriminator.
func GetInstructionType(data []byte) (InstructionType, error) {
	if len(data) < discriminatorSize {
		return InstructionTypeUnknown, ErrInvalidInstructionData
	}

	discriminator := data[:discriminatorSize]
	switch {
	case bytes.Equal(discriminator, initializeInstructionDiscriminator):
		return InstructionTypeInitialize, nil
	case bytes.Equal(discriminator, depositInstructionDiscriminator):
		return InstructionTypeDeposit, nil
	case bytes.Equal(discriminator, withdrawInstructionDiscriminator):
		return InstructionTypeWithdraw, nil
	case bytes.Equal(discriminator, closeInstructionDiscriminator):
		return InstructionTypeClose, nil
	}
	return InstructionTypeUnknown, ErrInvalidInstructionData
}

func (t InstructionType) String() string {
	switch t {
	case InstructionTypeInitialize:
		return "initialize"
	case InstructionTypeDeposit:
		return "deposit"
	case InstructionTypeWithdraw:
		return "withdraw"
	case InstructionTypeClose:
		return "close"
	}
	return "unknown"
}
