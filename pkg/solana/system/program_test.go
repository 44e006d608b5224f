package system

import (
	"crypto/ed25519"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/code-payments/code-vault/pkg/solana"
)

func TestCreateAccount(t *testing.T) {
	keys := generateKeys(t, 3)

	instruction := CreateAccount(keys[0], keys[1], keys[2], 12345, 67890)

	lamports := make([]byte, 8)
	binary.LittleEndian.PutUint64(lamports, 12345)
	size := make([]byte, 8)
	binary.LittleEndian.PutUint64(size, 67890)

	assert.Equal(t, make([]byte, 4), instruction.Data[0:4])
	assert.Equal(t, lamports, instruction.Data[4:12])
	assert.Equal(t, size, instruction.Data[12:20])
	assert.Equal(t, []byte(keys[2]), instruction.Data[20:52])
	assert.True(t, instruction.Accounts[0].IsSigner && instruction.Accounts[0].IsWritable)
	assert.True(t, instruction.Accounts[1].IsSigner && instruction.Accounts[1].IsWritable)

	var tx solana.Transaction
	require.NoError(t, tx.Unmarshal(solana.NewTransaction(keys[0], instruction).Marshal()))

	decompiled, err := DecompileCreateAccount(tx.Message, 0)
	require.NoError(t, err)
	assert.EqualValues(t, keys[0], decompiled.Funder)
	assert.EqualValues(t, keys[1], decompiled.Address)
	assert.EqualValues(t, keys[2], decompiled.Owner)
	assert.EqualValues(t, 12345, decompiled.Lamports)
	assert.EqualValues(t, 67890, decompiled.Size)
}

func TestTransfer(t *testing.T) {
	keys := generateKeys(t, 2)

	instruction := Transfer(keys[0], keys[1], 2_000_000_000)
	assert.Equal(t, []byte{2, 0, 0, 0}, instruction.Data[0:4])
	assert.Len(t, instruction.Data, 12)
	assert.True(t, instruction.Accounts[0].IsSigner)
	assert.False(t, instruction.Accounts[1].IsSigner)
	assert.True(t, instruction.Accounts[1].IsWritable)

	decompiled, err := DecompileTransfer(solana.NewTransaction(keys[0], instruction).Message, 0)
	require.NoError(t, err)
	assert.EqualValues(t, keys[0], decompiled.From)
	assert.EqualValues(t, keys[1], decompiled.To)
	assert.EqualValues(t, 2_000_000_000, decompiled.Lamports)

	cmd, err := GetCommand(instruction.Data)
	require.NoError(t, err)
	assert.Equal(t, CommandTransfer, cmd)
}

func TestAssign(t *testing.T) {
	keys := generateKeys(t, 2)

	instruction := Assign(keys[0], keys[1])
	assert.Equal(t, []byte{1, 0, 0, 0}, instruction.Data[0:4])

	decompiled, err := DecompileAssign(solana.NewTransaction(keys[0], instruction).Message, 0)
	require.NoError(t, err)
	assert.EqualValues(t, keys[0], decompiled.Address)
	assert.EqualValues(t, keys[1], decompiled.Owner)
}

func TestAllocate(t *testing.T) {
	keys := generateKeys(t, 1)

	instruction := Allocate(keys[0], 10)
	assert.Equal(t, []byte{8, 0, 0, 0, 10, 0, 0, 0, 0, 0, 0, 0}, instruction.Data)
	require.Len(t, instruction.Accounts, 1)
	assert.True(t, instruction.Accounts[0].IsSigner)
	assert.True(t, instruction.Accounts[0].IsWritable)

	var args AllocateArgs
	require.NoError(t, args.Unmarshal(instruction.Data))
	assert.EqualValues(t, 10, args.Size)

	assert.Equal(t, solana.ErrIncorrectInstruction, args.Unmarshal(Assign(keys[0], keys[0]).Data))
	assert.Equal(t, ErrInvalidInstructionData, args.Unmarshal(instruction.Data[:8]))
}

func TestDecompile_Invalid(t *testing.T) {
	keys := generateKeys(t, 4)

	instruction := CreateAccount(keys[0], keys[1], keys[2], 12345, 67890)
	instruction.Accounts = instruction.Accounts[:1]
	_, err := DecompileCreateAccount(solana.NewTransaction(keys[0], instruction).Message, 0)
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "invalid number of accounts"), err)

	_, err = DecompileCreateAccount(solana.NewTransaction(keys[0], Transfer(keys[0], keys[1], 1)).Message, 0)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)

	instruction = Transfer(keys[0], keys[1], 1)
	instruction.Data = instruction.Data[:3]
	_, err = DecompileTransfer(solana.NewTransaction(keys[0], instruction).Message, 0)
	assert.Equal(t, solana.ErrIncorrectInstruction, err)

	instruction = Transfer(keys[0], keys[1], 1)
	instruction.Data = append(instruction.Data, 0)
	_, err = DecompileTransfer(solana.NewTransaction(keys[0], instruction).Message, 0)
	assert.Equal(t, ErrInvalidInstructionData, err)

	instruction = Transfer(keys[0], keys[1], 1)
	instruction.Program = keys[3]
	_, err = DecompileTransfer(solana.NewTransaction(keys[0], instruction).Message, 0)
	assert.Equal(t, solana.ErrIncorrectProgram, err)

	_, err = DecompileTransfer(solana.NewTransaction(keys[0], instruction).Message, 1)
	assert.Error(t, err)
}

func generateKeys(t *testing.T, amount int) []ed25519.PublicKey {
	keys := make([]ed25519.PublicKey, amount)
	for i := range keys {
		pub, _, err := ed25519.GenerateKey(nil)
		require.NoError(t, err)
		keys[i] = pub
	}
	return keys
}
