package system

import (
	"bytes"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-vault/pkg/solana"
	"github.com/code-payments/code-vault/pkg/solana/binary"
)

// ProgramKey is the system program id, 11111111111111111111111111111111.
var ProgramKey = make(ed25519.PublicKey, ed25519.PublicKeySize)

// Command is the little endian u32 that prefixes every system instruction.
//
// Reference: https://github.com/solana-labs/solana/blob/f02a78d8fff2dd7297dc6ce6eb5a68a3002f5359/sdk/src/system_instruction.rs#L58-L72
type Command uint32

const (
	CommandCreateAccount Command = iota
	CommandAssign
	CommandTransfer

	CommandAllocate Command = 8
)

const (
	commandSize           = 4
	createAccountDataSize = commandSize + 8 + 8 + ed25519.PublicKeySize
	assignDataSize        = commandSize + ed25519.PublicKeySize
	transferDataSize      = commandSize + 8
	allocateDataSize      = commandSize + 8
)

var ErrInvalidInstructionData = errors.New("invalid system instruction data")

// GetCommand returns the command of encoded instruction data.
func GetCommand(data []byte) (Command, error) {
	if len(data) < commandSize {
		return 0, ErrInvalidInstructionData
	}

	var cmd uint32
	var offset int
	binary.GetUint32(data, &cmd, &offset)
	return Command(cmd), nil
}

type CreateAccountArgs struct {
	Lamports uint64
	Size     uint64
	Owner    ed25519.PublicKey
}

func (a *CreateAccountArgs) Marshal() []byte {
	data := make([]byte, createAccountDataSize)

	var offset int
	binary.PutUint32(data, uint32(CommandCreateAccount), &offset)
	binary.PutUint64(data, a.Lamports, &offset)
	binary.PutUint64(data, a.Size, &offset)
	binary.PutKey32(data, a.Owner, &offset)

	return data
}

func (a *CreateAccountArgs) Unmarshal(data []byte) error {
	if cmd, err := GetCommand(data); err != nil || cmd != CommandCreateAccount {
		return solana.ErrIncorrectInstruction
	}
	if len(data) != createAccountDataSize {
		return ErrInvalidInstructionData
	}

	offset := commandSize
	binary.GetUint64(data, &a.Lamports, &offset)
	binary.GetUint64(data, &a.Size, &offset)
	binary.GetKey32(data, &a.Owner, &offset)
	return nil
}

type AssignArgs struct {
	Owner ed25519.PublicKey
}

func (a *AssignArgs) Marshal() []byte {
	data := make([]byte, assignDataSize)

	var offset int
	binary.PutUint32(data, uint32(CommandAssign), &offset)
	binary.PutKey32(data, a.Owner, &offset)

	return data
}

func (a *AssignArgs) Unmarshal(data []byte) error {
	if cmd, err := GetCommand(data); err != nil || cmd != CommandAssign {
		return solana.ErrIncorrectInstruction
	}
	if len(data) != assignDataSize {
		return ErrInvalidInstructionData
	}

	offset := commandSize
	binary.GetKey32(data, &a.Owner, &offset)
	return nil
}

type TransferArgs struct {
	Lamports uint64
}

func (a *TransferArgs) Marshal() []byte {
	data := make([]byte, transferDataSize)

	var offset int
	binary.PutUint32(data, uint32(CommandTransfer), &offset)
	binary.PutUint64(data, a.Lamports, &offset)

	return data
}

func (a *TransferArgs) Unmarshal(data []byte) error {
	if cmd, err := GetCommand(data); err != nil || cmd != CommandTransfer {
		return solana.ErrIncorrectInstruction
	}
	if len(data) != transferDataSize {
		return ErrInvalidInstructionData
	}

	offset := commandSize
	binary.GetUint64(data, &a.Lamports, &offset)
	return nil
}

type AllocateArgs struct {
	Size uint64
}

func (a *AllocateArgs) Marshal() []byte {
	data := make([]byte, allocateDataSize)

	var offset int
	binary.PutUint32(data, uint32(CommandAllocate), &offset)
	binary.PutUint64(data, a.Size, &offset)

	return data
}

func (a *AllocateArgs) Unmarshal(data []byte) error {
	if cmd, err := GetCommand(data); err != nil || cmd != CommandAllocate {
		return solana.ErrIncorrectInstruction
	}
	if len(data) != allocateDataSize {
		return ErrInvalidInstructionData
	}

	offset := commandSize
	binary.GetUint64(data, &a.Size, &offset)
	return nil
}

// CreateAccount allocates size bytes at address, funds it with lamports from
// funder and assigns it to owner.
//
//  0. [WRITE, SIGNER] Funding account
//  1. [WRITE, SIGNER] New account
func CreateAccount(funder, address, owner ed25519.PublicKey, lamports, size uint64) solana.Instruction {
	args := &CreateAccountArgs{
		Lamports: lamports,
		Size:     size,
		Owner:    owner,
	}

	return solana.NewInstruction(
		ProgramKey,
		args.Marshal(),
		solana.NewAccountMeta(funder, true),
		solana.NewAccountMeta(address, true),
	)
}

// Assign reassigns a system owned account to owner.
//
//  0. [WRITE, SIGNER] Assigned account
func Assign(address, owner ed25519.PublicKey) solana.Instruction {
	args := &AssignArgs{Owner: owner}

	return solana.NewInstruction(
		ProgramKey,
		args.Marshal(),
		solana.NewAccountMeta(address, true),
	)
}

// Allocate gives a system owned account without data size zeroed bytes.
//
//  0. [WRITE, SIGNER] Allocated account
func Allocate(address ed25519.PublicKey, size uint64) solana.Instruction {
	args := &AllocateArgs{Size: size}

	return solana.NewInstruction(
		ProgramKey,
		args.Marshal(),
		solana.NewAccountMeta(address, true),
	)
}

// Transfer moves lamports from a system owned account.
//
//  0. [WRITE, SIGNER] Funding account
//  1. [WRITE] Recipient account
func Transfer(from, to ed25519.PublicKey, lamports uint64) solana.Instruction {
	args := &TransferArgs{Lamports: lamports}

	return solana.NewInstruction(
		ProgramKey,
		args.Marshal(),
		solana.NewAccountMeta(from, true),
		solana.NewAccountMeta(to, false),
	)
}

type DecompiledCreateAccount struct {
	Funder  ed25519.PublicKey
	Address ed25519.PublicKey

	CreateAccountArgs
}

func DecompileCreateAccount(m solana.Message, index int) (*DecompiledCreateAccount, error) {
	ix, err := getCompiledInstruction(m, index, 2)
	if err != nil {
		return nil, err
	}

	v := &DecompiledCreateAccount{
		Funder:  m.Accounts[ix.Accounts[0]],
		Address: m.Accounts[ix.Accounts[1]],
	}
	if err := v.CreateAccountArgs.Unmarshal(ix.Data); err != nil {
		return nil, err
	}
	return v, nil
}

type DecompiledTransfer struct {
	From ed25519.PublicKey
	To   ed25519.PublicKey

	TransferArgs
}

func DecompileTransfer(m solana.Message, index int) (*DecompiledTransfer, error) {
	ix, err := getCompiledInstruction(m, index, 2)
	if err != nil {
		return nil, err
	}

	v := &DecompiledTransfer{
		From: m.Accounts[ix.Accounts[0]],
		To:   m.Accounts[ix.Accounts[1]],
	}
	if err := v.TransferArgs.Unmarshal(ix.Data); err != nil {
		return nil, err
	}
	return v, nil
}

type DecompiledAssign struct {
	Address ed25519.PublicKey

	AssignArgs
}

func DecompileAssign(m solana.Message, index int) (*DecompiledAssign, error) {
	ix, err := getCompiledInstruction(m, index, 1)
	if err != nil {
		return nil, err
	}

	v := &DecompiledAssign{
		Address: m.Accounts[ix.Accounts[0]],
	}
	if err := v.AssignArgs.Unmarshal(ix.Data); err != nil {
		return nil, err
	}
	return v, nil
}

func getCompiledInstruction(m solana.Message, index, numAccounts int) (*solana.CompiledInstruction, error) {
	if index < 0 || index >= len(m.Instructions) {
		return nil, errors.Errorf("instruction doesn't exist at %d", index)
	}

	ix := m.Instructions[index]
	if !bytes.Equal(m.Accounts[ix.ProgramIndex], ProgramKey) {
		return nil, solana.ErrIncorrectProgram
	}
	if len(ix.Accounts) != numAccounts {
		return nil, errors.Errorf("invalid number of accounts: %d", len(ix.Accounts))
	}
	return &ix, nil
}
