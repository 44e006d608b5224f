package runtime

import (
	"bytes"
	"crypto/ed25519"
	"fmt"
	"math/bits"
	"sort"

	"github.com/mr-tron/base58"

	"github.com/code-payments/code-vault/pkg/solana"
)

// transactionContext is the working set of a single transaction. Every
// account referenced by the message is cloned into it before execution, and
// nothing is written back to the store unless the whole transaction succeeds.
type transactionContext struct {
	keys     []ed25519.PublicKey
	accounts []*Account
	signer   []bool
	writable []bool

	programs map[string]Program
	rent     Rent
	maxDepth int

	stack []ed25519.PublicKey
	logs  []string
}

func (tx *transactionContext) indexOf(key ed25519.PublicKey) int {
	for i, k := range tx.keys {
		if bytes.Equal(k, key) {
			return i
		}
	}
	return -1
}

func (tx *transactionContext) logf(format string, args ...interface{}) {
	tx.logs = append(tx.logs, fmt.Sprintf(format, args...))
}

type instructionAccount struct {
	index      int
	isSigner   bool
	isWritable bool
}

// AccountInfo is an account as seen by the executing program. Changes made
// through the embedded Account are visible to the rest of the transaction.
type AccountInfo struct {
	Key        ed25519.PublicKey
	IsSigner   bool
	IsWritable bool

	*Account
}

// InvokeContext gives a program access to the accounts of the instruction it
// is executing.
type InvokeContext struct {
	tx       *transactionContext
	program  ed25519.PublicKey
	accounts []instructionAccount
	depth    int

	pre map[int]*Account
}

// ProgramID returns the id of the executing program.
func (c *InvokeContext) ProgramID() ed25519.PublicKey {
	return c.program
}

func (c *InvokeContext) NumAccounts() int {
	return len(c.accounts)
}

// Account returns the i'th account of the instruction.
func (c *InvokeContext) Account(i int) (*AccountInfo, error) {
	if i < 0 || i >= len(c.accounts) {
		return nil, solana.InstructionErrorNotEnoughAccountKeys
	}

	account := c.accounts[i]
	return &AccountInfo{
		Key:        c.tx.keys[account.index],
		IsSigner:   account.isSigner,
		IsWritable: account.isWritable,
		Account:    c.tx.accounts[account.index],
	}, nil
}

func (c *InvokeContext) Rent() Rent {
	return c.tx.rent
}

// Logf appends a program log line to the transaction logs.
func (c *InvokeContext) Logf(format string, args ...interface{}) {
	c.tx.logf("Program log: "+format, args...)
}

// Invoke executes ix as a cross program invocation. The accounts of ix must
// be a subset of the current instruction's accounts, and the invoked program
// must be one of them. Signer privileges are inherited from the current
// instruction or granted to addresses the current program derives from
// signerSeeds.
func (c *InvokeContext) Invoke(ix solana.Instruction, signerSeeds ...[][]byte) error {
	if c.depth >= c.tx.maxDepth {
		return solana.InstructionErrorCallDepth
	}

	for i, caller := range c.tx.stack {
		if bytes.Equal(caller, ix.Program) && i != len(c.tx.stack)-1 {
			return solana.InstructionErrorReentrancyNotAllowed
		}
	}

	derivedSigners := make(map[string]struct{})
	for _, seeds := range signerSeeds {
		address, err := solana.CreateProgramAddress(c.program, seeds...)
		if err != nil {
			return solana.InstructionErrorInvalidSeeds
		}
		derivedSigners[string(address)] = struct{}{}
	}

	if _, ok := c.lookup(ix.Program); !ok {
		return solana.InstructionErrorMissingAccount
	}

	callee := make([]instructionAccount, 0, len(ix.Accounts))
	for _, meta := range ix.Accounts {
		caller, ok := c.lookup(meta.PublicKey)
		if !ok {
			return solana.InstructionErrorMissingAccount
		}

		_, derived := derivedSigners[string(meta.PublicKey)]
		if meta.IsWritable && !caller.isWritable {
			return solana.InstructionErrorPrivilegeEscalation
		}
		if meta.IsSigner && !caller.isSigner && !derived {
			return solana.InstructionErrorPrivilegeEscalation
		}

		callee = append(callee, instructionAccount{
			index:      caller.index,
			isSigner:   meta.IsSigner,
			isWritable: meta.IsWritable,
		})
	}

	// Changes made so far are attributed to the caller and must be valid
	// before control passes to the callee.
	if err := c.verify(); err != nil {
		return err
	}

	if err := processInstruction(c.tx, ix.Program, callee, ix.Data, c.depth+1); err != nil {
		return err
	}

	c.snapshot()
	return nil
}

// lookup merges the privileges of every reference to key in the current
// instruction.
func (c *InvokeContext) lookup(key ed25519.PublicKey) (instructionAccount, bool) {
	merged := instructionAccount{index: -1}
	for _, account := range c.accounts {
		if !bytes.Equal(c.tx.keys[account.index], key) {
			continue
		}
		merged.index = account.index
		merged.isSigner = merged.isSigner || account.isSigner
		merged.isWritable = merged.isWritable || account.isWritable
	}
	return merged, merged.index >= 0
}

func (c *InvokeContext) isWritable(index int) bool {
	for _, account := range c.accounts {
		if account.index == index && account.isWritable {
			return true
		}
	}
	return false
}

func (c *InvokeContext) snapshot() {
	c.pre = make(map[int]*Account, len(c.accounts))
	for _, account := range c.accounts {
		if _, ok := c.pre[account.index]; !ok {
			c.pre[account.index] = c.tx.accounts[account.index].Clone()
		}
	}
}

// verify checks every change to the instruction's accounts since the last
// snapshot against the ownership rules, and that no lamports were created or
// destroyed.
func (c *InvokeContext) verify() error {
	indexes := make([]int, 0, len(c.pre))
	for index := range c.pre {
		indexes = append(indexes, index)
	}
	sort.Ints(indexes)

	var preTotal, postTotal, carry uint64
	for _, index := range indexes {
		pre, post := c.pre[index], c.tx.accounts[index]
		if err := verifyAccount(c.program, c.isWritable(index), pre, post); err != nil {
			return err
		}

		preTotal, carry = bits.Add64(preTotal, pre.Lamports, 0)
		if carry != 0 {
			return solana.InstructionErrorArithmeticOverflow
		}
		postTotal, carry = bits.Add64(postTotal, post.Lamports, 0)
		if carry != 0 {
			return solana.InstructionErrorArithmeticOverflow
		}
	}

	if preTotal != postTotal {
		return solana.InstructionErrorUnbalancedInstruction
	}
	return nil
}

func verifyAccount(program ed25519.PublicKey, writable bool, pre, post *Account) error {
	ownedByProgram := bytes.Equal(pre.Owner, program)

	if !bytes.Equal(pre.Owner, post.Owner) {
		if !writable || pre.Executable || !ownedByProgram || !isZeroed(post.Data) {
			return solana.InstructionErrorModifiedProgramID
		}
	}

	if pre.Lamports != post.Lamports {
		if !writable {
			return solana.InstructionErrorReadonlyLamportChange
		}
		if pre.Executable {
			return solana.InstructionErrorExecutableLamportChange
		}
		if post.Lamports < pre.Lamports && !ownedByProgram {
			return solana.InstructionErrorExternalAccountLamportSpend
		}
	}

	if !bytes.Equal(pre.Data, post.Data) {
		if pre.Executable {
			return solana.InstructionErrorExecutableDataModified
		}
		if !writable {
			return solana.InstructionErrorReadonlyDataModified
		}
		if !ownedByProgram {
			return solana.InstructionErrorExternalAccountDataModified
		}
	}

	if pre.Executable != post.Executable {
		return solana.InstructionErrorExecutableModified
	}

	return nil
}

func isZeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// processInstruction runs a program against a set of accounts and verifies
// the changes it made.
func processInstruction(tx *transactionContext, programID ed25519.PublicKey, accounts []instructionAccount, data []byte, depth int) error {
	program, ok := tx.programs[string(programID)]
	if !ok {
		return solana.InstructionErrorUnsupportedProgramID
	}

	ctx := &InvokeContext{
		tx:       tx,
		program:  programID,
		accounts: accounts,
		depth:    depth,
	}
	ctx.snapshot()

	encoded := base58.Encode(programID)
	tx.logf("Program %s invoke [%d]", encoded, depth)

	tx.stack = append(tx.stack, programID)
	err := program.Process(ctx, data)
	tx.stack = tx.stack[:len(tx.stack)-1]

	if err == nil {
		err = ctx.verify()
	}
	if err != nil {
		tx.logf("Program %s failed: %v", encoded, err)
		return err
	}

	tx.logf("Program %s success", encoded)
	return nil
}
