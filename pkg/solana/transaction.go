package solana

import (
	"bytes"
	"crypto/ed25519"
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/mr-tron/base58/base58"
	"github.com/pkg/errors"
)

const (
	// MaxTransactionSize taken from: https://github.com/solana-labs/solana/blob/39b3ac6a8d29e14faa1de73d8b46d390ad41797b/sdk/src/packet.rs#L9-L13
	MaxTransactionSize = 1232
)

var (
	ErrInvalidSignature = errors.New("invalid signature")
)

type Signature [ed25519.SignatureSize]byte

func (s Signature) String() string {
	return base58.Encode(s[:])
}

type Blockhash [sha256.Size]byte

func (b Blockhash) String() string {
	return base58.Encode(b[:])
}

type Header struct {
	NumSignatures     byte
	NumReadonlySigned byte
	NumReadOnly       byte
}

// Message is a legacy (unversioned) transaction message.
type Message struct {
	Header          Header
	Accounts        []ed25519.PublicKey
	RecentBlockhash Blockhash
	Instructions    []CompiledInstruction
}

type Transaction struct {
	Signatures []Signature
	Message    Message
}

// NewTransaction compiles the instructions into an unsigned transaction paid
// for by payer.
func NewTransaction(payer ed25519.PublicKey, instructions ...Instruction) Transaction {
	metas := []AccountMeta{
		{
			PublicKey:  payer,
			IsSigner:   true,
			IsWritable: true,
			isPayer:    true,
		},
	}
	for _, ix := range instructions {
		metas = append(metas, AccountMeta{PublicKey: ix.Program, isProgram: true})
		metas = append(metas, ix.Accounts...)
	}

	metas = mergeAccountMetas(metas)
	sort.SliceStable(metas, func(i, j int) bool {
		return metas[i].precedes(metas[j])
	})

	var m Message
	for _, meta := range metas {
		key := meta.PublicKey
		if len(key) == 0 {
			key = make([]byte, ed25519.PublicKeySize)
		}
		m.Accounts = append(m.Accounts, key)

		switch {
		case meta.IsSigner && !meta.IsWritable:
			m.Header.NumSignatures++
			m.Header.NumReadonlySigned++
		case meta.IsSigner:
			m.Header.NumSignatures++
		case !meta.IsWritable:
			m.Header.NumReadOnly++
		}
	}

	for _, ix := range instructions {
		compiled := CompiledInstruction{
			ProgramIndex: byte(indexOf(m.Accounts, ix.Program)),
			Data:         ix.Data,
		}
		for _, account := range ix.Accounts {
			compiled.Accounts = append(compiled.Accounts, byte(indexOf(m.Accounts, account.PublicKey)))
		}
		m.Instructions = append(m.Instructions, compiled)
	}

	return Transaction{
		Signatures: make([]Signature, m.Header.NumSignatures),
		Message:    m,
	}
}

// IsSigner reports whether the account at index i must sign the message.
func (m *Message) IsSigner(i int) bool {
	return i < int(m.Header.NumSignatures)
}

// IsWritable reports whether the account at index i may be modified.
func (m *Message) IsWritable(i int) bool {
	if i < int(m.Header.NumSignatures) {
		return i < int(m.Header.NumSignatures-m.Header.NumReadonlySigned)
	}
	return i < len(m.Accounts)-int(m.Header.NumReadOnly)
}

// Signature returns the first signature, which identifies the transaction.
func (t *Transaction) Signature() []byte {
	return t.Signatures[0][:]
}

func (t *Transaction) SetBlockhash(bh Blockhash) {
	t.Message.RecentBlockhash = bh
}

// Sign signs the message with each of the provided keys. Every key must
// belong to one of the message's signer accounts.
func (t *Transaction) Sign(signers ...ed25519.PrivateKey) error {
	messageBytes := t.Message.Marshal()

	for _, signer := range signers {
		pub := signer.Public().(ed25519.PublicKey)

		index := indexOf(t.Message.Accounts, pub)
		if index < 0 {
			return errors.Errorf("signing account %s is not in the account list", base58.Encode(pub))
		}
		if index >= len(t.Signatures) {
			return errors.Errorf("signing account %s is not in the list of signers", base58.Encode(pub))
		}

		copy(t.Signatures[index][:], ed25519.Sign(signer, messageBytes))
	}

	return nil
}

// VerifySignatures checks every required signature against the message.
func (t *Transaction) VerifySignatures() error {
	if len(t.Signatures) != int(t.Message.Header.NumSignatures) || len(t.Signatures) > len(t.Message.Accounts) {
		return errors.Wrap(ErrInvalidSignature, "signature count mismatch")
	}

	messageBytes := t.Message.Marshal()
	for i, sig := range t.Signatures {
		if !ed25519.Verify(t.Message.Accounts[i], messageBytes, sig[:]) {
			return errors.Wrapf(ErrInvalidSignature, "signature %d", i)
		}
	}
	return nil
}

func (t *Transaction) String() string {
	var sb strings.Builder
	sb.WriteString("Signatures:\n")
	for i, s := range t.Signatures {
		fmt.Fprintf(&sb, "  %d: %s\n", i, s)
	}
	sb.WriteString("Message:\n")
	sb.WriteString("  Header:\n")
	fmt.Fprintf(&sb, "    NumSignatures: %d\n", t.Message.Header.NumSignatures)
	fmt.Fprintf(&sb, "    NumReadOnly: %d\n", t.Message.Header.NumReadOnly)
	fmt.Fprintf(&sb, "    NumReadOnlySigned: %d\n", t.Message.Header.NumReadonlySigned)
	sb.WriteString("  Accounts:\n")
	for i, a := range t.Message.Accounts {
		fmt.Fprintf(&sb, "    %d: %s\n", i, base58.Encode(a))
	}
	fmt.Fprintf(&sb, "  RecentBlockhash: %s\n", t.Message.RecentBlockhash)
	sb.WriteString("  Instructions:\n")
	for i, ix := range t.Message.Instructions {
		fmt.Fprintf(&sb, "    %d:\n", i)
		fmt.Fprintf(&sb, "      ProgramIndex: %d\n", ix.ProgramIndex)
		fmt.Fprintf(&sb, "      Accounts: %v\n", ix.Accounts)
		fmt.Fprintf(&sb, "      Data: %v\n", ix.Data)
	}
	return sb.String()
}

// mergeAccountMetas collapses duplicate keys, promoting the surviving entry
// to the union of the duplicates' permissions.
func mergeAccountMetas(metas []AccountMeta) []AccountMeta {
	merged := make([]AccountMeta, 0, len(metas))

outer:
	for _, meta := range metas {
		for j := range merged {
			if !bytes.Equal(meta.PublicKey, merged[j].PublicKey) {
				continue
			}

			merged[j].IsSigner = merged[j].IsSigner || meta.IsSigner
			merged[j].IsWritable = merged[j].IsWritable || meta.IsWritable
			merged[j].isPayer = merged[j].isPayer || meta.isPayer
			continue outer
		}
		merged = append(merged, meta)
	}

	return merged
}

func indexOf(slice []ed25519.PublicKey, item ed25519.PublicKey) int {
	for i, val := range slice {
		if bytes.Equal(val, item) {
			return i
		}
	}
	return -1
}
