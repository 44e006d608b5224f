package solana

import (
	"bytes"
	"crypto/ed25519"
	"io"

	"github.com/pkg/errors"

	"github.com/code-payments/code-vault/pkg/solana/shortvec"
)

// Marshal encodes the transaction in the wire format.
func (t Transaction) Marshal() []byte {
	var b bytes.Buffer

	_, _ = shortvec.EncodeLen(&b, len(t.Signatures))
	for _, s := range t.Signatures {
		b.Write(s[:])
	}
	b.Write(t.Message.Marshal())

	return b.Bytes()
}

// Unmarshal decodes a wire format transaction.
func (t *Transaction) Unmarshal(b []byte) error {
	buf := bytes.NewBuffer(b)

	sigLen, err := shortvec.DecodeLen(buf)
	if err != nil {
		return errors.Wrap(err, "failed to read signature length")
	}

	t.Signatures = make([]Signature, sigLen)
	for i := range t.Signatures {
		if _, err := io.ReadFull(buf, t.Signatures[i][:]); err != nil {
			return errors.Wrapf(err, "failed to read signature at %d", i)
		}
	}

	return t.Message.Unmarshal(buf.Bytes())
}

// Marshal encodes the message. The result is what signers sign.
func (m Message) Marshal() []byte {
	var b bytes.Buffer

	b.WriteByte(m.Header.NumSignatures)
	b.WriteByte(m.Header.NumReadonlySigned)
	b.WriteByte(m.Header.NumReadOnly)

	_, _ = shortvec.EncodeLen(&b, len(m.Accounts))
	for _, a := range m.Accounts {
		b.Write(a)
	}

	b.Write(m.RecentBlockhash[:])

	_, _ = shortvec.EncodeLen(&b, len(m.Instructions))
	for _, ix := range m.Instructions {
		b.WriteByte(ix.ProgramIndex)

		_, _ = shortvec.EncodeLen(&b, len(ix.Accounts))
		b.Write(ix.Accounts)

		_, _ = shortvec.EncodeLen(&b, len(ix.Data))
		b.Write(ix.Data)
	}

	return b.Bytes()
}

// Unmarshal decodes a legacy message, validating that every index refers to
// an account within the message.
func (m *Message) Unmarshal(b []byte) (err error) {
	if len(b) == 0 {
		return errors.New("empty message")
	}
	if b[0]&0x80 != 0 {
		return errors.New("versioned messages not supported")
	}

	buf := bytes.NewBuffer(b)

	if m.Header.NumSignatures, err = buf.ReadByte(); err != nil {
		return errors.Wrap(err, "failed to read num signatures")
	}
	if m.Header.NumReadonlySigned, err = buf.ReadByte(); err != nil {
		return errors.Wrap(err, "failed to read num readonly signatures")
	}
	if m.Header.NumReadOnly, err = buf.ReadByte(); err != nil {
		return errors.Wrap(err, "failed to read num readonly")
	}

	accountLen, err := shortvec.DecodeLen(buf)
	if err != nil {
		return errors.Wrap(err, "failed to read account len")
	}
	m.Accounts = make([]ed25519.PublicKey, accountLen)
	for i := range m.Accounts {
		m.Accounts[i] = make([]byte, ed25519.PublicKeySize)
		if _, err = io.ReadFull(buf, m.Accounts[i]); err != nil {
			return errors.Wrapf(err, "failed to read account at index %d", i)
		}
	}

	if _, err = io.ReadFull(buf, m.RecentBlockhash[:]); err != nil {
		return errors.Wrap(err, "failed to read recent block hash")
	}

	instructionLen, err := shortvec.DecodeLen(buf)
	if err != nil {
		return errors.Wrap(err, "failed to read instruction len")
	}
	m.Instructions = make([]CompiledInstruction, instructionLen)
	for i := range m.Instructions {
		ix := &m.Instructions[i]

		if ix.ProgramIndex, err = buf.ReadByte(); err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] program index", i)
		}
		if int(ix.ProgramIndex) >= accountLen {
			return errors.Errorf("program index out of range: %d:%d", i, ix.ProgramIndex)
		}

		n, err := shortvec.DecodeLen(buf)
		if err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] account len", i)
		}
		ix.Accounts = make([]byte, n)
		if _, err = io.ReadFull(buf, ix.Accounts); err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] accounts", i)
		}
		for _, index := range ix.Accounts {
			if int(index) >= accountLen {
				return errors.Errorf("account index out of range: %d:%d", i, index)
			}
		}

		if n, err = shortvec.DecodeLen(buf); err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] data len", i)
		}
		ix.Data = make([]byte, n)
		if _, err = io.ReadFull(buf, ix.Data); err != nil {
			return errors.Wrapf(err, "failed to read instruction[%d] data", i)
		}
	}

	return nil
}
