package runtime

import (
	"github.com/pkg/errors"

	"github.com/code-payments/code-vault/pkg/solana"
)

// sanitize checks the structural validity of a transaction before any of
// its accounts are loaded.
func sanitize(tx *solana.Transaction) error {
	m := &tx.Message
	header := m.Header

	if header.NumSignatures == 0 {
		return errors.New("no signatures required")
	}
	if len(tx.Signatures) != int(header.NumSignatures) {
		return errors.Errorf("expected %d signatures, got %d", header.NumSignatures, len(tx.Signatures))
	}
	if int(header.NumSignatures) > len(m.Accounts) {
		return errors.New("more signatures than accounts")
	}
	if header.NumReadonlySigned >= header.NumSignatures {
		return errors.New("fee payer must be writable")
	}
	if int(header.NumReadOnly) > len(m.Accounts)-int(header.NumSignatures) {
		return errors.New("too many readonly accounts")
	}
	if len(m.Instructions) == 0 {
		return errors.New("no instructions")
	}

	seen := make(map[string]struct{}, len(m.Accounts))
	for _, key := range m.Accounts {
		if len(key) != 32 {
			return errors.New("invalid account key")
		}
		if _, ok := seen[string(key)]; ok {
			return errAccountLoadedTwice
		}
		seen[string(key)] = struct{}{}
	}

	for i, ix := range m.Instructions {
		if ix.ProgramIndex == 0 || int(ix.ProgramIndex) >= len(m.Accounts) {
			return errors.Errorf("instruction %d: invalid program index %d", i, ix.ProgramIndex)
		}
		if m.IsWritable(int(ix.ProgramIndex)) {
			return errors.Errorf("instruction %d: program account is writable", i)
		}
		for _, index := range ix.Accounts {
			if int(index) >= len(m.Accounts) {
				return errors.Errorf("instruction %d: invalid account index %d", i, index)
			}
		}
	}

	return nil
}

var errAccountLoadedTwice = errors.New("account loaded twice")
