package runtime

import (
	"context"
	"crypto/ed25519"

	"github.com/pkg/errors"

	"github.com/code-payments/code-vault/pkg/solana"
)

type client struct {
	bank   *Bank
	faucet *Faucet
}

// NewClient returns a solana.Client served by the bank. Airdrops are only
// available when faucet is not nil.
func NewClient(bank *Bank, faucet *Faucet) solana.Client {
	return &client{
		bank:   bank,
		faucet: faucet,
	}
}

func (c *client) GetAccountInfo(account ed25519.PublicKey, _ solana.Commitment) (solana.AccountInfo, error) {
	info, err := c.bank.GetAccount(context.Background(), account)
	if errors.Is(err, ErrAccountNotFound) {
		return solana.AccountInfo{}, solana.ErrNoAccountInfo
	} else if err != nil {
		return solana.AccountInfo{}, errors.Wrap(err, "failed to get account")
	}

	return solana.AccountInfo{
		Data:       info.Data,
		Owner:      info.Owner,
		Lamports:   info.Lamports,
		Executable: info.Executable,
	}, nil
}

func (c *client) GetBalance(account ed25519.PublicKey) (uint64, error) {
	info, err := c.bank.GetAccount(context.Background(), account)
	if errors.Is(err, ErrAccountNotFound) {
		return 0, nil
	} else if err != nil {
		return 0, errors.Wrap(err, "failed to get account")
	}
	return info.Lamports, nil
}

func (c *client) GetMinimumBalanceForRentExemption(size uint64) (uint64, error) {
	return c.bank.Rent().MinimumBalance(size), nil
}

func (c *client) GetLatestBlockhash() (solana.Blockhash, error) {
	return c.bank.LatestBlockhash(), nil
}

func (c *client) GetSlot(_ solana.Commitment) (uint64, error) {
	return c.bank.Slot(), nil
}

// GetSignatureStatus returns the status of a committed transaction. The bank
// finalizes transactions as it commits them, so the commitment is always met.
func (c *client) GetSignatureStatus(sig solana.Signature, _ solana.Commitment) (*solana.SignatureStatus, error) {
	statuses, err := c.GetSignatureStatuses([]solana.Signature{sig})
	if err != nil {
		return nil, err
	}
	if statuses[0] == nil {
		return nil, solana.ErrSignatureNotFound
	}
	return statuses[0], nil
}

func (c *client) GetSignatureStatuses(sigs []solana.Signature) ([]*solana.SignatureStatus, error) {
	statuses := make([]*solana.SignatureStatus, len(sigs))
	for i, sig := range sigs {
		slot, ok := c.bank.GetSignatureSlot(sig)
		if !ok {
			continue
		}

		statuses[i] = &solana.SignatureStatus{
			Slot:               slot,
			ConfirmationStatus: solana.CommitmentFinalized.Commitment,
		}
	}
	return statuses, nil
}

func (c *client) RequestAirdrop(account ed25519.PublicKey, lamports uint64, _ solana.Commitment) (solana.Signature, error) {
	if c.faucet == nil {
		return solana.Signature{}, ErrAirdropsDisabled
	}
	return c.faucet.Airdrop(context.Background(), account, lamports)
}

// SubmitTransaction executes the transaction synchronously. Execution
// failures are returned as a *solana.TransactionError.
func (c *client) SubmitTransaction(txn solana.Transaction, _ solana.Commitment) (solana.Signature, error) {
	var sig solana.Signature
	if len(txn.Signatures) > 0 {
		sig = txn.Signatures[0]
	}

	if _, err := c.bank.ProcessTransaction(context.Background(), txn); err != nil {
		return sig, err
	}
	return sig, nil
}
