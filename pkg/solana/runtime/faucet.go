package runtime

import (
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	xrate "golang.org/x/time/rate"

	"github.com/code-payments/code-vault/pkg/rate"
	"github.com/code-payments/code-vault/pkg/solana"
	"github.com/code-payments/code-vault/pkg/solana/system"
)

var (
	ErrAirdropsDisabled = errors.New("airdrops are not enabled")
	ErrAirdropTooLarge  = errors.New("airdrop exceeds the maximum amount")
	ErrRateLimited      = errors.New("airdrop rate limited")
)

// Faucet funds accounts with system transfers from a key funded at genesis.
type Faucet struct {
	log     *logrus.Entry
	bank    *Bank
	key     ed25519.PrivateKey
	limiter rate.Limiter
}

// NewFaucet returns a faucet paying from key, limited per recipient to the
// bank's configured airdrop rate.
func NewFaucet(bank *Bank, key ed25519.PrivateKey) *Faucet {
	return &Faucet{
		log:     logrus.StandardLogger().WithField("type", "solana/runtime/faucet"),
		bank:    bank,
		key:     key,
		limiter: rate.NewLocalRateLimiter(xrate.Limit(bank.conf.AirdropsPerSecond)),
	}
}

func (f *Faucet) PublicKey() ed25519.PublicKey {
	return f.key.Public().(ed25519.PublicKey)
}

// Airdrop transfers lamports to the recipient.
func (f *Faucet) Airdrop(ctx context.Context, to ed25519.PublicKey, lamports uint64) (solana.Signature, error) {
	log := f.log.WithFields(logrus.Fields{
		"method":    "Airdrop",
		"recipient": base58.Encode(to),
		"lamports":  lamports,
	})

	if lamports > f.bank.conf.MaxAirdropLamports {
		return solana.Signature{}, ErrAirdropTooLarge
	}

	allowed, err := f.limiter.Allow(base58.Encode(to))
	if err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to check rate limit")
	}
	if !allowed {
		log.Debug("airdrop rate limited")
		return solana.Signature{}, ErrRateLimited
	}

	txn := solana.NewTransaction(
		f.PublicKey(),
		system.Transfer(f.PublicKey(), to, lamports),
	)
	txn.SetBlockhash(f.bank.LatestBlockhash())
	if err := txn.Sign(f.key); err != nil {
		return solana.Signature{}, errors.Wrap(err, "failed to sign airdrop")
	}

	result, err := f.bank.ProcessTransaction(ctx, txn)
	if err != nil {
		log.WithError(err).Warn("airdrop failed")
		return solana.Signature{}, err
	}

	f.bank.metrics.airdrops.Inc()
	log.WithField("slot", result.Slot).Debug("airdrop sent")
	return result.Signature, nil
}
