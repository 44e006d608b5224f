package main

import (
	"context"
	"crypto/ed25519"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/code-payments/code-vault/pkg/code/common"
	pg "github.com/code-payments/code-vault/pkg/database/postgres"
	"github.com/code-payments/code-vault/pkg/netutil"
	"github.com/code-payments/code-vault/pkg/solana"
	"github.com/code-payments/code-vault/pkg/solana/runtime"
	"github.com/code-payments/code-vault/pkg/solana/runtime/leveldb"
	"github.com/code-payments/code-vault/pkg/solana/runtime/memory"
	"github.com/code-payments/code-vault/pkg/solana/runtime/postgres"
	"github.com/code-payments/code-vault/pkg/solana/vault/program"
)

const (
	// genesisFaucetLamports is the balance a new local ledger's faucet
	// starts with.
	genesisFaucetLamports = 500_000_000 * lamportsPerSOL

	faucetKeyFile = "faucet.json"
	accountsDir   = "accounts"
)

// ledger is the solana.Client commands run against, plus whatever must be
// released when the command completes.
type ledger struct {
	client  solana.Client
	closers []func() error
}

func (l *ledger) Close() error {
	var firstErr error
	for i := len(l.closers) - 1; i >= 0; i-- {
		if err := l.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// openLedger connects to a remote RPC node, or starts a local bank with the
// vault program registered over the configured account store.
func openLedger(ctx context.Context, config *Config) (*ledger, error) {
	log := logrus.StandardLogger().WithFields(logrus.Fields{
		"type":   "cmd/vault/ledger",
		"ledger": config.Ledger,
	})

	l := &ledger{}

	var store runtime.Store
	switch config.Ledger {
	case ledgerRPC:
		if err := netutil.ValidateHttpUrl(config.RPCEndpoint, false); err != nil {
			return nil, errors.Wrap(err, "invalid rpc endpoint")
		}
		l.client = solana.New(config.RPCEndpoint)
		return l, nil
	case ledgerMemory:
		store = memory.New()
	case ledgerLevelDB:
		s, err := leveldb.New(filepath.Join(config.LedgerPath, accountsDir), config.LevelDB)
		if err != nil {
			return nil, err
		}
		l.closers = append(l.closers, s.Close)
		store = s
	case ledgerPostgres:
		db, err := pg.NewWithConfig(&config.Postgres)
		if err != nil {
			return nil, errors.Wrap(err, "error connecting to postgres")
		}
		l.closers = append(l.closers, db.Close)
		store = postgres.New(db)
	default:
		return nil, errors.Errorf("unknown ledger %q", config.Ledger)
	}

	bank, err := runtime.NewBank(store, &config.Runtime)
	if err != nil {
		l.Close()
		return nil, err
	}
	program.Register(bank)

	faucetKey, err := loadFaucetKey(config)
	if err != nil {
		l.Close()
		return nil, err
	}
	faucet := runtime.NewFaucet(bank, faucetKey)

	_, err = bank.GetAccount(ctx, faucet.PublicKey())
	if errors.Is(err, runtime.ErrAccountNotFound) {
		log.WithField("faucet", base58.Encode(faucet.PublicKey())).Info("funding faucet")
		err = bank.Genesis(ctx, map[string]uint64{
			string(faucet.PublicKey()): genesisFaucetLamports,
		})
	}
	if err != nil {
		l.Close()
		return nil, errors.Wrap(err, "error funding faucet")
	}

	l.client = runtime.NewClient(bank, faucet)
	return l, nil
}

// loadFaucetKey returns the faucet key persisted with the ledger, creating it
// on first use. In memory ledgers get a new key every time.
func loadFaucetKey(config *Config) (ed25519.PrivateKey, error) {
	if config.Ledger == ledgerMemory {
		key, err := common.NewRandomKey()
		if err != nil {
			return nil, err
		}
		return key.ToBytes(), nil
	}

	path := filepath.Join(config.LedgerPath, faucetKeyFile)
	key, err := common.NewKeyFromFile(path)
	if errors.Is(err, os.ErrNotExist) {
		key, err = common.NewRandomKey()
		if err != nil {
			return nil, err
		}
		if err := key.WriteToFile(path); err != nil {
			return nil, errors.Wrap(err, "error writing faucet key")
		}
	} else if err != nil {
		return nil, errors.Wrap(err, "error reading faucet key")
	}
	return key.ToBytes(), nil
}
