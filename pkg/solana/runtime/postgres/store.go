package postgres

import (
	"context"
	"crypto/ed25519"
	"database/sql"

	"github.com/jmoiron/sqlx"
	"github.com/mr-tron/base58"

	pgutil "github.com/code-payments/code-vault/pkg/database/postgres"
	"github.com/code-payments/code-vault/pkg/solana/runtime"
)

const sqlDefaultIsolation = sql.LevelDefault

type store struct {
	db *sqlx.DB
}

func New(db *sql.DB) runtime.Store {
	return &store{
		db: sqlx.NewDb(db, "pgx"),
	}
}

// Get implements runtime.Store.Get
func (s *store) Get(ctx context.Context, address ed25519.PublicKey) (*runtime.Account, error) {
	model, err := dbGet(ctx, s.db, base58.Encode(address))
	if err != nil {
		return nil, err
	}
	return fromModel(model)
}

// Commit implements runtime.Store.Commit
func (s *store) Commit(ctx context.Context, updates []*runtime.AccountUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	models := make([]*model, len(updates))
	for i, update := range updates {
		if update.IsDeletion() {
			continue
		}

		model, err := toModel(update.Address, update.Account)
		if err != nil {
			return err
		}
		models[i] = model
	}

	return pgutil.ExecuteRetryable(func() error {
		return pgutil.ExecuteTxWithinCtx(ctx, s.db, sql.LevelRepeatableRead, func(ctx context.Context) error {
			for i, update := range updates {
				var err error
				if models[i] == nil {
					err = dbDelete(ctx, s.db, base58.Encode(update.Address))
				} else {
					err = models[i].dbUpsert(ctx, s.db)
				}
				if err != nil {
					return err
				}
			}
			return nil
		})
	})
}
