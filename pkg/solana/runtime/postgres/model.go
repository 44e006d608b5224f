package postgres

import (
	"context"
	"crypto/ed25519"
	"math"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mr-tron/base58"
	"github.com/pkg/errors"

	pgutil "github.com/code-payments/code-vault/pkg/database/postgres"
	"github.com/code-payments/code-vault/pkg/solana/runtime"
)

const (
	tableName = "vault__core_account"
)

type model struct {
	Address    string    `db:"address"`
	Lamports   int64     `db:"lamports"`
	Owner      string    `db:"owner"`
	Data       []byte    `db:"data"`
	Executable bool      `db:"executable"`
	UpdatedAt  time.Time `db:"updated_at"`
}

func toModel(address ed25519.PublicKey, obj *runtime.Account) (*model, error) {
	if obj.Lamports > math.MaxInt64 {
		return nil, errors.Errorf("lamports %d exceed storable range", obj.Lamports)
	}

	data := obj.Data
	if data == nil {
		data = []byte{}
	}

	return &model{
		Address:    base58.Encode(address),
		Lamports:   int64(obj.Lamports),
		Owner:      base58.Encode(obj.Owner),
		Data:       data,
		Executable: obj.Executable,
	}, nil
}

func fromModel(obj *model) (*runtime.Account, error) {
	owner, err := base58.Decode(obj.Owner)
	if err != nil {
		return nil, errors.Wrap(err, "invalid owner")
	}

	account := &runtime.Account{
		Lamports:   uint64(obj.Lamports),
		Owner:      owner,
		Executable: obj.Executable,
	}
	if len(obj.Data) > 0 {
		account.Data = obj.Data
	}
	return account, nil
}

func (m *model) dbUpsert(ctx context.Context, db *sqlx.DB) error {
	return pgutil.ExecuteInTx(ctx, db, sqlDefaultIsolation, func(tx *sqlx.Tx) error {
		m.UpdatedAt = time.Now().UTC()

		query := `INSERT INTO ` + tableName + `
			(address, lamports, owner, data, executable, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (address)
			DO UPDATE
				SET lamports = $2, owner = $3, data = $4, executable = $5, updated_at = $6
				WHERE ` + tableName + `.address = $1
		`
		_, err := tx.ExecContext(
			ctx,
			query,
			m.Address,
			m.Lamports,
			m.Owner,
			m.Data,
			m.Executable,
			m.UpdatedAt,
		)
		return err
	})
}

func dbDelete(ctx context.Context, db *sqlx.DB, address string) error {
	return pgutil.ExecuteInTx(ctx, db, sqlDefaultIsolation, func(tx *sqlx.Tx) error {
		query := `DELETE FROM ` + tableName + `
			WHERE address = $1
		`
		_, err := tx.ExecContext(ctx, query, address)
		return err
	})
}

func dbGet(ctx context.Context, db *sqlx.DB, address string) (*model, error) {
	res := &model{}

	query := `SELECT address, lamports, owner, data, executable, updated_at FROM ` + tableName + `
		WHERE address = $1
	`
	err := db.GetContext(ctx, res, query, address)
	if err != nil {
		return nil, pgutil.CheckNoRows(err, runtime.ErrAccountNotFound)
	}
	return res, nil
}
