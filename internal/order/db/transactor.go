package db

import (
	"context"

	catalogdb "ms-boxoffice/internal/catalog/db"
	"ms-boxoffice/internal/order"

	"github.com/uptrace/bun"
)

// Transactor runs order and inventory writes in one database transaction.
type Transactor struct {
	Bun *bun.DB
}

func NewTransactor(db *bun.DB) *Transactor {
	return &Transactor{Bun: db}
}

func (t *Transactor) WithinTx(ctx context.Context, fn order.TxFunc) error {
	return t.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, New(tx), catalogdb.New(tx))
	})
}
