package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"housekeeping/internal/apperr"
	"housekeeping/internal/history"
	"housekeeping/internal/ledger"
	"housekeeping/pkg/db"
)

const itemColumns = `id, kind, sku, name, category, unit, par_level, unit_cost::text,
       quantity, seq, last_hash, version, created_at, updated_at`

func scanItem(row pgx.Row) (ledger.Item, error) {
	var (
		it   ledger.Item
		cost string
	)
	if err := row.Scan(
		&it.ID, &it.Kind, &it.SKU, &it.Name, &it.Category, &it.Unit, &it.ParLevel, &cost,
		&it.Quantity, &it.Seq, &it.LastHash, &it.Version, &it.CreatedAt, &it.UpdatedAt,
	); err != nil {
		return ledger.Item{}, err
	}
	d, err := decimal.NewFromString(cost)
	if err != nil {
		return ledger.Item{}, apperr.Internal(err, "parse unit_cost")
	}
	it.UnitCost = d
	return it, nil
}

func (s *Store) InsertItem(ctx context.Context, it ledger.Item, h history.Entry) error {
	const q = `
INSERT INTO stock_items (id, kind, sku, name, category, unit, par_level, unit_cost, quantity, seq, last_hash, version, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8::numeric, $9, $10, $11, $12, $13, $14)
`
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, q,
			it.ID, it.Kind, it.SKU, it.Name, it.Category, it.Unit, it.ParLevel, it.UnitCost.String(),
			it.Quantity, it.Seq, it.LastHash, it.Version, it.CreatedAt, it.UpdatedAt,
		); err != nil {
			return err
		}
		return insertHistory(ctx, tx, h)
	})
	if db.IsUniqueViolation(err) {
		return apperr.Validation("sku %s is taken", it.SKU)
	}
	return err
}

func (s *Store) GetItem(ctx context.Context, id string) (ledger.Item, error) {
	it, err := scanItem(s.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE id = $1`, id))
	if err != nil {
		return ledger.Item{}, notFound(err, "item %s not found", id)
	}
	return it, nil
}

func (s *Store) FindItemBySKU(ctx context.Context, sku string) (ledger.Item, error) {
	it, err := scanItem(s.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM stock_items WHERE sku = $1`, sku))
	if err != nil {
		return ledger.Item{}, notFound(err, "item %s not found", sku)
	}
	return it, nil
}

func (s *Store) ListItems(ctx context.Context, f ledger.Filter) ([]ledger.Item, error) {
	var w where
	if f.Kind != "" {
		w.add("kind = ?", f.Kind)
	}
	if f.Category != "" {
		w.add("category = ?", f.Category)
	}
	if f.LowStock {
		w.raw("par_level > 0 AND quantity <= par_level")
	}
	rows, err := s.db.Query(ctx, `SELECT `+itemColumns+` FROM stock_items `+w.String()+` ORDER BY sku`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Item
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// AppendTransaction inserts tx and refreshes the cached item row in one
// transaction. The (item_id, seq) key rejects a second writer that raced
// past the version guard.
func (s *Store) AppendTransaction(ctx context.Context, it ledger.Item, expected int64, t ledger.Transaction) error {
	const upd = `
UPDATE stock_items
SET quantity = $3, seq = $4, last_hash = $5, version = $6, updated_at = $7
WHERE id = $1 AND version = $2
`
	const ins = `
INSERT INTO stock_transactions (id, item_id, seq, type, delta, requested, forced, reference, note, actor, created_at, prev_hash, hash)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
`
	err := db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, upd, it.ID, expected, it.Quantity, it.Seq, it.LastHash, it.Version, it.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return checkVersion(ctx, tx, "stock_items", it.ID, "item")
		}
		_, err = tx.Exec(ctx, ins,
			t.ID, t.ItemID, t.Seq, t.Type, t.Delta, t.Requested, t.Forced, t.Reference, t.Note, t.Actor,
			t.CreatedAt, t.PrevHash, t.Hash,
		)
		return err
	})
	if db.IsUniqueViolation(err) {
		return apperr.Busy("item %s changed concurrently", it.ID)
	}
	return err
}

func (s *Store) ListTransactions(ctx context.Context, itemID string) ([]ledger.Transaction, error) {
	const q = `
SELECT id, item_id, seq, type, delta, requested, forced, reference, note, actor, created_at, prev_hash, hash
FROM stock_transactions
WHERE item_id = $1
ORDER BY seq
`
	rows, err := s.db.Query(ctx, q, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ledger.Transaction
	for rows.Next() {
		var t ledger.Transaction
		if err := rows.Scan(
			&t.ID, &t.ItemID, &t.Seq, &t.Type, &t.Delta, &t.Requested, &t.Forced, &t.Reference, &t.Note, &t.Actor,
			&t.CreatedAt, &t.PrevHash, &t.Hash,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) UpdateItemCache(ctx context.Context, it ledger.Item, expected int64, h history.Entry) error {
	const q = `
UPDATE stock_items
SET quantity = $3, seq = $4, last_hash = $5, version = $6, updated_at = $7
WHERE id = $1 AND version = $2
`
	return db.WithTx(ctx, s.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, q, it.ID, expected, it.Quantity, it.Seq, it.LastHash, it.Version, it.UpdatedAt)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return checkVersion(ctx, tx, "stock_items", it.ID, "item")
		}
		return insertHistory(ctx, tx, h)
	})
}
