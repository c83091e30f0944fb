package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"housekeeping/internal/history"
)

// Item is a stock line. Quantity, Seq and LastHash are a cache of the
// transaction log, written in the same unit of work as each append.
type Item struct {
	ID       string          `json:"id"`
	Kind     Kind            `json:"kind"`
	SKU      string          `json:"sku"`
	Name     string          `json:"name"`
	Category string          `json:"category,omitempty"`
	Unit     string          `json:"unit"`
	ParLevel int64           `json:"parLevel"`
	UnitCost decimal.Decimal `json:"unitCost"`

	Quantity int64  `json:"quantity"`
	Seq      int64  `json:"seq"`
	LastHash string `json:"lastHash,omitempty"`
	Version  int64  `json:"version"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// LowStock reports whether the item sits at or under its par level.
func (it Item) LowStock() bool {
	return it.ParLevel > 0 && it.Quantity <= it.ParLevel
}

func (it Item) Value() decimal.Decimal {
	return it.UnitCost.Mul(decimal.NewFromInt(it.Quantity))
}

type Transaction struct {
	ID     string `json:"id"`
	ItemID string `json:"itemId"`
	Seq    int64  `json:"seq"`
	Type   TxType `json:"type"`
	Delta  int64  `json:"delta"`
	// Requested differs from Delta only when a forced correction was clamped.
	Requested int64     `json:"requested"`
	Forced    bool      `json:"forced"`
	Reference string    `json:"reference,omitempty"`
	Note      string    `json:"note,omitempty"`
	Actor     string    `json:"actor"`
	CreatedAt time.Time `json:"createdAt"`
	PrevHash  string    `json:"prevHash,omitempty"`
	Hash      string    `json:"hash"`
}

type Filter struct {
	Kind     Kind
	Category string
	LowStock bool
}

func (f Filter) Match(it Item) bool {
	switch {
	case f.Kind != "" && it.Kind != f.Kind:
		return false
	case f.Category != "" && it.Category != f.Category:
		return false
	case f.LowStock && !it.LowStock():
		return false
	}
	return true
}

type Repository interface {
	// InsertItem fails with apperr Validation when the SKU is taken.
	InsertItem(ctx context.Context, it Item, h history.Entry) error
	GetItem(ctx context.Context, id string) (Item, error)
	FindItemBySKU(ctx context.Context, sku string) (Item, error)
	ListItems(ctx context.Context, f Filter) ([]Item, error)
	// AppendTransaction writes tx and the refreshed item cache atomically.
	// It fails with apperr Busy when the stored item version is not
	// expectedVersion or tx.Seq is already taken.
	AppendTransaction(ctx context.Context, it Item, expectedVersion int64, tx Transaction) error
	// ListTransactions returns the item's log in sequence order.
	ListTransactions(ctx context.Context, itemID string) ([]Transaction, error)
	// UpdateItemCache overwrites the cached fields after a replay.
	UpdateItemCache(ctx context.Context, it Item, expectedVersion int64, h history.Entry) error
	history.Reader
}
