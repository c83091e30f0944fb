package ledger

import (
	"context"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"housekeeping/internal/actor"
	"housekeeping/internal/apperr"
	"housekeeping/internal/history"
	"housekeeping/internal/lock"
	"housekeeping/internal/metrics"
)

type Engine struct {
	Repo    Repository
	Locks   *lock.Manager
	Log     *zap.Logger
	Metrics *metrics.Metrics
	Now     func() time.Time
}

type CreateItemInput struct {
	Kind     string `json:"kind"`
	SKU      string `json:"sku"`
	Name     string `json:"name"`
	Category string `json:"category,omitempty"`
	Unit     string `json:"unit,omitempty"`
	ParLevel int64  `json:"parLevel,omitempty"`
	UnitCost string `json:"unitCost,omitempty"`
}

// CreateItem registers a stock line with an empty log and zero quantity.
func (e *Engine) CreateItem(ctx context.Context, in CreateItemInput, by actor.Actor) (Item, error) {
	kind, err := ParseKind(in.Kind)
	if err != nil {
		return Item{}, apperr.Validation("%v", err)
	}
	sku := strings.TrimSpace(in.SKU)
	if sku == "" {
		return Item{}, apperr.Validation("sku is required")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		name = sku
	}
	if in.ParLevel < 0 {
		return Item{}, apperr.Validation("parLevel must be >= 0")
	}
	cost := decimal.Zero
	if s := strings.TrimSpace(in.UnitCost); s != "" {
		if cost, err = decimal.NewFromString(s); err != nil {
			return Item{}, apperr.Validation("unitCost is not a decimal: %q", s)
		}
		if cost.IsNegative() {
			return Item{}, apperr.Validation("unitCost must be >= 0")
		}
	}
	unit := strings.TrimSpace(in.Unit)
	if unit == "" {
		unit = "each"
	}

	now := e.now()
	it := Item{
		ID:        uuid.NewString(),
		Kind:      kind,
		SKU:       sku,
		Name:      name,
		Category:  strings.TrimSpace(in.Category),
		Unit:      unit,
		ParLevel:  in.ParLevel,
		UnitCost:  cost,
		Version:   1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	h := history.New(history.EntityItem, it.ID, history.ActionCreated, by.String(), now).With("sku", sku)
	if err := ctx.Err(); err != nil {
		return Item{}, err
	}
	if err := e.Repo.InsertItem(ctx, it, h); err != nil {
		return Item{}, err
	}
	return it, nil
}

type RecordInput struct {
	Type  string `json:"type"`
	Delta int64  `json:"delta"`
	// Force lets an adjustment or discard clamp a shortfall so the
	// quantity lands on exactly zero.
	Force     bool   `json:"force,omitempty"`
	Reference string `json:"reference,omitempty"`
	Note      string `json:"note,omitempty"`
}

// Record appends one movement to an item's log. Writes for one item are
// strictly serialized; a rejected movement leaves the log untouched.
func (e *Engine) Record(ctx context.Context, itemID string, in RecordInput, by actor.Actor) (Transaction, error) {
	typ := TxType(in.Type)
	var out Transaction
	err := e.Locks.Do(ctx, lock.Key("item", itemID), func() error {
		it, err := e.Repo.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		dir, ok := DirectionOf(it.Kind, typ)
		if !ok {
			return apperr.Validation("%q is not a %s transaction type", in.Type, it.Kind)
		}
		if in.Delta == 0 {
			return apperr.Validation("delta must be non-zero")
		}
		if !dir.Allows(in.Delta) {
			return apperr.Validation("%s is %s; delta %d has the wrong sign", typ, dir, in.Delta)
		}
		if in.Force {
			if !typ.Forcible() {
				return apperr.Validation("only adjustment and discard can be forced")
			}
			if !by.CanOverride() {
				return apperr.Forbidden("forced corrections require a supervisor")
			}
		}

		if in.Delta > 0 && it.Quantity > math.MaxInt64-in.Delta {
			return apperr.Validation("delta %d overflows the %s quantity", in.Delta, it.SKU)
		}

		applied := in.Delta
		forced := false
		if it.Quantity+in.Delta < 0 {
			if !in.Force {
				return apperr.InsufficientStock("%s has %d %s; cannot apply %d", it.SKU, it.Quantity, it.Unit, in.Delta)
			}
			applied = -it.Quantity
			forced = true
			if applied == 0 {
				return apperr.Validation("%s is already at zero", it.SKU)
			}
		}

		now := e.now()
		tx := Transaction{
			ID:        uuid.NewString(),
			ItemID:    it.ID,
			Seq:       it.Seq + 1,
			Type:      typ,
			Delta:     applied,
			Requested: in.Delta,
			Forced:    forced,
			Reference: strings.TrimSpace(in.Reference),
			Note:      strings.TrimSpace(in.Note),
			Actor:     by.String(),
			CreatedAt: now,
			PrevHash:  it.LastHash,
		}
		if tx.Hash, err = ChainHash(tx); err != nil {
			return apperr.Internal(err, "hash transaction")
		}

		expected := it.Version
		it.Quantity += applied
		it.Seq = tx.Seq
		it.LastHash = tx.Hash
		it.Version++
		it.UpdatedAt = now

		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Repo.AppendTransaction(ctx, it, expected, tx); err != nil {
			return err
		}
		e.Metrics.LedgerRecord(string(it.Kind), string(typ))
		out = tx
		return nil
	})
	if err != nil {
		e.Metrics.CommandError("ledger.record", string(apperr.KindOf(err)))
		return Transaction{}, err
	}
	return out, nil
}

func (e *Engine) GetItem(ctx context.Context, id string) (Item, error) {
	return e.Repo.GetItem(ctx, id)
}

func (e *Engine) Quantity(ctx context.Context, itemID string) (int64, error) {
	it, err := e.Repo.GetItem(ctx, itemID)
	if err != nil {
		return 0, err
	}
	return it.Quantity, nil
}

func (e *Engine) Transactions(ctx context.Context, itemID string) ([]Transaction, error) {
	if _, err := e.Repo.GetItem(ctx, itemID); err != nil {
		return nil, err
	}
	return e.Repo.ListTransactions(ctx, itemID)
}

func (e *Engine) ListItems(ctx context.Context, f Filter) ([]Item, error) {
	return e.Repo.ListItems(ctx, f)
}

type VerifyResult struct {
	ItemID       string `json:"itemId"`
	Cached       int64  `json:"cached"`
	Replayed     int64  `json:"replayed"`
	Transactions int    `json:"transactions"`
	ChainIntact  bool   `json:"chainIntact"`
	Consistent   bool   `json:"consistent"`
}

// Verify replays the log and compares it with the cached total. A
// divergence or a broken hash chain returns an Integrity error alongside
// the result.
// The item and its log are read under the item lock so a concurrent Record
// cannot land between the two reads.
func (e *Engine) Verify(ctx context.Context, itemID string) (VerifyResult, error) {
	var (
		res  VerifyResult
		verr error
	)
	err := e.Locks.Do(ctx, lock.Key("item", itemID), func() error {
		it, err := e.Repo.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		txs, err := e.Repo.ListTransactions(ctx, itemID)
		if err != nil {
			return err
		}
		res, verr = verify(it, txs)
		return nil
	})
	if err != nil {
		return VerifyResult{}, err
	}
	return res, verr
}

func verify(it Item, txs []Transaction) (VerifyResult, error) {
	qty, last, broken := Fold(txs)
	res := VerifyResult{
		ItemID:       it.ID,
		Cached:       it.Quantity,
		Replayed:     qty,
		Transactions: len(txs),
		ChainIntact:  broken < 0,
	}
	res.Consistent = res.ChainIntact && qty == it.Quantity && last == it.LastHash && int64(len(txs)) == it.Seq
	switch {
	case !res.ChainIntact:
		return res, apperr.Integrity("%s log is broken at sequence %d", it.SKU, broken+1)
	case !res.Consistent:
		return res, apperr.Integrity("%s cached quantity %d diverges from log total %d", it.SKU, it.Quantity, qty)
	}
	return res, nil
}

type RepairResult struct {
	Item     Item  `json:"item"`
	Previous int64 `json:"previous"`
	Repaired bool  `json:"repaired"`
}

// Repair rebuilds the cached quantity of an item from its log. A broken
// hash chain cannot be repaired from the log and stays an Integrity error.
func (e *Engine) Repair(ctx context.Context, itemID string, by actor.Actor) (RepairResult, error) {
	var out RepairResult
	err := e.Locks.Do(ctx, lock.Key("item", itemID), func() error {
		it, err := e.Repo.GetItem(ctx, itemID)
		if err != nil {
			return err
		}
		txs, err := e.Repo.ListTransactions(ctx, itemID)
		if err != nil {
			return err
		}
		res, verr := verify(it, txs)
		out = RepairResult{Item: it, Previous: it.Quantity}
		if verr == nil {
			return nil
		}
		if !res.ChainIntact {
			return verr
		}

		qty, last, _ := Fold(txs)
		now := e.now()
		expected := it.Version
		it.Quantity = qty
		it.Seq = int64(len(txs))
		it.LastHash = last
		it.Version++
		it.UpdatedAt = now
		h := history.New(history.EntityItem, it.ID, history.ActionQuantityRepaired, by.String(), now).
			With("previous", out.Previous).
			With("replayed", qty)
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := e.Repo.UpdateItemCache(ctx, it, expected, h); err != nil {
			return err
		}
		e.Metrics.IntegrityRepair()
		e.logger().Warn("ledger cache repaired from log",
			zap.String("item_id", it.ID),
			zap.String("sku", it.SKU),
			zap.Int64("previous", out.Previous),
			zap.Int64("replayed", qty),
		)
		out = RepairResult{Item: it, Previous: out.Previous, Repaired: true}
		return nil
	})
	if err != nil {
		return RepairResult{}, err
	}
	return out, nil
}

type VerifyReport struct {
	Checked  int      `json:"checked"`
	Repaired []string `json:"repaired,omitempty"`
	Corrupt  []string `json:"corrupt,omitempty"`
}

// VerifyAll checks every item, repairs diverged caches and reports logs
// that cannot be repaired.
func (e *Engine) VerifyAll(ctx context.Context, by actor.Actor) (VerifyReport, error) {
	items, err := e.Repo.ListItems(ctx, Filter{})
	if err != nil {
		return VerifyReport{}, err
	}
	var rep VerifyReport
	for _, it := range items {
		if err := ctx.Err(); err != nil {
			return rep, err
		}
		rep.Checked++
		if _, err := e.Verify(ctx, it.ID); err == nil {
			continue
		} else if !apperr.Is(err, apperr.KindIntegrity) {
			return rep, err
		}
		res, err := e.Repair(ctx, it.ID, by)
		switch {
		case apperr.Is(err, apperr.KindIntegrity):
			rep.Corrupt = append(rep.Corrupt, it.ID)
			e.logger().Error("ledger log corrupt", zap.String("item_id", it.ID), zap.String("sku", it.SKU), zap.Error(err))
		case err != nil:
			return rep, err
		case res.Repaired:
			rep.Repaired = append(rep.Repaired, it.ID)
		}
	}
	return rep, nil
}

func (e *Engine) logger() *zap.Logger {
	if e.Log == nil {
		return zap.NewNop()
	}
	return e.Log
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().Truncate(time.Microsecond)
	}
	return time.Now().UTC().Truncate(time.Microsecond)
}
