package ledger_test

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"housekeeping/internal/actor"
	"housekeeping/internal/apperr"
	"housekeeping/internal/history"
	"housekeeping/internal/ledger"
	"housekeeping/internal/lock"
	"housekeeping/internal/store/memory"
)

var (
	clerk = actor.Staff("linen-room")
	sup   = actor.Supervisor("sup")
)

func newLedger() (*ledger.Engine, *memory.Store) {
	st := memory.New()
	return &ledger.Engine{Repo: st, Locks: lock.NewManager(time.Second)}, st
}

func mustItem(t *testing.T, e *ledger.Engine, kind, sku string) ledger.Item {
	t.Helper()
	it, err := e.CreateItem(context.Background(), ledger.CreateItemInput{Kind: kind, SKU: sku, ParLevel: 40, UnitCost: "3.25"}, sup)
	require.NoError(t, err)
	return it
}

func TestRecord_TowelScenario(t *testing.T) {
	ctx := context.Background()
	e, _ := newLedger()
	it := mustItem(t, e, "linen", "towel-std")

	_, err := e.Record(ctx, it.ID, ledger.RecordInput{Type: "purchase", Delta: 100}, clerk)
	require.NoError(t, err)
	tx, err := e.Record(ctx, it.ID, ledger.RecordInput{Type: "issue_clean", Delta: -30, Reference: "floor-3"}, clerk)
	require.NoError(t, err)
	require.Equal(t, int64(2), tx.Seq)

	qty, err := e.Quantity(ctx, it.ID)
	require.NoError(t, err)
	require.Equal(t, int64(70), qty)

	_, err = e.Record(ctx, it.ID, ledger.RecordInput{Type: "issue_clean", Delta: -80}, clerk)
	require.True(t, apperr.Is(err, apperr.KindInsufficientStock), "got %v", err)

	qty, err = e.Quantity(ctx, it.ID)
	require.NoError(t, err)
	require.Equal(t, int64(70), qty)
	txs, err := e.Transactions(ctx, it.ID)
	require.NoError(t, err)
	require.Len(t, txs, 2)
	require.Equal(t, txs[0].Hash, txs[1].PrevHash)

	res, err := e.Verify(ctx, it.ID)
	require.NoError(t, err)
	require.True(t, res.Consistent)
}

func TestRecord_RejectsMalformedMovements(t *testing.T) {
	ctx := context.Background()
	e, _ := newLedger()
	linen := mustItem(t, e, "linen", "sheet-king")
	soap := mustItem(t, e, "inventory", "soap-bar")

	cases := []struct {
		name   string
		itemID string
		in     ledger.RecordInput
		kind   apperr.Kind
	}{
		{"inventory type on linen", linen.ID, ledger.RecordInput{Type: "receipt", Delta: 5}, apperr.KindValidation},
		{"linen type on inventory", soap.ID, ledger.RecordInput{Type: "purchase", Delta: 5}, apperr.KindValidation},
		{"unknown type", soap.ID, ledger.RecordInput{Type: "gift", Delta: 5}, apperr.KindValidation},
		{"zero delta", soap.ID, ledger.RecordInput{Type: "adjustment"}, apperr.KindValidation},
		{"inbound with negative delta", soap.ID, ledger.RecordInput{Type: "receipt", Delta: -5}, apperr.KindValidation},
		{"outbound with positive delta", linen.ID, ledger.RecordInput{Type: "send_laundry", Delta: 5}, apperr.KindValidation},
		{"force on issue", soap.ID, ledger.RecordInput{Type: "issue", Delta: -5, Force: true}, apperr.KindValidation},
		{"missing item", "nope", ledger.RecordInput{Type: "receipt", Delta: 5}, apperr.KindNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := e.Record(ctx, tc.itemID, tc.in, clerk)
			require.True(t, apperr.Is(err, tc.kind), "got %v", err)
		})
	}

	for _, id := range []string{linen.ID, soap.ID} {
		txs, err := e.Transactions(ctx, id)
		require.NoError(t, err)
		require.Empty(t, txs)
	}
}

func TestRecord_ForcedDiscardClamps(t *testing.T) {
	ctx := context.Background()
	e, _ := newLedger()
	it := mustItem(t, e, "inventory", "shampoo")
	_, err := e.Record(ctx, it.ID, ledger.RecordInput{Type: "receipt", Delta: 12}, clerk)
	require.NoError(t, err)

	_, err = e.Record(ctx, it.ID, ledger.RecordInput{Type: "discard", Delta: -20, Force: true}, clerk)
	require.True(t, apperr.Is(err, apperr.KindForbidden), "got %v", err)

	tx, err := e.Record(ctx, it.ID, ledger.RecordInput{Type: "discard", Delta: -20, Force: true, Note: "flood"}, sup)
	require.NoError(t, err)
	require.True(t, tx.Forced)
	require.Equal(t, int64(-12), tx.Delta)
	require.Equal(t, int64(-20), tx.Requested)

	qty, err := e.Quantity(ctx, it.ID)
	require.NoError(t, err)
	require.Zero(t, qty)

	_, err = e.Record(ctx, it.ID, ledger.RecordInput{Type: "discard", Delta: -1, Force: true}, sup)
	require.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)

	within, err := e.Record(ctx, it.ID, ledger.RecordInput{Type: "adjustment", Delta: 3, Force: true}, sup)
	require.NoError(t, err)
	require.False(t, within.Forced)
}

func TestRecord_ConcurrentWritesStayConsistent(t *testing.T) {
	ctx := context.Background()
	e, _ := newLedger()
	it := mustItem(t, e, "linen", "pillowcase")
	_, err := e.Record(ctx, it.ID, ledger.RecordInput{Type: "purchase", Delta: 50}, clerk)
	require.NoError(t, err)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		accepted = int64(50)
	)
	for i := 0; i < 40; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			in := ledger.RecordInput{Type: "issue_clean", Delta: -3}
			if i%4 == 0 {
				in = ledger.RecordInput{Type: "return_soiled", Delta: 2}
			}
			if _, err := e.Record(ctx, it.ID, in, clerk); err == nil {
				mu.Lock()
				accepted += in.Delta
				mu.Unlock()
			} else if !apperr.Is(err, apperr.KindInsufficientStock) {
				t.Errorf("record: %v", err)
			}
		}(i)
	}
	wg.Wait()

	qty, err := e.Quantity(ctx, it.ID)
	require.NoError(t, err)
	require.Equal(t, accepted, qty)
	require.GreaterOrEqual(t, qty, int64(0))

	txs, err := e.Transactions(ctx, it.ID)
	require.NoError(t, err)
	var sum int64
	for i, tx := range txs {
		require.Equal(t, int64(i+1), tx.Seq)
		sum += tx.Delta
	}
	require.Equal(t, qty, sum)
}

func TestVerify_RepairsDivergedCache(t *testing.T) {
	ctx := context.Background()
	e, st := newLedger()
	it := mustItem(t, e, "inventory", "coffee-pod")
	_, err := e.Record(ctx, it.ID, ledger.RecordInput{Type: "receipt", Delta: 30}, clerk)
	require.NoError(t, err)
	_, err = e.Record(ctx, it.ID, ledger.RecordInput{Type: "issue", Delta: -4}, clerk)
	require.NoError(t, err)

	st.CorruptItemCache(it.ID, 99)
	res, err := e.Verify(ctx, it.ID)
	require.True(t, apperr.Is(err, apperr.KindIntegrity), "got %v", err)
	require.True(t, res.ChainIntact)
	require.False(t, res.Consistent)
	require.Equal(t, int64(26), res.Replayed)

	rep, err := e.Repair(ctx, it.ID, sup)
	require.NoError(t, err)
	require.True(t, rep.Repaired)
	require.Equal(t, int64(99), rep.Previous)
	require.Equal(t, int64(26), rep.Item.Quantity)

	_, err = e.Verify(ctx, it.ID)
	require.NoError(t, err)

	hist, err := st.ListHistory(ctx, history.EntityItem, it.ID)
	require.NoError(t, err)
	require.Equal(t, history.ActionQuantityRepaired, hist[len(hist)-1].Action)

	again, err := e.Repair(ctx, it.ID, sup)
	require.NoError(t, err)
	require.False(t, again.Repaired)
}

func TestVerifyAll_ReportsRepairs(t *testing.T) {
	ctx := context.Background()
	e, st := newLedger()
	good := mustItem(t, e, "inventory", "a-good")
	bad := mustItem(t, e, "linen", "b-bad")
	_, err := e.Record(ctx, good.ID, ledger.RecordInput{Type: "receipt", Delta: 5}, clerk)
	require.NoError(t, err)
	_, err = e.Record(ctx, bad.ID, ledger.RecordInput{Type: "purchase", Delta: 8}, clerk)
	require.NoError(t, err)
	st.CorruptItemCache(bad.ID, 0)

	rep, err := e.VerifyAll(ctx, actor.System)
	require.NoError(t, err)
	require.Equal(t, 2, rep.Checked)
	require.Equal(t, []string{bad.ID}, rep.Repaired)
	require.Empty(t, rep.Corrupt)

	qty, err := e.Quantity(ctx, bad.ID)
	require.NoError(t, err)
	require.Equal(t, int64(8), qty)
}

func TestFold_DetectsTampering(t *testing.T) {
	ctx := context.Background()
	e, _ := newLedger()
	it := mustItem(t, e, "inventory", "tea")
	for _, d := range []int64{10, 5, 7} {
		_, err := e.Record(ctx, it.ID, ledger.RecordInput{Type: "receipt", Delta: d}, clerk)
		require.NoError(t, err)
	}
	txs, err := e.Transactions(ctx, it.ID)
	require.NoError(t, err)

	qty, last, broken := ledger.Fold(txs)
	require.Equal(t, int64(22), qty)
	require.Equal(t, txs[2].Hash, last)
	require.Equal(t, -1, broken)

	txs[1].Delta = 500
	qty, _, broken = ledger.Fold(txs)
	require.Equal(t, 1, broken)
	require.Equal(t, int64(10), qty)

	txs[1].Delta = 5
	txs = append(txs[:1], txs[2:]...)
	_, _, broken = ledger.Fold(txs)
	require.Equal(t, 1, broken)
}

func TestCreateItem_Validation(t *testing.T) {
	ctx := context.Background()
	e, _ := newLedger()
	_, err := e.CreateItem(ctx, ledger.CreateItemInput{Kind: "food", SKU: "x"}, sup)
	require.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = e.CreateItem(ctx, ledger.CreateItemInput{Kind: "linen", SKU: " "}, sup)
	require.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = e.CreateItem(ctx, ledger.CreateItemInput{Kind: "linen", SKU: "x", UnitCost: "abc"}, sup)
	require.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = e.CreateItem(ctx, ledger.CreateItemInput{Kind: "linen", SKU: "x", ParLevel: -1}, sup)
	require.True(t, apperr.Is(err, apperr.KindValidation))

	it, err := e.CreateItem(ctx, ledger.CreateItemInput{Kind: "linen", SKU: "x"}, sup)
	require.NoError(t, err)
	require.Equal(t, "each", it.Unit)
	require.True(t, it.LowStock() == (it.ParLevel > 0))
	_, err = e.CreateItem(ctx, ledger.CreateItemInput{Kind: "inventory", SKU: "x"}, sup)
	require.True(t, apperr.Is(err, apperr.KindValidation), "duplicate sku: %v", err)
}

func TestRecord_RejectsOverflowingDeltas(t *testing.T) {
	ctx := context.Background()
	e, _ := newLedger()
	it := mustItem(t, e, "linen", "sheet-king")
	_, err := e.Record(ctx, it.ID, ledger.RecordInput{Type: "purchase", Delta: 10}, clerk)
	require.NoError(t, err)

	_, err = e.Record(ctx, it.ID, ledger.RecordInput{Type: "purchase", Delta: math.MaxInt64}, clerk)
	require.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
	_, err = e.Record(ctx, it.ID, ledger.RecordInput{Type: "adjustment", Delta: math.MaxInt64, Force: true}, sup)
	require.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)

	qty, err := e.Quantity(ctx, it.ID)
	require.NoError(t, err)
	require.Equal(t, int64(10), qty)
	txs, err := e.Transactions(ctx, it.ID)
	require.NoError(t, err)
	require.Len(t, txs, 1)

	_, err = e.Record(ctx, it.ID, ledger.RecordInput{Type: "purchase", Delta: math.MaxInt64 - 10}, clerk)
	require.NoError(t, err)
	qty, err = e.Quantity(ctx, it.ID)
	require.NoError(t, err)
	require.Equal(t, int64(math.MaxInt64), qty)
}

func TestVerify_ConsistentDuringConcurrentRecords(t *testing.T) {
	ctx := context.Background()
	e, _ := newLedger()
	it := mustItem(t, e, "linen", "pillowcase")

	var wg sync.WaitGroup
	errs := make(chan error, 80)
	for i := 0; i < 40; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := e.Record(ctx, it.ID, ledger.RecordInput{Type: "purchase", Delta: 1}, clerk)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := e.Verify(ctx, it.ID)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
}
