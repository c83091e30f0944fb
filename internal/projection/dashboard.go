// Package projection builds read models over the engines: the operations
// dashboard, its cached snapshot and the xlsx reports.
package projection

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"housekeeping/internal/ledger"
	"housekeeping/internal/request"
	"housekeeping/internal/room"
	"housekeeping/internal/task"
)

const defaultQueueLimit = 50

type RoomLister interface {
	List(ctx context.Context, f room.Filter) ([]room.Room, error)
}

type TaskLister interface {
	List(ctx context.Context, f task.Filter) ([]task.Task, error)
}

type RequestLister interface {
	List(ctx context.Context, f request.Filter) ([]request.Request, error)
}

type ItemLister interface {
	ListItems(ctx context.Context, f ledger.Filter) ([]ledger.Item, error)
}

type QueueEntry struct {
	TaskID    string        `json:"taskId"`
	Type      task.Type     `json:"type"`
	Priority  task.Priority `json:"priority"`
	RoomID    string        `json:"roomId"`
	Assignee  string        `json:"assignee,omitempty"`
	CreatedAt time.Time     `json:"createdAt"`
}

type LowStockItem struct {
	ItemID   string      `json:"itemId"`
	Kind     ledger.Kind `json:"kind"`
	SKU      string      `json:"sku"`
	Name     string      `json:"name"`
	Quantity int64       `json:"quantity"`
	ParLevel int64       `json:"parLevel"`
}

type Dashboard struct {
	GeneratedAt time.Time `json:"generatedAt"`

	Rooms              map[string]int `json:"rooms"`
	InspectionRequired []string       `json:"inspectionRequired"`

	Tasks        map[string]int `json:"tasks"`
	PendingQueue []QueueEntry   `json:"pendingQueue"`

	OpenRequests map[string]int `json:"openRequests"`

	LowStock   []LowStockItem   `json:"lowStock"`
	StockValue ledger.Valuation `json:"stockValue"`
}

type Builder struct {
	Rooms    RoomLister
	Tasks    TaskLister
	Requests RequestLister
	Items    ItemLister

	// QueueLimit caps PendingQueue; zero means 50.
	QueueLimit int
	Now        func() time.Time
}

// Build reads the four record sets concurrently and folds them into one
// dashboard. Each list is a consistent read of its own set only.
func (b *Builder) Build(ctx context.Context) (Dashboard, error) {
	var (
		rooms []room.Room
		tasks []task.Task
		reqs  []request.Request
		items []ledger.Item
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		rooms, err = b.Rooms.List(gctx, room.Filter{})
		return err
	})
	g.Go(func() (err error) {
		tasks, err = b.Tasks.List(gctx, task.Filter{})
		return err
	})
	g.Go(func() (err error) {
		reqs, err = b.Requests.List(gctx, request.Filter{OpenOnly: true})
		return err
	})
	g.Go(func() (err error) {
		items, err = b.Items.ListItems(gctx, ledger.Filter{})
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{
		GeneratedAt:        b.now(),
		Rooms:              map[string]int{},
		InspectionRequired: []string{},
		Tasks:              map[string]int{},
		PendingQueue:       []QueueEntry{},
		OpenRequests:       map[string]int{},
		LowStock:           []LowStockItem{},
	}
	for _, s := range room.Statuses {
		d.Rooms[string(s)] = 0
	}
	for _, r := range rooms {
		d.Rooms[string(r.Status)]++
		if r.InspectionRequired {
			d.InspectionRequired = append(d.InspectionRequired, r.Number)
		}
	}

	limit := b.QueueLimit
	if limit <= 0 {
		limit = defaultQueueLimit
	}
	task.SortQueue(tasks)
	for _, t := range tasks {
		d.Tasks[string(t.Status)]++
		if t.Status == task.StatusPending && len(d.PendingQueue) < limit {
			d.PendingQueue = append(d.PendingQueue, QueueEntry{
				TaskID:    t.ID,
				Type:      t.Type,
				Priority:  t.Priority,
				RoomID:    t.RoomID,
				Assignee:  t.Assignee,
				CreatedAt: t.CreatedAt,
			})
		}
	}

	for _, r := range reqs {
		d.OpenRequests[string(r.Status)]++
	}

	for _, it := range items {
		if it.LowStock() {
			d.LowStock = append(d.LowStock, LowStockItem{
				ItemID:   it.ID,
				Kind:     it.Kind,
				SKU:      it.SKU,
				Name:     it.Name,
				Quantity: it.Quantity,
				ParLevel: it.ParLevel,
			})
		}
	}
	d.StockValue = ledger.Value(items, ledger.DefaultCurrencyScale)
	return d, nil
}

func (b *Builder) now() time.Time {
	if b.Now != nil {
		return b.Now()
	}
	return time.Now().UTC()
}
