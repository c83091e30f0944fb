// Package seed loads the property catalog (rooms and stock items) from YAML
// and applies it idempotently at startup.
package seed

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"housekeeping/internal/actor"
	"housekeeping/internal/apperr"
	"housekeeping/internal/ledger"
	"housekeeping/internal/room"
)

type Catalog struct {
	Rooms []RoomSpec `yaml:"rooms"`
	Items []ItemSpec `yaml:"items"`
}

type RoomSpec struct {
	Number string `yaml:"number"`
	Floor  string `yaml:"floor"`
	Status string `yaml:"status"`
}

type ItemSpec struct {
	Kind     string `yaml:"kind"`
	SKU      string `yaml:"sku"`
	Name     string `yaml:"name"`
	Category string `yaml:"category"`
	Unit     string `yaml:"unit"`
	ParLevel int64  `yaml:"par_level"`
	UnitCost string `yaml:"unit_cost"`
	// Opening is recorded as the first inbound movement of a new item.
	Opening int64 `yaml:"opening"`
}

// Parse decodes and validates a catalog payload.
func Parse(data []byte) (Catalog, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return Catalog{}, fmt.Errorf("seed: catalog is empty")
	}
	var c Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&c); err != nil {
		return Catalog{}, fmt.Errorf("seed: decode catalog: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Catalog{}, err
	}
	return c, nil
}

func LoadFile(path string) (Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Catalog{}, fmt.Errorf("seed: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return Catalog{}, fmt.Errorf("seed: %s: %w", path, err)
	}
	return c, nil
}

func (c Catalog) Validate() error {
	rooms := map[string]bool{}
	for i, r := range c.Rooms {
		n := strings.TrimSpace(r.Number)
		if n == "" {
			return fmt.Errorf("seed: rooms[%d]: number is required", i)
		}
		if rooms[n] {
			return fmt.Errorf("seed: room %s listed twice", n)
		}
		rooms[n] = true
	}
	skus := map[string]bool{}
	for i, it := range c.Items {
		s := strings.TrimSpace(it.SKU)
		if s == "" {
			return fmt.Errorf("seed: items[%d]: sku is required", i)
		}
		if skus[s] {
			return fmt.Errorf("seed: sku %s listed twice", s)
		}
		if it.Opening < 0 {
			return fmt.Errorf("seed: sku %s: opening must be >= 0", s)
		}
		skus[s] = true
	}
	return nil
}

type RoomStore interface {
	FindRoomByNumber(ctx context.Context, number string) (room.Room, error)
}

type ItemStore interface {
	FindItemBySKU(ctx context.Context, sku string) (ledger.Item, error)
}

type RoomCreator interface {
	Create(ctx context.Context, in room.CreateInput, by actor.Actor) (room.Room, error)
}

type ItemRecorder interface {
	CreateItem(ctx context.Context, in ledger.CreateItemInput, by actor.Actor) (ledger.Item, error)
	Record(ctx context.Context, itemID string, in ledger.RecordInput, by actor.Actor) (ledger.Transaction, error)
}

type Loader struct {
	RoomStore RoomStore
	ItemStore ItemStore
	Rooms     RoomCreator
	Items     ItemRecorder
	Log       *zap.Logger
}

type Result struct {
	RoomsCreated int
	ItemsCreated int
	Skipped      int
}

// Apply creates every room and item the stores do not know yet. Existing
// records are never modified, so the catalog can be applied on each start.
func (l Loader) Apply(ctx context.Context, c Catalog) (Result, error) {
	var res Result
	for _, spec := range c.Rooms {
		number := strings.TrimSpace(spec.Number)
		_, err := l.RoomStore.FindRoomByNumber(ctx, number)
		if err == nil {
			res.Skipped++
			continue
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return res, err
		}
		if _, err := l.Rooms.Create(ctx, room.CreateInput{Number: number, Floor: spec.Floor, Status: spec.Status}, actor.System); err != nil {
			return res, fmt.Errorf("seed: room %s: %w", number, err)
		}
		res.RoomsCreated++
	}

	for _, spec := range c.Items {
		sku := strings.TrimSpace(spec.SKU)
		_, err := l.ItemStore.FindItemBySKU(ctx, sku)
		if err == nil {
			res.Skipped++
			continue
		}
		if !apperr.Is(err, apperr.KindNotFound) {
			return res, err
		}
		it, err := l.Items.CreateItem(ctx, ledger.CreateItemInput{
			Kind:     spec.Kind,
			SKU:      sku,
			Name:     spec.Name,
			Category: spec.Category,
			Unit:     spec.Unit,
			ParLevel: spec.ParLevel,
			UnitCost: spec.UnitCost,
		}, actor.System)
		if err != nil {
			return res, fmt.Errorf("seed: item %s: %w", sku, err)
		}
		res.ItemsCreated++
		if spec.Opening > 0 {
			in := ledger.RecordInput{Type: string(openingType(it.Kind)), Delta: spec.Opening, Reference: "seed"}
			if _, err := l.Items.Record(ctx, it.ID, in, actor.System); err != nil {
				return res, fmt.Errorf("seed: opening stock %s: %w", sku, err)
			}
		}
	}

	l.logger().Info("catalog applied",
		zap.Int("rooms_created", res.RoomsCreated),
		zap.Int("items_created", res.ItemsCreated),
		zap.Int("skipped", res.Skipped),
	)
	return res, nil
}

func openingType(k ledger.Kind) ledger.TxType {
	if k == ledger.KindLinen {
		return ledger.TxPurchase
	}
	return ledger.TxReceipt
}

func (l Loader) logger() *zap.Logger {
	if l.Log == nil {
		return zap.NewNop()
	}
	return l.Log
}
