// Package memory keeps every record set in process memory. Each repository
// method is one unit of work under a single mutex.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"housekeeping/internal/apperr"
	"housekeeping/internal/history"
	"housekeeping/internal/ledger"
	"housekeeping/internal/outbox"
	"housekeeping/internal/request"
	"housekeeping/internal/room"
	"housekeeping/internal/task"
)

var (
	_ room.Repository    = (*Store)(nil)
	_ task.Repository    = (*Store)(nil)
	_ request.Repository = (*Store)(nil)
	_ ledger.Repository  = (*Store)(nil)
	_ outbox.Repository  = (*Store)(nil)
)

type Store struct {
	mu sync.RWMutex

	rooms      map[string]room.Room
	roomNumber map[string]string
	tasks      map[string]task.Task
	requests   map[string]request.Request
	items      map[string]ledger.Item
	itemSKU    map[string]string
	txs        map[string][]ledger.Transaction
	history    map[string][]history.Entry
	events     []outbox.Event
	eventIdx   map[string]int
	webhooks   map[string]time.Time
}

func New() *Store {
	return &Store{
		rooms:      map[string]room.Room{},
		roomNumber: map[string]string{},
		tasks:      map[string]task.Task{},
		requests:   map[string]request.Request{},
		items:      map[string]ledger.Item{},
		itemSKU:    map[string]string{},
		txs:        map[string][]ledger.Transaction{},
		history:    map[string][]history.Entry{},
		eventIdx:   map[string]int{},
		webhooks:   map[string]time.Time{},
	}
}

func historyKey(entity history.EntityType, id string) string {
	return string(entity) + ":" + id
}

func (s *Store) appendHistory(h history.Entry) {
	if h.ID == "" {
		return
	}
	k := historyKey(h.EntityType, h.EntityID)
	s.history[k] = append(s.history[k], h)
}

func (s *Store) ListHistory(_ context.Context, entity history.EntityType, id string) ([]history.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.history[historyKey(entity, id)]
	out := make([]history.Entry, len(src))
	copy(out, src)
	return out, nil
}

// Rooms

func (s *Store) InsertRoom(_ context.Context, r room.Room, h history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rooms[r.ID]; ok {
		return apperr.Validation("room %s already exists", r.ID)
	}
	if _, ok := s.roomNumber[r.Number]; ok {
		return apperr.Validation("room number %s is taken", r.Number)
	}
	s.rooms[r.ID] = r
	s.roomNumber[r.Number] = r.ID
	s.appendHistory(h)
	return nil
}

func (s *Store) GetRoom(_ context.Context, id string) (room.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rooms[id]
	if !ok {
		return room.Room{}, apperr.NotFound("room %s not found", id)
	}
	return r, nil
}

func (s *Store) FindRoomByNumber(_ context.Context, number string) (room.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.roomNumber[number]
	if !ok {
		return room.Room{}, apperr.NotFound("room %s not found", number)
	}
	return s.rooms[id], nil
}

func (s *Store) ListRooms(_ context.Context, f room.Filter) ([]room.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []room.Room
	for _, r := range s.rooms {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out, nil
}

func (s *Store) UpdateRoom(_ context.Context, r room.Room, expected int64, h history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.rooms[r.ID]
	if !ok {
		return apperr.NotFound("room %s not found", r.ID)
	}
	if cur.Version != expected {
		return apperr.Busy("room %s changed concurrently", r.ID)
	}
	s.rooms[r.ID] = r
	s.appendHistory(h)
	return nil
}

// Tasks

func (s *Store) InsertTask(_ context.Context, t task.Task, h history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[t.ID]; ok {
		return apperr.Validation("task %s already exists", t.ID)
	}
	s.tasks[t.ID] = t
	s.appendHistory(h)
	return nil
}

func (s *Store) GetTask(_ context.Context, id string) (task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return task.Task{}, apperr.NotFound("task %s not found", id)
	}
	return t, nil
}

func (s *Store) ListTasks(_ context.Context, f task.Filter) ([]task.Task, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []task.Task
	for _, t := range s.tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	task.SortQueue(out)
	return out, nil
}

func (s *Store) ApplyTaskChange(_ context.Context, c task.Change) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.tasks[c.Task.ID]
	if !ok {
		return apperr.NotFound("task %s not found", c.Task.ID)
	}
	if cur.Version != c.Expected {
		return apperr.Busy("task %s changed concurrently", c.Task.ID)
	}
	if c.Spawned != nil {
		if _, ok := s.tasks[c.Spawned.ID]; ok {
			return apperr.Validation("task %s already exists", c.Spawned.ID)
		}
		s.tasks[c.Spawned.ID] = *c.Spawned
		s.appendHistory(c.SpawnedHistory)
	}
	s.tasks[c.Task.ID] = c.Task
	s.appendHistory(c.History)
	for _, ev := range c.Events {
		s.eventIdx[ev.ID] = len(s.events)
		s.events = append(s.events, ev)
	}
	return nil
}

// Requests

func (s *Store) InsertRequest(_ context.Context, r request.Request, h history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[r.ID]; ok {
		return apperr.Validation("request %s already exists", r.ID)
	}
	s.requests[r.ID] = r
	s.appendHistory(h)
	return nil
}

func (s *Store) GetRequest(_ context.Context, id string) (request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[id]
	if !ok {
		return request.Request{}, apperr.NotFound("request %s not found", id)
	}
	return r, nil
}

func (s *Store) ListRequests(_ context.Context, f request.Filter) ([]request.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []request.Request
	for _, r := range s.requests {
		if f.Match(r) {
			out = append(out, r)
		}
	}
	request.Sort(out)
	return out, nil
}

func (s *Store) UpdateRequest(_ context.Context, r request.Request, expected int64, h history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.requests[r.ID]
	if !ok {
		return apperr.NotFound("request %s not found", r.ID)
	}
	if cur.Version != expected {
		return apperr.Busy("request %s changed concurrently", r.ID)
	}
	s.requests[r.ID] = r
	s.appendHistory(h)
	return nil
}

// Ledger

func (s *Store) InsertItem(_ context.Context, it ledger.Item, h history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[it.ID]; ok {
		return apperr.Validation("item %s already exists", it.ID)
	}
	if _, ok := s.itemSKU[it.SKU]; ok {
		return apperr.Validation("sku %s is taken", it.SKU)
	}
	s.items[it.ID] = it
	s.itemSKU[it.SKU] = it.ID
	s.appendHistory(h)
	return nil
}

func (s *Store) GetItem(_ context.Context, id string) (ledger.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return ledger.Item{}, apperr.NotFound("item %s not found", id)
	}
	return it, nil
}

func (s *Store) FindItemBySKU(_ context.Context, sku string) (ledger.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.itemSKU[sku]
	if !ok {
		return ledger.Item{}, apperr.NotFound("item %s not found", sku)
	}
	return s.items[id], nil
}

func (s *Store) ListItems(_ context.Context, f ledger.Filter) ([]ledger.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ledger.Item
	for _, it := range s.items {
		if f.Match(it) {
			out = append(out, it)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SKU < out[j].SKU })
	return out, nil
}

func (s *Store) AppendTransaction(_ context.Context, it ledger.Item, expected int64, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[it.ID]
	if !ok {
		return apperr.NotFound("item %s not found", it.ID)
	}
	if cur.Version != expected || int64(len(s.txs[it.ID]))+1 != tx.Seq {
		return apperr.Busy("item %s changed concurrently", it.ID)
	}
	s.txs[it.ID] = append(s.txs[it.ID], tx)
	s.items[it.ID] = it
	return nil
}

func (s *Store) ListTransactions(_ context.Context, itemID string) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	src := s.txs[itemID]
	out := make([]ledger.Transaction, len(src))
	copy(out, src)
	return out, nil
}

func (s *Store) UpdateItemCache(_ context.Context, it ledger.Item, expected int64, h history.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.items[it.ID]
	if !ok {
		return apperr.NotFound("item %s not found", it.ID)
	}
	if cur.Version != expected {
		return apperr.Busy("item %s changed concurrently", it.ID)
	}
	s.items[it.ID] = it
	s.appendHistory(h)
	return nil
}

// CorruptItemCache overwrites a cached quantity without touching the log.
// Tests use it to exercise the repair path.
func (s *Store) CorruptItemCache(id string, qty int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.items[id]; ok {
		it.Quantity = qty
		s.items[id] = it
	}
}

// Outbox

func (s *Store) PendingEvents(_ context.Context, limit int) ([]outbox.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []outbox.Event
	for _, ev := range s.events {
		if ev.DeliveredAt != nil || ev.Dead {
			continue
		}
		out = append(out, ev)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkDelivered(_ context.Context, id string, attempts int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.eventIdx[id]
	if !ok {
		return apperr.NotFound("event %s not found", id)
	}
	s.events[i].Attempts = attempts
	s.events[i].DeliveredAt = &at
	s.events[i].LastError = ""
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id string, attempts int, lastErr string, dead bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.eventIdx[id]
	if !ok {
		return apperr.NotFound("event %s not found", id)
	}
	s.events[i].Attempts = attempts
	s.events[i].LastError = lastErr
	s.events[i].Dead = dead
	return nil
}

// Events returns every recorded outbox event, oldest first.
func (s *Store) Events() []outbox.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]outbox.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Webhooks

// ClaimWebhookEvent records a PMS event id and reports whether it was new.
func (s *Store) ClaimWebhookEvent(_ context.Context, source, eventID string, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := source + ":" + eventID
	if _, ok := s.webhooks[k]; ok {
		return false, nil
	}
	s.webhooks[k] = at
	return true, nil
}

// ReleaseWebhookEvent forgets a claim so a redelivery is processed again.
func (s *Store) ReleaseWebhookEvent(_ context.Context, source, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.webhooks, source+":"+eventID)
	return nil
}
