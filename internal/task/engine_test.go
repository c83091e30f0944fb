package task_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"housekeeping/internal/actor"
	"housekeeping/internal/apperr"
	"housekeeping/internal/lock"
	"housekeeping/internal/outbox"
	"housekeeping/internal/room"
	"housekeeping/internal/store/memory"
	"housekeeping/internal/task"
)

type harness struct {
	store *memory.Store
	locks *lock.Manager
	rooms *room.Engine
	tasks *task.Engine
	relay *outbox.Dispatcher
	clock time.Time
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		store: memory.New(),
		locks: lock.NewManager(100 * time.Millisecond),
		clock: time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC),
	}
	now := func() time.Time {
		h.clock = h.clock.Add(time.Second)
		return h.clock
	}
	h.rooms = &room.Engine{Repo: h.store, Locks: h.locks, Now: now}
	h.tasks = &task.Engine{Repo: h.store, Rooms: h.rooms, Locks: h.locks, Now: now}
	h.rooms.Tasks = h.tasks
	h.relay = &outbox.Dispatcher{Repo: h.store, Consumer: h.rooms, Backoff: time.Millisecond}
	h.tasks.Events = h.relay
	return h
}

func (h *harness) room(t *testing.T, number string, status room.Status) room.Room {
	t.Helper()
	r, err := h.rooms.Create(context.Background(), room.CreateInput{Number: number, Status: string(status)}, actor.Supervisor("sup"))
	require.NoError(t, err)
	return r
}

func (h *harness) getRoom(t *testing.T, id string) room.Room {
	t.Helper()
	r, err := h.rooms.Get(context.Background(), id)
	require.NoError(t, err)
	return r
}

var staff = actor.Staff("S1")

func TestCheckoutLifecycle_MovesRoomThroughCleaning(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r1 := h.room(t, "101", room.StatusOccupied)

	tk, err := h.tasks.Create(ctx, task.CreateInput{Type: "checkout", RoomID: r1.ID, Priority: "normal"}, staff)
	require.NoError(t, err)
	require.Equal(t, task.StatusPending, tk.Status)

	tk, err = h.tasks.Assign(ctx, tk.ID, "S1", staff)
	require.NoError(t, err)
	require.Equal(t, task.StatusPending, tk.Status)
	require.Equal(t, "S1", tk.Assignee)

	tk, err = h.tasks.Start(ctx, tk.ID, staff)
	require.NoError(t, err)
	require.Equal(t, task.StatusInProgress, tk.Status)
	got := h.getRoom(t, r1.ID)
	require.Equal(t, room.StatusCleaning, got.Status)
	require.Equal(t, tk.ID, got.CurrentTaskID)

	tk, err = h.tasks.Complete(ctx, tk.ID, staff)
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, tk.Status)
	got = h.getRoom(t, r1.ID)
	require.Equal(t, room.StatusVacant, got.Status)
	require.Empty(t, got.CurrentTaskID)

	for _, ev := range h.store.Events() {
		require.NotNil(t, ev.DeliveredAt, "event %s not delivered", ev.Kind)
	}

	_, err = h.tasks.Complete(ctx, tk.ID, staff)
	require.True(t, apperr.Is(err, apperr.KindInvalidTransition), "got %v", err)
}

func TestRegularCompletion_ReturnsRoomAndFlagsInspection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.room(t, "102", room.StatusOccupied)

	tk, err := h.tasks.Create(ctx, task.CreateInput{Type: "regular", RoomID: r.ID}, staff)
	require.NoError(t, err)
	_, err = h.tasks.Assign(ctx, tk.ID, "S1", staff)
	require.NoError(t, err)
	_, err = h.tasks.Start(ctx, tk.ID, staff)
	require.NoError(t, err)
	_, err = h.tasks.Complete(ctx, tk.ID, staff)
	require.NoError(t, err)

	got := h.getRoom(t, r.ID)
	require.Equal(t, room.StatusOccupied, got.Status)
	require.True(t, got.InspectionRequired)

	res, err := h.tasks.Inspect(ctx, tk.ID, task.InspectInput{Passed: true}, actor.Supervisor("sup"))
	require.NoError(t, err)
	require.Nil(t, res.Reclean)
	require.Equal(t, task.StatusInspected, res.Task.Status)
	require.False(t, h.getRoom(t, r.ID).InspectionRequired)
}

func TestStart_RequiresAssignee(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.room(t, "103", room.StatusVacant)
	tk, err := h.tasks.Create(ctx, task.CreateInput{Type: "deep_clean", RoomID: r.ID}, staff)
	require.NoError(t, err)

	_, err = h.tasks.Start(ctx, tk.ID, staff)
	require.True(t, apperr.Is(err, apperr.KindNotAssigned), "got %v", err)
	require.Equal(t, room.StatusVacant, h.getRoom(t, r.ID).Status)
}

func TestCreate_RoomRules(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	ooo := h.room(t, "104", room.StatusOutOfOrder)

	_, err := h.tasks.Create(ctx, task.CreateInput{Type: "regular", RoomID: ooo.ID}, staff)
	require.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)

	tk, err := h.tasks.Create(ctx, task.CreateInput{Type: "inspection", RoomID: ooo.ID}, staff)
	require.NoError(t, err)
	require.Equal(t, task.PriorityNormal, tk.Priority)

	_, err = h.tasks.Create(ctx, task.CreateInput{Type: "regular", RoomID: "missing"}, staff)
	require.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)

	_, err = h.tasks.Create(ctx, task.CreateInput{Type: "laundry", RoomID: ooo.ID}, staff)
	require.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)
}

func TestAssign_ConcurrentCallsOnlyOneWins(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.room(t, "105", room.StatusVacant)
	tk, err := h.tasks.Create(ctx, task.CreateInput{Type: "regular", RoomID: r.ID}, staff)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i, who := range []string{"S1", "S2"} {
		wg.Add(1)
		go func(i int, who string) {
			defer wg.Done()
			_, errs[i] = h.tasks.Assign(ctx, tk.ID, who, actor.Staff(who))
		}(i, who)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		kind := apperr.KindOf(err)
		require.True(t, kind == apperr.KindInvalidTransition || kind == apperr.KindBusy, "got %v", err)
	}
	require.Equal(t, 1, wins)
}

func TestInspect_FailedSpawnsHigherPriorityReclean(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.room(t, "106", room.StatusVacant)
	tk, err := h.tasks.Create(ctx, task.CreateInput{Type: "checkout", RoomID: r.ID, Priority: "low"}, staff)
	require.NoError(t, err)
	_, err = h.tasks.Inspect(ctx, tk.ID, task.InspectInput{Passed: false}, staff)
	require.True(t, apperr.Is(err, apperr.KindInvalidTransition), "pending task cannot be inspected: %v", err)

	_, err = h.tasks.Assign(ctx, tk.ID, "S1", staff)
	require.NoError(t, err)
	_, err = h.tasks.Start(ctx, tk.ID, staff)
	require.NoError(t, err)
	_, err = h.tasks.Complete(ctx, tk.ID, staff)
	require.NoError(t, err)

	res, err := h.tasks.Inspect(ctx, tk.ID, task.InspectInput{Passed: false, Note: "hair in sink"}, actor.Supervisor("sup"))
	require.NoError(t, err)
	require.Equal(t, task.StatusInspected, res.Task.Status)
	require.NotNil(t, res.Task.InspectionPassed)
	require.False(t, *res.Task.InspectionPassed)
	require.NotNil(t, res.Reclean)
	require.Equal(t, task.TypeRegular, res.Reclean.Type)
	require.Equal(t, task.PriorityHigh, res.Reclean.Priority)
	require.Equal(t, tk.ID, res.Reclean.ParentTaskID)
	require.Equal(t, task.StatusPending, res.Reclean.Status)

	stored, err := h.tasks.Get(ctx, res.Reclean.ID)
	require.NoError(t, err)
	require.Equal(t, r.ID, stored.RoomID)

	_, err = h.tasks.Inspect(ctx, tk.ID, task.InspectInput{Passed: true}, staff)
	require.True(t, apperr.Is(err, apperr.KindInvalidTransition))
}

func TestFail_RevertsRoomToPriorStatus(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.room(t, "107", room.StatusOccupied)
	tk, err := h.tasks.Create(ctx, task.CreateInput{Type: "regular", RoomID: r.ID}, staff)
	require.NoError(t, err)
	_, err = h.tasks.Assign(ctx, tk.ID, "S1", staff)
	require.NoError(t, err)
	_, err = h.tasks.Start(ctx, tk.ID, staff)
	require.NoError(t, err)
	require.Equal(t, room.StatusCleaning, h.getRoom(t, r.ID).Status)

	_, err = h.tasks.Fail(ctx, tk.ID, "", staff)
	require.True(t, apperr.Is(err, apperr.KindValidation))

	failed, err := h.tasks.Fail(ctx, tk.ID, "guest declined service", staff)
	require.NoError(t, err)
	require.Equal(t, task.StatusFailed, failed.Status)
	require.Equal(t, "guest declined service", failed.FailureReason)
	require.Equal(t, room.StatusOccupied, h.getRoom(t, r.ID).Status)

	_, err = h.tasks.Fail(ctx, tk.ID, "again", staff)
	require.True(t, apperr.Is(err, apperr.KindInvalidTransition))
}

func TestStart_RoomInMaintenanceIsRejected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.room(t, "108", room.StatusMaintenance)
	tk, err := h.tasks.Create(ctx, task.CreateInput{Type: "regular", RoomID: r.ID}, staff)
	require.NoError(t, err)
	_, err = h.tasks.Assign(ctx, tk.ID, "S1", staff)
	require.NoError(t, err)

	_, err = h.tasks.Start(ctx, tk.ID, staff)
	require.True(t, apperr.Is(err, apperr.KindInvalidRoomTransition), "got %v", err)
	got, err := h.tasks.Get(ctx, tk.ID)
	require.NoError(t, err)
	require.Equal(t, task.StatusPending, got.Status)
}

func TestComplete_BusyRoomLeavesEventForRelay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.tasks.DispatchTimeout = 30 * time.Millisecond
	r := h.room(t, "109", room.StatusVacant)
	tk, err := h.tasks.Create(ctx, task.CreateInput{Type: "checkout", RoomID: r.ID}, staff)
	require.NoError(t, err)
	_, err = h.tasks.Assign(ctx, tk.ID, "S1", staff)
	require.NoError(t, err)
	_, err = h.tasks.Start(ctx, tk.ID, staff)
	require.NoError(t, err)

	release, err := h.locks.Acquire(ctx, lock.Key("room", r.ID))
	require.NoError(t, err)
	done, err := h.tasks.Complete(ctx, tk.ID, staff)
	require.NoError(t, err)
	require.Equal(t, task.StatusCompleted, done.Status)
	require.Equal(t, room.StatusCleaning, h.getRoom(t, r.ID).Status)
	release()

	pending, err := h.store.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, outbox.KindTaskCompleted, pending[0].Kind)

	n, err := h.relay.Relay(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, room.StatusVacant, h.getRoom(t, r.ID).Status)

	n, err = h.relay.Relay(ctx)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestQueue_OrdersByPriorityThenAge(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	r := h.room(t, "110", room.StatusVacant)

	mk := func(typ, prio string) task.Task {
		tk, err := h.tasks.Create(ctx, task.CreateInput{Type: typ, RoomID: r.ID, Priority: prio}, staff)
		require.NoError(t, err)
		_, err = h.tasks.Assign(ctx, tk.ID, "S1", staff)
		require.NoError(t, err)
		return tk
	}
	oldNormal := mk("turndown", "normal")
	urgent := mk("inspection", "urgent")
	newNormal := mk("turndown", "normal")
	low := mk("turndown", "low")
	done := mk("turndown", "high")
	_, err := h.tasks.Fail(ctx, done.ID, "room blocked", staff)
	require.NoError(t, err)

	q, err := h.tasks.Queue(ctx, "S1")
	require.NoError(t, err)
	var ids []string
	for _, tk := range q {
		ids = append(ids, tk.ID)
	}
	require.Equal(t, []string{urgent.ID, oldNormal.ID, newNormal.ID, low.ID}, ids)
}

func TestCleaningRoomsAlwaysHaveAnActiveTask(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	a := h.room(t, "201", room.StatusVacant)
	b := h.room(t, "202", room.StatusOccupied)

	start := func(roomID, typ string) task.Task {
		tk, err := h.tasks.Create(ctx, task.CreateInput{Type: typ, RoomID: roomID}, staff)
		require.NoError(t, err)
		_, err = h.tasks.Assign(ctx, tk.ID, "S1", staff)
		require.NoError(t, err)
		tk, err = h.tasks.Start(ctx, tk.ID, staff)
		require.NoError(t, err)
		return tk
	}
	check := func() {
		rooms, err := h.rooms.List(ctx, room.Filter{Status: room.StatusCleaning})
		require.NoError(t, err)
		for _, r := range rooms {
			active, err := h.tasks.List(ctx, task.Filter{RoomID: r.ID, ActiveOnly: true})
			require.NoError(t, err)
			require.NotEmpty(t, active, "room %s cleaning without an active task", r.Number)
		}
	}

	t1 := start(a.ID, "regular")
	t2 := start(b.ID, "deep_clean")
	check()
	_, err := h.tasks.Complete(ctx, t1.ID, staff)
	require.NoError(t, err)
	check()
	_, err = h.tasks.Fail(ctx, t2.ID, "linen shortage", staff)
	require.NoError(t, err)
	check()
}

func TestStart_RelayedAfterFailDoesNotStrandRoom(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t)
	h.tasks.DispatchTimeout = 30 * time.Millisecond
	r := h.room(t, "203", room.StatusVacant)
	tk, err := h.tasks.Create(ctx, task.CreateInput{Type: "regular", RoomID: r.ID}, staff)
	require.NoError(t, err)
	_, err = h.tasks.Assign(ctx, tk.ID, "S1", staff)
	require.NoError(t, err)

	release, err := h.locks.Acquire(ctx, lock.Key("room", r.ID))
	require.NoError(t, err)
	_, err = h.tasks.Start(ctx, tk.ID, staff)
	require.NoError(t, err)
	release()
	require.Equal(t, room.StatusVacant, h.getRoom(t, r.ID).Status)

	failed, err := h.tasks.Fail(ctx, tk.ID, "guest refused service", staff)
	require.NoError(t, err)
	require.Equal(t, task.StatusFailed, failed.Status)

	n, err := h.relay.Relay(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, n)

	got := h.getRoom(t, r.ID)
	require.Equal(t, room.StatusVacant, got.Status)
	require.Empty(t, got.CurrentTaskID)
	pending, err := h.store.PendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, pending)
}
