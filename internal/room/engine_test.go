package room_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"housekeeping/internal/actor"
	"housekeeping/internal/apperr"
	"housekeeping/internal/history"
	"housekeeping/internal/lock"
	"housekeeping/internal/outbox"
	"housekeeping/internal/room"
	"housekeeping/internal/store/memory"
	"housekeeping/internal/task"
)

func newEngines() (*room.Engine, *task.Engine) {
	st := memory.New()
	locks := lock.NewManager(50 * time.Millisecond)
	rooms := &room.Engine{Repo: st, Locks: locks}
	tasks := &task.Engine{Repo: st, Rooms: rooms, Locks: locks}
	rooms.Tasks = tasks
	return rooms, tasks
}

var desk = actor.Staff("frontdesk")

func TestCanTransition_Edges(t *testing.T) {
	allowed := map[[2]room.Status]bool{
		{room.StatusVacant, room.StatusOccupied}:        true,
		{room.StatusVacant, room.StatusMaintenance}:     true,
		{room.StatusVacant, room.StatusOutOfOrder}:      true,
		{room.StatusVacant, room.StatusCleaning}:        true,
		{room.StatusOccupied, room.StatusVacant}:        true,
		{room.StatusOccupied, room.StatusMaintenance}:   true,
		{room.StatusOccupied, room.StatusOutOfOrder}:    true,
		{room.StatusOccupied, room.StatusCleaning}:      true,
		{room.StatusCleaning, room.StatusVacant}:        true,
		{room.StatusCleaning, room.StatusOutOfOrder}:    true,
		{room.StatusMaintenance, room.StatusVacant}:     true,
		{room.StatusMaintenance, room.StatusOutOfOrder}: true,
		{room.StatusOutOfOrder, room.StatusVacant}:      true,
		{room.StatusOutOfOrder, room.StatusMaintenance}: true,
	}
	for _, from := range room.Statuses {
		for _, to := range room.Statuses {
			require.Equal(t, allowed[[2]room.Status{from, to}], room.CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestUpdateStatus_FrontDeskMoves(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newEngines()
	r, err := rooms.Create(ctx, room.CreateInput{Number: "301", Floor: "3"}, desk)
	require.NoError(t, err)
	require.Equal(t, room.StatusVacant, r.Status)

	r, err = rooms.UpdateStatus(ctx, r.ID, room.UpdateStatusInput{Status: "occupied"}, desk)
	require.NoError(t, err)
	require.Equal(t, room.StatusOccupied, r.Status)
	require.Equal(t, int64(2), r.Version)

	_, err = rooms.UpdateStatus(ctx, r.ID, room.UpdateStatusInput{Status: "occupied"}, desk)
	require.True(t, apperr.Is(err, apperr.KindInvalidRoomTransition), "got %v", err)

	_, err = rooms.UpdateStatus(ctx, r.ID, room.UpdateStatusInput{Status: "dirty"}, desk)
	require.True(t, apperr.Is(err, apperr.KindValidation), "got %v", err)

	hist, err := rooms.History(ctx, r.ID)
	require.NoError(t, err)
	require.Len(t, hist, 2)
	require.Equal(t, history.ActionCreated, hist[0].Action)
	require.Equal(t, "vacant", hist[1].From)
	require.Equal(t, "occupied", hist[1].To)
}

func TestUpdateStatus_OutOfOrderNeedsSupervisor(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newEngines()
	r, err := rooms.Create(ctx, room.CreateInput{Number: "302"}, desk)
	require.NoError(t, err)
	_, err = rooms.UpdateStatus(ctx, r.ID, room.UpdateStatusInput{Status: "out_of_order", Reason: "leak"}, desk)
	require.NoError(t, err)

	_, err = rooms.UpdateStatus(ctx, r.ID, room.UpdateStatusInput{Status: "vacant"}, desk)
	require.True(t, apperr.Is(err, apperr.KindForbidden), "got %v", err)

	_, err = rooms.UpdateStatus(ctx, r.ID, room.UpdateStatusInput{Status: "occupied"}, actor.Supervisor("sup"))
	require.True(t, apperr.Is(err, apperr.KindInvalidRoomTransition), "got %v", err)

	got, err := rooms.UpdateStatus(ctx, r.ID, room.UpdateStatusInput{Status: "vacant", Reason: "fixed"}, actor.Supervisor("sup"))
	require.NoError(t, err)
	require.Equal(t, room.StatusVacant, got.Status)

	hist, err := rooms.History(ctx, r.ID)
	require.NoError(t, err)
	last := hist[len(hist)-1]
	require.Equal(t, history.ActionSupervisorOverride, last.Action)
	require.Equal(t, "sup", last.Actor)
	require.Equal(t, "fixed", last.Reason)
}

func TestUpdateStatus_CleaningNeedsActiveTask(t *testing.T) {
	ctx := context.Background()
	rooms, tasks := newEngines()
	r, err := rooms.Create(ctx, room.CreateInput{Number: "303"}, desk)
	require.NoError(t, err)
	other, err := rooms.Create(ctx, room.CreateInput{Number: "304"}, desk)
	require.NoError(t, err)

	_, err = rooms.UpdateStatus(ctx, r.ID, room.UpdateStatusInput{Status: "cleaning"}, desk)
	require.True(t, apperr.Is(err, apperr.KindInvalidRoomTransition), "got %v", err)

	elsewhere, err := tasks.Create(ctx, task.CreateInput{Type: "regular", RoomID: other.ID}, desk)
	require.NoError(t, err)
	_, err = rooms.UpdateStatus(ctx, r.ID, room.UpdateStatusInput{Status: "cleaning", TaskID: elsewhere.ID}, desk)
	require.True(t, apperr.Is(err, apperr.KindInvalidRoomTransition), "got %v", err)

	mine, err := tasks.Create(ctx, task.CreateInput{Type: "regular", RoomID: r.ID}, desk)
	require.NoError(t, err)
	got, err := rooms.UpdateStatus(ctx, r.ID, room.UpdateStatusInput{Status: "cleaning", TaskID: mine.ID}, desk)
	require.NoError(t, err)
	require.Equal(t, room.StatusCleaning, got.Status)
	require.Equal(t, mine.ID, got.CurrentTaskID)
	require.Equal(t, room.StatusVacant, got.PriorStatus)
}

func TestHandle_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	rooms, tasks := newEngines()
	r, err := rooms.Create(ctx, room.CreateInput{Number: "305", Status: "occupied"}, desk)
	require.NoError(t, err)
	tk, err := tasks.Create(ctx, task.CreateInput{Type: "regular", RoomID: r.ID}, desk)
	require.NoError(t, err)

	started := outbox.New(outbox.KindTaskStarted, tk.ID, "regular", r.ID, time.Now())
	require.NoError(t, rooms.Handle(ctx, started))
	require.NoError(t, rooms.Handle(ctx, started))
	got, err := rooms.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, room.StatusCleaning, got.Status)
	require.Equal(t, int64(2), got.Version)

	completed := outbox.New(outbox.KindTaskCompleted, tk.ID, "regular", r.ID, time.Now())
	require.NoError(t, rooms.Handle(ctx, completed))
	require.NoError(t, rooms.Handle(ctx, completed))
	got, err = rooms.Get(ctx, r.ID)
	require.NoError(t, err)
	require.Equal(t, room.StatusOccupied, got.Status)
	require.True(t, got.InspectionRequired)
	require.Equal(t, int64(3), got.Version)

	inspected := outbox.New(outbox.KindTaskInspected, tk.ID, "regular", r.ID, time.Now())
	inspected.Passed = true
	require.NoError(t, rooms.Handle(ctx, inspected))
	require.NoError(t, rooms.Handle(ctx, inspected))
	got, err = rooms.Get(ctx, r.ID)
	require.NoError(t, err)
	require.False(t, got.InspectionRequired)
	require.Equal(t, int64(4), got.Version)
}

func TestHandle_StartOnBlockedRoomIsRejected(t *testing.T) {
	ctx := context.Background()
	rooms, tasks := newEngines()
	r, err := rooms.Create(ctx, room.CreateInput{Number: "306"}, desk)
	require.NoError(t, err)
	tk, err := tasks.Create(ctx, task.CreateInput{Type: "regular", RoomID: r.ID}, desk)
	require.NoError(t, err)
	_, err = rooms.UpdateStatus(ctx, r.ID, room.UpdateStatusInput{Status: "maintenance"}, desk)
	require.NoError(t, err)

	err = rooms.Handle(ctx, outbox.New(outbox.KindTaskStarted, tk.ID, "regular", r.ID, time.Now()))
	require.True(t, apperr.Is(err, apperr.KindInvalidRoomTransition), "got %v", err)
}

func TestHandle_LateEventsNeverStrandCleaning(t *testing.T) {
	cases := []struct {
		name   string
		typ    string
		finish func(ctx context.Context, tasks *task.Engine, id string) error
		early  []outbox.Kind
		events []outbox.Kind
		want   room.Status
	}{
		{
			name: "started after failed",
			typ:  "regular",
			finish: func(ctx context.Context, tasks *task.Engine, id string) error {
				_, err := tasks.Fail(ctx, id, "no linen", desk)
				return err
			},
			events: []outbox.Kind{outbox.KindTaskFailed, outbox.KindTaskStarted},
			want:   room.StatusOccupied,
		},
		{
			name: "started after completed",
			typ:  "checkout",
			finish: func(ctx context.Context, tasks *task.Engine, id string) error {
				_, err := tasks.Complete(ctx, id, desk)
				return err
			},
			events: []outbox.Kind{outbox.KindTaskCompleted, outbox.KindTaskStarted},
			want:   room.StatusOccupied,
		},
		{
			name: "started redelivered after a full clean",
			typ:  "regular",
			finish: func(ctx context.Context, tasks *task.Engine, id string) error {
				_, err := tasks.Complete(ctx, id, desk)
				return err
			},
			early:  []outbox.Kind{outbox.KindTaskStarted},
			events: []outbox.Kind{outbox.KindTaskCompleted, outbox.KindTaskStarted},
			want:   room.StatusOccupied,
		},
	}
	for i, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			rooms, tasks := newEngines()
			r, err := rooms.Create(ctx, room.CreateInput{Number: fmt.Sprintf("4%02d", i), Status: "occupied"}, desk)
			require.NoError(t, err)
			tk, err := tasks.Create(ctx, task.CreateInput{Type: tc.typ, RoomID: r.ID}, desk)
			require.NoError(t, err)
			_, err = tasks.Assign(ctx, tk.ID, "S1", desk)
			require.NoError(t, err)
			_, err = tasks.Start(ctx, tk.ID, actor.Staff("S1"))
			require.NoError(t, err)
			for _, kind := range tc.early {
				require.NoError(t, rooms.Handle(ctx, outbox.New(kind, tk.ID, tc.typ, r.ID, time.Now())))
				requireCleaningHasActiveTask(t, rooms, tasks)
			}
			require.NoError(t, tc.finish(ctx, tasks, tk.ID))

			for _, kind := range tc.events {
				require.NoError(t, rooms.Handle(ctx, outbox.New(kind, tk.ID, tc.typ, r.ID, time.Now())))
				requireCleaningHasActiveTask(t, rooms, tasks)
			}
			got, err := rooms.Get(ctx, r.ID)
			require.NoError(t, err)
			require.Equal(t, tc.want, got.Status)
			require.Empty(t, got.CurrentTaskID)
		})
	}
}

func requireCleaningHasActiveTask(t *testing.T, rooms *room.Engine, tasks *task.Engine) {
	t.Helper()
	ctx := context.Background()
	cleaning, err := rooms.List(ctx, room.Filter{Status: room.StatusCleaning})
	require.NoError(t, err)
	for _, r := range cleaning {
		active, err := tasks.List(ctx, task.Filter{RoomID: r.ID, ActiveOnly: true})
		require.NoError(t, err)
		require.NotEmpty(t, active, "room %s cleaning without an active task", r.Number)
	}
}

func TestHandle_BusyWhenRoomLocked(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	locks := lock.NewManager(10 * time.Millisecond)
	rooms := &room.Engine{Repo: st, Locks: locks}
	r, err := rooms.Create(ctx, room.CreateInput{Number: "307"}, desk)
	require.NoError(t, err)

	release, err := locks.Acquire(ctx, lock.Key("room", r.ID))
	require.NoError(t, err)
	defer release()
	err = rooms.Handle(ctx, outbox.New(outbox.KindTaskStarted, "t1", "regular", r.ID, time.Now()))
	require.True(t, apperr.Is(err, apperr.KindBusy), "got %v", err)
}

func TestCreate_Validation(t *testing.T) {
	ctx := context.Background()
	rooms, _ := newEngines()
	_, err := rooms.Create(ctx, room.CreateInput{Number: " "}, desk)
	require.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = rooms.Create(ctx, room.CreateInput{Number: "401", Status: "cleaning"}, desk)
	require.True(t, apperr.Is(err, apperr.KindValidation))
	_, err = rooms.Create(ctx, room.CreateInput{Number: "401"}, desk)
	require.NoError(t, err)
	_, err = rooms.Create(ctx, room.CreateInput{Number: "401"}, desk)
	require.True(t, apperr.Is(err, apperr.KindValidation), "duplicate number: %v", err)
}
