package webhook

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"housekeeping/internal/actor"
	"housekeeping/internal/api"
	"housekeeping/internal/apperr"
	"housekeeping/internal/request"
	"housekeeping/internal/room"
	"housekeeping/internal/task"
)

const (
	source          = "pms"
	maxBody         = 1 << 20
	headerSignature = "X-PMS-Signature"
	headerEventID   = "X-PMS-Event-Id"
	headerTopic     = "X-PMS-Topic"
)

// pmsActor is the front-desk identity PMS commands run under.
var pmsActor = actor.Actor{ID: "pms", Role: actor.RoleStaff}

// Claims is the idempotency gate keyed by PMS event id.
type Claims interface {
	ClaimWebhookEvent(ctx context.Context, source, eventID string, at time.Time) (bool, error)
	ReleaseWebhookEvent(ctx context.Context, source, eventID string) error
}

type RoomFinder interface {
	FindRoomByNumber(ctx context.Context, number string) (room.Room, error)
}

type RoomCommands interface {
	UpdateStatus(ctx context.Context, id string, in room.UpdateStatusInput, by actor.Actor) (room.Room, error)
}

type TaskCreator interface {
	Create(ctx context.Context, in task.CreateInput, by actor.Actor) (task.Task, error)
}

type RequestCreator interface {
	Create(ctx context.Context, in request.CreateInput, by actor.Actor) (request.Request, error)
}

type Handler struct {
	Secret string

	Claims   Claims
	Lookup   RoomFinder
	Rooms    RoomCommands
	Tasks    TaskCreator
	Requests RequestCreator
	Log      *zap.Logger
	Now      func() time.Time
}

type payload struct {
	RoomNumber  string `json:"roomNumber"`
	Guest       string `json:"guest,omitempty"`
	Priority    string `json:"priority,omitempty"`
	Description string `json:"description,omitempty"`
	Note        string `json:"note,omitempty"`
}

func (h Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Prefer the PMS topic header; fall back to route param.
	topic := strings.TrimSpace(r.Header.Get(headerTopic))
	if topic == "" {
		topic = chi.URLParam(r, "topic")
	}
	topic = NormalizeTopic(topic)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBody))
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid body")
		return
	}
	if !VerifySignature(body, strings.TrimSpace(r.Header.Get(headerSignature)), h.Secret) {
		api.WriteErr(w, apperr.Unauthorized("invalid webhook signature"))
		return
	}

	eventID := strings.TrimSpace(r.Header.Get(headerEventID))
	if eventID == "" {
		// Fallback idempotency key when the PMS sends no event id.
		eventID = sha256Hex(body)
	}
	log := h.logger().With(zap.String("topic", topic), zap.String("event_id", eventID))

	ctx := r.Context()
	fresh, err := h.Claims.ClaimWebhookEvent(ctx, source, eventID, h.now())
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	if !fresh {
		log.Debug("webhook already processed")
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.dispatch(ctx, topic, body, log); err != nil {
		if retryable(err) {
			// Give the claim back so the PMS redelivery is processed.
			if rErr := h.Claims.ReleaseWebhookEvent(context.WithoutCancel(ctx), source, eventID); rErr != nil {
				log.Error("webhook claim release failed", zap.Error(rErr))
			}
			api.WriteErr(w, err)
			return
		}
		// Domain rejections are final; acknowledge so the PMS stops retrying.
		log.Warn("webhook rejected", zap.Error(err))
	}
	w.WriteHeader(http.StatusOK)
}

func (h Handler) dispatch(ctx context.Context, topic string, body []byte, log *zap.Logger) error {
	var p payload
	if err := json.Unmarshal(body, &p); err != nil {
		return apperr.Validation("invalid payload: %v", err)
	}

	switch topic {
	case TopicGuestCheckedIn:
		return h.handleCheckedIn(ctx, p, log)
	case TopicGuestCheckedOut:
		return h.handleCheckedOut(ctx, p, log)
	case TopicMaintenanceReported:
		return h.handleMaintenance(ctx, p, log)
	default:
		// Unknown topic: accept (no retries).
		log.Info("webhook topic ignored")
		return nil
	}
}

func (h Handler) findRoom(ctx context.Context, number string) (room.Room, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return room.Room{}, apperr.Validation("roomNumber is required")
	}
	return h.Lookup.FindRoomByNumber(ctx, number)
}

// handleCheckedIn marks a vacant room occupied. A room that is already
// occupied means a redelivered or out-of-order event and is left alone.
func (h Handler) handleCheckedIn(ctx context.Context, p payload, log *zap.Logger) error {
	rm, err := h.findRoom(ctx, p.RoomNumber)
	if err != nil {
		return err
	}
	if rm.Status == room.StatusOccupied {
		return nil
	}
	if _, err := h.Rooms.UpdateStatus(ctx, rm.ID, room.UpdateStatusInput{Status: string(room.StatusOccupied), Reason: "pms check-in"}, pmsActor); err != nil {
		return err
	}
	log.Info("guest checked in", zap.String("room", rm.Number))
	return nil
}

// handleCheckedOut frees an occupied room and queues its checkout clean.
func (h Handler) handleCheckedOut(ctx context.Context, p payload, log *zap.Logger) error {
	rm, err := h.findRoom(ctx, p.RoomNumber)
	if err != nil {
		return err
	}
	if rm.Status == room.StatusOccupied {
		if _, err := h.Rooms.UpdateStatus(ctx, rm.ID, room.UpdateStatusInput{Status: string(room.StatusVacant), Reason: "pms check-out"}, pmsActor); err != nil {
			return err
		}
	}
	prio := p.Priority
	if prio == "" {
		prio = string(task.PriorityHigh)
	}
	t, err := h.Tasks.Create(ctx, task.CreateInput{Type: string(task.TypeCheckout), RoomID: rm.ID, Priority: prio}, pmsActor)
	if err != nil {
		return err
	}
	log.Info("guest checked out", zap.String("room", rm.Number), zap.String("task_id", t.ID))
	return nil
}

// handleMaintenance opens a breakdown request. The priority may come from
// the payload or from a priority=<level> token in the note.
func (h Handler) handleMaintenance(ctx context.Context, p payload, log *zap.Logger) error {
	in := request.CreateInput{
		Type:        string(request.TypeBreakdown),
		Source:      source,
		Priority:    p.Priority,
		Description: strings.TrimSpace(p.Description + " " + p.Note),
	}
	if in.Priority == "" {
		in.Priority = ParseKeyFromNote(p.Note, "priority")
	}
	if strings.TrimSpace(p.RoomNumber) != "" {
		rm, err := h.findRoom(ctx, p.RoomNumber)
		if err != nil {
			return err
		}
		in.RoomID = rm.ID
	}
	req, err := h.Requests.Create(ctx, in, pmsActor)
	if err != nil {
		return err
	}
	log.Info("maintenance reported", zap.String("request_id", req.ID), zap.String("priority", string(req.Priority)))
	return nil
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	k := apperr.KindOf(err)
	return k == apperr.KindBusy || k == apperr.KindInternal
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (h Handler) logger() *zap.Logger {
	if h.Log == nil {
		return zap.NewNop()
	}
	return h.Log
}

func (h Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now().UTC()
}
