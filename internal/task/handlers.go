package task

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"housekeeping/internal/api"
)

type Handlers struct {
	Engine *Engine
}

func (h Handlers) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var req CreateInput
	if !api.DecodeJSON(w, r, &req) {
		return
	}
	t, err := h.Engine.Create(r.Context(), req, a)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, t)
}

func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	f, err := filterFromQuery(r)
	if err != nil {
		api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
		return
	}
	items, err := h.Engine.List(r.Context(), f)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	if items == nil {
		items = []Task{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func filterFromQuery(r *http.Request) (Filter, error) {
	q := r.URL.Query()
	f := Filter{Assignee: q.Get("assignee"), RoomID: q.Get("room")}
	if v := q.Get("status"); v != "" {
		s, err := ParseStatus(v)
		if err != nil {
			return Filter{}, err
		}
		f.Status = s
	}
	if v := q.Get("priority"); v != "" {
		p, err := ParsePriority(v)
		if err != nil {
			return Filter{}, err
		}
		f.Priority = p
	}
	if v := q.Get("type"); v != "" {
		t, err := ParseType(v)
		if err != nil {
			return Filter{}, err
		}
		f.Type = t
	}
	return f, nil
}

func (h Handlers) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.Engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, t)
}

type AssignRequest struct {
	StaffID string `json:"staffId"`
}

func (h Handlers) Assign(w http.ResponseWriter, r *http.Request) {
	a, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var req AssignRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}
	t, err := h.Engine.Assign(r.Context(), chi.URLParam(r, "id"), req.StaffID, a)
	h.write(w, t, err)
}

func (h Handlers) Start(w http.ResponseWriter, r *http.Request) {
	a, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	t, err := h.Engine.Start(r.Context(), chi.URLParam(r, "id"), a)
	h.write(w, t, err)
}

func (h Handlers) Complete(w http.ResponseWriter, r *http.Request) {
	a, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	t, err := h.Engine.Complete(r.Context(), chi.URLParam(r, "id"), a)
	h.write(w, t, err)
}

func (h Handlers) Inspect(w http.ResponseWriter, r *http.Request) {
	a, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var req InspectInput
	if !api.DecodeJSON(w, r, &req) {
		return
	}
	res, err := h.Engine.Inspect(r.Context(), chi.URLParam(r, "id"), req, a)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, res)
}

type FailRequest struct {
	Reason string `json:"reason"`
}

func (h Handlers) Fail(w http.ResponseWriter, r *http.Request) {
	a, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var req FailRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}
	t, err := h.Engine.Fail(r.Context(), chi.URLParam(r, "id"), req.Reason, a)
	h.write(w, t, err)
}

func (h Handlers) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Engine.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h Handlers) Queue(w http.ResponseWriter, r *http.Request) {
	items, err := h.Engine.Queue(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	if items == nil {
		items = []Task{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h Handlers) write(w http.ResponseWriter, t Task, err error) {
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, t)
}
