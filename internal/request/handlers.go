package request

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"housekeeping/internal/api"
	"housekeeping/internal/task"
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
	out, err := h.Engine.Create(r.Context(), req, a)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, out)
}

func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{Assignee: q.Get("assignee"), RoomID: q.Get("room")}
	if v := q.Get("status"); v != "" {
		s, err := ParseStatus(v)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid status")
			return
		}
		f.Status = s
	}
	if v := q.Get("type"); v != "" {
		t, err := ParseType(v)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid type")
			return
		}
		f.Type = t
	}
	if v := q.Get("priority"); v != "" {
		p, err := task.ParsePriority(v)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid priority")
			return
		}
		f.Priority = p
	}

	items, err := h.Engine.List(r.Context(), f)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	if items == nil {
		items = []Request{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h Handlers) Get(w http.ResponseWriter, r *http.Request) {
	out, err := h.Engine.Get(r.Context(), chi.URLParam(r, "id"))
	h.write(w, out, err)
}

func (h Handlers) Assign(w http.ResponseWriter, r *http.Request) {
	a, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var req AssignInput
	if !api.DecodeJSON(w, r, &req) {
		return
	}
	out, err := h.Engine.Assign(r.Context(), chi.URLParam(r, "id"), req, a)
	h.write(w, out, err)
}

func (h Handlers) Reassign(w http.ResponseWriter, r *http.Request) {
	a, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var req AssignInput
	if !api.DecodeJSON(w, r, &req) {
		return
	}
	out, err := h.Engine.Reassign(r.Context(), chi.URLParam(r, "id"), req, a)
	h.write(w, out, err)
}

func (h Handlers) Start(w http.ResponseWriter, r *http.Request) {
	a, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	out, err := h.Engine.Start(r.Context(), chi.URLParam(r, "id"), a)
	h.write(w, out, err)
}

type NoteRequest struct {
	Note   string `json:"note,omitempty"`
	Reason string `json:"reason,omitempty"`
}

func (h Handlers) Resolve(w http.ResponseWriter, r *http.Request) {
	a, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var req NoteRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}
	out, err := h.Engine.Resolve(r.Context(), chi.URLParam(r, "id"), req.Note, a)
	h.write(w, out, err)
}

func (h Handlers) Close(w http.ResponseWriter, r *http.Request) {
	a, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	out, err := h.Engine.Close(r.Context(), chi.URLParam(r, "id"), a)
	h.write(w, out, err)
}

func (h Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	a, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var req NoteRequest
	if !api.DecodeJSON(w, r, &req) {
		return
	}
	out, err := h.Engine.Cancel(r.Context(), chi.URLParam(r, "id"), req.Reason, a)
	h.write(w, out, err)
}

func (h Handlers) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Engine.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": entries})
}

func (h Handlers) write(w http.ResponseWriter, out Request, err error) {
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, out)
}
