package room

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
	room, err := h.Engine.Create(r.Context(), req, a)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, room)
}

func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var f Filter
	if v := q.Get("status"); v != "" {
		s, err := ParseStatus(v)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid status")
			return
		}
		f.Status = s
	}
	f.Floor = q.Get("floor")

	items, err := h.Engine.List(r.Context(), f)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	if items == nil {
		items = []Room{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h Handlers) Get(w http.ResponseWriter, r *http.Request) {
	room, err := h.Engine.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, room)
}

func (h Handlers) PatchStatus(w http.ResponseWriter, r *http.Request) {
	a, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var req UpdateStatusInput
	if !api.DecodeJSON(w, r, &req) {
		return
	}
	room, err := h.Engine.UpdateStatus(r.Context(), chi.URLParam(r, "id"), req, a)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, room)
}

func (h Handlers) History(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Engine.History(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": entries})
}
