package ledger

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"housekeeping/internal/api"
	"housekeeping/internal/apperr"
)

type Handlers struct {
	Engine *Engine
}

func (h Handlers) Create(w http.ResponseWriter, r *http.Request) {
	a, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var req CreateItemInput
	if !api.DecodeJSON(w, r, &req) {
		return
	}
	it, err := h.Engine.CreateItem(r.Context(), req, a)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, it)
}

func (h Handlers) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{Category: q.Get("category")}
	if v := q.Get("kind"); v != "" {
		k, err := ParseKind(v)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid kind")
			return
		}
		f.Kind = k
	}
	if v := q.Get("low_stock"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid low_stock")
			return
		}
		f.LowStock = b
	}

	items, err := h.Engine.ListItems(r.Context(), f)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	if items == nil {
		items = []Item{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (h Handlers) Get(w http.ResponseWriter, r *http.Request) {
	it, err := h.Engine.GetItem(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"item": it, "lowStock": it.LowStock()})
}

func (h Handlers) Record(w http.ResponseWriter, r *http.Request) {
	a, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	var req RecordInput
	if !api.DecodeJSON(w, r, &req) {
		return
	}
	tx, err := h.Engine.Record(r.Context(), chi.URLParam(r, "id"), req, a)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusCreated, tx)
}

func (h Handlers) Transactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Engine.Transactions(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	if txs == nil {
		txs = []Transaction{}
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"items": txs})
}

// Verify checks an item and repairs a diverged cache in one call.
func (h Handlers) Verify(w http.ResponseWriter, r *http.Request) {
	a, ok := api.RequireActor(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "id")
	res, err := h.Engine.Verify(r.Context(), id)
	if err == nil {
		api.WriteJSON(w, http.StatusOK, map[string]any{"verify": res, "repaired": false})
		return
	}
	if !apperr.Is(err, apperr.KindIntegrity) {
		api.WriteErr(w, err)
		return
	}
	rep, err := h.Engine.Repair(r.Context(), id, a)
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, map[string]any{"verify": res, "repaired": rep.Repaired, "item": rep.Item})
}
