package projection

import (
	"net/http"
	"strconv"

	"housekeeping/internal/api"
	"housekeeping/internal/apperr"
	"housekeeping/internal/ledger"
	"housekeeping/internal/task"
)

type Handlers struct {
	Refresher *Refresher
	Items     ItemLister
	Tasks     TaskLister
}

// Dashboard serves the cached snapshot; ?fresh=true forces a rebuild.
func (h Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	fresh := false
	if v := r.URL.Query().Get("fresh"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			api.WriteError(w, http.StatusBadRequest, "VALIDATION_FAILED", "invalid fresh")
			return
		}
		fresh = b
	}

	var (
		d   Dashboard
		err error
	)
	if fresh {
		d, err = h.Refresher.Refresh(r.Context())
	} else {
		d, err = h.Refresher.Cached(r.Context())
	}
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	api.WriteJSON(w, http.StatusOK, d)
}

func (h Handlers) StockReport(w http.ResponseWriter, r *http.Request) {
	items, err := h.Items.ListItems(r.Context(), ledger.Filter{})
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	b, err := StockReport(items)
	if err != nil {
		api.WriteErr(w, apperr.Internal(err, "render stock report"))
		return
	}
	writeXLSX(w, "stock.xlsx", b)
}

func (h Handlers) TaskReport(w http.ResponseWriter, r *http.Request) {
	tasks, err := h.Tasks.List(r.Context(), task.Filter{})
	if err != nil {
		api.WriteErr(w, err)
		return
	}
	b, err := TaskReport(tasks)
	if err != nil {
		api.WriteErr(w, apperr.Internal(err, "render task report"))
		return
	}
	writeXLSX(w, "tasks.xlsx", b)
}

func writeXLSX(w http.ResponseWriter, name string, b []byte) {
	w.Header().Set("Content-Type", XLSXContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(b)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(b)
}
