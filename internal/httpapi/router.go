package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"housekeeping/internal/api"
	"housekeeping/internal/app"
	"housekeeping/internal/ledger"
	"housekeeping/internal/metrics"
	"housekeeping/internal/projection"
	"housekeeping/internal/request"
	"housekeeping/internal/room"
	"housekeeping/internal/task"
	"housekeeping/pkg/config"
)

type Dependencies struct {
	Cfg     config.Config
	App     *app.App
	Log     *zap.Logger
	Metrics *metrics.Metrics
}

func NewRouter(deps Dependencies) http.Handler {
	log := deps.Log
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(api.RequestLogger(log))
	r.Use(api.CORSMiddleware(api.CORSOptions{
		AllowedOrigins: deps.Cfg.AdminAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-Staff-Id", "X-Staff-Role"},
		MaxAgeSeconds:  600,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if deps.Metrics != nil {
		r.Handle("/metrics", deps.Metrics.Handler())
	}

	a := deps.App
	roomHandlers := room.Handlers{Engine: a.Rooms}
	taskHandlers := task.Handlers{Engine: a.Tasks}
	requestHandlers := request.Handlers{Engine: a.Requests}
	itemHandlers := ledger.Handlers{Engine: a.Ledger}
	projectionHandlers := projection.Handlers{
		Refresher: a.Refresher,
		Items:     a.Ledger,
		Tasks:     a.Tasks,
	}

	// v1
	r.Route("/v1", func(r chi.Router) {
		// PMS webhooks authenticate by HMAC, not by staff session.
		r.Method(http.MethodPost, "/webhooks/pms/{topic}", a.Webhook)

		r.Group(func(r chi.Router) {
			// Production: staff session token auth
			// Dev: falls back to X-Staff-Id / X-Staff-Role if Authorization is missing.
			r.Use(api.StaffSessionAuth(deps.Cfg, log))

			r.Route("/rooms", func(r chi.Router) {
				r.Post("/", roomHandlers.Create)
				r.Get("/", roomHandlers.List)
				r.Get("/{id}", roomHandlers.Get)
				r.Patch("/{id}/status", roomHandlers.PatchStatus)
				r.Get("/{id}/history", roomHandlers.History)
			})

			r.Route("/tasks", func(r chi.Router) {
				r.Post("/", taskHandlers.Create)
				r.Get("/", taskHandlers.List)
				r.Get("/{id}", taskHandlers.Get)
				r.Post("/{id}/assign", taskHandlers.Assign)
				r.Post("/{id}/start", taskHandlers.Start)
				r.Post("/{id}/complete", taskHandlers.Complete)
				r.Post("/{id}/inspect", taskHandlers.Inspect)
				r.Post("/{id}/fail", taskHandlers.Fail)
				r.Get("/{id}/history", taskHandlers.History)
			})
			r.Get("/staff/{id}/queue", taskHandlers.Queue)

			r.Route("/requests", func(r chi.Router) {
				r.Post("/", requestHandlers.Create)
				r.Get("/", requestHandlers.List)
				r.Get("/{id}", requestHandlers.Get)
				r.Post("/{id}/assign", requestHandlers.Assign)
				r.Post("/{id}/reassign", requestHandlers.Reassign)
				r.Post("/{id}/start", requestHandlers.Start)
				r.Post("/{id}/resolve", requestHandlers.Resolve)
				r.Post("/{id}/close", requestHandlers.Close)
				r.Post("/{id}/cancel", requestHandlers.Cancel)
				r.Get("/{id}/history", requestHandlers.History)
			})

			r.Route("/items", func(r chi.Router) {
				r.Post("/", itemHandlers.Create)
				r.Get("/", itemHandlers.List)
				r.Get("/{id}", itemHandlers.Get)
				r.Post("/{id}/transactions", itemHandlers.Record)
				r.Get("/{id}/transactions", itemHandlers.Transactions)
				r.Post("/{id}/verify", itemHandlers.Verify)
			})

			r.Get("/dashboard", projectionHandlers.Dashboard)
			r.Get("/reports/stock.xlsx", projectionHandlers.StockReport)
			r.Get("/reports/tasks.xlsx", projectionHandlers.TaskReport)
		})
	})

	return r
}
