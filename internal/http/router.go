package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
)

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

// RouterConfig collects the handlers and cross-cutting settings for NewRouter.
// Nil handlers leave their routes unregistered.
type RouterConfig struct {
	History  *HistoryHandler
	Devices  *DeviceHandler
	Activity *ActivityHandler

	Verifier    TokenVerifier
	Health      HealthChecker
	CORSOrigins []string
	Metrics     bool
	Logger      *slog.Logger
	Middleware  []func(http.Handler) http.Handler
}

// NewRouter mounts the health, metrics and /api routes and wraps them in CORS.
func NewRouter(cfg RouterConfig) http.Handler {
	logger := defaultLogger(cfg.Logger)

	root := mux.NewRouter()
	root.Use(RequestLogger(logger))
	for _, mw := range cfg.Middleware {
		if mw != nil {
			root.Use(mw)
		}
	}

	root.HandleFunc("/healthz", healthHandler(cfg.Health, logger)).Methods(http.MethodGet)
	if cfg.Metrics {
		root.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	}

	api := root.PathPrefix("/api").Subrouter()
	if cfg.Verifier != nil {
		api.Use(RequireToken(cfg.Verifier, logger))
	}

	if cfg.History != nil {
		h := cfg.History
		api.HandleFunc("/devices/bulk-move", h.BulkMove).Methods(http.MethodPost)
		api.HandleFunc("/devices/bulk-rooms-history", h.BulkAdd).Methods(http.MethodPost)
		api.HandleFunc("/devices/{id}/move-to-room", h.Move).Methods(http.MethodPost)
		api.HandleFunc("/devices/{id}/correct-current-room", h.CorrectCurrentRoom).Methods(http.MethodPut)
		api.HandleFunc("/devices/{id}/current-room", h.CurrentRoom).Methods(http.MethodGet)
		api.HandleFunc("/devices/{id}/end-current-room", h.EndCurrentOccupancy).Methods(http.MethodPut)
		api.HandleFunc("/devices/{id}/rooms-history", h.List).Methods(http.MethodGet)
		api.HandleFunc("/devices/{id}/rooms-history", h.Add).Methods(http.MethodPost)
		api.HandleFunc("/devices/{id}/rooms-history/{historyId}", h.Update).Methods(http.MethodPut, http.MethodPatch)
		api.HandleFunc("/devices/{id}/rooms-history/{historyId}", h.Delete).Methods(http.MethodDelete)
	}

	if cfg.Devices != nil {
		d := cfg.Devices
		api.HandleFunc("/devices", d.List).Methods(http.MethodGet)
		api.HandleFunc("/devices", d.Create).Methods(http.MethodPost)
		api.HandleFunc("/devices/{id}", d.Get).Methods(http.MethodGet)
		api.HandleFunc("/devices/{id}", d.Update).Methods(http.MethodPut, http.MethodPatch)
		api.HandleFunc("/devices/{id}", d.Delete).Methods(http.MethodDelete)
		api.HandleFunc("/devices/{id}/mark-inspected", d.MarkInspected).Methods(http.MethodPut)
		api.HandleFunc("/devices/bulk/mark-inspected", d.BulkMarkInspected).Methods(http.MethodPost)
	}

	if cfg.Activity != nil {
		api.HandleFunc("/activity/log", cfg.Activity.List).Methods(http.MethodGet)
	}

	origins := cfg.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowedHeaders: []string{"Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders: []string{requestIDHeader},
	}).Handler(root)
}

type healthResponse struct {
	Status string `json:"status"`
}

func healthHandler(checker HealthChecker, logger *slog.Logger) http.HandlerFunc {
	resp := newResponder(logger)
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			if err := checker.Ping(r.Context()); err != nil {
				resp.loggerFor(r.Context()).ErrorContext(r.Context(), "health check failed", "error", err)
				resp.writeJSON(r.Context(), w, http.StatusServiceUnavailable, healthResponse{Status: "unavailable"})
				return
			}
		}
		resp.writeJSON(r.Context(), w, http.StatusOK, healthResponse{Status: "ok"})
	}
}
