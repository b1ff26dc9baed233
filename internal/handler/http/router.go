package http

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cmlabs-hris/attendance-sync-go/internal/config"
)

func NewRouter(cfg *config.Config, syncHandler SyncJobHandler, deviceHandler DeviceHandler) *chi.Mux {
	r := chi.NewRouter()
	logFormat := httplog.SchemaECS.Concise(false)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		ReplaceAttr: logFormat.ReplaceAttr,
	})).With(
		slog.String("app", "attendance-sync"),
		slog.String("version", "v1.0.0"),
		slog.String("env", cfg.App.Env),
	)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:3000"},
		AllowCredentials: true,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		MaxAge:           300,
	}))

	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelDebug,
		Schema: httplog.SchemaECS,
	}))

	r.Use(chiMiddleware.AllowContentEncoding("application/json"))
	r.Use(chiMiddleware.CleanPath)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/"))

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/sync-jobs", func(r chi.Router) {
			r.Post("/", syncHandler.Create)
			r.Get("/", syncHandler.List)
			r.Get("/{jobID}", syncHandler.Get)
			r.Delete("/{jobID}", syncHandler.Cancel)
		})

		r.Route("/sync", func(r chi.Router) {
			r.Get("/metrics", syncHandler.Metrics)
			r.Get("/health", syncHandler.Health)
		})

		r.Route("/devices", func(r chi.Router) {
			r.Get("/", deviceHandler.List)
			r.Post("/test", deviceHandler.TestConnection)
			r.Post("/info", deviceHandler.GetInfo)
			r.Post("/{deviceID}/test", deviceHandler.TestConnection)
			r.Get("/{deviceID}/info", deviceHandler.GetInfo)
		})
	})

	return r
}
