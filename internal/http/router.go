package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/iago/reportflow/internal/http/handlers"
	"github.com/iago/reportflow/internal/http/middleware"
	"github.com/iago/reportflow/internal/metrics"
)

type RouterDependencies struct {
	API         *handlers.API
	Logger      *zap.Logger
	Metrics     *metrics.Metrics
	RateLimiter *middleware.RateLimiter
	AuthToken   string
	CORSOrigins []string
	// FilesDir is served under /files when set; it is the local export store.
	FilesDir string
}

func NewRouter(deps RouterDependencies) http.Handler {
	var observer middleware.HTTPObserver
	if deps.Metrics != nil {
		observer = deps.Metrics
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Trace(deps.Logger, observer))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS(middleware.CORSConfig{AllowedOrigins: deps.CORSOrigins}))
	if deps.RateLimiter != nil {
		r.Use(deps.RateLimiter.Middleware)
	}
	r.Use(middleware.Auth(deps.AuthToken, "/v1/"))
	r.NotFound(handlers.NotFound)
	r.MethodNotAllowed(handlers.MethodNotAllowed)

	api := deps.API
	r.Get("/healthz", api.Health)
	r.Get("/readyz", api.Ready)
	if deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", deps.Metrics.Handler())
	}
	if deps.FilesDir != "" {
		r.Handle("/files/*", http.StripPrefix("/files/", http.FileServer(http.Dir(deps.FilesDir))))
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(middleware.Identity)

		r.Route("/reports", func(r chi.Router) {
			r.Post("/", api.CreateReport)
			r.Get("/", api.ListReports)
			r.Route("/{reportID}", func(r chi.Router) {
				r.Get("/", api.GetReport)
				r.Patch("/", api.UpdateReport)
				r.Delete("/", api.DeleteReport)
				r.Post("/publish", api.PublishReport)
				r.Post("/archive", api.ArchiveReport)
				r.Post("/restore", api.RestoreReport)
				r.Post("/exports", api.RequestExport)
				r.Get("/exports", api.ListReportExports)
			})
		})

		r.Route("/templates", func(r chi.Router) {
			r.Post("/", api.CreateTemplate)
			r.Get("/", api.ListTemplates)
			r.Route("/{templateID}", func(r chi.Router) {
				r.Get("/", api.GetTemplate)
				r.Patch("/", api.UpdateTemplate)
				r.Delete("/", api.DeleteTemplate)
				r.Post("/activate", api.ActivateTemplate)
				r.Post("/deactivate", api.DeactivateTemplate)
				r.Post("/tags", api.AddTemplateTag)
				r.Delete("/tags/{tag}", api.RemoveTemplateTag)
				r.Post("/instantiate", api.InstantiateTemplate)
			})
		})

		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", api.CreateSchedule)
			r.Get("/", api.ListSchedules)
			r.Route("/{scheduleID}", func(r chi.Router) {
				r.Get("/", api.GetSchedule)
				r.Patch("/", api.UpdateSchedule)
				r.Delete("/", api.DeleteSchedule)
				r.Post("/activate", api.ActivateSchedule)
				r.Post("/deactivate", api.DeactivateSchedule)
				r.Post("/pause", api.PauseSchedule)
				r.Post("/resume", api.ResumeSchedule)
			})
		})

		r.Route("/exports/{exportID}", func(r chi.Router) {
			r.Get("/", api.GetExport)
			r.Post("/cancel", api.CancelExport)
			r.Post("/retry", api.RetryExport)
			r.Get("/download", api.DownloadExport)
		})
	})

	return r
}
