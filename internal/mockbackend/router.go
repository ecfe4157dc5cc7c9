package mockbackend

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"kycflow/internal/platform/middleware"
	limits "kycflow/pkg/platform/validation"
)

// EvidenceRouter serves the evidence service: health, session management,
// evidence uploads and the id-type catalog.
func (b *Backend) EvidenceRouter() http.Handler {
	r := b.baseRouter(b.evidenceMetrics)

	r.With(middleware.BodyLimit(limits.MaxBodySize)).Post("/tenants/kyc/sessions/api-key", b.handleCreateSession)
	r.Get("/tenants/kyc/public/session/{id}/id-types", b.handleIDTypes)

	r.Route("/public/verification/{id}", func(r chi.Router) {
		r.Get("/status", b.handleSessionStatus)
		r.Get("/results", b.handleEvidenceResults)
		r.Group(func(r chi.Router) {
			r.Use(middleware.BodyLimit(b.cfg.MaxUploadBytes + 1<<20))
			r.Post("/document", b.handleDocument)
			r.Post("/face", b.handleFace)
		})
	})
	return r
}

// ResultsRouter serves the results service that issues final decisions.
func (b *Backend) ResultsRouter() http.Handler {
	r := b.baseRouter(b.resultsMetrics)
	r.Get("/api/v1/verification/{id}/results", b.handleFinalResults)
	return r
}

func (b *Backend) baseRouter(m *middleware.Metrics) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(b.logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(b.logger))
	r.Use(m.Instrument)

	b.health.Register(r)
	r.Handle("/metrics", promhttp.HandlerFor(b.registry, promhttp.HandlerOpts{}))
	return r
}
