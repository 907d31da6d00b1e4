package chi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter mounts the API routes on a chi router. Middleware is applied by
// the caller so the composition root controls ordering.
func NewRouter(s *Server, middlewares ...func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	for _, mw := range middlewares {
		r.Use(mw)
	}

	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/search", s.Search)
		r.Post("/measure", s.Measure)
		r.Get("/concepts", s.ListConcepts)
		r.Route("/concepts/{concept}", func(r chi.Router) {
			r.Post("/retrieve", func(w http.ResponseWriter, req *http.Request) {
				s.RetrieveConcept(w, req, chi.URLParam(req, "concept"))
			})
			r.Post("/calibrate", func(w http.ResponseWriter, req *http.Request) {
				s.Calibrate(w, req, chi.URLParam(req, "concept"))
			})
			r.Get("/threshold", func(w http.ResponseWriter, req *http.Request) {
				s.GetThreshold(w, req, chi.URLParam(req, "concept"))
			})
			r.Put("/threshold", func(w http.ResponseWriter, req *http.Request) {
				s.PutThreshold(w, req, chi.URLParam(req, "concept"))
			})
		})
	})

	return r
}
