package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/campuslink/network/pkg/client"
	"github.com/campuslink/network/pkg/httputil"
	"github.com/campuslink/network/pkg/monitoring"
)

// newStatusRouter exposes read-only introspection over the running client.
func newStatusRouter(c client.Client, sampler *monitoring.Sampler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Second))

	r.Get("/v1/status", func(w http.ResponseWriter, req *http.Request) {
		health, err := c.Health(req.Context())
		if err != nil {
			httputil.WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"health": health,
			"system": sampler.Latest(),
		})
	})

	r.Get("/v1/realtime/channels", func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, c.Realtime().Channels())
	})

	r.Get("/v1/realtime/resumes", func(w http.ResponseWriter, req *http.Request) {
		httputil.WriteJSON(w, http.StatusOK, c.Realtime().ResumeHistory())
	})

	return r
}
