package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pepeearn/internal/middleware"
)

func (s *Server) RegisterRoutes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Metrics)

	r.Get("/healthz", s.healthz)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/api/session", s.login)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Delete("/api/session", s.logout)
		r.Get("/api/me", s.me)
		r.Get("/api/events", s.events)

		r.Post("/api/ads/watch", s.watchAd)

		r.Post("/api/bonus/verify", s.verifyBonus)
		r.With(middleware.DevOnly(s.devMode)).Post("/api/bonus/reset", s.resetBonus)

		r.Post("/api/referrals/apply", s.applyReferral)

		r.Post("/api/withdrawals", s.createWithdrawal)
		r.Get("/api/withdrawals", s.listWithdrawals)
		r.Get("/api/withdrawals/{id}", s.getWithdrawal)
	})

	return r
}
