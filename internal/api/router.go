package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/verify", app.SubmitHandler)
		r.Get("/verify/{digest}", app.VerdictHandler)
		r.Get("/verify/{digest}/history", app.HistoryHandler)
		r.Post("/verify/{digest}/reanalyze", app.ReanalyzeHandler)
	})

	return r
}

func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("pong"))
}
