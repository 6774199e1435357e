package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)       // Basic request logging
	r.Use(middleware.Recoverer)    // Recover from panics
	r.Use(middleware.StripSlashes) // Ensure consistent path handling

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"ok"}`))
		})

		r.Post("/sessions", apiHandler.CreateSessionHandler)
		r.Route("/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", apiHandler.GetSessionHandler)
			r.Delete("/", apiHandler.DeleteSessionHandler)

			r.Get("/messages", apiHandler.ListMessagesHandler)
			r.Post("/messages", apiHandler.PostMessageHandler)

			// Data channels
			r.Get("/records", apiHandler.ListRecordsHandler)
			r.Put("/channel", apiHandler.SelectChannelHandler)
			r.Post("/csv", apiHandler.ImportCSVHandler)
			r.Post("/csv/demo", apiHandler.LoadDemoCSVHandler)
			r.Post("/remote", apiHandler.ConnectRemoteHandler)
			r.Post("/remote/demo", apiHandler.ConnectRemoteDemoHandler)
		})
	})

	return r
}
