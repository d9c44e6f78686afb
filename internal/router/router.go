package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"papergen/internal/handlers"
	"papergen/internal/middleware"
	"papergen/internal/websocket"
)

func New(
	paperHandler *handlers.PaperHandler,
	jobHandler *handlers.JobHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Generation is expensive: 5 submissions per minute per IP
	generateLimiter := middleware.NewRateLimiter(5, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		r.Route("/papers", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(generateLimiter.Middleware)
				r.Post("/generate", paperHandler.Generate)
			})
			r.Get("/", paperHandler.List)
			r.Get("/{id}", paperHandler.Get)
			r.Get("/{id}/latex", paperHandler.GetLaTeX)
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Get("/{id}", jobHandler.GetJob)
		})

		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
