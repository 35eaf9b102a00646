package routes

import (
	"net/http"

	"github.com/Dosada05/arena-tournaments/docs"
	"github.com/Dosada05/arena-tournaments/handlers"
	"github.com/Dosada05/arena-tournaments/middleware"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger"
)

// SetupRoutes wires every HTTP surface of the service onto the router.
// CORS is deliberately permissive: the API is consumed by browser
// clients on arbitrary origins and authenticates with bearer tokens.
func SetupRoutes(
	router *chi.Mux,
	tournamentHandler *handlers.TournamentHandler,
	webSocketHandler *handlers.WebSocketHandler,
	healthHandler *handlers.HealthHandler,
	jwtSecret []byte,
) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/healthz", healthHandler.Check)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(jwtSecret))

		r.Post("/api/tournament", tournamentHandler.Dispatch)
		r.Put("/api/tournaments/{tournamentID}/banner", tournamentHandler.UploadBanner)
	})

	router.Get("/ws/tournaments/{tournamentID}", webSocketHandler.ServeWs)

	router.Get("/swagger/doc.json", docs.ServeOpenAPI)
	router.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
}
