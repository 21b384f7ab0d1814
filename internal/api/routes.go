package api

import (
	"meet-backend/internal/logger"
	"meet-backend/internal/metrics"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(logger.RequestLogger(s.log))
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.config.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{logger.HeaderRequestID},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	r.Get("/health", s.HealthCheckHandler)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.ServeWsHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/paddle-webhook", s.PaddleWebhookHandler)
		r.Post("/keycloak-webhook", s.KeycloakWebhookHandler)
		r.Post("/discord-interactions", s.DiscordInteractionsHandler)

		r.Group(func(r chi.Router) {
			r.Use(s.SharedSecretMiddleware)
			r.Get("/manage-booking", s.GetBookingHandler)
			r.Delete("/db-user", s.DeleteDBUserHandler)
			r.Post("/registration-flow", s.RegistrationFlowHandler)
			r.Post("/prosody-webhook", s.ProsodyWebhookHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.AuthMiddleware)
			r.Post("/manage-booking", s.CreateBookingHandler)
			r.Delete("/manage-booking", s.DeleteBookingHandler)
			r.Get("/room-availability", s.RoomAvailabilityHandler)
			r.Get("/me", s.GetCurrentUserHandler)
			r.Get("/db-user", s.GetDBUserHandler)
			r.Get("/paddle-customer-portal", s.CustomerPortalHandler)
		})
	})

	return r
}

// @Summary      Health check
// @Tags         health
// @Produce      json
// @Success      200  {object}  map[string]string
// @Failure      503  {object}  errorResponse
// @Router       /health [get]
func (s *Server) HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
