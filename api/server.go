/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:     Unique ID per request for tracing
  2. RealIP
  3. requestLogger: zap access log carrying the request ID
  4. Recoverer:     Panic recovery (500 instead of crash)
  5. CORS:          Cross-origin requests for the frontend
  /api only:
  6. Authenticate:  Bearer JWT -> leave.Actor
  7. Authorize:     casbin role/route check

ROUTE GROUPS:
  /healthz              Liveness (public)
  /api/me/*             Caller's profile, balance, requests
  /api/leave-requests   Submit / cancel
  /api/admin/*          Admin operations (admin role)

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Identity and permissions
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/casbin/casbin/v2"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterConfig carries what the router needs beyond the handler.
type RouterConfig struct {
	JWTSecret   []byte
	CORSOrigins []string
	Enforcer    *casbin.Enforcer
	// Scenarios mounts the demo scenario endpoints.
	Scenarios bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Use(Authenticate(cfg.JWTSecret, h.logger))
		r.Use(Authorize(cfg.Enforcer, h.logger))

		// Caller
		r.Route("/me", func(r chi.Router) {
			r.Get("/", h.GetMe)
			r.Get("/balance", h.GetMyBalance)
			r.Get("/requests", h.ListMyRequests)
		})
		r.Post("/leave-requests", h.SubmitLeave)
		r.Post("/leave-requests/{id}/cancel", h.CancelLeave)
		r.Get("/capacity", h.GetCapacity)
		r.Get("/holidays", h.ListHolidays)
		r.Get("/calendar", h.GetCalendar)
		r.Get("/settings", h.GetSettings)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/employees", h.ListEmployees)
			r.Post("/employees", h.RegisterEmployee)
			r.Post("/employees/{id}/balances", h.OpenBalance)
			r.Get("/users-with-remaining", h.UsersWithRemaining)

			r.Route("/requests", func(r chi.Router) {
				r.Get("/", h.ListRequests)
				r.Post("/", h.AddLeave)
				r.Get("/pending", h.ListPendingRequests)
				r.Get("/upcoming", h.ListUpcoming)
				r.Post("/{id}/approve", h.ApproveRequest)
				r.Post("/{id}/deny", h.DenyRequest)
				r.Delete("/{id}", h.DeleteRequest)
			})

			r.Put("/settings/excluded-weekdays", h.UpdateExcludedWeekdays)
			r.Post("/holidays", h.CreateHoliday)
			r.Delete("/holidays/{id}", h.DeleteHoliday)

			r.Get("/dashboard", h.GetDashboard)
			r.Post("/reminders", h.SendReminders)

			if cfg.Scenarios {
				r.Get("/scenarios", h.ListScenarios)
				r.Post("/scenarios/load", h.LoadScenario)
			}
		})
	})

	return r
}

// requestLogger writes one access log line per request.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			logger.Info("http request",
				zap.String("request_id", middleware.GetReqID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("remote", r.RemoteAddr))
		})
	}
}
