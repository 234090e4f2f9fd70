package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Shivanand-hulikatti/campus-event-registration/internal/model"
)

// Routes collects what the router needs. Limit and Metrics may be nil.
type Routes struct {
	Events     *EventHandler
	Payments   *PaymentHandler
	Attendance *AttendanceHandler
	Tokens     TokenParser
	// Limit wraps the endpoints that cost money or guess tokens.
	Limit   func(http.Handler) http.Handler
	Metrics http.Handler
	Log     *slog.Logger
}

// NewRouter builds the chi router for the whole API.
func NewRouter(rt Routes) http.Handler {
	limit := rt.Limit
	if limit == nil {
		limit = func(next http.Handler) http.Handler { return next }
	}

	r := chi.NewRouter()

	// Global middleware stack
	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID) // attach request IDs
	r.Use(chimiddleware.RealIP)    // trust X-Forwarded-For
	r.Use(Logger(rt.Log))          // structured access log
	r.Use(CORS)

	r.Get("/health", HealthCheck)
	if rt.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.Metrics)
	}

	// The provider authenticates with the payload signature, not a bearer token.
	r.Post("/webhooks/stripe", rt.Payments.StripeWebhook)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(rt.Tokens))

		r.With(limit).Post("/checkout", rt.Payments.Checkout)

		r.Route("/events", func(r chi.Router) {
			r.Get("/", rt.Events.ListEvents)
			r.Get("/{id}", rt.Events.GetEvent)
			r.With(RequireRole(model.RoleOrganizer)).Post("/", rt.Events.CreateEvent)
			r.With(RequireRole(model.RoleOrganizer)).Put("/{id}/qr", rt.Events.FinalizeQRToken)
			r.With(RequireRole(model.RoleOrganizer, model.RoleAdmin)).Get("/{id}/registrations", rt.Events.ListRegistrations)
			r.With(RequireRole(model.RoleAdmin)).Patch("/{id}/status", rt.Events.ReviewEvent)
		})

		r.With(RequireRole(model.RoleParticipant), limit).Post("/attendance/check-in", rt.Attendance.CheckIn)
		r.With(RequireRole(model.RoleParticipant)).Get("/me/registrations", rt.Events.ListMyRegistrations)
	})

	return r
}
