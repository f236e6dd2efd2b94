// Package router assembles the HTTP API: middleware stack, public health
// and metrics endpoints, and the authenticated clinic routes.
package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oakmed/clinic-scheduler/internal/http/handlers"
	"github.com/oakmed/clinic-scheduler/internal/http/middleware"
	"github.com/oakmed/clinic-scheduler/pkg/logging"
)

// Config wires handlers and cross-cutting settings into the router.
type Config struct {
	Logger        *logging.Logger
	Bookings      *handlers.BookingsHandler
	Billing       *handlers.BillingHandler
	Prescriptions *handlers.PrescriptionsHandler
	Registry      *handlers.RegistryHandler

	JWTSecret      string
	AllowedOrigins []string

	// BookingRate limits booking mutations per client IP; zero disables.
	BookingRate  float64
	BookingBurst int
}

// New builds the chi router. Payment recording additionally requires the
// billing or admin role.
func New(cfg *Config) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Compress(5))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(middleware.CORS(cfg.AllowedOrigins))
	}

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWTSecret))

		r.Route("/appointments", func(r chi.Router) {
			if cfg.BookingRate > 0 {
				r.Use(middleware.RateLimit(cfg.BookingRate, cfg.BookingBurst))
			}
			r.Post("/", cfg.Bookings.Create)
			r.Get("/{id}", cfg.Bookings.Get)
			r.Delete("/{id}", cfg.Registry.DeleteAppointment)
			r.Post("/{id}/reschedule", cfg.Bookings.Reschedule)
			r.Post("/{id}/status", cfg.Bookings.UpdateStatus)
			r.Post("/{id}/cancel", cfg.Bookings.Cancel)
			r.Post("/{id}/no-show", cfg.Bookings.NoShow)
			r.Post("/{id}/treatments", cfg.Billing.AddTreatmentLine)
			r.Post("/{id}/invoice", cfg.Billing.GenerateInvoice)
		})

		r.Get("/availability", cfg.Bookings.Availability)

		r.Route("/invoices", func(r chi.Router) {
			r.Get("/{id}", cfg.Billing.GetInvoice)
			r.With(middleware.RequireRole("billing", "admin")).
				Post("/{id}/payments", cfg.Billing.RecordPayment)
		})

		r.Route("/prescriptions", func(r chi.Router) {
			r.Post("/", cfg.Prescriptions.Create)
			r.Get("/{id}", cfg.Prescriptions.Get)
			r.Post("/{id}/items", cfg.Prescriptions.AddItem)
			r.Delete("/{id}", cfg.Prescriptions.Delete)
		})

		r.Route("/patients", func(r chi.Router) {
			r.Post("/", cfg.Registry.CreatePatient)
			r.Get("/{id}", cfg.Registry.GetPatient)
			r.Put("/{id}", cfg.Registry.UpdatePatient)
			r.Delete("/{id}", cfg.Registry.DeletePatient)
			r.Get("/{id}/appointments", cfg.Registry.ListPatientAppointments)
			r.Get("/{id}/prescriptions", cfg.Prescriptions.ListByPatient)
		})

		r.Route("/doctors", func(r chi.Router) {
			r.Post("/", cfg.Registry.CreateDoctor)
			r.Get("/{id}", cfg.Registry.GetDoctor)
			r.Delete("/{id}", cfg.Registry.DeleteDoctor)
			r.Post("/{id}/deactivate", cfg.Registry.DeactivateDoctor)
			r.Post("/{id}/reactivate", cfg.Registry.ReactivateDoctor)
		})

		r.Route("/rooms", func(r chi.Router) {
			r.Post("/", cfg.Registry.CreateRoom)
			r.Get("/{id}", cfg.Registry.GetRoom)
			r.Delete("/{id}", cfg.Registry.DeleteRoom)
		})

		r.Route("/treatments", func(r chi.Router) {
			r.Post("/", cfg.Registry.CreateTreatment)
			r.Get("/{id}", cfg.Registry.GetTreatment)
			r.Put("/{id}", cfg.Registry.UpdateTreatment)
			r.Delete("/{id}", cfg.Registry.DeleteTreatment)
		})

		r.Route("/medications", func(r chi.Router) {
			r.Post("/", cfg.Registry.CreateMedication)
			r.Get("/{id}", cfg.Registry.GetMedication)
			r.Delete("/{id}", cfg.Registry.DeleteMedication)
		})
	})

	return r
}
