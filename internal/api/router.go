// internal/api/router.go
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"orderpay/internal/api/handler"
)

// NewRouter sets up and returns a new HTTP router.
func NewRouter(transactionHandler *handler.TransactionHandler, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middlewares
	r.Use(middleware.RequestID)                       // Add a request ID to the context
	r.Use(middleware.RealIP)                          // Use the real IP address
	r.Use(middleware.Logger)                          // Log HTTP requests
	r.Use(middleware.Recoverer)                       // Recover from panics and return 500
	r.Use(middleware.Timeout(handler.DefaultTimeout)) // Set a default timeout for requests

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	// Order payment saga routes
	r.Route("/transactions", func(r chi.Router) {
		r.Post("/", transactionHandler.CreateOrder)
		r.Post("/complete", transactionHandler.CompleteOrder)
		r.Post("/cancel", transactionHandler.CancelOrder)
		r.Post("/rollback", transactionHandler.RollbackOrder)
		r.Post("/notify", transactionHandler.PaymentNotification)
	})

	// Read-side projections
	r.Route("/breakdown", func(r chi.Router) {
		r.Post("/", transactionHandler.OrderBreakdown)
		r.Post("/batch", transactionHandler.BatchBreakdown)
		r.Post("/prospective", transactionHandler.ProspectiveBreakdown)
	})
	r.Route("/cash", func(r chi.Router) {
		r.Post("/", transactionHandler.CashDue)
		r.Post("/batch", transactionHandler.BatchCashDue)
	})

	return r
}
