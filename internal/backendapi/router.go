package backendapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func NewRouter(handlers *Handlers, logger *zap.Logger) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(withLogging(logger.Named("backendapi")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/carts", func(r chi.Router) {
		r.Post("/", handlers.CreateCart)
		r.Get("/{cartID}", handlers.GetCart)
		r.Post("/{cartID}/items", handlers.AddItem)
		r.Delete("/{cartID}/items", handlers.EmptyCart)
		r.Delete("/{cartID}/items/{itemID}", handlers.RemoveItem)
	})

	r.Route("/users/{userID}", func(r chi.Router) {
		r.Post("/", handlers.RegisterAccount)
		r.Get("/addresses", handlers.GetAddresses)
		r.Post("/addresses", handlers.AddAddress)
		r.Get("/orders", handlers.ListOrders)
	})

	r.Get("/wallets/{ownerID}", handlers.GetWallet)
	r.Post("/wallets/{ownerID}/top-up", handlers.TopUpWallet)

	r.Get("/supermarkets/{supermarketID}/slots", handlers.GetSlots)

	r.Post("/checkouts", handlers.SubmitCheckout)

	r.Route("/orders/{orderID}", func(r chi.Router) {
		r.Get("/", handlers.GetOrder)
		r.Post("/cancel", handlers.CancelOrder)
		r.Post("/complete", handlers.CompleteOrder)
	})

	return r
}

func withLogging(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
