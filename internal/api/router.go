package api

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
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(withLogging(logger.Named("api")))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/session/supermarket", handlers.SelectSupermarket)

	r.Route("/cart", func(r chi.Router) {
		r.Get("/", handlers.GetCart)
		r.Delete("/", handlers.EmptyCart)
		r.Post("/refresh", handlers.RefreshCart)
		r.Post("/items", handlers.AddToCart)
		r.Patch("/items/{itemID}", handlers.SetQuantity)
		r.Delete("/items/{itemID}", handlers.RemoveFromCart)
	})

	r.Route("/checkout", func(r chi.Router) {
		r.Get("/", handlers.GetCheckout)
		r.Post("/address", handlers.SelectAddress)
		r.Post("/slot", handlers.SelectSlot)
		r.Get("/quote", handlers.GetQuote)
		r.Post("/submit", handlers.SubmitCheckout)
	})

	r.Route("/orders", func(r chi.Router) {
		r.Get("/", handlers.GetOrders)
		r.Get("/{orderID}", handlers.GetOrder)
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
