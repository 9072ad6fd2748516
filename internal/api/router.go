package api

import (
	"net/http"
	"strconv"
	"time"

	"ms-boxoffice/internal/auth"
	"ms-boxoffice/internal/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
)

type RouterConfig struct {
	AllowedOrigins []string
	Verifier       auth.Verifier
	Metrics        *metrics.Metrics
	Gatherer       prometheus.Gatherer
}

func NewRouter(h *Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observe(h, cfg.Metrics))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", h.Healthz)
	if cfg.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(cfg.Gatherer))
	}

	// --- Public pages ---
	r.Group(func(r chi.Router) {
		r.Use(FrameHeaders)
		r.Get("/checkout", h.CheckoutPage)
		r.Get("/receipt", h.ReceiptEntry)
	})

	// --- Checkout funnel ---
	r.Route("/api/checkout", func(r chi.Router) {
		r.Get("/events/{eventId}", h.GetEvent)
		r.Post("/events/{eventId}/quote", h.Quote)
		r.Post("/orders", h.CreateDraft)
		r.Route("/orders/{orderId}", func(r chi.Router) {
			r.Get("/", h.GetOrder)
			r.Post("/payment", h.ConfirmPayment)
			r.Post("/protection", h.DecideProtection)
			r.Post("/upsell", h.DecideUpsell)
			r.Post("/resume", h.Resume)
			r.With(FrameHeaders).Get("/receipt", h.ReceiptPage)
			r.Get("/stream", h.StreamOrder)
		})
	})

	// --- Staff ---
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(cfg.Verifier, h.Logger))

		r.Route("/api/scanner", func(r chi.Router) {
			r.Get("/orders", h.SearchOrders)
			r.Post("/scan", h.Scan)
			r.Post("/orders/{orderId}/units/{unitIndex}/toggle", h.ToggleUnit)
			r.Post("/orders/{orderId}/check-in-all", h.CheckInAll)
			r.Get("/events/{eventId}/stream", h.StreamEvent)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Get("/overview", h.Overview)
			r.Get("/events", h.ListEvents)
			r.Post("/events", h.CreateEvent)
			r.Get("/events/{eventId}", h.GetEvent)
			r.Put("/events/{eventId}", h.UpdateEvent)
			r.Post("/events/{eventId}/clone", h.CloneEvent)
			r.Get("/events/{eventId}/stats", h.EventStats)
			r.Get("/events/{eventId}/orders", h.RecentOrders)
			r.Post("/orders/{orderId}/resend-receipt", h.ResendReceipt)
		})
	})

	return r
}

// observe records latency per route pattern and logs each request.
func observe(h *Handler, m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
				route = rctx.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			d := time.Since(start)
			m.ObserveHTTP(r.Method, route, strconv.Itoa(status), d)
			h.Logger.LogAPI(r.Method, r.URL.Path, status, d)
		})
	}
}
