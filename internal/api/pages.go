package api

import (
	"embed"
	"html/template"
	"net/http"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/models"
)

//go:embed templates/*.html
var pageFS embed.FS

var pages = template.Must(template.ParseFS(pageFS, "templates/*.html"))

type checkoutPage struct {
	Event    *models.Event
	APIBase  string
	Embedded bool
}

func embedded(r *http.Request) bool {
	return r.URL.Query().Get("embed") == "1"
}

// FrameHeaders forbids framing by other origins unless the page was asked
// for with embed=1.
func FrameHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if embedded(r) {
			w.Header().Set("Content-Security-Policy", "frame-ancestors *")
		} else {
			w.Header().Set("Content-Security-Policy", "frame-ancestors 'self'")
			w.Header().Set("X-Frame-Options", "SAMEORIGIN")
		}
		next.ServeHTTP(w, r)
	})
}

// CheckoutPage is the /checkout?eventId= entry point.
func (h *Handler) CheckoutPage(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("eventId")
	if eventID == "" {
		h.fail(w, r, apperrors.ErrValidation.WithDetails(map[string]string{"eventId": "is required"}))
		return
	}
	event, err := h.Catalog.GetEvent(r.Context(), eventID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	page := checkoutPage{Event: event, APIBase: "/api/checkout", Embedded: embedded(r)}
	if err := pages.ExecuteTemplate(w, "checkout.html", page); err != nil {
		h.Logger.Error("API", "render checkout page: "+err.Error())
	}
}

// ReceiptEntry is the /receipt?orderId= entry point.
func (h *Handler) ReceiptEntry(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		h.fail(w, r, apperrors.ErrValidation.WithDetails(map[string]string{"orderId": "is required"}))
		return
	}
	h.renderReceipt(w, r, orderID)
}
