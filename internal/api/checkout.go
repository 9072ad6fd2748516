package api

import (
	"net/http"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/catalog"
	"ms-boxoffice/internal/order"
	"ms-boxoffice/internal/pricing"

	"github.com/go-chi/chi/v5"
)

type quoteRequest struct {
	Tickets  pricing.Cart `json:"tickets"`
	Upgrades pricing.Cart `json:"upgrades"`
}

type decisionRequest struct {
	Accepted bool `json:"accepted"`
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.Catalog.GetEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "event retrieved", event)
}

// Quote prices a cart without creating anything. Carts over the sellable
// ceiling are refused here as well as at confirmation.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	event, err := h.Catalog.GetEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	quote, err := pricing.QuoteCart(event, req.Tickets, req.Upgrades)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if err := catalog.Check(event, req.Tickets, req.Upgrades); err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "quote computed", quote)
}

func (h *Handler) CreateDraft(w http.ResponseWriter, r *http.Request) {
	var req order.DraftRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.Orders.CreateDraft(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Logger.LogOrder("API", o.ID, "draft saved")
	h.ok(w, http.StatusCreated, "draft saved", o)
}

func (h *Handler) GetOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "order retrieved", o)
}

func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req order.PaymentRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.Orders.ConfirmPayment(r.Context(), chi.URLParam(r, "orderId"), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "payment confirmed", o)
}

func (h *Handler) DecideProtection(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.Orders.DecideProtection(r.Context(), chi.URLParam(r, "orderId"), req.Accepted)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "protection decided", o)
}

func (h *Handler) DecideUpsell(w http.ResponseWriter, r *http.Request) {
	var req decisionRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.Orders.DecideUpsell(r.Context(), chi.URLParam(r, "orderId"), req.Accepted)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "upsell decided", o)
}

func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	o, err := h.Orders.Resume(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "order resumed", o)
}

// ReceiptPage renders the printable receipt of a paid order.
func (h *Handler) ReceiptPage(w http.ResponseWriter, r *http.Request) {
	h.renderReceipt(w, r, chi.URLParam(r, "orderId"))
}

func (h *Handler) renderReceipt(w http.ResponseWriter, r *http.Request, orderID string) {
	o, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if !o.IsPaid() {
		h.fail(w, r, apperrors.ErrOrderNotPaid.Newf("order %s is not paid", orderID))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.Receipts.Page(w, o); err != nil {
		h.Logger.Error("API", "render receipt page: "+err.Error())
	}
}
