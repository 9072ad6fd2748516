package api

import (
	"net/http"
	"strconv"

	"ms-boxoffice/internal/models"

	"github.com/go-chi/chi/v5"
)

func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Catalog.ListEvents(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "events retrieved", events)
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var event models.Event
	if err := decode(r, &event); err != nil {
		h.fail(w, r, err)
		return
	}
	created, err := h.Catalog.CreateEvent(r.Context(), event)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, "event created", created)
}

func (h *Handler) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	var event models.Event
	if err := decode(r, &event); err != nil {
		h.fail(w, r, err)
		return
	}
	updated, err := h.Catalog.UpdateEvent(r.Context(), chi.URLParam(r, "eventId"), event)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "event updated", updated)
}

func (h *Handler) CloneEvent(w http.ResponseWriter, r *http.Request) {
	clone, err := h.Catalog.CloneEvent(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusCreated, "event cloned", clone)
}

func (h *Handler) EventStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Admin.EventStats(r.Context(), chi.URLParam(r, "eventId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "event stats retrieved", stats)
}

func (h *Handler) RecentOrders(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	orders, err := h.Admin.RecentOrders(r.Context(), chi.URLParam(r, "eventId"), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "recent orders retrieved", orders)
}

func (h *Handler) Overview(w http.ResponseWriter, r *http.Request) {
	ov, err := h.Admin.Overview(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "overview retrieved", ov)
}

// ResendReceipt retries receipt delivery. An order whose receipt already
// went out is reported as not sent rather than mailed twice.
func (h *Handler) ResendReceipt(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	sent, err := h.Resender.Retry(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.Logger.LogFulfillment("RESEND", orderID, "resend requested from admin console, sent="+strconv.FormatBool(sent))
	h.ok(w, http.StatusOK, "receipt retry finished", map[string]bool{"sent": sent})
}
