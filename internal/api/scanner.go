package api

import (
	"net/http"
	"strconv"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/auth"
	"ms-boxoffice/internal/checkin"
	"ms-boxoffice/internal/models"

	"github.com/go-chi/chi/v5"
)

type scanRequest struct {
	Code    string `json:"code"`
	EventID string `json:"eventId"`
}

type toggleRequest struct {
	CurrentStatus bool `json:"currentStatus"`
}

// scannerOrder is an order as the gate sees it: units with their state.
type scannerOrder struct {
	Order *models.Order        `json:"order"`
	Units []checkin.UnitStatus `json:"units"`
}

func withUnits(o *models.Order) scannerOrder {
	return scannerOrder{Order: o, Units: checkin.Units(o)}
}

// SearchOrders finds paid orders of ?eventId by ?q.
func (h *Handler) SearchOrders(w http.ResponseWriter, r *http.Request) {
	eventID := r.URL.Query().Get("eventId")
	if eventID == "" {
		h.fail(w, r, apperrors.ErrValidation.WithDetails(map[string]string{"eventId": "is required"}))
		return
	}
	orders, err := h.Ledger.Search(r.Context(), eventID, r.URL.Query().Get("q"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	out := make([]scannerOrder, 0, len(orders))
	for _, o := range orders {
		out = append(out, withUnits(o))
	}
	h.ok(w, http.StatusOK, "orders found", out)
}

func (h *Handler) Scan(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.Ledger.Resolve(r.Context(), req.Code, req.EventID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "ticket resolved", res)
}

func (h *Handler) ToggleUnit(w http.ResponseWriter, r *http.Request) {
	unitIndex, err := strconv.Atoi(chi.URLParam(r, "unitIndex"))
	if err != nil {
		h.fail(w, r, apperrors.ErrValidation.WithDetails(map[string]string{"unitIndex": "must be an integer"}))
		return
	}
	var req toggleRequest
	if err := decode(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.Ledger.Toggle(r.Context(), chi.URLParam(r, "orderId"), unitIndex, req.CurrentStatus, auth.StaffID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "check-in updated", withUnits(o))
}

func (h *Handler) CheckInAll(w http.ResponseWriter, r *http.Request) {
	o, err := h.Ledger.CheckInAll(r.Context(), chi.URLParam(r, "orderId"), auth.StaffID(r.Context()))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.ok(w, http.StatusOK, "all units checked in", withUnits(o))
}
