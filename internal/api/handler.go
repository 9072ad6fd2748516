// Package api exposes the checkout funnel, the scanner and the admin
// console over HTTP.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"ms-boxoffice/internal/admin"
	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/catalog"
	"ms-boxoffice/internal/changefeed"
	"ms-boxoffice/internal/checkin"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/order"
	"ms-boxoffice/internal/receipt"
	"ms-boxoffice/internal/utils"
)

// ReceiptResender re-runs receipt delivery for a paid order.
type ReceiptResender interface {
	Retry(ctx context.Context, orderID string) (bool, error)
}

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Handler struct {
	Orders   *order.OrderService
	Catalog  *catalog.Service
	Ledger   *checkin.Ledger
	Admin    *admin.Service
	Receipts *receipt.Renderer
	Resender ReceiptResender
	Feed     *changefeed.Feed
	Logger   *logger.Logger
	Health   map[string]HealthCheck
}

func decode(r *http.Request, v interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperrors.ErrValidation.Newf("invalid request body: %v", err)
	}
	return nil
}

func (h *Handler) ok(w http.ResponseWriter, status int, message string, data interface{}) {
	utils.WriteJSON(w, status, utils.SuccessResponse(message, data))
}

// fail writes err and logs it; client errors at debug, the rest at error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	msg := fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("API", msg)
	} else {
		h.Logger.Debug("API", msg)
	}
	utils.WriteError(w, err)
}

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	checks := map[string]string{}
	for name, check := range h.Health {
		if err := check(r.Context()); err != nil {
			checks[name] = err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "ok"
	}
	resp := utils.SuccessResponse("healthy", checks)
	if status != http.StatusOK {
		resp = utils.ErrorResponse("unhealthy", "dependency check failed")
		resp.Data = checks
	}
	utils.WriteJSON(w, status, resp)
}
