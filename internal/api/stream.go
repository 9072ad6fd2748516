package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"ms-boxoffice/internal/models"

	"github.com/go-chi/chi/v5"
)

const keepAliveInterval = 25 * time.Second

// StreamOrder pushes every committed change of one order, so the buyer's
// page follows the order to paid and the receipt page sees check-ins.
func (h *Handler) StreamOrder(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")
	o, err := h.Orders.GetOrder(r.Context(), orderID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	changes, unsubscribe := h.Feed.SubscribeOrder(orderID)
	defer unsubscribe()
	h.stream(w, r, "order:"+orderID, o, changes)
}

// StreamEvent pushes changes of every order of an event to staff screens.
func (h *Handler) StreamEvent(w http.ResponseWriter, r *http.Request) {
	eventID := chi.URLParam(r, "eventId")
	changes, unsubscribe := h.Feed.SubscribeEvent(eventID)
	defer unsubscribe()
	h.stream(w, r, "event:"+eventID, nil, changes)
}

func (h *Handler) stream(w http.ResponseWriter, r *http.Request, topic string, snapshot *models.Order, changes <-chan models.OrderChange) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	if snapshot != nil {
		writeEvent(w, "snapshot", snapshot)
	} else {
		fmt.Fprint(w, "event: connected\ndata: {}\n\n")
	}
	flusher.Flush()
	h.Logger.Debug("SSE", "client subscribed to "+topic)

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case change, ok := <-changes:
			if !ok {
				return
			}
			writeEvent(w, "change", change)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		case <-r.Context().Done():
			h.Logger.Debug("SSE", "client left "+topic)
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, name string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
}
