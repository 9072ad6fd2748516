// Package checkin is the gate-side attendance ledger. Each ticket unit of a
// paid order has its own row; writes are last-writer-wins per unit.
package checkin

import (
	"context"
	"fmt"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/metrics"
	"ms-boxoffice/internal/models"
	orderdb "ms-boxoffice/internal/order/db"
	"ms-boxoffice/internal/tickets"
)

type OrderStore interface {
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	ListOrders(ctx context.Context, f orderdb.OrderFilter) ([]*models.Order, error)
	UpsertCheckIns(ctx context.Context, orderID string, rows []models.CheckIn) error
}

type ChangeNotifier interface {
	Notify(ctx context.Context, change models.OrderChange) error
}

// UnitStatus is one ticket unit as the scanner shows it.
type UnitStatus struct {
	UnitIndex int                `json:"unitIndex"`
	ProductID string             `json:"productId"`
	Name      string             `json:"name"`
	Kind      models.ProductKind `json:"kind"`
	CheckedIn bool               `json:"checkedIn"`
	StaffID   string             `json:"staffId,omitempty"`
}

// Resolution is what a scan resolves to: the order, all of its units and
// the unit that was scanned.
type Resolution struct {
	Order       *models.Order `json:"order"`
	Units       []UnitStatus  `json:"units"`
	Highlighted int           `json:"highlightedUnitIndex"`
}

const searchLimit = 50

type Ledger struct {
	Orders   OrderStore
	Signer   *tickets.Signer
	Notifier ChangeNotifier
	Logger   *logger.Logger
	Metrics  *metrics.Metrics
}

func NewLedger(orders OrderStore, signer *tickets.Signer, notifier ChangeNotifier, log *logger.Logger, m *metrics.Metrics) *Ledger {
	return &Ledger{Orders: orders, Signer: signer, Notifier: notifier, Logger: log, Metrics: m}
}

// Units lists every derived unit of order with its check-in state.
func Units(order *models.Order) []UnitStatus {
	units := tickets.EnumerateUnits(order.Items)
	out := make([]UnitStatus, 0, len(units))
	for _, u := range units {
		out = append(out, UnitStatus{
			UnitIndex: u.Index,
			ProductID: u.Item.ProductID,
			Name:      u.Item.Name,
			Kind:      u.Item.Kind,
			CheckedIn: order.CheckIns[u.Index],
			StaffID:   order.CheckInMetadata[u.Index],
		})
	}
	return out
}

// Resolve parses a scanned code and loads the order it points at. A code
// from another event is rejected when eventContext is set.
func (l *Ledger) Resolve(ctx context.Context, raw, eventContext string) (*Resolution, error) {
	payload, err := l.Signer.Parse(raw)
	if err != nil {
		l.Metrics.Scan(string(apperrors.CodeOf(err)))
		l.Logger.LogSecurity("SCAN_REJECTED", fmt.Sprintf("unreadable ticket code %q: %v", raw, err))
		return nil, err
	}

	order, err := l.Orders.GetOrder(ctx, payload.OrderID)
	if err != nil {
		l.Metrics.Scan(string(apperrors.CodeOf(err)))
		return nil, err
	}
	if eventContext != "" && order.EventID != eventContext {
		l.Metrics.Scan(string(apperrors.CodeWrongEvent))
		l.Logger.LogSecurity("WRONG_EVENT", fmt.Sprintf("order %s belongs to %s, scanner is on %s", order.ID, order.EventID, eventContext))
		return nil, apperrors.ErrWrongEvent.Newf("order %s is for a different event", order.ID)
	}
	if !order.IsPaid() {
		l.Metrics.Scan(string(apperrors.CodeOrderNotPaid))
		return nil, apperrors.ErrOrderNotPaid.Newf("order %s is not paid", order.ID)
	}
	if _, ok := tickets.UnitAt(order.Items, payload.UnitIndex); !ok {
		l.Metrics.Scan(string(apperrors.CodeUnitNotFound))
		return nil, apperrors.ErrUnitNotFound.Newf("order %s has no unit %d", order.ID, payload.UnitIndex)
	}

	l.Metrics.Scan("ok")
	return &Resolution{Order: order, Units: Units(order), Highlighted: payload.UnitIndex}, nil
}

// Toggle flips one unit away from currentStatus, the state the scanner was
// showing. Checking in records staff; checking out keeps the earlier
// attribution.
func (l *Ledger) Toggle(ctx context.Context, orderID string, unitIndex int, currentStatus bool, staff string) (*models.Order, error) {
	before, err := l.paidOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if _, ok := tickets.UnitAt(before.Items, unitIndex); !ok {
		return nil, apperrors.ErrUnitNotFound.Newf("order %s has no unit %d", orderID, unitIndex)
	}

	row := models.CheckIn{UnitIndex: unitIndex, CheckedIn: !currentStatus}
	if row.CheckedIn {
		row.StaffID = staff
	}
	after, err := l.write(ctx, before, []models.CheckIn{row})
	if err != nil {
		return nil, err
	}
	l.Metrics.CheckIns(row.CheckedIn, 1)
	l.Logger.LogCheckIn(orderID, unitIndex, staff, fmt.Sprintf("checked_in=%t", row.CheckedIn))
	return after, nil
}

// CheckInAll marks every unit of the order checked in by staff in one write.
func (l *Ledger) CheckInAll(ctx context.Context, orderID, staff string) (*models.Order, error) {
	before, err := l.paidOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	units := tickets.EnumerateUnits(before.Items)
	if len(units) == 0 {
		return before, nil
	}
	rows := make([]models.CheckIn, 0, len(units))
	for _, u := range units {
		rows = append(rows, models.CheckIn{UnitIndex: u.Index, CheckedIn: true, StaffID: staff})
	}
	after, err := l.write(ctx, before, rows)
	if err != nil {
		return nil, err
	}
	l.Metrics.CheckIns(true, len(rows))
	l.Logger.LogCheckIn(orderID, -1, staff, fmt.Sprintf("all %d units checked in", len(rows)))
	return after, nil
}

// Search lists paid orders of an event by buyer name, email or id prefix.
func (l *Ledger) Search(ctx context.Context, eventID, term string) ([]*models.Order, error) {
	return l.Orders.ListOrders(ctx, orderdb.OrderFilter{
		EventID: eventID,
		Status:  models.StatusPaid,
		Search:  term,
		Limit:   searchLimit,
	})
}

func (l *Ledger) paidOrder(ctx context.Context, orderID string) (*models.Order, error) {
	order, err := l.Orders.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsPaid() {
		return nil, apperrors.ErrOrderNotPaid.Newf("order %s is not paid", orderID)
	}
	return order, nil
}

func (l *Ledger) write(ctx context.Context, before *models.Order, rows []models.CheckIn) (*models.Order, error) {
	if err := l.Orders.UpsertCheckIns(ctx, before.ID, rows); err != nil {
		return nil, err
	}
	after, err := l.Orders.GetOrder(ctx, before.ID)
	if err != nil {
		return nil, err
	}
	if l.Notifier != nil {
		if err := l.Notifier.Notify(ctx, models.NewOrderChange(before, after.Clone())); err != nil {
			l.Logger.Error("CHECKIN", fmt.Sprintf("Failed to publish change for order %s: %v", before.ID, err))
		}
	}
	return after, nil
}
