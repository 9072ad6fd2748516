package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/models"

	"github.com/uptrace/bun"
)

// DB is the order repository. Bun may be the pool or a transaction.
type DB struct {
	Bun bun.IDB
}

func New(idb bun.IDB) *DB {
	return &DB{Bun: idb}
}

// columns written by the checkout funnel; receipt_sent and check-ins have
// their own conditional writes
var funnelColumns = []string{
	"event_name", "customer", "status", "stage", "items", "financials",
	"terms_accepted", "terms_accepted_at", "upsells", "custom_upsell", "tags",
	"payment_customer_id", "payment_method_id", "payment_intent_id",
	"version", "updated_at", "paid_at",
}

// ---------------- ORDERS ----------------

// GetOrder fetches one order with its check-in ledger.
func (d *DB) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	var order models.Order
	err := d.Bun.NewSelect().
		Model(&order).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrOrderNotFound.Newf("order %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("select order %s: %w", id, err)
	}
	if err := d.attachCheckIns(ctx, []*models.Order{&order}); err != nil {
		return nil, err
	}
	return &order, nil
}

func (d *DB) InsertOrder(ctx context.Context, order *models.Order) error {
	if order.Version == 0 {
		order.Version = 1
	}
	if _, err := d.Bun.NewInsert().Model(order).Exec(ctx); err != nil {
		return fmt.Errorf("insert order %s: %w", order.ID, err)
	}
	return nil
}

// UpdateOrder writes the funnel columns only if the stored version still
// equals expectedVersion. On success order.Version is the new version.
func (d *DB) UpdateOrder(ctx context.Context, order *models.Order, expectedVersion int64) error {
	order.Version = expectedVersion + 1
	if order.UpdatedAt.IsZero() {
		order.UpdatedAt = time.Now().UTC()
	}
	res, err := d.Bun.NewUpdate().
		Model(order).
		Column(funnelColumns...).
		Where("id = ?", order.ID).
		Where("version = ?", expectedVersion).
		Exec(ctx)
	if err != nil {
		order.Version = expectedVersion
		return fmt.Errorf("update order %s: %w", order.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		order.Version = expectedVersion
		return d.missOrConflict(ctx, order.ID)
	}
	return nil
}

func (d *DB) missOrConflict(ctx context.Context, id string) error {
	exists, err := d.Bun.NewSelect().
		Model((*models.Order)(nil)).
		Where("id = ?", id).
		Exists(ctx)
	if err != nil {
		return fmt.Errorf("check order %s: %w", id, err)
	}
	if !exists {
		return apperrors.ErrOrderNotFound.Newf("order %s not found", id)
	}
	return apperrors.ErrConcurrentUpdate.Newf("order %s changed underneath this write", id)
}

// MarkReceiptSent flips the one-shot receipt latch. It reports false when
// the latch was already set or the order is not paid.
func (d *DB) MarkReceiptSent(ctx context.Context, id string) (bool, error) {
	res, err := d.Bun.NewUpdate().
		Model((*models.Order)(nil)).
		Set("receipt_sent = ?", true).
		Set("version = version + 1").
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", id).
		Where("status = ?", models.StatusPaid).
		Where("receipt_sent = ?", false).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("mark receipt sent for %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark receipt sent for %s: %w", id, err)
	}
	return n == 1, nil
}

// OrderFilter narrows ListOrders. Zero values match everything.
type OrderFilter struct {
	EventID string
	Status  models.OrderStatus
	// Search matches buyer name, email or order id, case-insensitively.
	Search string
	Limit  int
}

// ListOrders returns matching orders, most recent first, with check-ins.
func (d *DB) ListOrders(ctx context.Context, f OrderFilter) ([]*models.Order, error) {
	var orders []*models.Order
	q := d.Bun.NewSelect().
		Model(&orders).
		Order("created_at DESC", "id ASC")
	if f.EventID != "" {
		q = q.Where("event_id = ?", f.EventID)
	}
	if f.Status != "" {
		q = q.Where("status = ?", f.Status)
	}
	if f.Limit > 0 && f.Search == "" {
		q = q.Limit(f.Limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	if term := strings.ToLower(strings.TrimSpace(f.Search)); term != "" {
		filtered := orders[:0]
		for _, o := range orders {
			if matches(o, term) {
				filtered = append(filtered, o)
			}
		}
		orders = filtered
		if f.Limit > 0 && len(orders) > f.Limit {
			orders = orders[:f.Limit]
		}
	}

	if err := d.attachCheckIns(ctx, orders); err != nil {
		return nil, err
	}
	return orders, nil
}

func matches(o *models.Order, term string) bool {
	return strings.HasPrefix(strings.ToLower(o.ID), term) ||
		strings.Contains(strings.ToLower(o.Customer.Name), term) ||
		strings.Contains(strings.ToLower(o.Customer.Email), term)
}

// ---------------- CHECK-INS ----------------

func (d *DB) attachCheckIns(ctx context.Context, orders []*models.Order) error {
	if len(orders) == 0 {
		return nil
	}
	byID := make(map[string]*models.Order, len(orders))
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		o.CheckIns = map[int]bool{}
		o.CheckInMetadata = map[int]string{}
		byID[o.ID] = o
		ids = append(ids, o.ID)
	}

	var rows []models.CheckIn
	err := d.Bun.NewSelect().
		Model(&rows).
		Where("order_id IN (?)", bun.In(ids)).
		Scan(ctx)
	if err != nil {
		return fmt.Errorf("select check-ins: %w", err)
	}
	for _, r := range rows {
		o := byID[r.OrderID]
		o.CheckIns[r.UnitIndex] = r.CheckedIn
		if r.StaffID != "" {
			o.CheckInMetadata[r.UnitIndex] = r.StaffID
		}
	}
	return nil
}

// UpsertCheckIns writes each unit row unconditionally, so the last write
// for a unit wins, and bumps the order version once for change ordering.
// Rows carry their own staff attribution; an empty StaffID keeps the
// previous attribution.
func (d *DB) UpsertCheckIns(ctx context.Context, orderID string, rows []models.CheckIn) error {
	if len(rows) == 0 {
		return nil
	}
	sorted := append([]models.CheckIn(nil), rows...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UnitIndex < sorted[j].UnitIndex })
	now := time.Now().UTC()
	for i := range sorted {
		sorted[i].OrderID = orderID
		sorted[i].UpdatedAt = now
	}

	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&sorted).
			On("CONFLICT (order_id, unit_index) DO UPDATE").
			Set("checked_in = EXCLUDED.checked_in").
			Set("staff_id = CASE WHEN EXCLUDED.staff_id IS NULL OR EXCLUDED.staff_id = '' THEN order_check_ins.staff_id ELSE EXCLUDED.staff_id END").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert check-ins for %s: %w", orderID, err)
		}

		_, err = tx.NewUpdate().
			Model((*models.Order)(nil)).
			Set("version = version + 1").
			Set("updated_at = ?", now).
			Where("id = ?", orderID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("bump version for %s: %w", orderID, err)
		}
		return nil
	})
}
