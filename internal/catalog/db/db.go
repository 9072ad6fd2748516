package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/models"

	"github.com/uptrace/bun"
)

// DB is the catalog repository. Bun may be the pool or a transaction.
type DB struct {
	Bun bun.IDB
}

func New(idb bun.IDB) *DB {
	return &DB{Bun: idb}
}

// GetEvent loads the event with its catalog lines in position order.
func (d *DB) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	var event models.Event
	err := d.Bun.NewSelect().
		Model(&event).
		Where("id = ?", id).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.ErrEventNotFound.Newf("event %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("select event %s: %w", id, err)
	}

	var lines []models.CatalogLine
	err = d.Bun.NewSelect().
		Model(&lines).
		Where("event_id = ?", id).
		Order("kind ASC", "position ASC", "product_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select catalog lines for %s: %w", id, err)
	}
	attachLines(&event, lines)
	return &event, nil
}

func (d *DB) ListEvents(ctx context.Context) ([]models.Event, error) {
	var events []models.Event
	err := d.Bun.NewSelect().
		Model(&events).
		Order("starts_at ASC", "id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	if len(events) == 0 {
		return events, nil
	}

	ids := make([]string, len(events))
	for i := range events {
		ids[i] = events[i].ID
	}
	var lines []models.CatalogLine
	err = d.Bun.NewSelect().
		Model(&lines).
		Where("event_id IN (?)", bun.In(ids)).
		Order("kind ASC", "position ASC", "product_id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("list catalog lines: %w", err)
	}
	byEvent := map[string][]models.CatalogLine{}
	for _, l := range lines {
		byEvent[l.EventID] = append(byEvent[l.EventID], l)
	}
	for i := range events {
		attachLines(&events[i], byEvent[events[i].ID])
	}
	return events, nil
}

func attachLines(event *models.Event, lines []models.CatalogLine) {
	event.TicketZones = []models.CatalogLine{}
	event.Upgrades = []models.CatalogLine{}
	for _, l := range lines {
		if l.Kind == models.KindUpgrade {
			event.Upgrades = append(event.Upgrades, l)
		} else {
			event.TicketZones = append(event.TicketZones, l)
		}
	}
}

// SaveEvent upserts the event row and replaces its catalog lines.
func (d *DB) SaveEvent(ctx context.Context, event *models.Event) error {
	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		event.UpdatedAt = time.Now().UTC()
		if event.CreatedAt.IsZero() {
			event.CreatedAt = event.UpdatedAt
		}
		_, err := tx.NewInsert().
			Model(event).
			On("CONFLICT (id) DO UPDATE").
			Set("name = EXCLUDED.name").
			Set("location = EXCLUDED.location").
			Set("starts_at = EXCLUDED.starts_at").
			Set("terms_text = EXCLUDED.terms_text").
			Set("tax_rate_percent = EXCLUDED.tax_rate_percent").
			Set("fee_rate = EXCLUDED.fee_rate").
			Set("fee_mode = EXCLUDED.fee_mode").
			Set("protection = EXCLUDED.protection").
			Set("upsell = EXCLUDED.upsell").
			Set("tags = EXCLUDED.tags").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("upsert event %s: %w", event.ID, err)
		}

		_, err = tx.NewDelete().
			Model((*models.CatalogLine)(nil)).
			Where("event_id = ?", event.ID).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("clear catalog lines for %s: %w", event.ID, err)
		}

		lines := event.Lines()
		if len(lines) == 0 {
			return nil
		}
		if _, err := tx.NewInsert().Model(&lines).Exec(ctx); err != nil {
			return fmt.Errorf("insert catalog lines for %s: %w", event.ID, err)
		}
		return nil
	})
}

// Reserve takes every hold off available inventory, or none of them. Each
// decrement is conditional on enough stock being left, so concurrent
// reservations can never drive a line negative. Run it inside the caller's
// transaction so a later failure releases the stock again.
func (d *DB) Reserve(ctx context.Context, eventID string, holds []models.InventoryHold) error {
	sorted := append([]models.InventoryHold(nil), holds...)
	// fixed lock order across concurrent reservations
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	return d.Bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, h := range sorted {
			if h.Qty <= 0 {
				continue
			}
			res, err := tx.NewUpdate().
				Model((*models.CatalogLine)(nil)).
				Set("available_qty = available_qty - ?", h.Qty).
				Where("event_id = ?", eventID).
				Where("product_id = ?", h.ProductID).
				Where("available_qty >= ?", h.Qty).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("reserve %s/%s: %w", eventID, h.ProductID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("reserve %s/%s: %w", eventID, h.ProductID, err)
			}
			if n == 0 {
				return apperrors.ErrInventoryExceeded.Newf("not enough %s left for event %s", h.ProductID, eventID)
			}
		}
		return nil
	})
}
