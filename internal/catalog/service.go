package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"
	"ms-boxoffice/internal/utils"
)

type DBLayer interface {
	GetEvent(ctx context.Context, id string) (*models.Event, error)
	ListEvents(ctx context.Context) ([]models.Event, error)
	SaveEvent(ctx context.Context, event *models.Event) error
}

// Service owns event and catalog configuration.
type Service struct {
	DB     DBLayer
	Logger *logger.Logger
}

func NewService(db DBLayer, log *logger.Logger) *Service {
	return &Service{DB: db, Logger: log}
}

func (s *Service) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	return s.DB.GetEvent(ctx, id)
}

func (s *Service) ListEvents(ctx context.Context) ([]models.Event, error) {
	return s.DB.ListEvents(ctx)
}

func (s *Service) CreateEvent(ctx context.Context, event models.Event) (*models.Event, error) {
	if event.ID == "" {
		event.ID = utils.GenerateEventID()
	}
	if err := s.prepare(&event); err != nil {
		return nil, err
	}
	if err := s.DB.SaveEvent(ctx, &event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	s.Logger.Info("CATALOG", fmt.Sprintf("Created event %s (%d zones, %d upgrades)", event.ID, len(event.TicketZones), len(event.Upgrades)))
	return &event, nil
}

func (s *Service) UpdateEvent(ctx context.Context, id string, event models.Event) (*models.Event, error) {
	existing, err := s.DB.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	event.ID = id
	event.CreatedAt = existing.CreatedAt
	if err := s.prepare(&event); err != nil {
		return nil, err
	}
	if err := s.DB.SaveEvent(ctx, &event); err != nil {
		return nil, fmt.Errorf("update event %s: %w", id, err)
	}
	s.Logger.Info("CATALOG", fmt.Sprintf("Updated event %s", id))
	return &event, nil
}

// CloneEvent copies an event's configuration and catalog, current
// quantities included, into a new event named "<name> (Copy)".
func (s *Service) CloneEvent(ctx context.Context, id string) (*models.Event, error) {
	src, err := s.DB.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	clone := *src
	clone.ID = ""
	clone.Name = src.Name + " (Copy)"
	clone.CreatedAt = time.Time{}
	clone.UpdatedAt = time.Time{}
	clone.TicketZones = append([]models.CatalogLine(nil), src.TicketZones...)
	clone.Upgrades = append([]models.CatalogLine(nil), src.Upgrades...)
	if src.Protection != nil {
		p := *src.Protection
		clone.Protection = &p
	}
	if src.Upsell != nil {
		u := *src.Upsell
		clone.Upsell = &u
	}

	created, err := s.CreateEvent(ctx, clone)
	if err != nil {
		return nil, err
	}
	s.Logger.Info("CATALOG", fmt.Sprintf("Cloned event %s into %s", id, created.ID))
	return created, nil
}

// prepare validates the configuration and normalizes catalog lines: kinds,
// owning event, ids and positions.
func (s *Service) prepare(event *models.Event) error {
	if event.FeeMode == "" {
		event.FeeMode = models.FeeModeFlat
	}
	if err := utils.ValidateStruct(event); err != nil {
		return err
	}

	invalid := map[string]string{}
	if event.TaxRatePercent.IsNegative() {
		invalid["taxRatePercent"] = "must not be negative"
	}
	if event.FeeRate.IsNegative() {
		invalid["feeRate"] = "must not be negative"
	}
	if p := event.Protection; p != nil && (p.Percentage.IsNegative() || p.MinimumFee.IsNegative()) {
		invalid["protection"] = "percentage and minimum fee must not be negative"
	}
	if u := event.Upsell; u != nil && u.Enabled && (!u.Price.IsPositive() || strings.TrimSpace(u.ItemName) == "") {
		invalid["upsell"] = "an enabled upsell needs an item name and a positive price"
	}

	seen := map[string]bool{}
	normalize := func(lines []models.CatalogLine, kind models.ProductKind, field string) {
		for i := range lines {
			l := &lines[i]
			l.EventID = event.ID
			l.Kind = kind
			l.Position = i
			if l.ProductID == "" {
				l.ProductID = utils.GenerateProductID(string(kind))
			}
			if l.UnitPrice.IsNegative() {
				invalid[fmt.Sprintf("%s[%d].unitPrice", field, i)] = "must not be negative"
			}
			if seen[l.ProductID] {
				invalid[fmt.Sprintf("%s[%d].id", field, i)] = "duplicate product id"
			}
			seen[l.ProductID] = true
		}
	}
	normalize(event.TicketZones, models.KindTicket, "ticketZones")
	normalize(event.Upgrades, models.KindUpgrade, "upgrades")

	if len(invalid) > 0 {
		return apperrors.ErrValidation.WithDetails(invalid)
	}
	return nil
}
