package catalog

import (
	"context"
	"errors"
	"testing"

	"ms-boxoffice/internal/apperrors"
	"ms-boxoffice/internal/logger"
	"ms-boxoffice/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDBLayer struct {
	mock.Mock
}

func (m *MockDBLayer) GetEvent(ctx context.Context, id string) (*models.Event, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Event), args.Error(1)
}

func (m *MockDBLayer) ListEvents(ctx context.Context) ([]models.Event, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Event), args.Error(1)
}

func (m *MockDBLayer) SaveEvent(ctx context.Context, event *models.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func TestCreateEventNormalizesLines(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockDB.On("SaveEvent", mock.Anything, mock.AnythingOfType("*models.Event")).Return(nil)
	svc := NewService(mockDB, logger.Discard())

	event, err := svc.CreateEvent(context.Background(), models.Event{
		Name:    "Winter Gala",
		FeeRate: decimal.NewFromInt(5),
		TicketZones: []models.CatalogLine{
			{Name: "Stalls", UnitPrice: decimal.NewFromInt(60), AvailableQty: 80},
			{ProductID: "circle", Name: "Circle", UnitPrice: decimal.NewFromInt(45), AvailableQty: 40},
		},
		Upgrades: []models.CatalogLine{
			{ProductID: "programme", Name: "Programme", UnitPrice: decimal.NewFromInt(8), AvailableQty: 100},
		},
	})
	require.NoError(t, err)

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, models.FeeModeFlat, event.FeeMode)
	assert.NotEmpty(t, event.TicketZones[0].ProductID)
	assert.Equal(t, 1, event.TicketZones[1].Position)
	assert.Equal(t, models.KindUpgrade, event.Upgrades[0].Kind)
	assert.Equal(t, event.ID, event.Upgrades[0].EventID)
	mockDB.AssertExpectations(t)
}

func TestCreateEventRejectsInvalidConfiguration(t *testing.T) {
	mockDB := new(MockDBLayer)
	svc := NewService(mockDB, logger.Discard())

	_, err := svc.CreateEvent(context.Background(), models.Event{
		Name:    "Broken",
		FeeMode: "sometimes",
	})
	assert.True(t, errors.Is(err, apperrors.ErrValidation))

	_, err = svc.CreateEvent(context.Background(), models.Event{
		Name:   "Bad upsell",
		Upsell: &models.UpsellOffer{Enabled: true},
		TicketZones: []models.CatalogLine{
			{ProductID: "a", Name: "A", AvailableQty: 1},
			{ProductID: "a", Name: "A again", AvailableQty: 1},
		},
	})
	require.Error(t, err)
	coded, _ := apperrors.As(err)
	details := coded.Details().(map[string]string)
	assert.Contains(t, details, "upsell")
	assert.Contains(t, details, "ticketZones[1].id")

	mockDB.AssertNotCalled(t, "SaveEvent", mock.Anything, mock.Anything)
}

func TestUpdateEventKeepsCreatedAt(t *testing.T) {
	mockDB := new(MockDBLayer)
	existing := &models.Event{ID: "evt-1", Name: "Old"}
	existing.CreatedAt = existing.CreatedAt.AddDate(2025, 0, 0)
	mockDB.On("GetEvent", mock.Anything, "evt-1").Return(existing, nil)
	mockDB.On("SaveEvent", mock.Anything, mock.AnythingOfType("*models.Event")).Return(nil)
	svc := NewService(mockDB, logger.Discard())

	event, err := svc.UpdateEvent(context.Background(), "evt-1", models.Event{Name: "New"})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", event.ID)
	assert.Equal(t, existing.CreatedAt, event.CreatedAt)
}

func TestCloneEventCopiesCatalogUnderNewID(t *testing.T) {
	mockDB := new(MockDBLayer)
	src := &models.Event{
		ID:         "evt-1",
		Name:       "Winter Gala",
		FeeMode:    models.FeeModePercent,
		FeeRate:    decimal.NewFromInt(5),
		Protection: &models.ProtectionOffer{Enabled: true, Percentage: decimal.NewFromInt(10)},
		TicketZones: []models.CatalogLine{
			{EventID: "evt-1", ProductID: "stalls", Kind: models.KindTicket, Name: "Stalls", UnitPrice: decimal.NewFromInt(60), AvailableQty: 12},
		},
	}
	mockDB.On("GetEvent", mock.Anything, "evt-1").Return(src, nil)
	mockDB.On("SaveEvent", mock.Anything, mock.AnythingOfType("*models.Event")).Return(nil)
	svc := NewService(mockDB, logger.Discard())

	clone, err := svc.CloneEvent(context.Background(), "evt-1")
	require.NoError(t, err)

	assert.NotEqual(t, "evt-1", clone.ID)
	assert.Equal(t, "Winter Gala (Copy)", clone.Name)
	assert.Equal(t, models.FeeModePercent, clone.FeeMode)
	require.Len(t, clone.TicketZones, 1)
	assert.Equal(t, clone.ID, clone.TicketZones[0].EventID)
	assert.Equal(t, "stalls", clone.TicketZones[0].ProductID)
	assert.Equal(t, 12, clone.TicketZones[0].AvailableQty)

	clone.Protection.Enabled = false
	assert.Equal(t, "evt-1", src.TicketZones[0].EventID, "the source catalog is untouched")
	assert.True(t, src.Protection.Enabled)
}

func TestCloneEventUnknownSource(t *testing.T) {
	mockDB := new(MockDBLayer)
	mockDB.On("GetEvent", mock.Anything, "missing").Return(nil, apperrors.ErrEventNotFound)
	svc := NewService(mockDB, logger.Discard())

	_, err := svc.CloneEvent(context.Background(), "missing")
	assert.True(t, errors.Is(err, apperrors.ErrEventNotFound))
	mockDB.AssertNotCalled(t, "SaveEvent", mock.Anything, mock.Anything)
}
