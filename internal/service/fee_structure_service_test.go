package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fees-api/internal/models"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type mockStructureRepo struct {
	structures    map[string]models.FeeStructure
	subscriptions map[string]int
	deleted       []string
}

func (m *mockStructureRepo) List(ctx context.Context, filter models.FeeStructureFilter) ([]models.FeeStructure, int, error) {
	out := make([]models.FeeStructure, 0, len(m.structures))
	for _, s := range m.structures {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockStructureRepo) ListDefaults(ctx context.Context) ([]models.FeeStructure, error) {
	var out []models.FeeStructure
	for _, s := range m.structures {
		if s.IsDefault {
			out = append(out, s)
		}
	}
	return out, nil
}

func (m *mockStructureRepo) FindByID(ctx context.Context, id string) (*models.FeeStructure, error) {
	if s, ok := m.structures[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStructureRepo) ExistsByType(ctx context.Context, feeType, excludeID string) (bool, error) {
	for _, s := range m.structures {
		if s.Type == feeType && s.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStructureRepo) Create(ctx context.Context, structure *models.FeeStructure) error {
	if m.structures == nil {
		m.structures = make(map[string]models.FeeStructure)
	}
	if structure.ID == "" {
		structure.ID = "new-structure"
	}
	m.structures[structure.ID] = *structure
	return nil
}

func (m *mockStructureRepo) Update(ctx context.Context, structure *models.FeeStructure) error {
	m.structures[structure.ID] = *structure
	return nil
}

func (m *mockStructureRepo) Delete(ctx context.Context, id string) error {
	delete(m.structures, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func (m *mockStructureRepo) CountSubscriptions(ctx context.Context, structureID string) (int, error) {
	return m.subscriptions[structureID], nil
}

func TestFeeStructureCreate(t *testing.T) {
	repo := &mockStructureRepo{}
	svc := NewFeeStructureService(repo, nil, nil)

	structure, err := svc.Create(context.Background(), CreateFeeStructureRequest{
		Type:       "Tuition",
		Amount:     decimal.RequireFromString("250"),
		Recurrence: models.RecurrenceMonthly,
		IsDefault:  true,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, structure.ID)
	assert.True(t, structure.IsDefault)
}

func TestFeeStructureCreateDuplicateType(t *testing.T) {
	repo := &mockStructureRepo{structures: map[string]models.FeeStructure{
		"s1": {ID: "s1", Type: "Tuition", Recurrence: models.RecurrenceMonthly},
	}}
	svc := NewFeeStructureService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateFeeStructureRequest{
		Type:       "Tuition",
		Amount:     decimal.RequireFromString("250"),
		Recurrence: models.RecurrenceMonthly,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestFeeStructureCreateRejectsBadRecurrence(t *testing.T) {
	svc := NewFeeStructureService(&mockStructureRepo{}, nil, nil)

	_, err := svc.Create(context.Background(), CreateFeeStructureRequest{
		Type:       "Tuition",
		Amount:     decimal.RequireFromString("250"),
		Recurrence: "WEEKLY",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFeeStructureCreateRejectsNonPositiveAmount(t *testing.T) {
	svc := NewFeeStructureService(&mockStructureRepo{}, nil, nil)

	_, err := svc.Create(context.Background(), CreateFeeStructureRequest{
		Type:       "Tuition",
		Amount:     decimal.Zero,
		Recurrence: models.RecurrenceMonthly,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFeeStructureDeleteBlockedBySubscriptions(t *testing.T) {
	repo := &mockStructureRepo{
		structures:    map[string]models.FeeStructure{"s1": {ID: "s1", Type: "Tuition"}},
		subscriptions: map[string]int{"s1": 3},
	}
	svc := NewFeeStructureService(repo, nil, nil)

	err := svc.Delete(context.Background(), "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestFeeStructureDeleteUnsubscribed(t *testing.T) {
	repo := &mockStructureRepo{
		structures: map[string]models.FeeStructure{"s1": {ID: "s1", Type: "Tuition"}},
	}
	svc := NewFeeStructureService(repo, nil, nil)

	require.NoError(t, svc.Delete(context.Background(), "s1"))
	assert.Equal(t, []string{"s1"}, repo.deleted)
}

func TestFeeStructureUpdateKeepsTypeUniqueness(t *testing.T) {
	repo := &mockStructureRepo{structures: map[string]models.FeeStructure{
		"s1": {ID: "s1", Type: "Tuition", Recurrence: models.RecurrenceMonthly},
		"s2": {ID: "s2", Type: "Library", Recurrence: models.RecurrenceYearly},
	}}
	svc := NewFeeStructureService(repo, nil, nil)

	_, err := svc.Update(context.Background(), "s2", UpdateFeeStructureRequest{
		Type:       "Tuition",
		Amount:     decimal.RequireFromString("50"),
		Recurrence: models.RecurrenceYearly,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	updated, err := svc.Update(context.Background(), "s2", UpdateFeeStructureRequest{
		Type:       "Library",
		Amount:     decimal.RequireFromString("75"),
		Recurrence: models.RecurrenceYearly,
	})
	require.NoError(t, err)
	assert.True(t, updated.Amount.Equal(decimal.RequireFromString("75")))
}
