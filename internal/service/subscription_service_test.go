package service

import (
	"context"
	"database/sql"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fees-api/internal/models"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type mockSubscriptionRepo struct {
	subscriptions map[string]models.StudentFeeSubscription
	active        map[string]bool
	overrides     map[string]*decimal.Decimal
	deleted       []string
}

func (m *mockSubscriptionRepo) List(ctx context.Context, filter models.SubscriptionFilter) ([]models.SubscriptionDetail, int, error) {
	return nil, 0, nil
}

func (m *mockSubscriptionRepo) FindByID(ctx context.Context, id string) (*models.StudentFeeSubscription, error) {
	if s, ok := m.subscriptions[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockSubscriptionRepo) ExistsPair(ctx context.Context, studentID, structureID string) (bool, error) {
	for _, s := range m.subscriptions {
		if s.StudentID == studentID && s.StructureID == structureID {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockSubscriptionRepo) Create(ctx context.Context, subscription *models.StudentFeeSubscription) error {
	if m.subscriptions == nil {
		m.subscriptions = make(map[string]models.StudentFeeSubscription)
	}
	if subscription.ID == "" {
		subscription.ID = fmt.Sprintf("sub-%d", len(m.subscriptions)+1)
	}
	m.subscriptions[subscription.ID] = *subscription
	return nil
}

func (m *mockSubscriptionRepo) SetActive(ctx context.Context, id string, active bool) error {
	if m.active == nil {
		m.active = make(map[string]bool)
	}
	m.active[id] = active
	return nil
}

func (m *mockSubscriptionRepo) SetCustomAmount(ctx context.Context, id string, amount *decimal.Decimal) error {
	if m.overrides == nil {
		m.overrides = make(map[string]*decimal.Decimal)
	}
	m.overrides[id] = amount
	return nil
}

func (m *mockSubscriptionRepo) Delete(ctx context.Context, id string) error {
	delete(m.subscriptions, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func newSubscriptionFixture(repo *mockSubscriptionRepo) *SubscriptionService {
	students := &mockStudentReader{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", FullName: "Budi Santoso", Active: true},
	}}
	structures := &mockStructureRepo{structures: map[string]models.FeeStructure{
		"struct-1": {ID: "struct-1", Type: "Tuition", Recurrence: models.RecurrenceMonthly},
	}}
	return NewSubscriptionService(repo, students, structures, nil, nil)
}

func TestSubscribeStudent(t *testing.T) {
	repo := &mockSubscriptionRepo{}
	svc := newSubscriptionFixture(repo)

	sub, err := svc.Subscribe(context.Background(), SubscribeStudentRequest{
		StudentID:   "stu-1",
		StructureID: "struct-1",
	})
	require.NoError(t, err)
	assert.True(t, sub.IsActive)
	assert.Nil(t, sub.CustomAmount)
}

func TestSubscribeDuplicatePair(t *testing.T) {
	repo := &mockSubscriptionRepo{subscriptions: map[string]models.StudentFeeSubscription{
		"existing": {ID: "existing", StudentID: "stu-1", StructureID: "struct-1", IsActive: false},
	}}
	svc := newSubscriptionFixture(repo)

	// Even an inactive existing subscription blocks a duplicate.
	_, err := svc.Subscribe(context.Background(), SubscribeStudentRequest{
		StudentID:   "stu-1",
		StructureID: "struct-1",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestSubscribeRejectsNonPositiveOverride(t *testing.T) {
	svc := newSubscriptionFixture(&mockSubscriptionRepo{})

	zero := decimal.Zero
	_, err := svc.Subscribe(context.Background(), SubscribeStudentRequest{
		StudentID:    "stu-1",
		StructureID:  "struct-1",
		CustomAmount: &zero,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubscribeUnknownStructure(t *testing.T) {
	svc := newSubscriptionFixture(&mockSubscriptionRepo{})

	_, err := svc.Subscribe(context.Background(), SubscribeStudentRequest{
		StudentID:   "stu-1",
		StructureID: "missing",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSubscriptionSetActive(t *testing.T) {
	repo := &mockSubscriptionRepo{subscriptions: map[string]models.StudentFeeSubscription{
		"sub-1": {ID: "sub-1", StudentID: "stu-1", StructureID: "struct-1", IsActive: true},
	}}
	svc := newSubscriptionFixture(repo)

	require.NoError(t, svc.SetActive(context.Background(), "sub-1", false))
	assert.False(t, repo.active["sub-1"])

	err := svc.SetActive(context.Background(), "missing", false)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestSubscriptionSetCustomAmount(t *testing.T) {
	repo := &mockSubscriptionRepo{subscriptions: map[string]models.StudentFeeSubscription{
		"sub-1": {ID: "sub-1", StudentID: "stu-1", StructureID: "struct-1", IsActive: true},
	}}
	svc := newSubscriptionFixture(repo)

	amount := decimal.RequireFromString("175")
	require.NoError(t, svc.SetCustomAmount(context.Background(), "sub-1", &amount))
	require.NotNil(t, repo.overrides["sub-1"])
	assert.True(t, repo.overrides["sub-1"].Equal(amount))

	// Clearing the override falls back to the structure amount.
	require.NoError(t, svc.SetCustomAmount(context.Background(), "sub-1", nil))
	assert.Nil(t, repo.overrides["sub-1"])

	negative := decimal.RequireFromString("-1")
	err := svc.SetCustomAmount(context.Background(), "sub-1", &negative)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestSubscriptionDelete(t *testing.T) {
	repo := &mockSubscriptionRepo{subscriptions: map[string]models.StudentFeeSubscription{
		"sub-1": {ID: "sub-1"},
	}}
	svc := newSubscriptionFixture(repo)

	require.NoError(t, svc.Delete(context.Background(), "sub-1"))
	assert.Equal(t, []string{"sub-1"}, repo.deleted)
}
