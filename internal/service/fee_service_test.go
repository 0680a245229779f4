package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fees-api/internal/models"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type mockFeeRepo struct {
	fees    map[string]models.FeeWithCredits
	created []models.Fee
	deleted []string
}

func (m *mockFeeRepo) FindWithCredits(ctx context.Context, id string) (*models.FeeWithCredits, error) {
	if f, ok := m.fees[id]; ok {
		return &f, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockFeeRepo) ListByStudent(ctx context.Context, studentID string) ([]models.FeeWithCredits, error) {
	var out []models.FeeWithCredits
	for _, f := range m.fees {
		if f.StudentID == studentID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (m *mockFeeRepo) List(ctx context.Context, filter models.FeeFilter) ([]models.FeeWithCredits, int, error) {
	out := make([]models.FeeWithCredits, 0, len(m.fees))
	for _, f := range m.fees {
		out = append(out, f)
	}
	return out, len(out), nil
}

func (m *mockFeeRepo) Create(ctx context.Context, fee *models.Fee) error {
	if fee.ID == "" {
		fee.ID = "new-fee"
	}
	m.created = append(m.created, *fee)
	return nil
}

func (m *mockFeeRepo) BulkCreate(ctx context.Context, fees []models.Fee) error {
	m.created = append(m.created, fees...)
	return nil
}

func (m *mockFeeRepo) Delete(ctx context.Context, id string) (int64, error) {
	f, ok := m.fees[id]
	if !ok || len(f.Credits) > 0 {
		return 0, nil
	}
	delete(m.fees, id)
	m.deleted = append(m.deleted, id)
	return 1, nil
}

type mockClassLister struct {
	byClass map[string][]models.Student
}

func (m *mockClassLister) ListActiveByClass(ctx context.Context, classID string) ([]models.Student, error) {
	return m.byClass[classID], nil
}

func newFeeFixture(repo *mockFeeRepo, classes *mockClassLister) *FeeService {
	students := &mockStudentReader{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", FullName: "Siti Rahma", ClassID: "10A", Active: true},
	}}
	if classes == nil {
		classes = &mockClassLister{}
	}
	return NewFeeService(repo, students, classes, nil, nil)
}

func TestFeeCreateManual(t *testing.T) {
	repo := &mockFeeRepo{}
	svc := newFeeFixture(repo, nil)

	fee, err := svc.Create(context.Background(), CreateFeeRequest{
		StudentID: "stu-1",
		Type:      "Exam Fee",
		Amount:    decimal.RequireFromString("75"),
		DueDate:   time.Date(2025, time.April, 30, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.NotEmpty(t, fee.ID)
	assert.Nil(t, fee.SubscriptionID)
	require.Len(t, repo.created, 1)
}

func TestFeeCreateRejectsNonPositiveAmount(t *testing.T) {
	svc := newFeeFixture(&mockFeeRepo{}, nil)

	_, err := svc.Create(context.Background(), CreateFeeRequest{
		StudentID: "stu-1",
		Type:      "Exam Fee",
		Amount:    decimal.Zero,
		DueDate:   time.Date(2025, time.April, 30, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestFeeBulkCreateForClass(t *testing.T) {
	repo := &mockFeeRepo{}
	classes := &mockClassLister{byClass: map[string][]models.Student{
		"10A": {{ID: "stu-1", Active: true}, {ID: "stu-2", Active: true}, {ID: "stu-3", Active: true}},
	}}
	svc := newFeeFixture(repo, classes)

	count, err := svc.BulkCreate(context.Background(), BulkCreateFeesRequest{
		ClassID: "10A",
		Type:    "Field Trip",
		Amount:  decimal.RequireFromString("40"),
		DueDate: time.Date(2025, time.May, 31, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.Len(t, repo.created, 3)
}

func TestFeeBulkCreateEmptyClass(t *testing.T) {
	svc := newFeeFixture(&mockFeeRepo{}, &mockClassLister{})

	_, err := svc.BulkCreate(context.Background(), BulkCreateFeesRequest{
		ClassID: "11B",
		Type:    "Field Trip",
		Amount:  decimal.RequireFromString("40"),
		DueDate: time.Date(2025, time.May, 31, 0, 0, 0, 0, time.UTC),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestFeeGetDerivesBalance(t *testing.T) {
	due := time.Now().UTC().AddDate(0, 1, 0)
	repo := &mockFeeRepo{fees: map[string]models.FeeWithCredits{
		"fee-1": {
			Fee: models.Fee{ID: "fee-1", StudentID: "stu-1", Type: "Tuition", Amount: decimal.RequireFromString("100"), DueDate: due},
			Credits: []models.Credit{
				{ID: "c1", FeeID: "fee-1", Amount: decimal.RequireFromString("60"), Type: models.CreditTypePayment},
				{ID: "c2", FeeID: "fee-1", Amount: decimal.RequireFromString("15"), Type: models.CreditTypeDiscount},
			},
		},
	}}
	svc := newFeeFixture(repo, nil)

	detail, err := svc.Get(context.Background(), "fee-1")
	require.NoError(t, err)
	assert.True(t, detail.Paid.Equal(decimal.RequireFromString("60")))
	assert.True(t, detail.Discounted.Equal(decimal.RequireFromString("15")))
	assert.True(t, detail.Balance.Equal(decimal.RequireFromString("25")))
	assert.Equal(t, models.FeeStatusPending, detail.Status)
}

func TestFeeStudentLedgerTotals(t *testing.T) {
	due := time.Now().UTC().AddDate(0, 1, 0)
	repo := &mockFeeRepo{fees: map[string]models.FeeWithCredits{
		"fee-1": {Fee: models.Fee{ID: "fee-1", StudentID: "stu-1", Amount: decimal.RequireFromString("100"), DueDate: due}},
		"fee-2": {
			Fee: models.Fee{ID: "fee-2", StudentID: "stu-1", Amount: decimal.RequireFromString("50"), DueDate: due},
			Credits: []models.Credit{
				{ID: "c1", FeeID: "fee-2", Amount: decimal.RequireFromString("50"), Type: models.CreditTypePayment},
			},
		},
	}}
	svc := newFeeFixture(repo, nil)

	ledgerView, err := svc.StudentLedger(context.Background(), "stu-1")
	require.NoError(t, err)
	assert.Len(t, ledgerView.Fees, 2)
	assert.True(t, ledgerView.Outstanding.Equal(decimal.RequireFromString("100")))
}

func TestFeeDeleteBlockedByCredits(t *testing.T) {
	repo := &mockFeeRepo{fees: map[string]models.FeeWithCredits{
		"fee-1": {
			Fee:     models.Fee{ID: "fee-1", StudentID: "stu-1", Amount: decimal.RequireFromString("100")},
			Credits: []models.Credit{{ID: "c1", FeeID: "fee-1", Amount: decimal.RequireFromString("10"), Type: models.CreditTypePayment}},
		},
	}}
	svc := newFeeFixture(repo, nil)

	err := svc.Delete(context.Background(), "fee-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.Empty(t, repo.deleted)
}

func TestFeeDeleteUncredited(t *testing.T) {
	repo := &mockFeeRepo{fees: map[string]models.FeeWithCredits{
		"fee-1": {Fee: models.Fee{ID: "fee-1", StudentID: "stu-1", Amount: decimal.RequireFromString("100")}},
	}}
	svc := newFeeFixture(repo, nil)

	require.NoError(t, svc.Delete(context.Background(), "fee-1"))
	assert.Equal(t, []string{"fee-1"}, repo.deleted)
}
