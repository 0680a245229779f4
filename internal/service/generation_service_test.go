package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/repository"
)

type mockSubscriptionLister struct {
	subs []models.SubscriptionDetail
	err  error
}

func (m *mockSubscriptionLister) ListActiveRecurring(ctx context.Context) ([]models.SubscriptionDetail, error) {
	return m.subs, m.err
}

type mockGeneratedFeeWriter struct {
	created   []models.Fee
	watermark map[string]time.Time
	failOn    map[string]error
}

func (m *mockGeneratedFeeWriter) CreateGenerated(ctx context.Context, fee *models.Fee, subscriptionID string, periodStart time.Time) error {
	if err, ok := m.failOn[subscriptionID]; ok {
		return err
	}
	if m.watermark == nil {
		m.watermark = make(map[string]time.Time)
	}
	if last, ok := m.watermark[subscriptionID]; ok && !last.Before(periodStart) {
		return repository.ErrAlreadyGenerated
	}
	m.watermark[subscriptionID] = periodStart
	fee.ID = "generated-" + subscriptionID
	m.created = append(m.created, *fee)
	return nil
}

func monthlySub(id, studentID string, amount string, last *time.Time) models.SubscriptionDetail {
	return models.SubscriptionDetail{
		StudentFeeSubscription: models.StudentFeeSubscription{
			ID:               id,
			StudentID:        studentID,
			StructureID:      "struct-1",
			IsActive:         true,
			LastGeneratedFor: last,
		},
		StructureType:   "Tuition",
		StructureAmount: decimal.RequireFromString(amount),
		Recurrence:      models.RecurrenceMonthly,
	}
}

func TestGenerationCreatesDueFees(t *testing.T) {
	now := time.Date(2025, time.March, 15, 8, 0, 0, 0, time.UTC)
	january := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	subs := &mockSubscriptionLister{subs: []models.SubscriptionDetail{
		monthlySub("sub-1", "stu-1", "250", nil),
		monthlySub("sub-2", "stu-2", "250", &january),
	}}
	fees := &mockGeneratedFeeWriter{}
	svc := NewGenerationService(subs, fees, nil, nil)

	result, err := svc.RunPass(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Generated)
	assert.Zero(t, result.Skipped)
	require.Len(t, fees.created, 2)
	assert.Equal(t, "Tuition", fees.created[0].Type)
	assert.True(t, fees.created[0].Amount.Equal(decimal.RequireFromString("250")))
	assert.Equal(t, time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC), fees.created[0].DueDate)
}

func TestGenerationIdempotentWithinPeriod(t *testing.T) {
	now := time.Date(2025, time.March, 15, 8, 0, 0, 0, time.UTC)
	fees := &mockGeneratedFeeWriter{}
	subs := &mockSubscriptionLister{subs: []models.SubscriptionDetail{
		monthlySub("sub-1", "stu-1", "250", nil),
	}}
	svc := NewGenerationService(subs, fees, nil, nil)

	first, err := svc.RunPass(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Generated)

	// The watermark in storage has advanced but the listing still reports
	// the stale value; the guarded write must refuse a duplicate.
	second, err := svc.RunPass(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, second.Generated)
	assert.Equal(t, 1, second.Skipped)
	assert.Len(t, fees.created, 1)
}

func TestGenerationSkipsCurrentPeriod(t *testing.T) {
	now := time.Date(2025, time.March, 15, 8, 0, 0, 0, time.UTC)
	march := time.Date(2025, time.March, 1, 0, 0, 0, 0, time.UTC)
	subs := &mockSubscriptionLister{subs: []models.SubscriptionDetail{
		monthlySub("sub-1", "stu-1", "250", &march),
	}}
	fees := &mockGeneratedFeeWriter{}
	svc := NewGenerationService(subs, fees, nil, nil)

	result, err := svc.RunPass(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, result.Generated)
	assert.Equal(t, 1, result.Skipped)
}

func TestGenerationUsesCustomAmount(t *testing.T) {
	now := time.Date(2025, time.March, 15, 8, 0, 0, 0, time.UTC)
	custom := decimal.RequireFromString("175")
	sub := monthlySub("sub-1", "stu-1", "250", nil)
	sub.CustomAmount = &custom
	subs := &mockSubscriptionLister{subs: []models.SubscriptionDetail{sub}}
	fees := &mockGeneratedFeeWriter{}
	svc := NewGenerationService(subs, fees, nil, nil)

	_, err := svc.RunPass(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, fees.created, 1)
	assert.True(t, fees.created[0].Amount.Equal(custom))
}

func TestGenerationIsolatesFailures(t *testing.T) {
	now := time.Date(2025, time.March, 15, 8, 0, 0, 0, time.UTC)
	subs := &mockSubscriptionLister{subs: []models.SubscriptionDetail{
		monthlySub("sub-bad", "stu-1", "250", nil),
		monthlySub("sub-ok", "stu-2", "250", nil),
	}}
	fees := &mockGeneratedFeeWriter{failOn: map[string]error{
		"sub-bad": errors.New("constraint violation"),
	}}
	svc := NewGenerationService(subs, fees, nil, nil)

	result, err := svc.RunPass(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Generated)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "sub-bad", result.Failures[0].SubscriptionID)
}
