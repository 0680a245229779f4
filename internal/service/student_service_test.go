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

type mockStudentRepo struct {
	students map[string]models.Student
}

func (m *mockStudentRepo) List(ctx context.Context, filter models.StudentFilter) ([]models.Student, int, error) {
	out := make([]models.Student, 0, len(m.students))
	for _, s := range m.students {
		out = append(out, s)
	}
	return out, len(out), nil
}

func (m *mockStudentRepo) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := m.students[id]; ok {
		return &s, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockStudentRepo) Create(ctx context.Context, student *models.Student) error {
	if m.students == nil {
		m.students = make(map[string]models.Student)
	}
	if student.ID == "" {
		student.ID = "new-student"
	}
	m.students[student.ID] = *student
	return nil
}

func (m *mockStudentRepo) Update(ctx context.Context, student *models.Student) error {
	m.students[student.ID] = *student
	return nil
}

func TestStudentCreateAutoSubscribesDefaults(t *testing.T) {
	structures := &mockStructureRepo{structures: map[string]models.FeeStructure{
		"s1": {ID: "s1", Type: "Tuition", Amount: decimal.RequireFromString("250"), Recurrence: models.RecurrenceMonthly, IsDefault: true},
		"s2": {ID: "s2", Type: "Library", Amount: decimal.RequireFromString("30"), Recurrence: models.RecurrenceYearly, IsDefault: true},
		"s3": {ID: "s3", Type: "Field Trip", Amount: decimal.RequireFromString("40"), Recurrence: models.RecurrenceOnce},
	}}
	subscriptions := &mockSubscriptionRepo{}
	svc := NewStudentService(&mockStudentRepo{}, structures, subscriptions, nil, nil)

	student, err := svc.Create(context.Background(), CreateStudentRequest{
		FullName: "Siti Rahma",
		NIS:      "2025-001",
		ClassID:  "10A",
	})
	require.NoError(t, err)
	assert.True(t, student.Active)

	subscribed := map[string]bool{}
	for _, sub := range subscriptions.subscriptions {
		assert.Equal(t, student.ID, sub.StudentID)
		assert.True(t, sub.IsActive)
		subscribed[sub.StructureID] = true
	}
	assert.True(t, subscribed["s1"])
	assert.True(t, subscribed["s2"])
	assert.False(t, subscribed["s3"])
}

func TestStudentCreateValidation(t *testing.T) {
	svc := NewStudentService(&mockStudentRepo{}, &mockStructureRepo{}, &mockSubscriptionRepo{}, nil, nil)

	_, err := svc.Create(context.Background(), CreateStudentRequest{FullName: "No Class"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentUpdate(t *testing.T) {
	repo := &mockStudentRepo{students: map[string]models.Student{
		"stu-1": {ID: "stu-1", FullName: "Siti Rahma", NIS: "2025-001", ClassID: "10A", Active: true},
	}}
	svc := NewStudentService(repo, &mockStructureRepo{}, &mockSubscriptionRepo{}, nil, nil)

	inactive := false
	student, err := svc.Update(context.Background(), "stu-1", UpdateStudentRequest{
		FullName: "Siti Rahma",
		NIS:      "2025-001",
		ClassID:  "11A",
		Active:   &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "11A", student.ClassID)
	assert.False(t, student.Active)

	_, err = svc.Update(context.Background(), "missing", UpdateStudentRequest{
		FullName: "X", NIS: "1", ClassID: "10A",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
