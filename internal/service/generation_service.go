package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-fees-api/internal/ledger"
	"github.com/noah-isme/sma-fees-api/internal/models"
	"github.com/noah-isme/sma-fees-api/internal/repository"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

type recurringSubscriptionLister interface {
	ListActiveRecurring(ctx context.Context) ([]models.SubscriptionDetail, error)
}

type generatedFeeWriter interface {
	CreateGenerated(ctx context.Context, fee *models.Fee, subscriptionID string, periodStart time.Time) error
}

type generationRecorder interface {
	RecordGeneration(generated, skipped, failed int)
}

// GenerationFailure records one subscription the pass could not generate for.
type GenerationFailure struct {
	SubscriptionID string `json:"subscription_id"`
	Error          string `json:"error"`
}

// GenerationResult summarises one scheduler pass.
type GenerationResult struct {
	RunAt     time.Time           `json:"run_at"`
	Generated int                 `json:"generated"`
	Skipped   int                 `json:"skipped"`
	Failures  []GenerationFailure `json:"failures,omitempty"`
}

// GenerationService materialises recurring subscriptions into dated fees.
// Each pass generates at most one obligation per subscription, always for
// the current period; missed periods are not backfilled.
type GenerationService struct {
	subscriptions recurringSubscriptionLister
	fees          generatedFeeWriter
	metrics       generationRecorder
	logger        *zap.Logger
}

// NewGenerationService constructs GenerationService.
func NewGenerationService(subscriptions recurringSubscriptionLister, fees generatedFeeWriter, metrics generationRecorder, logger *zap.Logger) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationService{subscriptions: subscriptions, fees: fees, metrics: metrics, logger: logger}
}

// RunPass walks every active recurring subscription and generates the fee
// for the current period where one is due. Failures are isolated per
// subscription so one bad row never blocks the rest of the pass.
func (s *GenerationService) RunPass(ctx context.Context, now time.Time) (*GenerationResult, error) {
	now = now.UTC()
	subs, err := s.subscriptions.ListActiveRecurring(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list recurring subscriptions")
	}

	result := &GenerationResult{RunAt: now}
	for _, sub := range subs {
		if err := ctx.Err(); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "generation pass interrupted")
		}
		if !ledger.ShouldGenerate(sub.Recurrence, sub.LastGeneratedFor, now) {
			result.Skipped++
			continue
		}

		periodStart := ledger.PeriodStart(sub.Recurrence, now)
		subID := sub.ID
		fee := &models.Fee{
			StudentID:      sub.StudentID,
			SubscriptionID: &subID,
			Type:           sub.StructureType,
			Amount:         sub.ChargeAmount(),
			DueDate:        ledger.DueDate(now),
		}
		if err := s.fees.CreateGenerated(ctx, fee, sub.ID, periodStart); err != nil {
			if errors.Is(err, repository.ErrAlreadyGenerated) {
				result.Skipped++
				continue
			}
			result.Failures = append(result.Failures, GenerationFailure{SubscriptionID: sub.ID, Error: err.Error()})
			s.logger.Warn("generation failed for subscription",
				zap.String("subscription_id", sub.ID),
				zap.String("student_id", sub.StudentID),
				zap.Error(err))
			continue
		}
		result.Generated++
	}

	if s.metrics != nil {
		s.metrics.RecordGeneration(result.Generated, result.Skipped, len(result.Failures))
	}
	s.logger.Info("generation pass finished",
		zap.Time("run_at", now),
		zap.Int("generated", result.Generated),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", len(result.Failures)))
	return result, nil
}
