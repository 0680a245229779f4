package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-fees-api/internal/models"
	appErrors "github.com/noah-isme/sma-fees-api/pkg/errors"
)

const (
	dashboardCacheKey = "dashboard:collection"
	defaultCacheTTL   = 5 * time.Minute
)

type ledgerStatsReader interface {
	AggregateStats(ctx context.Context) (*models.LedgerStats, error)
	ClassSummaries(ctx context.Context) ([]models.ClassCollectionSummary, error)
}

type dashboardCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Invalidate(ctx context.Context, keys ...string)
}

// CollectionDashboard aggregates ledger-wide figures for the admin view.
type CollectionDashboard struct {
	Stats       models.LedgerStats              `json:"stats"`
	Classes     []models.ClassCollectionSummary `json:"classes"`
	GeneratedAt time.Time                       `json:"generated_at"`
}

// DashboardService serves cached collection summaries.
type DashboardService struct {
	fees   ledgerStatsReader
	cache  dashboardCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewDashboardService constructs DashboardService.
func NewDashboardService(fees ledgerStatsReader, cache dashboardCache, ttl time.Duration, logger *zap.Logger) *DashboardService {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{fees: fees, cache: cache, ttl: ttl, logger: logger}
}

// Collection returns the collection dashboard, served from cache when fresh.
// Figures are derived from fees and credits at read time, so a cached copy
// lags at most the TTL behind the ledger.
func (s *DashboardService) Collection(ctx context.Context) (*CollectionDashboard, error) {
	if s.cache != nil {
		var cached CollectionDashboard
		err := s.cache.Get(ctx, dashboardCacheKey, &cached)
		if err == nil {
			return &cached, nil
		}
		if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("dashboard cache read failed", zap.Error(err))
		}
	}

	stats, err := s.fees.AggregateStats(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to aggregate ledger stats")
	}
	classes, err := s.fees.ClassSummaries(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to summarise classes")
	}

	dashboard := &CollectionDashboard{
		Stats:       *stats,
		Classes:     classes,
		GeneratedAt: time.Now().UTC(),
	}
	if s.cache != nil {
		if err := s.cache.Set(ctx, dashboardCacheKey, dashboard, s.ttl); err != nil {
			s.logger.Warn("dashboard cache write failed", zap.Error(err))
		}
	}
	return dashboard, nil
}

// Invalidate drops the cached dashboard, forcing a rebuild on the next read.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.Invalidate(ctx, dashboardCacheKey)
	}
}
