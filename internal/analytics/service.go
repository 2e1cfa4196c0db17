// Package analytics records proxied requests and aggregates usage over time.
package analytics

import (
	"context"

	"go.uber.org/zap"

	"github.com/ephram/relay/internal/store"
	"github.com/ephram/relay/internal/store/model"
)

type Service interface {
	// Record persists one request record. Failures are logged, never
	// surfaced: accounting must not break the request path.
	Record(ctx context.Context, rec *model.RequestRecord)
	Overview(ctx context.Context, days int) ([]model.DailyStats, error)
}

type service struct {
	repo   store.Repository
	logger *zap.Logger
}

func NewService(repo store.Repository, logger *zap.Logger) Service {
	return &service{repo: repo, logger: logger}
}

func (s *service) Record(ctx context.Context, rec *model.RequestRecord) {
	if err := s.repo.Requests().Insert(ctx, rec); err != nil {
		s.logger.Warn("failed to record request", zap.Error(err))
	}
}

func (s *service) Overview(ctx context.Context, days int) ([]model.DailyStats, error) {
	if days <= 0 {
		days = 7 // default to last week
	}
	return s.repo.Requests().DailyStats(ctx, days)
}
