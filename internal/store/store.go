// Package store defines the persistence interface for the optional usage log.
package store

import (
	"context"

	"github.com/ephram/relay/internal/store/model"
)

type Repository interface {
	Requests() RequestRepository
	Close() error
}

type RequestRepository interface {
	Insert(ctx context.Context, rec *model.RequestRecord) error
	DailyStats(ctx context.Context, days int) ([]model.DailyStats, error)
}
