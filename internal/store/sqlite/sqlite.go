package sqlite

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/ephram/relay/internal/store"
	"github.com/ephram/relay/internal/store/model"
)

// SqliteRepository implements store.Repository.
type SqliteRepository struct {
	db *sqlx.DB
}

func NewSqliteRepository(db *sqlx.DB) *SqliteRepository {
	return &SqliteRepository{db: db}
}

func (r *SqliteRepository) Close() error {
	return r.db.Close()
}

func (r *SqliteRepository) Requests() store.RequestRepository {
	return &requestRepo{db: r.db}
}

type requestRepo struct {
	db *sqlx.DB
}

func (r *requestRepo) Insert(ctx context.Context, rec *model.RequestRecord) error {
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO requests (id, backend, model, input_tokens, output_tokens, latency_ms, success, created_at)
		VALUES (:id, :backend, :model, :input_tokens, :output_tokens, :latency_ms, :success, :created_at)`,
		rec)
	return err
}

func (r *requestRepo) DailyStats(ctx context.Context, days int) ([]model.DailyStats, error) {
	var stats []model.DailyStats
	err := r.db.SelectContext(ctx, &stats, `
		SELECT strftime('%Y-%m-%d', created_at) AS day,
		       COUNT(*)                         AS requests,
		       COALESCE(SUM(input_tokens), 0)   AS input_tokens,
		       COALESCE(SUM(output_tokens), 0)  AS output_tokens
		FROM requests
		WHERE created_at >= datetime('now', ?)
		GROUP BY day
		ORDER BY day DESC`,
		fmt.Sprintf("-%d days", days))
	return stats, err
}
