package model

import "time"

// RequestRecord is one completed (or failed) proxied request.
type RequestRecord struct {
	ID           string    `db:"id"`
	Backend      string    `db:"backend"`
	Model        string    `db:"model"`
	InputTokens  int       `db:"input_tokens"`
	OutputTokens int       `db:"output_tokens"`
	LatencyMs    int64     `db:"latency_ms"`
	Success      bool      `db:"success"`
	CreatedAt    time.Time `db:"created_at"`
}

// DailyStats is a per-day aggregate over RequestRecords.
type DailyStats struct {
	Day          string `db:"day" json:"day"`
	Requests     int    `db:"requests" json:"requests"`
	InputTokens  int    `db:"input_tokens" json:"input_tokens"`
	OutputTokens int    `db:"output_tokens" json:"output_tokens"`
}
