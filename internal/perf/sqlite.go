package perf

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteReader reads daily entity metrics from the embedded analytical
// store the dashboard maintains. Read-only from this subsystem's
// perspective: the dashboard's loaders own the schema and the writes.
type SQLiteReader struct {
	db *sql.DB
}

// OpenSQLite opens the analytical store read-only.
func OpenSQLite(path string) (*SQLiteReader, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&mode=ro")
	if err != nil {
		return nil, fmt.Errorf("perf: open analytical store: %w", err)
	}
	return &SQLiteReader{db: db}, nil
}

// NewSQLiteReader wraps an existing database handle. Used by tests and by
// deployments that share one embedded store.
func NewSQLiteReader(db *sql.DB) *SQLiteReader {
	return &SQLiteReader{db: db}
}

// Close closes the underlying database.
func (r *SQLiteReader) Close() error {
	return r.db.Close()
}

// Window sums daily rows for the entity over [from, to).
func (r *SQLiteReader) Window(ctx context.Context, entityID string, from, to time.Time) (Metrics, error) {
	var m Metrics
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(impressions), 0), COALESCE(SUM(clicks), 0),
		       COALESCE(SUM(cost), 0), COALESCE(SUM(conversions), 0),
		       COALESCE(SUM(conversion_value), 0)
		FROM entity_metrics
		WHERE entity_id = ? AND day >= ? AND day < ?`,
		entityID, from.UTC().Format("2006-01-02"), to.UTC().Format("2006-01-02"),
	).Scan(&m.Impressions, &m.Clicks, &m.Cost, &m.Conversions, &m.ConversionValue)
	if err != nil {
		return Metrics{}, fmt.Errorf("perf: window for %s: %w", entityID, err)
	}
	return m, nil
}

// MedianConversionLagDays reads the precomputed lag estimate for an entity.
// Missing rows mean the lag is unknown; callers fall back to the policy's
// minimum monitoring window.
func (r *SQLiteReader) MedianConversionLagDays(ctx context.Context, entityID string) (float64, error) {
	var lag float64
	err := r.db.QueryRowContext(ctx, `
		SELECT median_lag_days FROM conversion_lag WHERE entity_id = ?`,
		entityID).Scan(&lag)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("perf: conversion lag for %s: %w", entityID, err)
	}
	return lag, nil
}
