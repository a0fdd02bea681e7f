package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const createEventsPostgres = `
CREATE TABLE IF NOT EXISTS stim_events (
    id UUID PRIMARY KEY,
    session_id UUID NOT NULL,
    event_type TEXT NOT NULL,
    data JSONB,
    created_at TIMESTAMPTZ NOT NULL
)`

type PostgresClient struct {
	pool *pgxpool.Pool
}

func NewPostgresClient(ctx context.Context, dsn string, maxConns int) (*PostgresClient, error) {
	poolConfig, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pool config: %w", err)
	}

	if maxConns > 0 {
		poolConfig.MaxConns = int32(maxConns)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	// Connection testen
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createEventsPostgres); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}

	return &PostgresClient{pool: pool}, nil
}

func (p *PostgresClient) Insert(ctx context.Context, rec EventRecord) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO stim_events (id, session_id, event_type, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, rec.ID, rec.SessionID, rec.Type, rec.Data, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

func (p *PostgresClient) Recent(ctx context.Context, limit int) ([]EventRecord, error) {
	rows, err := p.pool.Query(ctx, `
		SELECT id, session_id, event_type, data, created_at
		FROM stim_events
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []EventRecord
	for rows.Next() {
		var rec EventRecord
		if err := rows.Scan(&rec.ID, &rec.SessionID, &rec.Type, &rec.Data, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (p *PostgresClient) Close() error {
	p.pool.Close()
	return nil
}

func (p *PostgresClient) Pool() *pgxpool.Pool {
	return p.pool
}
