package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store keeps upstream response bodies in Postgres with an expiry, so every
// replica shares one cache without a Redis deployment.
type Store struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	cfg.MaxConns = 10
	cfg.MinConns = 2

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Store{pool: pool, now: time.Now}, nil
}

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// --- Response cache ---

func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var body []byte
	err := s.pool.QueryRow(ctx,
		`SELECT body FROM response_cache WHERE cache_key = $1 AND expires_at > $2`,
		key, s.now()).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return body, true, nil
}

// Set upserts the body for key. A non-positive ttl deletes the row.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		_, err := s.pool.Exec(ctx, `DELETE FROM response_cache WHERE cache_key = $1`, key)
		return err
	}
	now := s.now()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO response_cache (cache_key, body, stored_at, expires_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (cache_key) DO UPDATE
		 SET body = EXCLUDED.body, stored_at = EXCLUDED.stored_at, expires_at = EXCLUDED.expires_at`,
		key, value, now, now.Add(ttl))
	return err
}

// PurgeExpired deletes expired rows and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM response_cache WHERE expires_at <= $1`, s.now())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
