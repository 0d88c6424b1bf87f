package feedback

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PgStore struct {
	pool *pgxpool.Pool
}

func NewPgStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{pool: pool}
}

func (s *PgStore) Create(ctx context.Context, e Entry) (*Entry, error) {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO feedback (id, author_id, text, created_at)
		VALUES ($1, $2, $3, $4)
	`, e.ID, e.AuthorID, e.Text, e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert feedback: %w", err)
	}
	return &e, nil
}

func (s *PgStore) List(ctx context.Context, limit, offset int) ([]Entry, int, error) {
	var total int
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM feedback`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count feedback: %w", err)
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, author_id, text, created_at
		FROM feedback
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list feedback: %w", err)
	}
	entries, err := collect(rows)
	return entries, total, err
}

func (s *PgStore) Between(ctx context.Context, from, to time.Time) ([]Entry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, author_id, text, created_at
		FROM feedback
		WHERE created_at BETWEEN $1 AND $2
		ORDER BY created_at, id
	`, from, to)
	if err != nil {
		return nil, fmt.Errorf("list feedback: %w", err)
	}
	return collect(rows)
}

func collect(rows pgx.Rows) ([]Entry, error) {
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Entry, error) {
		var e Entry
		err := row.Scan(&e.ID, &e.AuthorID, &e.Text, &e.CreatedAt)
		return e, err
	})
}
