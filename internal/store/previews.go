// Package store caches the clean, watermark-free race winner so finalize can
// upload the asset the customer actually purchased instead of the watermarked
// preview they approved. The cache is optional: without DATABASE_URL the app
// runs stateless and finalize accepts the submitted bytes as given.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// ErrNotFound is returned when a preview id is unknown or already expired.
var ErrNotFound = errors.New("preview not found")

const schema = `
create table if not exists previews (
  id         uuid primary key,
  clean_png  bytea not null,
  winner     text not null,
  created_at timestamptz not null default now()
)`

const (
	qInsertPreview = `insert into previews (id, clean_png, winner) values ($1, $2, $3)`
	qSelectPreview = `select clean_png from previews where id = $1 and created_at > $2`
	qDeleteExpired = `delete from previews where created_at <= $1`
)

// PreviewStore persists clean previews in Postgres with a TTL sweep.
type PreviewStore struct {
	pool   *pgxpool.Pool
	ttl    time.Duration
	logger zerolog.Logger
}

// NewPreviewStore ensures the schema exists and returns a ready store.
func NewPreviewStore(ctx context.Context, pool *pgxpool.Pool, ttl time.Duration, logger zerolog.Logger) (*PreviewStore, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		return nil, fmt.Errorf("store: ensure schema: %w", err)
	}
	return &PreviewStore{pool: pool, ttl: ttl, logger: logger}, nil
}

// Put stores the clean winner bytes and returns the generated preview id.
func (s *PreviewStore) Put(ctx context.Context, cleanPNG []byte, winner string) (string, error) {
	id := uuid.NewString()
	if _, err := s.pool.Exec(ctx, qInsertPreview, id, cleanPNG, winner); err != nil {
		return "", fmt.Errorf("store: insert preview: %w", err)
	}
	return id, nil
}

// Get returns the clean bytes for an unexpired preview id.
func (s *PreviewStore) Get(ctx context.Context, id string) ([]byte, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, ErrNotFound
	}
	cutoff := time.Now().Add(-s.ttl)
	var clean []byte
	err = s.pool.QueryRow(ctx, qSelectPreview, parsed.String(), cutoff).Scan(&clean)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("store: select preview: %w", err)
	}
	return clean, nil
}

// Sweep deletes expired rows once. RunSweeper calls it on a ticker.
func (s *PreviewStore) Sweep(ctx context.Context) error {
	tag, err := s.pool.Exec(ctx, qDeleteExpired, time.Now().Add(-s.ttl))
	if err != nil {
		return fmt.Errorf("store: sweep previews: %w", err)
	}
	if n := tag.RowsAffected(); n > 0 {
		s.logger.Debug().Int64("expired", n).Msg("store: swept expired previews")
	}
	return nil
}

// RunSweeper blocks, sweeping every interval until ctx is done.
func (s *PreviewStore) RunSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Sweep(ctx); err != nil && ctx.Err() == nil {
				s.logger.Warn().Err(err).Msg("store: sweep failed")
			}
		}
	}
}
