package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/memophor/scedge/internal/apperr"
	"github.com/memophor/scedge/internal/model"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS scedge_artifacts (
	key        TEXT PRIMARY KEY,
	record     JSONB NOT NULL,
	expires_at TIMESTAMPTZ
)`

// PostgresBackend stores records in a single table with lazy expiry on
// read. It exists for deployments that already run Postgres and do not want
// a second store; the contract is identical to the Redis backend.
type PostgresBackend struct {
	db  *sqlx.DB
	now func() time.Time
}

// NewPostgresBackend connects with the given DSN and ensures the schema.
func NewPostgresBackend(dsn string) (*PostgresBackend, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, apperr.Internalf("connect postgres: %w", err)
	}
	backend := &PostgresBackend{db: db, now: time.Now}
	if err := backend.ensureSchema(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return backend, nil
}

func (b *PostgresBackend) ensureSchema(ctx context.Context) error {
	if _, err := b.db.ExecContext(ctx, postgresSchema); err != nil {
		return apperr.Internalf("create scedge_artifacts table: %w", err)
	}
	return nil
}

func (b *PostgresBackend) Get(ctx context.Context, key string) (*model.CachedArtifact, error) {
	var row struct {
		Record    []byte       `db:"record"`
		ExpiresAt sql.NullTime `db:"expires_at"`
	}
	err := b.db.GetContext(ctx, &row,
		`SELECT record, expires_at FROM scedge_artifacts WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Internalf("postgres select: %w", err)
	}

	if row.ExpiresAt.Valid && !row.ExpiresAt.Time.After(b.now()) {
		if _, err := b.Delete(ctx, key); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to delete expired record")
		}
		return nil, nil
	}

	var record model.CachedArtifact
	if err := json.Unmarshal(row.Record, &record); err != nil {
		return nil, apperr.Internalf("deserialize cached artifact: %w", err)
	}
	return &record, nil
}

func (b *PostgresBackend) Set(ctx context.Context, key string, artifact model.ArtifactPayload, expiresAt *time.Time) (*model.CachedArtifact, error) {
	now := b.now().UTC()
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, apperr.BadRequest("artifact already expired")
	}

	record := model.CachedArtifact{
		Key:       key,
		Artifact:  artifact,
		StoredAt:  now,
		ExpiresAt: expiresAt,
	}
	data, err := json.Marshal(record)
	if err != nil {
		return nil, apperr.Internalf("serialize cached artifact: %w", err)
	}

	var expires any
	if expiresAt != nil {
		expires = *expiresAt
	}
	_, err = b.db.ExecContext(ctx,
		`INSERT INTO scedge_artifacts (key, record, expires_at) VALUES ($1, $2, $3)
		 ON CONFLICT (key) DO UPDATE SET record = EXCLUDED.record, expires_at = EXCLUDED.expires_at`,
		key, data, expires)
	if err != nil {
		return nil, apperr.Internalf("postgres upsert: %w", err)
	}
	return &record, nil
}

func (b *PostgresBackend) Delete(ctx context.Context, key string) (bool, error) {
	result, err := b.db.ExecContext(ctx, `DELETE FROM scedge_artifacts WHERE key = $1`, key)
	if err != nil {
		return false, apperr.Internalf("postgres delete: %w", err)
	}
	affected, _ := result.RowsAffected()
	return affected > 0, nil
}

func (b *PostgresBackend) DeleteMany(ctx context.Context, keys []string) (int, error) {
	if len(keys) == 0 {
		return 0, nil
	}
	result, err := b.db.ExecContext(ctx,
		`DELETE FROM scedge_artifacts WHERE key = ANY($1)`, pq.Array(keys))
	if err != nil {
		return 0, apperr.Internalf("postgres delete: %w", err)
	}
	affected, _ := result.RowsAffected()
	return int(affected), nil
}

func (b *PostgresBackend) ScanByPattern(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	err := b.db.SelectContext(ctx, &keys,
		`SELECT key FROM scedge_artifacts
		 WHERE key LIKE $1 AND (expires_at IS NULL OR expires_at > $2)`,
		patternToLike(pattern), b.now())
	if err != nil {
		return nil, apperr.Internalf("postgres scan: %w", err)
	}
	return keys, nil
}

func (b *PostgresBackend) Ping(ctx context.Context) error {
	if err := b.db.PingContext(ctx); err != nil {
		return apperr.Internalf("postgres ping: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (b *PostgresBackend) Close() error { return b.db.Close() }
