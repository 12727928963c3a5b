package state

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore is a Store backed by a single state_records table. Save is an
// upsert, so a retried write overwrites rather than double-applies.
type PostgresStore struct {
	connString string
	namespace  string
	pool       *pgxpool.Pool
	now        func() time.Time
}

// NewPostgresStore creates a PostgreSQL-backed store. Initialize must be
// called before use; the state_records schema is managed by the migrations
// in migrations/.
func NewPostgresStore(connString, namespace string) *PostgresStore {
	return &PostgresStore{connString: connString, namespace: namespace, now: time.Now}
}

func (p *PostgresStore) Initialize(ctx context.Context) error {
	pool, err := pgxpool.New(ctx, p.connString)
	if err != nil {
		return &StateError{Op: "initialize", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return &StateError{Op: "initialize", Err: err}
	}
	p.pool = pool
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value     []byte
		expiresAt *time.Time
	)
	err := p.pool.QueryRow(ctx,
		`SELECT value, expires_at FROM state_records WHERE namespace = $1 AND key = $2`,
		p.namespace, key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, &StateError{Op: "get", Key: key, Err: err}
	}
	if expiresAt != nil && !p.now().Before(*expiresAt) {
		return nil, false, nil
	}
	return value, true, nil
}

func (p *PostgresStore) Save(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	var expiresAt *time.Time
	if ttl > 0 {
		t := p.now().Add(ttl)
		expiresAt = &t
	}
	_, err := p.pool.Exec(ctx,
		`INSERT INTO state_records (namespace, key, value, expires_at, updated_at)
		 VALUES ($1, $2, $3, $4, now())
		 ON CONFLICT (namespace, key)
		 DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = now()`,
		p.namespace, key, value, expiresAt,
	)
	if err != nil {
		return &StateError{Op: "save", Key: key, Err: err}
	}
	return nil
}

func (p *PostgresStore) Delete(ctx context.Context, key string) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM state_records WHERE namespace = $1 AND key = $2`,
		p.namespace, key,
	)
	if err != nil {
		return &StateError{Op: "delete", Key: key, Err: err}
	}
	return nil
}

func (p *PostgresStore) DeleteAll(ctx context.Context) error {
	_, err := p.pool.Exec(ctx,
		`DELETE FROM state_records WHERE namespace = $1`,
		p.namespace,
	)
	if err != nil {
		return &StateError{Op: "deleteall", Err: err}
	}
	return nil
}

func (p *PostgresStore) Done() error {
	if p.pool != nil {
		p.pool.Close()
	}
	return nil
}
