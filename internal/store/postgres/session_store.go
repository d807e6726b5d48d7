package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/bondsim/internal/domain"
)

// SessionStore keeps the session blob in the sessions table under
// domain.SessionKey.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a SessionStore backed by the given pool.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

func (s *SessionStore) Load(ctx context.Context) (domain.Session, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM sessions WHERE key = $1`, domain.SessionKey).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Session{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, fmt.Errorf("postgres: load session: %w", err)
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domain.Session{}, fmt.Errorf("postgres: decode session: %w", err)
	}
	return sess, nil
}

func (s *SessionStore) Save(ctx context.Context, sess domain.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("postgres: encode session: %w", err)
	}
	const query = `
		INSERT INTO sessions (key, data, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET
			data = EXCLUDED.data,
			updated_at = EXCLUDED.updated_at`
	if _, err := s.pool.Exec(ctx, query, domain.SessionKey, data); err != nil {
		return fmt.Errorf("postgres: save session: %w", err)
	}
	return nil
}

func (s *SessionStore) Clear(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE key = $1`, domain.SessionKey); err != nil {
		return fmt.Errorf("postgres: clear session: %w", err)
	}
	return nil
}

var _ domain.SessionStore = (*SessionStore)(nil)
