package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// SessionKey is the fixed key the session blob is stored under.
const SessionKey = "bondsim.session"

// SessionStore persists the single user session under a fixed key.
// Load returns ErrNotFound when nothing has been saved.
type SessionStore interface {
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, s Session) error
	Clear(ctx context.Context) error
}

// TransactionArchive keeps terminal transactions that fell out of the
// in-memory log.
type TransactionArchive interface {
	InsertBatch(ctx context.Context, txs []TransactionEvent) error
	List(ctx context.Context, opts ListOpts) ([]TransactionEvent, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"createdAt"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
