package repository

import (
	"context"
	"time"

	"github.com/fastygo/sessions/domain"
)

// SessionReader is the read capability shared by the cache and the database tier.
// Misses are reported as domain.ErrSessionNotFound.
type SessionReader interface {
	FindByToken(ctx context.Context, token string) (*domain.Session, error)
	FindByUserID(ctx context.Context, userID string) ([]*domain.Session, error)
}

// SessionWriter is the write capability shared by the cache and the database tier.
type SessionWriter interface {
	Create(ctx context.Context, session *domain.Session) error
	Update(ctx context.Context, id string, patch domain.SessionPatch) (*domain.Session, error)
	DeleteByToken(ctx context.Context, token string) error
	DeleteByUserID(ctx context.Context, userID string) error
}

// SessionCache is the fast, volatile tier. Create doubles as cache-fill: it fails with
// domain.ErrStaleSession when a newer version of the session is already cached, and with
// domain.ErrTokenTaken when the token is cached for another session.
type SessionCache interface {
	SessionReader
	SessionWriter
	// Discard removes what Create wrote for session, unless its id no longer maps to its token.
	Discard(ctx context.Context, session *domain.Session) error
	// Scan walks every cached session. Undecodable entries are dropped.
	Scan(ctx context.Context, fn func(*domain.Session) error) error
	// Tokens returns the members of the per-user index.
	Tokens(ctx context.Context, userID string) ([]string, error)
}

// SessionStore is the durable tier and source of truth.
type SessionStore interface {
	SessionReader
	SessionWriter
	// MarkExpired only touches a session whose expiry is not after at; otherwise it
	// reports domain.ErrSessionNotFound.
	MarkExpired(ctx context.Context, id string, at time.Time) error
}

// OperationBuffer accepts database writes that failed so they can be replayed later.
type OperationBuffer interface {
	BufferSession(ctx context.Context, op domain.PendingOperation) error
}

// SessionRepository is the tier-agnostic session store consumed by use cases.
// Reads and deletes never fail; absence is reported as nil.
type SessionRepository interface {
	Create(ctx context.Context, input domain.NewSession) (*domain.Session, error)
	FindByToken(ctx context.Context, token string) *domain.Session
	FindByUserID(ctx context.Context, userID string) []*domain.Session
	Update(ctx context.Context, id string, patch domain.SessionPatch) *domain.Session
	Delete(ctx context.Context, token string)
	DeleteByUserID(ctx context.Context, userID string)
}
