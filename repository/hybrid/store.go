// Package hybrid serves sessions from a Redis cache backed by the Postgres record of truth.
//
// The cache is an optimization only: every operation has a defined result when Redis is
// unreachable. Postgres failures surface to the caller only from Create; reads degrade to
// "no session".
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/fastygo/sessions/domain"
	"github.com/fastygo/sessions/internal/infrastructure/metrics"
	"github.com/fastygo/sessions/pkg/logger"
	"github.com/fastygo/sessions/repository"
)

// DefaultReconcileInterval is how often expired cache entries are swept.
const DefaultReconcileInterval = 5 * time.Minute

// Config tunes the store.
type Config struct {
	ReconcileInterval time.Duration
}

// Store composes the cache and database tiers.
type Store struct {
	cache   repository.SessionCache
	durable repository.SessionStore
	buffer  repository.OperationBuffer
	metrics *metrics.Sessions
	logger  *zap.Logger
	cfg     Config
	now     func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// New wires a store. buffer and m may be nil. Reconciliation does not run until Start.
func New(
	cache repository.SessionCache,
	durable repository.SessionStore,
	buffer repository.OperationBuffer,
	m *metrics.Sessions,
	log *zap.Logger,
	cfg Config,
) *Store {
	if cfg.ReconcileInterval <= 0 {
		cfg.ReconcileInterval = DefaultReconcileInterval
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{
		cache:   cache,
		durable: durable,
		buffer:  buffer,
		metrics: m,
		logger:  log.Named("sessions"),
		cfg:     cfg,
		now:     time.Now,
	}
}

var _ repository.SessionRepository = (*Store)(nil)

// Create persists a new session. A cache failure is tolerated; a database failure is not,
// and the error of the tier that failed first is returned.
func (s *Store) Create(ctx context.Context, input domain.NewSession) (*domain.Session, error) {
	if input.UserID == "" || input.Token == "" {
		return nil, domain.ErrInvalidPayload
	}
	id, err := uuid.NewV7()
	if err != nil {
		return nil, domain.WrapError(domain.ErrCodeInternal, "generate session id", err)
	}

	now := s.now()
	session := &domain.Session{
		ID:           id.String(),
		UserID:       input.UserID,
		Token:        input.Token,
		ExpiresAt:    input.ExpiresAt,
		IPAddress:    input.IPAddress,
		UserAgent:    input.UserAgent,
		CreatedAt:    now,
		UpdatedAt:    now,
		LastSyncedAt: now,
		SyncStatus:   domain.SyncStatusActive,
	}

	cacheErr := s.cache.Create(ctx, session)
	if cacheErr != nil {
		s.cacheFailure(ctx, "create", cacheErr, zap.String("session_id", session.ID))
	}

	if err := s.durable.Create(ctx, session); err != nil {
		s.databaseFailure(ctx, "create", err, zap.String("session_id", session.ID), zap.String("user_id", session.UserID))
		// A cached session without a database record would authenticate until its TTL.
		if cacheErr == nil {
			if delErr := s.cache.Discard(ctx, session); delErr != nil {
				s.cacheFailure(ctx, "create_rollback", delErr, zap.String("session_id", session.ID))
			}
		}
		first := err
		if cacheErr != nil {
			first = cacheErr
		}
		return nil, fmt.Errorf("create session: %w", first)
	}

	// The database accepted the token, so the cached owner is a leftover of a deleted session.
	if errors.Is(cacheErr, domain.ErrTokenTaken) {
		if err := s.cache.DeleteByToken(ctx, session.Token); err != nil {
			s.cacheFailure(ctx, "create_evict_stale", err, zap.String("session_id", session.ID))
		} else if err := s.cache.Create(ctx, session); err != nil {
			s.cacheFailure(ctx, "create", err, zap.String("session_id", session.ID))
		}
	}
	return session, nil
}

// FindByToken returns the live session for token, or nil. Tier errors are never returned.
func (s *Store) FindByToken(ctx context.Context, token string) *domain.Session {
	if token == "" {
		return nil
	}
	now := s.now()

	session, err := s.cache.FindByToken(ctx, token)
	switch {
	case err == nil:
		if session.IsExpired(now) {
			s.Delete(ctx, token)
			return nil
		}
		return session
	case domain.IsNotFound(err):
	default:
		s.cacheFailure(ctx, "find_by_token", err, logger.Token(token))
		if domain.IsDomainError(err, domain.ErrCodeCorrupt) {
			if err := s.cache.DeleteByToken(ctx, token); err != nil {
				s.cacheFailure(ctx, "evict_corrupt", err, logger.Token(token))
			}
		}
	}

	session, err = s.durable.FindByToken(ctx, token)
	if err != nil {
		if !domain.IsNotFound(err) {
			s.databaseFailure(ctx, "find_by_token", err, logger.Token(token))
		}
		return nil
	}
	if session.IsExpired(now) {
		s.Delete(ctx, token)
		return nil
	}

	session.SyncStatus = domain.SyncStatusActive
	session.LastSyncedAt = now
	err = s.cache.Create(ctx, session)
	switch {
	case err == nil:
		s.metrics.CacheFill()
	case errors.Is(err, domain.ErrStaleSession):
		// The token was rotated and the database has not caught up yet.
		s.log(ctx).Info("rejecting superseded session token", zap.String("session_id", session.ID))
		return nil
	default:
		s.cacheFailure(ctx, "cache_fill", err, zap.String("session_id", session.ID))
	}
	return session
}

// FindByUserID merges cached and stored sessions of a user, deduplicated by token,
// keeping only unexpired ones.
func (s *Store) FindByUserID(ctx context.Context, userID string) []*domain.Session {
	now := s.now()
	result := make([]*domain.Session, 0)
	seen := make(map[string]struct{})

	cached, err := s.cache.FindByUserID(ctx, userID)
	if err != nil {
		s.cacheFailure(ctx, "find_by_user", err, zap.String("user_id", userID))
	}
	for _, session := range cached {
		seen[session.Token] = struct{}{}
		if !session.IsExpired(now) {
			result = append(result, session)
		}
	}

	stored, err := s.durable.FindByUserID(ctx, userID)
	if err != nil {
		s.databaseFailure(ctx, "find_by_user", err, zap.String("user_id", userID))
	}
	for _, session := range stored {
		if _, ok := seen[session.Token]; ok {
			continue
		}
		seen[session.Token] = struct{}{}
		if !session.IsExpired(now) {
			result = append(result, session)
		}
	}
	return result
}

// Update applies patch to the session with the given id and returns the new version,
// or nil when no tier holds it. The database decides whether the session still exists.
func (s *Store) Update(ctx context.Context, id string, patch domain.SessionPatch) *domain.Session {
	if patch.UpdatedAt.IsZero() {
		patch.UpdatedAt = s.now()
	}

	updated, err := s.cache.Update(ctx, id, patch)
	switch {
	case err == nil:
		_, dbErr := s.durable.Update(ctx, id, patch)
		if dbErr == nil {
			return updated
		}
		if domain.IsNotFound(dbErr) {
			s.log(ctx).Warn("cached session has no database record, evicting", zap.String("session_id", id))
			if err := s.cache.DeleteByToken(ctx, updated.Token); err != nil {
				s.cacheFailure(ctx, "update_evict", err, zap.String("session_id", id))
			}
			return nil
		}
		s.databaseFailure(ctx, "update", dbErr, zap.String("session_id", id))
		s.deferWrite(ctx, domain.PendingOperation{
			Kind:      domain.PendingUpdateSession,
			SessionID: id,
			Patch:     &patch,
		})
		return updated
	case domain.IsNotFound(err):
	default:
		s.cacheFailure(ctx, "update", err, zap.String("session_id", id))
	}

	stored, err := s.durable.Update(ctx, id, patch)
	if err != nil {
		if !domain.IsNotFound(err) {
			s.databaseFailure(ctx, "update", err, zap.String("session_id", id))
		}
		return nil
	}
	if err := s.cache.Create(ctx, stored); err != nil {
		s.log(ctx).Debug("cache write-back after update failed", zap.String("session_id", id), zap.Error(err))
	}
	return stored
}

// Delete removes the session from both tiers. It never fails.
func (s *Store) Delete(ctx context.Context, token string) {
	if err := s.cache.DeleteByToken(ctx, token); err != nil {
		s.cacheFailure(ctx, "delete", err, logger.Token(token))
	}
	if err := s.durable.DeleteByToken(ctx, token); err != nil {
		s.databaseFailure(ctx, "delete", err, logger.Token(token))
		s.deferWrite(ctx, domain.PendingOperation{Kind: domain.PendingDeleteSession, Token: token})
	}
}

// DeleteByUserID removes every session of the user from both tiers, independently.
func (s *Store) DeleteByUserID(ctx context.Context, userID string) {
	if err := s.cache.DeleteByUserID(ctx, userID); err != nil {
		s.cacheFailure(ctx, "delete_by_user", err, zap.String("user_id", userID))
	}
	if err := s.durable.DeleteByUserID(ctx, userID); err != nil {
		s.databaseFailure(ctx, "delete_by_user", err, zap.String("user_id", userID))
		s.deferWrite(ctx, domain.PendingOperation{Kind: domain.PendingDeleteUser, UserID: userID})
	}
}

// deferWrite hands a failed database write to the operation buffer. It reports whether the
// buffer accepted it.
func (s *Store) deferWrite(ctx context.Context, op domain.PendingOperation) bool {
	if s.buffer == nil {
		return false
	}
	if op.At.IsZero() {
		op.At = s.now()
	}
	if err := s.buffer.BufferSession(ctx, op); err != nil {
		s.log(ctx).Error("failed to buffer session write", zap.String("operation", op.Kind), zap.Error(err))
		return false
	}
	s.metrics.Buffered(op.Kind)
	return true
}

func (s *Store) cacheFailure(ctx context.Context, operation string, err error, fields ...zap.Field) {
	s.metrics.TierError(metrics.TierCache, operation)
	fields = append(fields,
		zap.String("operation", operation),
		zap.String("tier", metrics.TierCache),
		zap.Error(err),
	)
	s.log(ctx).Warn("session cache call failed", fields...)
}

func (s *Store) databaseFailure(ctx context.Context, operation string, err error, fields ...zap.Field) {
	s.metrics.TierError(metrics.TierDatabase, operation)
	fields = append(fields,
		zap.String("operation", operation),
		zap.String("tier", metrics.TierDatabase),
		zap.Error(err),
	)
	s.log(ctx).Error("session database call failed", fields...)
}

func (s *Store) log(ctx context.Context) *zap.Logger {
	return logger.WithRequestID(ctx, s.logger)
}
