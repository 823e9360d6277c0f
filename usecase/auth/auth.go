package auth

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/fastygo/sessions/domain"
	"github.com/fastygo/sessions/pkg/logger"
	"github.com/fastygo/sessions/pkg/token"
	"github.com/fastygo/sessions/repository"
)

// TokenIssuer signs and verifies session tokens.
type TokenIssuer interface {
	Issue(userID string, ttl time.Duration) (string, time.Time, error)
	Verify(raw string) (*token.Claims, error)
}

// LoginInput describes a new session request.
type LoginInput struct {
	UserID    string
	TTL       time.Duration
	IPAddress *string
	UserAgent *string
}

// Principal is the authenticated caller of a request.
type Principal struct {
	User    *domain.User
	Session *domain.Session
}

type UseCase struct {
	users      repository.UserRepository
	sessions   repository.SessionRepository
	tokens     TokenIssuer
	defaultTTL time.Duration
	logger     *zap.Logger
}

func New(
	users repository.UserRepository,
	sessions repository.SessionRepository,
	tokens TokenIssuer,
	defaultTTL time.Duration,
	logger *zap.Logger,
) *UseCase {
	if logger == nil {
		logger = zap.NewNop()
	}
	if defaultTTL <= 0 {
		defaultTTL = 24 * time.Hour
	}
	return &UseCase{
		users:      users,
		sessions:   sessions,
		tokens:     tokens,
		defaultTTL: defaultTTL,
		logger:     logger.Named("auth"),
	}
}

// Login opens a session for an active user.
func (uc *UseCase) Login(ctx context.Context, input LoginInput) (*domain.Session, error) {
	if input.UserID == "" {
		return nil, domain.ErrInvalidPayload
	}
	user, err := uc.users.GetByID(ctx, input.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive() {
		return nil, domain.ErrForbidden
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = uc.defaultTTL
	}
	raw, expiresAt, err := uc.tokens.Issue(user.ID, ttl)
	if err != nil {
		return nil, err
	}

	session, err := uc.sessions.Create(ctx, domain.NewSession{
		UserID:    user.ID,
		Token:     raw,
		ExpiresAt: expiresAt,
		IPAddress: input.IPAddress,
		UserAgent: input.UserAgent,
	})
	if err != nil {
		return nil, err
	}
	logger.WithRequestID(ctx, uc.logger).Info("session opened",
		zap.String("user_id", user.ID),
		zap.String("session_id", session.ID),
		zap.Time("expires_at", session.ExpiresAt),
	)
	return session, nil
}

// Authenticate resolves a bearer token to its live session and user.
func (uc *UseCase) Authenticate(ctx context.Context, raw string) (*Principal, error) {
	if raw == "" {
		return nil, domain.ErrUnauthorized
	}
	claims, err := uc.tokens.Verify(raw)
	if err != nil {
		return nil, err
	}

	session := uc.sessions.FindByToken(ctx, raw)
	if session == nil || session.UserID != claims.Subject {
		return nil, domain.ErrUnauthorized
	}

	user, err := uc.users.GetByID(ctx, session.UserID)
	if err != nil {
		if domain.IsNotFound(err) {
			return nil, domain.ErrUnauthorized
		}
		return nil, err
	}
	if !user.IsActive() {
		uc.sessions.Delete(ctx, raw)
		return nil, domain.ErrForbidden
	}
	return &Principal{User: user, Session: session}, nil
}

// Refresh rotates the session token and extends its expiry. The old token stops
// authenticating immediately.
func (uc *UseCase) Refresh(ctx context.Context, session *domain.Session, ttl time.Duration) (*domain.Session, error) {
	if session == nil {
		return nil, domain.ErrInvalidPayload
	}
	if ttl <= 0 {
		ttl = uc.defaultTTL
	}
	raw, expiresAt, err := uc.tokens.Issue(session.UserID, ttl)
	if err != nil {
		return nil, err
	}

	updated := uc.sessions.Update(ctx, session.ID, domain.SessionPatch{
		Token:     &raw,
		ExpiresAt: &expiresAt,
	})
	if updated == nil {
		return nil, domain.ErrSessionNotFound
	}
	logger.WithRequestID(ctx, uc.logger).Info("session refreshed",
		zap.String("session_id", updated.ID),
		logger.Token(session.Token),
	)
	return updated, nil
}

func (uc *UseCase) Logout(ctx context.Context, raw string) {
	uc.sessions.Delete(ctx, raw)
}

// LogoutAll revokes every session of the user.
func (uc *UseCase) LogoutAll(ctx context.Context, userID string) {
	uc.sessions.DeleteByUserID(ctx, userID)
	logger.WithRequestID(ctx, uc.logger).Info("all sessions revoked", zap.String("user_id", userID))
}

func (uc *UseCase) ListSessions(ctx context.Context, userID string) []*domain.Session {
	return uc.sessions.FindByUserID(ctx, userID)
}
