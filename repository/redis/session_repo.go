package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redislib "github.com/redis/go-redis/v9"

	"github.com/fastygo/sessions/domain"
	"github.com/fastygo/sessions/repository"
)

const (
	sessionKeyPrefix = "session:active:"
	sessionIDPrefix  = "session:id:"
	userIndexPrefix  = "user:sessions:"

	scanBatchSize = 200
)

var errStopScan = errors.New("stop scan")

type sessionRepository struct {
	client redislib.UniversalClient
	ttl    time.Duration
}

// NewSessionRepository creates the Redis-backed session cache.
// Every key it writes carries ttl so entries cannot outlive a stalled reconciliation.
func NewSessionRepository(client redislib.UniversalClient, ttl time.Duration) repository.SessionCache {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &sessionRepository{
		client: client,
		ttl:    ttl,
	}
}

func (r *sessionRepository) FindByToken(ctx context.Context, token string) (*domain.Session, error) {
	payload, err := r.client.Get(ctx, sessionKey(token)).Bytes()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, unavailable(err)
	}
	return decode(payload)
}

func (r *sessionRepository) FindByUserID(ctx context.Context, userID string) ([]*domain.Session, error) {
	tokens, err := r.Tokens(ctx, userID)
	if err != nil || len(tokens) == 0 {
		return nil, err
	}

	keys := make([]string, len(tokens))
	for i, token := range tokens {
		keys[i] = sessionKey(token)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, unavailable(err)
	}

	sessions := make([]*domain.Session, 0, len(values))
	var dangling []interface{}
	var corrupt []string
	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			dangling = append(dangling, tokens[i])
			continue
		}
		session, err := decode([]byte(raw))
		if err != nil {
			dangling = append(dangling, tokens[i])
			corrupt = append(corrupt, keys[i])
			continue
		}
		sessions = append(sessions, session)
	}

	// Index members whose record is gone are pruned so the index stays a subset of the cache.
	if len(dangling) > 0 {
		_, _ = r.client.Pipelined(ctx, func(pipe redislib.Pipeliner) error {
			pipe.SRem(ctx, userKey(userID), dangling...)
			if len(corrupt) > 0 {
				pipe.Del(ctx, corrupt...)
			}
			return nil
		})
	}
	return sessions, nil
}

func (r *sessionRepository) Tokens(ctx context.Context, userID string) ([]string, error) {
	tokens, err := r.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, unavailable(err)
	}
	return tokens, nil
}

func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" || session.Token == "" {
		return domain.ErrInvalidPayload
	}
	payload, err := json.Marshal(session)
	if err != nil {
		return err
	}

	values, err := r.client.MGet(ctx, idKey(session.ID), sessionKey(session.Token)).Result()
	if err != nil {
		return unavailable(err)
	}
	previous, _ := values[0].(string)
	if raw, ok := values[1].(string); ok {
		if owner, err := decode([]byte(raw)); err == nil && owner.ID != session.ID {
			return domain.ErrTokenTaken
		}
	}

	// A write-back after a token rotation must not leave the old token usable, and a
	// fill from an older record must not replace the rotated one.
	if previous != "" && previous != session.Token {
		current, err := r.FindByToken(ctx, previous)
		switch {
		case err == nil:
			if current.UpdatedAt.After(session.UpdatedAt) {
				return domain.ErrStaleSession
			}
		case domain.IsNotFound(err), domain.IsDomainError(err, domain.ErrCodeCorrupt):
		default:
			return err
		}
	}

	_, err = r.client.Pipelined(ctx, func(pipe redislib.Pipeliner) error {
		if previous != "" && previous != session.Token {
			pipe.Del(ctx, sessionKey(previous))
			pipe.SRem(ctx, userKey(session.UserID), previous)
		}
		r.write(ctx, pipe, session, payload)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

// Discard removes the keys written for session, leaving any entry that another
// session has since claimed untouched.
func (r *sessionRepository) Discard(ctx context.Context, session *domain.Session) error {
	token, err := r.client.Get(ctx, idKey(session.ID)).Result()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil
		}
		return unavailable(err)
	}
	if token != session.Token {
		return nil
	}
	return r.DeleteByToken(ctx, token)
}

func (r *sessionRepository) Update(ctx context.Context, id string, patch domain.SessionPatch) (*domain.Session, error) {
	token, err := r.tokenForID(ctx, id)
	if err != nil {
		return nil, err
	}

	current, err := r.FindByToken(ctx, token)
	if err != nil {
		if domain.IsNotFound(err) {
			_ = r.client.Del(ctx, idKey(id)).Err()
		}
		return nil, err
	}

	updated := current.Clone()
	updated.Apply(patch)
	payload, err := json.Marshal(updated)
	if err != nil {
		return nil, err
	}

	_, err = r.client.Pipelined(ctx, func(pipe redislib.Pipeliner) error {
		if updated.Token != current.Token {
			pipe.Del(ctx, sessionKey(current.Token))
			pipe.SRem(ctx, userKey(current.UserID), current.Token)
		}
		r.write(ctx, pipe, updated, payload)
		return nil
	})
	if err != nil {
		return nil, unavailable(err)
	}
	return updated, nil
}

func (r *sessionRepository) DeleteByToken(ctx context.Context, token string) error {
	key := sessionKey(token)
	payload, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redislib.Nil) {
			return nil
		}
		return unavailable(err)
	}
	current, decodeErr := decode(payload)

	_, err = r.client.Pipelined(ctx, func(pipe redislib.Pipeliner) error {
		pipe.Del(ctx, key)
		if decodeErr == nil {
			pipe.SRem(ctx, userKey(current.UserID), token)
			pipe.Del(ctx, idKey(current.ID))
		}
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *sessionRepository) DeleteByUserID(ctx context.Context, userID string) error {
	tokens, err := r.Tokens(ctx, userID)
	if err != nil {
		return err
	}

	keys := make([]string, 0, len(tokens)*2+1)
	if len(tokens) > 0 {
		sessionKeys := make([]string, len(tokens))
		for i, token := range tokens {
			sessionKeys[i] = sessionKey(token)
		}
		values, err := r.client.MGet(ctx, sessionKeys...).Result()
		if err != nil {
			return unavailable(err)
		}
		for _, value := range values {
			if raw, ok := value.(string); ok {
				if session, err := decode([]byte(raw)); err == nil {
					keys = append(keys, idKey(session.ID))
				}
			}
		}
		keys = append(keys, sessionKeys...)
	}
	keys = append(keys, userKey(userID))

	_, err = r.client.Pipelined(ctx, func(pipe redislib.Pipeliner) error {
		pipe.Del(ctx, keys...)
		return nil
	})
	if err != nil {
		return unavailable(err)
	}
	return nil
}

func (r *sessionRepository) Scan(ctx context.Context, fn func(*domain.Session) error) error {
	iter := r.client.Scan(ctx, 0, sessionKeyPrefix+"*", scanBatchSize).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		payload, err := r.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redislib.Nil) {
				continue
			}
			return unavailable(err)
		}
		session, err := decode(payload)
		if err != nil {
			_ = r.client.Del(ctx, key).Err()
			continue
		}
		if err := fn(session); err != nil {
			return err
		}
	}
	if err := iter.Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// tokenForID resolves a session id through the id index, scanning the keyspace
// for entries that were cached without one.
func (r *sessionRepository) tokenForID(ctx context.Context, id string) (string, error) {
	token, err := r.client.Get(ctx, idKey(id)).Result()
	if err == nil {
		return token, nil
	}
	if !errors.Is(err, redislib.Nil) {
		return "", unavailable(err)
	}

	var found string
	err = r.Scan(ctx, func(session *domain.Session) error {
		if session.ID == id {
			found = session.Token
			return errStopScan
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopScan) {
		return "", err
	}
	if found == "" {
		return "", domain.ErrSessionNotFound
	}
	return found, nil
}

func (r *sessionRepository) write(ctx context.Context, pipe redislib.Pipeliner, session *domain.Session, payload []byte) {
	pipe.Set(ctx, sessionKey(session.Token), payload, r.ttl)
	pipe.Set(ctx, idKey(session.ID), session.Token, r.ttl)
	pipe.SAdd(ctx, userKey(session.UserID), session.Token)
	pipe.Expire(ctx, userKey(session.UserID), r.ttl)
}

func decode(payload []byte) (*domain.Session, error) {
	var session domain.Session
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, domain.WrapError(domain.ErrCodeCorrupt, "redis: corrupt session payload", err)
	}
	if session.Token == "" || session.ID == "" {
		return nil, domain.NewError(domain.ErrCodeCorrupt, "redis: session payload missing identity")
	}
	return &session, nil
}

func unavailable(err error) error {
	return domain.Unavailable("redis", err)
}

func sessionKey(token string) string {
	return sessionKeyPrefix + token
}

func idKey(id string) string {
	return sessionIDPrefix + id
}

func userKey(userID string) string {
	return userIndexPrefix + userID
}
