package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/fastygo/sessions/domain"
	"github.com/fastygo/sessions/repository"
)

const sessionColumns = `id, user_id, token, expires_at, ip_address, user_agent, sync_status, last_synced_at, created_at, updated_at`

type sessionRepository struct {
	db DB
}

// NewSessionRepository instantiates the Postgres-backed session store, the source of truth for sessions.
func NewSessionRepository(db DB) repository.SessionStore {
	return &sessionRepository{db: db}
}

func (r *sessionRepository) Create(ctx context.Context, session *domain.Session) error {
	if session == nil || session.ID == "" || session.Token == "" || session.UserID == "" {
		return domain.ErrInvalidPayload
	}

	const query = `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	status := session.SyncStatus
	if status == "" {
		status = domain.SyncStatusActive
	}

	_, err := r.db.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.Token,
		session.ExpiresAt,
		session.IPAddress,
		session.UserAgent,
		string(status),
		nullTime(session.LastSyncedAt),
		session.CreatedAt,
		session.UpdatedAt,
	)
	return classify(err, domain.ErrSessionNotFound)
}

func (r *sessionRepository) FindByToken(ctx context.Context, token string) (*domain.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE token = $1`
	session, err := scanSession(r.db.QueryRow(ctx, query, token))
	if err != nil {
		return nil, classify(err, domain.ErrSessionNotFound)
	}
	return session, nil
}

func (r *sessionRepository) FindByUserID(ctx context.Context, userID string) ([]*domain.Session, error) {
	const query = `SELECT ` + sessionColumns + ` FROM sessions WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, classify(err, domain.ErrSessionNotFound)
	}
	defer rows.Close()

	var sessions []*domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, classify(err, domain.ErrSessionNotFound)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err, domain.ErrSessionNotFound)
	}
	return sessions, nil
}

func (r *sessionRepository) Update(ctx context.Context, id string, patch domain.SessionPatch) (*domain.Session, error) {
	const query = `
		UPDATE sessions
		SET token = COALESCE($2, token),
			expires_at = COALESCE($3, expires_at),
			ip_address = COALESCE($4, ip_address),
			user_agent = COALESCE($5, user_agent),
			updated_at = $6
		WHERE id = $1
		RETURNING ` + sessionColumns

	updatedAt := patch.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	session, err := scanSession(r.db.QueryRow(ctx, query,
		id,
		patch.Token,
		patch.ExpiresAt,
		patch.IPAddress,
		patch.UserAgent,
		updatedAt,
	))
	if err != nil {
		return nil, classify(err, domain.ErrSessionNotFound)
	}
	return session, nil
}

func (r *sessionRepository) DeleteByToken(ctx context.Context, token string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE token = $1`, token)
	return classify(err, domain.ErrSessionNotFound)
}

func (r *sessionRepository) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM sessions WHERE user_id = $1`, userID)
	return classify(err, domain.ErrSessionNotFound)
}

// MarkExpired flags a session whose expiry has passed by at. A session extended since then
// is left alone and reported as not found.
func (r *sessionRepository) MarkExpired(ctx context.Context, id string, at time.Time) error {
	const query = `
		UPDATE sessions
		SET sync_status = $2, last_synced_at = $3
		WHERE id = $1 AND expires_at <= $3
	`
	tag, err := r.db.Exec(ctx, query, id, string(domain.SyncStatusExpired), at)
	if err != nil {
		return classify(err, domain.ErrSessionNotFound)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		session    domain.Session
		status     string
		lastSynced *time.Time
	)
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.Token,
		&session.ExpiresAt,
		&session.IPAddress,
		&session.UserAgent,
		&status,
		&lastSynced,
		&session.CreatedAt,
		&session.UpdatedAt,
	); err != nil {
		return nil, err
	}
	session.SyncStatus = domain.SyncStatus(status)
	session.LastSyncedAt = timeFromPtr(lastSynced)
	return &session, nil
}
