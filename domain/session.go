package domain

import "time"

// SyncStatus describes how a cached session relates to its durable record.
type SyncStatus string

const (
	SyncStatusActive   SyncStatus = "active"
	SyncStatusArchived SyncStatus = "archived"
	SyncStatusExpired  SyncStatus = "expired"
)

// Session represents one authenticated device or browser login.
// LastSyncedAt and SyncStatus are maintained by reconciliation between the cache and the database.
type Session struct {
	ID           string     `json:"id"`
	UserID       string     `json:"userId"`
	Token        string     `json:"token"`
	ExpiresAt    time.Time  `json:"expiresAt"`
	IPAddress    *string    `json:"ipAddress"`
	UserAgent    *string    `json:"userAgent"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	LastSyncedAt time.Time  `json:"lastSyncedAt"`
	SyncStatus   SyncStatus `json:"syncStatus"`
}

// NewSession carries the caller-supplied fields of a session being created.
type NewSession struct {
	UserID    string
	Token     string
	ExpiresAt time.Time
	IPAddress *string
	UserAgent *string
}

// SessionPatch lists the mutable fields of a session. Nil fields are left untouched.
type SessionPatch struct {
	Token     *string    `json:"token,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	IPAddress *string    `json:"ip_address,omitempty"`
	UserAgent *string    `json:"user_agent,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (s *Session) IsExpired(reference time.Time) bool {
	if s == nil {
		return true
	}
	if reference.IsZero() {
		reference = time.Now()
	}
	return !s.ExpiresAt.After(reference)
}

// Apply copies the non-nil patch fields onto the session and bumps UpdatedAt.
func (s *Session) Apply(patch SessionPatch) {
	if patch.Token != nil {
		s.Token = *patch.Token
	}
	if patch.ExpiresAt != nil {
		s.ExpiresAt = *patch.ExpiresAt
	}
	if patch.IPAddress != nil {
		s.IPAddress = patch.IPAddress
	}
	if patch.UserAgent != nil {
		s.UserAgent = patch.UserAgent
	}
	if patch.UpdatedAt.IsZero() {
		patch.UpdatedAt = time.Now()
	}
	s.UpdatedAt = patch.UpdatedAt
}

// Clone returns a copy that shares no pointers with s.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.IPAddress != nil {
		ip := *s.IPAddress
		out.IPAddress = &ip
	}
	if s.UserAgent != nil {
		ua := *s.UserAgent
		out.UserAgent = &ua
	}
	return &out
}

// PendingOperation kinds replayed against the database by the operation buffer.
const (
	PendingDeleteSession = "delete_session"
	PendingDeleteUser    = "delete_user_sessions"
	PendingUpdateSession = "update_session"
	PendingMarkExpired   = "mark_expired"
)

// PendingOperation is a database write that could not be applied when it was issued.
type PendingOperation struct {
	Kind      string        `json:"kind"`
	SessionID string        `json:"session_id,omitempty"`
	Token     string        `json:"token,omitempty"`
	UserID    string        `json:"user_id,omitempty"`
	Patch     *SessionPatch `json:"patch,omitempty"`
	At        time.Time     `json:"at"`
}
