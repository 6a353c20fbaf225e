package entity

import "time"

// Session stores a server-side session record addressed by an opaque bearer token.
type Session struct {
	ID        string    `gorm:"primaryKey;size:36" json:"id"`
	Token     string    `gorm:"size:64;not null;uniqueIndex" json:"-"`
	UserID    uint      `gorm:"not null;index" json:"user_id"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	IPAddress string    `gorm:"size:50;not null;default:''" json:"ip_address"`
	UserAgent string    `gorm:"type:text;not null;default:''" json:"user_agent"`
	CreatedAt time.Time `gorm:"not null" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

// NewSession creates a session entity with a precomputed id and opaque token.
func NewSession(id, token string, userID uint, ipAddress, userAgent string, expiresAt time.Time) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		Token:     token,
		UserID:    userID,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		ExpiresAt: expiresAt,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// IsExpired reports whether the session has passed its expiry.
func (s *Session) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.After(now)
}

// RemainingLifetime returns time left until expiry (negative when expired).
func (s *Session) RemainingLifetime(now time.Time) time.Duration {
	return s.ExpiresAt.Sub(now)
}

// SessionInfo returns safe session details for clients. The raw token is never included.
func (s *Session) SessionInfo() map[string]interface{} {
	return map[string]interface{}{
		"id":         s.ID,
		"user_id":    s.UserID,
		"ip_address": s.IPAddress,
		"user_agent": s.UserAgent,
		"created_at": s.CreatedAt,
		"expires_at": s.ExpiresAt,
	}
}

func (Session) TableName() string {
	return "sessions"
}
