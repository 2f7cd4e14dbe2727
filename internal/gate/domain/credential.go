package domain

import "time"

// Credential is the decrypted OAuth material the broker holds for a user.
// It is owned by the token store and only ever mutated through refresh or a
// fresh authorization.
type Credential struct {
	UserID       string
	SessionID    string
	AccessToken  string
	RefreshToken string
	InstanceURL  string
	CreatedAt    time.Time
	ExpiresAt    *time.Time // nil when the platform did not report an expiry
	LastUsed     time.Time
}

// Age returns how long ago the credential was created, relative to now.
func (c Credential) Age(now time.Time) time.Duration {
	return now.Sub(c.CreatedAt)
}

// ConnectionRecord is the persisted shape of a credential. Token fields are
// ciphertext; the store never writes plaintext tokens to the backend.
type ConnectionRecord struct {
	UserID                string
	SessionID             string
	AccessTokenEncrypted  string
	RefreshTokenEncrypted string
	InstanceURL           string
	CreatedAt             time.Time
	ExpiresAt             *time.Time
	LastUsed              time.Time
}

// TokenUpdate carries a partial credential mutation. Nil fields are left
// untouched by the store.
type TokenUpdate struct {
	AccessToken  *string
	RefreshToken *string
	InstanceURL  *string
	ExpiresAt    *time.Time
}
