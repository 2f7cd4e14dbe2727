package domain

import "time"

// AuthMode selects how a connection to the platform is established.
type AuthMode string

const (
	// AuthModePassword logs in with username/password plus the account's
	// security token appended, via the password grant.
	AuthModePassword AuthMode = "password"

	// AuthModeClientCredentials performs a machine-to-machine
	// client_credentials exchange against the token endpoint.
	AuthModeClientCredentials AuthMode = "client_credentials"

	// AuthModeJWTBearer signs a short-lived RS256 assertion with a connected
	// app certificate and exchanges it via the jwt-bearer grant.
	AuthModeJWTBearer AuthMode = "jwt_bearer"
)

// ConnConfig describes the authentication context for one connection
// establishment. Secret fields never participate in cache fingerprinting.
type ConnConfig struct {
	Mode     AuthMode
	LoginURL string // authorization server base, e.g. https://login.salesforce.com

	ClientID     string
	ClientSecret string

	// Password mode only.
	Username      string
	Password      string
	SecurityToken string

	// JWT bearer mode only: PEM-encoded RSA private key of the connected app.
	PrivateKeyPEM []byte
}

// Connection is a live, validated handle to the platform. It carries
// everything a pass-through CRM call needs.
type Connection struct {
	ID          string // correlation id for auditing
	InstanceURL string
	AccessToken string
	IssuedAt    time.Time
}

// TokenResponse is what the platform's token endpoint returns, across all
// grant types. InstanceURL comes back as a non-standard extra field.
type TokenResponse struct {
	AccessToken  string
	RefreshToken string
	InstanceURL  string
	TokenType    string
	Scope        string
	IssuedAt     time.Time
	ExpiresIn    int64 // seconds; 0 when the platform omits it
}

// ExpiresAt converts ExpiresIn into an absolute expiry, or nil if unknown.
func (t TokenResponse) ExpiresAt(now time.Time) *time.Time {
	if t.ExpiresIn <= 0 {
		return nil
	}
	at := now.Add(time.Duration(t.ExpiresIn) * time.Second)
	return &at
}

// UserInfo is the identity payload from the platform's userinfo endpoint.
type UserInfo struct {
	UserID         string `json:"user_id"`
	OrganizationID string `json:"organization_id"`
	Username       string `json:"preferred_username"`
	DisplayName    string `json:"name"`
	Email          string `json:"email"`
}
