package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/sfgate/internal/gate/domain"
	"github.com/aussiebroadwan/sfgate/pkg/cryptox"
	"golang.org/x/oauth2"
)

const (
	// StateValidityWindow is how long an issued authorization state remains
	// redeemable. Anything older is rejected even if never consumed.
	StateValidityWindow = 5 * time.Minute

	// StateSweepInterval is how often stale pending states are proactively
	// removed to bound memory growth.
	StateSweepInterval = 10 * time.Minute

	authorizePath = "/services/oauth2/authorize"
	tokenPath     = "/services/oauth2/token"
	revokePath    = "/services/oauth2/revoke"
	userInfoPath  = "/services/oauth2/userinfo"
)

// OAuthConfig is the connected-app configuration for the user authorization
// flow.
type OAuthConfig struct {
	LoginURL     string // e.g. https://login.salesforce.com
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string // defaults to "full refresh_token"
}

// OAuthFlow coordinates the authorization-code dance against the platform:
// minting login URLs with CSRF state, redeeming callbacks, exchanging and
// refreshing tokens, and fetching identity. It exclusively owns the pending
// state map; entries are in-memory, time-bounded, and consumed at most once.
type OAuthFlow struct {
	cfg        OAuthConfig
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu      sync.Mutex
	pending map[string]domain.PendingAuth
}

func NewOAuthFlow(cfg OAuthConfig, httpClient *http.Client, logger *slog.Logger) *OAuthFlow {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if len(cfg.Scopes) == 0 {
		cfg.Scopes = []string{"full", "refresh_token"}
	}
	cfg.LoginURL = strings.TrimRight(cfg.LoginURL, "/")

	return &OAuthFlow{
		cfg:        cfg,
		httpClient: httpClient,
		logger:     logger,
		now:        time.Now,
		pending:    make(map[string]domain.PendingAuth),
	}
}

func (f *OAuthFlow) oauth2Config(tokenBase string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     f.cfg.ClientID,
		ClientSecret: f.cfg.ClientSecret,
		RedirectURL:  f.cfg.RedirectURI,
		Scopes:       f.cfg.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   f.cfg.LoginURL + authorizePath,
			TokenURL:  strings.TrimRight(tokenBase, "/") + tokenPath,
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// withClient routes oauth2 library calls through our HTTP client.
func (f *OAuthFlow) withClient(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, f.httpClient)
}

// GenerateAuthURL mints a fresh opaque state, records the pending
// authorization, and builds the authorization-server URL. No side effect on
// the token store.
func (f *OAuthFlow) GenerateAuthURL(userID, sessionID, returnURL string) (string, error) {
	state, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return "", fmt.Errorf("failed to mint state: %w", err)
	}

	f.mu.Lock()
	f.pending[state] = domain.PendingAuth{
		State:     state,
		UserID:    userID,
		SessionID: sessionID,
		ReturnURL: returnURL,
		IssuedAt:  f.now(),
	}
	f.mu.Unlock()

	authURL := f.oauth2Config(f.cfg.LoginURL).AuthCodeURL(state,
		oauth2.SetAuthURLParam("prompt", "login consent"),
	)

	f.logger.Debug("authorization url issued", "session_id", sessionID)
	return authURL, nil
}

// ValidateState consumes a pending authorization exactly once. The entry is
// deleted atomically with the lookup, so a concurrent replay with the same
// state always fails. Unknown, expired, and already-consumed states are
// indistinguishable to the caller.
func (f *OAuthFlow) ValidateState(state string) (domain.PendingAuth, error) {
	f.mu.Lock()
	pending, ok := f.pending[state]
	if ok {
		delete(f.pending, state)
	}
	f.mu.Unlock()

	if !ok {
		return domain.PendingAuth{}, ErrInvalidState
	}
	if pending.Expired(f.now(), StateValidityWindow) {
		return domain.PendingAuth{}, ErrInvalidState
	}
	return pending, nil
}

// SweepExpiredStates removes pending authorizations older than the validity
// window and returns how many were dropped. Run periodically by housekeeping.
func (f *OAuthFlow) SweepExpiredStates() int {
	now := f.now()

	f.mu.Lock()
	defer f.mu.Unlock()

	var removed int
	for state, pending := range f.pending {
		if pending.Expired(now, StateValidityWindow) {
			delete(f.pending, state)
			removed++
		}
	}
	return removed
}

// PendingStateCount reports the number of outstanding authorization
// attempts, for monitoring.
func (f *OAuthFlow) PendingStateCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending)
}

// ExchangeCode redeems an authorization code at the token endpoint. A
// non-success upstream response surfaces as a TokenExchangeError carrying
// the upstream status and body.
func (f *OAuthFlow) ExchangeCode(ctx context.Context, code string) (domain.TokenResponse, error) {
	tok, err := f.oauth2Config(f.cfg.LoginURL).Exchange(f.withClient(ctx), code)
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			return domain.TokenResponse{}, &TokenExchangeError{
				StatusCode: rErr.Response.StatusCode,
				Body:       string(rErr.Body),
				Err:        err,
			}
		}
		return domain.TokenResponse{}, &TokenExchangeError{Err: err}
	}

	return f.mapToken(tok), nil
}

// RefreshToken executes the refresh grant. The instance URL hosts the token
// endpoint when known; otherwise the login host is used.
func (f *OAuthFlow) RefreshToken(ctx context.Context, refreshToken, instanceURL string) (domain.TokenResponse, error) {
	base := instanceURL
	if base == "" {
		base = f.cfg.LoginURL
	}

	src := f.oauth2Config(base).TokenSource(f.withClient(ctx), &oauth2.Token{
		RefreshToken: refreshToken,
	})

	tok, err := src.Token()
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			return domain.TokenResponse{}, &TokenRefreshError{
				StatusCode: rErr.Response.StatusCode,
				Body:       string(rErr.Body),
				Err:        err,
			}
		}
		return domain.TokenResponse{}, &TokenRefreshError{Err: err}
	}

	out := f.mapToken(tok)
	if out.RefreshToken == refreshToken {
		// The platform does not rotate refresh tokens on this grant; don't
		// report it back as new material.
		out.RefreshToken = ""
	}
	return out, nil
}

// RevokeToken invalidates a token upstream. Best-effort by contract: the
// caller logs failures and proceeds with local teardown regardless.
func (f *OAuthFlow) RevokeToken(ctx context.Context, token, instanceURL string) error {
	base := instanceURL
	if base == "" {
		base = f.cfg.LoginURL
	}

	form := url.Values{"token": {token}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(base, "/")+revokePath, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build revoke request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("revoke request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("revoke rejected: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}

// GetUserInfo fetches the identity behind an access token from the
// platform's userinfo endpoint. Also serves as the cheap connection health
// probe.
func (f *OAuthFlow) GetUserInfo(ctx context.Context, accessToken, instanceURL string) (domain.UserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		strings.TrimRight(instanceURL, "/")+userInfoPath, nil)
	if err != nil {
		return domain.UserInfo{}, fmt.Errorf("failed to build userinfo request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return domain.UserInfo{}, fmt.Errorf("userinfo request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.UserInfo{}, fmt.Errorf("failed to read userinfo response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.UserInfo{}, fmt.Errorf("userinfo rejected: status %d: %s", resp.StatusCode, string(body))
	}

	var info domain.UserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return domain.UserInfo{}, fmt.Errorf("failed to decode userinfo: %w", err)
	}
	return info, nil
}

// mapToken converts an oauth2 token into our domain shape, pulling the
// platform's non-standard extras (instance_url) along.
func (f *OAuthFlow) mapToken(tok *oauth2.Token) domain.TokenResponse {
	out := domain.TokenResponse{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		IssuedAt:     f.now().UTC(),
	}

	if v, ok := tok.Extra("instance_url").(string); ok {
		out.InstanceURL = v
	}
	if v, ok := tok.Extra("scope").(string); ok {
		out.Scope = v
	}
	if !tok.Expiry.IsZero() {
		if secs := int64(time.Until(tok.Expiry).Seconds()); secs > 0 {
			out.ExpiresIn = secs
		}
	}
	return out
}
