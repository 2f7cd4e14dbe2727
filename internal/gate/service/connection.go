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
	"github.com/aussiebroadwan/sfgate/pkg/idx"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/sync/singleflight"
)

// ConnectionTTL is how long a cached connection stays valid after its last
// successful health check.
const ConnectionTTL = 10 * time.Minute

// jwtAssertionTTL bounds the lifetime of a signed jwt-bearer assertion.
const jwtAssertionTTL = 3 * time.Minute

// IdentityProber verifies a bearer token is still live on the platform.
// OAuthFlow satisfies this with its userinfo call.
type IdentityProber interface {
	GetUserInfo(ctx context.Context, accessToken, instanceURL string) (domain.UserInfo, error)
}

type cacheEntry struct {
	conn      domain.Connection
	expiresAt time.Time
}

// ConnectionCache maps an authentication fingerprint to a live,
// health-checked connection handle. Concurrent establishment attempts for
// the same fingerprint are collapsed: at most one is in flight, and every
// caller observes its outcome.
type ConnectionCache struct {
	Identity   IdentityProber
	HTTPClient *http.Client
	Logger     *slog.Logger
	TTL        time.Duration // defaults to ConnectionTTL

	now func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
	group   singleflight.Group
}

func NewConnectionCache(identity IdentityProber, httpClient *http.Client, logger *slog.Logger) *ConnectionCache {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &ConnectionCache{
		Identity:   identity,
		HTTPClient: httpClient,
		Logger:     logger,
		TTL:        ConnectionTTL,
		now:        time.Now,
		entries:    make(map[string]cacheEntry),
	}
}

// GetConnection returns a live handle for the given authentication config,
// establishing one if the cache has no healthy entry.
func (c *ConnectionCache) GetConnection(ctx context.Context, cfg domain.ConnConfig) (domain.Connection, error) {
	fp := fingerprintConfig(cfg)
	return c.get(ctx, fp, "", func(ctx context.Context) (domain.Connection, error) {
		return c.establish(ctx, cfg)
	})
}

// GetForCredential returns a cached handle for a user's stored OAuth
// credential. Establishment here is just a liveness probe of the presented
// token; a cached entry holding a superseded token is evicted so the fresh
// one takes its place.
func (c *ConnectionCache) GetForCredential(ctx context.Context, cred domain.Credential) (domain.Connection, error) {
	fp := cryptox.Fingerprint("session", hostOf(cred.InstanceURL), cred.UserID)
	return c.get(ctx, fp, cred.AccessToken, func(ctx context.Context) (domain.Connection, error) {
		if _, err := c.Identity.GetUserInfo(ctx, cred.AccessToken, cred.InstanceURL); err != nil {
			return domain.Connection{}, classifyProbeError(err)
		}
		return domain.Connection{
			ID:          idx.New().String(),
			InstanceURL: cred.InstanceURL,
			AccessToken: cred.AccessToken,
			IssuedAt:    c.now().UTC(),
		}, nil
	})
}

// get implements the cache algorithm: probe and reuse a live entry, else
// collapse concurrent establishment behind singleflight and populate the
// entry on success. wantToken, when set, invalidates entries whose bearer
// token has been superseded (e.g. by a refresh).
func (c *ConnectionCache) get(ctx context.Context, fp, wantToken string, establish func(context.Context) (domain.Connection, error)) (domain.Connection, error) {
	if conn, ok := c.lookup(fp, wantToken); ok {
		if _, err := c.Identity.GetUserInfo(ctx, conn.AccessToken, conn.InstanceURL); err == nil {
			c.store(fp, conn)
			return conn, nil
		}
		c.Logger.Info("cached connection failed health check, evicting", "fingerprint", fp)
		c.evict(fp)
	}

	v, err, shared := c.group.Do(fp, func() (out any, err error) {
		// The in-flight marker (singleflight's internal entry) is cleared on
		// return regardless of outcome; the cache entry is only written on
		// success.
		conn, err := establish(ctx)
		if err != nil {
			return domain.Connection{}, err
		}
		c.store(fp, conn)
		return conn, nil
	})
	if err != nil {
		var connErr *ConnectionError
		if !errors.As(err, &connErr) {
			err = &ConnectionError{Retryable: true, Err: err}
		}
		return domain.Connection{}, err
	}

	if shared {
		c.Logger.Debug("connection establishment deduplicated", "fingerprint", fp)
	}
	return v.(domain.Connection), nil
}

func (c *ConnectionCache) lookup(fp, wantToken string) (domain.Connection, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[fp]
	if !ok || c.now().After(entry.expiresAt) {
		delete(c.entries, fp)
		return domain.Connection{}, false
	}
	if wantToken != "" && entry.conn.AccessToken != wantToken {
		// Stored credential rotated underneath this entry.
		delete(c.entries, fp)
		return domain.Connection{}, false
	}
	return entry.conn, true
}

func (c *ConnectionCache) store(fp string, conn domain.Connection) {
	ttl := c.TTL
	if ttl <= 0 {
		ttl = ConnectionTTL
	}

	c.mu.Lock()
	c.entries[fp] = cacheEntry{conn: conn, expiresAt: c.now().Add(ttl)}
	c.mu.Unlock()
}

func (c *ConnectionCache) evict(fp string) {
	c.mu.Lock()
	delete(c.entries, fp)
	c.mu.Unlock()
}

// Size reports the number of cached entries, for monitoring.
func (c *ConnectionCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// establish performs the actual login for a configured authentication mode.
func (c *ConnectionCache) establish(ctx context.Context, cfg domain.ConnConfig) (domain.Connection, error) {
	var tok domain.TokenResponse
	var err error

	switch cfg.Mode {
	case domain.AuthModePassword:
		tok, err = c.passwordLogin(ctx, cfg)
	case domain.AuthModeClientCredentials:
		tok, err = c.clientCredentialsLogin(ctx, cfg)
	case domain.AuthModeJWTBearer:
		tok, err = c.jwtBearerLogin(ctx, cfg)
	default:
		return domain.Connection{}, &ConnectionError{
			Retryable: false,
			Err:       fmt.Errorf("unknown authentication mode %q", cfg.Mode),
		}
	}
	if err != nil {
		return domain.Connection{}, err
	}

	conn := domain.Connection{
		ID:          idx.New().String(),
		InstanceURL: tok.InstanceURL,
		AccessToken: tok.AccessToken,
		IssuedAt:    c.now().UTC(),
	}

	c.Logger.Info("connection established",
		"conn_id", conn.ID, "mode", string(cfg.Mode), "instance", hostOf(conn.InstanceURL))
	return conn, nil
}

// passwordLogin performs the password grant with the account's security
// token appended, the legacy direct-credential mode.
func (c *ConnectionCache) passwordLogin(ctx context.Context, cfg domain.ConnConfig) (domain.TokenResponse, error) {
	form := url.Values{
		"grant_type":    {"password"},
		"client_id":     {cfg.ClientID},
		"client_secret": {cfg.ClientSecret},
		"username":      {cfg.Username},
		"password":      {cfg.Password + cfg.SecurityToken},
	}
	return c.postTokenForm(ctx, cfg.LoginURL, form)
}

func (c *ConnectionCache) clientCredentialsLogin(ctx context.Context, cfg domain.ConnConfig) (domain.TokenResponse, error) {
	conf := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     strings.TrimRight(cfg.LoginURL, "/") + tokenPath,
		AuthStyle:    oauth2.AuthStyleInParams,
	}

	tok, err := conf.Token(context.WithValue(ctx, oauth2.HTTPClient, c.HTTPClient))
	if err != nil {
		var rErr *oauth2.RetrieveError
		if errors.As(err, &rErr) {
			return domain.TokenResponse{}, &ConnectionError{
				Retryable: retryableStatus(rErr.Response.StatusCode),
				Err:       fmt.Errorf("client credentials login rejected: status %d: %s", rErr.Response.StatusCode, string(rErr.Body)),
			}
		}
		return domain.TokenResponse{}, &ConnectionError{Retryable: true, Err: err}
	}

	out := domain.TokenResponse{
		AccessToken: tok.AccessToken,
		TokenType:   tok.TokenType,
		IssuedAt:    c.now().UTC(),
	}
	if v, ok := tok.Extra("instance_url").(string); ok {
		out.InstanceURL = v
	}
	return out, nil
}

// jwtBearerLogin signs a short-lived RS256 assertion with the connected
// app's certificate key and exchanges it for an access token.
func (c *ConnectionCache) jwtBearerLogin(ctx context.Context, cfg domain.ConnConfig) (domain.TokenResponse, error) {
	key, err := cryptox.ParseRSAPrivateKeyPEM(cfg.PrivateKeyPEM)
	if err != nil {
		return domain.TokenResponse{}, &ConnectionError{Retryable: false, Err: err}
	}

	now := c.now()
	claims := jwt.RegisteredClaims{
		Issuer:    cfg.ClientID,
		Subject:   cfg.Username,
		Audience:  jwt.ClaimStrings{cfg.LoginURL},
		ExpiresAt: jwt.NewNumericDate(now.Add(jwtAssertionTTL)),
		IssuedAt:  jwt.NewNumericDate(now),
	}

	assertion, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(key)
	if err != nil {
		return domain.TokenResponse{}, &ConnectionError{
			Retryable: false,
			Err:       fmt.Errorf("failed to sign assertion: %w", err),
		}
	}

	form := url.Values{
		"grant_type": {"urn:ietf:params:oauth:grant-type:jwt-bearer"},
		"assertion":  {assertion},
	}
	return c.postTokenForm(ctx, cfg.LoginURL, form)
}

// postTokenForm is shared by the grants the oauth2 package has no helper for.
func (c *ConnectionCache) postTokenForm(ctx context.Context, loginURL string, form url.Values) (domain.TokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(loginURL, "/")+tokenPath, strings.NewReader(form.Encode()))
	if err != nil {
		return domain.TokenResponse{}, &ConnectionError{Retryable: false, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return domain.TokenResponse{}, &ConnectionError{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return domain.TokenResponse{}, &ConnectionError{Retryable: true, Err: err}
	}

	if resp.StatusCode != http.StatusOK {
		return domain.TokenResponse{}, &ConnectionError{
			Retryable: retryableStatus(resp.StatusCode),
			Err:       fmt.Errorf("login rejected: status %d: %s", resp.StatusCode, string(body)),
		}
	}

	var payload struct {
		AccessToken string `json:"access_token"`
		InstanceURL string `json:"instance_url"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return domain.TokenResponse{}, &ConnectionError{
			Retryable: false,
			Err:       fmt.Errorf("failed to decode token response: %w", err),
		}
	}

	return domain.TokenResponse{
		AccessToken: payload.AccessToken,
		InstanceURL: payload.InstanceURL,
		TokenType:   payload.TokenType,
		IssuedAt:    c.now().UTC(),
	}, nil
}

// retryableStatus: throttling and server faults are retryable; credential
// rejections are not.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// fingerprintConfig derives a deterministic, secret-free cache key from the
// authentication mode, the target host, and the identity: the client id for
// app-level modes, the username for the password mode.
func fingerprintConfig(cfg domain.ConnConfig) string {
	identity := cfg.ClientID
	if cfg.Mode == domain.AuthModePassword {
		identity = cfg.Username
	}
	return cryptox.Fingerprint(string(cfg.Mode), hostOf(cfg.LoginURL), identity)
}

func classifyProbeError(err error) error {
	return &ConnectionError{Retryable: false, Err: fmt.Errorf("token rejected by platform: %w", err)}
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return u.Host
}
