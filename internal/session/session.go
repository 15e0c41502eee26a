// Package session supplies the bearer token used against the completion
// endpoint. Refresh is best-effort: an expired token is refreshed when
// possible, and handed out stale when the refresh fails, since the remote
// side is the real authority on token validity.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
)

// ErrNoSession is returned when no token has been installed.
var ErrNoSession = errors.New("no active session")

// Provider supplies the current access token.
type Provider interface {
	// Token returns the current access token, refreshing it first if it has
	// expired and a refresh endpoint is configured. A stale token is
	// returned when refresh fails.
	Token(ctx context.Context) (string, error)
	// Authenticated reports whether a session is present at all.
	Authenticated() bool
}

// TokenSource is a Provider backed by a JWT and an HTTP refresh endpoint.
type TokenSource struct {
	mu          sync.Mutex
	accessToken string
	expiresAt   time.Time

	refreshURL string
	httpClient *http.Client
	logger     *logrus.Logger
}

// NewTokenSource creates a TokenSource. refreshURL may be empty, in which
// case expired tokens are handed out as-is.
func NewTokenSource(refreshURL string, logger *logrus.Logger) *TokenSource {
	return &TokenSource{
		refreshURL: refreshURL,
		httpClient: &http.Client{Timeout: 15 * time.Second},
		logger:     logger,
	}
}

// SetToken installs a new access token and records its expiry from the
// JWT exp claim. Tokens without a parseable expiry never self-expire here.
func (s *TokenSource) SetToken(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accessToken = token
	s.expiresAt = tokenExpiry(token)
}

// Authenticated reports whether a token is installed.
func (s *TokenSource) Authenticated() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accessToken != ""
}

// Token implements Provider.
func (s *TokenSource) Token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.accessToken == "" {
		return "", ErrNoSession
	}
	if s.expiresAt.IsZero() || time.Now().Before(s.expiresAt) || s.refreshURL == "" {
		return s.accessToken, nil
	}

	refreshed, err := s.refresh(ctx)
	if err != nil {
		s.logger.WithError(err).Warn("session refresh failed, using existing token")
		return s.accessToken, nil
	}
	s.accessToken = refreshed
	s.expiresAt = tokenExpiry(refreshed)
	return s.accessToken, nil
}

type refreshResponse struct {
	AccessToken string `json:"access_token"`
}

// refresh exchanges the current token for a fresh one. Caller holds the lock.
func (s *TokenSource) refresh(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.refreshURL, bytes.NewReader(nil))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var rr refreshResponse
	if err := json.NewDecoder(resp.Body).Decode(&rr); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if rr.AccessToken == "" {
		return "", errors.New("refresh response missing access_token")
	}
	return rr.AccessToken, nil
}

// tokenExpiry extracts the exp claim without verifying the signature; this
// side only needs the timestamp, validation belongs to the remote endpoint.
func tokenExpiry(token string) time.Time {
	claims := jwt.MapClaims{}
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return time.Time{}
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}
	}
	return exp.Time
}
