package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return logger
}

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"exp": exp.Unix(),
	})
	signed, err := token.SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return signed
}

func TestTokenWithoutSession(t *testing.T) {
	s := NewTokenSource("", testLogger())

	assert.False(t, s.Authenticated())
	_, err := s.Token(context.Background())
	assert.ErrorIs(t, err, ErrNoSession)
}

func TestOpaqueTokenNeverExpires(t *testing.T) {
	refreshes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes++
	}))
	defer srv.Close()

	s := NewTokenSource(srv.URL, testLogger())
	s.SetToken("not-a-jwt")

	assert.True(t, s.Authenticated())
	got, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "not-a-jwt", got)
	assert.Equal(t, 0, refreshes)
}

func TestFreshTokenSkipsRefresh(t *testing.T) {
	refreshes := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		refreshes++
	}))
	defer srv.Close()

	token := signedToken(t, time.Now().Add(time.Hour))
	s := NewTokenSource(srv.URL, testLogger())
	s.SetToken(token)

	got, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, token, got)
	assert.Equal(t, 0, refreshes)
}

func TestExpiredTokenRefreshes(t *testing.T) {
	stale := signedToken(t, time.Now().Add(-time.Minute))
	fresh := signedToken(t, time.Now().Add(time.Hour))

	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"access_token": "` + fresh + `"}`))
	}))
	defer srv.Close()

	s := NewTokenSource(srv.URL, testLogger())
	s.SetToken(stale)

	got, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
	assert.Equal(t, "Bearer "+stale, gotAuth)

	// The refreshed token is cached; the next call does not hit the endpoint.
	srv.Close()
	got, err = s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fresh, got)
}

func TestRefreshFailureReturnsStaleToken(t *testing.T) {
	stale := signedToken(t, time.Now().Add(-time.Minute))

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "session revoked", http.StatusUnauthorized)
	}))
	defer srv.Close()

	s := NewTokenSource(srv.URL, testLogger())
	s.SetToken(stale)

	got, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stale, got)
}

func TestExpiredTokenWithoutRefreshURL(t *testing.T) {
	stale := signedToken(t, time.Now().Add(-time.Minute))

	s := NewTokenSource("", testLogger())
	s.SetToken(stale)

	got, err := s.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, stale, got)
}
