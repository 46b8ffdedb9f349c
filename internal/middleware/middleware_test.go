package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func echoUser() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := GetUserIDFromContext(r.Context())
		w.Write([]byte(id))
	})
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestTokenRoundTrip(t *testing.T) {
	auth := NewAuthenticator("secret", "devfeed-test")
	token, err := auth.GenerateToken("user-1", time.Hour)
	require.NoError(t, err)

	claims, err := auth.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)

	_, err = NewAuthenticator("other", "devfeed-test").ValidateToken(token)
	assert.Error(t, err)
	_, err = NewAuthenticator("secret", "someone-else").ValidateToken(token)
	assert.Error(t, err)

	_, err = auth.GenerateToken("", time.Hour)
	assert.Error(t, err)
}

func TestExpiredTokenRejected(t *testing.T) {
	auth := NewAuthenticator("secret", "devfeed-test")
	token, err := auth.GenerateToken("user-1", time.Nanosecond)
	require.NoError(t, err)
	time.Sleep(1100 * time.Millisecond)

	_, err = auth.ValidateToken(token)
	assert.Error(t, err)
}

func TestAuthenticate(t *testing.T) {
	auth := NewAuthenticator("secret", "devfeed-test")
	handler := auth.Authenticate(echoUser())
	token, err := auth.GenerateToken("user-1", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		code   string
	}{
		{"missing header", "", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"bad token", "Bearer nope", http.StatusUnauthorized, "INVALID_TOKEN"},
		{"valid", "Bearer " + token, http.StatusOK, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/auth/profile", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.code != "" {
				assert.Equal(t, tc.code, decodeError(t, rec)["code"])
			} else {
				assert.Equal(t, "user-1", rec.Body.String())
			}
		})
	}
}

func TestUserRateLimiter(t *testing.T) {
	limiter := NewUserRateLimiter(2)
	handler := limiter.Limit(echoUser())

	call := func(user string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/ai/generate-post", nil)
		req = req.WithContext(SetUserIDInContext(req.Context(), user))
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusOK, call("a"))
	assert.Equal(t, http.StatusOK, call("a"))
	assert.Equal(t, http.StatusTooManyRequests, call("a"))
	// Buckets are per user.
	assert.Equal(t, http.StatusOK, call("b"))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUserRateLimiterEvictsIdleUsers(t *testing.T) {
	limiter := NewUserRateLimiter(2)
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	limiter.now = func() time.Time { return clock }

	for i := 0; i < 50; i++ {
		assert.True(t, limiter.Allow(fmt.Sprintf("user%02d", i)))
	}
	assert.True(t, limiter.Allow("active"))
	assert.True(t, limiter.Allow("active"))
	assert.False(t, limiter.Allow("active"))
	assert.Equal(t, 51, limiter.Tracked())

	// Half a minute later only the active user keeps coming back.
	clock = clock.Add(30 * time.Second)
	assert.True(t, limiter.Allow("active"))
	assert.Equal(t, 51, limiter.Tracked())

	clock = clock.Add(45 * time.Second)
	assert.True(t, limiter.Allow("active"))
	assert.Equal(t, 1, limiter.Tracked())
}

func TestCORSPreflight(t *testing.T) {
	handler := CORSMiddleware(DefaultCORSConfig([]string{"https://app.devfeed.test"}))(echoUser())

	req := httptest.NewRequest(http.MethodOptions, "/api/posts", nil)
	req.Header.Set("Origin", "https://app.devfeed.test")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "POST")
	assert.Equal(t, "https://app.devfeed.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/api/posts", nil)
	req.Header.Set("Origin", "https://evil.test")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
