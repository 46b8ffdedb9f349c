package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"devfeed/internal/config"
	"devfeed/internal/content"
	"devfeed/internal/database"
	"devfeed/internal/engine"
	"devfeed/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cannedModel struct{ reply string }

func (m cannedModel) Complete(ctx context.Context, prompt string) (string, error) {
	return m.reply, nil
}

type testServer struct {
	t      *testing.T
	server *Server
	http   *httptest.Server
}

func newTestServer(t *testing.T, model content.Model) *testServer {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Auth.JWTSecret = "test-secret"
	cfg.AI.RatePerMinute = 2
	metrics := utils.NewMetricsCollector()
	store := database.NewMemoryStore()

	eng := engine.NewEngine(actor.NewActorSystem(), engine.NewServices(store, nil, cfg, metrics), 2, metrics)
	t.Cleanup(eng.Stop)

	s := NewServer(cfg, eng, content.NewGenerator(model, 3, time.Minute), metrics, store.Name())
	ts := httptest.NewServer(s.Routes())
	t.Cleanup(ts.Close)
	return &testServer{t: t, server: s, http: ts}
}

func (ts *testServer) token(userID string) string {
	token, err := ts.server.Auth.GenerateToken(userID, time.Hour)
	require.NoError(ts.t, err)
	return token
}

// do sends a request as userID (anonymous when empty) and decodes the JSON reply.
func (ts *testServer) do(method, path, userID string, body interface{}) (int, map[string]interface{}) {
	ts.t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(ts.t, err)
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, ts.http.URL+path, reader)
	require.NoError(ts.t, err)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+ts.token(userID))
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(ts.t, err)
	defer resp.Body.Close()

	var out map[string]interface{}
	require.NoError(ts.t, json.NewDecoder(resp.Body).Decode(&out))
	return resp.StatusCode, out
}

func (ts *testServer) createProfile(userID, username string) {
	ts.t.Helper()
	status, body := ts.do(http.MethodPost, "/api/auth/create-profile", userID, map[string]string{"username": username})
	require.Equal(ts.t, http.StatusCreated, status, body)
}

func TestProfileAndFollowFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createProfile("uid-a", "alice")
	ts.createProfile("uid-b", "bob")

	status, body := ts.do(http.MethodPost, "/api/auth/create-profile", "uid-c", map[string]string{"username": "alice"})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "DUPLICATE", body["code"])

	status, body = ts.do(http.MethodPost, "/api/users/bob/follow", "uid-a", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["following"])
	assert.Equal(t, float64(1), body["followersCount"])

	status, body = ts.do(http.MethodPost, "/api/users/alice/follow", "uid-a", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "INVALID_OPERATION", body["code"])

	status, body = ts.do(http.MethodGet, "/api/users/alice/following", "uid-a", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["following"], 1)

	status, body = ts.do(http.MethodGet, "/api/users/bob", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, float64(1), body["user"].(map[string]interface{})["followersCount"])

	status, body = ts.do(http.MethodPut, "/api/users/profile", "uid-b", map[string]string{"bio": "gopher"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "gopher", body["user"].(map[string]interface{})["bio"])

	status, _ = ts.do(http.MethodGet, "/api/users/nobody", "", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestPostLikeCommentFeedFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.createProfile("uid-a", "alice")
	ts.createProfile("uid-b", "bob")
	ts.do(http.MethodPost, "/api/users/bob/follow", "uid-a", nil)

	status, body := ts.do(http.MethodPost, "/api/posts", "uid-b", map[string]interface{}{
		"content": "hello gophers",
		"tags":    []string{"#Go"},
	})
	require.Equal(t, http.StatusCreated, status, body)
	postID := body["post"].(map[string]interface{})["id"].(string)

	status, body = ts.do(http.MethodPost, "/api/posts/"+postID+"/like", "uid-a", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["liked"])

	status, _ = ts.do(http.MethodPost, "/api/posts/"+postID+"/comments", "uid-a", map[string]string{"content": "nice"})
	require.Equal(t, http.StatusCreated, status)

	status, body = ts.do(http.MethodGet, "/api/posts/"+postID+"/comments", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, body["comments"], 1)

	status, body = ts.do(http.MethodGet, "/api/posts/feed?page=1&limit=10", "uid-a", nil)
	require.Equal(t, http.StatusOK, status)
	posts := body["posts"].([]interface{})
	require.Len(t, posts, 1)
	item := posts[0].(map[string]interface{})
	assert.Equal(t, true, item["isLiked"])
	assert.Equal(t, "Beginner", item["user"].(map[string]interface{})["level"])

	status, body = ts.do(http.MethodGet, "/api/posts/feed?page=abc", "uid-a", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "VALIDATION_ERROR", body["code"])

	status, body = ts.do(http.MethodPost, "/api/reputation/retier", "uid-b", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "Beginner", body["level"])

	status, _ = ts.do(http.MethodPost, "/api/posts/missing/like", "uid-a", nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestProtectedRoutesRequireToken(t *testing.T) {
	ts := newTestServer(t, nil)

	status, body := ts.do(http.MethodGet, "/api/posts/feed", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Equal(t, "UNAUTHORIZED", body["code"])

	status, body = ts.do(http.MethodGet, "/api/status", "", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, "memory", body["store"])
	assert.Equal(t, false, body["aiConfigured"])
}

func TestAIEndpoints(t *testing.T) {
	ts := newTestServer(t, nil)
	status, body := ts.do(http.MethodPost, "/api/ai/generate-post", "uid-a", map[string]string{"prompt": "hi"})
	assert.Equal(t, http.StatusServiceUnavailable, status)
	assert.Equal(t, "UNAVAILABLE", body["code"])

	ts = newTestServer(t, cannedModel{reply: "#go #gophers ship it"})
	status, body = ts.do(http.MethodPost, "/api/ai/generate-hashtags", "uid-a", map[string]string{"content": "release day"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, []interface{}{"#go", "#gophers"}, body["hashtags"])

	status, body = ts.do(http.MethodPost, "/api/ai/generate-post", "uid-a", map[string]string{"prompt": "release", "type": "code"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["isAIGenerated"])
	assert.Equal(t, "code", body["type"])

	// The limiter allows two AI calls per minute.
	status, body = ts.do(http.MethodPost, "/api/ai/suggest-image-prompts", "uid-a", map[string]string{"postContent": "x"})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, "TOO_MANY_REQUESTS", body["code"])
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec := httptest.NewRecorder()
	ts.server.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	ts.server.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "devfeed_requests_total")
}

func TestDisconnectedClientIsUnavailable(t *testing.T) {
	ts := newTestServer(t, cannedModel{})
	ts.createProfile("alice", "alice")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodGet, "/api/users/alice", nil).WithContext(ctx)
	rec := httptest.NewRecorder()
	ts.server.Routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
