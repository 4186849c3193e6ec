package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/modwarden/warden/automod/engine"
	"github.com/modwarden/warden/automod/platform"

	"github.com/stretchr/testify/assert"
)

func testServer(t *testing.T) (*Server, *platform.MockPlatform) {
	mp := platform.NewMockPlatform("gardening")
	mp.InsertPost(platform.Post{
		ID:            "t3_abc",
		SubredditName: "gardening",
		Title:         "[Harvest] beans",
		AuthorID:      "t2_alice",
		AuthorName:    "alice",
	})
	srv, err := NewServer(Config{
		Logger:        slog.Default(),
		Platform:      &mp,
		WebhookSecret: "hunter2",
	})
	if err != nil {
		t.Fatal(err)
	}
	return srv, &mp
}

func doRequest(srv *Server, method, path, body string, secret bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if secret {
		req.Header.Set(secretHeader, "hunter2")
	}
	rec := httptest.NewRecorder()
	srv.echo.ServeHTTP(rec, req)
	return rec
}

func TestHealthCheck(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t)

	rec := doRequest(srv, http.MethodGet, "/_health", "", false)
	assert.Equal(http.StatusOK, rec.Code)
	assert.Contains(rec.Body.String(), `"status":"ok"`)
}

func TestWebhookSecret(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t)

	rec := doRequest(srv, http.MethodPost, "/webhook/post-create", `{"postId": "t3_abc"}`, false)
	assert.Equal(http.StatusUnauthorized, rec.Code)
	rec = doRequest(srv, http.MethodGet, "/settings", "", false)
	assert.Equal(http.StatusUnauthorized, rec.Code)
}

func TestWebhookPostCreate(t *testing.T) {
	assert := assert.New(t)
	srv, mp := testServer(t)

	rec := doRequest(srv, http.MethodPut, "/settings/wl-title-regex", `{"value": "^\\[harvest\\]"}`, true)
	assert.Equal(http.StatusOK, rec.Code)
	rec = doRequest(srv, http.MethodPut, "/settings/reminder-delay", `{"value": 15}`, true)
	assert.Equal(http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/webhook/post-create", `{"postId": "t3_abc"}`, true)
	assert.Equal(http.StatusOK, rec.Code)
	var res engine.PostResult
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Equal("t3_abc", res.PostID)
	assert.True(res.Gated)

	// unknown posts are ignored, not errors
	rec = doRequest(srv, http.MethodPost, "/webhook/post-create", `{"postId": "t3_missing"}`, true)
	assert.Equal(http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodPost, "/webhook/post-create", `{}`, true)
	assert.Equal(http.StatusBadRequest, rec.Code)

	mp.Errors["GetPost"] = errors.New("platform down")
	rec = doRequest(srv, http.MethodPost, "/webhook/post-create", `{"postId": "t3_abc"}`, true)
	assert.Equal(http.StatusInternalServerError, rec.Code)
}

func TestSettingsAPI(t *testing.T) {
	assert := assert.New(t)
	srv, _ := testServer(t)

	rec := doRequest(srv, http.MethodPut, "/settings/report-reason", `{"value": "no source given"}`, true)
	assert.Equal(http.StatusOK, rec.Code)

	rec = doRequest(srv, http.MethodPut, "/settings/wl-title-regex", `{"value": "(unclosed"}`, true)
	assert.Equal(http.StatusBadRequest, rec.Code)
	assert.Contains(rec.Body.String(), "Invalid regex pattern.")

	rec = doRequest(srv, http.MethodPut, "/settings/not-a-setting", `{"value": true}`, true)
	assert.Equal(http.StatusBadRequest, rec.Code)

	rec = doRequest(srv, http.MethodGet, "/settings", "", true)
	assert.Equal(http.StatusOK, rec.Code)
	var resp SettingsResponse
	assert.NoError(json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal("no source given", resp.Settings["report-reason"])
	assert.NotContains(resp.Settings, "wl-title-regex")
	assert.Contains(resp.Effective, "reminder-delay")
}
