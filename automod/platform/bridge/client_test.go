package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/modwarden/warden/automod/platform"

	"github.com/stretchr/testify/assert"
)

func testClient(srv *httptest.Server) *Client {
	c := NewClient(ClientConfig{Host: srv.URL, Token: "secret"})
	c.QueryClient = srv.Client()
	c.ProcedureClient = srv.Client()
	return c
}

func TestGetPost(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodGet, r.Method)
		assert.Equal("/bridge/getPost", r.URL.Path)
		assert.Equal("Bearer secret", r.Header.Get("Authorization"))
		if r.URL.Query().Get("id") != "t3_abc" {
			w.WriteHeader(http.StatusNotFound)
			json.NewEncoder(w).Encode(BridgeError{ErrStr: "NotFound", Message: "no such post"})
			return
		}
		json.NewEncoder(w).Encode(platform.Post{ID: "t3_abc", SubredditName: "gardening", Title: "hello"})
	}))
	defer srv.Close()
	c := testClient(srv)

	post, err := c.GetPost(ctx, "t3_abc")
	assert.NoError(err)
	assert.Equal("gardening", post.SubredditName)
	assert.Equal("hello", post.Title)

	_, err = c.GetPost(ctx, "t3_missing")
	assert.Error(err)
	assert.True(errors.Is(err, platform.ErrNotFound))
	var be *BridgeError
	assert.True(errors.As(err, &be))
	assert.Equal("NotFound", be.ErrStr)
}

func TestUserFlairEmpty(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal("alice", r.URL.Query().Get("username"))
		w.Write([]byte(`{"flair": null}`))
	}))
	defer srv.Close()

	flair, err := testClient(srv).GetUserFlair(context.Background(), "gardening", "alice")
	assert.NoError(err)
	assert.Nil(flair)
}

func TestProcedureBody(t *testing.T) {
	assert := assert.New(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(http.MethodPost, r.Method)
		assert.Equal("application/json", r.Header.Get("Content-Type"))
		switch r.URL.Path {
		case "/bridge/addComment":
			var in addCommentInput
			assert.NoError(json.NewDecoder(r.Body).Decode(&in))
			assert.Equal("t3_abc", in.ParentID)
			json.NewEncoder(w).Encode(platform.Comment{ID: "t1_new", ParentID: in.ParentID, Body: in.Text})
		case "/bridge/createModmail":
			var in platform.ModmailConversation
			assert.NoError(json.NewDecoder(r.Body).Decode(&in))
			assert.True(in.AuthorHidden)
			w.Write([]byte(`{"conversationId": "mm_1"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer srv.Close()
	c := testClient(srv)
	ctx := context.Background()

	cm, err := c.AddComment(ctx, "t3_abc", "please cite a source")
	assert.NoError(err)
	assert.Equal("t1_new", cm.ID)
	assert.Equal("please cite a source", cm.Body)

	id, err := c.CreateModmail(ctx, platform.ModmailConversation{To: "alice", Subject: "hi", AuthorHidden: true})
	assert.NoError(err)
	assert.Equal("mm_1", id)
}

func TestProcedureNotRetried(t *testing.T) {
	assert := assert.New(t)

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Retry-After", "30")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error": "RateLimited", "message": "slow down"}`))
	}))
	defer srv.Close()

	c := NewClient(ClientConfig{Host: srv.URL})
	err := c.RemovePost(context.Background(), "t3_abc")
	assert.Error(err)
	assert.Equal(int32(1), calls.Load())
	var be *Error
	assert.True(errors.As(err, &be))
	assert.True(be.IsThrottled())
	assert.Equal(int64(30), int64(be.RetryAfter.Seconds()))
	assert.False(errors.Is(err, platform.ErrNotFound))
}
