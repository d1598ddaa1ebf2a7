package chatclient

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseBaseURL(t *testing.T) {
	u, err := ParseBaseURL("http://localhost:8080/api/")
	require.NoError(t, err)
	require.Equal(t, "http://localhost:8080/api", u.String())

	for _, bad := range []string{"", "   ", "localhost:8080", "ftp://x", "http://"} {
		_, err := ParseBaseURL(bad)
		require.Error(t, err, bad)
	}
}

func TestClient_URLs(t *testing.T) {
	c, err := New("https://chat.example/v1/")
	require.NoError(t, err)
	require.Equal(t, "https://chat.example/v1/chat", c.ChatURL())
	require.Equal(t, "https://chat.example/v1/chat/history/thread-1-a?showToolCalls=true", c.HistoryURL("thread-1-a"))
	require.Equal(t, "https://chat.example/v1/chat/history/a%2Fb?showToolCalls=true", c.HistoryURL("a/b"))
}

func TestClient_FetchHistory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/chat/history/thread-1-a", r.URL.Path)
		require.Equal(t, "true", r.URL.Query().Get("showToolCalls"))
		require.Equal(t, "catchat", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[
			{"role":"user","content":"hi"},
			{"role":"assistant","content":"meow","toolCalls":[{"id":"t","name":"search","output":"{}","type":"function"}]}
		]`))
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	msgs, err := c.FetchHistory(context.Background(), "thread-1-a")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	require.Equal(t, "meow", msgs[1].Content)
	require.Len(t, msgs[1].ToolCalls, 1)
}

func TestClient_FetchHistory_NullBodyIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`null`))
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	msgs, err := c.FetchHistory(context.Background(), "x")
	require.NoError(t, err)
	require.NotNil(t, msgs)
	require.Empty(t, msgs)
}

func TestClient_FetchHistory_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/chat/history/missing":
			http.Error(w, "no such thread", http.StatusNotFound)
		default:
			_, _ = w.Write([]byte(`{"not":"an array"}`))
		}
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)

	_, err = c.FetchHistory(context.Background(), "missing")
	var se *StatusError
	require.True(t, stderrors.As(err, &se))
	require.Equal(t, http.StatusNotFound, se.StatusCode)
	require.Equal(t, "no such thread", se.Body)

	_, err = c.FetchHistory(context.Background(), "other")
	require.Error(t, err)
	require.False(t, stderrors.As(err, &se))

	_, err = c.FetchHistory(context.Background(), " ")
	require.Error(t, err)
}

func TestClient_PostMessage(t *testing.T) {
	var got SendRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/chat", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.Equal(t, "secret", r.Header.Get("X-Api-Key"))
		b, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(b, &got))
		_, _ = w.Write([]byte(`{"whatever":true}`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithHeader("X-Api-Key", "secret"))
	require.NoError(t, err)
	require.NoError(t, c.PostMessage(context.Background(), "thread-1-a", "hello cat"))
	require.Equal(t, SendRequest{Message: "hello cat", ConversationID: "thread-1-a"}, got)
}

func TestClient_PostMessage_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	err = c.PostMessage(context.Background(), "thread-1-a", "hi")
	var se *StatusError
	require.True(t, stderrors.As(err, &se))
	require.Equal(t, http.StatusInternalServerError, se.StatusCode)
	require.Contains(t, err.Error(), "500")
}

func TestClient_NoRetry(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	require.Error(t, c.PostMessage(context.Background(), "t", "hi"))
	require.Equal(t, int32(1), calls.Load())
}

func TestClient_TimeoutAndSizeLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/chat/history/slow" {
			time.Sleep(200 * time.Millisecond)
		}
		_, _ = w.Write([]byte(`[` + strings.Repeat(" ", 64) + `]`))
	}))
	defer srv.Close()

	c, err := New(srv.URL, WithTimeout(20*time.Millisecond))
	require.NoError(t, err)
	_, err = c.FetchHistory(context.Background(), "slow")
	require.Error(t, err)

	c, err = New(srv.URL, WithMaxResponseSize(16))
	require.NoError(t, err)
	_, err = c.FetchHistory(context.Background(), "big")
	require.Error(t, err)
	require.Contains(t, err.Error(), "exceeds")
}

func TestClient_ContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c, err := New(srv.URL)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, c.PostMessage(ctx, "t", "hi"))
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New("http://x", WithTimeout(-time.Second))
	require.Error(t, err)
	_, err = New("http://x", WithMaxResponseSize(0))
	require.Error(t, err)
	_, err = New("http://x", WithHTTPClient(nil))
	require.Error(t, err)
}
