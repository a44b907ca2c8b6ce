package chatapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL+"/", time.Second)
}

func TestCreateSessionPlainEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, SessionPath, r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{}`, string(body))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"data":{"session_id":"s-1"}}`)
	})

	id, err := client.CreateSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s-1", id)
}

func TestCreateSessionSuccessEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":{"session_id":"s-2"}}`)
	})

	id, err := client.CreateSession(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "s-2", id)
}

func TestCreateSessionFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"detail":"boom"}`},
		{"success false", http.StatusOK, `{"success":false,"message":"nope"}`},
		{"missing data", http.StatusOK, `{"success":true}`},
		{"empty id", http.StatusOK, `{"data":{"session_id":""}}`},
		{"not json", http.StatusOK, `<html></html>`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			})

			id, err := client.CreateSession(context.Background())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrSessionCreation)
			assert.Empty(t, id)
		})
	}
}

func TestCreateSessionStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		fmt.Fprint(w, "down")
	})

	_, err := client.CreateSession(context.Background())
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)
	assert.Equal(t, "down", statusErr.Body)
}

func TestCreateSessionTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, time.Second)
	_, err := client.CreateSession(context.Background())
	assert.ErrorIs(t, err, ErrSessionCreation)
}

func TestSendMessageRequestBody(t *testing.T) {
	var got MessageRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, MessagePath, r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		fmt.Fprint(w, `{"data":{"response":"R"}}`)
	})

	reply, err := client.SendMessage(context.Background(), "s-1", "hi\nthere")
	require.NoError(t, err)
	assert.Equal(t, "R", reply)
	assert.Equal(t, "s-1", got.SessionID)
	assert.Equal(t, "hi\nthere", got.Message)
}

func TestSendMessageSuccessEnvelope(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"success":true,"data":{"response":"line one\nline two"}}`)
	})

	reply, err := client.SendMessage(context.Background(), "s-1", "hi")
	require.NoError(t, err)
	assert.Equal(t, "line one\nline two", reply)
}

func TestSendMessageEmptyResponse(t *testing.T) {
	for _, body := range []string{
		`{"data":{"response":""}}`,
		`{"data":{"response":"   "}}`,
		`{"data":{}}`,
		`{"success":true,"data":{}}`,
	} {
		t.Run(body, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				fmt.Fprint(w, body)
			})

			_, err := client.SendMessage(context.Background(), "s-1", "hi")
			assert.ErrorIs(t, err, ErrEmptyResponse)
			assert.NotErrorIs(t, err, ErrMessageSend)
		})
	}
}

func TestSendMessageFailures(t *testing.T) {
	cases := []struct {
		name   string
		status int
		body   string
	}{
		{"bad gateway", http.StatusBadGateway, `bad`},
		{"not found", http.StatusNotFound, `{"detail":"unknown session"}`},
		{"success false", http.StatusOK, `{"success":false,"data":{"response":"R"}}`},
		{"missing data", http.StatusOK, `{}`},
		{"truncated json", http.StatusOK, `{"data":`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tc.status)
				fmt.Fprint(w, tc.body)
			})

			_, err := client.SendMessage(context.Background(), "s-1", "hi")
			assert.ErrorIs(t, err, ErrMessageSend)
			assert.NotErrorIs(t, err, ErrEmptyResponse)
		})
	}
}

func TestSendMessageContextDeadline(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := client.SendMessage(ctx, "s-1", "hi")
	assert.ErrorIs(t, err, ErrMessageSend)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStatusErrorBodyIsBounded(t *testing.T) {
	long := make([]byte, 4*maxErrorBody)
	for i := range long {
		long[i] = 'x'
	}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write(long)
	})

	_, err := client.SendMessage(context.Background(), "s-1", "hi")
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Len(t, statusErr.Body, maxErrorBody)
}

func TestBaseURLTrimsSlash(t *testing.T) {
	client := NewClient("http://example.com///", time.Second)
	assert.Equal(t, "http://example.com", client.BaseURL())
}
