package agent

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_ChatSuccess(t *testing.T) {
	t.Parallel()

	var gotReq ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/chat", r.URL.Path)
		require.Equal(t, "Bearer key-123", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		confidence := 0.87
		_ = json.NewEncoder(w).Encode(ChatResponse{
			SessionID:  "sess-1",
			Message:    "three suppliers do heat treatment",
			Intent:     "supplier_search",
			Confidence: &confidence,
			Sources:    []string{"doc-1"},
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "key-123", time.Second, nil)
	resp, err := c.Chat(context.Background(), ChatRequest{
		Message: "which suppliers do heat treatment?",
		UserID:  "aad-123",
		Context: &RequestContext{Platform: "msteams", ConversationID: "19:thread"},
	})
	require.NoError(t, err)

	assert.Equal(t, "which suppliers do heat treatment?", gotReq.Message)
	assert.Equal(t, "msteams", gotReq.Context.Platform)
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, "three suppliers do heat treatment", resp.Message)
}

func TestClient_ChatClampsConfidence(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		confidence := 1.7
		_ = json.NewEncoder(w).Encode(ChatResponse{Message: "sure", Confidence: &confidence})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, nil)
	resp, err := c.Chat(context.Background(), ChatRequest{Message: "hi"})
	require.NoError(t, err)
	require.NotNil(t, resp.Confidence)
	assert.Equal(t, 1.0, *resp.Confidence)
}

func TestClient_SemanticRejectionNotRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"detail":"message too long"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, nil, WithMaxRetries(3))
	_, err := c.Chat(context.Background(), ChatRequest{Message: "hi"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	assert.Equal(t, "message too long", apiErr.Detail)
	assert.Equal(t, int32(1), calls.Load(), "semantic rejections must not be retried")
}

func TestClient_TransportFailureRetried(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			// Kill the connection without a response.
			hj, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hj.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		_ = json.NewEncoder(w).Encode(ChatResponse{Message: "recovered"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 2*time.Second, nil, WithSafetyMargin(50*time.Millisecond))
	resp, err := c.Chat(context.Background(), ChatRequest{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", resp.Message)
	assert.Equal(t, int32(2), calls.Load())
}

func TestClient_UnreachableAgentReturnsConnectionError(t *testing.T) {
	t.Parallel()

	// Reserve a port, then close the listener so connections are refused.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c := NewClient("http://"+addr, "", 2*time.Second, nil, WithSafetyMargin(10*time.Millisecond))
	start := time.Now()
	_, err = c.Chat(context.Background(), ChatRequest{Message: "hi"})

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Less(t, time.Since(start), 2*time.Second, "must resolve within the deadline budget")
}

func TestClient_SubMarginDeadlineShortCircuits(t *testing.T) {
	t.Parallel()

	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, nil, WithSafetyMargin(500*time.Millisecond))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	_, err := c.Chat(ctx, ChatRequest{Message: "hi"})
	require.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.Equal(t, int32(0), calls.Load(), "no network call may happen below the safety margin")
}

func TestClient_SlowAgentHitsDeadline(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", 200*time.Millisecond, nil, WithSafetyMargin(20*time.Millisecond))
	start := time.Now()
	_, err := c.Chat(context.Background(), ChatRequest{Message: "hi"})
	require.ErrorIs(t, err, ErrDeadlineExceeded)
	assert.Less(t, time.Since(start), time.Second)
}

func TestClient_Health(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/health", r.URL.Path)
		_ = json.NewEncoder(w).Encode(HealthStatus{Status: "healthy", Version: "2.2.0"})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", time.Second, nil)
	status, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "2.2.0", status.Version)
}

func TestAPIError_Message(t *testing.T) {
	t.Parallel()

	err := &APIError{StatusCode: 429}
	assert.Equal(t, "agent returned 429", err.Error())

	err = &APIError{StatusCode: 422, Detail: "too long"}
	assert.Equal(t, "agent returned 422: too long", err.Error())

	if errors.Is(err, ErrDeadlineExceeded) {
		t.Fatal("api error must not match deadline sentinel")
	}
}
