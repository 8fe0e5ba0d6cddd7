package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastNotifier(endpoint string) *WebhookNotifier {
	n := NewWebhookNotifier(endpoint)
	n.client.RetryWaitMin = time.Millisecond
	n.client.RetryWaitMax = 5 * time.Millisecond
	return n
}

func TestWebhookNotify(t *testing.T) {
	var got Message
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := fastNotifier(srv.URL)
	err := n.NotifyBestEffort(context.Background(), "user-42", "your keys")
	require.NoError(t, err)
	assert.Equal(t, Message{Destination: "user-42", Text: "your keys"}, got)
}

func TestWebhookNotifyRetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := fastNotifier(srv.URL)
	err := n.NotifyBestEffort(context.Background(), "user-42", "your keys")
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestWebhookNotifyClientError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	n := fastNotifier(srv.URL)
	err := n.NotifyBestEffort(context.Background(), "user-42", "your keys")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestLogNotifier(t *testing.T) {
	n := NewLogNotifier()
	assert.NoError(t, n.NotifyBestEffort(context.Background(), "anyone", "hello"))
}
