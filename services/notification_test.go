package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	applog "github.com/hirokazu-kobayashi-koba-hiro/idp-server-sub023/log"
)

func TestHTTPNotificationClientDelivers(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	client := NewHTTPNotificationClient(time.Second, applog.Noop())
	err := client.Notify(context.Background(), CibaNotification{
		Endpoint:    server.URL,
		BearerToken: "notify-token",
		Payload:     map[string]any{"auth_req_id": "req-1"},
	})
	require.NoError(t, err)

	assert.Equal(t, "Bearer notify-token", gotAuth)
	assert.Equal(t, "req-1", gotBody["auth_req_id"])
}

func TestHTTPNotificationClientNon2xxIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewHTTPNotificationClient(time.Second, applog.Noop())
	err := client.Notify(context.Background(), CibaNotification{
		Endpoint: server.URL,
		Payload:  map[string]any{"auth_req_id": "req-1"},
	})
	assert.Error(t, err)
}

func TestHTTPNotificationClientUnreachableEndpoint(t *testing.T) {
	client := NewHTTPNotificationClient(200*time.Millisecond, applog.Noop())
	err := client.Notify(context.Background(), CibaNotification{
		Endpoint: "http://127.0.0.1:1/cb",
		Payload:  map[string]any{"auth_req_id": "req-1"},
	})
	assert.Error(t, err)
}

func TestHTTPRequestObjectFetcherRequiresHTTPS(t *testing.T) {
	fetcher := NewHTTPRequestObjectFetcher(time.Second)
	_, err := fetcher.Fetch(context.Background(), "http://rp.example.com/request.jwt")
	assert.Error(t, err)
}
