package secrets

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func vaultKV2Response(dataInner map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"data": map[string]interface{}{
			"data": dataInner,
		},
	}
}

func newTestManager(t *testing.T, handler http.HandlerFunc) *Manager {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	m, err := NewManager(srv.URL, "test-token")
	require.NoError(t, err)
	return m
}

func TestGetKV2UnwrapsEnvelope(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, vaultKV2Response(map[string]interface{}{"hub_url": "nats://hub:4222"}))
	})

	data, err := m.GetKV2("secret/data/alchemist/bus")
	require.NoError(t, err)
	assert.Equal(t, "nats://hub:4222", data["hub_url"])
}

func TestGetSecretNotFound(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := m.GetSecret("secret/data/missing")
	require.Error(t, err)
}

func TestGetBusCredentialsIncomplete(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, vaultKV2Response(map[string]interface{}{"hub_url": "nats://hub:4222"}))
	})

	_, err := m.GetBusCredentials("secret/data/alchemist/bus")
	require.Error(t, err, "missing creds field must fail, not silently zero-value")
}

func TestGetBusCredentialsComplete(t *testing.T) {
	m := newTestManager(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, vaultKV2Response(map[string]interface{}{
			"hub_url": "nats://hub:4222",
			"creds":   "-----BEGIN NATS USER JWT-----\n...",
		}))
	})

	creds, err := m.GetBusCredentials("secret/data/alchemist/bus")
	require.NoError(t, err)
	assert.Equal(t, "nats://hub:4222", creds.HubURL)
}

func writeJSON(t *testing.T, w http.ResponseWriter, v map[string]interface{}) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	require.NoError(t, json.NewEncoder(w).Encode(v))
}
