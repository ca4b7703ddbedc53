package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"DistroApp/app/config"
	"DistroApp/app/models"
	"DistroApp/app/websocket"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStatusServer(t *testing.T, store *StoreService) (*StatusAPIServer, *SyncMetrics) {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics := NewSyncMetrics(reg)
	hub := websocket.NewHub(nil)
	server := NewStatusAPIServer(store, hub, reg, config.StatusServerConfig{Port: 8090}, zaptest.NewLogger(t))
	return server, metrics
}

func get(t *testing.T, handler http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	return getWithToken(t, handler, path, "")
}

func getWithToken(t *testing.T, handler http.Handler, path, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(TokenHeader, token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestStatusEndpoints(t *testing.T) {
	store := loadedStore(t, nil, time.Minute)
	_, err := store.AddCustomer(models.Customer{Name: "Shop"})
	require.NoError(t, err)

	server, _ := newTestStatusServer(t, store.StoreService)
	handler := server.Handler()

	rec := get(t, handler, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = getWithToken(t, handler, "/api/v1/status", server.Token())
	require.Equal(t, http.StatusOK, rec.Code)
	var status StatusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &status))
	assert.Equal(t, StateReady, status.State)
	assert.False(t, status.Connected)
	assert.Nil(t, status.LastSyncTime)
	assert.Equal(t, 1, status.Counts["customers"])
	assert.Equal(t, len(models.DefaultProducts()), status.Counts["products"])

	rec = getWithToken(t, handler, "/api/v1/export", server.Token())
	require.Equal(t, http.StatusOK, rec.Code)
	var snapshot models.Snapshot
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &snapshot))
	assert.Equal(t, models.ExportVersion, snapshot.Version)
	assert.Len(t, snapshot.Customers, 1)
}

func TestStatusExportBeforeLoad(t *testing.T) {
	store := newTestStore(t, nil, time.Minute)
	server, _ := newTestStatusServer(t, store.StoreService)

	rec := getWithToken(t, server.Handler(), "/api/v1/export", server.Token())
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestStatusRequiresPairingToken(t *testing.T) {
	store := loadedStore(t, nil, time.Minute)
	_, err := store.AddCustomer(models.Customer{Name: "Shop", Phone: "555-0100"})
	require.NoError(t, err)

	server, _ := newTestStatusServer(t, store.StoreService)
	handler := server.Handler()
	require.NotEmpty(t, server.Token())

	for _, path := range []string{"/api/v1/export", "/api/v1/status", "/ws"} {
		rec := get(t, handler, path)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
		assert.NotContains(t, rec.Body.String(), "555-0100")

		rec = getWithToken(t, handler, path, "not-the-token")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}

	rec := get(t, handler, "/api/v1/export?token="+server.Token())
	assert.Equal(t, http.StatusOK, rec.Code)

	// no wildcard CORS for browser pages on other origins
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://evil.example")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	other, _ := newTestStatusServer(t, store.StoreService)
	assert.NotEqual(t, server.Token(), other.Token())
}

func TestStatusMetrics(t *testing.T) {
	remote := newFakeRemote()
	store := newTestStore(t, remote, time.Minute)
	server, metrics := newTestStatusServer(t, store.StoreService)

	svc := NewRemoteSyncService(remote, RemoteSyncOptions{Metrics: metrics, Logger: zaptest.NewLogger(t)})
	svc.SyncAllData(context.Background(), sampleData())

	rec := get(t, server.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "distroapp_sync_runs_total")
	assert.Contains(t, body, `distroapp_sync_rows_total{entity="products",outcome="synced"} 2`)
}

func TestPairingQRCode(t *testing.T) {
	store := newTestStore(t, nil, time.Minute)
	server, _ := newTestStatusServer(t, store.StoreService)

	assert.True(t, strings.HasSuffix(server.StatusURL(), ":8090"))
	assert.True(t, strings.HasSuffix(server.PairingURL(), "/api/v1/status?token="+server.Token()))

	dataURL, err := server.PairingQRCode()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(dataURL, "data:image/png;base64,"))
}
