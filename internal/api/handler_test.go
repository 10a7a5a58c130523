package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/sentinel/internal/api"
	"github.com/gyaneshwarpardhi/sentinel/internal/config"
	"github.com/gyaneshwarpardhi/sentinel/internal/engine"
	"github.com/gyaneshwarpardhi/sentinel/internal/hub"
	"github.com/gyaneshwarpardhi/sentinel/internal/metrics"
	"github.com/gyaneshwarpardhi/sentinel/internal/notify"
	"github.com/gyaneshwarpardhi/sentinel/internal/store"
)

type stubNotifier struct {
	mu    sync.Mutex
	calls int
}

func (n *stubNotifier) NotifyCritical(context.Context, string) []notify.Outcome {
	n.mu.Lock()
	n.calls++
	n.mu.Unlock()
	return []notify.Outcome{
		{Channel: notify.ChannelEmail, Succeeded: true},
		{Channel: notify.ChannelPush, Succeeded: true},
		{Channel: notify.ChannelSMS, Succeeded: true},
	}
}

type testServer struct {
	srv   *httptest.Server
	hub   *hub.Hub
	store *store.Memory
	eng   *engine.Engine
	rec   *metrics.Recorder
}

func newTestServer(t *testing.T, loader *config.Loader) *testServer {
	t.Helper()
	reg := prometheus.NewRegistry()
	rec := metrics.NewRecorder(reg)
	h := hub.New()
	st := store.NewMemory([]string{"admin@example.com"})
	eng := engine.New(context.Background(), engine.Conf{EventWorkers: 2, QueueDepth: 16},
		h, st, &stubNotifier{}, rec)

	srv := httptest.NewServer(api.New(api.Deps{
		Engine:    eng,
		Hub:       h,
		Incidents: st,
		Metrics:   rec,
		Gatherer:  reg,
		Loader:    loader,
	}))
	t.Cleanup(func() {
		srv.Close()
		eng.Shutdown()
		_ = h.Close()
	})
	return &testServer{srv: srv, hub: h, store: st, eng: eng, rec: rec}
}

func (ts *testServer) post(t *testing.T, path, body string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Post(ts.srv.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func (ts *testServer) get(t *testing.T, path string) (*http.Response, map[string]interface{}) {
	t.Helper()
	resp, err := http.Get(ts.srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return resp, out
}

func TestSimulate_Accepted(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.post(t, "/api/simulate", `{"sensor_type":"temperature","payload":{"temperature":40}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "accepted", body["status"])
	assert.NotEmpty(t, body["event_id"])

	verdict := body["verdict"].(map[string]interface{})
	assert.Equal(t, "warning", verdict["status"])
	assert.Equal(t, "temperature", verdict["sensor_type"])
}

func TestSimulate_SensorAlias(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.post(t, "/api/simulate", `{"sensor":"access","payload":{"user":"bob"}}`)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	verdict := body["verdict"].(map[string]interface{})
	assert.Equal(t, "Access granted to user 'bob'.", verdict["message"])
}

func TestSimulate_Errors(t *testing.T) {
	ts := newTestServer(t, nil)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"unknown sensor", `{"sensor_type":"smoke","payload":{}}`, http.StatusNotFound},
		{"missing sensor", `{"payload":{}}`, http.StatusBadRequest},
		{"bad json", `{"sensor_type":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := ts.post(t, "/api/simulate", tt.body)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestObserver_ReceivesBroadcast(t *testing.T) {
	ts := newTestServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return ts.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, _ := ts.post(t, "/api/simulate", `{"sensor_type":"motion","payload":{"is_authorized":false,"zone":"A"}}`)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg map[string]string
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, "critical", msg["status"])
	assert.Equal(t, "motion", msg["sensor_type"])
	assert.Equal(t, "ALERT: unauthorized motion detected in zone A.", msg["message"])
	assert.Regexp(t, `^\d{2}:\d{2}:\d{2}$`, msg["timestamp"])
}

func TestObserver_UnregisteredOnDisconnect(t *testing.T) {
	ts := newTestServer(t, nil)

	wsURL := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return ts.hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return ts.hub.Len() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestIncidents(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.post(t, "/api/simulate", `{"sensor_type":"temperature","payload":{"temperature":60}}`)
	ts.post(t, "/api/simulate", `{"sensor_type":"temperature","payload":{"temperature":20}}`)

	require.Eventually(t, func() bool {
		list, _ := ts.store.RecentIncidents(context.Background(), 10)
		return len(list) == 1
	}, 2*time.Second, 10*time.Millisecond)

	resp, body := ts.get(t, "/api/incidents?limit=5")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	list := body["incidents"].([]interface{})
	require.Len(t, list, 1)
	assert.Equal(t, "critical", list[0].(map[string]interface{})["status"])

	resp, _ = ts.get(t, "/api/incidents?limit=zero")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSensorsAndMetrics(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.post(t, "/api/simulate", `{"sensor_type":"access","payload":{"user":"eve","access_granted":false}}`)
	require.Eventually(t, func() bool { return len(ts.eng.Snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	resp, body := ts.get(t, "/api/sensors")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	access := body["access"].(map[string]interface{})
	assert.Equal(t, "critical", access["status"])

	require.Eventually(t, func() bool { return ts.rec.Summary().Events == 1 }, 2*time.Second, 10*time.Millisecond)
	resp, body = ts.get(t, "/api/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["events_processed"])
	assert.NotContains(t, body, "events")
}

func TestPrometheusEndpointServesInjectedRegistry(t *testing.T) {
	ts := newTestServer(t, nil)

	ts.post(t, "/api/simulate", `{"sensor_type":"motion","payload":{"is_authorized":true}}`)
	require.Eventually(t, func() bool { return len(ts.eng.Snapshot()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.Eventually(t, func() bool {
		resp, err := http.Get(ts.srv.URL + "/metrics")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return false
		}
		return resp.StatusCode == http.StatusOK &&
			strings.Contains(string(body), `sentinel_events_processed_total{sensor_type="motion",status="ok"} 1`)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestProbes(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, body := ts.get(t, "/healthz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])

	resp, body = ts.get(t, "/readyz")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ready", body["status"])
}

func TestReloadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sentinel.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: v1\n"), 0o644))
	loader, err := config.NewLoader(path, nil)
	require.NoError(t, err)

	ts := newTestServer(t, loader)

	require.NoError(t, os.WriteFile(path, []byte("version: v2\n"), 0o644))
	resp, body := ts.post(t, "/api/config/reload", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "v2", body["version"])

	require.NoError(t, os.WriteFile(path, []byte("notify:\n  sms_workers: -1\n"), 0o644))
	resp, body = ts.post(t, "/api/config/reload", "")
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
	assert.Equal(t, "v2", loader.Config().Version)
}

func TestReloadDisabledWithoutLoader(t *testing.T) {
	ts := newTestServer(t, nil)

	resp, err := http.Post(ts.srv.URL+"/api/config/reload", "application/json", bytes.NewReader(nil))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
