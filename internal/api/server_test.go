package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scanhub/scanhub/internal/broadcast"
	"github.com/scanhub/scanhub/internal/config"
	"github.com/scanhub/scanhub/internal/runner"
	"github.com/scanhub/scanhub/internal/scanning"
	"github.com/scanhub/scanhub/internal/scheduler"
	"github.com/scanhub/scanhub/internal/workers"
)

type testEnv struct {
	server  *Server
	manager *scanning.Manager
	store   scheduler.Store
	ts      *httptest.Server
}

func writeFakeScan(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fakescan")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func newTestEnv(t *testing.T, binary string) *testEnv {
	t.Helper()

	scanCfg := config.ScanningConfig{
		Binary:           binary,
		WorkerPoolSize:   4,
		QueueSize:        16,
		MaxScanTimeout:   30 * time.Second,
		SessionRetention: time.Minute,
		DefaultThreads:   100,
		DefaultPreset:    "basic",
	}
	hub := broadcast.NewHub(nil, nil)
	pool := workers.New(workers.Config{Size: 4, QueueSize: 16, ShutdownTimeout: 5 * time.Second}, nil)
	pool.Start()
	t.Cleanup(pool.Shutdown)

	manager := scanning.NewManager(scanCfg, runner.New(binary, nil), hub, pool, nil, nil)
	store := scheduler.NewMemoryStore()
	engine := scheduler.NewEngine(store, manager, time.Hour, nil, nil)
	t.Cleanup(engine.Stop)

	apiCfg := config.APIConfig{
		Host:         "127.0.0.1",
		Port:         0,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  5 * time.Second,
		EnableCORS:   false,
	}
	server := New(apiCfg, manager, store, engine, hub, nil, nil, nil)

	ts := httptest.NewServer(server.Router())
	t.Cleanup(ts.Close)

	return &testEnv{server: server, manager: manager, store: store, ts: ts}
}

func (e *testEnv) post(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(e.ts.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	return resp
}

func (e *testEnv) get(t *testing.T, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(e.ts.URL + path)
	require.NoError(t, err)
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var out T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestStartScanEndpoint(t *testing.T) {
	env := newTestEnv(t, writeFakeScan(t, "exit 0\n"))

	resp := env.post(t, "/scan", map[string]any{"target": "10.0.0.1", "ports": "22,80"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snap := decode[scanning.Snapshot](t, resp)
	assert.NotEqual(t, uuid.Nil, snap.ID)
	assert.Contains(t, snap.Command, "10.0.0.1")
}

func TestStartScanValidationErrors(t *testing.T) {
	env := newTestEnv(t, "/bin/true")

	cases := []map[string]any{
		{"target": "not-an-ip"},
		{"target": "10.0.0.1", "ports": "80,"},
		{"target": "10.0.0.1", "preset": "stealth"},
		{"ports": "80"},
	}
	for _, body := range cases {
		resp := env.post(t, "/scan", body)
		errResp := decode[ErrorResponse](t, resp)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "body %v", body)
		assert.NotEmpty(t, errResp.Error)
	}
}

func TestGetAndListScans(t *testing.T) {
	env := newTestEnv(t, writeFakeScan(t, "exit 0\n"))

	resp := env.post(t, "/scan", map[string]any{"target": "10.0.0.1"})
	snap := decode[scanning.Snapshot](t, resp)

	_, err := env.manager.AwaitTerminal(context.Background(), snap.ID)
	require.NoError(t, err)

	resp = env.get(t, "/scan/"+snap.ID.String())
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[scanning.Snapshot](t, resp)
	assert.Equal(t, scanning.StatusCompleted, got.Status)

	resp = env.get(t, "/scan")
	list := decode[[]scanning.Snapshot](t, resp)
	require.Len(t, list, 1)

	resp = env.get(t, "/scan/"+uuid.NewString())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = env.get(t, "/scan/garbage")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestCancelScanEndpoint(t *testing.T) {
	env := newTestEnv(t, writeFakeScan(t, "echo running\nexec sleep 30\n"))

	resp := env.post(t, "/scan", map[string]any{"target": "10.0.0.1"})
	snap := decode[scanning.Snapshot](t, resp)

	resp = env.post(t, "/scan/"+snap.ID.String()+"/cancel", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	// Cancelled sessions disappear, so a second cancel is a 404.
	assert.Eventually(t, func() bool {
		resp := env.post(t, "/scan/"+snap.ID.String()+"/cancel", nil)
		defer resp.Body.Close()
		return resp.StatusCode == http.StatusNotFound
	}, 5*time.Second, 50*time.Millisecond)
}

func TestScheduleCRUDRoundTrip(t *testing.T) {
	env := newTestEnv(t, "/bin/true")

	resp := env.post(t, "/schedule/submit", map[string]any{
		"target":       "10.0.0.0/24",
		"ports":        "22",
		"run_at":       "09:00",
		"days_of_week": []int{1, 3},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	created := decode[map[string]any](t, resp)
	jobID := created["job_id"].(string)
	require.NotEmpty(t, jobID)
	assert.NotNil(t, created["next_run_time"])

	resp = env.get(t, "/schedule/api")
	schedules := decode[[]scheduler.Schedule](t, resp)
	require.Len(t, schedules, 1)
	assert.Equal(t, "10.0.0.0/24", schedules[0].Target)

	resp = env.post(t, "/schedule/"+jobID+"/update", map[string]any{"ports": "443"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[map[string]any](t, resp)
	assert.Equal(t, true, updated["success"])

	resp = env.post(t, "/schedule/"+jobID+"/cancel", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.get(t, "/schedule/api")
	schedules = decode[[]scheduler.Schedule](t, resp)
	assert.Empty(t, schedules)
}

func TestScheduleValidationAndNotFound(t *testing.T) {
	env := newTestEnv(t, "/bin/true")

	resp := env.post(t, "/schedule/submit", map[string]any{
		"target": "10.0.0.1",
		"run_at": "9am",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = env.post(t, "/schedule/"+uuid.NewString()+"/update", map[string]any{"ports": "443"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()

	resp = env.post(t, "/schedule/"+uuid.NewString()+"/run", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestRunScheduleNow(t *testing.T) {
	env := newTestEnv(t, writeFakeScan(t, "exit 0\n"))

	resp := env.post(t, "/schedule/submit", map[string]any{
		"target":       "10.0.0.1",
		"run_at":       "23:59",
		"days_of_week": []int{int(time.Now().Add(48 * time.Hour).Weekday())},
	})
	created := decode[map[string]any](t, resp)
	jobID := created["job_id"].(string)

	resp = env.post(t, "/schedule/"+jobID+"/run", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	run := decode[map[string]any](t, resp)
	assert.Equal(t, true, run["success"])

	scanID, err := uuid.Parse(run["scan_id"].(string))
	require.NoError(t, err)
	status, err := env.manager.AwaitTerminal(context.Background(), scanID)
	require.NoError(t, err)
	assert.Equal(t, scanning.StatusCompleted, status)
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, "/bin/true")

	resp := env.get(t, "/livez")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = env.get(t, "/healthz")
	health := decode[map[string]any](t, resp)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", health["status"])

	resp = env.get(t, "/metrics")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()
}

func TestContentTypeEnforcement(t *testing.T) {
	env := newTestEnv(t, "/bin/true")

	resp, err := http.Post(env.ts.URL+"/scan", "text/plain", strings.NewReader("target=x"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusUnsupportedMediaType, resp.StatusCode)
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
}

func TestWebSocketStreamsScanEvents(t *testing.T) {
	marker := filepath.Join(t.TempDir(), "go")
	script := fmt.Sprintf(`while [ ! -f %s ]; do sleep 0.01; done
echo "Starting scan"
echo "Stats: About 50.00%% done"
exit 0
`, marker)
	env := newTestEnv(t, writeFakeScan(t, script))

	resp := env.post(t, "/scan", map[string]any{"target": "10.0.0.1"})
	snap := decode[scanning.Snapshot](t, resp)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "join", "scan_id": snap.ID.String()}))
	// Give the join a moment to land before releasing the scan.
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(marker, nil, 0o644))

	var types []string
	var percent float64
	deadline := time.Now().Add(10 * time.Second)
	for {
		require.NoError(t, conn.SetReadDeadline(deadline))
		var event map[string]any
		require.NoError(t, conn.ReadJSON(&event))
		types = append(types, event["type"].(string))
		if event["type"] == "scan_progress" {
			percent = event["percent"].(float64)
		}
		if event["type"] == "scan_complete" || event["type"] == "scan_error" {
			break
		}
	}

	assert.Equal(t, "scan_complete", types[len(types)-1])
	assert.Contains(t, types, "scan_update")
	assert.Contains(t, types, "scan_progress")
	assert.Equal(t, float64(50), percent)
}

func TestWebSocketNoReplayAfterCompletion(t *testing.T) {
	env := newTestEnv(t, writeFakeScan(t, "echo line1\necho line2\necho line3\nexit 0\n"))

	resp := env.post(t, "/scan", map[string]any{"target": "10.0.0.1"})
	snap := decode[scanning.Snapshot](t, resp)
	_, err := env.manager.AwaitTerminal(context.Background(), snap.ID)
	require.NoError(t, err)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(env.ts), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, conn.WriteJSON(map[string]string{"type": "join", "scan_id": snap.ID.String()}))

	// Nothing should arrive: history is not replayed.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(300*time.Millisecond)))
	var event map[string]any
	err = conn.ReadJSON(&event)
	require.Error(t, err)
	assert.True(t, os.IsTimeout(err) || strings.Contains(err.Error(), "timeout"))
}
