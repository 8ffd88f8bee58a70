package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"filemonitor/internal/event"
	"filemonitor/internal/filter"
	"filemonitor/internal/journal"
	"filemonitor/internal/logging"
	"filemonitor/internal/metrics"
	"filemonitor/internal/monitor"
	"filemonitor/internal/version"
	"filemonitor/internal/watcher"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	server  *Server
	http    *httptest.Server
	root    string
	monitor *monitor.Monitor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	backend, err := watcher.NewWithOptions(watcher.Options{Settle: -1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = backend.Close() })

	logger := logging.NewLoggerWithOutput(logging.NewLogBuffer(logging.DefaultBufferSize), logging.LevelDebug, nil)
	registry := monitor.NewRegistry()
	metricsRegistry := metrics.NewRegistry()
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	m, err := monitor.New(monitor.Config{Path: root, Recursive: true},
		monitor.WithWatcher(backend),
		monitor.WithRegistry(registry),
		monitor.WithLogger(logger),
		monitor.WithMetrics(metricsRegistry),
	)
	require.NoError(t, err)
	t.Cleanup(registry.CancelAll)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	bus := event.NewBus[event.FileEvent](ctx, event.BusOptions{
		Name:        "file_events",
		HistorySize: 16,
		Metrics:     metricsRegistry,
		Logger:      logger,
	})

	server := &Server{
		Registry: registry,
		Bus:      bus,
		Logger:   logger,
		Metrics:  metricsRegistry,
	}
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)
	return &fixture{server: server, http: httpServer, root: root, monitor: m}
}

func getJSON(t *testing.T, url string, target any) int {
	t.Helper()
	response, err := http.Get(url)
	require.NoError(t, err)
	defer response.Body.Close()
	if target != nil {
		require.NoError(t, json.NewDecoder(response.Body).Decode(target))
	}
	return response.StatusCode
}

func dial(t *testing.T, f *fixture, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.http.URL, "http") + "/events" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFileEvent(t *testing.T, conn *websocket.Conn) event.FileEvent {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var payload event.FileEvent
	require.NoError(t, conn.ReadJSON(&payload))
	return payload
}

func waitForSubscribers(t *testing.T, bus *event.Bus[event.FileEvent], count int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return bus.SubscriberCount() >= count
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHealthAndWatches(t *testing.T) {
	f := newFixture(t)

	var health healthResponse
	require.Equal(t, http.StatusOK, getJSON(t, f.http.URL+"/healthz", &health))
	require.Equal(t, "ok", health.Status)
	require.Equal(t, 1, health.Monitors)
	require.Equal(t, version.Version, health.Version)

	var watches []watchesResponse
	require.Equal(t, http.StatusOK, getJSON(t, f.http.URL+"/watches", &watches))
	require.Len(t, watches, 1)
	require.Equal(t, f.root, watches[0].Path)
	require.Equal(t, []string{f.root, filepath.Join(f.root, "sub")}, watches[0].Watched)
	require.Equal(t, "active", watches[0].State)
}

func TestLogsEndpointFiltersByLevel(t *testing.T) {
	f := newFixture(t)
	f.server.Logger.Warn("disk nearly full", nil)

	var entries []logging.LogEntry
	require.Equal(t, http.StatusOK, getJSON(t, f.http.URL+"/logs?level=warning", &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "disk nearly full", entries[0].Message)

	require.Equal(t, http.StatusBadRequest, getJSON(t, f.http.URL+"/logs?level=loud", nil))
	require.Equal(t, http.StatusBadRequest, getJSON(t, f.http.URL+"/logs?limit=-1", nil))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	response, err := http.Get(f.http.URL + "/metrics")
	require.NoError(t, err)
	defer response.Body.Close()
	body := new(bytes.Buffer)
	_, err = body.ReadFrom(response.Body)
	require.NoError(t, err)
	require.Contains(t, body.String(), "filemonitor_monitors_active 1")
}

func TestEventsStreamFiltersByKind(t *testing.T) {
	f := newFixture(t)
	conn := dial(t, f, "?kind=created")
	waitForSubscribers(t, f.server.Bus, 1)

	f.server.Bus.Publish(event.NewFileEvent(f.root, filepath.Join(f.root, "a"), "changed"))
	f.server.Bus.Publish(event.NewFileEvent(f.root, filepath.Join(f.root, "b"), "created"))

	payload := readFileEvent(t, conn)
	require.Equal(t, "created", payload.Kind)
	require.Equal(t, filepath.Join(f.root, "b"), payload.Path)
	require.Equal(t, f.root, payload.Monitor)
}

func TestEventsStreamReplaysHistory(t *testing.T) {
	f := newFixture(t)
	f.server.Bus.Publish(event.NewFileEvent(f.root, "/old/1", "changed"))
	f.server.Bus.Publish(event.NewFileEvent(f.root, "/old/2", "deleted"))

	conn := dial(t, f, "?replay=1")
	payload := readFileEvent(t, conn)
	require.Equal(t, "/old/2", payload.Path)
}

func TestEventsStreamReplayThenLiveWithoutRepeats(t *testing.T) {
	f := newFixture(t)
	f.server.Bus.Publish(event.NewFileEvent(f.root, "/old/1", "changed"))

	conn := dial(t, f, "?replay=5")
	waitForSubscribers(t, f.server.Bus, 1)
	f.server.Bus.Publish(event.NewFileEvent(f.root, "/new/1", "created"))

	require.Equal(t, "/old/1", readFileEvent(t, conn).Path)
	require.Equal(t, "/new/1", readFileEvent(t, conn).Path)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	var extra event.FileEvent
	require.Error(t, conn.ReadJSON(&extra))
}

func TestPublishForwardsMonitorEvents(t *testing.T) {
	f := newFixture(t)
	matcher, err := filter.NewMatcher([]string{"*.swp"})
	require.NoError(t, err)
	stop := Publish(f.monitor, f.server.Bus, matcher)
	defer stop()

	events, cancel := f.server.Bus.Subscribe()
	defer cancel()

	require.NoError(t, os.WriteFile(filepath.Join(f.root, "sub", ".notes.swp"), nil, 0o600))
	target := filepath.Join(f.root, "sub", "notes.txt")
	require.NoError(t, os.WriteFile(target, nil, 0o600))

	deadline := time.After(2 * time.Second)
	for {
		select {
		case payload := <-events:
			require.NotEqual(t, ".notes.swp", filepath.Base(payload.Path))
			if payload.Path == target && payload.Kind == "created" {
				require.Equal(t, f.root, payload.Monitor)
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for forwarded event")
		}
	}
}

func TestJournalEndpoint(t *testing.T) {
	f := newFixture(t)
	require.Equal(t, http.StatusNotFound, getJSON(t, f.http.URL+"/journal", nil))

	j, err := journal.Open(filepath.Join(t.TempDir(), "events.db"))
	require.NoError(t, err)
	defer j.Close()
	f.server.Journal = j
	require.NoError(t, j.Record(context.Background(), event.NewFileEvent(f.root, "/x", "created")))

	var events []event.FileEvent
	require.Equal(t, http.StatusOK, getJSON(t, f.http.URL+"/journal?limit=5", &events))
	require.Len(t, events, 1)
	require.Equal(t, "/x", events[0].Path)
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	response, err := http.Post(f.http.URL+"/watches", "application/json", nil)
	require.NoError(t, err)
	defer response.Body.Close()
	require.Equal(t, http.StatusMethodNotAllowed, response.StatusCode)
	require.Equal(t, "GET", response.Header.Get("Allow"))
}

func TestServeShutsDownOnCancel(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- f.server.ListenAndServe(ctx, "127.0.0.1:0")
	}()
	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("server did not shut down")
	}
}
