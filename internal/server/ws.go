package server

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"filemonitor/internal/event"
	"filemonitor/internal/logging"

	"github.com/gorilla/websocket"
)

const (
	wsReadBufferSize  = 1024
	wsWriteBufferSize = 1024
	wsWriteTimeout    = 10 * time.Second
	maxReplay         = 1000
)

type wsWriteLoop struct {
	conn     *websocket.Conn
	stopOnce sync.Once
	done     chan struct{}
}

func (loop *wsWriteLoop) Stop() {
	loop.stopOnce.Do(func() {
		close(loop.done)
	})
}

// handleEvents streams file events as JSON. Query parameters narrow the
// stream: kind (comma separated), monitor, and replay (number of recent
// events to send first).
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.Bus == nil {
		http.Error(w, "event stream unavailable", http.StatusServiceUnavailable)
		return
	}
	query := r.URL.Query()
	replay := 0
	if raw := strings.TrimSpace(query.Get("replay")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			http.Error(w, "invalid replay", http.StatusBadRequest)
			return
		}
		replay = min(parsed, maxReplay)
	}
	allows := eventFilter(splitList(query.Get("kind")), strings.TrimSpace(query.Get("monitor")))

	history, output, cancel := s.Bus.SubscribeWithHistory(allows)
	defer cancel()

	conn, err := s.upgrader().Upgrade(w, r, nil)
	if err != nil {
		s.logWSError(r, "websocket upgrade failed", err)
		return
	}
	defer conn.Close()

	loop := &wsWriteLoop{conn: conn, done: make(chan struct{})}
	defer loop.Stop()

	var backlog []event.FileEvent
	for _, past := range history {
		if allows(past) {
			backlog = append(backlog, past)
		}
	}
	if replay < len(backlog) {
		backlog = backlog[len(backlog)-replay:]
	}
	go s.writeLoop(loop, backlog, output)

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writeLoop(loop *wsWriteLoop, backlog []event.FileEvent, output <-chan event.FileEvent) {
	write := func(payload event.FileEvent) bool {
		if err := loop.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout)); err != nil {
			return false
		}
		return loop.conn.WriteJSON(payload) == nil
	}
	for _, past := range backlog {
		if !write(past) {
			return
		}
	}
	for {
		select {
		case payload, ok := <-output:
			if !ok {
				deadline := time.Now().Add(wsWriteTimeout)
				_ = loop.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "event stream closed"), deadline)
				return
			}
			if !write(payload) {
				return
			}
		case <-loop.done:
			return
		}
	}
}

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  wsReadBufferSize,
		WriteBufferSize: wsWriteBufferSize,
		CheckOrigin: func(r *http.Request) bool {
			return isOriginAllowed(r, s.AllowedOrigins)
		},
	}
}

func eventFilter(kinds []string, monitor string) func(event.FileEvent) bool {
	kindSet := make(map[string]struct{}, len(kinds))
	for _, kind := range kinds {
		kindSet[kind] = struct{}{}
	}
	return func(payload event.FileEvent) bool {
		if monitor != "" && payload.Monitor != monitor {
			return false
		}
		if len(kindSet) == 0 {
			return true
		}
		_, ok := kindSet[payload.Kind]
		return ok
	}
}

func isOriginAllowed(r *http.Request, allowed []string) bool {
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, candidate := range allowed {
		if candidate == "*" || strings.EqualFold(candidate, origin) {
			return true
		}
	}
	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}
	return strings.EqualFold(parsed.Host, r.Host)
}

func splitList(raw string) []string {
	var values []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.ToLower(strings.TrimSpace(part)); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}

func (s *Server) logWSError(r *http.Request, message string, err error) {
	if s.Logger == nil {
		return
	}
	fields := map[string]string{
		"filemonitor.category": "server",
		"path":                 r.URL.Path,
	}
	if r.RemoteAddr != "" {
		fields["remote_addr"] = r.RemoteAddr
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if s.Logger.Enabled(logging.LevelWarning) {
		s.Logger.Warn(message, fields)
	}
}
