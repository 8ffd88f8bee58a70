package server

import (
	"net/http"
	"strconv"
	"strings"

	"filemonitor/internal/event"
	"filemonitor/internal/logging"
	"filemonitor/internal/version"
)

const (
	defaultLogLimit     = 200
	defaultJournalLimit = 100
)

type watchesResponse struct {
	Path      string   `json:"path"`
	Recursive bool     `json:"recursive"`
	Flags     string   `json:"flags"`
	State     string   `json:"state"`
	Watched   []string `json:"watched"`
}

type healthResponse struct {
	Status   string `json:"status"`
	Monitors int    `json:"monitors"`
	Version  string `json:"version"`
}

func (s *Server) handleWatches(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	monitors := s.Registry.Monitors()
	response := make([]watchesResponse, 0, len(monitors))
	for _, m := range monitors {
		response = append(response, watchesResponse{
			Path:      m.Path(),
			Recursive: m.Recursive(),
			Flags:     m.Flags().String(),
			State:     m.State().String(),
			Watched:   m.Watched(),
		})
	}
	writeJSON(w, http.StatusOK, response)
	return nil
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if s.Logger == nil || s.Logger.Buffer() == nil {
		return &apiError{Status: http.StatusServiceUnavailable, Message: "logs unavailable"}
	}
	limit, err := parseLimit(r, defaultLogLimit)
	if err != nil {
		return err
	}
	minLevel := logging.Level("")
	if raw := strings.TrimSpace(r.URL.Query().Get("level")); raw != "" {
		parsed, ok := logging.ParseLevel(raw)
		if !ok {
			return &apiError{Status: http.StatusBadRequest, Message: "invalid log level"}
		}
		minLevel = parsed
	}
	entries := s.Logger.Buffer().Recent(limit, minLevel)
	if entries == nil {
		entries = []logging.LogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
	return nil
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	if s.Journal == nil {
		return &apiError{Status: http.StatusNotFound, Message: "journal disabled"}
	}
	limit, apiErr := parseLimit(r, defaultJournalLimit)
	if apiErr != nil {
		return apiErr
	}
	events, err := s.Journal.Recent(r.Context(), r.URL.Query().Get("monitor"), limit)
	if err != nil {
		return &apiError{Status: http.StatusInternalServerError, Message: err.Error()}
	}
	if events == nil {
		events = []event.FileEvent{}
	}
	writeJSON(w, http.StatusOK, events)
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) *apiError {
	if r.Method != http.MethodGet {
		return methodNotAllowed(w, "GET")
	}
	writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Monitors: s.Registry.Len(), Version: version.Get().Version})
	return nil
}

func parseLimit(r *http.Request, fallback int) (int, *apiError) {
	raw := strings.TrimSpace(r.URL.Query().Get("limit"))
	if raw == "" {
		return fallback, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, &apiError{Status: http.StatusBadRequest, Message: "invalid limit"}
	}
	return limit, nil
}
