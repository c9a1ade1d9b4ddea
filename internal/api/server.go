package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"waggletag/internal/config"
	"waggletag/internal/label"
	"waggletag/internal/logging"
	"waggletag/internal/services"
	"waggletag/internal/session"
	"waggletag/internal/snippet"
	"waggletag/internal/store"
)

// Server exposes the labeling UI contract over HTTP. The front-end
// never touches the store or the filesystem directly; every read and
// every label write flows through these endpoints.
type Server struct {
	bind       string
	token      string
	logger     *slog.Logger
	labels     *store.Store
	controller *session.Controller

	listener net.Listener
	server   *http.Server
}

// NewServer wires the HTTP surface over the label store and a session
// controller. Returns nil when no bind address is configured.
func NewServer(cfg *config.Config, labels *store.Store, controller *session.Controller, logger *slog.Logger) (*Server, error) {
	if cfg == nil || labels == nil || controller == nil {
		return nil, errors.New("api server requires config, store, and session controller")
	}
	bind := strings.TrimSpace(cfg.API.Bind)
	if bind == "" {
		return nil, nil
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	srv := &Server{
		bind:       bind,
		token:      strings.TrimSpace(cfg.API.Token),
		logger:     logging.NewComponentLogger(logger, "api"),
		labels:     labels,
		controller: controller,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", srv.handleHealth)
	mux.HandleFunc("/api/stats", srv.handleStats)
	mux.HandleFunc("/api/snippets", srv.handleList)
	mux.HandleFunc("/api/snippets/", srv.handleSnippet)
	mux.HandleFunc("/api/videos/", srv.handleVideo)

	srv.server = &http.Server{
		Handler:           srv.withRequestID(srv.withAuth(mux)),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

// Handler returns the full middleware-wrapped handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

// Start begins serving and shuts down when ctx is canceled.
func (s *Server) Start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

// Addr returns the bound address once the server started.
func (s *Server) Addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down.
func (s *Server) Stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

// withRequestID tags every request with a correlation id that follows
// it through logs and error responses.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", requestID)
		ctx := services.WithRequestID(r.Context(), requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// withAuth enforces the optional bearer token. Health stays open so
// probes work without credentials.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" || r.URL.Path == "/api/health" {
			next.ServeHTTP(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		if header != "Bearer "+s.token {
			s.writeError(w, r, http.StatusUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	stats, err := s.labels.Stats(r.Context())
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	counts := make(map[string]int, len(stats))
	total := 0
	for status, count := range stats {
		counts[string(status)] = count
		total += count
	}
	s.writeJSON(w, http.StatusOK, StatsResponse{Counts: counts, Total: total})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	filter, err := filterFromQuery(r)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	entries, err := s.labels.Query(r.Context(), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	payload := SnippetListResponse{Snippets: make([]SnippetSummary, 0, len(entries))}
	for _, entry := range entries {
		payload.Snippets = append(payload.Snippets, FromEntry(entry))
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *Server) handleSnippet(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/snippets/")
	key, sub, _ := strings.Cut(rest, "/")
	id, err := snippet.ParseKey(key)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "malformed snippet key")
		return
	}

	switch {
	case sub == "" && r.Method == http.MethodGet:
		s.loadSnippet(w, r, id)
	case sub == "label" && r.Method == http.MethodPut:
		s.saveLabel(w, r, id)
	case sub == "" || sub == "label":
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	default:
		s.writeError(w, r, http.StatusNotFound, "not found")
	}
}

func (s *Server) loadSnippet(w http.ResponseWriter, r *http.Request, id snippet.Identity) {
	view, err := s.controller.Load(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SnippetDetailResponse{
		Snippet:  FromLabel(id, view.Label),
		VideoURL: "/api/videos/" + id.Key(),
	})
}

func (s *Server) saveLabel(w http.ResponseWriter, r *http.Request, id snippet.Identity) {
	var req LabelUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, "malformed request body")
		return
	}
	saved, err := s.controller.SetLabel(r.Context(), id, label.Label{
		TagStatus: label.TagStatus(req.TagStatus),
		DanceType: label.DanceType(req.DanceType),
	})
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, SnippetDetailResponse{
		Snippet:  FromLabel(id, saved),
		VideoURL: "/api/videos/" + id.Key(),
	})
}

func (s *Server) handleVideo(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		s.writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	key := strings.TrimPrefix(r.URL.Path, "/api/videos/")
	id, err := snippet.ParseKey(key)
	if err != nil {
		s.writeError(w, r, http.StatusBadRequest, "malformed snippet key")
		return
	}
	view, err := s.controller.Load(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "video/mp4")
	http.ServeFile(w, r, view.VideoPath)
}

func filterFromQuery(r *http.Request) (store.Filter, error) {
	var filter store.Filter
	query := r.URL.Query()
	for _, value := range query["tag"] {
		status, ok := label.ParseTagStatus(value)
		if !ok {
			return store.Filter{}, fmt.Errorf("unknown tag status %q", value)
		}
		filter.TagStatuses = append(filter.TagStatuses, status)
	}
	for _, value := range query["dance"] {
		dance, ok := label.ParseDanceType(value)
		if !ok {
			return store.Filter{}, fmt.Errorf("unknown dance type %q", value)
		}
		filter.DanceTypes = append(filter.DanceTypes, dance)
	}
	for _, value := range query["source"] {
		source, ok := label.ParseSource(value)
		if !ok {
			return store.Filter{}, fmt.Errorf("unknown label source %q", value)
		}
		filter.Sources = append(filter.Sources, source)
	}
	if date := strings.TrimSpace(query.Get("date")); date != "" {
		normalized, err := snippet.NormalizeDate(date)
		if err != nil {
			return store.Filter{}, fmt.Errorf("malformed date %q", date)
		}
		filter.Date = normalized
	}
	if camera := strings.TrimSpace(query.Get("camera")); camera != "" {
		parsed, err := strconv.Atoi(camera)
		if err != nil || parsed < 0 {
			return store.Filter{}, fmt.Errorf("malformed camera %q", camera)
		}
		filter.Camera = &parsed
	}
	return filter, nil
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var corrupt *store.CorruptError
	switch {
	case errors.As(err, &corrupt):
		s.logger.Error("corrupt label record", logging.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, corrupt.Error())
	case errors.Is(err, services.ErrNotFound):
		s.writeError(w, r, http.StatusNotFound, "snippet not found")
	case errors.Is(err, services.ErrValidation):
		s.writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrConflict):
		s.writeError(w, r, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", logging.Error(err))
		s.writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	requestID, _ := services.RequestIDFromContext(r.Context())
	s.writeJSON(w, status, map[string]string{
		"error":      message,
		"request_id": requestID,
	})
}
