// Package webui serves the chat front end's HTTP surface: posting messages,
// reading history and orchestration context, clearing sessions, and
// exporting transcripts. Every route speaks JSON.
package webui

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ColtMercer/nautobot-mcp/pkg/chat"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/metrics"
	"github.com/ColtMercer/nautobot-mcp/pkg/persistence"
	"github.com/ColtMercer/nautobot-mcp/pkg/registry"
	"github.com/ColtMercer/nautobot-mcp/pkg/session"
	"github.com/ColtMercer/nautobot-mcp/pkg/version"
)

// Server is the chat HTTP server.
type Server struct {
	svc         *chat.Service
	registry    *registry.Registry
	providerURL string
	logger      *logx.Logger
}

// NewServer creates the chat HTTP server. The registry and provider URL are
// optional; they enrich GET /context with catalog state and scraped
// provider metrics.
func NewServer(svc *chat.Service, reg *registry.Registry, providerURL string) *Server {
	return &Server{
		svc:         svc,
		registry:    reg,
		providerURL: strings.TrimSuffix(providerURL, "/"),
		logger:      logx.NewLogger("webui"),
	}
}

// RegisterRoutes attaches all chat API routes to the mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/history", s.handleHistory)
	mux.HandleFunc("/context", s.handleContext)
	mux.HandleFunc("/clear", s.handleClear)
	mux.HandleFunc("/export/", s.handleExport)
	mux.HandleFunc("/sessions", s.handleSessions)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())
}

// StartServer runs the server until the context is cancelled. It returns
// immediately; serving and shutdown happen in background goroutines.
func (s *Server) StartServer(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)

	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info("🚀 Chat server listening on %s", addr)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Server error: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		// Parent context is cancelled; shutdown needs a fresh one.
		s.logger.Info("Shutting down chat server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		//nolint:contextcheck // fresh context required after parent cancellation
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown failed: %v", err)
		}
	}()

	return nil
}

// handleChat implements POST /chat - runs one orchestrated turn.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var reqBody struct {
		SessionID string `json:"session_id"`
		Message   string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(reqBody.Message) == "" {
		http.Error(w, "Message is required", http.StatusBadRequest)
		return
	}

	sessionID := reqBody.SessionID
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	turn, err := s.svc.Post(r.Context(), sessionID, reqBody.Message)
	if err != nil {
		s.logger.Error("Failed to process message for session %s: %v", sessionID, err)
		http.Error(w, "Failed to process message", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, map[string]any{
		"session_id": sessionID,
		"turn":       turn,
	})
}

// handleHistory implements GET /history?session_id=...
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	turns, err := s.svc.History(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("Failed to load history for session %s: %v", sessionID, err)
		http.Error(w, "Failed to load history", http.StatusInternalServerError)
		return
	}
	if turns == nil {
		turns = []session.Turn{}
	}

	s.writeJSON(w, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	})
}

// handleContext implements GET /context?session_id=... - what the planner
// currently sees, plus catalog state and the provider's call counters.
func (s *Server) handleContext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	info, err := s.svc.Context(r.Context(), sessionID)
	if err != nil {
		s.logger.Error("Failed to build context for session %s: %v", sessionID, err)
		http.Error(w, "Failed to build context", http.StatusInternalServerError)
		return
	}

	response := map[string]any{"session": info}

	if s.registry != nil {
		snap := s.registry.Snapshot()
		response["catalog"] = map[string]any{
			"ready":        snap.Ready(),
			"capabilities": snap.Len(),
			"refreshed_at": snap.RefreshedAt(),
		}
	}

	if s.providerURL != "" {
		stats, err := metrics.ScrapeProvider(r.Context(), s.providerURL+"/metrics")
		if err != nil {
			// The provider being down should not hide the rest of the context.
			s.logger.Warn("⚠️  Provider metrics scrape failed: %v", err)
		} else {
			response["provider_metrics"] = stats
		}
	}

	s.writeJSON(w, response)
}

// handleClear implements POST /clear - wipes a session's history and cache.
func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var reqBody struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if reqBody.SessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	if err := s.svc.Clear(r.Context(), reqBody.SessionID); err != nil {
		s.logger.Error("Failed to clear session %s: %v", reqBody.SessionID, err)
		http.Error(w, "Failed to clear session", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, map[string]string{
		"status":     "cleared",
		"session_id": reqBody.SessionID,
	})
}

// handleExport implements GET /export/{json|md}?session_id=... - writes the
// transcript to disk and returns the file path.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	format := strings.TrimPrefix(r.URL.Path, "/export/")
	if format != "json" && format != "md" {
		http.Error(w, "Format must be 'json' or 'md'", http.StatusBadRequest)
		return
	}
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		http.Error(w, "session_id is required", http.StatusBadRequest)
		return
	}

	path, err := s.svc.Export(r.Context(), sessionID, format)
	if err != nil {
		if strings.Contains(err.Error(), "no history") {
			http.Error(w, "Session has no history to export", http.StatusNotFound)
			return
		}
		s.logger.Error("Failed to export session %s: %v", sessionID, err)
		http.Error(w, "Failed to export transcript", http.StatusInternalServerError)
		return
	}

	s.writeJSON(w, map[string]string{
		"session_id": sessionID,
		"format":     format,
		"path":       path,
	})
}

// handleSessions implements GET /sessions - lists persisted sessions.
func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	infos, err := s.svc.Sessions(r.Context())
	if err != nil {
		s.logger.Error("Failed to list sessions: %v", err)
		http.Error(w, "Failed to list sessions", http.StatusInternalServerError)
		return
	}
	if infos == nil {
		infos = []persistence.SessionInfo{}
	}

	s.writeJSON(w, map[string]any{"sessions": infos})
}

// handleHealth implements GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.writeJSON(w, map[string]string{
		"status":  "ok",
		"version": version.Version,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, body any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error("Failed to encode response: %v", err)
	}
}
