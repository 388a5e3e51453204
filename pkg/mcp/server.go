// Package mcp carries capability catalogs and tool invocations over
// HTTP+JSON. The server side fronts a registry.Provider for remote callers;
// the client side mounts a remote server as a registry.Provider, so the
// orchestrator cannot tell local and remote tools apart.
//
// Wire format: GET /tools lists the capability descriptors,
// POST /tools/{name}:invoke executes one with the JSON request body as the
// argument object and returns {"result": ...}. Error responses carry a
// single {"detail": ...} field.
package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ColtMercer/nautobot-mcp/pkg/capability"
	"github.com/ColtMercer/nautobot-mcp/pkg/logx"
	"github.com/ColtMercer/nautobot-mcp/pkg/metrics"
	"github.com/ColtMercer/nautobot-mcp/pkg/registry"
	"github.com/ColtMercer/nautobot-mcp/pkg/version"
)

const (
	// DefaultAPIKey authenticates invoke requests when no key is configured.
	// Development convenience only; deployments set their own.
	DefaultAPIKey = "dev-mcp-key"

	// DefaultAddr is the listen address used when none is configured.
	DefaultAddr = ":7000"

	// HeaderAPIKey carries the invoke credential.
	HeaderAPIKey = "X-API-Key"

	// HeaderCorrelationID threads a request ID through logs on both ends.
	HeaderCorrelationID = "X-Correlation-ID"

	invokeSuffix    = ":invoke"
	toolsPathPrefix = "/tools/"

	shutdownTimeout = 5 * time.Second
)

// ServerConfig configures the HTTP front end.
type ServerConfig struct {
	// Addr is the listen address, defaulting to DefaultAddr.
	Addr string

	// APIKey guards invoke requests, defaulting to DefaultAPIKey.
	APIKey string
}

// Server exposes one capability provider over HTTP. Health and catalog
// endpoints are open; invocations require the API key.
type Server struct {
	provider registry.Provider
	defs     map[string]capability.Capability
	catalog  []capability.Capability
	logger   *logx.Logger
	metrics  metrics.Recorder
	apiKey   string
	addr     string
}

// NewServer builds the HTTP front end for a provider. The capability catalog
// is discovered once here; providers are static for the life of the process.
func NewServer(provider registry.Provider, cfg ServerConfig, logger *logx.Logger, rec metrics.Recorder) (*Server, error) {
	if provider == nil {
		return nil, fmt.Errorf("mcp server requires a provider")
	}
	if logger == nil {
		logger = logx.NewLogger("mcp-server")
	}
	if rec == nil {
		rec = metrics.Nop()
	}

	catalog, err := provider.Discover(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to discover capabilities from provider '%s': %w", provider.Name(), err)
	}
	defs := make(map[string]capability.Capability, len(catalog))
	for _, c := range catalog {
		defs[c.Name] = c
	}

	addr := cfg.Addr
	if addr == "" {
		addr = DefaultAddr
	}
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = DefaultAPIKey
	}

	return &Server{
		provider: provider,
		defs:     defs,
		catalog:  catalog,
		logger:   logger,
		metrics:  rec,
		apiKey:   apiKey,
		addr:     addr,
	}, nil
}

// Handler returns the routing handler, exposed for tests and embedding.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/tools", s.handleListTools)
	mux.HandleFunc(toolsPathPrefix, s.handleInvoke)
	mux.Handle("/metrics", promhttp.Handler())
	return s.logRequests(mux)
}

// Start serves until ctx is cancelled, then drains in-flight requests and
// returns. A clean shutdown returns nil.
func (s *Server) Start(ctx context.Context) error {
	server := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info("🔄 Shutting down MCP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("HTTP server shutdown failed: %v", err)
		}
	}()

	s.logger.Info("🚀 MCP server listening on %s (%d tools)", s.addr, len(s.catalog))
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("mcp server failed: %w", err)
	}
	return nil
}

// logRequests logs every request with its correlation ID, minting one when
// the caller did not send one. The ID is echoed in the response headers.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get(HeaderCorrelationID)
		if correlationID == "" {
			correlationID = uuid.New().String()
		}
		w.Header().Set(HeaderCorrelationID, correlationID)

		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(recorder, r)

		s.logger.Info("📥 %s %s -> %d in %dms (correlation=%s)",
			r.Method, r.URL.Path, recorder.status, time.Since(start).Milliseconds(), correlationID)
	})
}

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "healthy",
		"version":   version.Version,
		"build_sha": version.Commit,
	})
}

func (s *Server) handleListTools(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": s.catalog})
}

func (s *Server) handleInvoke(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
		return
	}
	if r.Header.Get(HeaderAPIKey) != s.apiKey {
		writeError(w, http.StatusUnauthorized, "Invalid API key")
		return
	}

	name, ok := toolNameFromPath(r.URL.Path)
	if !ok {
		writeError(w, http.StatusNotFound, "Not found")
		return
	}
	def, ok := s.defs[name]
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Sprintf("Tool '%s' not found", name))
		return
	}

	args, err := decodeArgs(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Request body must be a JSON object")
		return
	}
	if err := capability.ValidateArgs(&def, args); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	start := time.Now()
	result, err := s.provider.Invoke(r.Context(), name, args)
	elapsed := time.Since(start)
	if err != nil {
		s.metrics.ObserveCall("", name, "error", elapsed)
		s.logger.Error("❌ Tool invocation failed: %s: %v", name, err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.metrics.ObserveCall("", name, "success", elapsed)
	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

// toolNameFromPath extracts the tool name from "/tools/{name}:invoke".
func toolNameFromPath(path string) (string, bool) {
	rest, ok := strings.CutPrefix(path, toolsPathPrefix)
	if !ok {
		return "", false
	}
	name, ok := strings.CutSuffix(rest, invokeSuffix)
	if !ok || name == "" || strings.Contains(name, "/") {
		return "", false
	}
	return name, true
}

// decodeArgs reads the request body as a JSON object. An empty body counts
// as no arguments so zero-argument tools can be invoked bare.
func decodeArgs(body io.Reader) (map[string]any, error) {
	raw, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, err
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]any{"detail": detail})
}
