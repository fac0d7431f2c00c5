// Package server provides the HTTP and WebSocket surface of the recognizer.
package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/ayusman/mudra/internal/emitter"
	"github.com/ayusman/mudra/internal/server/api"
	"github.com/ayusman/mudra/internal/session"
	"github.com/ayusman/mudra/internal/store"
)

// Config holds the server configuration. Nil collaborators disable the
// routes that need them.
type Config struct {
	StaticDir      string
	Session        *session.Handler
	Store          *store.Store
	Hub            *VerdictHub
	Emitter        *emitter.MQTTEmitter // reported by /api/health when set
	MaxUploadBytes int64
}

// Server routes API requests.
type Server struct {
	config Config
	mux    *http.ServeMux
	start  time.Time
}

// New creates a Server with the given configuration.
func New(config Config) *Server {
	if config.MaxUploadBytes <= 0 {
		config.MaxUploadBytes = api.DefaultMaxUpload
	}
	s := &Server{
		config: config,
		mux:    http.NewServeMux(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/health", s.handleHealth)
	s.mux.HandleFunc("/api/actions", s.handleActions)
	s.mux.HandleFunc("/api/start-stream", s.handleStartStream)
	s.mux.Handle("/api/predict", api.NewPredictHandler(s.config.Session, s.config.MaxUploadBytes))

	if s.config.Session != nil {
		s.mux.Handle("/api/ws/predict", NewPredictSocket(s.config.Session, s.config.MaxUploadBytes))
	}
	if s.config.Hub != nil {
		s.mux.Handle("/api/ws/verdicts", s.config.Hub)
	}
	if s.config.Store != nil {
		predictions := api.NewPredictionHandler(s.config.Store)
		s.mux.Handle("/api/predictions", predictions)
		s.mux.Handle("/api/predictions/", predictions)
	}

	if s.config.StaticDir != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements http.Handler. Every response carries permissive
// CORS headers and preflight requests are answered directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", "*")
	h.Set("Access-Control-Allow-Headers", "Content-Type,Authorization,X-Requested-With")
	h.Set("Access-Control-Allow-Methods", "GET,PUT,POST,DELETE,OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}
	s.mux.ServeHTTP(w, r)
}

// HTTPServer returns an http.Server for addr serving s.
func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// handleHealth handles GET /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	body := map[string]any{
		"status":       "healthy",
		"model_loaded": s.config.Session != nil && s.config.Session.ModelLoaded(),
		"uptime":       time.Since(s.start).Round(time.Second).String(),
	}
	if s.config.Emitter != nil {
		body["mqtt"] = s.config.Emitter.Stats()
	}
	writeJSON(w, http.StatusOK, body)
}

// handleActions handles GET /api/actions.
func (s *Server) handleActions(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}

	actions := []string{}
	if s.config.Session != nil {
		actions = append(actions, s.config.Session.Labels()...)
	}
	writeJSON(w, http.StatusOK, map[string]any{"actions": actions})
}

// handleStartStream handles POST /api/start-stream. Sessions are stateless,
// so this only confirms the service is ready to take live frames.
func (s *Server) handleStartStream(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "stream_ready"})
}
