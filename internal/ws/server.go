package ws

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/driftwatch/backend/internal/config"
	"github.com/driftwatch/backend/internal/detect"
	"github.com/driftwatch/backend/internal/persist"
	"github.com/driftwatch/backend/internal/session"
)

// StatsProvider exposes the persisted aggregate statistics.
type StatsProvider interface {
	Stats() persist.Stats
}

// Server owns the HTTP surface: the /ws socket (signal ingest plus state
// fan-out) and the REST endpoints for voyage lifecycle, responses, and
// stats.
type Server struct {
	config         *config.Config
	engine         *detect.Engine
	voyage         *session.Context
	broadcaster    *Broadcaster
	stats          StatsProvider
	allowedOrigins map[string]bool
	allowedHosts   map[string]bool
	authToken      string
}

func NewServer(cfg *config.Config, engine *detect.Engine, voyage *session.Context, broadcaster *Broadcaster, allowedOrigins []string, authToken string) *Server {
	s := &Server{
		config:         cfg,
		engine:         engine,
		voyage:         voyage,
		broadcaster:    broadcaster,
		allowedOrigins: make(map[string]bool),
		allowedHosts:   make(map[string]bool),
		authToken:      authToken,
	}

	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}

	return s
}

// SetStatsProvider configures the source for the /api/stats endpoint.
// Must be called before SetupRoutes.
func (s *Server) SetStatsProvider(stats StatsProvider) {
	s.stats = stats
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/voyage", s.handleVoyage)
	mux.HandleFunc("/api/respond", s.handleRespond)
	mux.HandleFunc("/api/exploring", s.handleExploring)
	mux.HandleFunc("/api/stats", s.handleStats)
	mux.HandleFunc("/api/config", s.handleConfig)
}

// CurrentSnapshot builds the client-facing state payload. The broadcaster
// uses it as its snapshot source.
func CurrentSnapshot(engine *detect.Engine, voyage *session.Context) SnapshotPayload {
	payload := SnapshotPayload{State: engine.Snapshot()}
	if v, ok := voyage.Current(); ok {
		payload.Voyage = &v
	}
	return payload
}

// SnapshotPayload builds the full client-facing state.
func (s *Server) SnapshotPayload() SnapshotPayload {
	return CurrentSnapshot(s.engine, s.voyage)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: s.checkOrigin,
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade error: %v", err)
		return
	}

	log.Printf("WebSocket client connected: %s", r.RemoteAddr)
	c := s.broadcaster.AddClient(conn)

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			log.Printf("WebSocket client disconnected: %s", r.RemoteAddr)
		}()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			s.handleSignal(data)
		}
	}()
}

// handleSignal dispatches one inbound socket message to the engine. Unknown
// or malformed signals are logged and dropped; a misbehaving client must not
// take the socket down.
func (s *Server) handleSignal(data []byte) {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Printf("ws signal parse error: %v", err)
		return
	}

	switch msg.Type {
	case SignalVisibility:
		if msg.Hidden {
			s.engine.PageHidden()
		} else {
			s.engine.PageVisible()
		}
	case SignalNavigation:
		s.engine.Navigated(msg.URL)
	case SignalActivity:
		s.engine.InputActivity()
	case SignalRespond:
		choice, ok := session.ParseChoice(msg.Choice)
		if !ok {
			log.Printf("ws respond signal: unknown choice %q", msg.Choice)
			return
		}
		s.engine.Respond(choice)
	case SignalExploring:
		s.engine.SetExploring(msg.Exploring)
	default:
		log.Printf("ws unknown signal type: %q", msg.Type)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.SnapshotPayload())
}

type startVoyageRequest struct {
	Goal        string   `json:"goal"`
	RelatedApps []string `json:"relatedApps,omitempty"`
}

func (s *Server) handleVoyage(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodPost:
		var req startVoyageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}
		if strings.TrimSpace(req.Goal) == "" {
			http.Error(w, "goal is required", http.StatusBadRequest)
			return
		}
		v := s.engine.StartVoyage(req.Goal, req.RelatedApps)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)

	case http.MethodDelete:
		v, ok := s.engine.EndVoyage()
		if !ok {
			http.Error(w, "no active voyage", http.StatusConflict)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(v)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

type respondRequest struct {
	Choice string `json:"choice"`
}

func (s *Server) handleRespond(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.voyage.IsActive() {
		http.Error(w, "no active voyage", http.StatusConflict)
		return
	}

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	choice, ok := session.ParseChoice(req.Choice)
	if !ok {
		http.Error(w, "unknown choice", http.StatusBadRequest)
		return
	}

	s.engine.Respond(choice)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.SnapshotPayload())
}

type exploringRequest struct {
	Exploring bool `json:"exploring"`
}

func (s *Server) handleExploring(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !s.voyage.IsActive() {
		http.Error(w, "no active voyage", http.StatusConflict)
		return
	}

	var req exploringRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	s.engine.SetExploring(req.Exploring)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.SnapshotPayload())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	if s.stats == nil {
		http.Error(w, "stats not available", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.stats.Stats())
}

// handleConfig exposes the detection thresholds so the UI can render
// matching countdowns.
func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !s.authorize(r) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.config.Detect)
}

func (s *Server) authorize(r *http.Request) bool {
	if s.authToken == "" {
		return true
	}

	if r.URL.Query().Get("token") == s.authToken {
		return true
	}

	if r.Header.Get("X-Driftwatch-Token") == s.authToken {
		return true
	}

	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.authToken {
		return true
	}

	return false
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	if len(s.allowedOrigins) > 0 {
		if s.allowedOrigins[origin] {
			return true
		}
		if parsed, err := url.Parse(origin); err == nil && parsed.Host != "" {
			return s.allowedHosts[parsed.Host]
		}
		return false
	}

	parsed, err := url.Parse(origin)
	if err != nil {
		return false
	}

	host := parsed.Host
	if host == "" {
		return false
	}

	if host == r.Host {
		return true
	}

	if strings.HasPrefix(host, "localhost:") || host == "localhost" {
		return true
	}
	if strings.HasPrefix(host, "127.0.0.1:") || host == "127.0.0.1" {
		return true
	}
	if strings.HasPrefix(host, "[::1]:") || host == "::1" {
		return true
	}

	return false
}

func ListenAndServe(host string, port int, mux *http.ServeMux) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	log.Printf("Server listening on %s", addr)
	return http.ListenAndServe(addr, mux)
}
