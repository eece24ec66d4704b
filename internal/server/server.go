package server

import (
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Server wires the HTTP surface, the room store and the presence tracker
// together.
type Server struct {
	cfg             Config
	logger          *slog.Logger
	mux             *http.ServeMux
	allowedOrigins  []string
	allowAllOrigins bool
	upgrader        websocket.Upgrader

	rooms    *RoomStore
	presence *Presence

	wsMu     sync.Mutex
	sessions map[string]map[*session]struct{}
}

// New constructs a Server with routes configured. moves may be nil to run
// without persistence.
func New(cfg Config, moves MoveStore) (*Server, error) {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))

	srv := &Server{
		cfg:            cfg,
		logger:         logger,
		mux:            http.NewServeMux(),
		allowedOrigins: cfg.AllowedOrigins,
		rooms:          NewRoomStore(cfg.MaxUsersPerRoom, cfg.RoomTTL, moves, logger),
		presence:       NewPresence(),
		sessions:       make(map[string]map[*session]struct{}),
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			srv.allowAllOrigins = true
		}
	}

	srv.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return srv.matchOrigin(r.Header.Get("Origin")) != ""
		},
	}

	srv.routes()
	return srv, nil
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := ":" + s.cfg.Port
	s.logger.Info("starting server", slog.String("addr", addr))
	return http.ListenAndServe(addr, s.Handler())
}

// Handler returns the fully wrapped HTTP handler, exposed for tests.
func (s *Server) Handler() http.Handler {
	return s.loggingMiddleware(s.mux)
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealth)
	s.mux.HandleFunc("/ws", s.handleWebsocket)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Info("request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Duration("duration", time.Since(start)))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) matchOrigin(origin string) string {
	if origin == "" {
		if s.allowAllOrigins {
			return "*"
		}
		return ""
	}

	for _, allowed := range s.allowedOrigins {
		if strings.EqualFold(allowed, origin) {
			return allowed
		}
	}

	if s.allowAllOrigins {
		return "*"
	}

	return ""
}

func (s *Server) register(roomID string, sess *session) {
	s.wsMu.Lock()
	if s.sessions[roomID] == nil {
		s.sessions[roomID] = make(map[*session]struct{})
	}
	s.sessions[roomID][sess] = struct{}{}
	peers := len(s.sessions[roomID])
	s.wsMu.Unlock()

	s.logger.Info("ws joined room", slog.String("room", roomID), slog.String("conn", sess.id), slog.Int("peers", peers))
}

func (s *Server) unregister(roomID string, sess *session) {
	s.wsMu.Lock()
	peers := s.sessions[roomID]
	if peers != nil {
		delete(peers, sess)
		if len(peers) == 0 {
			delete(s.sessions, roomID)
		}
	}
	remaining := len(peers)
	s.wsMu.Unlock()

	s.logger.Info("ws left room", slog.String("room", roomID), slog.String("conn", sess.id), slog.Int("peers", remaining))
}

// broadcast fans an event out to every session in a room. except, when
// non-nil, is skipped.
func (s *Server) broadcast(roomID string, except *session, event string, payload any) {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		s.logger.Error("broadcast", slog.String("error", err.Error()))
		return
	}

	s.wsMu.Lock()
	peers := s.sessions[roomID]
	// copy to avoid holding lock during writes
	targets := make([]*session, 0, len(peers))
	for sess := range peers {
		if sess == except {
			continue
		}
		targets = append(targets, sess)
	}
	s.wsMu.Unlock()

	for _, sess := range targets {
		if err := sess.send(env); err != nil {
			s.logger.Error("broadcast write", slog.String("room", roomID), slog.String("error", err.Error()))
		}
	}
}

// emit sends an event to a single session.
func (s *Server) emit(sess *session, event string, payload any) {
	env, err := NewEnvelope(event, payload)
	if err != nil {
		s.logger.Error("emit", slog.String("error", err.Error()))
		return
	}
	if err := sess.send(env); err != nil {
		s.logger.Error("emit write", slog.String("event", event), slog.String("error", err.Error()))
	}
}
