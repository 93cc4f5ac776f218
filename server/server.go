// Package server is the remote configuration surface: a websocket control
// channel, a JSON view of the parameters and the Prometheus endpoint. Every
// read and write is executed by the frame loop through the ConfigQueue.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"trailfield/core"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Operations accepted on the control channel.
const (
	OpGet     = "get"
	OpSet     = "set"
	OpProfile = "profile"
	OpList    = "list"
	// OpChanged is pushed to every other session after a successful write.
	OpChanged = "changed"
)

// Request is one control message.
type Request struct {
	ID    string   `json:"id,omitempty"`
	Op    string   `json:"op"`
	Name  string   `json:"name,omitempty"`
	Value *float64 `json:"value,omitempty"`
}

// Response answers a Request, or announces a change made by another session.
type Response struct {
	ID       string             `json:"id,omitempty"`
	Op       string             `json:"op"`
	Session  string             `json:"session,omitempty"`
	OK       bool               `json:"ok"`
	Error    string             `json:"error,omitempty"`
	Name     string             `json:"name,omitempty"`
	Value    *float64           `json:"value,omitempty"`
	Profile  string             `json:"profile,omitempty"`
	Values   map[string]float64 `json:"values,omitempty"`
	Params   []string           `json:"params,omitempty"`
	Profiles []string           `json:"profiles,omitempty"`
}

// Snapshot is the body of GET /params.
type Snapshot struct {
	Profile string             `json:"profile"`
	Values  map[string]float64 `json:"values"`
}

type session struct {
	id   string
	conn *websocket.Conn
	mu   sync.Mutex
}

func (s *session) write(resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.TextMessage, data)
}

// Server serves the control surface.
type Server struct {
	queue    *core.ConfigQueue
	gatherer prometheus.Gatherer
	log      *zap.Logger
	upgrader websocket.Upgrader

	// Timeout bounds how long a request waits for the frame loop.
	Timeout time.Duration

	mu       sync.RWMutex
	sessions map[string]*session
}

// New creates a server that applies requests through queue. gatherer may be
// nil, in which case /metrics is not served.
func New(queue *core.ConfigQueue, gatherer prometheus.Gatherer, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		queue:    queue,
		gatherer: gatherer,
		log:      log.Named("server"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Allow all origins for development
			},
		},
		Timeout:  2 * time.Second,
		sessions: make(map[string]*session),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/params", s.handleParams)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	return mux
}

// ListenAndServe serves on addr until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() { errc <- srv.ListenAndServe() }()
	s.log.Info("control server listening", zap.String("addr", addr))

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	s.closeSessions()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.Timeout)
	defer cancel()

	var snap Snapshot
	err := s.queue.Submit(ctx, func(store *core.ParameterStore) error {
		snap = Snapshot{Profile: string(store.Profile()), Values: store.Values()}
		return nil
	})
	if err != nil {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.log.Warn("write params", zap.Error(err))
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade error", zap.Error(err))
		return
	}
	defer conn.Close()

	sess := &session{id: uuid.NewString(), conn: conn}
	s.mu.Lock()
	s.sessions[sess.id] = sess
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.sessions, sess.id)
		s.mu.Unlock()
	}()

	log := s.log.With(zap.String("session", sess.id))
	log.Info("control session opened", zap.String("remote", r.RemoteAddr))

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("websocket read error", zap.Error(err))
			}
			break
		}

		var req Request
		var resp Response
		if err := json.Unmarshal(data, &req); err != nil {
			resp = Response{Op: "error", Error: fmt.Sprintf("malformed request: %v", err)}
		} else {
			ctx, cancel := context.WithTimeout(r.Context(), s.Timeout)
			resp = s.Handle(ctx, req)
			cancel()
		}
		resp.Session = sess.id
		if err := sess.write(resp); err != nil {
			log.Warn("websocket write error", zap.Error(err))
			break
		}
		if resp.OK && (req.Op == OpSet || req.Op == OpProfile) {
			s.broadcast(sess.id, resp)
		}
	}
	log.Info("control session closed")
}

// Handle executes one request on the frame loop and returns the answer.
func (s *Server) Handle(ctx context.Context, req Request) Response {
	resp := Response{ID: req.ID, Op: req.Op, Name: req.Name}

	var apply func(*core.ParameterStore) error
	switch req.Op {
	case OpGet:
		apply = func(store *core.ParameterStore) error {
			if req.Name == "" {
				resp.Values = store.Values()
				resp.Profile = string(store.Profile())
				return nil
			}
			v, err := store.Get(req.Name)
			if err != nil {
				return err
			}
			resp.Value = &v
			return nil
		}
	case OpSet:
		if req.Value == nil {
			resp.Error = "set needs a value"
			return resp
		}
		v := *req.Value
		apply = func(store *core.ParameterStore) error {
			if err := store.Set(req.Name, v); err != nil {
				return err
			}
			resp.Value = &v
			return nil
		}
	case OpProfile:
		apply = func(store *core.ParameterStore) error {
			if err := store.SetProfile(core.Profile(req.Name)); err != nil {
				return err
			}
			resp.Profile = req.Name
			return nil
		}
	case OpList:
		resp.Params = core.ParamNames()
		for _, p := range core.Profiles() {
			resp.Profiles = append(resp.Profiles, string(p))
		}
		sort.Strings(resp.Profiles)
		resp.OK = true
		return resp
	default:
		resp.Error = fmt.Sprintf("unknown op %q", req.Op)
		return resp
	}

	// apply writes resp; Submit returns only once it has finished or can no
	// longer run.
	if err := s.queue.Submit(ctx, apply); err != nil {
		resp.Error = err.Error()
		var cerr *core.ConfigurationError
		if errors.As(err, &cerr) {
			s.log.Info("rejected parameter change", zap.String("name", cerr.Name), zap.Float64("value", cerr.Value), zap.String("reason", cerr.Reason))
		}
		return resp
	}
	resp.OK = true
	return resp
}

func (s *Server) broadcast(from string, resp Response) {
	resp.ID = ""
	resp.Op = OpChanged
	resp.Session = from

	s.mu.RLock()
	targets := make([]*session, 0, len(s.sessions))
	for id, sess := range s.sessions {
		if id != from {
			targets = append(targets, sess)
		}
	}
	s.mu.RUnlock()

	for _, sess := range targets {
		if err := sess.write(resp); err != nil {
			s.log.Debug("broadcast failed", zap.String("session", sess.id), zap.Error(err))
		}
	}
}

// Sessions returns the number of open control sessions.
func (s *Server) Sessions() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

func (s *Server) closeSessions() {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, sess := range s.sessions {
		sess.mu.Lock()
		_ = sess.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(time.Second))
		sess.mu.Unlock()
	}
}
