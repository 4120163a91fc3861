package server

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"golang.org/x/time/rate"

	apperrors "github.com/GriffinCanCode/oneshot/internal/errors"
	"github.com/GriffinCanCode/oneshot/internal/orchestrator"
	"github.com/GriffinCanCode/oneshot/internal/relay"
	"github.com/GriffinCanCode/oneshot/internal/trace"
)

// Orchestrator is the part of *orchestrator.Manager the server drives.
type Orchestrator interface {
	RequestCapture(ctx context.Context) error
	Events() <-chan orchestrator.Event
	SetForeground(fg bool)
	Snapshot() orchestrator.Snapshot
	Latest(ctx context.Context) (relay.Record, bool, error)
}

// Message types.
type Message struct {
	Type string `json:"type"`
}

type CaptureMessage struct {
	Type    string `json:"type"`
	TraceID string `json:"trace_id,omitempty"`
}

type StatusMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

type TriggerMessage struct {
	Type    string `json:"type"`
	Enabled bool   `json:"enabled"`
}

type OutcomeMessage struct {
	Type      string `json:"type"`
	Success   bool   `json:"success"`
	FileName  string `json:"fileName,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp int64  `json:"timestamp"`
}

type ToastMessage struct {
	Type       string `json:"type"`
	Message    string `json:"message"`
	DurationMS int64  `json:"durationMs"`
}

type StateMessage struct {
	Type string `json:"type"`
	orchestrator.Snapshot
}

type ErrorMessage struct {
	Type    string `json:"type"`
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}

// Server handles HTTP and WebSocket connections. Any open WebSocket marks
// the UI as foregrounded.
type Server struct {
	orch    Orchestrator
	log     *slog.Logger
	capture *rate.Limiter

	mu    sync.RWMutex
	conns map[*websocket.Conn]*client
}

// client is one WebSocket connection. All writes go through out so the
// client sees messages in the order they were queued.
type client struct {
	limiter *rate.Limiter
	out     chan any
}

// New creates a server and starts forwarding orchestrator events to every
// connected client.
func New(orch Orchestrator, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	s := &Server{
		orch:    orch,
		log:     log.With("component", "server"),
		capture: rate.NewLimiter(CaptureRequestsPerSecond, CaptureRequestBurst),
		conns:   make(map[*websocket.Conn]*client),
	}
	go s.broadcastEvents()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// WebSocket endpoint
	mux.HandleFunc("/ws", s.handleWebSocket)

	// REST API
	mux.HandleFunc("POST /api/capture", s.handleCapture)
	mux.HandleFunc("GET /api/outcome", s.handleOutcome)
	mux.HandleFunc("GET /api/status", s.handleStatus)

	// Apply middleware: trace -> CORS
	return corsMiddleware(trace.Middleware(mux))
}

// Connections returns the number of attached WebSocket clients.
func (s *Server) Connections() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "*")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// attach registers conn, starts its writer and queues the current state
// ahead of any broadcast.
func (s *Server) attach(conn *websocket.Conn) *client {
	c := &client{
		limiter: rate.NewLimiter(rate.Every(RateLimitWindow/RateLimitMessages), RateLimitMessages),
		out:     make(chan any, SendBuffer),
	}
	go s.writeLoop(conn, c.out)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns[conn] = c
	if len(s.conns) == 1 {
		s.orch.SetForeground(true)
	}
	c.out <- StateMessage{Type: "state", Snapshot: s.orch.Snapshot()}
	return c
}

func (s *Server) detach(conn *websocket.Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.conns[conn]
	if !ok {
		return
	}
	delete(s.conns, conn)
	close(c.out)
	if len(s.conns) == 0 {
		s.orch.SetForeground(false)
	}
}

// send queues msg for conn (non-blocking).
func (s *Server) send(conn *websocket.Conn, msg any) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if c, ok := s.conns[conn]; ok {
		s.enqueue(c, msg)
	}
}

// enqueue must be called with s.mu held.
func (s *Server) enqueue(c *client, msg any) {
	select {
	case c.out <- msg:
	default:
		s.log.Warn("websocket send buffer full, dropping message")
	}
}

func (s *Server) writeLoop(conn *websocket.Conn, out <-chan any) {
	for msg := range out {
		if err := s.write(context.Background(), conn, msg); err != nil {
			s.log.Debug("websocket write error", "error", err)
		}
	}
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		s.log.Error("websocket accept error", "error", err)
		return
	}
	defer func() { _ = conn.Close(websocket.StatusNormalClosure, "") }()

	c := s.attach(conn)
	defer s.detach(conn)

	// Get trace context from HTTP upgrade request
	baseCtx := r.Context()
	log := trace.Logger(baseCtx)
	log.Info("websocket connected", "remote", r.RemoteAddr)

	for {
		var msg json.RawMessage
		if err := wsjson.Read(baseCtx, conn, &msg); err != nil {
			log.Debug("websocket read error", "error", err)
			return
		}

		if !c.limiter.Allow() {
			log.Warn("rate limit exceeded", "remote", r.RemoteAddr)
			s.send(conn, ErrorMessage{Type: "error", Message: "rate limit exceeded"})
			continue
		}

		var base Message
		if err := json.Unmarshal(msg, &base); err != nil {
			continue
		}

		switch base.Type {
		case "capture":
			ctx := baseCtx
			if tc, ok := trace.ExtractFromJSON(msg); ok {
				ctx = trace.WithContext(ctx, tc)
			} else {
				ctx, _ = trace.EnsureContext(ctx)
			}
			if err := s.orch.RequestCapture(ctx); err != nil {
				s.send(conn, errorMessage(err))
			}
		case "state":
			s.send(conn, StateMessage{Type: "state", Snapshot: s.orch.Snapshot()})
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, msg any) error {
	ctx, cancel := context.WithTimeout(ctx, WriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

// toMessage converts an orchestrator event to its wire form.
func toMessage(ev orchestrator.Event) (any, bool) {
	switch ev.Type {
	case orchestrator.EventStatus:
		return StatusMessage{Type: "status", Message: ev.Message}, true
	case orchestrator.EventTrigger:
		return TriggerMessage{Type: "trigger", Enabled: ev.Enabled}, true
	case orchestrator.EventOutcome:
		return outcomeMessage(ev.Record), true
	case orchestrator.EventToast:
		return ToastMessage{Type: "toast", Message: ev.Message, DurationMS: ev.Duration.Milliseconds()}, true
	default:
		return nil, false
	}
}

func outcomeMessage(rec relay.Record) OutcomeMessage {
	return OutcomeMessage{
		Type:      "outcome",
		Success:   rec.Success,
		FileName:  rec.FileName,
		Error:     rec.Error,
		Timestamp: rec.Timestamp,
	}
}

// broadcastEvents fans events out to every client queue in order. It
// returns when the orchestrator closes its event stream.
func (s *Server) broadcastEvents() {
	for ev := range s.orch.Events() {
		msg, ok := toMessage(ev)
		if !ok {
			continue
		}

		s.mu.RLock()
		for _, c := range s.conns {
			s.enqueue(c, msg)
		}
		s.mu.RUnlock()
	}
	s.log.Debug("event stream closed")
}

func errorMessage(err error) ErrorMessage {
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		return ErrorMessage{Type: "error", Code: appErr.Code.String(), Message: appErr.Message}
	}
	return ErrorMessage{Type: "error", Message: err.Error()}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var appErr *apperrors.AppError
	if stderrors.As(err, &appErr) {
		status = appErr.HTTPStatus()
	}
	writeJSON(w, status, errorMessage(err))
}

func (s *Server) handleCapture(w http.ResponseWriter, r *http.Request) {
	ctx, span := trace.StartSpan(r.Context(), "http_capture")
	defer span.End()

	if !s.capture.Allow() {
		writeJSON(w, http.StatusTooManyRequests, ErrorMessage{Type: "error", Message: "rate limit exceeded"})
		return
	}
	if err := s.orch.RequestCapture(ctx); err != nil {
		span.RecordError(err)
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}

func (s *Server) handleOutcome(w http.ResponseWriter, r *http.Request) {
	rec, ok, err := s.orch.Latest(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperrors.New(apperrors.CodeNotFound, "no outcome recorded"))
		return
	}
	writeJSON(w, http.StatusOK, outcomeMessage(rec))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StateMessage{Type: "state", Snapshot: s.orch.Snapshot()})
}
