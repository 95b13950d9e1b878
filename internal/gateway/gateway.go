// Package gateway serves the command protocol over WebSocket.
//
// A client connects to /ws?user=<uuid>. Each text frame it sends is a
// command {"id","method","args"} answered by {"id","result"} or
// {"id","error"}. Update messages for the user's files arrive on the same
// connection as {"file","message"} frames, in mailbox order.
package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/roach88/cadstore/internal/command"
	"github.com/roach88/cadstore/internal/model"
	"github.com/roach88/cadstore/internal/outbox"
	"github.com/roach88/cadstore/internal/registry"
)

// Settings tunes connection timing.
type Settings struct {
	WriteTimeout time.Duration
	ReadTimeout  time.Duration
	PingInterval time.Duration
	// ResponseBuffer bounds queued command responses per connection.
	ResponseBuffer int
}

func DefaultSettings() *Settings {
	return &Settings{
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   20 * time.Second,
		ResponseBuffer: 32,
	}
}

// Server bridges WebSocket sessions to a dispatcher and an outbox.
type Server struct {
	dispatcher *command.Dispatcher
	registry   *registry.Registry
	outbox     *outbox.Outbox
	settings   *Settings
	log        *slog.Logger
	upgrader   websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

func WithSettings(s *Settings) Option {
	return func(srv *Server) { srv.settings = s }
}

func WithLogger(l *slog.Logger) Option {
	return func(srv *Server) { srv.log = l }
}

// New returns a server over the given dispatcher, registry and outbox.
func New(d *command.Dispatcher, reg *registry.Registry, out *outbox.Outbox, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		registry:   reg,
		outbox:     out,
		settings:   DefaultSettings(),
		log:        slog.Default(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler routes /ws to the session handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /ws", s)
	return mux
}

// ServeHTTP upgrades one session. A user may hold one session at a time.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	user, err := model.ParseUserID(r.URL.Query().Get("user"))
	if err != nil || user == (model.UserID{}) {
		http.Error(w, "user must be a uuid", http.StatusBadRequest)
		return
	}
	box, ok := s.outbox.Claim(user)
	if !ok {
		http.Error(w, "user already connected", http.StatusConflict)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.outbox.Unregister(user)
		s.log.Info("upgrade failed", "user", user, "error", err)
		return
	}
	s.serve(r.Context(), ws, user, box)
}

func (s *Server) serve(ctx context.Context, ws *websocket.Conn, user model.UserID, box *outbox.Mailbox) {
	ctx, cancel := context.WithCancel(ctx)
	responses := make(chan []byte, s.settings.ResponseBuffer)
	writerDone := make(chan struct{})

	s.log.Info("session opened", "user", user)
	defer func() {
		cancel()
		<-writerDone
		s.registry.Disconnect(user)
		s.outbox.Unregister(user)
		ws.Close()
		s.log.Info("session closed", "user", user)
	}()

	go func() {
		defer close(writerDone)
		defer cancel()
		s.write(ctx, ws, box, responses, user)
	}()

	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))
	})
	for {
		ws.SetReadDeadline(time.Now().Add(s.settings.ReadTimeout))
		messageType, message, err := ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("read failed", "user", user, "error", err)
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		resp := s.handle(ctx, user, message)
		data, err := json.Marshal(resp)
		if err != nil {
			s.log.Error("encode response failed", "user", user, "id", resp.ID, "error", err)
			continue
		}
		select {
		case responses <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (s *Server) handle(ctx context.Context, user model.UserID, frame []byte) command.Response {
	var req command.Request
	if err := json.Unmarshal(frame, &req); err != nil {
		return command.Response{Error: &command.ErrorBody{
			Code:    model.CodeOther,
			Message: "malformed request: " + err.Error(),
		}}
	}
	req.User = user
	return s.dispatcher.Handle(ctx, req)
}

// write is the only goroutine writing to ws.
func (s *Server) write(ctx context.Context, ws *websocket.Conn, box *outbox.Mailbox, responses <-chan []byte, user model.UserID) {
	ping := time.NewTicker(s.settings.PingInterval)
	defer ping.Stop()

	send := func(data []byte) bool {
		ws.SetWriteDeadline(time.Now().Add(s.settings.WriteTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, data); err != nil {
			// a websocket write deadline cannot be recovered
			s.log.Debug("write failed", "user", user, "error", err)
			return false
		}
		return true
	}

	for {
		select {
		case <-ctx.Done():
			ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(s.settings.WriteTimeout))
			return
		case data := <-responses:
			if !send(data) {
				return
			}
		case <-box.Wait():
			if box.Closed() {
				return
			}
			for _, env := range box.Drain() {
				data, err := json.Marshal(env)
				if err != nil {
					s.log.Error("encode delivery failed", "user", user, "file", env.File, "error", err)
					continue
				}
				if !send(data) {
					return
				}
			}
		case <-ping.C:
			if err := ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.settings.WriteTimeout)); err != nil {
				return
			}
		}
	}
}
