// Package ws serves the collaborative editing protocol over websockets.
package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/samber/lo"

	"github.com/manpreetbhatti/codetogether/internal/logging"
	"github.com/manpreetbhatti/codetogether/internal/ratelimit"
	"github.com/manpreetbhatti/codetogether/internal/session"
)

// Options configures a Server.
type Options struct {
	// AllowedOrigins lists accepted Origin headers. "*" accepts any origin.
	// Requests without an Origin header are always accepted.
	AllowedOrigins    []string
	MessagesPerSecond float64
	MessageBurst      int
	MaxRateViolations int64
	Logger            logging.Logger
}

// Server upgrades HTTP requests and runs one Client per connection.
type Server struct {
	manager  *session.Manager
	hub      *Hub
	upgrader websocket.Upgrader
	opts     Options
	logger   logging.Logger

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// NewServer creates a Server that hands inbound frames to manager.
func NewServer(manager *session.Manager, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.New("ws")
	}
	if opts.MessagesPerSecond <= 0 {
		opts.MessagesPerSecond = 100
	}
	if opts.MessageBurst <= 0 {
		opts.MessageBurst = 200
	}
	if opts.MaxRateViolations <= 0 {
		opts.MaxRateViolations = 1000
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		manager: manager,
		hub:     NewHub(),
		opts:    opts,
		logger:  opts.Logger,
		ctx:     ctx,
		cancel:  cancel,
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
	return s
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return lo.Contains(s.opts.AllowedOrigins, "*") || lo.Contains(s.opts.AllowedOrigins, origin)
}

// ServeHTTP upgrades the request and starts the client pumps.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warnf("upgrade error: %v", err)
		return
	}

	client := &Client{
		hub:           s.hub,
		manager:       s.manager,
		conn:          conn,
		logger:        s.logger,
		send:          make(chan []byte, sendBufferSize),
		done:          make(chan struct{}),
		rateLimiter:   ratelimit.NewLimiter(s.opts.MessagesPerSecond, s.opts.MessageBurst),
		maxViolations: s.opts.MaxRateViolations,
	}
	client.session = session.NewConn(uuid.NewString(), client)

	if !s.hub.register(client) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	s.logger.Debugf("client %s connected from %s", client.session.ID, conn.RemoteAddr())

	go client.writePump()
	go client.readPump(s.ctx)
}

// Clients returns the number of connected clients.
func (s *Server) Clients() int {
	return s.hub.Len()
}

// Close disconnects every client and waits until each has left its rooms.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		s.hub.Close()
		s.hub.Wait()
	})
}
