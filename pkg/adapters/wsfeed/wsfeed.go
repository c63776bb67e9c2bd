// Package wsfeed broadcasts MarketObservation values over WebSocket
// using a hub/register/unregister goroutine. It is an optional,
// consumer-side adapter: it reads from the observation channel the
// pipeline already produces and never touches the book or decoder.
package wsfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/lxstream/itchbook/pkg/log"
	"github.com/lxstream/itchbook/pkg/marketdata"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server fans one observation stream out to any number of WebSocket
// clients, each as JSON-encoded MarketObservation frames.
type Server struct {
	logger log.Logger

	clients    map[*client]bool
	clientsMu  sync.RWMutex
	register   chan *client
	unregister chan *client

	messagesOut uint64
	clientCount int32

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

// New creates a Server. logger may be nil.
func New(logger log.Logger) *Server {
	if logger == nil {
		logger = log.Root()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		logger:     logger,
		clients:    make(map[*client]bool),
		register:   make(chan *client, 100),
		unregister: make(chan *client, 100),
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Run consumes obs until it closes or ctx is cancelled, broadcasting
// every value to all currently-registered clients, and serves the
// upgrade endpoint at addr until Run returns.
func (s *Server) Run(ctx context.Context, addr string, obs <-chan marketdata.Observation) error {
	s.wg.Add(1)
	go s.hub(obs)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleUpgrade)

	httpServer := &http.Server{Addr: addr, Handler: mux, ReadTimeout: 15 * time.Second, WriteTimeout: 15 * time.Second}
	go func() {
		<-ctx.Done()
		s.cancel()
		httpServer.Shutdown(context.Background())
	}()

	s.logger.Info("observation websocket feed starting", "addr", addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("wsfeed: server error: %w", err)
	}
	s.wg.Wait()
	return nil
}

func (s *Server) hub(obs <-chan marketdata.Observation) {
	defer s.wg.Done()
	for {
		select {
		case <-s.ctx.Done():
			s.clientsMu.Lock()
			for c := range s.clients {
				close(c.send)
			}
			s.clientsMu.Unlock()
			return

		case c, ok := <-s.register:
			if !ok {
				return
			}
			s.clientsMu.Lock()
			s.clients[c] = true
			atomic.AddInt32(&s.clientCount, 1)
			s.clientsMu.Unlock()

		case c := <-s.unregister:
			s.clientsMu.Lock()
			if _, ok := s.clients[c]; ok {
				delete(s.clients, c)
				close(c.send)
				atomic.AddInt32(&s.clientCount, -1)
			}
			s.clientsMu.Unlock()

		case o, ok := <-obs:
			if !ok {
				s.cancel()
				continue
			}
			payload, err := json.Marshal(o)
			if err != nil {
				s.logger.Warn("failed to marshal observation", "error", err)
				continue
			}
			s.broadcast(payload)
		}
	}
}

func (s *Server) broadcast(payload []byte) {
	s.clientsMu.RLock()
	defer s.clientsMu.RUnlock()
	for c := range s.clients {
		select {
		case c.send <- payload:
		default:
			s.logger.Warn("dropping observation for slow client", "id", c.id)
		}
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}
	c := &client{id: fmt.Sprintf("%p", conn), conn: conn, send: make(chan []byte, 256)}
	s.register <- c
	go s.writePump(c)
	go s.readPump(c)
}

// readPump's only job is noticing when the client goes away — clients
// never send anything meaningful on this feed.
func (s *Server) readPump(c *client) {
	defer func() { s.unregister <- c }()
	c.conn.SetReadLimit(1024)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (s *Server) writePump(c *client) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case payload, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
				return
			}
			atomic.AddUint64(&s.messagesOut, 1)
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
