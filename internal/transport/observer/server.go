// Package observer streams tick reports to loopback websocket clients.
package observer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"buoyancy3d/internal/config"
	"buoyancy3d/internal/sim"
)

type Server struct {
	cfg   config.Config
	scene string
	log   *log.Logger

	upgrader websocket.Upgrader
	nextID   atomic.Uint64
	lastTick atomic.Uint64

	mu      sync.RWMutex
	clients map[string]*client

	dropped atomic.Uint64
}

type client struct {
	id  string
	out chan []byte

	mu     sync.Mutex
	filter map[string]bool
}

func NewServer(cfg config.Config, scene string, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.Default()
	}
	return &Server{
		cfg:     cfg,
		scene:   scene,
		log:     logger,
		clients: make(map[string]*client),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // loopback only anyway
		},
	}
}

// Handler serves /v1/bootstrap and /v1/ws.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/v1/bootstrap", s.BootstrapHandler())
	mux.HandleFunc("/v1/ws", s.WSHandler())
	return mux
}

// ClientCount returns the number of subscribed clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Dropped returns how many messages were discarded for slow clients.
func (s *Server) Dropped() uint64 {
	return s.dropped.Load()
}

// Publish sends r to every subscriber. Clients whose queue is full miss the
// message; Publish never blocks the tick loop.
func (s *Server) Publish(r sim.TickReport) {
	s.lastTick.Store(r.Tick)

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.clients) == 0 {
		return
	}

	var all []byte
	for _, c := range s.clients {
		var b []byte
		if f := c.bodies(); len(f) == 0 {
			if all == nil {
				all = encodeTick(r)
			}
			b = all
		} else {
			b = encodeTick(filterReport(r, f))
		}
		select {
		case c.out <- b:
		default:
			s.dropped.Add(1)
		}
	}
}

func encodeTick(r sim.TickReport) []byte {
	b, _ := json.Marshal(TickMsg{Type: "TICK", ProtocolVersion: Version, Report: r})
	return b
}

func filterReport(r sim.TickReport, names map[string]bool) sim.TickReport {
	out := r
	out.Bodies = make([]sim.BodyReport, 0, len(names))
	for _, b := range r.Bodies {
		if names[b.Name] {
			out.Bodies = append(out.Bodies, b)
		}
	}
	return out
}

func (c *client) bodies() map[string]bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

func (c *client) subscribe(sub SubscribeMsg) {
	var f map[string]bool
	if len(sub.Bodies) > 0 {
		f = make(map[string]bool, len(sub.Bodies))
		for _, n := range sub.Bodies {
			f[n] = true
		}
	}
	c.mu.Lock()
	c.filter = f
	c.mu.Unlock()
}

func (s *Server) BootstrapHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			rw.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		resp := BootstrapResponse{
			ProtocolVersion: Version,
			Scene:           s.scene,
			Tick:            s.lastTick.Load(),
			Params:          s.cfg,
		}
		rw.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(rw).Encode(resp)
	}
}

func (s *Server) WSHandler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		if !isLoopbackRemote(r.RemoteAddr) {
			http.Error(rw, "forbidden", http.StatusForbidden)
			return
		}

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Handshake: must send SUBSCRIBE first.
		_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		sub, ok := parseSubscribe(msg)
		if !ok {
			_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected SUBSCRIBE"), time.Now().Add(time.Second))
			return
		}

		queue := s.cfg.Observer.SendQueue
		if queue <= 0 {
			queue = 8
		}
		c := &client{id: fmt.Sprintf("O%d", s.nextID.Add(1)), out: make(chan []byte, queue)}
		c.subscribe(sub)

		s.mu.Lock()
		s.clients[c.id] = c
		s.mu.Unlock()
		s.log.Printf("Observer: %s subscribed from %s", c.id, r.RemoteAddr)
		defer func() {
			s.mu.Lock()
			delete(s.clients, c.id)
			s.mu.Unlock()
			s.log.Printf("Observer: %s left", c.id)
		}()

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		writeErr := make(chan error, 1)
		go func() {
			for {
				select {
				case <-ctx.Done():
					writeErr <- ctx.Err()
					return
				case b := <-c.out:
					_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						writeErr <- err
						return
					}
				}
			}
		}()

		// Reader loop: allow SUBSCRIBE updates.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			if sub, ok := parseSubscribe(msg); ok {
				c.subscribe(sub)
			}
		}

		cancel()
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"), time.Now().Add(time.Second))

		select {
		case <-writeErr:
		case <-time.After(500 * time.Millisecond):
		}
	}
}

func parseSubscribe(msg []byte) (SubscribeMsg, bool) {
	var sub SubscribeMsg
	if err := json.Unmarshal(msg, &sub); err != nil {
		return sub, false
	}
	return sub, sub.Type == "SUBSCRIBE" && sub.ProtocolVersion == Version
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}
