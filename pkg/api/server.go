// Package api exposes the controller over HTTP: a REST status snapshot, a
// WebSocket for streaming commands and responses, and the metrics
// endpoint. The server never touches motion state directly; commands are
// injected into the motion loop and responses come back over its mirror.
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"stepmotion/pkg/log"
	"stepmotion/pkg/loop"
	"stepmotion/pkg/metrics"
)

// AxisStatus is one axis in a status snapshot.
type AxisStatus struct {
	Letter            string  `json:"letter"`
	Running           bool    `json:"running"`
	Forward           bool    `json:"forward"`
	TargetSteps       int64   `json:"target_steps"`
	CurrentSteps      int64   `json:"current_steps"`
	TargetIntervalUs  uint64  `json:"target_interval_us"`
	CurrentIntervalUs uint64  `json:"current_interval_us"`
	StepsPerMM        float64 `json:"steps_per_mm"`
}

// Status is a controller status snapshot.
type Status struct {
	Axes       []AxisStatus `json:"axes"`
	ServoAngle int          `json:"servo_angle"`
}

// Server is the HTTP/WebSocket front end.
type Server struct {
	loop   *loop.Loop
	reg    *metrics.Registry
	logger *log.Logger
	addr   string

	upgrader websocket.Upgrader

	clientMu sync.RWMutex
	clients  map[int64]*client
	nextID   int64

	httpServer *http.Server
}

// New creates a Server for the given motion loop. reg may be nil, in
// which case /metrics is not served.
func New(addr string, lp *loop.Loop, reg *metrics.Registry, logger *log.Logger) *Server {
	s := &Server{
		loop:    lp,
		reg:     reg,
		logger:  logger,
		addr:    addr,
		clients: make(map[int64]*client),
	}
	s.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	return s
}

// Handler returns the server's route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/status", s.handleStatus)
	mux.HandleFunc("/ws", s.handleWS)
	if s.reg != nil {
		mux.Handle("/metrics", s.reg.Handler())
	}
	return mux
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start() error {
	s.httpServer = &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}
	s.logger.WithField("addr", s.addr).Info("api server listening")
	return s.httpServer.ListenAndServe()
}

// Stop closes all WebSocket clients and the listener.
func (s *Server) Stop() error {
	s.clientMu.Lock()
	for _, c := range s.clients {
		c.close()
	}
	s.clients = make(map[int64]*client)
	s.clientMu.Unlock()

	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// Broadcast fans one response line out to every connected WebSocket
// client. Wire it to the motion loop's mirror.
func (s *Server) Broadcast(line string) {
	s.clientMu.RLock()
	defer s.clientMu.RUnlock()
	for _, c := range s.clients {
		c.send(wsFrame{Type: "response", Line: line})
	}
}

// snapshot converts the loop's published motion-state copy. The loop owns
// the live axis state; handlers never touch it directly.
func (s *Server) snapshot() Status {
	snap := s.loop.Snapshot()
	st := Status{ServoAngle: snap.ServoAngle}
	for _, a := range snap.Axes {
		st.Axes = append(st.Axes, AxisStatus{
			Letter:            string(a.Letter),
			Running:           a.Running,
			Forward:           a.Forward,
			TargetSteps:       a.TargetSteps,
			CurrentSteps:      a.CurrentSteps,
			TargetIntervalUs:  a.TargetInterval,
			CurrentIntervalUs: a.CurrentInterval,
			StepsPerMM:        a.StepsPerMM,
		})
	}
	return st
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.snapshot())
}

// wsFrame is one message in either direction on the WebSocket.
// Server to client: type "response" (a mirrored response line), "status"
// (a periodic snapshot), or "error". Client to server: a command line in
// the "command" field.
type wsFrame struct {
	Type    string  `json:"type,omitempty"`
	Line    string  `json:"line,omitempty"`
	Status  *Status `json:"status,omitempty"`
	Command string  `json:"command,omitempty"`
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("websocket upgrade failed")
		return
	}
	c := s.addClient(conn)
	go c.writePump()
	go c.readPump()
}

func (s *Server) addClient(conn *websocket.Conn) *client {
	c := &client{
		id:     atomic.AddInt64(&s.nextID, 1),
		conn:   conn,
		server: s,
		sendCh: make(chan wsFrame, 64),
		done:   make(chan struct{}),
	}
	s.clientMu.Lock()
	s.clients[c.id] = c
	s.clientMu.Unlock()
	s.logger.WithField("client", c.id).Debug("websocket client connected")
	return c
}

func (s *Server) removeClient(c *client) {
	s.clientMu.Lock()
	delete(s.clients, c.id)
	s.clientMu.Unlock()
}

// client is one WebSocket connection.
type client struct {
	id     int64
	conn   *websocket.Conn
	server *Server
	sendCh chan wsFrame
	done   chan struct{}
	mu     sync.Mutex
}

func (c *client) send(f wsFrame) {
	select {
	case c.sendCh <- f:
	case <-c.done:
	default:
		// Channel full: drop rather than stall the broadcaster.
	}
}

func (c *client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.conn.Close()
}

func (c *client) readPump() {
	defer func() {
		c.server.removeClient(c)
		c.close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.server.logger.WithError(err).Debug("websocket read error")
			}
			return
		}

		var f wsFrame
		if err := json.Unmarshal(data, &f); err != nil {
			c.send(wsFrame{Type: "error", Line: "malformed frame"})
			continue
		}
		if f.Command == "" {
			continue
		}
		if !c.server.loop.Inject(f.Command) {
			c.send(wsFrame{Type: "error", Line: "command queue full"})
		}
	}
}

// statusInterval is how often each client receives a status frame.
const statusInterval = 500 * time.Millisecond

func (c *client) writePump() {
	status := time.NewTicker(statusInterval)
	ping := time.NewTicker(30 * time.Second)
	defer func() {
		status.Stop()
		ping.Stop()
		c.close()
	}()

	for {
		select {
		case f := <-c.sendCh:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(f); err != nil {
				return
			}

		case <-status.C:
			st := c.server.snapshot()
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(wsFrame{Type: "status", Status: &st}); err != nil {
				return
			}

		case <-ping.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			return
		}
	}
}
