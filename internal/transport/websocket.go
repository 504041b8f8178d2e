// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	applog "voiceviz/internal/log"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 2 * time.Second
	clientQueueLen = 16
	maxMessageSize = 1024
)

// Command is a control message sent by a WebSocket client.
type Command struct {
	Type string `json:"type"` // "start" or "stop"
}

type wsClient struct {
	conn *websocket.Conn
	send chan any
}

// WebSocketTransport broadcasts state to WebSocket clients on /ws and
// serves /state, /start and /stop over plain HTTP.
type WebSocketTransport struct {
	addr       string
	upgrader   websocket.Upgrader
	controller Controller

	clients   map[*wsClient]struct{}
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once

	mux    *http.ServeMux
	server *http.Server
}

// NewWebSocketTransport creates a transport that will listen on addr.
// controller may be nil, in which case control requests are rejected.
func NewWebSocketTransport(addr string, controller Controller) *WebSocketTransport {
	wst := &WebSocketTransport{
		addr:       addr,
		controller: controller,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		clients:   make(map[*wsClient]struct{}),
		broadcast: make(chan any, 256),
		done:      make(chan struct{}),
		mux:       http.NewServeMux(),
	}

	wst.mux.HandleFunc("/ws", wst.handleWebSocket)
	wst.mux.HandleFunc("GET /state", wst.handleState)
	wst.mux.HandleFunc("POST /start", wst.handleControl("start"))
	wst.mux.HandleFunc("POST /stop", wst.handleControl("stop"))

	wst.server = &http.Server{
		Addr:              addr,
		Handler:           wst.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go wst.handleBroadcasts()
	return wst
}

// SetController attaches the control surface. It must be called before
// the server starts.
func (wst *WebSocketTransport) SetController(c Controller) {
	wst.controller = c
}

// Handler returns the HTTP handler serving every endpoint.
func (wst *WebSocketTransport) Handler() http.Handler {
	return wst.mux
}

// ListenAndServe serves until Close is called. It returns nil after a
// clean shutdown.
func (wst *WebSocketTransport) ListenAndServe() error {
	applog.Infof("WebSocketTransport: Starting server on %s", wst.addr)
	if err := wst.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// checkOrigin accepts same-origin, loopback and private network origins.
func checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}

	u, err := url.Parse(origin)
	if err != nil {
		applog.Warnf("WebSocketTransport: rejected invalid origin %q", origin)
		return false
	}

	host := u.Hostname()
	if host == "localhost" {
		return true
	}

	requestHost := r.Host
	if h, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = h
	}
	if host == requestHost {
		return true
	}

	if ip := net.ParseIP(host); ip != nil && (ip.IsLoopback() || ip.IsPrivate()) {
		return true
	}

	applog.Warnf("WebSocketTransport: rejected origin %q", origin)
	return false
}

// handleWebSocket upgrades HTTP connections to WebSocket
func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		applog.Warnf("WebSocketTransport: Upgrade error: %v", err)
		return
	}
	conn.SetReadLimit(maxMessageSize)

	c := &wsClient{conn: conn, send: make(chan any, clientQueueLen)}
	if wst.controller != nil {
		c.send <- wst.controller.CurrentState()
	}

	wst.clientsMu.Lock()
	select {
	case <-wst.done:
		wst.clientsMu.Unlock()
		conn.Close()
		return
	default:
	}
	wst.clients[c] = struct{}{}
	total := len(wst.clients)
	wst.clientsMu.Unlock()
	applog.Infof("WebSocketTransport: Client connected, total: %d", total)

	// Writer goroutine - sole writer to the connection
	go wst.writeLoop(c)
	wst.readLoop(c)
}

func (wst *WebSocketTransport) writeLoop(c *wsClient) {
	defer c.conn.Close()
	for msg := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(msg); err != nil {
			applog.Debugf("WebSocketTransport: Error sending to client: %v", err)
			wst.unregister(c)
			return
		}
	}
}

func (wst *WebSocketTransport) readLoop(c *wsClient) {
	defer wst.unregister(c)
	for {
		var cmd Command
		if err := c.conn.ReadJSON(&cmd); err != nil {
			return
		}
		wst.dispatch(cmd.Type)
	}
}

func (wst *WebSocketTransport) dispatch(command string) bool {
	if wst.controller == nil {
		return false
	}
	switch command {
	case "start":
		wst.controller.RequestStart()
	case "stop":
		wst.controller.RequestStop()
	default:
		applog.Debugf("WebSocketTransport: ignoring unknown command %q", command)
		return false
	}
	return true
}

// unregister removes the client and closes its queue. Safe to call twice.
func (wst *WebSocketTransport) unregister(c *wsClient) {
	wst.clientsMu.Lock()
	if _, ok := wst.clients[c]; !ok {
		wst.clientsMu.Unlock()
		return
	}
	delete(wst.clients, c)
	close(c.send)
	total := len(wst.clients)
	wst.clientsMu.Unlock()

	c.conn.Close()
	applog.Infof("WebSocketTransport: Client disconnected, total: %d", total)
}

// handleBroadcasts fans messages out to every client queue. A client that
// falls behind drops frames rather than stalling the others.
func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			wst.clientsMu.Lock()
			for c := range wst.clients {
				select {
				case c.send <- data:
				default:
				}
			}
			wst.clientsMu.Unlock()
		}
	}
}

func (wst *WebSocketTransport) handleState(w http.ResponseWriter, r *http.Request) {
	if wst.controller == nil {
		http.Error(w, "no state available", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, wst.controller.CurrentState())
}

func (wst *WebSocketTransport) handleControl(command string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !wst.dispatch(command) {
			http.Error(w, "control unavailable", http.StatusServiceUnavailable)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]string{"status": command + " requested"})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		applog.Debugf("WebSocketTransport: failed to encode response: %v", err)
	}
}

// Clients returns the number of connected WebSocket clients.
func (wst *WebSocketTransport) Clients() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

// Send broadcasts data to all connected WebSocket clients. Messages are
// dropped while the broadcast queue is full.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return ErrClosed
	default:
	}
	select {
	case wst.broadcast <- data:
	default:
	}
	return nil
}

// Close shuts down the server and disconnects every client.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		applog.Infof("WebSocketTransport: Closing server")

		wst.clientsMu.Lock()
		close(wst.done)
		clients := make([]*wsClient, 0, len(wst.clients))
		for c := range wst.clients {
			clients = append(clients, c)
		}
		wst.clientsMu.Unlock()

		for _, c := range clients {
			wst.unregister(c)
		}
		err = wst.server.Close()
	})
	return err
}

// Ensure WebSocketTransport satisfies the interface
var _ Transport = (*WebSocketTransport)(nil)
