package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 64 << 10

	// Requests a single connection may run at once.
	maxInFlight = 4
)

// WSRequest is a message from the client. Type selects the operation;
// ID is echoed on the answer.
type WSRequest struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Symbol    string          `json:"symbol,omitempty"`
	Query     json.RawMessage `json:"query,omitempty"`
	Strategy  json.RawMessage `json:"strategy,omitempty"`
	Session   string          `json:"session,omitempty"`
	Period    string          `json:"period,omitempty"`
	Timeframe string          `json:"timeframe,omitempty"`
}

// WSMessage is a message sent to the client: "result", "error" or "pong".
type WSMessage struct {
	Type string `json:"type"`
	ID   string `json:"id,omitempty"`
	Data any    `json:"data,omitempty"`
}

// ============================================================
// Connection registry
// ============================================================

type wsClient struct {
	conn *websocket.Conn
	send chan WSMessage
}

// wsHub tracks connected clients.
type wsHub struct {
	mu      sync.RWMutex
	clients map[*wsClient]struct{}
}

func newWSHub() *wsHub {
	return &wsHub{clients: make(map[*wsClient]struct{})}
}

func (h *wsHub) add(c *wsClient) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()
}

func (h *wsHub) remove(c *wsClient) {
	h.mu.Lock()
	delete(h.clients, c)
	h.mu.Unlock()
}

func (h *wsHub) count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// checkOrigin accepts same-origin requests and the configured CORS origins.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	origins := s.corsOrigins()
	return slices.Contains(origins, "*") || slices.Contains(origins, origin)
}

// ============================================================
// Handler
// ============================================================

// handleWebSocket upgrades the connection and answers query and backtest
// requests until the client goes away. Requests run concurrently; answers
// arrive in completion order and carry the request id.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	client := &wsClient{conn: conn, send: make(chan WSMessage, 64)}
	s.hub.add(client)
	s.metrics.wsClients.Inc()
	defer func() {
		s.hub.remove(client)
		s.metrics.wsClients.Dec()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	written := make(chan struct{})
	go func() {
		wsWritePump(client)
		close(written)
	}()

	var wg sync.WaitGroup
	slots := make(chan struct{}, maxInFlight)
	s.wsReadPump(client, func(req WSRequest) {
		slots <- struct{}{}
		wg.Add(1)
		go func() {
			defer func() {
				<-slots
				wg.Done()
			}()
			client.send <- s.answer(ctx, req)
		}()
	})

	cancel()
	wg.Wait()
	close(client.send)
	<-written
	conn.Close()
}

// answer runs one request.
func (s *Server) answer(ctx context.Context, req WSRequest) WSMessage {
	var (
		data any
		err  error
	)
	switch req.Type {
	case "ping":
		return WSMessage{Type: "pong", ID: req.ID}
	case "query":
		data, err = s.runQuery(ctx, QueryRequest{Symbol: req.Symbol, Query: req.Query})
	case "backtest":
		data, err = s.runBacktest(ctx, BacktestRequest{
			Symbol:    req.Symbol,
			Strategy:  req.Strategy,
			Session:   req.Session,
			Period:    req.Period,
			Timeframe: req.Timeframe,
		})
	case "validate":
		data = s.validate(req.Query)
	default:
		return WSMessage{Type: "error", ID: req.ID, Data: map[string]string{
			"error":      "unknown message type '" + req.Type + "'. Use query, backtest, validate or ping",
			"error_type": "ValidationError",
		}}
	}
	if err != nil {
		return WSMessage{Type: "error", ID: req.ID, Data: describe(err)}
	}
	return WSMessage{Type: "result", ID: req.ID, Data: data}
}

// wsReadPump reads requests until the connection fails or closes.
func (s *Server) wsReadPump(client *wsClient, handle func(WSRequest)) {
	conn := client.conn
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.WithError(err).Debug("WebSocket read error")
			}
			return
		}

		var req WSRequest
		if err := json.Unmarshal(message, &req); err != nil {
			client.send <- WSMessage{Type: "error", Data: map[string]string{
				"error":      "invalid message: " + err.Error(),
				"error_type": "ValidationError",
			}}
			continue
		}
		s.log.WithFields(logrus.Fields{"type": req.Type, "id": req.ID}).Debug("WebSocket request")
		handle(req)
	}
}

// wsWritePump writes answers and pings until send is closed. After a write
// fails the remaining answers are drained and dropped.
func wsWritePump(client *wsClient) {
	conn := client.conn
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	broken := false
	for {
		select {
		case msg, ok := <-client.send:
			if broken {
				if !ok {
					return
				}
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := conn.WriteJSON(msg); err != nil {
				broken = true
			}

		case <-ticker.C:
			if broken {
				continue
			}
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				broken = true
			}
		}
	}
}
