package broadcast

import (
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"artist-shares-engine/internal/domain"
	"artist-shares-engine/internal/observability"
)

const (
	// TopicTrades and TopicFinancials are the per-entity topic prefixes;
	// the full topic is prefix + "/" + entityID.
	TopicTrades     = "trades"
	TopicFinancials = "financials"

	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 45 * time.Second
	sendBufferSize = 32
)

// Envelope is the wire frame for every publication.
type Envelope struct {
	Topic string          `json:"topic"`
	Data  json.RawMessage `json:"data"`
}

// TradeMessage is the wire form of a trade publication.
type TradeMessage struct {
	EntityID     string    `json:"entityId"`
	Side         string    `json:"side"`
	Amount       string    `json:"amount"`
	EthValue     string    `json:"ethValue"`
	AmountUSD    string    `json:"amountUsd"`
	PriceUSD     string    `json:"priceUsd"`
	Counterparty string    `json:"counterparty"`
	TxHash       string    `json:"txHash"`
	Timestamp    time.Time `json:"timestamp"`
}

// SnapshotMessage is the wire form of a financial snapshot publication.
type SnapshotMessage struct {
	EntityID          string  `json:"entityId"`
	CurrentPrice      string  `json:"currentPrice"`
	Volume24h         string  `json:"volume24h"`
	MarketCap         string  `json:"marketCap"`
	DailyLiquidityUSD float64 `json:"dailyLiquidityUsd"`
	CurveProgress     float64 `json:"curveProgress"`
	AvailableSupply   int64   `json:"availableSupply"`
	NextReset         string  `json:"nextReset,omitempty"`
	EthInCurveUSD     float64 `json:"ethInCurveUsd"`
}

// Hub is a websocket fan-out implementing Sink. Clients connect over HTTP
// and name the topics they want via the "topics" query parameter
// (comma-separated, e.g. "trades/a1,financials/a1"). A client that cannot
// keep up with its send buffer is disconnected rather than slowing
// publication.
type Hub struct {
	upgrader websocket.Upgrader
	logger   *log.Logger

	mu      sync.RWMutex
	clients map[*hubClient]struct{}
}

// HubOptions contains configuration for creating a Hub.
type HubOptions struct {
	// CheckOrigin defaults to accepting every origin, matching a
	// same-infrastructure frontend deployment.
	CheckOrigin func(r *http.Request) bool

	// Logger defaults to log.Default().
	Logger *log.Logger
}

// NewHub creates an empty hub.
func NewHub(opts HubOptions) *Hub {
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.Default()
	}
	return &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		logger:  logger,
		clients: make(map[*hubClient]struct{}),
	}
}

type hubClient struct {
	conn   *websocket.Conn
	topics map[string]struct{}
	send   chan []byte
	once   sync.Once
}

// ServeHTTP upgrades the request and serves the connection until the peer
// goes away.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Printf("[broadcast] upgrade: %v", err)
		return
	}

	client := &hubClient{
		conn:   conn,
		topics: parseTopics(r.URL.Query().Get("topics")),
		send:   make(chan []byte, sendBufferSize),
	}

	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	observability.DefaultMetrics.ConnectedClients.Inc()

	go h.writePump(client)
	h.readPump(client)
}

// PublishTrade announces a newly recorded trade for an entity.
func (h *Hub) PublishTrade(entityID string, trade *domain.Trade) {
	if trade == nil {
		return
	}
	h.publish(TopicTrades+"/"+entityID, TradeMessage{
		EntityID:     trade.EntityID,
		Side:         string(trade.Side),
		Amount:       trade.Amount.String(),
		EthValue:     trade.EthValue.String(),
		AmountUSD:    trade.AmountUSD.String(),
		PriceUSD:     trade.PriceUSD.String(),
		Counterparty: trade.Counterparty,
		TxHash:       trade.TxHash,
		Timestamp:    trade.Timestamp.UTC(),
	})
}

// PublishSnapshot announces a recomputed financial snapshot.
func (h *Hub) PublishSnapshot(entityID string, snapshot *domain.FinancialSnapshot) {
	if snapshot == nil {
		return
	}
	msg := SnapshotMessage{
		EntityID:          snapshot.EntityID,
		CurrentPrice:      snapshot.CurrentPrice,
		Volume24h:         snapshot.Volume24h,
		MarketCap:         snapshot.MarketCap,
		DailyLiquidityUSD: snapshot.DailyLiquidityUSD,
		CurveProgress:     snapshot.CurveProgress,
		AvailableSupply:   snapshot.AvailableSupply,
		EthInCurveUSD:     snapshot.EthInCurveUSD,
	}
	if !snapshot.NextReset.IsZero() {
		msg.NextReset = snapshot.NextReset.UTC().Format(time.RFC3339)
	}
	h.publish(TopicFinancials+"/"+entityID, msg)
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*hubClient, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		h.drop(c)
	}
}

func (h *Hub) publish(topic string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("[broadcast] marshal %s: %v", topic, err)
		return
	}
	frame, err := json.Marshal(Envelope{Topic: topic, Data: payload})
	if err != nil {
		h.logger.Printf("[broadcast] marshal envelope %s: %v", topic, err)
		return
	}

	h.mu.RLock()
	var stalled []*hubClient
	for c := range h.clients {
		if _, ok := c.topics[topic]; !ok {
			continue
		}
		select {
		case c.send <- frame:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stalled {
		h.logger.Printf("[broadcast] dropping stalled client")
		h.drop(c)
	}
}

func (h *Hub) drop(c *hubClient) {
	h.mu.Lock()
	_, present := h.clients[c]
	delete(h.clients, c)
	h.mu.Unlock()

	if present {
		observability.DefaultMetrics.ConnectedClients.Dec()
		c.once.Do(func() { close(c.send) })
	}
}

func (h *Hub) readPump(c *hubClient) {
	defer func() {
		h.drop(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	// Inbound frames are ignored; the read loop only notices disconnects
	// and keeps the pong handler running.
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writePump(c *hubClient) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			if !ok {
				c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
				return
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func parseTopics(raw string) map[string]struct{} {
	topics := make(map[string]struct{})
	for _, t := range strings.Split(raw, ",") {
		t = strings.TrimSpace(t)
		if t != "" {
			topics[t] = struct{}{}
		}
	}
	return topics
}

var _ Sink = (*Hub)(nil)
