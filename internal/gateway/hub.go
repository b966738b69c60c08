// Package gateway раздаёт события каналов подписанным websocket-клиентам.
package gateway

import (
	"context"
	"sync"

	"github.com/collab/internal/logger"
	"github.com/collab/internal/metrics"
	"github.com/collab/internal/realtime"
)

// Hub хранит подписчиков по каналам. Регистрация и удаление идут через Run.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]map[*Client]struct{}
	total      int
	maxConns   int
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(maxConns int) *Hub {
	if maxConns <= 0 {
		maxConns = 10000
	}
	return &Hub{
		clients:    make(map[string]map[*Client]struct{}),
		maxConns:   maxConns,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) shutdown() {
	// Collect all clients under the lock, do NOT perform I/O under mutex.
	h.mu.Lock()
	allClients := make([]*Client, 0, h.total)
	for _, clients := range h.clients {
		for c := range clients {
			allClients = append(allClients, c)
		}
	}
	h.clients = make(map[string]map[*Client]struct{})
	metrics.GatewayConnections.Sub(float64(h.total))
	h.total = 0
	h.mu.Unlock()

	for _, c := range allClients {
		c.Close()
	}
	for _, c := range allClients {
		c.Wait()
	}
}

// Full сообщает, что лимит соединений исчерпан.
func (h *Hub) Full() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.total >= h.maxConns
}

// Count — число подписчиков канала ("" — всего).
func (h *Hub) Count(channelID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if channelID == "" {
		return h.total
	}
	return len(h.clients[channelID])
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if h.total >= h.maxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.maxConns, c.userID)
		c.Close()
		return
	}
	if _, ok := h.clients[c.channelID]; !ok {
		h.clients[c.channelID] = make(map[*Client]struct{})
	}
	h.clients[c.channelID][c] = struct{}{}
	h.total++
	h.mu.Unlock()
	metrics.GatewayConnections.Inc()

	// подтверждение уходит только после регистрации: всё, что разослано позже, клиент получит
	h.sendToClient(c, realtime.Frame{Type: realtime.EventSubscribed, ChannelID: c.channelID})
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	clients, ok := h.clients[c.channelID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, exists := clients[c]; !exists {
		h.mu.Unlock()
		return
	}
	delete(clients, c)
	h.total--
	if len(clients) == 0 {
		delete(h.clients, c.channelID)
	}
	h.mu.Unlock()
	metrics.GatewayConnections.Dec()

	c.Close()
}

// Broadcast отправляет событие всем подписчикам его канала.
func (h *Hub) Broadcast(ev realtime.Event) {
	h.mu.RLock()
	clients := h.clients[ev.ChannelID]
	targets := make([]*Client, 0, len(clients))
	for c := range clients {
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	f := realtime.FrameOf(ev)
	for _, c := range targets {
		h.sendToClient(c, f)
	}
}

func (h *Hub) sendToClient(c *Client, f realtime.Frame) {
	select {
	case c.send <- f:
	case <-c.done:
	default:
		// Backpressure: send buffer full, close slow client.
		logger.Errorf("ws send buffer full, closing slow client user=%s channel=%s", c.userID, c.channelID)
		c.Close()
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}
