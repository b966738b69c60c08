package gateway

import (
	"context"
	"net/http"
	"strings"

	"github.com/collab/internal/logger"
	"github.com/gorilla/websocket"
)

type Handler struct {
	hub            *Hub
	allowedOrigins string
	sendBuf        int
}

// NewHandler создаёт обработчик подписок. allowedOrigins — как в CORS (через запятую или "*").
func NewHandler(hub *Hub, allowedOrigins string, sendBuf int) *Handler {
	return &Handler{hub: hub, allowedOrigins: strings.TrimSpace(allowedOrigins), sendBuf: sendBuf}
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.allowedOrigins == "*" || h.allowedOrigins == "" {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	for _, o := range strings.Split(h.allowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

// ServeWS подписывает соединение на канал: GET /ws?channel_id=...&user_id=...
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	channelID := strings.TrimSpace(r.URL.Query().Get("channel_id"))
	if channelID == "" {
		http.Error(w, "channel_id required", http.StatusBadRequest)
		return
	}
	if !h.checkOrigin(r) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	if h.hub.Full() {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Errorf("ws upgrade: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	client := NewClient(h.hub, conn, channelID, userID, h.sendBuf)
	client.Start(ctx, cancel)
	h.hub.Register(client)
}
