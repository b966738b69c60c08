package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/collab/internal/logger"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	maxMessageSize = 1 << 20
	recvBufSize    = 256
)

// WSStream получает события канала от шлюза по websocket.
type WSStream struct {
	baseURL string
	userID  string
	dialer  *websocket.Dialer
}

// NewWSStream — baseURL вида ws://host:8090/ws.
func NewWSStream(baseURL, userID string) *WSStream {
	return &WSStream{
		baseURL: baseURL,
		userID:  userID,
		dialer:  &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
	}
}

// Open подключается к шлюзу и ждёт подтверждения подписки.
func (s *WSStream) Open(ctx context.Context, channelID string) (Subscription, error) {
	u, err := url.Parse(s.baseURL)
	if err != nil {
		return nil, fmt.Errorf("wsstream url: %w", err)
	}
	q := u.Query()
	q.Set("channel_id", channelID)
	q.Set("user_id", s.userID)
	u.RawQuery = q.Encode()

	conn, resp, err := s.dialer.DialContext(ctx, u.String(), http.Header{})
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wsstream dial: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("wsstream dial: %w", err)
	}

	c := &wsSubscription{
		conn:   conn,
		frames: make(chan Frame, recvBufSize),
		done:   make(chan struct{}),
	}
	go c.readPump()

	select {
	case f, ok := <-c.frames:
		if !ok {
			_ = c.Close()
			return nil, fmt.Errorf("wsstream: %w", c.readErr())
		}
		if f.Type != EventSubscribed {
			_ = c.Close()
			return nil, fmt.Errorf("wsstream: unexpected first frame %q %s", f.Type, f.Error)
		}
	case <-ctx.Done():
		_ = c.Close()
		return nil, ctx.Err()
	}
	return c, nil
}

type wsSubscription struct {
	conn   *websocket.Conn
	frames chan Frame

	mu   sync.Mutex
	err  error
	once sync.Once
	done chan struct{}
}

func (c *wsSubscription) readErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err == nil {
		return ErrStreamClosed
	}
	return c.err
}

// readPump читает кадры и кладёт их в буфер. Выходит при ошибке чтения или Close.
func (c *wsSubscription) readPump() {
	defer close(c.frames)
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPingHandler(func(data string) error {
		_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			c.err = err
			c.mu.Unlock()
			return
		}
		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			logger.Errorf("wsstream unmarshal: %v", err)
			continue
		}
		select {
		case c.frames <- f:
		case <-c.done:
			return
		}
	}
}

func (c *wsSubscription) Next(ctx context.Context) (Event, error) {
	for {
		select {
		case <-ctx.Done():
			return Event{}, ctx.Err()
		case f, ok := <-c.frames:
			if !ok {
				return Event{}, fmt.Errorf("wsstream read: %w", c.readErr())
			}
			switch f.Type {
			case EventMessageCreated, EventMessageUpdated:
				if f.Message == nil {
					continue
				}
				return Event{Type: f.Type, ChannelID: f.ChannelID, Message: *f.Message}, nil
			case EventError:
				return Event{}, fmt.Errorf("wsstream: gateway error: %s", f.Error)
			}
		}
	}
}

func (c *wsSubscription) Close() error {
	var err error
	c.once.Do(func() {
		close(c.done)
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		err = c.conn.Close()
	})
	return err
}
