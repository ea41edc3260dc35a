// Package relay is the websocket client side of the message relay.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"lite-signal/common"
	"lite-signal/configs"

	"github.com/gorilla/websocket"
)

type Conn struct {
	userID string
	ws     *websocket.Conn
	wmu    sync.Mutex
}

// Dial connects userID to the relay at serverAddress, given as "host:port"
// or an http(s)/ws(s) URL. Messages queued while offline arrive first.
func Dial(ctx context.Context, serverAddress, userID string) (*Conn, error) {
	u := wsURL(serverAddress) + configs.WebSocketPath + "?userId=" + url.QueryEscape(userID)
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to WebSocket server: %w", err)
	}
	return &Conn{userID: userID, ws: ws}, nil
}

func wsURL(addr string) string {
	switch {
	case strings.HasPrefix(addr, "https://"):
		addr = "wss://" + strings.TrimPrefix(addr, "https://")
	case strings.HasPrefix(addr, "http://"):
		addr = "ws://" + strings.TrimPrefix(addr, "http://")
	case strings.HasPrefix(addr, "ws://"), strings.HasPrefix(addr, "wss://"):
	default:
		addr = "ws://" + addr
	}
	return strings.TrimSuffix(addr, "/")
}

// Send relays msg to the user named in to.
func (c *Conn) Send(to string, msg *common.EncryptedMessage) error {
	data, err := json.Marshal(common.MessageBundle{From: c.userID, To: to, Message: *msg})
	if err != nil {
		return fmt.Errorf("failed to marshal message to JSON: %w", err)
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// Receive blocks until the next message arrives or the connection fails.
func (c *Conn) Receive() (*common.MessageBundle, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, err
	}
	var msg common.MessageBundle
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedMessage, err)
	}
	return &msg, nil
}

func (c *Conn) Close() error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	_ = c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return c.ws.Close()
}
