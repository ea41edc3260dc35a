package client

import (
	"context"
	"fmt"

	"lite-signal/common"
	"lite-signal/relay"

	"github.com/gorilla/websocket"
)

// Handler is called for every message that decrypts.
type Handler func(from string, plaintext []byte)

// Connect opens the relay connection. Messages queued while offline are
// delivered to the next Listen.
func (c *Client) Connect(ctx context.Context, serverAddress string) error {
	conn, err := relay.Dial(ctx, serverAddress, c.userID)
	if err != nil {
		return err
	}
	c.conn = conn
	return nil
}

// Send encrypts text for peerID over an existing session. Without one it
// returns common.ErrNoSession; call StartChat first.
func (c *Client) Send(ctx context.Context, peerID string, text []byte) error {
	if c.conn == nil {
		return fmt.Errorf("relay connection not established")
	}
	if !c.protocol.HasSession(peerID) {
		return fmt.Errorf("%w: %s", common.ErrNoSession, peerID)
	}

	msg, err := c.protocol.EncryptMessage(ctx, peerID, text)
	if err != nil {
		return fmt.Errorf("error encrypting message: %w", err)
	}
	return c.conn.Send(peerID, msg)
}

// Listen decrypts incoming messages until ctx is done or the connection
// closes. Messages that fail to decrypt are logged and dropped.
func (c *Client) Listen(ctx context.Context, handle Handler) error {
	if c.conn == nil {
		return fmt.Errorf("relay connection not established")
	}

	stop := context.AfterFunc(ctx, func() { c.conn.Close() })
	defer stop()

	for {
		bundle, err := c.conn.Receive()
		if err != nil {
			if ctx.Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				return nil
			}
			return fmt.Errorf("error reading message: %w", err)
		}

		plaintext, err := c.protocol.DecryptMessage(ctx, bundle.From, &bundle.Message)
		if err != nil {
			c.logger.WithField("from", bundle.From).WithError(err).Error("Error decrypting message")
			continue
		}
		handle(bundle.From, plaintext)
	}
}

func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}
