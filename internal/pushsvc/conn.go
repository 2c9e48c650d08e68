package pushsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/ufcrashout/iTrax/internal/webpush"
)

const (
	writeWait      = 10 * time.Second
	helloWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// ErrClosed is returned for requests issued after the connection ended.
var ErrClosed = errors.New("push service connection closed")

// StatusError is a non-200 status returned by the service for a request.
type StatusError struct {
	Type   MessageType
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("push service %s failed with status %d", e.Type, e.Status)
}

// Conn is an established, handshaken connection to the push service.
type Conn struct {
	ws     *websocket.Conn
	logger *zap.Logger
	uaid   string

	send          chan []byte
	notifications chan Notification

	mu      sync.Mutex
	pending map[string]chan Message
	err     error

	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	writerDone chan struct{}
	closeOnce  sync.Once
}

// Dial connects to the push service at url and performs the hello
// handshake. An empty uaid asks the service to assign one.
func Dial(ctx context.Context, url, uaid string, logger *zap.Logger) (*Conn, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, http.Header{})
	if err != nil {
		return nil, fmt.Errorf("dialing push service %s: %w", url, err)
	}

	assigned, err := hello(ws, uaid)
	if err != nil {
		ws.Close()
		return nil, err
	}

	connCtx, cancel := context.WithCancel(context.Background())
	c := &Conn{
		ws:            ws,
		logger:        logger,
		uaid:          assigned,
		send:          make(chan []byte, 16),
		notifications: make(chan Notification, 16),
		pending:       make(map[string]chan Message),
		ctx:           connCtx,
		cancel:        cancel,
		done:          make(chan struct{}),
		writerDone:    make(chan struct{}),
	}

	if uaid != "" && assigned != uaid {
		logger.Info("push service assigned a new uaid, existing channels are gone",
			zap.String("previous", uaid), zap.String("uaid", assigned))
	}

	go c.readPump()
	go c.writePump()

	return c, nil
}

// hello runs the synchronous handshake before the pumps start.
func hello(ws *websocket.Conn, uaid string) (string, error) {
	ws.SetWriteDeadline(time.Now().Add(writeWait))
	err := ws.WriteJSON(Message{MessageType: MessageHello, UAID: uaid, UseWebPush: true})
	if err != nil {
		return "", fmt.Errorf("sending hello: %w", err)
	}

	ws.SetReadDeadline(time.Now().Add(helloWait))
	var reply Message
	if err := ws.ReadJSON(&reply); err != nil {
		return "", fmt.Errorf("reading hello reply: %w", err)
	}
	if reply.MessageType != MessageHello {
		return "", fmt.Errorf("unexpected %q reply to hello", reply.MessageType)
	}
	if reply.Status != http.StatusOK {
		return "", &StatusError{Type: MessageHello, Status: reply.Status}
	}
	if reply.UAID == "" {
		return "", errors.New("hello reply carried no uaid")
	}

	return reply.UAID, nil
}

// UAID returns the user-agent id the service knows this client by.
func (c *Conn) UAID() string {
	return c.uaid
}

// Notifications delivers incoming pushes. The channel is closed when the
// connection ends.
func (c *Conn) Notifications() <-chan Notification {
	return c.notifications
}

// Done is closed once the connection has ended.
func (c *Conn) Done() <-chan struct{} {
	return c.done
}

// Err reports why the connection ended, or nil while it is open or after
// a clean Close.
func (c *Conn) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Register creates a channel bound to the application server key and
// returns its push endpoint.
func (c *Conn) Register(ctx context.Context, channelID, key string) (string, error) {
	reply, err := c.request(ctx, Message{
		MessageType: MessageRegister,
		ChannelID:   channelID,
		Key:         key,
	})
	if err != nil {
		return "", err
	}
	if reply.PushEndpoint == "" {
		return "", errors.New("register reply carried no push endpoint")
	}
	return reply.PushEndpoint, nil
}

// Unregister drops a channel.
func (c *Conn) Unregister(ctx context.Context, channelID string) error {
	_, err := c.request(ctx, Message{
		MessageType: MessageUnregister,
		ChannelID:   channelID,
	})
	return err
}

// Ack acknowledges delivery of n with the given code.
func (c *Conn) Ack(ctx context.Context, n Notification, code int) error {
	return c.write(ctx, Message{
		MessageType: MessageAck,
		Updates:     []Update{{ChannelID: n.ChannelID, Version: n.Version, Code: code}},
	})
}

// Close ends the connection and waits for both pumps to exit.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.cancel()
		<-c.writerDone
		c.ws.Close()
	})
	<-c.done
	return nil
}

// request sends msg and waits for the reply on the same channel id.
func (c *Conn) request(ctx context.Context, msg Message) (Message, error) {
	replies := make(chan Message, 1)

	c.mu.Lock()
	if _, busy := c.pending[msg.ChannelID]; busy {
		c.mu.Unlock()
		return Message{}, fmt.Errorf("%s already in flight for channel %s", msg.MessageType, msg.ChannelID)
	}
	c.pending[msg.ChannelID] = replies
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, msg.ChannelID)
		c.mu.Unlock()
	}()

	if err := c.write(ctx, msg); err != nil {
		return Message{}, err
	}

	select {
	case reply := <-replies:
		if reply.Status != http.StatusOK {
			return reply, &StatusError{Type: msg.MessageType, Status: reply.Status}
		}
		return reply, nil
	case <-ctx.Done():
		return Message{}, ctx.Err()
	case <-c.done:
		return Message{}, ErrClosed
	}
}

// write queues a frame for the write pump.
func (c *Conn) write(ctx context.Context, msg Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", msg.MessageType, err)
	}

	select {
	case c.send <- data:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.ctx.Done():
		return ErrClosed
	}
}

// readPump dispatches incoming frames until the connection fails or closes.
func (c *Conn) readPump() {
	defer func() {
		c.cancel()
		close(c.notifications)
		close(c.done)
	}()

	c.ws.SetReadLimit(maxMessageSize)
	c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if c.ctx.Err() == nil {
				c.mu.Lock()
				c.err = fmt.Errorf("reading from push service: %w", err)
				c.mu.Unlock()
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					c.logger.Warn("push service connection lost", zap.Error(err))
				}
			}
			return
		}
		c.ws.SetReadDeadline(time.Now().Add(pongWait))

		msg, err := ParseMessage(data)
		if err != nil {
			c.logger.Warn("dropping malformed push service frame", zap.Error(err))
			continue
		}

		c.handle(msg)
	}
}

func (c *Conn) handle(msg Message) {
	switch msg.MessageType {
	case MessageRegister, MessageUnregister:
		c.mu.Lock()
		replies, ok := c.pending[msg.ChannelID]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("unsolicited reply", zap.String("type", string(msg.MessageType)),
				zap.String("channel_id", msg.ChannelID))
			return
		}
		select {
		case replies <- msg:
		default:
		}

	case MessageNotification:
		n := Notification{
			ChannelID: msg.ChannelID,
			Version:   msg.Version,
			Encoding:  msg.Headers["encoding"],
		}
		if msg.Data != "" {
			data, err := webpush.DecodeKey(msg.Data)
			if err != nil {
				c.logger.Warn("undecodable push data", zap.String("channel_id", msg.ChannelID), zap.Error(err))
				_ = c.Ack(c.ctx, n, AckDecryptFailed)
				return
			}
			n.Data = data
		}

		select {
		case c.notifications <- n:
		case <-c.ctx.Done():
		}

	default:
		c.logger.Debug("ignoring push service frame", zap.String("type", string(msg.MessageType)))
	}
}

// writePump serialises writes and keeps the connection alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		close(c.writerDone)
	}()

	for {
		select {
		case <-c.ctx.Done():
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case data := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Warn("writing to push service", zap.Error(err))
				c.cancel()
				c.ws.Close()
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("pinging push service", zap.Error(err))
				c.cancel()
				c.ws.Close()
				return
			}
		}
	}
}
