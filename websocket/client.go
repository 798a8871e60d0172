package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"riderx/models"
	"riderx/utils"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 4096
	sendBufferSize = 256

	fixTimeout = 5 * time.Second
)

var Upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client is one websocket connection of an authenticated rider.
type Client struct {
	conn    *websocket.Conn
	hub     *Hub
	riderID string

	connectionID string
	connectedAt  time.Time

	sendMu sync.Mutex
	send   chan models.WSMessage
	closed bool

	limiter   *rate.Limiter
	validator *utils.ValidationService
}

func NewClient(conn *websocket.Conn, hub *Hub, riderID string) *Client {
	return &Client{
		conn:         conn,
		hub:          hub,
		riderID:      riderID,
		connectionID: utils.GenerateUUID(),
		connectedAt:  time.Now(),
		send:         make(chan models.WSMessage, sendBufferSize),
		// Fixes arrive about once a second; allow short bursts after reconnects.
		limiter:   rate.NewLimiter(rate.Limit(5), 20),
		validator: utils.NewValidationService(),
	}
}

// enqueue never blocks; it reports false when the buffer is full or the
// client is gone.
func (c *Client) enqueue(msg models.WSMessage) bool {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		return false
	}
}

func (c *Client) closeSend() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logrus.Errorf("WebSocket error for rider %s: %v", c.riderID, err)
			}
			return
		}

		if !c.limiter.Allow() {
			c.sendError(models.WSErrorRateLimit, "Rate limit exceeded", "")
			continue
		}

		c.handleMessage(data)
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteJSON(message); err != nil {
				logrus.Errorf("Write error for rider %s: %v", c.riderID, err)
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

func (c *Client) handleMessage(data []byte) {
	var req models.WSRequest
	if err := json.Unmarshal(data, &req); err != nil {
		c.sendError(models.WSErrorInvalidMessage, "Invalid message format", "")
		return
	}

	switch req.Type {
	case models.WSTypePing:
		c.reply(models.WSTypePong, nil, req.RequestID)
	case models.WSTypeFix:
		c.handleFix(req)
	default:
		c.sendError(models.WSErrorInvalidMessage, "Unknown message type: "+req.Type, req.RequestID)
	}
}

func (c *Client) handleFix(req models.WSRequest) {
	var fixReq models.WSFixRequest
	if err := json.Unmarshal(req.Data, &fixReq); err != nil {
		c.sendError(models.WSErrorInvalidMessage, "Invalid fix payload", req.RequestID)
		return
	}
	if errs := c.validator.ValidateStruct(fixReq); len(errs) > 0 {
		c.sendError(models.WSErrorInvalidMessage, errs[0].Message, req.RequestID)
		return
	}
	if c.hub.fixHandler == nil {
		c.sendError(models.WSErrorFixRejected, "Ride tracking unavailable", req.RequestID)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), fixTimeout)
	defer cancel()

	result, err := c.hub.fixHandler.AddFix(ctx, c.riderID, fixReq.RideID, fixReq.ToFix())
	if err != nil {
		c.sendError(models.WSErrorFixRejected, err.Error(), req.RequestID)
		return
	}
	c.reply(models.WSTypeFixResult, result, req.RequestID)
}

func (c *Client) reply(msgType string, data interface{}, requestID string) {
	c.enqueue(models.WSMessage{
		Type:      msgType,
		Data:      data,
		RiderID:   c.riderID,
		RequestID: requestID,
		Timestamp: time.Now(),
	})
}

func (c *Client) sendError(code, message, requestID string) {
	c.reply(models.WSTypeError, models.WSError{Code: code, Message: message}, requestID)
}
