package gateway

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/maestro/internal/logging"
)

// Client is an authenticated WebSocket connection. Writes are serialized.
type Client struct {
	ConnID      string
	Info        ClientInfo
	Auth        AuthResult
	ConnectedAt time.Time

	conn   *websocket.Conn
	mu     sync.Mutex
	closed bool
}

// NewClient wraps an authenticated connection.
func NewClient(conn *websocket.Conn, info ClientInfo, auth AuthResult) *Client {
	return &Client{
		ConnID:      uuid.NewString(),
		Info:        info,
		Auth:        auth,
		ConnectedAt: time.Now(),
		conn:        conn,
	}
}

// Send writes a frame.
func (c *Client) Send(f Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	return c.conn.WriteJSON(f)
}

// Respond sends a success response for a request id.
func (c *Client) Respond(id string, payload any) error {
	f, err := NewResponse(id, payload)
	if err != nil {
		return err
	}
	return c.Send(f)
}

// RespondError sends a failed response for a request id.
func (c *Client) RespondError(id string, shape ErrorShape) error {
	return c.Send(NewErrorResponse(id, shape))
}

// ReadFrame reads the next frame.
func (c *Client) ReadFrame() (Frame, error) {
	_, msg, err := c.conn.ReadMessage()
	if err != nil {
		return Frame{}, err
	}
	var f Frame
	if err := json.Unmarshal(msg, &f); err != nil {
		return Frame{}, err
	}
	return f, nil
}

// Close closes the connection once.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

// ClientRegistry tracks connected clients by connection id.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{clients: make(map[string]*Client), log: log}
}

func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	r.clients[c.ConnID] = c
	r.mu.Unlock()
	r.log.Info().Str("connId", c.ConnID).Str("client", c.Info.ID).Msg("client connected")
}

func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	delete(r.clients, connID)
	r.mu.Unlock()
	r.log.Info().Str("connId", connID).Msg("client disconnected")
}

func (r *ClientRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	return c, ok
}

func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes and forgets every client.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}
