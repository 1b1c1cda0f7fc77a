package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/jrsteele09/solugarde-client/api"
	sgerrors "github.com/jrsteele09/solugarde-client/internal/errors"
	"github.com/rs/zerolog/log"
)

const (
	EventAuth    = "auth"
	EventSend    = "message:send"
	EventRead    = "message:read"
	EventReceive = "message:receive"

	defaultWriteTimeout = 5 * time.Second
	maxFrameBytes       = 1 << 20
)

var ErrNotConnected = errors.New("messaging gateway not connected")

// Frame is the JSON envelope exchanged with the gateway
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

type authPayload struct {
	Token         string `json:"token"`
	Authorization string `json:"Authorization"`
}

type sendPayload struct {
	ConversationID string `json:"conversationId"`
	Body           string `json:"body"`
}

type readPayload struct {
	ID string `json:"id"`
}

// ReadReceipt is delivered with message:read events
type ReadReceipt struct {
	ID     string    `json:"id"`
	ReadAt time.Time `json:"readAt"`
}

// TokenProvider returns the current access token
type TokenProvider interface {
	AuthToken() string
}

type Handler func(data json.RawMessage)

// Gateway is a websocket client for the messaging gateway
type Gateway struct {
	url    string
	tokens TokenProvider

	conn      *websocket.Conn
	cancel    context.CancelFunc
	done      chan struct{}
	connected bool

	handlers map[string]map[int]Handler
	nextID   int
	lock     sync.RWMutex
}

func NewGateway(url string, tokens TokenProvider) *Gateway {
	return &Gateway{
		url:      url,
		tokens:   tokens,
		handlers: make(map[string]map[int]Handler),
	}
}

func (g *Gateway) URL() string {
	return g.url
}

// Connect dials the gateway with the current access token, passed both as the token query
// parameter and in an auth frame sent immediately after the handshake.
func (g *Gateway) Connect(ctx context.Context) error {
	token := g.tokens.AuthToken()
	if token == "" {
		return sgerrors.ErrNotAuthenticated
	}
	target, err := withToken(g.url, token)
	if err != nil {
		return fmt.Errorf("[Gateway.Connect] url: %w", err)
	}

	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)
	conn, resp, err := websocket.Dial(ctx, target, &websocket.DialOptions{HTTPHeader: header})
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("[Gateway.Connect] dial: %w: %w", sgerrors.ErrNetwork, err)
	}
	conn.SetReadLimit(maxFrameBytes)

	if err := writeFrame(ctx, conn, EventAuth, authPayload{Token: token, Authorization: "Bearer " + token}); err != nil {
		_ = conn.CloseNow()
		return fmt.Errorf("[Gateway.Connect] auth: %w", err)
	}

	readCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	g.lock.Lock()
	previous, previousCancel := g.conn, g.cancel
	g.conn, g.cancel, g.done, g.connected = conn, cancel, done, true
	g.lock.Unlock()
	if previous != nil {
		previousCancel()
		_ = previous.CloseNow()
	}

	go g.readLoop(readCtx, conn, done)
	return nil
}

func (g *Gateway) Connected() bool {
	g.lock.RLock()
	defer g.lock.RUnlock()
	return g.connected
}

// Close ends the connection and waits for the read loop to exit
func (g *Gateway) Close() error {
	g.lock.Lock()
	conn, cancel, done, connected := g.conn, g.cancel, g.done, g.connected
	g.conn, g.connected = nil, false
	g.lock.Unlock()

	if conn == nil {
		return nil
	}
	var err error
	if connected {
		err = conn.Close(websocket.StatusNormalClosure, "bye")
	} else {
		_ = conn.CloseNow()
	}
	cancel()
	<-done
	if errors.Is(err, net.ErrClosed) || websocket.CloseStatus(err) != -1 {
		return nil
	}
	return err
}

// On registers fn for event and returns a function that removes it
func (g *Gateway) On(event string, fn Handler) (off func()) {
	g.lock.Lock()
	defer g.lock.Unlock()
	if g.handlers[event] == nil {
		g.handlers[event] = make(map[int]Handler)
	}
	id := g.nextID
	g.nextID++
	g.handlers[event][id] = fn

	return func() {
		g.lock.Lock()
		defer g.lock.Unlock()
		delete(g.handlers[event], id)
	}
}

// OnMessage registers fn for message:receive events
func (g *Gateway) OnMessage(fn func(api.Message)) (off func()) {
	return g.On(EventReceive, func(data json.RawMessage) {
		var msg api.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(err).Str("event", EventReceive).Msg("undecodable gateway payload")
			return
		}
		fn(msg)
	})
}

// OnRead registers fn for message:read events
func (g *Gateway) OnRead(fn func(ReadReceipt)) (off func()) {
	return g.On(EventRead, func(data json.RawMessage) {
		var receipt ReadReceipt
		if err := json.Unmarshal(data, &receipt); err != nil {
			log.Warn().Err(err).Str("event", EventRead).Msg("undecodable gateway payload")
			return
		}
		fn(receipt)
	})
}

// Emit sends an event with data as its payload
func (g *Gateway) Emit(ctx context.Context, event string, data any) error {
	g.lock.RLock()
	conn, connected := g.conn, g.connected
	g.lock.RUnlock()
	if !connected {
		return ErrNotConnected
	}
	if err := writeFrame(ctx, conn, event, data); err != nil {
		return fmt.Errorf("[Gateway.Emit] %s: %w", event, err)
	}
	return nil
}

func (g *Gateway) SendMessage(ctx context.Context, conversationID, body string) error {
	return g.Emit(ctx, EventSend, sendPayload{ConversationID: conversationID, Body: body})
}

func (g *Gateway) MarkRead(ctx context.Context, messageID string) error {
	return g.Emit(ctx, EventRead, readPayload{ID: messageID})
}

func (g *Gateway) readLoop(ctx context.Context, conn *websocket.Conn, done chan struct{}) {
	defer close(done)
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			g.lock.Lock()
			current := g.conn == conn
			if current {
				g.connected = false
			}
			g.lock.Unlock()
			if current {
				log.Warn().Err(err).Int("status", int(websocket.CloseStatus(err))).Msg("messaging gateway disconnected")
			}
			return
		}
		var f Frame
		if err := json.Unmarshal(data, &f); err != nil {
			log.Warn().Err(err).Msg("undecodable gateway frame")
			continue
		}
		g.dispatch(f)
	}
}

func (g *Gateway) dispatch(f Frame) {
	g.lock.RLock()
	handlers := make([]Handler, 0, len(g.handlers[f.Event]))
	for _, h := range g.handlers[f.Event] {
		handlers = append(handlers, h)
	}
	g.lock.RUnlock()

	for _, h := range handlers {
		h(f.Data)
	}
}

func writeFrame(parent context.Context, conn *websocket.Conn, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return err
	}
	b, err := json.Marshal(Frame{Event: event, Data: raw})
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(parent, defaultWriteTimeout)
	defer cancel()
	return conn.Write(ctx, websocket.MessageText, b)
}
