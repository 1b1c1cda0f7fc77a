package apifake

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
)

const (
	eventAuth    = "auth"
	eventSend    = "message:send"
	eventRead    = "message:read"
	eventReceive = "message:receive"

	writeTimeout = 5 * time.Second
)

// AuthFrame is the first frame a gateway client sends after connecting
type AuthFrame struct {
	Token         string `json:"token"`
	Authorization string `json:"Authorization"`
}

type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// gatewayHandler serves the messaging websocket. The access token is read from the token
// query parameter and every connection must open with an auth frame.
func (s *Server) gatewayHandler(w http.ResponseWriter, r *http.Request) {
	tok := r.URL.Query().Get("token")
	s.lock.RLock()
	acct, ok := s.userForAccess(tok)
	s.lock.RUnlock()
	if !ok {
		writeError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{InsecureSkipVerify: true})
	if err != nil {
		return
	}
	defer func() { _ = conn.CloseNow() }()
	ctx := r.Context()

	first, err := readFrame(ctx, conn)
	if err != nil || first.Event != eventAuth {
		_ = conn.Close(websocket.StatusPolicyViolation, "auth frame required")
		return
	}
	var auth AuthFrame
	if err := json.Unmarshal(first.Data, &auth); err != nil || (auth.Token != tok && strings.TrimPrefix(auth.Authorization, "Bearer ") != tok) {
		_ = conn.Close(websocket.StatusPolicyViolation, "token mismatch")
		return
	}

	s.lock.Lock()
	s.authFrames = append(s.authFrames, auth)
	s.sockets[conn] = acct.user.ID
	s.lock.Unlock()
	defer func() {
		s.lock.Lock()
		delete(s.sockets, conn)
		s.lock.Unlock()
	}()

	for {
		f, err := readFrame(ctx, conn)
		if err != nil {
			return
		}
		switch f.Event {
		case eventSend:
			var payload struct {
				ConversationID string `json:"conversationId"`
				Body           string `json:"body"`
			}
			if json.Unmarshal(f.Data, &payload) != nil || strings.TrimSpace(payload.Body) == "" {
				continue
			}
			s.lock.Lock()
			msg := s.appendMessage(payload.ConversationID, acct.user.ID, payload.Body)
			s.lock.Unlock()
			s.broadcast(eventReceive, msg)
		case eventRead:
			var payload struct {
				ID string `json:"id"`
			}
			if json.Unmarshal(f.Data, &payload) != nil {
				continue
			}
			s.lock.Lock()
			receipt, ok := s.markRead(payload.ID)
			s.lock.Unlock()
			if ok {
				s.broadcast(eventRead, receipt)
			}
		}
	}
}

// Broadcast pushes an event to every connected gateway client
func (s *Server) Broadcast(event string, data any) {
	s.broadcast(event, data)
}

func (s *Server) broadcast(event string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		return
	}
	b, err := json.Marshal(frame{Event: event, Data: raw})
	if err != nil {
		return
	}

	s.lock.RLock()
	conns := make([]*websocket.Conn, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.lock.RUnlock()

	for _, c := range conns {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		_ = c.Write(ctx, websocket.MessageText, b)
		cancel()
	}
}

// AuthFrames returns the auth frames received from gateway clients
func (s *Server) AuthFrames() []AuthFrame {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return append([]AuthFrame(nil), s.authFrames...)
}

// ConnectedSockets returns the number of authenticated gateway connections
func (s *Server) ConnectedSockets() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.sockets)
}

// DropSockets closes every gateway connection
func (s *Server) DropSockets() {
	s.closeSockets(websocket.StatusGoingAway, "dropped")
}

func (s *Server) closeSockets(code websocket.StatusCode, reason string) {
	s.lock.Lock()
	conns := make([]*websocket.Conn, 0, len(s.sockets))
	for c := range s.sockets {
		conns = append(conns, c)
	}
	s.sockets = make(map[*websocket.Conn]string)
	s.lock.Unlock()

	for _, c := range conns {
		_ = c.Close(code, reason)
	}
}

func readFrame(ctx context.Context, conn *websocket.Conn) (frame, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return frame{}, err
	}
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return frame{}, err
	}
	return f, nil
}
