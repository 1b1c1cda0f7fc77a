package messaging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jrsteele09/solugarde-client/api"
	"github.com/rs/zerolog/log"
)

const (
	optimisticPrefix = "tmp_"
	defaultPageSize  = 50
)

var ErrEmptyMessage = errors.New("message body is empty")

// MessageAPI is the REST surface a Thread needs
type MessageAPI interface {
	ConversationMessages(ctx context.Context, conversationID string, p api.Page) (*api.PaginatedResponse[api.Message], error)
	CreateMessage(ctx context.Context, conversationID, body string) (*api.Message, error)
	MarkMessageRead(ctx context.Context, messageID string) error
}

var _ MessageAPI = (*api.Client)(nil)

// Thread holds the messages of one conversation. Sends are shown immediately with a temporary
// id and reconciled when the server echoes them back.
type Thread struct {
	conversationID string
	selfID         string
	rest           MessageAPI
	gateway        *Gateway
	now            func() time.Time

	messages []api.Message
	onChange func([]api.Message)
	lock     sync.Mutex
}

type ThreadOption func(*Thread)

// WithOnChange registers fn to receive a copy of the messages after every change
func WithOnChange(fn func([]api.Message)) ThreadOption {
	return func(t *Thread) {
		t.onChange = fn
	}
}

func WithThreadNowFunc(now func() time.Time) ThreadOption {
	return func(t *Thread) {
		t.now = now
	}
}

// NewThread creates a thread for conversationID on behalf of the user selfID
func NewThread(conversationID, selfID string, rest MessageAPI, opts ...ThreadOption) *Thread {
	t := &Thread{
		conversationID: conversationID,
		selfID:         selfID,
		rest:           rest,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// IsOptimistic reports whether id was assigned locally to a message not yet confirmed
func IsOptimistic(id string) bool {
	return strings.HasPrefix(id, optimisticPrefix)
}

func (t *Thread) ConversationID() string {
	return t.conversationID
}

// Load replaces the thread contents with the first page of the conversation
func (t *Thread) Load(ctx context.Context) error {
	page, err := t.rest.ConversationMessages(ctx, t.conversationID, api.Page{Page: 1, Limit: defaultPageSize})
	if err != nil {
		return fmt.Errorf("[Thread.Load] %w", err)
	}
	t.lock.Lock()
	t.messages = append([]api.Message(nil), page.Data...)
	t.lock.Unlock()
	t.changed()
	return nil
}

// Messages returns a copy of the thread in display order
func (t *Thread) Messages() []api.Message {
	t.lock.Lock()
	defer t.lock.Unlock()
	return append([]api.Message(nil), t.messages...)
}

// Attach routes gateway events for this conversation into the thread
func (t *Thread) Attach(g *Gateway) (detach func()) {
	t.lock.Lock()
	t.gateway = g
	t.lock.Unlock()

	offMessage := g.OnMessage(t.Receive)
	offRead := g.OnRead(t.ApplyReadReceipt)
	return func() {
		offMessage()
		offRead()
		t.lock.Lock()
		if t.gateway == g {
			t.gateway = nil
		}
		t.lock.Unlock()
	}
}

// Send shows body immediately and delivers it over the gateway when connected, falling back to
// REST otherwise. A REST failure removes the optimistic entry.
func (t *Thread) Send(ctx context.Context, body string) (api.Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return api.Message{}, ErrEmptyMessage
	}

	pending := api.Message{
		ID:             optimisticPrefix + uuid.NewString(),
		ConversationID: t.conversationID,
		SenderID:       t.selfID,
		Content:        body,
		CreatedAt:      t.now().UTC(),
	}
	t.lock.Lock()
	t.messages = append(t.messages, pending)
	g := t.gateway
	t.lock.Unlock()
	t.changed()

	if g != nil && g.Connected() {
		err := g.SendMessage(ctx, t.conversationID, body)
		if err == nil {
			return pending, nil
		}
		log.Warn().Err(err).Str("conversationId", t.conversationID).Msg("gateway send failed, falling back to REST")
	}

	sent, err := t.rest.CreateMessage(ctx, t.conversationID, body)
	if err != nil {
		t.lock.Lock()
		t.remove(pending.ID)
		t.lock.Unlock()
		t.changed()
		return api.Message{}, fmt.Errorf("[Thread.Send] %w", err)
	}

	t.lock.Lock()
	if i := t.index(pending.ID); i >= 0 {
		if t.index(sent.ID) >= 0 {
			t.remove(pending.ID)
		} else {
			t.messages[i] = *sent
		}
	}
	t.lock.Unlock()
	t.changed()
	return *sent, nil
}

// Receive applies a message pushed by the server. A known id is updated in place. Otherwise the
// oldest optimistic entry from the same sender with the same content is replaced, or the message
// is appended.
func (t *Thread) Receive(msg api.Message) {
	if msg.ConversationID != t.conversationID {
		return
	}
	t.lock.Lock()
	switch {
	case t.index(msg.ID) >= 0:
		t.messages[t.index(msg.ID)] = msg
	case t.oldestPending(msg) >= 0:
		t.messages[t.oldestPending(msg)] = msg
	default:
		t.messages = append(t.messages, msg)
	}
	t.lock.Unlock()
	t.changed()
}

// ApplyReadReceipt marks a message as read. Unknown ids are ignored.
func (t *Thread) ApplyReadReceipt(r ReadReceipt) {
	t.lock.Lock()
	i := t.index(r.ID)
	if i >= 0 {
		readAt := r.ReadAt
		t.messages[i].ReadAt = &readAt
	}
	t.lock.Unlock()
	if i >= 0 {
		t.changed()
	}
}

// Unread returns the confirmed messages sent by someone other than userID that have no read receipt
func (t *Thread) Unread(userID string) []api.Message {
	t.lock.Lock()
	defer t.lock.Unlock()
	var unread []api.Message
	for _, m := range t.messages {
		if m.SenderID != userID && !m.IsRead() && !IsOptimistic(m.ID) {
			unread = append(unread, m)
		}
	}
	return unread
}

// MarkAllRead acknowledges every unread message addressed to this user. Each acknowledgement is
// attempted even if an earlier one fails; the failures are returned joined.
func (t *Thread) MarkAllRead(ctx context.Context) error {
	t.lock.Lock()
	g := t.gateway
	t.lock.Unlock()

	var errs []error
	for _, m := range t.Unread(t.selfID) {
		if g != nil && g.Connected() {
			if err := g.MarkRead(ctx, m.ID); err == nil {
				continue
			}
		}
		if err := t.rest.MarkMessageRead(ctx, m.ID); err != nil {
			log.Warn().Err(err).Str("messageId", m.ID).Msg("mark read failed")
			errs = append(errs, err)
			continue
		}
		t.ApplyReadReceipt(ReadReceipt{ID: m.ID, ReadAt: t.now().UTC()})
	}
	return errors.Join(errs...)
}

func (t *Thread) index(id string) int {
	for i := range t.messages {
		if t.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (t *Thread) oldestPending(msg api.Message) int {
	for i, m := range t.messages {
		if IsOptimistic(m.ID) && m.SenderID == msg.SenderID && m.Content == msg.Content {
			return i
		}
	}
	return -1
}

func (t *Thread) remove(id string) {
	if i := t.index(id); i >= 0 {
		t.messages = append(t.messages[:i], t.messages[i+1:]...)
	}
}

func (t *Thread) changed() {
	if t.onChange == nil {
		return
	}
	t.onChange(t.Messages())
}
