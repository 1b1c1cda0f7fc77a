package messaging_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jrsteele09/solugarde-client/api"
	"github.com/jrsteele09/solugarde-client/internal/errors"
	"github.com/jrsteele09/solugarde-client/messaging"
	"github.com/stretchr/testify/require"
)

// stubAPI serves a thread without a server. onCreate runs before CreateMessage returns.
type stubAPI struct {
	createErr error
	onCreate  func(api.Message)
	created   []api.Message
	lock      sync.Mutex
}

func (s *stubAPI) ConversationMessages(context.Context, string, api.Page) (*api.PaginatedResponse[api.Message], error) {
	return &api.PaginatedResponse[api.Message]{Page: 1}, nil
}

func (s *stubAPI) CreateMessage(_ context.Context, conversationID, body string) (*api.Message, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.lock.Lock()
	msg := api.Message{ID: "srv-" + body, ConversationID: conversationID, SenderID: selfID, Content: body, CreatedAt: time.Now()}
	s.created = append(s.created, msg)
	s.lock.Unlock()
	if s.onCreate != nil {
		s.onCreate(msg)
	}
	return &msg, nil
}

func (s *stubAPI) MarkMessageRead(context.Context, string) error {
	return nil
}

func TestThread_Load(t *testing.T) {
	f := setupTestFixture(t)
	first := f.fake.AddMessage(convID, otherID, "Bonjour")
	second := f.fake.AddMessage(convID, selfID, "Salut")

	th := messaging.NewThread(convID, selfID, f.client)
	require.NoError(t, th.Load(context.Background()))

	msgs := th.Messages()
	require.Len(t, msgs, 2)
	require.Equal(t, first.ID, msgs[0].ID)
	require.Equal(t, second.ID, msgs[1].ID)
	require.Equal(t, convID, th.ConversationID())
}

func TestThread_Send(t *testing.T) {
	t.Run("empty body", func(t *testing.T) {
		th := messaging.NewThread(convID, selfID, &stubAPI{})
		_, err := th.Send(context.Background(), "   ")
		require.ErrorIs(t, err, messaging.ErrEmptyMessage)
		require.Empty(t, th.Messages())
	})

	t.Run("over the gateway", func(t *testing.T) {
		f := setupTestFixture(t)
		g := f.connect(t)
		th := messaging.NewThread(convID, selfID, f.client)
		defer th.Attach(g)()

		pending, err := th.Send(context.Background(), "En route")
		require.NoError(t, err)
		require.True(t, messaging.IsOptimistic(pending.ID))

		require.Eventually(t, func() bool {
			msgs := th.Messages()
			return len(msgs) == 1 && !messaging.IsOptimistic(msgs[0].ID)
		}, waitFor, tick)
		require.Equal(t, f.fake.Messages(convID)[0].ID, th.Messages()[0].ID)
		require.Zero(t, f.fake.CallCount("POST", "/messages"))
	})

	t.Run("falls back to REST without a gateway", func(t *testing.T) {
		f := setupTestFixture(t)
		th := messaging.NewThread(convID, selfID, f.client)

		sent, err := th.Send(context.Background(), "Par REST")
		require.NoError(t, err)
		require.False(t, messaging.IsOptimistic(sent.ID))
		require.Equal(t, []api.Message{sent}, th.Messages())
		require.Equal(t, 1, f.fake.CallCount("POST", "/messages"))
	})

	t.Run("falls back to REST when the gateway dropped", func(t *testing.T) {
		f := setupTestFixture(t)
		g := f.connect(t)
		th := messaging.NewThread(convID, selfID, f.client)
		defer th.Attach(g)()

		f.fake.DropSockets()
		require.Eventually(t, func() bool { return !g.Connected() }, waitFor, tick)

		sent, err := th.Send(context.Background(), "Toujours là")
		require.NoError(t, err)
		require.Len(t, th.Messages(), 1)
		require.Equal(t, sent.ID, th.Messages()[0].ID)
		require.Equal(t, 1, f.fake.CallCount("POST", "/messages"))
	})

	t.Run("REST failure rolls back", func(t *testing.T) {
		var seen [][]api.Message
		rest := &stubAPI{createErr: errors.ErrServer}
		th := messaging.NewThread(convID, selfID, rest, messaging.WithOnChange(func(msgs []api.Message) {
			seen = append(seen, msgs)
		}))

		_, err := th.Send(context.Background(), "Perdu")
		require.ErrorIs(t, err, errors.ErrServer)
		require.Empty(t, th.Messages())
		require.Len(t, seen, 2)
		require.Len(t, seen[0], 1)
		require.True(t, messaging.IsOptimistic(seen[0][0].ID))
		require.Empty(t, seen[1])
	})

	t.Run("echo arriving before the REST response", func(t *testing.T) {
		rest := &stubAPI{}
		th := messaging.NewThread(convID, selfID, rest)
		rest.onCreate = th.Receive

		sent, err := th.Send(context.Background(), "Vite")
		require.NoError(t, err)
		require.Equal(t, []api.Message{sent}, th.Messages())
	})
}

func TestThread_Receive(t *testing.T) {
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	th := messaging.NewThread(convID, selfID, &stubAPI{createErr: errors.ErrNetwork}, messaging.WithThreadNowFunc(func() time.Time { return now }))

	t.Run("other conversations are ignored", func(t *testing.T) {
		th.Receive(api.Message{ID: "x", ConversationID: "elsewhere", SenderID: otherID, Content: "?"})
		require.Empty(t, th.Messages())
	})

	t.Run("messages from others are appended", func(t *testing.T) {
		th.Receive(api.Message{ID: "m1", ConversationID: convID, SenderID: otherID, Content: "Allo"})
		th.Receive(api.Message{ID: "m2", ConversationID: convID, SenderID: otherID, Content: "Allo"})
		require.Len(t, th.Messages(), 2)
	})

	t.Run("known ids are updated in place", func(t *testing.T) {
		readAt := now
		th.Receive(api.Message{ID: "m1", ConversationID: convID, SenderID: otherID, Content: "Allo", ReadAt: &readAt})
		msgs := th.Messages()
		require.Len(t, msgs, 2)
		require.True(t, msgs[0].IsRead())
	})
}

func TestThread_ReceiveReplacesOldestPending(t *testing.T) {
	release := make(chan struct{})
	rest := &blockingAPI{stubAPI: &stubAPI{createErr: errors.ErrNetwork}, release: release}
	th := messaging.NewThread(convID, selfID, rest)

	var wg sync.WaitGroup
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = th.Send(context.Background(), "Merci")
		}()
	}
	require.Eventually(t, func() bool { return len(th.Messages()) == 2 }, waitFor, tick)
	pending := th.Messages()

	th.Receive(api.Message{ID: "real-1", ConversationID: convID, SenderID: selfID, Content: "Merci"})
	msgs := th.Messages()
	require.Equal(t, "real-1", msgs[0].ID)
	require.Equal(t, pending[1].ID, msgs[1].ID)

	close(release)
	wg.Wait()
	// the unconfirmed send failed and was rolled back
	require.Equal(t, []string{"real-1"}, ids(th.Messages()))
}

type blockingAPI struct {
	*stubAPI
	release chan struct{}
}

func (b *blockingAPI) CreateMessage(ctx context.Context, conversationID, body string) (*api.Message, error) {
	<-b.release
	return b.stubAPI.CreateMessage(ctx, conversationID, body)
}

func ids(msgs []api.Message) []string {
	out := make([]string, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, m.ID)
	}
	return out
}

func TestThread_ReadReceipts(t *testing.T) {
	t.Run("over REST", func(t *testing.T) {
		f := setupTestFixture(t)
		f.fake.AddMessage(convID, otherID, "Un")
		f.fake.AddMessage(convID, otherID, "Deux")
		f.fake.AddMessage(convID, selfID, "Trois")

		th := messaging.NewThread(convID, selfID, f.client)
		require.NoError(t, th.Load(context.Background()))
		require.Len(t, th.Unread(selfID), 2)
		require.Len(t, th.Unread(otherID), 1)

		require.NoError(t, th.MarkAllRead(context.Background()))
		require.Empty(t, th.Unread(selfID))
		for _, m := range f.fake.Messages(convID)[:2] {
			require.True(t, m.IsRead())
			require.Equal(t, 1, f.fake.CallCount("PATCH", "/messages/"+m.ID+"/read"))
		}
	})

	t.Run("over the gateway", func(t *testing.T) {
		f := setupTestFixture(t)
		f.fake.AddMessage(convID, otherID, "Un")
		g := f.connect(t)

		th := messaging.NewThread(convID, selfID, f.client)
		defer th.Attach(g)()
		require.NoError(t, th.Load(context.Background()))

		require.NoError(t, th.MarkAllRead(context.Background()))
		require.Eventually(t, func() bool { return len(th.Unread(selfID)) == 0 }, waitFor, tick)
		require.Zero(t, f.fake.CallCount("PATCH", "/messages/"+th.Messages()[0].ID+"/read"))
	})

	t.Run("unknown receipt is ignored", func(t *testing.T) {
		th := messaging.NewThread(convID, selfID, &stubAPI{})
		th.ApplyReadReceipt(messaging.ReadReceipt{ID: "missing", ReadAt: time.Now()})
		require.Empty(t, th.Messages())
	})

	t.Run("optimistic messages are never unread", func(t *testing.T) {
		th := messaging.NewThread(otherID, selfID, &stubAPI{})
		th.Receive(api.Message{ID: "tmp_local", ConversationID: otherID, SenderID: otherID, Content: "?"})
		require.Empty(t, th.Unread(selfID))
	})
}
