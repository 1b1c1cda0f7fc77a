package commands

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jrsteele09/solugarde-client/api"
	"github.com/jrsteele09/solugarde-client/messaging"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newChatCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat <conversationId>",
		Args:  cobra.ExactArgs(1),
		Short: "Read and send messages in a conversation",
		Long: `Prints the conversation, marks incoming messages as read and sends every line typed on
stdin. Messages go over the messaging gateway and fall back to REST when it is unavailable.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			snap, err := a.restore(ctx)
			if err != nil {
				return err
			}
			self := snap.User

			var lock sync.Mutex
			seen := make(map[string]bool)
			show := func(msgs []api.Message) {
				lock.Lock()
				defer lock.Unlock()
				for _, m := range msgs {
					if seen[m.ID] || messaging.IsOptimistic(m.ID) {
						continue
					}
					seen[m.ID] = true
					who := "them"
					if m.SenderID == self.ID {
						who = "me"
					}
					fmt.Printf("[%s] %-4s %s\n", m.CreatedAt.Local().Format(time.Kitchen), who, m.Content)
				}
			}

			thread := messaging.NewThread(args[0], self.ID, a.client(), messaging.WithOnChange(show))
			if err := thread.Load(ctx); err != nil {
				return err
			}

			gateway := messaging.NewGateway(messaging.GatewayURL(a.cfg.GetMessagesURL(), a.cfg.GetAPIBaseURL()), a.session)
			if err := gateway.Connect(ctx); err != nil {
				log.Warn().Err(err).Str("url", gateway.URL()).Msg("messaging gateway unavailable, using REST")
			} else {
				defer func() { _ = gateway.Close() }()
				defer thread.Attach(gateway)()
			}
			if err := thread.MarkAllRead(ctx); err != nil {
				log.Warn().Err(err).Msg("some messages could not be marked read")
			}

			lines := make(chan string)
			go func() {
				defer close(lines)
				scanner := bufio.NewScanner(os.Stdin)
				for scanner.Scan() {
					lines <- scanner.Text()
				}
			}()

			for {
				select {
				case <-ctx.Done():
					return nil
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					if strings.TrimSpace(line) == "" {
						continue
					}
					if _, err := thread.Send(ctx, line); err != nil {
						log.Error().Err(err).Msg("message not sent")
					}
				}
			}
		},
	}
}
