package command

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"
	"time"

	"bookswap/internal/chat"
	"bookswap/pkg/models"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	mineColor   = color.New(color.FgGreen)
	theirsColor = color.New(color.FgCyan)
	noticeColor = color.New(color.FgYellow)
	dimColor    = color.New(color.FgHiBlack)
	badgeColor  = color.New(color.FgHiWhite, color.BgRed, color.Bold)
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Conversations with other readers",
	Long:  `List, open, start and delete conversations about books you want to swap.`,
}

var chatRoomsCmd = &cobra.Command{
	Use:   "rooms",
	Short: "List your conversations, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := newSession(cmd, nil)
		if err != nil {
			return err
		}
		defer session.Close()

		if err := session.Store().Refresh(cmd.Context()); err != nil {
			return describeError(err)
		}
		out := cmd.OutOrStdout()
		printBadge(out, session.Unread().Total())
		printRooms(out, session.Store().Rooms(), session.Identity().UserID)
		return nil
	},
}

var chatWatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Keep the conversation list and unread badge up to date",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		session, err := newSession(cmd, stop)
		if err != nil {
			return err
		}
		defer session.Close()

		out := &lockedWriter{w: cmd.OutOrStdout()}
		me := session.Identity().UserID

		var last string
		cancelRooms := session.Store().OnChange(func(snap chat.Snapshot) {
			var b strings.Builder
			printRooms(&b, snap.Rooms, me)
			if rendered := b.String(); rendered != last {
				last = rendered
				dimColor.Fprintf(out, "-- %s --\n", time.Now().Format("15:04:05"))
				io.WriteString(out, rendered)
			}
		})
		defer cancelRooms()
		unsubscribe := session.Unread().Subscribe(func(total int) {
			printBadge(out, total)
		})
		defer unsubscribe()

		poller, err := session.NewRoomListPoller()
		if err != nil {
			return err
		}
		if err := poller.Focus(ctx); err != nil {
			if errors.Is(err, chat.ErrAuth) {
				return describeError(err)
			}
			noticeColor.Fprintf(out, "! %v (retrying every %s)\n", describeError(err), clientCfg.RoomListPollInterval)
		}
		printBadge(out, session.Unread().Total())
		dimColor.Fprintln(out, "Watching conversations, press Ctrl+C to stop.")

		<-ctx.Done()
		poller.Blur()
		if closed, reason := session.Closed(); closed {
			return describeError(reason)
		}
		return nil
	},
}

var chatOpenCmd = &cobra.Command{
	Use:   "open <room-id>",
	Short: "Open a conversation; type to send, /quit to leave",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		session, err := newSession(cmd, stop)
		if err != nil {
			return err
		}
		defer session.Close()

		out := &lockedWriter{w: cmd.OutOrStdout()}
		gone := make(chan struct{})
		var goneOnce sync.Once

		poller, err := session.NewMessagePoller(chat.MessagePollerConfig{
			OnNewMessages: func(_ models.ChatRoom, fresh []models.ChatMessage) {
				for _, m := range fresh {
					printMessage(out, m, session.IsMine(m))
				}
			},
			OnRoomGone: func(string) {
				goneOnce.Do(func() { close(gone) })
			},
		})
		if err != nil {
			return err
		}
		defer poller.Stop()

		room, err := poller.Open(ctx, args[0])
		if err != nil {
			return describeError(err)
		}

		other := chat.OtherUsername(room.ChatRoom, session.Identity().UserID)
		noticeColor.Fprintf(out, "📚 %s with %s\n", room.BookTitle, other)
		for _, m := range room.Messages {
			printMessage(out, m, session.IsMine(m))
		}
		dimColor.Fprintln(out, "Type your messages (or /quit to exit)")

		lines := readLines(cmd.InOrStdin())
		for {
			select {
			case <-ctx.Done():
				if closed, reason := session.Closed(); closed {
					return describeError(reason)
				}
				return nil
			case <-gone:
				noticeColor.Fprintln(out, "This conversation was deleted.")
				return nil
			case line, ok := <-lines:
				if !ok || strings.TrimSpace(line) == "/quit" {
					return nil
				}
				if strings.TrimSpace(line) == "" {
					continue
				}
				msg, err := poller.Send(ctx, line)
				if err != nil {
					noticeColor.Fprintf(out, "! not sent: %v\n", describeError(err))
					continue
				}
				printMessage(out, *msg, true)
			}
		}
	},
}

var chatSendCmd = &cobra.Command{
	Use:   "send <room-id> <message...>",
	Short: "Send one message to a conversation",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		body := strings.Join(args[1:], " ")
		if err := chat.ValidateMessageBody(body); err != nil {
			return err
		}
		session, err := newSession(cmd, nil)
		if err != nil {
			return err
		}
		defer session.Close()

		msg, err := session.Transport().SendMessage(cmd.Context(), args[0], body)
		if err != nil {
			return describeError(err)
		}
		printMessage(cmd.OutOrStdout(), *msg, true)
		return nil
	},
}

var chatStartCmd = &cobra.Command{
	Use:   "start <user-id> <book title...>",
	Short: "Start (or reopen) a conversation with a user about a book",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := newSession(cmd, nil)
		if err != nil {
			return err
		}
		defer session.Close()

		room, err := session.Store().CreateOrGet(cmd.Context(), args[0], strings.Join(args[1:], " "))
		if err != nil {
			return describeError(err)
		}
		out := cmd.OutOrStdout()
		color.New(color.FgGreen).Fprintf(out, "✓ Conversation about %q with %s\n",
			room.BookTitle, chat.OtherUsername(*room, session.Identity().UserID))
		fmt.Fprintf(out, "Room: %s\n", room.ID)
		dimColor.Fprintf(out, "Open it with: bookswap chat open %s\n", room.ID)
		return nil
	},
}

var chatDeleteCmd = &cobra.Command{
	Use:   "delete <room-id>",
	Short: "Delete a conversation for both participants",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		session, err := newSession(cmd, nil)
		if err != nil {
			return err
		}
		defer session.Close()

		if err := session.Store().Delete(cmd.Context(), args[0]); err != nil {
			if errors.Is(err, chat.ErrNotFound) {
				noticeColor.Fprintln(cmd.OutOrStdout(), "Conversation was already gone.")
				return nil
			}
			return describeError(err)
		}
		color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "✓ Conversation deleted.")
		return nil
	},
}

func init() {
	chatCmd.AddCommand(chatRoomsCmd)
	chatCmd.AddCommand(chatWatchCmd)
	chatCmd.AddCommand(chatOpenCmd)
	chatCmd.AddCommand(chatSendCmd)
	chatCmd.AddCommand(chatStartCmd)
	chatCmd.AddCommand(chatDeleteCmd)
	rootCmd.AddCommand(chatCmd)
}

func printBadge(w io.Writer, total int) {
	if total == 0 {
		dimColor.Fprintln(w, "No unread messages")
		return
	}
	badgeColor.Fprintf(w, " %d unread ", total)
	fmt.Fprintln(w)
}

func printRooms(w io.Writer, rooms []models.ChatRoom, me string) {
	if len(rooms) == 0 {
		dimColor.Fprintln(w, "No conversations yet. Start one with: bookswap chat start <user-id> <book title>")
		return
	}
	for _, r := range rooms {
		fmt.Fprintln(w, formatRoom(r, me))
	}
}

func formatRoom(r models.ChatRoom, me string) string {
	var b strings.Builder
	if r.UnreadCount > 0 {
		b.WriteString(badgeColor.Sprintf(" %d ", r.UnreadCount))
		b.WriteByte(' ')
	}
	fmt.Fprintf(&b, "%s with %s", color.New(color.Bold).Sprint(r.BookTitle), chat.OtherUsername(r, me))
	if preview := r.Preview(); preview != "" {
		fmt.Fprintf(&b, ": %s", truncate(preview, 40))
	}
	b.WriteString(dimColor.Sprintf("  %s  %s", r.LastMessageAt.Local().Format("Jan 2 15:04"), r.ID))
	return b.String()
}

func printMessage(w io.Writer, m models.ChatMessage, mine bool) {
	stamp := dimColor.Sprint(m.CreatedAt.Local().Format("15:04"))
	if mine {
		fmt.Fprintf(w, "%s %s %s\n", stamp, mineColor.Sprint("[you]"), m.Body)
		return
	}
	fmt.Fprintf(w, "%s %s %s\n", stamp, theirsColor.Sprintf("[%s]", m.SenderUsername), m.Body)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// readLines feeds stdin lines into a channel until EOF.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// lockedWriter serializes output from the poll goroutine and the input loop.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}
