////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file.                                                              //
////////////////////////////////////////////////////////////////////////////////

package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	jww "github.com/spf13/jwalterweatherman"

	"gitlab.com/ourlog/client/channels"
	"gitlab.com/ourlog/client/conversation"
	"gitlab.com/ourlog/client/messenger"
)

var errUsage = errors.New("wrong arguments, see /help")

// command is one line of chat input. Lines not starting with a slash are
// sent as messages.
type command struct {
	name string
	args []string
	// text is everything after the command name.
	text string
}

func parseCommand(line string) (command, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return command{}, false
	}
	if !strings.HasPrefix(line, "/") {
		return command{name: "send", text: line}, true
	}
	fields := strings.Fields(line[1:])
	if len(fields) == 0 {
		return command{}, false
	}
	name := strings.ToLower(fields[0])
	text := strings.TrimSpace(strings.TrimPrefix(line[1:], fields[0]))
	return command{name: name, args: fields[1:], text: text}, true
}

type chatHandler struct {
	usage string
	run   func(ctx context.Context, m *messenger.Messenger, c command,
		out io.Writer) error
}

var chatHandlers map[string]chatHandler

func init() {
	chatHandlers = map[string]chatHandler{
		"send":     {"<text>", sendText},
		"list":     {"", listConversations},
		"joinable": {"", listJoinable},
		"open":     {"<url>", openConversation},
		"more":     {"", loadPrevious},
		"dm":       {"<userId>", directConversation},
		"create":   {"<name>", createConversation},
		"join":     {"<url>", joinConversation},
		"leave":    {"<url>", stageAction(channels.ActionLeave)},
		"delete":   {"<url>", stageAction(channels.ActionDelete)},
		"rename":   {"<url> <name>", stageAction(channels.ActionRename)},
		"confirm":  {"", confirmAction},
		"cancel":   {"", cancelAction},
		"mute":     {"<url>", setMuted(true)},
		"unmute":   {"<url>", setMuted(false)},
		"click":    {"", clickToast},
		"dismiss":  {"", dismissToast},
		"pay":      {"<price> <item>", requestPayment},
		"decline":  {"", declinePayment},
		"payform":  {"<messageId>", togglePaymentForm},
		"paid":     {"<messageId> <cardNumber>", completePayment},
	}
}

// runChat reads commands from in until it is exhausted, /quit is entered or
// ctx is done.
func runChat(ctx context.Context, m *messenger.Messenger, in io.Reader,
	out io.Writer) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	fmt.Fprintf(out, "Signed in as %s. Type /help for commands.\n",
		m.UserID())
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.Done():
			fmt.Fprintln(out, "Session closed.")
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			c, ok := parseCommand(line)
			if !ok {
				continue
			}
			switch c.name {
			case "quit", "exit":
				return
			case "help":
				printHelp(out)
				continue
			}
			h, exists := chatHandlers[c.name]
			if !exists {
				fmt.Fprintf(out, "Unknown command /%s\n", c.name)
				continue
			}
			if err := h.run(ctx, m, c, out); err != nil {
				jww.DEBUG.Printf("[CHAT] /%s failed: %+v", c.name, err)
				fmt.Fprintf(out, "Error: %v\n", err)
			}
		}
	}
}

func printHelp(out io.Writer) {
	names := make([]string, 0, len(chatHandlers))
	for name := range chatHandlers {
		if name != "send" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	fmt.Fprintln(out, "Text without a leading slash is sent to the open "+
		"conversation.")
	for _, name := range names {
		fmt.Fprintf(out, "  /%s %s\n", name, chatHandlers[name].usage)
	}
	fmt.Fprintln(out, "  /quit")
}

func sendText(ctx context.Context, m *messenger.Messenger, c command,
	_ io.Writer) error {
	_, err := m.Send(ctx, c.text)
	return err
}

func listConversations(_ context.Context, m *messenger.Messenger, _ command,
	out io.Writer) error {
	convs := m.Directory().ListMyConversations()
	if len(convs) == 0 {
		fmt.Fprintln(out, "No conversations.")
	}
	for _, conv := range convs {
		fmt.Fprintln(out, formatConversation(conv, m.Gate().RowMode(conv.URL())))
	}
	return nil
}

func listJoinable(ctx context.Context, m *messenger.Messenger, _ command,
	out io.Writer) error {
	if err := m.Directory().RefreshJoinable(ctx); err != nil {
		return err
	}
	for _, conv := range m.Directory().ListJoinableConversations() {
		fmt.Fprintln(out, formatConversation(conv, channels.RowOpenable))
	}
	return nil
}

func formatConversation(conv channels.Conversation, mode channels.RowMode) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s", conv.URL(), conv.DisplayName())
	if conv.Muted() {
		b.WriteString(" (muted)")
	}
	if last := conv.LastMessage(); last != nil {
		fmt.Fprintf(&b, "  | %s: %s", last.SenderID, last.Body)
	}
	if mode == channels.RowConfirming {
		b.WriteString("  [awaiting /confirm or /cancel]")
	}
	return b.String()
}

func openConversation(ctx context.Context, m *messenger.Messenger, c command,
	out io.Writer) error {
	if len(c.args) != 1 {
		return errUsage
	}
	s, err := m.ClickRow(ctx, c.args[0])
	if err != nil {
		return err
	}
	if s == nil {
		fmt.Fprintln(out, "An action is awaiting confirmation on this "+
			"conversation.")
	}
	return nil
}

func loadPrevious(ctx context.Context, m *messenger.Messenger, _ command,
	out io.Writer) error {
	s := m.Viewer().Current()
	if s == nil {
		return messenger.ErrNoOpenConversation
	}
	n, err := s.LoadPrevious(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Loaded %d earlier messages.\n", n)
	return nil
}

func directConversation(ctx context.Context, m *messenger.Messenger,
	c command, _ io.Writer) error {
	if len(c.args) != 1 {
		return errUsage
	}
	conv, err := m.Directory().CreateOrGetDirectConversation(ctx, c.args[0])
	if err != nil {
		return err
	}
	_, err = m.Open(ctx, conv.URL())
	return err
}

func createConversation(ctx context.Context, m *messenger.Messenger,
	c command, out io.Writer) error {
	conv, err := m.Directory().CreatePublicConversation(ctx, c.text)
	var partial *channels.PartialSuccessError
	if errors.As(err, &partial) {
		fmt.Fprintf(out, "Created %s but the public list is stale: %v\n",
			partial.Created.URL(), partial.Err)
		conv, err = partial.Created, nil
	}
	if err != nil {
		return err
	}
	_, err = m.Open(ctx, conv.URL())
	return err
}

func joinConversation(ctx context.Context, m *messenger.Messenger, c command,
	_ io.Writer) error {
	if len(c.args) != 1 {
		return errUsage
	}
	conv, err := m.Directory().JoinPublicConversation(ctx, c.args[0])
	if err != nil {
		return err
	}
	_, err = m.Open(ctx, conv.URL())
	return err
}

func stageAction(kind channels.ActionKind) func(context.Context,
	*messenger.Messenger, command, io.Writer) error {
	return func(_ context.Context, m *messenger.Messenger, c command,
		out io.Writer) error {
		if len(c.args) < 1 {
			return errUsage
		}
		name := strings.TrimSpace(strings.TrimPrefix(c.text, c.args[0]))
		if err := m.Gate().RequestAction(c.args[0], kind, name); err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s? /confirm or /cancel\n", kind, c.args[0])
		return nil
	}
}

func confirmAction(ctx context.Context, m *messenger.Messenger, _ command,
	out io.Writer) error {
	if err := m.Confirm(ctx); err != nil {
		return err
	}
	fmt.Fprintln(out, "Done.")
	return nil
}

func cancelAction(_ context.Context, m *messenger.Messenger, _ command,
	_ io.Writer) error {
	m.Gate().Cancel()
	return nil
}

func setMuted(muted bool) func(context.Context, *messenger.Messenger,
	command, io.Writer) error {
	return func(_ context.Context, m *messenger.Messenger, c command,
		_ io.Writer) error {
		if len(c.args) != 1 {
			return errUsage
		}
		return m.Directory().SetMuted(c.args[0], muted)
	}
}

func clickToast(ctx context.Context, m *messenger.Messenger, _ command,
	_ io.Writer) error {
	return m.Relay().Click(ctx)
}

func dismissToast(_ context.Context, m *messenger.Messenger, _ command,
	_ io.Writer) error {
	m.Relay().Dismiss()
	return nil
}

func requestPayment(ctx context.Context, m *messenger.Messenger, c command,
	_ io.Writer) error {
	if len(c.args) < 2 {
		return errUsage
	}
	price, err := strconv.ParseInt(c.args[0], 10, 64)
	if err != nil || price <= 0 {
		return errUsage
	}
	item := strings.TrimSpace(strings.TrimPrefix(c.text, c.args[0]))
	s, err := openSynchronizer(m)
	if err != nil {
		return err
	}
	_, err = s.RequestPayment(ctx, item, "", price)
	return err
}

func declinePayment(ctx context.Context, m *messenger.Messenger, _ command,
	_ io.Writer) error {
	s, err := openSynchronizer(m)
	if err != nil {
		return err
	}
	_, err = s.DeclinePayment(ctx)
	return err
}

func togglePaymentForm(ctx context.Context, m *messenger.Messenger,
	c command, _ io.Writer) error {
	if len(c.args) != 1 {
		return errUsage
	}
	id, err := strconv.ParseInt(c.args[0], 10, 64)
	if err != nil {
		return errUsage
	}
	s, err := openSynchronizer(m)
	if err != nil {
		return err
	}
	_, err = s.TogglePaymentForm(ctx, id)
	return err
}

func completePayment(ctx context.Context, m *messenger.Messenger,
	c command, out io.Writer) error {
	if len(c.args) != 2 {
		return errUsage
	}
	id, err := strconv.ParseInt(c.args[0], 10, 64)
	if err != nil {
		return errUsage
	}
	s, err := openSynchronizer(m)
	if err != nil {
		return err
	}
	_, err = s.CompletePayment(ctx, id, c.args[1])
	var partial *conversation.PartialSuccessError
	if errors.As(err, &partial) {
		fmt.Fprintf(out, "Payment recorded but the confirmation message "+
			"was not sent: %v\n", partial.Err)
		return nil
	}
	return err
}

func openSynchronizer(m *messenger.Messenger) (*conversation.Synchronizer, error) {
	s := m.Viewer().Current()
	if s == nil {
		return nil, messenger.ErrNoOpenConversation
	}
	return s, nil
}
