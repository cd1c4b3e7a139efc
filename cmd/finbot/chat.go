// ABOUTME: Conversation listing and the interactive chat loop
// ABOUTME: Slash commands drive the orchestrator; other input is sent as a message

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/2389/finbot-client/internal/api"
	"github.com/2389/finbot-client/internal/chat"
)

func runConversations(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("conversations", flag.ContinueOnError)
	all := fs.Bool("all", false, "Include archived conversations")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if _, err := a.restore(ctx); err != nil {
		return err
	}
	if err := a.chat.ListConversations(ctx); err != nil {
		return errSilent
	}
	printConversations(visible(a.chat.Snapshot().Conversations, *all), nil)
	return nil
}

func visible(convs []api.Conversation, includeArchived bool) []api.Conversation {
	if includeArchived {
		return convs
	}
	out := make([]api.Conversation, 0, len(convs))
	for _, c := range convs {
		if !c.Archived {
			out = append(out, c)
		}
	}
	return out
}

func runChat(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("chat", flag.ContinueOnError)
	open := fs.Int64("c", 0, "Open conversation `id` on start")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	state, err := a.restore(ctx)
	if err != nil {
		return err
	}
	who := state.User.DisplayName()
	if who == "" {
		who = "current user"
	}
	fmt.Printf("finbot connected to %s as %s\n", a.gw.BaseURL(), who)
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	_ = a.chat.ListConversations(ctx)
	r := &repl{app: a, input: newLineReader(os.Stdin)}
	if *open != 0 {
		r.use(ctx, strconv.FormatInt(*open, 10))
	} else {
		printWelcome()
	}

	if err := r.loop(ctx); err != nil {
		return err
	}
	fmt.Println("\nGoodbye!")
	return nil
}

type repl struct {
	*app
	input *lineReader
}

func (r *repl) prompt() {
	snap := r.chat.Snapshot()
	if conv, ok := snap.Active(); ok {
		cyan.Printf("[%s]", chat.Title(conv.Title))
		fmt.Print("> ")
		return
	}
	fmt.Print("> ")
}

func (r *repl) loop(ctx context.Context) error {
	for {
		r.prompt()
		line, err := r.input.Next(ctx)
		if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			r.send(ctx, line)
			continue
		}

		cmd, arg, _ := strings.Cut(line, " ")
		arg = strings.TrimSpace(arg)
		switch cmd {
		case "/quit", "/exit", "/q":
			return nil
		case "/help":
			printHelp()
		case "/list":
			if r.chat.ListConversations(ctx) == nil {
				snap := r.chat.Snapshot()
				printConversations(snap.Conversations, snap.ActiveID)
			}
		case "/use":
			r.use(ctx, arg)
		case "/new":
			r.chat.NewChat()
			printWelcome()
		case "/show":
			r.show()
		case "/rename":
			r.rename(ctx, arg)
		case "/archive", "/unarchive":
			r.archive(ctx, cmd == "/archive")
		case "/delete":
			r.delete(ctx, arg)
		case "/retry":
			r.retry(ctx)
		case "/discard":
			r.discard()
		case "/quick":
			r.quick(ctx, arg)
		case "/sources":
			printKnowledgeSources()
		default:
			fmt.Printf("Unknown command %s. /help lists commands.\n", cmd)
		}
		fmt.Println()
	}
}

// report prints errors that produced no toast.
func (r *repl) report(err error) {
	switch {
	case err == nil:
	case errors.Is(err, chat.ErrNotAuthenticated):
		red.Println(errNotLoggedIn)
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrSendInProgress),
		errors.Is(err, chat.ErrUnknownConversation),
		errors.Is(err, chat.ErrUnknownEntry),
		errors.Is(err, chat.ErrNoPendingDelete),
		errors.Is(err, chat.ErrDeleteInProgress):
		red.Println(err)
	default:
		r.logger.Debug("command failed", "error", err)
	}
}

func (r *repl) send(ctx context.Context, content string) {
	reply, err := r.chat.SendMessage(ctx, content)
	r.report(err)
	if reply != nil {
		fmt.Println()
		printMessage(r.render, reply)
	}
}

func (r *repl) activeID() (int64, bool) {
	snap := r.chat.Snapshot()
	if snap.ActiveID == nil {
		fmt.Println("No conversation is open. /use <id> first.")
		return 0, false
	}
	return *snap.ActiveID, true
}

func parseID(arg string) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id <= 0 {
		fmt.Printf("%q is not a conversation id.\n", arg)
		return 0, false
	}
	return id, true
}

func (r *repl) use(ctx context.Context, arg string) {
	id, ok := parseID(arg)
	if !ok {
		return
	}
	if err := r.chat.SelectConversation(ctx, id); err != nil {
		r.report(err)
		return
	}
	r.show()
}

func (r *repl) show() {
	snap := r.chat.Snapshot()
	conv, ok := snap.Active()
	if !ok {
		printWelcome()
		return
	}
	gray.Printf("── %s ──\n\n", conv.Title)
	if snap.MessagesErr != "" {
		red.Println(snap.MessagesErr)
		return
	}
	if len(snap.Messages) == 0 {
		fmt.Println("No messages yet.")
		return
	}
	for _, e := range snap.Messages {
		printEntry(r.render, e)
	}
}

func (r *repl) rename(ctx context.Context, title string) {
	id, ok := r.activeID()
	if !ok {
		return
	}
	if title == "" {
		fmt.Println("Usage: /rename <title>")
		return
	}
	if conv, err := r.chat.UpdateConversation(ctx, id, api.ConversationUpdate{Title: &title}); err == nil {
		fmt.Printf("Renamed to %q.\n", conv.Title)
	}
}

func (r *repl) archive(ctx context.Context, archived bool) {
	id, ok := r.activeID()
	if !ok {
		return
	}
	if _, err := r.chat.UpdateConversation(ctx, id, api.ConversationUpdate{Archived: &archived}); err == nil {
		if archived {
			fmt.Println("Archived.")
		} else {
			fmt.Println("Restored from archive.")
		}
	}
}

func (r *repl) delete(ctx context.Context, arg string) {
	var id int64
	if arg == "" {
		var ok bool
		if id, ok = r.activeID(); !ok {
			return
		}
	} else {
		var ok bool
		if id, ok = parseID(arg); !ok {
			return
		}
	}
	if err := r.chat.RequestDelete(id); err != nil {
		r.report(err)
		return
	}

	intent := r.chat.Snapshot().PendingDelete
	yellow.Printf("Delete %q? This cannot be undone. [y/N] ", intent.Title)
	answer, err := r.input.Next(ctx)
	if err != nil || !strings.EqualFold(strings.TrimSpace(answer), "y") {
		r.chat.CancelDelete()
		fmt.Println("Cancelled.")
		return
	}
	if err := r.chat.ConfirmDelete(ctx); err != nil {
		r.report(err)
		// The request stays pending after a failure; drop it so the next
		// /delete starts fresh.
		r.chat.CancelDelete()
	}
}

// lastFailed returns the newest failed provisional entry.
func (r *repl) lastFailed() (chat.Entry, bool) {
	msgs := r.chat.Snapshot().Messages
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Status == chat.StatusFailed {
			return msgs[i], true
		}
	}
	fmt.Println("No failed message to act on.")
	return chat.Entry{}, false
}

func (r *repl) retry(ctx context.Context) {
	e, ok := r.lastFailed()
	if !ok {
		return
	}
	reply, err := r.chat.RetryFailed(ctx, e.LocalID)
	r.report(err)
	if reply != nil {
		fmt.Println()
		printMessage(r.render, reply)
	}
}

func (r *repl) discard() {
	e, ok := r.lastFailed()
	if !ok {
		return
	}
	r.report(r.chat.DiscardFailed(e.LocalID))
}

func (r *repl) quick(ctx context.Context, arg string) {
	if arg == "" {
		printQuickActions()
		return
	}
	id, subject, _ := strings.Cut(arg, " ")
	q, ok := chat.FindQuickAction(id)
	if !ok {
		fmt.Printf("Unknown quick action %q. /quick lists them.\n", id)
		return
	}
	if strings.TrimSpace(subject) == "" {
		fmt.Printf("Usage: /quick %s <topic>, e.g. /quick %s AAPL\n", q.ID, q.ID)
		return
	}
	content := q.Expand(subject)
	gray.Println(content)
	r.send(ctx, content)
}
