// ABOUTME: Terminal output for conversations, messages, and catalogs
// ABOUTME: Assistant replies are rendered from markdown with their metadata

package main

import (
	"fmt"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"

	"github.com/2389/finbot-client/internal/api"
	"github.com/2389/finbot-client/internal/chat"
	"github.com/2389/finbot-client/internal/render"
)

var (
	cyan   = color.New(color.FgCyan)
	green  = color.New(color.FgGreen, color.Bold)
	gray   = color.New(color.FgHiBlack)
	yellow = color.New(color.FgYellow)
	red    = color.New(color.FgRed)
)

func printConversations(convs []api.Conversation, activeID *int64) {
	if len(convs) == 0 {
		fmt.Println("No conversations yet. Type a message to start one.")
		return
	}
	for _, c := range convs {
		marker := "  "
		if activeID != nil && *activeID == c.ID {
			marker = "▶ "
		}
		cyan.Printf("%s%4d ", marker, c.ID)
		fmt.Print(c.Title)
		gray.Printf("  %d msgs, %s", c.MessageCount, humanize.Time(c.Timestamp()))
		if c.Archived {
			yellow.Print(" [archived]")
		}
		fmt.Println()
	}
}

func printEntry(r *render.Renderer, e chat.Entry) {
	switch e.Role {
	case api.RoleUser:
		cyan.Print("You")
	default:
		green.Print("FinBot")
	}
	if !e.Timestamp.IsZero() {
		gray.Printf(" %s", e.Timestamp.Local().Format("15:04"))
	}
	switch e.Status {
	case chat.StatusPending:
		gray.Print(" (sending)")
	case chat.StatusFailed:
		red.Printf(" (failed: %s; /retry or /discard)", e.Error)
	}
	fmt.Println()

	if e.Role == api.RoleUser {
		fmt.Println(e.Content)
	} else {
		fmt.Println(strings.TrimRight(r.Markdown(e.Content), "\n"))
	}
	for _, line := range r.Metadata(e.Metadata) {
		gray.Println("  " + line)
	}
	fmt.Println()
}

func printMessage(r *render.Renderer, m *api.Message) {
	printEntry(r, chat.Entry{Message: *m})
}

func printWelcome() {
	green.Println("Welcome to FinBot")
	fmt.Println("Ask about stocks, earnings, or markets. Try a quick action:")
	for _, q := range chat.QuickActions[:4] {
		gray.Printf("  /quick %-18s", q.ID)
		fmt.Println(q.Label)
	}
	fmt.Println()
}

func printQuickActions() {
	for _, q := range chat.QuickActions {
		gray.Printf("  %-20s", q.ID)
		fmt.Printf("%-22s", q.Label)
		gray.Printf("[%s]\n", q.Category)
	}
}

func printKnowledgeSources() {
	for _, s := range chat.KnowledgeSources {
		gray.Printf("  %-18s", s.ID)
		fmt.Printf("%-20s", s.Label)
		gray.Println(s.Description)
	}
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  /list               Refresh and show conversations")
	fmt.Println("  /use <id>           Open a conversation")
	fmt.Println("  /new                Start a new chat")
	fmt.Println("  /show               Show the open conversation again")
	fmt.Println("  /rename <title>     Rename the open conversation")
	fmt.Println("  /archive            Archive the open conversation")
	fmt.Println("  /unarchive          Restore the open conversation")
	fmt.Println("  /delete [id]        Delete a conversation (asks first)")
	fmt.Println("  /retry              Re-send the last failed message")
	fmt.Println("  /discard            Drop the last failed message")
	fmt.Println("  /quick [id [topic]] List or run a quick action")
	fmt.Println("  /sources            List knowledge sources")
	fmt.Println("  /help               Show this help")
	fmt.Println("  /quit               Exit")
}
