// ABOUTME: Entry point for the finbot terminal client
// ABOUTME: Dispatches account, listing, and interactive chat subcommands

package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// errSilent fails the command without printing; the user has already seen
// a toast explaining why.
var errSilent = errors.New("command failed")

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func printUsage() {
	fmt.Println("Usage: finbot <command> [flags]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  login          Log in with email and password")
	fmt.Println("  register       Create an account")
	fmt.Println("  logout         End the saved session")
	fmt.Println("  status         Show who is logged in")
	fmt.Println("  conversations  List conversations")
	fmt.Println("  chat           Start an interactive chat")
	fmt.Println("  version        Print the version")
	fmt.Println()
	fmt.Println("Configuration is read from $FINBOT_CONFIG or ~/.config/finbot/config.yaml.")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	args := os.Args[2:]
	var err error
	switch os.Args[1] {
	case "login":
		err = runLogin(ctx, args)
	case "register":
		err = runRegister(ctx, args)
	case "logout":
		err = runLogout(ctx)
	case "status":
		err = runStatus(ctx)
	case "conversations", "ls":
		err = runConversations(ctx, args)
	case "chat":
		err = runChat(ctx, args)
	case "version":
		fmt.Println("finbot", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
