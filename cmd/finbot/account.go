// ABOUTME: Account subcommands: login, register, logout, status
// ABOUTME: Missing flags are prompted for interactively

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/2389/finbot-client/internal/api"
	"github.com/2389/finbot-client/internal/session"
)

func runLogin(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", "", "Account email")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	p := newPrompter()
	if *email == "" {
		if *email, err = p.Line("Email: "); err != nil {
			return err
		}
	}
	password, err := p.Secret("Password: ")
	if err != nil {
		return err
	}

	a.session.Restore(ctx)
	state, err := a.session.Login(ctx, api.LoginCredentials{Email: *email, Password: password})
	if err != nil {
		// The failure toast already told the user.
		a.logger.Debug("login failed", "error", err)
		return errSilent
	}
	fmt.Printf("Welcome, %s.\n", state.User.DisplayName())
	return nil
}

func runRegister(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	username := fs.String("username", "", "Username")
	email := fs.String("email", "", "Email")
	first := fs.String("first-name", "", "First name")
	last := fs.String("last-name", "", "Last name")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	p := newPrompter()
	fields := []struct {
		value *string
		label string
	}{
		{username, "Username: "},
		{email, "Email: "},
		{first, "First name: "},
		{last, "Last name: "},
	}
	for _, f := range fields {
		if *f.value != "" {
			continue
		}
		if *f.value, err = p.Line(f.label); err != nil {
			return err
		}
	}
	password, err := p.Secret("Password: ")
	if err != nil {
		return err
	}
	confirm, err := p.Secret("Confirm password: ")
	if err != nil {
		return err
	}

	a.session.Restore(ctx)
	state, err := a.session.Register(ctx, api.RegisterCredentials{
		Username:        *username,
		Email:           *email,
		FirstName:       *first,
		LastName:        *last,
		Password:        password,
		PasswordConfirm: confirm,
	})
	var authErr *session.AuthError
	if errors.As(err, &authErr) {
		printFieldErrors(authErr.Fields)
	}
	if err != nil {
		a.logger.Debug("registration failed", "error", err)
		return errSilent
	}
	fmt.Printf("Welcome, %s.\n", state.User.DisplayName())
	return nil
}

func printFieldErrors(fields map[string][]string) {
	if len(fields) == 0 {
		return
	}
	for _, name := range slices.Sorted(maps.Keys(fields)) {
		red.Printf("  %s: ", name)
		fmt.Println(strings.Join(fields[name], " "))
	}
}

func runLogout(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	a.session.Restore(ctx)
	a.session.Logout(ctx)
	return nil
}

func runStatus(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	state := a.session.Restore(ctx)
	fmt.Printf("API:     %s\n", a.gw.BaseURL())
	if !state.IsAuthenticated {
		fmt.Println("Session: not logged in")
		return nil
	}

	fmt.Print("Session: ")
	green.Println(state.Phase)
	if state.User != nil {
		fmt.Printf("User:    %s <%s>\n", state.User.DisplayName(), state.User.Email)
		if !state.User.CreatedAt.IsZero() {
			gray.Printf("         member since %s\n", state.User.CreatedAt.Format("January 2006"))
		}
	}
	if exp, err := a.session.AccessExpiry(); err == nil {
		verb := "expires"
		if exp.Before(time.Now()) {
			verb = "expired"
		}
		fmt.Printf("Access:  %s %s\n", verb, humanize.Time(exp))
	}
	return nil
}
