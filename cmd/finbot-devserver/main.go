// ABOUTME: Entry point for the local finbot API development server
// ABOUTME: Serves accounts and chat endpoints backed by SQLite

package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/finbot-client/internal/config"
	"github.com/2389/finbot-client/internal/devserver"
	"github.com/2389/finbot-client/internal/logging"
)

const banner = `
  __ _       _           _
 / _(_)_ __ | |__   ___ | |_
| |_| | '_ \| '_ \ / _ \| __|
|  _| | | | | |_) | (_) | |_
|_| |_|_| |_|_.__/ \___/ \__| dev
`

func main() {
	addr := flag.String("addr", "", "Listen address (overrides devserver.addr)")
	dbPath := flag.String("db", "", "SQLite database path (overrides devserver.database_path)")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, *addr, *dbPath); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, addr, dbPath string) error {
	configPath := config.DefaultPath()
	cfg, err := config.LoadOrDefault(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if addr != "" {
		cfg.DevServer.Addr = addr
	}
	if dbPath != "" {
		cfg.DevServer.DatabasePath = dbPath
	}

	cyan := color.New(color.FgCyan)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	cyan.Print(banner)
	fmt.Println()

	if cfg.DevServer.JWTSecret == "" {
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		cfg.DevServer.JWTSecret = secret
		yellow.Println("    ! devserver.jwt_secret not set; tokens will not survive a restart")
	}
	if err := cfg.ValidateDevServer(); err != nil {
		return err
	}

	logger := logging.Setup(cfg.Logging, os.Stderr)

	green.Print("    ▶ ")
	fmt.Printf("Config:   %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("HTTP:     http://%s%s\n", cfg.DevServer.Addr, devserver.APIPrefix)
	green.Print("    ▶ ")
	fmt.Printf("Database: %s\n", cfg.DevServer.DatabasePath)
	fmt.Println()

	store, err := devserver.OpenStore(cfg.DevServer.DatabasePath, logger)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer store.Close()

	if n, err := store.PurgeRevoked(ctx, time.Now()); err != nil {
		logger.Warn("purging revoked tokens", "error", err)
	} else if n > 0 {
		logger.Info("purged expired token revocations", "count", n)
	}

	issuer := devserver.NewIssuer([]byte(cfg.DevServer.JWTSecret), cfg.DevServer.AccessTTL, cfg.DevServer.RefreshTTL, nil)
	srv := devserver.New(store, issuer, devserver.WithLogger(logger))
	return srv.Run(ctx, cfg.DevServer.Addr)
}

func randomSecret() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
