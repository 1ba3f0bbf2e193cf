package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	convo "github.com/everydev1618/goconvo"
	"github.com/everydev1618/goconvo/serve"
)

// serveCmd starts the HTTP API server.
func serveCmd(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	addr := fs.String("addr", ":3001", "HTTP listen address")
	dbPath := fs.String("db", "", "Snapshot store path (default from config)")
	timeout := fs.Duration("timeout", 5*time.Minute, "Maximum time a run waits for pending values")
	configPath := fs.String("config", "", "Config file (default ~/.convo/config.yaml)")

	fs.Usage = func() {
		fmt.Println(`Usage: convo serve [options]

Start an HTTP API for parsing and running convo documents. Conversation
state is kept in the snapshot store between runs.

Options:`)
		fs.PrintDefaults()
		fmt.Println(`
Examples:
  convo serve
  convo serve --addr :8080
  convo serve --db /tmp/convo.db`)
	}

	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}

	cfg := loadConfig(*configPath)
	logger := convo.NewLogger(cfg.LogLevel, os.Stderr)
	st := openStore(cfg, *dbPath)
	defer st.Close()

	engine := convo.NewEngine(cfg, convo.WithStore(st), convo.WithEngineLogger(logger))
	srv := serve.New(engine, serve.Config{Addr: *addr, RunTimeout: *timeout}, logger)

	// Signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
