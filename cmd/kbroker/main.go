// File: cmd/kbroker/main.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// kbroker daemon: loads the configuration, binds the socket and runs the
// broker loop until SIGINT or SIGTERM.

package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/momentics/kbroker/control"
	"github.com/momentics/kbroker/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kbroker:", err)
		os.Exit(1)
	}
}

func run() (err error) {
	configPath := flag.String("config", "", "TOML configuration file")
	socket := flag.String("socket", "", "override socket_path")
	level := flag.String("log-level", "", "override log_level")
	dev := flag.Bool("dev", false, "development logging")
	flag.Parse()

	cfg := control.DefaultConfig()
	if *configPath != "" {
		if cfg, err = control.LoadConfig(*configPath); err != nil {
			return err
		}
	}
	if *socket != "" {
		cfg.SocketPath = *socket
	}
	if *level != "" {
		cfg.LogLevel = *level
	}
	if *dev {
		cfg.LogDevelopment = true
	}

	log, atom, err := control.NewLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	b, err := server.New(cfg,
		server.WithLogger(log),
		server.WithLevel(atom),
		server.WithConfigPath(*configPath),
	)
	if err != nil {
		return err
	}
	if err := b.Listen(); err != nil {
		return err
	}
	defer func() { err = multierr.Append(err, b.Stop()) }()

	log.Info("kbroker started",
		zap.String("socket", cfg.SocketPath),
		zap.Int("max_handles", cfg.MaxHandles),
		zap.Int("pid", os.Getpid()),
	)
	if err := b.Serve(context.Background()); err != nil {
		return err
	}
	log.Info("kbroker exited")
	return nil
}
