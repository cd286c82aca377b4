//go:build linux

package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/notifydone/notifyd/internal/config"
	"github.com/notifydone/notifyd/internal/ipc"
	"github.com/notifydone/notifyd/internal/notifyd"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	var configPath string
	var sock string
	var debug bool
	flag.StringVar(&configPath, "config", "/etc/notifyd/config.toml", "config file path")
	flag.StringVar(&sock, "sock", ipc.SockPath(), "unix socket path (default: /run/notifyd.sock; override: NOTIFYD_SOCK)")
	flag.BoolVar(&debug, "debug", false, "enable debug logging")
	flag.Parse()

	log, err := buildLogger(debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Error("load config", zap.String("path", configPath), zap.Error(err))
		return 1
	}
	if sock != "" {
		cfg.Socket = sock
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	d, err := notifyd.New(cfg, log)
	if err != nil {
		log.Error("init daemon", zap.Error(err))
		return 1
	}

	log.Info("starting",
		zap.String("config", configPath),
		zap.String("socket", cfg.Socket))

	if err := d.Run(ctx); err != nil {
		log.Error("daemon exited", zap.Error(err))
		return 1
	}
	return 0
}

func buildLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	cfg := zap.NewProductionConfig()
	cfg.DisableStacktrace = true
	return cfg.Build()
}
