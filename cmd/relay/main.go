package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/sharemesh/sharemesh/internal/config"
	"github.com/sharemesh/sharemesh/internal/logging"
	"github.com/sharemesh/sharemesh/internal/relay"
	"github.com/sharemesh/sharemesh/internal/server"
	"github.com/sharemesh/sharemesh/internal/version"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var flags config.RelayFlags
	flagSet := pflag.NewFlagSet("sharemesh-relay", pflag.ContinueOnError)
	flags.AddFlags(flagSet)
	showVersion := flagSet.Bool("version", false, "print version and exit")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}
	if *showVersion {
		fmt.Println("sharemesh-relay", version.Version)
		return nil
	}

	logger := logging.Init(slog.LevelInfo)

	cfg, err := config.LoadRelay(&flags)
	if err != nil {
		return err
	}

	// 1. Create the Hub
	registry := relay.NewRegistry(relay.RegistryOptions{
		StrictRooms: cfg.Rooms.Strict,
		MinIDLength: cfg.Rooms.MinIDLength,
		MaxIDLength: cfg.Rooms.MaxIDLength,
		RoomTTL:     cfg.Rooms.TTL,
	})
	hub := relay.NewHub(registry, relay.NewNameAllocator(cfg.NameAttempts), logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Run the Hub in a separate goroutine
	hubDone := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(hubDone)
	}()

	// 3. Register our handlers
	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: server.NewRouter(hub, server.Options{
			AllowedOrigins: cfg.AllowedOrigins,
			SendBuffer:     cfg.SendBuffer,
			Logger:         logger,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// 4. Start the server
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting signaling relay", "listen", cfg.Listen, "version", version.Version, "strict_rooms", cfg.Rooms.Strict)
		serveErr <- srv.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		stop()
		<-hubDone
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	<-hubDone
	return err
}
