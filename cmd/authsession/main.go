package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-auth-session/internal/config"
	"github.com/jrsteele09/go-auth-session/internal/telemetry"
	"github.com/jrsteele09/go-auth-session/redirect"
	"github.com/jrsteele09/go-auth-session/storage"
	"github.com/jrsteele09/go-auth-session/tab"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultStartURL = "http://localhost:3000/"

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Error running session shell")
	}
	log.Info().Msg("Session shell stopped")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Msgf("Recovered from panic: %v", r)
			debug.PrintStack()
			returnError = errors.New("panic recovered")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.New()
	if err != nil {
		return err
	}
	if cfg.GetEnv() == "DEV" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	displayAppname(cfg.GetAppName())

	shutdownTracing, err := telemetry.Setup(ctx, cfg.GetAppName(), cfg.GetOTelEndpoint())
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			log.Err(err).Msg("Tracing shutdown")
		}
	}()

	area, closeStorage, err := openArea(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStorage()

	startURL := defaultStartURL
	if len(os.Args) > 1 {
		startURL = os.Args[1]
	}
	location, err := redirect.NewMemoryLocation(startURL)
	if err != nil {
		return fmt.Errorf("start URL: %w", err)
	}
	location.OnAssign(func(u *url.URL) {
		fmt.Printf("-> open %s\n", u)
	})

	t, err := tab.New(tab.SettingsFromConfig(cfg, prometheus.DefaultRegisterer), area, location)
	if err != nil {
		return err
	}
	defer func() {
		if err := t.Close(); err != nil {
			log.Err(err).Msg("Closing tab")
		}
	}()

	sh := newShell(cfg, t, location, os.Stdout)
	if err := sh.mount(ctx); err != nil {
		return err
	}
	return sh.serve(ctx, bufio.NewScanner(os.Stdin))
}

// openArea opens this process's tab on the configured storage backend.
func openArea(ctx context.Context, cfg config.Config) (storage.Area, func(), error) {
	switch cfg.GetStorageBackend() {
	case config.StorageRedis:
		client, err := storage.NewRedisClient(ctx, cfg.GetRedisURL())
		if err != nil {
			return nil, nil, err
		}
		area := storage.NewRedisArea(client, cfg.GetRedisPrefix())
		log.Info().Str("tab", area.TabID()).Msg("Using redis token storage")
		return area, func() { _ = client.Close() }, nil
	default:
		area := storage.NewMemoryBackend().Tab()
		log.Info().Str("tab", area.TabID()).Msg("Using in-memory token storage")
		return area, func() {}, nil
	}
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
