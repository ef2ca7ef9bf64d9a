package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	flag "github.com/spf13/pflag"

	"github.com/nhle/dragonmail/internal/app"
	"github.com/nhle/dragonmail/internal/credential"
	"github.com/nhle/dragonmail/internal/httpapi"
	"github.com/nhle/dragonmail/internal/logging"
	"github.com/nhle/dragonmail/internal/mailtm"
	"github.com/nhle/dragonmail/internal/model"
	"github.com/nhle/dragonmail/internal/session"
	"github.com/nhle/dragonmail/internal/store"
)

type options struct {
	configPath string
	serve      bool
	addr       string
	logLevel   string
}

func main() {
	var opts options
	flag.StringVarP(&opts.configPath, "config", "c", model.DefaultConfigPath(), "path to the config file")
	flag.BoolVar(&opts.serve, "serve", false, "run the local JSON API instead of the terminal UI")
	flag.StringVar(&opts.addr, "addr", "", "listen address for --serve (overrides server.addr)")
	flag.StringVar(&opts.logLevel, "log-level", "", "log level (overrides log.level)")
	flag.Parse()

	if err := run(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(opts options) error {
	// A missing .env is fine.
	_ = godotenv.Load()

	cfg, err := model.LoadConfig(opts.configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	if opts.addr != "" {
		cfg.Server.Addr = opts.addr
	}

	log, closer, err := logging.Setup(cfg.Log, opts.serve)
	if err != nil {
		return err
	}
	defer closer.Close()

	var vault store.Vault
	if cfg.Storage.UseKeyring {
		v, err := credential.Open(model.ConfigDir())
		if err != nil {
			return err
		}
		vault = v
	}

	st, err := store.Open(cfg.Storage, vault,
		store.WithDefaultSettings(cfg.DefaultSettings()),
		store.WithLogger(logging.Component(log, "store")),
	)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	client := mailtm.NewClient(cfg.Provider.BaseURL,
		mailtm.WithTimeout(time.Duration(cfg.Provider.TimeoutSec)*time.Second),
		mailtm.WithRateLimit(cfg.Provider.RequestsPerSecond),
		mailtm.WithFallbackDomain(cfg.Provider.FallbackDomain),
		mailtm.WithLogger(logging.Component(log, "mailtm")),
	)

	mgr := session.NewManager(client.NewSession(), st,
		session.WithDefaultSettings(cfg.DefaultSettings()),
		session.WithDeleteOnExpiry(cfg.Session.DeleteOnExpiry),
		session.WithLogger(logging.Component(log, "session")),
	)
	defer mgr.Shutdown()

	restoreCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := mgr.Restore(restoreCtx); err != nil {
		log.Warn().Err(err).Msg("could not restore previous session")
	}
	cancel()

	if opts.serve {
		return serve(mgr, cfg.Server.Addr, log)
	}

	p := tea.NewProgram(app.New(mgr), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("running terminal UI: %w", err)
	}
	return nil
}

func serve(mgr *session.Manager, addr string, log zerolog.Logger) error {
	srv := httpapi.NewServer(mgr, logging.Component(log, "http"))

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("listening")
		errCh <- srv.Listen(addr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
