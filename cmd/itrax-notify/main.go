// Command itrax-notify is the iTrax notification client: an unread badge,
// a notification list, and a background push agent in the terminal.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ufcrashout/iTrax/internal/agent"
	"github.com/ufcrashout/iTrax/internal/api"
	"github.com/ufcrashout/iTrax/internal/app"
	"github.com/ufcrashout/iTrax/internal/browser"
	"github.com/ufcrashout/iTrax/internal/controller"
	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/internal/store"
	appsync "github.com/ufcrashout/iTrax/internal/sync"
	"github.com/ufcrashout/iTrax/internal/ui/permission"
	"github.com/ufcrashout/iTrax/internal/ui/tray"
)

const httpTimeout = 30 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "itrax-notify:", err)
		os.Exit(1)
	}
}

func run() error {
	envErr := godotenv.Load()

	configPath := flag.String("config", model.DefaultConfigPath(), "path to the YAML config file")
	flag.Parse()

	cfg, err := model.LoadConfig(*configPath)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()
	if envErr != nil {
		logger.Debug("no .env file loaded", zap.Error(envErr))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := ensureUsername(cfg, *configPath); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}
	st, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer st.Close()

	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("creating cookie jar: %w", err)
	}
	web := &http.Client{Jar: jar, Timeout: httpTimeout}

	token, err := login(ctx, cfg, web, keyringCredentials{}, logger)
	if err != nil {
		return err
	}

	// program is set before anything that sends to it is started.
	var program *tea.Program
	send := func(msg tea.Msg) {
		if program != nil {
			program.Send(msg)
		}
	}

	clientOpts := []api.Option{
		api.WithCSRFToken(token),
		api.WithLogger(logger.Named("api")),
	}

	var (
		pushAgent *agent.Agent
		clients   *agent.Clients
		register  controller.Registrar
	)
	if cfg.PushSupported() {
		clients = agent.NewClients(cfg.Server.BaseURL, browser.Open)
		displayer := agent.NewStoreDisplayer(st)

		pushAgent, err = agent.New(agent.Config{
			BaseURL:  cfg.Server.BaseURL,
			Scope:    cfg.Agent.Scope,
			Manifest: cfg.Agent.CacheManifest,
		}, st,
			agent.WithFetchClient(web),
			agent.WithDisplayer(displayer),
			agent.WithClients(clients),
			agent.WithLogger(logger.Named("agent")),
		)
		if err != nil {
			return fmt.Errorf("creating push agent: %w", err)
		}

		displayer.OnShow(func(n model.DisplayedNotification) {
			send(tray.ShownMsg{Notification: n})
		})
		detach := clients.Attach(app.Window(send))
		defer detach()

		clientOpts = append(clientOpts, api.WithHTTPClient(&http.Client{
			Jar:       jar,
			Transport: pushAgent.Transport(),
			Timeout:   httpTimeout,
		}))
		register = newRegistrar(ctx, cfg.Push.RelayURL, pushAgent, st, logger)
	} else {
		logger.Info("push disabled, polling only")
		clientOpts = append(clientOpts, api.WithHTTPClient(web))
	}

	client := api.NewClient(cfg.Server.BaseURL, clientOpts...)
	perms := controller.NewStorePermissions(st)
	ctrl := controller.New(client, register, perms, controller.Options{
		PushEnabled: cfg.PushSupported(),
		FallbackKey: cfg.Push.FallbackVAPIDKey,
		ListLimit:   cfg.Display.ListLimit,
		Logger:      logger.Named("controller"),
	})
	poller := appsync.New(ctrl, time.Duration(cfg.Poll.IntervalSec)*time.Second)

	deps := app.Deps{
		Context:     ctx,
		Config:      cfg,
		ConfigPath:  *configPath,
		Controller:  ctrl,
		Poller:      poller,
		Store:       st,
		Permissions: perms,
		Prompt:      permission.NewBridge(send).Prompt,
		OpenURL:     browser.Open,
		Logger:      logger,
	}
	if pushAgent != nil {
		deps.Agent = pushAgent
		deps.Windows = clients
	}

	program = tea.NewProgram(app.New(deps), tea.WithAltScreen(), tea.WithContext(ctx))
	_, runErr := program.Run()

	poller.Stop()
	cancel()
	if pushAgent != nil {
		pushAgent.Wait()
	}

	if runErr != nil && !errors.Is(runErr, tea.ErrProgramKilled) {
		return fmt.Errorf("running ui: %w", runErr)
	}
	return nil
}

// newLogger builds a JSON file logger. The terminal belongs to the UI.
func newLogger(cfg model.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("parsing log level: %w", err)
	}

	if cfg.File == "" {
		return zap.NewNop(), nil
	}
	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory: %w", err)
	}

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{cfg.File}
	zc.ErrorOutputPaths = []string{cfg.File}
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		return nil, fmt.Errorf("building logger: %w", err)
	}
	return logger.Named("itrax"), nil
}
