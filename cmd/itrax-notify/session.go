package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/charmbracelet/huh"
	"go.uber.org/zap"

	"github.com/ufcrashout/iTrax/internal/agent"
	"github.com/ufcrashout/iTrax/internal/api"
	"github.com/ufcrashout/iTrax/internal/controller"
	"github.com/ufcrashout/iTrax/internal/credential"
	"github.com/ufcrashout/iTrax/internal/model"
	"github.com/ufcrashout/iTrax/internal/pushsvc"
	"github.com/ufcrashout/iTrax/internal/store"
)

// ensureUsername asks for the dashboard and login on first run and
// saves them.
func ensureUsername(cfg *model.AppConfig, path string) error {
	if cfg.Server.Username != "" {
		return nil
	}

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Dashboard URL").
				Value(&cfg.Server.BaseURL).
				Validate(func(s string) error {
					if !strings.HasPrefix(s, "http://") && !strings.HasPrefix(s, "https://") {
						return errors.New("must start with http:// or https://")
					}
					return nil
				}),
			huh.NewInput().
				Title("Username").
				Value(&cfg.Server.Username).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("username is required")
					}
					return nil
				}),
		),
	)
	if err := form.Run(); err != nil {
		return fmt.Errorf("reading connection settings: %w", err)
	}

	return model.SaveConfig(path, cfg)
}

// credentials is where login finds the dashboard password.
type credentials interface {
	Password(user string) (string, error)
	SetPassword(user, password string) error
	DeletePassword(user string) error
	Prompt(user string) (string, error)
}

// keyringCredentials reads the system keyring and asks on the terminal.
type keyringCredentials struct{}

func (keyringCredentials) Password(user string) (string, error) { return credential.Password(user) }

func (keyringCredentials) SetPassword(user, password string) error {
	return credential.SetPassword(user, password)
}

func (keyringCredentials) DeletePassword(user string) error { return credential.DeletePassword(user) }

func (keyringCredentials) Prompt(user string) (string, error) { return promptPassword(user) }

// login signs in to the dashboard and returns the page CSRF token. A
// password typed at the prompt is saved to the keyring once it works. A
// stored password the dashboard rejects is forgotten and asked for once.
func login(ctx context.Context, cfg *model.AppConfig, web *http.Client, creds credentials, logger *zap.Logger) (string, error) {
	user := cfg.Server.Username

	password, err := creds.Password(user)
	prompted := false
	if err != nil {
		if !errors.Is(err, credential.ErrNotFound) {
			logger.Warn("reading keyring", zap.Error(err))
		}
		if password, err = creds.Prompt(user); err != nil {
			return "", err
		}
		prompted = true
	}

	session := api.NewSession(cfg.Server.BaseURL, web)
	attempt := func(password string) error {
		loginCtx, cancel := context.WithTimeout(ctx, httpTimeout)
		defer cancel()
		return session.Login(loginCtx, user, password)
	}

	err = attempt(password)
	if err != nil && !prompted && api.IsAuth(err) {
		logger.Warn("stored password rejected, asking again", zap.String("user", user))
		if derr := creds.DeletePassword(user); derr != nil {
			logger.Warn("forgetting rejected password", zap.Error(derr))
		}
		if password, err = creds.Prompt(user); err != nil {
			return "", err
		}
		prompted = true
		err = attempt(password)
	}
	if err != nil {
		return "", fmt.Errorf("logging in to %s as %s: %w", cfg.Server.BaseURL, user, err)
	}
	logger.Info("logged in", zap.String("server", cfg.Server.BaseURL), zap.String("user", user))

	if prompted {
		if err := creds.SetPassword(user, password); err != nil {
			logger.Warn("saving password to keyring", zap.Error(err))
		}
	}

	tokenCtx, cancel := context.WithTimeout(ctx, httpTimeout)
	defer cancel()

	token, err := api.LoadCSRFToken(tokenCtx, web, cfg.Server.BaseURL)
	if err != nil {
		// Reads still work; subscribe and mark-read will be refused.
		logger.Warn("loading csrf token", zap.Error(err))
		return "", nil
	}
	return token, nil
}

func promptPassword(user string) (string, error) {
	var password string
	err := huh.NewInput().
		Title("Password for " + user).
		EchoMode(huh.EchoModePassword).
		Value(&password).
		Run()
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return password, nil
}

// newRegistrar returns the push agent registration step: install and
// activate the agent, connect to the push service, and deliver pushes
// until runCtx ends, reconnecting whenever the service drops us.
func newRegistrar(
	runCtx context.Context,
	relayURL string,
	a *agent.Agent,
	st store.Store,
	logger *zap.Logger,
) controller.Registrar {
	dial := func(ctx context.Context, uaid string) (agent.PushConn, error) {
		conn, err := pushsvc.Dial(ctx, relayURL, uaid, logger.Named("pushsvc"))
		if err != nil {
			return nil, err
		}
		return conn, nil
	}

	return func(ctx context.Context) (controller.PushManager, error) {
		if err := a.Install(ctx); err != nil {
			return nil, err
		}
		if err := a.Activate(ctx); err != nil {
			return nil, err
		}

		uaid, err := st.GetSetting(ctx, store.SettingPushUAID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("reading push uaid: %w", err)
		}

		conn, err := dial(ctx, uaid)
		if err != nil {
			return nil, err
		}

		pm := a.NewPushManager(conn)
		if err := pm.SyncUAID(ctx); err != nil {
			if c, ok := conn.(io.Closer); ok {
				c.Close()
			}
			return nil, fmt.Errorf("syncing push identity: %w", err)
		}

		go func() {
			err := pm.Serve(runCtx, agent.Redial{Dial: dial})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("push delivery stopped", zap.Error(err))
			}
		}()

		return pm, nil
	}
}
