package main

import (
	"context"
	"fmt"

	"github.com/veritasvoid/TradeZen/internal/config"
	"github.com/veritasvoid/TradeZen/internal/database"
	"github.com/veritasvoid/TradeZen/internal/ids"
	"github.com/veritasvoid/TradeZen/internal/logger"
	"github.com/veritasvoid/TradeZen/internal/session"
	"github.com/veritasvoid/TradeZen/internal/settings"
	"github.com/veritasvoid/TradeZen/internal/sheets"
	"github.com/veritasvoid/TradeZen/internal/store"
	"go.uber.org/zap"
)

// app holds the constructed components. Everything is built once here and
// passed down explicitly.
type app struct {
	cfg      config.Config
	log      *zap.Logger
	state    *database.LocalState
	session  *session.Manager
	workbook *store.Workbook
	settings *settings.Synchronizer
}

func newApp(configDir string, consent session.ConsentFunc) (*app, error) {
	// Load application configuration
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		return nil, fmt.Errorf("could not load config: %w", err)
	}

	// Initialize logger
	log, err := logger.NewLogger(&cfg.Logger)
	if err != nil {
		return nil, err
	}
	log.Info("Configuration loaded")

	// Initialize local state
	db, err := database.NewDatabase(cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	state := database.NewLocalState(db)
	log.Info("Local state ready", zap.String("dsn", cfg.Database.DSN))

	provider := session.NewOAuthProvider(&cfg.Google, consent, log)
	manager := session.NewManager(session.Options{
		Provider: provider,
		Store:    state,
		Loader:   provider.Load,
		Lifetime: cfg.Session.TokenLifetime,
		OnExpired: func(err error) {
			log.Warn("Session expired, sign in again", zap.Error(err))
		},
		Logger: log,
	})

	client := sheets.NewRestClient(&cfg.Google, manager, log)
	workbook := store.NewWorkbook(client, state, &cfg.Journal, ids.NewGenerator(), log)
	sync := settings.NewSynchronizer(workbook, state, settings.Defaults(&cfg.Settings), log)

	return &app{
		cfg:      cfg,
		log:      log,
		state:    state,
		session:  manager,
		workbook: workbook,
		settings: sync,
	}, nil
}

// signIn initializes the remote client, signs in and re-validates a cached
// credential with a cheap remote call.
func (a *app) signIn(ctx context.Context) error {
	if err := a.session.Initialize(ctx); err != nil {
		return err
	}
	if _, err := a.session.SignIn(ctx); err != nil {
		return err
	}
	return a.session.Probe(ctx, a.workbook.Probe)
}

func (a *app) close() {
	a.session.Close()
	_ = a.log.Sync()
}
