package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/thetanil/basicforms/internal/config"
	"github.com/thetanil/basicforms/internal/db"
	"github.com/thetanil/basicforms/internal/hook"
	"github.com/thetanil/basicforms/internal/logging"
	"github.com/thetanil/basicforms/internal/store"
)

// app holds what every command needs once the config is loaded.
type app struct {
	cfg         *config.Config
	logger      *zap.Logger
	db          *db.DB
	forms       *store.Forms
	submissions *store.Submissions
	hooks       *hook.Runner
}

func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	d, err := db.Open(ctx, cfg.DB())
	if err != nil {
		logger.Sync()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	logger.Debug("database ready", zap.String("driver", d.Driver), zap.String("dialect", string(d.Dialect)))

	return &app{
		cfg:         cfg,
		logger:      logger,
		db:          d,
		forms:       store.NewForms(d),
		submissions: store.NewSubmissions(d),
		hooks:       hook.New(hook.Config{Timeout: cfg.Hooks.Timeout, MaxSteps: cfg.Hooks.MaxSteps}, logger),
	}, nil
}

func (a *app) Close() {
	a.db.Close()
	a.logger.Sync()
}
