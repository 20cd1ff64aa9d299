package main

import (
	"context"
	"fmt"
	"os"

	"github.com/JustJay7/ecourts-capture/internal/browser"
	"github.com/JustJay7/ecourts-capture/internal/captcha"
	"github.com/JustJay7/ecourts-capture/internal/config"
	"github.com/JustJay7/ecourts-capture/internal/database"
	"github.com/JustJay7/ecourts-capture/internal/scraper"
	"github.com/JustJay7/ecourts-capture/pkg/logger"
)

// app is the configuration, logger and store shared by every command.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	store *database.Store
}

func bootstrap() (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.NewLogger(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	store, err := database.Open(cfg.DatabaseDriver, databaseTarget(cfg), log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	return &app{cfg: cfg, log: log, store: store}, nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("Failed to close database", "error", err)
	}
	a.log.Sync()
}

func databaseTarget(cfg *config.Config) string {
	if cfg.DatabaseDriver == "mysql" {
		return cfg.DatabaseDSN
	}
	return cfg.DatabasePath
}

// sessionFactory launches a fresh browser for each run.
func (a *app) sessionFactory() scraper.SessionFactory {
	return func(context.Context) (browser.Session, error) {
		return browser.Launch(a.cfg, a.log)
	}
}

// terminalSolver prompts on the terminal unless a 2Captcha key is set.
func (a *app) terminalSolver() captcha.Solver {
	if a.cfg.TwoCaptchaKey != "" {
		a.log.Info("Solving CAPTCHAs with 2Captcha")
		return captcha.NewTwoCaptcha(a.cfg.TwoCaptchaKey, "")
	}
	return captcha.NewPrompt(a.cfg.CaptchaDir, os.Stdin, os.Stdout)
}
