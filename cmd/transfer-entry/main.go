package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"flower-backoffice/internal/allocation"
	"flower-backoffice/internal/apiclient"
	"flower-backoffice/internal/config"
	"flower-backoffice/internal/logger"
	"flower-backoffice/internal/tui"

	tea "github.com/charmbracelet/bubbletea"
)

func main() {
	cfgPath := flag.String("config", "", "path to a YAML config file")
	date := flag.String("date", "", "working date (YYYY-MM-DD), defaults to today")
	flag.Parse()

	if err := run(*cfgPath, *date); err != nil {
		fmt.Fprintln(os.Stderr, "transfer-entry:", err)
		os.Exit(1)
	}
}

func run(cfgPath, date string) error {
	cfg, err := config.LoadClient(cfgPath)
	if err != nil {
		return err
	}
	if date != "" {
		cfg.Entry.Date = date
	}

	// the terminal belongs to the UI, so logs go to a file
	logFile, err := os.OpenFile(cfg.Log.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()
	log := logger.Setup("production", cfg.Log.Level, logFile)

	day, err := cfg.WorkDate(time.Now())
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := apiclient.New(cfg.API.BaseURL, cfg.API.Timeout, log)
	if cfg.Auth.Token != "" {
		client.SetToken(cfg.Auth.Token)
	} else if err := client.Login(ctx, cfg.Auth.Email, cfg.Auth.Password); err != nil {
		logger.LogError(log, "transfer-entry", "run", "login", cfg.Auth.Email, err)
		return err
	}

	keys := allocation.DefaultKeymap()
	if err := keys.Override(cfg.Keys); err != nil {
		return fmt.Errorf("keys: %w", err)
	}

	filter := allocation.LotFilter{
		DateTo: day,
		Limit:  cfg.Entry.LotLimit,
	}
	if cfg.Entry.LookbackDays > 0 {
		filter.DateFrom = day.AddDate(0, 0, -cfg.Entry.LookbackDays)
	}

	orch := allocation.NewOrchestrator(client, client, client, filter)
	orch.SetParallelism(cfg.Entry.Parallelism)

	model := tui.New(ctx, day, tui.Deps{
		Sources:      allocation.Sources{Lots: client, Destinations: client, Prices: client},
		Orchestrator: orch,
		Prices:       client,
		Filter:       filter,
		Keys:         keys,
		Log:          log,
		Timeout:      cfg.API.Timeout * 4,
	})

	log.WithField("date", day.Format("2006-01-02")).Info("transfer entry started")
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		logger.LogError(log, "transfer-entry", "run", "program", nil, err)
		return err
	}
	return nil
}
