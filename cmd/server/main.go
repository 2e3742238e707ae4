package main

import (
	"os"

	"flower-backoffice/internal/config"
	"flower-backoffice/internal/database"
	"flower-backoffice/internal/logger"
	"flower-backoffice/internal/router"
)

func main() {
	cfg := config.Load()
	log := logger.Setup(cfg.Env, cfg.LogLevel, os.Stdout)

	database.Init(cfg)

	app := router.New(cfg, log)

	log.WithField("port", cfg.HTTPPort).Info("server listening")
	if err := app.Listen(":" + cfg.HTTPPort); err != nil {
		log.Fatal(err)
	}
}
