package main

import (
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"flowdesk/internal/config"
	"flowdesk/internal/db"
)

const usage = "usage: migrate up|down|version"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	m, err := db.NewMigrator(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("migrator init", zap.Error(err))
	}
	defer m.Close()

	switch os.Args[1] {
	case "up":
		if err := m.Up(); err != nil {
			logger.Fatal("migrate up", zap.Error(err))
		}
	case "down":
		if err := m.Down(); err != nil {
			logger.Fatal("migrate down", zap.Error(err))
		}
	case "version":
	default:
		fmt.Fprintln(os.Stderr, usage)
		os.Exit(2)
	}

	version, dirty, err := m.Version()
	if err != nil {
		logger.Fatal("migrate version", zap.Error(err))
	}
	logger.Info("schema version", zap.Uint("version", version), zap.Bool("dirty", dirty))
}
