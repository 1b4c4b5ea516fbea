package main

import (
	"os"
	"strings"

	"github.com/nimasrn/cash-ledger/internal/config"
	"github.com/nimasrn/cash-ledger/pkg/logger"
	"github.com/nimasrn/cash-ledger/pkg/pg"
)

// usage: cli [--env=.env] [--dir=./migrations] [up|down|status]
func main() {
	err := config.Load(getEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	command := getCommand()
	dir := getMigrationPath()
	logger.Info("running migrations", "command", command, "dir", dir)

	if err := pg.Migrate(config.Get().PostgresWrite(), dir, command); err != nil {
		logger.Error("migration: error running migrations", "error", err)
		os.Exit(1)
	}
}

func flagValue(name string) (string, bool) {
	for _, v := range os.Args[1:] {
		if strings.HasPrefix(v, name+"=") {
			return strings.TrimPrefix(v, name+"="), true
		}
	}
	return "", false
}

func getEnvPath() string {
	path, ok := flagValue("--env")
	if !ok {
		path = ".env"
	}
	if _, err := os.Stat(path); err != nil {
		if ok {
			logger.Error("failed to open the passed env file", "error", err)
		}
		return ""
	}
	return path
}

func getMigrationPath() string {
	if dir, ok := flagValue("--dir"); ok {
		return dir
	}
	return "./migrations"
}

func getCommand() string {
	for _, v := range os.Args[1:] {
		if !strings.HasPrefix(v, "--") {
			return v
		}
	}
	return pg.MigrateUp
}
