package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	_ "embed"
	_ "github.com/mattn/go-sqlite3"

	_ "github.com/vitoriamariadb/tidal/pkg/etl/adapter/database/gorm/sqlite"

	"github.com/vitoriamariadb/tidal/example/orders/internal/app"
	"github.com/vitoriamariadb/tidal/pkg/etl/support/logger"
)

// embeddedConfig embeds the application's YAML configuration so the binary
// runs without external config files.
//
//go:embed resources/application.yaml
var embeddedConfig []byte

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown on Ctrl+C / SIGTERM.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Warnf("Received signal '%v'. Stopping the pipeline...", sig)
		cancel()
	}()

	envFilePath := os.Getenv("ENV_FILE_PATH")
	if envFilePath == "" {
		envFilePath = ".env"
	}

	app.RunApplication(ctx, envFilePath, embeddedConfig)
	os.Exit(0)
}
