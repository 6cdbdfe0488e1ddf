package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/halallens/screener/internal/api"
	"github.com/halallens/screener/internal/api/handlers"
	redispkg "github.com/halallens/screener/pkg/redis"
)

// apiCmd represents the api command
var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Start the read API server",
	Long: `Starts the HTTP API serving screening state.

Endpoints:
  GET  /health
  GET  /api/securities
  GET  /api/securities/{id}/status
  GET  /api/securities/{id}/history
  GET  /api/securities/{id}/transitions
  PUT  /api/securities/{id}/sector
  POST /api/pipeline/run
  POST /api/pipeline/backfill

Example:
  go run ./cmd/screener api
  go run ./cmd/screener api --port 8080`,
	RunE: runAPIServer,
}

var apiPort string

func init() {
	rootCmd.AddCommand(apiCmd)

	apiCmd.Flags().StringVar(&apiPort, "port", "", "API server port (overrides PORT)")
}

func runAPIServer(cmd *cobra.Command, args []string) error {
	app, cleanup, err := buildApp()
	if err != nil {
		return err
	}
	defer cleanup()

	if apiPort != "" {
		app.cfg.Port = apiPort
	}

	cache := redispkg.NewCache(app.redis, "screener")

	securityHandler := handlers.NewSecurityHandler(app.securities, app.ledger, cache, app.log)
	pipelineHandler := handlers.NewPipelineHandler(app.orchestrator, app.log)

	router := api.NewRouter(securityHandler, pipelineHandler, app.log)
	server := api.New(app.cfg, app.log, router)

	go func() {
		if err := server.Start(); err != nil {
			app.log.WithError(err).Fatal("Failed to start server")
		}
	}()

	fmt.Printf("Server running on http://localhost:%s\n", app.cfg.Port)
	fmt.Println("Press Ctrl+C to stop")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}
