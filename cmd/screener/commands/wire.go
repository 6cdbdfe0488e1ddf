package commands

import (
	"fmt"

	"github.com/halallens/screener/internal/alert"
	"github.com/halallens/screener/internal/contracts"
	"github.com/halallens/screener/internal/extract"
	"github.com/halallens/screener/internal/ledger"
	"github.com/halallens/screener/internal/pipeline"
	"github.com/halallens/screener/internal/screen"
	"github.com/halallens/screener/internal/store"
	"github.com/halallens/screener/pkg/config"
	"github.com/halallens/screener/pkg/database"
	"github.com/halallens/screener/pkg/logger"
	redispkg "github.com/halallens/screener/pkg/redis"
)

// app holds the wired screening stack shared by the CLI commands
type app struct {
	cfg          *config.Config
	log          *logger.Logger
	db           *database.DB
	redis        *redispkg.Client
	securities   contracts.SecurityRepository
	filings      contracts.FilingRepository
	ledger       *ledger.Ledger
	orchestrator *pipeline.Orchestrator
}

// buildApp loads config and wires every pipeline stage against the
// live database. The returned cleanup closes all connections.
func buildApp() (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	if verbose {
		cfg.LogLevel = "debug"
	}
	log := logger.New(cfg)

	db, err := database.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	rdb, err := redispkg.New(cfg)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("connect to redis: %w", err)
	}

	securities := store.NewSecurityRepository(db.Pool)
	filings := store.NewFilingRepository(db.Pool)
	facts := store.NewFactRepository(db.Pool)
	verdicts := ledger.NewRepository(db.Pool)
	alerts := alert.NewRepository(db.Pool)

	ldg := ledger.New(verdicts, alerts, cfg.Screening, log)
	dispatcher := alert.NewDispatcher(alerts, alert.NewHTTPDelivery(cfg.Delivery, log), cfg.Delivery, log)

	orch := pipeline.NewOrchestrator(
		securities,
		filings,
		facts,
		store.NewDocumentStore(cfg.ObjectStore, log),
		extract.NewRegistry(cfg.Screening, log),
		screen.NewEngine(cfg.Screening, log),
		ldg,
		dispatcher,
		cfg.Pipeline,
		log,
	)

	cleanup := func() {
		_ = rdb.Close()
		db.Close()
	}

	return &app{
		cfg:          cfg,
		log:          log,
		db:           db,
		redis:        rdb,
		securities:   securities,
		filings:      filings,
		ledger:       ldg,
		orchestrator: orch,
	}, cleanup, nil
}
