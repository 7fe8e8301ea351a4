// Package main is the entry point for the Mosaic curation and signal engine.
// The service ingests raw price and fundamentals batches, curates them into
// partition-safe SQLite tables, derives rolling-window features and
// cross-sectional signal scores, and serves the resulting marts over HTTP.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/mosaicquant/mosaic/internal/config"
	"github.com/mosaicquant/mosaic/internal/curation"
	"github.com/mosaicquant/mosaic/internal/database"
	"github.com/mosaicquant/mosaic/internal/features"
	"github.com/mosaicquant/mosaic/internal/marts"
	"github.com/mosaicquant/mosaic/internal/pipeline"
	"github.com/mosaicquant/mosaic/internal/reliability"
	"github.com/mosaicquant/mosaic/internal/scheduler"
	"github.com/mosaicquant/mosaic/internal/server"
	"github.com/mosaicquant/mosaic/internal/signals"
	"github.com/mosaicquant/mosaic/internal/storage"
	"github.com/mosaicquant/mosaic/internal/universe"
	"github.com/mosaicquant/mosaic/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting Mosaic")

	// Universe and calendar are loaded once at startup. Membership edits
	// require a restart, matching the run-level immutability of snapshots.
	members, err := universe.NewLoader(cfg.UniverseFile, log).Load()
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.UniverseFile).Msg("Failed to load universe")
	}
	log.Info().Int("members", len(members)).Msg("Universe loaded")

	var calendar *universe.TradingCalendar
	if cfg.HolidaysFile != "" {
		calendar, err = universe.LoadTradingCalendar(cfg.HolidaysFile)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.HolidaysFile).Msg("Failed to load holiday calendar")
		}
	} else {
		calendar = universe.NewTradingCalendar(nil)
	}

	curatedDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "curated.db"),
		Profile: database.ProfileCurated,
		Name:    "curated",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open curated database")
	}
	defer curatedDB.Close()

	martsDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "marts.db"),
		Profile: database.ProfileMarts,
		Name:    "marts",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open marts database")
	}
	defer martsDB.Close()

	for name, db := range map[string]*database.DB{"curated": curatedDB, "marts": martsDB} {
		if err := db.Migrate(); err != nil {
			log.Fatal().Err(err).Str("database", name).Msg("Migration failed")
		}
	}

	curatedRepo := curation.NewRepository(curatedDB.Conn(), log)
	quarantine := curation.NewQuarantineStore(curatedDB.Conn(), log)
	martsRepo := marts.NewRepository(martsDB.Conn(), log)

	runner := pipeline.NewRunner(pipeline.Config{
		Ingestor:   pipeline.NewFileIngestor(filepath.Join(cfg.DataDir, "incoming"), log),
		Validator:  curation.NewValidator(calendar, universe.NewIndex(members), log),
		Merger:     curation.NewMerger(curatedRepo, log),
		Curated:    curatedRepo,
		Quarantine: quarantine,
		Engine:     features.NewEngine(curatedRepo, runtime.NumCPU(), log),
		Scorer:     signals.NewScorer(cfg.Signals.Weights, log),
		Generator:  signals.NewGenerator(cfg.Signals.NPerSide, cfg.Signals.SectorCap, log),
		Marts:      martsRepo,
		Members:    members,
	}, log)

	srv := server.New(server.Config{
		Log:        log,
		Cfg:        cfg,
		CuratedDB:  curatedDB,
		MartsDB:    martsDB,
		Marts:      martsRepo,
		Curated:    curatedRepo,
		Quarantine: quarantine,
		Runner:     runner,
		Port:       cfg.Port,
		DevMode:    cfg.DevMode,
	})

	// Maintenance jobs keep the SQLite files healthy; they never touch
	// pipeline semantics.
	sched := scheduler.New(log)
	databases := map[string]*database.DB{"curated": curatedDB, "marts": martsDB}
	backupDir := filepath.Join(cfg.DataDir, "backups")

	if err := sched.AddJob("0 0 2 * * *", reliability.NewMaintenanceJob(databases, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register maintenance job")
	}
	if err := sched.AddJob("0 30 2 * * *", reliability.NewBackupJob(databases, backupDir, 7, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register backup job")
	}

	if cfg.Storage.Enabled {
		syncClient, err := storage.New(context.Background(), cfg.Storage, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create snapshot sync client")
		}
		job := storage.NewPushJob(syncClient, backupDir, log)
		if err := sched.AddJob("0 0 3 * * *", job); err != nil {
			log.Fatal().Err(err).Msg("Failed to register snapshot push job")
		}
	}

	sched.Start()
	defer sched.Stop()

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
