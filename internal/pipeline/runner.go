// Package pipeline drives one end-to-end run: validate raw batches, merge
// accepted rows into the curated store, recompute features for the affected
// range, score the cross-section and regenerate positions.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mosaicquant/mosaic/internal/curation"
	"github.com/mosaicquant/mosaic/internal/domain"
	"github.com/mosaicquant/mosaic/internal/features"
	"github.com/mosaicquant/mosaic/internal/marts"
	"github.com/mosaicquant/mosaic/internal/signals"
	"github.com/mosaicquant/mosaic/internal/universe"
)

// Ingestor supplies the raw batches for one run date. Implementations own
// transport and file-format concerns; the pipeline only sees RawBatch.
type Ingestor interface {
	FetchPrices(ctx context.Context, runDate string) (curation.RawBatch, error)
	FetchFundamentals(ctx context.Context, runDate string) (curation.RawBatch, error)
}

// RunReport summarizes one pipeline run.
type RunReport struct {
	RunDate              string        `json:"run_date"`
	PricesAccepted       int           `json:"prices_accepted"`
	PricesRejected       int           `json:"prices_rejected"`
	FundamentalsAccepted int           `json:"fundamentals_accepted"`
	FundamentalsRejected int           `json:"fundamentals_rejected"`
	FeatureRows          int           `json:"feature_rows"`
	Scored               int           `json:"scored"`
	Positions            int           `json:"positions"`
	Duration             time.Duration `json:"duration"`
}

// Runner wires the stages together. Stages run strictly in order; a failed
// stage aborts the run and leaves earlier stages' committed partitions in
// place (each partition write is individually atomic).
type Runner struct {
	ingestor   Ingestor
	validator  *curation.Validator
	merger     *curation.Merger
	curated    *curation.Repository
	quarantine *curation.QuarantineStore
	engine     *features.Engine
	scorer     *signals.Scorer
	generator  *signals.Generator
	marts      *marts.Repository
	members    []universe.Member
	log        zerolog.Logger
}

// Config collects the runner's collaborators.
type Config struct {
	Ingestor   Ingestor
	Validator  *curation.Validator
	Merger     *curation.Merger
	Curated    *curation.Repository
	Quarantine *curation.QuarantineStore
	Engine     *features.Engine
	Scorer     *signals.Scorer
	Generator  *signals.Generator
	Marts      *marts.Repository
	Members    []universe.Member
}

// NewRunner creates a new pipeline runner
func NewRunner(cfg Config, log zerolog.Logger) *Runner {
	return &Runner{
		ingestor:   cfg.Ingestor,
		validator:  cfg.Validator,
		merger:     cfg.Merger,
		curated:    cfg.Curated,
		quarantine: cfg.Quarantine,
		engine:     cfg.Engine,
		scorer:     cfg.Scorer,
		generator:  cfg.Generator,
		marts:      cfg.Marts,
		members:    cfg.Members,
		log:        log.With().Str("component", "pipeline").Logger(),
	}
}

// Run executes one full pipeline pass for runDate.
func (r *Runner) Run(ctx context.Context, runDate string) (*RunReport, error) {
	if _, err := time.Parse(domain.DateLayout, runDate); err != nil {
		return nil, fmt.Errorf("invalid run date %q: %w", runDate, err)
	}

	start := time.Now()
	report := &RunReport{RunDate: runDate}
	r.log.Info().Str("run_date", runDate).Msg("Pipeline run starting")

	if err := r.curate(ctx, runDate, report); err != nil {
		return nil, err
	}
	if err := r.derive(ctx, runDate, report); err != nil {
		return nil, err
	}

	report.Duration = time.Since(start)
	r.log.Info().
		Str("run_date", runDate).
		Int("prices_accepted", report.PricesAccepted).
		Int("prices_rejected", report.PricesRejected).
		Int("positions", report.Positions).
		Dur("duration", report.Duration).
		Msg("Pipeline run complete")
	return report, nil
}

func (r *Runner) curate(ctx context.Context, runDate string, report *RunReport) error {
	priceBatch, err := r.ingestor.FetchPrices(ctx, runDate)
	if err != nil {
		return fmt.Errorf("failed to fetch price batch: %w", err)
	}
	if len(priceBatch.Rows) > 0 {
		prices, priceResult, err := r.validator.ValidatePrices(priceBatch)
		if err != nil {
			return fmt.Errorf("price batch rejected: %w", err)
		}
		if err := r.quarantine.Save(priceResult); err != nil {
			return fmt.Errorf("failed to quarantine price rejections: %w", err)
		}
		if err := r.merger.MergePrices(prices); err != nil {
			return err
		}
		report.PricesAccepted = len(prices)
		report.PricesRejected = len(priceResult.Rejected)
	}

	fundBatch, err := r.ingestor.FetchFundamentals(ctx, runDate)
	if err != nil {
		return fmt.Errorf("failed to fetch fundamentals batch: %w", err)
	}
	if len(fundBatch.Rows) == 0 {
		return nil
	}
	periods, err := r.curated.GetPeriodIndex()
	if err != nil {
		return fmt.Errorf("failed to load period index: %w", err)
	}
	funds, fundResult, err := r.validator.ValidateFundamentals(fundBatch, periods)
	if err != nil {
		return fmt.Errorf("fundamentals batch rejected: %w", err)
	}
	if err := r.quarantine.Save(fundResult); err != nil {
		return fmt.Errorf("failed to quarantine fundamentals rejections: %w", err)
	}
	if err := r.merger.MergeFundamentals(funds); err != nil {
		return err
	}
	report.FundamentalsAccepted = len(funds)
	report.FundamentalsRejected = len(fundResult.Rejected)
	return nil
}

func (r *Runner) derive(ctx context.Context, runDate string, report *RunReport) error {
	rows, err := r.engine.Compute(ctx, runDate, runDate)
	if err != nil {
		return fmt.Errorf("feature computation failed: %w", err)
	}
	if err := r.marts.ReplaceFeatures(runDate, rows); err != nil {
		return err
	}
	report.FeatureRows = len(rows)

	snap := universe.NewSnapshot(runDate, r.members)
	scores := r.scorer.Score(runDate, rows, snap)
	if err := r.marts.ReplaceScores(runDate, scores); err != nil {
		return err
	}
	report.Scored = len(scores)

	positions := r.generator.Generate(runDate, scores, snap)
	if err := r.marts.ReplacePositions(runDate, positions); err != nil {
		return err
	}
	report.Positions = len(positions)
	return nil
}
