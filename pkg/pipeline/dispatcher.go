package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/rehouzd/estate-pipeline/pkg/aggregate"
	"github.com/rehouzd/estate-pipeline/pkg/bronze"
	"github.com/rehouzd/estate-pipeline/pkg/enrich"
	"github.com/rehouzd/estate-pipeline/pkg/history"
	"github.com/rehouzd/estate-pipeline/pkg/match"
	"github.com/rehouzd/estate-pipeline/pkg/runs"
	"github.com/rehouzd/estate-pipeline/pkg/watermark"
)

// Result is the dispatch outcome. Value carries the generation a
// background stage reserved; foreground stages leave it nil.
type Result struct {
	Value *int64
}

// ParamError reports a missing or malformed trigger parameter. The HTTP
// layer maps it to a client error.
type ParamError struct {
	Param  string
	Reason string
}

func (e *ParamError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("parameter %q %s", e.Param, e.Reason)
	}
	return fmt.Sprintf("missing required parameter %q", e.Param)
}

// Dispatcher routes process keys to stages.
type Dispatcher struct {
	watermarks *watermark.Store
	aggregate  *aggregate.InvestorProfileStage
	ingest     *enrich.ParcelIngestStage
	matcher    *match.PropertyInvestorStage
	comps      *match.ComparablesStage
	history    *history.SaleHistoryStage
	runStore   *runs.RunStore
	runner     *runs.Runner
	logger     *slog.Logger
}

// NewDispatcher builds the stages and wires them behind the process
// keys.
func NewDispatcher(db *gorm.DB, cfg Config, runStore *runs.RunStore, runner *runs.Runner, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	wm := watermark.NewStore(db)
	client := enrich.NewClient(cfg.Parcl)
	matchCfg := match.Config{
		SquareFootageTolerance: cfg.SquareFootageTolerance,
		YearBuiltTolerance:     cfg.YearBuiltTolerance,
	}

	return &Dispatcher{
		watermarks: wm,
		aggregate: aggregate.NewInvestorProfileStage(db, wm, aggregate.Config{
			TrailingMonths: cfg.TrailingPurchaseMonths,
			BucketWidth:    cfg.BucketWidth,
		}, logger),
		ingest: enrich.NewParcelIngestStage(db, wm, client, enrich.StageConfig{
			EventHistoryMonths: cfg.EventHistoryMonths,
		}, logger),
		matcher:  match.NewPropertyInvestorStage(db, wm, matchCfg, logger),
		comps:    match.NewComparablesStage(db, wm, matchCfg, logger),
		history:  history.NewSaleHistoryStage(db, wm, logger),
		runStore: runStore,
		runner:   runner,
		logger:   logger,
	}
}

// Dispatch executes the stage a process key names. An unrecognized key
// is a silent no-op returning a nil-value result; existing schedulers
// probe with keys this deployment may not carry.
func (d *Dispatcher) Dispatch(ctx context.Context, key ProcessKey, params map[string]string) (*Result, error) {
	switch key {
	case KeyAggregateInvestorProfile:
		return d.runStage(ctx, key, d.aggregate)
	case KeyIngestParcelDetail:
		return d.runStage(ctx, key, d.ingest)
	case KeyMatchPropertyToInvestor:
		return d.runStage(ctx, key, d.matcher)
	case KeyBuildPropertyComparables:
		return d.runStage(ctx, key, d.comps)
	case KeyBuildSaleHistory:
		return d.launchSaleHistory(ctx)
	case KeyAdvanceRawWatermark:
		return d.advanceRawWatermark(ctx, params)
	default:
		d.logger.Warn("unrecognized process key", "key", string(key))
		return &Result{}, nil
	}
}

func (d *Dispatcher) runStage(ctx context.Context, key ProcessKey, stage stageRunner) (*Result, error) {
	generation, _, err := stage.Run(ctx)
	if err != nil {
		return nil, err
	}
	d.logger.Info("stage complete", "key", string(key), "generation", generation)
	return &Result{}, nil
}

// launchSaleHistory reserves the generation, records a queued run, and
// launches the composition in the background. The run outlives the
// trigger request, so its context is detached from the request's
// cancellation.
func (d *Dispatcher) launchSaleHistory(ctx context.Context) (*Result, error) {
	generation, err := d.history.AllocateGeneration(ctx)
	if err != nil {
		return nil, err
	}

	run, err := d.runStore.Create(&runs.PipelineRun{
		Stage:      SaleHistoryStageName,
		Generation: generation,
	})
	if err != nil {
		return nil, err
	}

	bg := context.WithoutCancel(ctx)
	d.runner.Launch(bg, run.ID, func(ctx context.Context) (int64, error) {
		return d.history.Run(ctx, generation)
	})

	d.logger.Info("sale history composition launched",
		"runID", run.ID,
		"generation", generation)
	return &Result{Value: &generation}, nil
}

// advanceRawWatermark records an out-of-band load of the propstream
// feed. The loader reports the batch it committed; both parameters are
// required.
func (d *Dispatcher) advanceRawWatermark(ctx context.Context, params map[string]string) (*Result, error) {
	rawTS, ok := params["etl_recorded_gmts"]
	if !ok || rawTS == "" {
		return nil, &ParamError{Param: "etl_recorded_gmts"}
	}
	rawGen, ok := params["etl_nr"]
	if !ok || rawGen == "" {
		return nil, &ParamError{Param: "etl_nr"}
	}

	loadedAt, err := parseTimestamp(rawTS)
	if err != nil {
		return nil, &ParamError{Param: "etl_recorded_gmts", Reason: "is not a timestamp"}
	}
	generation, err := strconv.ParseInt(rawGen, 10, 64)
	if err != nil {
		return nil, &ParamError{Param: "etl_nr", Reason: "is not an integer"}
	}

	if err := d.watermarks.Advance(ctx, bronze.PropertySaleTrackerName, loadedAt, generation); err != nil {
		return nil, err
	}
	d.logger.Info("raw watermark advanced",
		"table", bronze.PropertySaleTrackerName,
		"generation", generation)
	return &Result{}, nil
}

// parseTimestamp accepts RFC 3339 and the loader's space-separated
// legacy format.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", s)
}
