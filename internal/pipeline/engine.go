// Package pipeline runs the selected stages for each configured year,
// recording every stage in the run log and the year's manifest.
package pipeline

import (
	"context"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/mrio-cli/internal/config"
	"github.com/sells-group/mrio-cli/internal/faostat"
	"github.com/sells-group/mrio-cli/internal/flowfile"
	"github.com/sells-group/mrio-cli/internal/model"
	"github.com/sells-group/mrio-cli/internal/store"
)

// Engine orchestrates stages over years.
type Engine struct {
	cfg     config.MrioConfig
	store   store.Store
	persist bool
	loader  *faostat.Loader
	log     *zap.Logger
}

// New creates an Engine. st may be nil, in which case runs are only
// recorded in the manifests.
func New(cfg config.MrioConfig, st store.Store, persist bool) *Engine {
	return &Engine{
		cfg:     cfg,
		store:   st,
		persist: persist && st != nil,
		loader:  faostat.NewLoader(cfg.InputDir),
		log:     zap.L().With(zap.String("component", "pipeline")),
	}
}

// StageResult is one stage's outcome within a year.
type StageResult struct {
	Stage    Stage
	Status   model.StageStatus
	Rows     int64
	File     string
	Duration time.Duration
	Err      error
}

// YearResult is the outcome of one year.
type YearResult struct {
	Year   int
	RunID  string
	Status model.RunStatus
	Stages []StageResult
	Err    error
}

type yearRun struct {
	year     int
	runID    string
	opts     model.Options
	manifest *flowfile.Manifest
}

// Run executes stages for every year in order. A failing year is recorded
// and the next year proceeds; only context cancellation stops the run.
func (e *Engine) Run(ctx context.Context, years []int, stages []Stage) ([]YearResult, error) {
	results := make([]YearResult, 0, len(years))
	for _, year := range years {
		if err := ctx.Err(); err != nil {
			return results, eris.Wrap(err, "pipeline: run")
		}
		results = append(results, e.RunYear(ctx, year, stages))
	}
	return results, nil
}

// RunYear executes stages for one year. After the first failed stage the
// remaining stages are marked skipped.
func (e *Engine) RunYear(ctx context.Context, year int, stages []Stage) YearResult {
	opts := e.cfg.Options(year)
	log := e.log.With(zap.Int("year", year), zap.Bool("historic", opts.Historic))
	log.Info("pipeline: starting year", zap.Int("stages", len(stages)))

	res := YearResult{Year: year, Status: model.RunStatusRunning}
	y := &yearRun{year: year, opts: opts}

	if e.store != nil {
		run, err := e.store.CreateRun(ctx, year, opts)
		if err != nil {
			res.Status = model.RunStatusFailed
			res.Err = eris.Wrap(err, "pipeline: create run")
			return res
		}
		y.runID = run.ID
	} else {
		y.runID = uuid.New().String()
	}
	res.RunID = y.runID

	manifest, err := flowfile.ReadManifest(e.cfg.ResultsDir, year)
	if err != nil {
		log.Warn("pipeline: unreadable manifest replaced", zap.Error(err))
		manifest = &flowfile.Manifest{Year: year}
	}
	manifest.RunID = y.runID
	manifest.Options = opts
	y.manifest = manifest

	for _, stage := range stages {
		if res.Err != nil {
			sr := StageResult{Stage: stage, Status: model.StageStatusSkipped}
			e.record(ctx, y, sr)
			res.Stages = append(res.Stages, sr)
			continue
		}
		sr := e.trackStage(ctx, y, stage)
		res.Stages = append(res.Stages, sr)
		if sr.Err != nil {
			res.Err = sr.Err
		}
	}
	if n := e.loader.Purge(); n > 0 {
		log.Debug("pipeline: dropped year tables", zap.Int("tables", n))
	}

	res.Status = model.RunStatusComplete
	errMsg := ""
	if res.Err != nil {
		res.Status = model.RunStatusFailed
		errMsg = res.Err.Error()
	}
	if e.store != nil {
		if err := e.store.FinishRun(ctx, y.runID, res.Status, errMsg); err != nil {
			log.Warn("pipeline: failed to finish run", zap.Error(err))
		}
	}

	manifest.GeneratedAt = time.Now().UTC()
	if err := flowfile.WriteManifest(e.cfg.ResultsDir, manifest); err != nil {
		log.Warn("pipeline: failed to write manifest", zap.Error(err))
	}

	if res.Err != nil {
		log.Error("pipeline: year failed", zap.String("run_id", y.runID), zap.Error(res.Err))
	} else {
		log.Info("pipeline: year complete", zap.String("run_id", y.runID))
	}
	return res
}

// trackStage runs one stage and records its start, outcome and duration.
func (e *Engine) trackStage(ctx context.Context, y *yearRun, stage Stage) StageResult {
	log := e.log.With(zap.Int("year", y.year), zap.String("stage", string(stage)))

	var stageID string
	if e.store != nil {
		st, err := e.store.StartStage(ctx, y.runID, string(stage))
		if err != nil {
			log.Warn("pipeline: failed to create stage", zap.Error(err))
		} else {
			stageID = st.ID
		}
	}

	start := time.Now()
	out, err := e.stageFunc(stage)(ctx, y)
	sr := StageResult{
		Stage:    stage,
		Rows:     out.rows,
		File:     out.file,
		Duration: time.Since(start),
	}
	if err != nil {
		sr.Status = model.StageStatusFailed
		sr.Err = eris.Wrapf(err, "pipeline: stage %s year %d", stage, y.year)
		log.Error("pipeline: stage failed",
			zap.Int64("duration_ms", sr.Duration.Milliseconds()),
			zap.Error(err),
		)
	} else {
		sr.Status = model.StageStatusComplete
		log.Info("pipeline: stage complete",
			zap.Int64("duration_ms", sr.Duration.Milliseconds()),
			zap.Int64("rows", sr.Rows),
		)
	}

	if stageID != "" {
		errMsg := ""
		if sr.Err != nil {
			errMsg = sr.Err.Error()
		}
		if err := e.store.FinishStage(ctx, stageID, sr.Status, sr.Rows, errMsg); err != nil {
			log.Warn("pipeline: failed to finish stage", zap.Error(err))
		}
	}
	e.record(ctx, y, sr)
	return sr
}

// record stores the stage outcome in the manifest, and in the run log for
// stages that never started.
func (e *Engine) record(ctx context.Context, y *yearRun, sr StageResult) {
	file := ""
	if sr.File != "" {
		file = filepath.Base(sr.File)
	}
	y.manifest.SetStage(flowfile.StageManifest{
		Name:   string(sr.Stage),
		Status: sr.Status,
		Rows:   sr.Rows,
		File:   file,
	})
	if sr.Status != model.StageStatusSkipped || e.store == nil {
		return
	}
	st, err := e.store.StartStage(ctx, y.runID, string(sr.Stage))
	if err != nil {
		e.log.Warn("pipeline: failed to record skipped stage", zap.String("stage", string(sr.Stage)), zap.Error(err))
		return
	}
	if err := e.store.FinishStage(ctx, st.ID, model.StageStatusSkipped, 0, ""); err != nil {
		e.log.Warn("pipeline: failed to record skipped stage", zap.String("stage", string(sr.Stage)), zap.Error(err))
	}
}

func (e *Engine) stageFunc(s Stage) func(context.Context, *yearRun) (stageOutput, error) {
	switch s {
	case StageMatrix:
		return e.runMatrix
	case StageFeed:
		return e.runFeed
	case StageProvenance:
		return e.runProvenance
	default:
		return func(context.Context, *yearRun) (stageOutput, error) {
			return stageOutput{}, eris.Wrapf(ErrUnknownStage, "pipeline: %q", s)
		}
	}
}
