package postprocess

import (
	"context"
	"fmt"
	"log/slog"

	"analemma/internal/config"
	"analemma/internal/logging"
	"analemma/internal/services"
)

// Stage names reported in Result.Failures.
const (
	StageConvert   = "convert"
	StageComposite = "composite"
	StageSync      = "sync"
)

// StageFailure records one stage that did not complete.
type StageFailure struct {
	Stage string `json:"stage"`
	Error string `json:"error"`
}

// Result describes one pipeline run. Empty paths mean the stage failed.
type Result struct {
	TIFFPath      string         `json:"tiff_path,omitempty"`
	CompositePath string         `json:"composite_path,omitempty"`
	Synced        bool           `json:"synced"`
	Failures      []StageFailure `json:"failures,omitempty"`
}

// OK reports whether every stage succeeded.
func (r Result) OK() bool {
	return len(r.Failures) == 0
}

// Pipeline runs the per-capture post-processing stages.
type Pipeline struct {
	basePath      string
	compositePath string
	syncer        *Syncer
	base          *slog.Logger
	logger        *slog.Logger
}

// NewPipeline builds a pipeline from configuration.
func NewPipeline(cfg *config.Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		basePath:      cfg.Storage.BasePath,
		compositePath: cfg.CompositePath(),
		syncer:        NewSyncer(cfg.Sync, cfg.SyncBinary(), cfg.Storage.BasePath, logger),
		base:          logger,
		logger:        logging.NewComponentLogger(logger, "postprocess"),
	}
}

// Syncer exposes the pipeline's remote sync stage.
func (p *Pipeline) Syncer() *Syncer {
	return p.syncer
}

// Run converts fitsPath, rebuilds the composite, and syncs when enabled.
// It never returns an error; stage failures are logged and listed in the result.
func (p *Pipeline) Run(ctx context.Context, fitsPath string) Result {
	ctx = services.WithStage(ctx, "post-processing")
	logger := logging.WithContext(ctx, p.logger)
	var result Result

	p.stage(logger, &result, StageConvert, func() error {
		path, err := ConvertFITSToTIFF(fitsPath)
		result.TIFFPath = path
		return err
	})
	p.stage(logger, &result, StageComposite, func() error {
		path, err := CreateComposite(p.basePath, p.compositePath, logging.WithContext(ctx, p.base))
		result.CompositePath = path
		return err
	})
	if p.syncer.Enabled() {
		p.stage(logger, &result, StageSync, func() error {
			if !p.syncer.Sync(ctx) {
				return fmt.Errorf("sync to %s failed", p.syncer.remote)
			}
			result.Synced = true
			return nil
		})
	}

	logger.Info("post-processing finished",
		logging.String(logging.FieldEventType, "postprocess_complete"),
		logging.Bool("ok", result.OK()),
		logging.Int("failed_stages", len(result.Failures)),
	)
	return result
}

func (p *Pipeline) stage(logger *slog.Logger, result *Result, name string, fn func() error) {
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return fn()
	}()
	if err == nil {
		logger.Debug("stage completed", logging.String("pipeline_stage", name))
		return
	}
	result.Failures = append(result.Failures, StageFailure{Stage: name, Error: err.Error()})
	logging.ErrorWithContext(logger, "post-processing stage failed", "postprocess_stage_failed",
		logging.String("pipeline_stage", name),
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "the captured FITS file is intact; re-run convert or composite later"),
	)
}
