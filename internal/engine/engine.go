// Package engine resolves a full set of module descriptors for one build,
// the way a build orchestrator consumes the evaluator: every module gets
// either a resolved config or its own error, and one module failing never
// stops its siblings.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	modctx "github.com/zakazane/modrules/pkg/context"
	"github.com/zakazane/modrules/pkg/evaluator"
	"github.com/zakazane/modrules/pkg/logger"
	"github.com/zakazane/modrules/pkg/types"
)

// ErrNotResolved marks a module whose resolution never completed
var ErrNotResolved = errors.New("module was not resolved")

// Options configures an Engine
type Options struct {
	// Parallelism bounds concurrent resolutions; <= 0 means unbounded
	Parallelism int
	Logger      logger.Logger
	Metrics     *Metrics
}

// Engine resolves descriptor sets
type Engine struct {
	parallelism int
	logger      logger.Logger
	metrics     *Metrics
}

// New creates an engine
func New(opts Options) *Engine {
	log := opts.Logger
	if log == nil {
		log = logger.NewNopLogger()
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = NewMetrics()
	}
	return &Engine{
		parallelism: opts.Parallelism,
		logger:      log,
		metrics:     metrics,
	}
}

// Metrics returns the engine metrics
func (e *Engine) Metrics() *Metrics {
	return e.metrics
}

// ModuleResult holds the outcome for one module. Exactly one of Config and
// Err is set.
type ModuleResult struct {
	Module string                      `json:"module" yaml:"module"`
	Config *types.ResolvedModuleConfig `json:"config,omitempty" yaml:"config,omitempty"`
	Err    error                       `json:"-" yaml:"-"`
}

// Report is the outcome of one ResolveAll call
type Report struct {
	RunID     string             `json:"runId" yaml:"runId"`
	Context   types.BuildContext `json:"context" yaml:"context"`
	Results   []ModuleResult     `json:"results" yaml:"results"`
	StartedAt time.Time          `json:"startedAt" yaml:"startedAt"`
	Duration  time.Duration      `json:"duration" yaml:"duration"`
}

// Failed returns the results that carry an error
func (r *Report) Failed() []ModuleResult {
	var out []ModuleResult
	for _, res := range r.Results {
		if res.Err != nil {
			out = append(out, res)
		}
	}
	return out
}

// Warnings returns every configuration warning, in module order
func (r *Report) Warnings() []types.ConfigurationWarning {
	var out []types.ConfigurationWarning
	for _, res := range r.Results {
		if res.Config != nil {
			out = append(out, res.Config.Warnings...)
		}
	}
	return out
}

// Err joins the errors of every failed module, or returns nil
func (r *Report) Err() error {
	var errs []error
	for _, res := range r.Failed() {
		errs = append(errs, res.Err)
	}
	return errors.Join(errs...)
}

// Lookup returns the result for a module
func (r *Report) Lookup(module string) (ModuleResult, bool) {
	for _, res := range r.Results {
		if res.Module == module {
			return res, true
		}
	}
	return ModuleResult{}, false
}

// ResolveAll resolves every descriptor for bctx. Results keep descriptor
// order. The run ID is taken from ctx when present. The returned error is
// non-nil only when ctx ended before every module was resolved; module
// failures are reported in the Report.
func (e *Engine) ResolveAll(ctx context.Context, descriptors []types.ModuleDescriptor, bctx types.BuildContext) (*Report, error) {
	runID := modctx.GetRunID(ctx)
	if runID == "" {
		runID = modctx.GenerateRunID()
		ctx = modctx.WithRunID(ctx, runID)
	}

	report := &Report{
		RunID:     runID,
		Context:   bctx,
		Results:   make([]ModuleResult, len(descriptors)),
		StartedAt: time.Now(),
	}

	fields := []logger.Field{
		logger.WithField("modules", len(descriptors)),
		logger.WithField("editor", bctx.IsEditorBuild),
		logger.WithField("engine", bctx.HostVersion.String()),
	}
	for k, v := range modctx.TracingFields(ctx) {
		fields = append(fields, logger.WithField(k, v))
	}
	e.logger.Debug("Resolving modules", fields...)

	group := NewSafeGroup(e.logger, e.parallelism)
	for i := range descriptors {
		i := i
		report.Results[i].Module = descriptors[i].Name
		group.Go(func() error {
			if err := ctx.Err(); err != nil {
				report.Results[i].Err = fmt.Errorf("module %s: %w", descriptors[i].Name, err)
				return nil
			}
			cfg, err := evaluator.ResolveDescriptor(descriptors[i], bctx)
			report.Results[i].Config = cfg
			report.Results[i].Err = err
			return nil
		})
	}
	waitErr := group.Wait()

	report.Duration = time.Since(report.StartedAt)

	for i := range report.Results {
		res := &report.Results[i]
		if res.Config == nil && res.Err == nil {
			res.Err = fmt.Errorf("module %s: %w", res.Module, ErrNotResolved)
			if waitErr != nil {
				res.Err = fmt.Errorf("module %s: %w: %w", res.Module, ErrNotResolved, waitErr)
			}
		}
		e.logResult(*res)
	}

	e.metrics.observe(report)

	if failed := len(report.Failed()); failed > 0 {
		e.logger.Error("Module configuration failed",
			logger.WithField("failed", failed),
			logger.WithField("modules", len(report.Results)))
	} else {
		e.logger.Success("All modules resolved",
			logger.WithField("modules", len(report.Results)),
			logger.WithField("duration", report.Duration))
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		for _, res := range report.Results {
			if errors.Is(res.Err, ctxErr) {
				return report, ctxErr
			}
		}
	}
	return report, nil
}

func (e *Engine) logResult(res ModuleResult) {
	log := e.logger.WithModule(res.Module)
	if res.Err != nil {
		log.Error("Resolution failed", logger.WithField("error", res.Err))
		return
	}
	for _, w := range res.Config.Warnings {
		log.Warn(w.Message, logger.WithField("dependency", w.Dependency))
	}
	log.Debug("Resolved",
		logger.WithField("public", len(res.Config.PublicDependencies)),
		logger.WithField("private", len(res.Config.PrivateDependencies)),
		logger.WithField("definitions", len(res.Config.Definitions)))
}
