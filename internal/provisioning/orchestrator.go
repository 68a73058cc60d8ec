package provisioning

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/plexica/plexica-sub002/internal/domain"
)

// Orchestrator executes steps in declaration order and unwinds completed
// steps when one fails. It never touches tenant storage; reflecting the
// result into the tenant row is the caller's job.
type Orchestrator struct {
	logger              *zap.Logger
	stepTimeout         time.Duration
	compensationTimeout time.Duration
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithStepTimeout bounds each forward action. Zero means no bound.
func WithStepTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.stepTimeout = d }
}

// WithCompensationTimeout bounds each compensating action. Zero means no bound.
func WithCompensationTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.compensationTimeout = d }
}

// NewOrchestrator creates an orchestrator that logs to logger.
func NewOrchestrator(logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		logger:              logger,
		compensationTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes steps for the tenant described by pc.
//
// A cancelled or expired ctx is a step failure like any other: the run stops
// and completed steps are compensated. Compensations run on a context that is
// detached from ctx's cancellation so that they still reach the external systems.
func (o *Orchestrator) Run(ctx context.Context, pc *Context, steps []Step) Result {
	start := time.Now()
	log := o.logger.With(
		zap.String("tenant_id", pc.TenantID),
		zap.String("tenant_slug", pc.Slug),
	)

	res := Result{Completed: []string{}}
	records := make([]StepRecord, 0, len(steps))

	for _, step := range steps {
		name := step.Name()

		if err := ctx.Err(); err != nil {
			o.fail(ctx, pc, records, &res, name, err, log)
			res.Duration = time.Since(start)
			return res
		}

		log.Debug("provisioning step started", zap.String("step", name))
		result, err := o.forward(ctx, pc, step)
		if err != nil {
			if isOptional(step) {
				log.Warn("optional provisioning step failed", zap.String("step", name), zap.Error(err))
				res.Warnings = append(res.Warnings, Warning{Step: name, Err: err})
				continue
			}
			o.fail(ctx, pc, records, &res, name, err, log)
			res.Duration = time.Since(start)
			return res
		}

		records = append(records, StepRecord{Name: name, Result: result, step: step})
		res.Completed = append(res.Completed, name)
		log.Debug("provisioning step completed", zap.String("step", name))
	}

	res.Success = true
	res.Duration = time.Since(start)
	log.Info("provisioning completed",
		zap.Strings("steps", res.Completed),
		zap.Int("warnings", len(res.Warnings)),
		zap.Duration("duration", res.Duration),
	)
	return res
}

func (o *Orchestrator) forward(ctx context.Context, pc *Context, step Step) (result any, err error) {
	if o.stepTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.stepTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			result, err = nil, fmt.Errorf("step panicked: %v", r)
		}
	}()

	return step.Forward(ctx, pc)
}

func (o *Orchestrator) fail(ctx context.Context, pc *Context, records []StepRecord, res *Result, name string, err error, log *zap.Logger) {
	log.Error("provisioning step failed, rolling back",
		zap.String("step", name),
		zap.Int("completed", len(records)),
		zap.Error(err),
	)
	res.FailedStep = name
	res.Err = err
	o.compensate(ctx, pc, records, res, log)
}

// compensate undoes records in reverse order. A failing compensation is
// collected and the remaining records are still compensated.
func (o *Orchestrator) compensate(ctx context.Context, pc *Context, records []StepRecord, res *Result, log *zap.Logger) {
	base := context.WithoutCancel(ctx)

	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if err := o.compensateOne(base, pc, rec); err != nil {
			log.Error("compensation failed", zap.String("step", rec.Name), zap.Error(err))
			res.CompensationErrors = multierr.Append(res.CompensationErrors,
				&domain.CompensationError{Step: rec.Name, Cause: err})
			continue
		}
		res.Compensated = append(res.Compensated, rec.Name)
		log.Info("step compensated", zap.String("step", rec.Name))
	}
}

func (o *Orchestrator) compensateOne(ctx context.Context, pc *Context, rec StepRecord) (err error) {
	if o.compensationTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.compensationTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("compensation panicked: %v", r)
		}
	}()

	return rec.step.Compensate(ctx, pc, rec.Result)
}

// Runner binds an orchestrator to a fixed list of steps.
type Runner struct {
	orchestrator *Orchestrator
	steps        []Step
}

// NewRunner returns a Runner executing steps with o.
func NewRunner(o *Orchestrator, steps []Step) *Runner {
	return &Runner{orchestrator: o, steps: steps}
}

// Provision runs the bound steps for pc.
func (r *Runner) Provision(ctx context.Context, pc *Context) Result {
	return r.orchestrator.Run(ctx, pc, r.steps)
}
