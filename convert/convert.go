// Package convert renders batches of matrix files to images on a worker pool.
package convert

import (
	"context"
	"errors"
	"fmt"
	"image"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"thermal-render/frame"
	"thermal-render/imaging"
	"thermal-render/metrics"
	"thermal-render/paths"
	"thermal-render/selection"
	"thermal-render/storage"
)

// DefaultWorkers is the pool size when Options.Workers is 0.
const DefaultWorkers = 7

// ErrSkipped is returned by a Renderer that declines a frame. The job is
// counted as skipped and nothing is written.
var ErrSkipped = errors.New("frame skipped")

// Renderer turns a frame into a raster. frame.Mode and frame.ModeRenderer
// implement it.
type Renderer interface {
	Name() string
	Render(f *frame.Frame) (image.Image, error)
}

// Encoder serializes a raster. imaging.Encoder implements it.
type Encoder interface {
	Encode(img image.Image) ([]byte, error)
	Ext() string
	ContentType() string
}

// Operation selects what a batch does with its inputs.
type Operation int

const (
	// Bulk renders every input.
	Bulk Operation = iota
	// SelectMaxSpread renders only the input with the widest temperature
	// spread.
	SelectMaxSpread
)

func (o Operation) String() string {
	switch o {
	case Bulk:
		return "bulk"
	case SelectMaxSpread:
		return "select"
	default:
		return fmt.Sprintf("Operation(%d)", int(o))
	}
}

// ParseOperation parses "bulk" or "select".
func ParseOperation(s string) (Operation, error) {
	switch s {
	case "bulk", "":
		return Bulk, nil
	case "select", "max-spread":
		return SelectMaxSpread, nil
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

type Options struct {
	Logger *zap.Logger
	// Workers is the pool size. 0 means DefaultWorkers.
	Workers  int
	Renderer Renderer
	// Encoder defaults to PNG.
	Encoder Encoder
	Sink    storage.Sink
	// Deriver defaults to writing next to the input.
	Deriver paths.Deriver
	// Loader defaults to frame.LoadFile.
	Loader selection.Loader

	Metrics     *metrics.Metrics
	Performance *metrics.PerformanceMetrics
	Tracer      trace.Tracer
}

type Converter struct {
	opts Options
}

// New validates opts and fills in defaults.
func New(opts Options) (*Converter, error) {
	if opts.Workers < 0 {
		return nil, fmt.Errorf("invalid worker count %d", opts.Workers)
	}
	if opts.Workers == 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.Renderer == nil {
		return nil, errors.New("no renderer")
	}
	if opts.Sink == nil {
		return nil, errors.New("no sink")
	}
	if opts.Encoder == nil {
		opts.Encoder = imaging.Encoder{}
	}
	if v, ok := opts.Encoder.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.Deriver == nil {
		opts.Deriver = paths.Rule{}
	}
	if v, ok := opts.Deriver.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}
	if opts.Loader == nil {
		opts.Loader = frame.LoadFile
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("thermal-render/convert")
	}
	return &Converter{opts: opts}, nil
}

// Workers returns the pool size in use.
func (c *Converter) Workers() int { return c.opts.Workers }

// Batch is one unit of work.
type Batch struct {
	Inputs    []string
	Operation Operation
}

// Job is one input and the output it is written to.
type Job struct {
	Index  int
	Input  string
	Output string
}

type Status int

const (
	Written Status = iota
	Failed
	Skipped
)

func (s Status) String() string {
	switch s {
	case Written:
		return metrics.StatusWritten
	case Failed:
		return metrics.StatusFailed
	case Skipped:
		return metrics.StatusSkipped
	default:
		return fmt.Sprintf("Status(%d)", int(s))
	}
}

// Outcome is the result of one job.
type Outcome struct {
	Job
	Status   Status
	Bytes    int
	Err      error
	Duration time.Duration
}

// Summary describes a finished batch.
type Summary struct {
	ID        string
	Operation Operation
	Total     int
	Written   int
	Failed    int
	Skipped   int
	Bytes     int64
	Duration  time.Duration
	// Outcomes holds one entry per rendered job, in input order. In selection
	// mode that is only the winner.
	Outcomes []Outcome
	// Selected and Rejected are set in selection mode.
	Selected *selection.Spread
	Rejected []selection.Failure
}

// Err summarizes failed jobs and rejected candidates, or returns nil when
// there were none.
func (s *Summary) Err() error {
	var errs []error
	if s.Failed > 0 {
		errs = append(errs, s.failedErr())
	}
	if len(s.Rejected) > 0 {
		r := s.Rejected[0]
		errs = append(errs, fmt.Errorf("%d of %d candidates rejected, first %s: %w", len(s.Rejected), s.Total, r.Source, r.Err))
	}
	return errors.Join(errs...)
}

func (s *Summary) failedErr() error {
	for _, o := range s.Outcomes {
		if o.Status == Failed {
			return fmt.Errorf("%d of %d jobs failed, first %s: %w", s.Failed, len(s.Outcomes), o.Input, o.Err)
		}
	}
	return fmt.Errorf("%d jobs failed", s.Failed)
}

func (s *Summary) add(o Outcome) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case Written:
		s.Written++
		s.Bytes += int64(o.Bytes)
	case Failed:
		s.Failed++
	case Skipped:
		s.Skipped++
	}
}

// Run executes a batch. Per-file failures are recorded in the summary and
// never abort the batch; the returned error is reserved for conditions that
// stop it from starting or, in selection mode, from having a winner.
func (c *Converter) Run(ctx context.Context, b Batch) (*Summary, error) {
	id := uuid.NewString()
	logger := c.opts.Logger.With(
		zap.String("batch", id),
		zap.String("operation", b.Operation.String()),
		zap.String("mode", c.opts.Renderer.Name()),
	)
	ctx, span := c.opts.Tracer.Start(ctx, "convert.Run", trace.WithAttributes(
		attribute.String("batch.id", id),
		attribute.String("batch.operation", b.Operation.String()),
		attribute.Int("batch.inputs", len(b.Inputs)),
	))
	defer span.End()
	defer metrics.TimeBatch(b.Operation.String(), c.opts.Performance)()

	jobs, err := c.plan(b.Inputs, b.Operation == Bulk)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "plan")
		return nil, err
	}

	start := time.Now()
	summary := &Summary{ID: id, Operation: b.Operation, Total: len(jobs)}
	logger.Info("batch started", zap.Int("inputs", len(jobs)), zap.Int("workers", c.opts.Workers))

	switch b.Operation {
	case Bulk:
		c.runBulk(ctx, logger, jobs, summary)
	case SelectMaxSpread:
		if err := c.runSelect(ctx, logger, jobs, summary); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "select")
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown operation %d", int(b.Operation))
	}

	summary.Duration = time.Since(start)
	logger.Info("batch finished",
		zap.Int("written", summary.Written),
		zap.Int("failed", summary.Failed),
		zap.Int("skipped", summary.Skipped),
		zap.Int("rejected", len(summary.Rejected)),
		zap.String("bytes", humanize.Bytes(uint64(summary.Bytes))),
		zap.Duration("duration", summary.Duration),
	)
	if summary.Failed > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d failed", summary.Failed))
	}
	return summary, nil
}

// plan derives every output path up front so the mapping does not depend on
// completion order. With unique set, two inputs may not share an output.
func (c *Converter) plan(inputs []string, unique bool) ([]Job, error) {
	jobs := make([]Job, len(inputs))
	seen := make(map[string]int, len(inputs))
	ext := c.opts.Encoder.Ext()
	for i, in := range inputs {
		out, err := c.opts.Deriver.Derive(in, ext)
		if err != nil {
			return nil, fmt.Errorf("output path for %s: %w", in, err)
		}
		if j, dup := seen[out]; dup && unique {
			return nil, fmt.Errorf("%s and %s both map to %s", inputs[j], in, out)
		}
		seen[out] = i
		jobs[i] = Job{Index: i, Input: in, Output: out}
	}
	return jobs, nil
}

// progress logs roughly every tenth of the batch, and always the last item.
func (c *Converter) progress(logger *zap.Logger) func(completed, total int) {
	return func(completed, total int) {
		step := max(1, total/10)
		if completed == total || completed%step == 0 {
			logger.Info("progress", zap.Int("completed", completed), zap.Int("total", total))
		}
	}
}

func (c *Converter) runBulk(ctx context.Context, logger *zap.Logger, jobs []Job, summary *Summary) {
	outcomes := runPool(ctx, c.opts.Workers, len(jobs),
		func(ctx context.Context, i int) Outcome {
			return c.process(ctx, logger, jobs[i], nil)
		},
		func(i int, err error) Outcome {
			return c.record(logger, Outcome{Job: jobs[i], Status: Failed, Err: err})
		},
		c.progress(logger),
	)
	for _, o := range outcomes {
		summary.add(o)
	}
}

type candidate struct {
	spread selection.Spread
	err    error
}

func (c *Converter) runSelect(ctx context.Context, logger *zap.Logger, jobs []Job, summary *Summary) error {
	if len(jobs) == 0 {
		return selection.ErrEmptyInput
	}
	var (
		best   selection.Spread
		winner *frame.Frame
		err    error
	)
	if c.opts.Workers == 1 {
		best, winner, err = c.selectSequential(ctx, logger, jobs, summary)
	} else {
		best, err = c.selectConcurrent(ctx, logger, jobs, summary)
	}
	if err != nil {
		return err
	}
	summary.Selected = &best
	c.opts.Metrics.Selected(c.opts.Renderer.Name(), best.Value)
	logger.Info("selected frame",
		zap.String("path", best.Source),
		zap.Int("index", best.Index),
		zap.Float64("spread", best.Value),
		zap.Int("rejected", len(summary.Rejected)),
	)

	summary.add(c.process(ctx, logger, jobs[best.Index], winner))
	return nil
}

// selectConcurrent loads candidates on the worker pool and keeps only their
// spreads, so the winner is loaded again for rendering.
func (c *Converter) selectConcurrent(ctx context.Context, logger *zap.Logger, jobs []Job, summary *Summary) (selection.Spread, error) {
	candidates := runPool(ctx, c.opts.Workers, len(jobs),
		func(ctx context.Context, i int) candidate {
			if err := ctx.Err(); err != nil {
				return candidate{err: err}
			}
			f, err := c.load(jobs[i].Input)
			if err != nil {
				return candidate{err: err}
			}
			return candidate{spread: selection.Spread{Index: i, Source: jobs[i].Input, Value: f.Spread()}}
		},
		func(i int, err error) candidate {
			return candidate{err: err}
		},
		c.progress(logger),
	)

	var spreads []selection.Spread
	var failures []selection.Failure
	for i, cand := range candidates {
		if cand.err != nil {
			logger.Warn("skipping candidate", zap.String("path", jobs[i].Input), zap.Error(cand.err))
			failures = append(failures, selection.Failure{Index: i, Source: jobs[i].Input, Err: cand.err})
			continue
		}
		spreads = append(spreads, cand.spread)
	}
	c.reject(summary, failures)
	best, ok := selection.Best(spreads)
	if !ok {
		return selection.Spread{}, &selection.AllCandidatesFailedError{Failures: failures}
	}
	return best, nil
}

// selectSequential loads one candidate at a time and holds on to the best
// frame, which is then rendered without a second load.
func (c *Converter) selectSequential(ctx context.Context, logger *zap.Logger, jobs []Job, summary *Summary) (selection.Spread, *frame.Frame, error) {
	sources := make([]string, len(jobs))
	for i, j := range jobs {
		sources[i] = j.Input
	}
	report := c.progress(logger)
	completed := 0
	load := func(source string) (*frame.Frame, error) {
		defer func() {
			completed++
			report(completed, len(jobs))
		}()
		return c.load(source)
	}

	res, failures, err := selection.MaxSpread(ctx, sources, load, logger)
	c.reject(summary, failures)
	if err != nil {
		return selection.Spread{}, nil, err
	}
	return selection.Spread{Index: res.Index, Source: res.Source, Value: res.Spread}, res.Frame, nil
}

// reject records candidates that could not be loaded as failed conversions.
func (c *Converter) reject(summary *Summary, failures []selection.Failure) {
	for _, f := range failures {
		summary.Rejected = append(summary.Rejected, f)
		c.opts.Metrics.Converted(c.opts.Renderer.Name(), metrics.StatusFailed)
	}
}

func (c *Converter) load(source string) (*frame.Frame, error) {
	return metrics.TimeFunction(func() (*frame.Frame, error) {
		return c.opts.Loader(source)
	}, metrics.StageLoad, c.opts.Performance)
}

// process loads, renders, encodes and writes one job. A frame that is already
// loaded is rendered as is.
func (c *Converter) process(ctx context.Context, logger *zap.Logger, job Job, f *frame.Frame) Outcome {
	start := time.Now()
	ctx, span := c.opts.Tracer.Start(ctx, "convert.job", trace.WithAttributes(
		attribute.String("job.input", job.Input),
		attribute.String("job.output", job.Output),
	))
	defer span.End()

	o := Outcome{Job: job}
	finish := func(status Status, err error) Outcome {
		o.Status, o.Err, o.Duration = status, err, time.Since(start)
		if err != nil && status == Failed {
			span.RecordError(err)
			span.SetStatus(codes.Error, "job failed")
		}
		return c.record(logger, o)
	}

	if err := ctx.Err(); err != nil {
		return finish(Failed, err)
	}
	if f == nil {
		var err error
		if f, err = c.load(job.Input); err != nil {
			return finish(Failed, err)
		}
	}

	img, err := metrics.TimeFunction(func() (image.Image, error) {
		return c.opts.Renderer.Render(f)
	}, metrics.StageRender, c.opts.Performance)
	if errors.Is(err, ErrSkipped) {
		return finish(Skipped, err)
	}
	if err != nil {
		return finish(Failed, fmt.Errorf("render %s: %w", job.Input, err))
	}

	data, err := metrics.TimeFunction(func() ([]byte, error) {
		return c.opts.Encoder.Encode(img)
	}, metrics.StageEncode, c.opts.Performance)
	if err != nil {
		return finish(Failed, err)
	}

	_, err = metrics.TimeFunction(func() (struct{}, error) {
		return struct{}{}, c.opts.Sink.Put(ctx, job.Output, data, c.opts.Encoder.ContentType())
	}, metrics.StageWrite, c.opts.Performance)
	if err != nil {
		return finish(Failed, err)
	}
	o.Bytes = len(data)
	c.opts.Performance.ObserveSize(strings.TrimPrefix(c.opts.Encoder.Ext(), "."), len(data))
	return finish(Written, nil)
}

func (c *Converter) record(logger *zap.Logger, o Outcome) Outcome {
	c.opts.Metrics.Converted(c.opts.Renderer.Name(), o.Status.String())
	switch o.Status {
	case Failed:
		logger.Error("conversion failed", zap.String("path", o.Input), zap.Error(o.Err))
	case Skipped:
		logger.Info("conversion skipped", zap.String("path", o.Input), zap.Error(o.Err))
	default:
		logger.Debug("converted",
			zap.String("path", o.Input),
			zap.String("output", o.Output),
			zap.Int("bytes", o.Bytes),
			zap.Duration("took", o.Duration),
		)
	}
	return o
}
