// thermal-convert renders directories of thermal matrix files to images.
//
// Every setting comes from the APP_* environment first and can be overridden
// on the command line.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/maruel/interrupt"
	"go.uber.org/zap"

	"thermal-render/anchor"
	"thermal-render/config"
	"thermal-render/convert"
	"thermal-render/frame"
	"thermal-render/scan"
	"thermal-render/storage"
)

type options struct {
	cfg     config.Config
	op      convert.Operation
	mode    string
	draw    bool
	each    bool
	verbose bool
	dirs    []string
}

func parseArgs(cfg config.Config, args []string, stderr io.Writer) (*options, error) {
	o := &options{cfg: cfg}
	fs := flag.NewFlagSet("thermal-convert", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.Usage = func() {
		fmt.Fprintf(stderr, "usage: thermal-convert [flags] <input-dir>...\n")
		fs.PrintDefaults()
	}

	op := fs.String("op", "bulk", "bulk renders every file, select renders the frame with the largest spread")
	fs.StringVar(&o.mode, "mode", "color", "render mode: color, gray or anchor")
	fs.BoolVar(&o.draw, "draw", false, "outline detected markers in anchor mode")
	fs.BoolVar(&o.each, "each", false, "run one batch per immediate sub-directory of each input")
	fs.BoolVar(&o.verbose, "v", false, "debug logging")
	fs.IntVar(&o.cfg.Workers, "workers", cfg.Workers, "number of concurrent conversions, 1 makes selection load frames one at a time")
	fs.StringVar(&o.cfg.Format, "format", cfg.Format, "output format: png, jpeg, bmp, tiff or webp")
	fs.IntVar(&o.cfg.Quality, "quality", cfg.Quality, "jpeg and webp quality")
	fs.IntVar(&o.cfg.Scale, "scale", cfg.Scale, "integer upscale factor")
	fs.StringVar(&o.cfg.InputPattern, "pattern", cfg.InputPattern, "input file name pattern")
	fs.BoolVar(&o.cfg.Recursive, "recursive", cfg.Recursive, "descend into sub-directories")
	fs.IntVar(&o.cfg.OutputSegment, "segment", cfg.OutputSegment, "output path segment to replace, negative counts from the end")
	fs.StringVar(&o.cfg.OutputName, "name", cfg.OutputName, "replacement for -segment")
	fs.StringVar(&o.cfg.OutputRename, "rename", cfg.OutputRename, "rename a directory in output paths, as from:to")
	fs.StringVar(&o.cfg.OutputRoot, "root", cfg.OutputRoot, "write all outputs under this directory")
	fs.StringVar(&o.cfg.Sink, "sink", cfg.Sink, "file or s3")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return nil, errors.New("no input directory")
	}
	o.dirs = fs.Args()

	var err error
	if o.op, err = convert.ParseOperation(*op); err != nil {
		return nil, err
	}
	if o.mode != "anchor" {
		if _, err := frame.ParseMode(o.mode); err != nil {
			return nil, err
		}
	}
	if o.verbose {
		o.cfg.LogLevel = "debug"
	}
	return o, o.cfg.Validate()
}

func (o *options) renderer(logger *zap.Logger) (convert.Renderer, error) {
	palettes, err := o.cfg.Palettes()
	if err != nil {
		return nil, err
	}
	if o.mode == "anchor" {
		return anchor.Renderer{Draw: o.draw, Palettes: palettes, Logger: logger}, nil
	}
	m, err := frame.ParseMode(o.mode)
	if err != nil {
		return nil, err
	}
	return palettes.With(m), nil
}

func (o *options) sink() (storage.Sink, error) {
	if o.cfg.Sink == "s3" {
		return storage.NewS3Sink(o.cfg.S3())
	}
	return storage.FileSink{}, nil
}

// batches lists the input directories, one batch each.
func (o *options) batches() ([]string, error) {
	if !o.each {
		return o.dirs, nil
	}
	var out []string
	for _, d := range o.dirs {
		subs, err := scan.Dirs(d)
		if err != nil {
			return nil, err
		}
		out = append(out, subs...)
	}
	return out, nil
}

func newConverter(o *options, logger *zap.Logger) (*convert.Converter, error) {
	r, err := o.renderer(logger)
	if err != nil {
		return nil, err
	}
	enc, err := o.cfg.Encoder()
	if err != nil {
		return nil, err
	}
	rule, err := o.cfg.OutputRule()
	if err != nil {
		return nil, err
	}
	sink, err := o.sink()
	if err != nil {
		return nil, err
	}
	return convert.New(convert.Options{
		Logger:   logger,
		Workers:  o.cfg.Workers,
		Renderer: r,
		Encoder:  enc,
		Sink:     sink,
		Deriver:  rule,
	})
}

// run converts every batch. A failed batch does not stop the later ones;
// all errors are joined. Rejected selection candidates count as errors.
func run(ctx context.Context, o *options, c *convert.Converter, stdout io.Writer) error {
	dirs, err := o.batches()
	if err != nil {
		return err
	}
	var errs []error
	for _, dir := range dirs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		files, err := scan.Files(dir, scan.Options{Pattern: o.cfg.InputPattern, Recursive: o.cfg.Recursive})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		s, err := c.Run(ctx, convert.Batch{Inputs: files, Operation: o.op})
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dir, err))
			continue
		}
		fmt.Fprintf(stdout, "%s: %d written, %d skipped, %d failed, %d rejected, %s in %s\n",
			dir, s.Written, s.Skipped, s.Failed, len(s.Rejected), humanize.Bytes(uint64(s.Bytes)), s.Duration.Round(time.Millisecond))
		if s.Selected != nil {
			fmt.Fprintf(stdout, "%s: selected %s, spread %.2f\n", dir, s.Selected.Source, s.Selected.Value)
		}
		if err := s.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", dir, err))
		}
	}
	return errors.Join(errs...)
}

func mainImpl() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	o, err := parseArgs(cfg, os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return err
	}
	logger, err := o.cfg.NewLogger()
	if err != nil {
		return err
	}
	defer logger.Sync()

	c, err := newConverter(o, logger)
	if err != nil {
		return err
	}

	interrupt.HandleCtrlC()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-interrupt.Channel:
			logger.Warn("interrupted, finishing running conversions")
			cancel()
		case <-ctx.Done():
		}
	}()

	return run(ctx, o, c, os.Stdout)
}

func main() {
	if err := mainImpl(); err != nil {
		fmt.Fprintf(os.Stderr, "\nthermal-convert: %s.\n", err)
		os.Exit(1)
	}
}
