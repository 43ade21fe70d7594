// Package selection picks the frame with the widest temperature spread out of
// a set of candidates.
package selection

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"thermal-render/frame"
)

// ErrEmptyInput is returned when there is nothing to select from.
var ErrEmptyInput = errors.New("selection: no candidates")

// Failure is a candidate that could not be loaded.
type Failure struct {
	Index  int
	Source string
	Err    error
}

// AllCandidatesFailedError is returned when no candidate could be loaded.
type AllCandidatesFailedError struct {
	Failures []Failure
}

func (e *AllCandidatesFailedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "selection: all %d candidates failed", len(e.Failures))
	if len(e.Failures) > 0 {
		b.WriteString(", first: ")
		b.WriteString(e.Failures[0].Err.Error())
	}
	return b.String()
}

// Unwrap exposes every candidate error to errors.Is and errors.As.
func (e *AllCandidatesFailedError) Unwrap() []error {
	out := make([]error, 0, len(e.Failures))
	for _, f := range e.Failures {
		out = append(out, f.Err)
	}
	return out
}

// Spread is the precomputed spread of one loaded candidate.
type Spread struct {
	Index  int
	Source string
	Value  float64
}

// Best returns the first candidate with the largest Value. Candidates are
// considered in slice order and a later one only wins when strictly greater.
func Best(spreads []Spread) (Spread, bool) {
	if len(spreads) == 0 {
		return Spread{}, false
	}
	best := spreads[0]
	for _, s := range spreads[1:] {
		if s.Value > best.Value {
			best = s
		}
	}
	return best, true
}

// Result is the selected frame.
type Result struct {
	Index  int
	Source string
	Spread float64
	Frame  *frame.Frame
}

// Loader loads one candidate.
type Loader func(source string) (*frame.Frame, error)

// MaxSpread loads sources one at a time and keeps the frame with the largest
// spread, the earliest one on ties. Only the current candidate and the best
// frame are held in memory. Candidates that fail to load are returned as
// failures and otherwise ignored.
func MaxSpread(ctx context.Context, sources []string, load Loader, logger *zap.Logger) (*Result, []Failure, error) {
	if len(sources) == 0 {
		return nil, nil, ErrEmptyInput
	}
	if load == nil {
		load = frame.LoadFile
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var best *Result
	var failures []Failure
	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			for j := i; j < len(sources); j++ {
				failures = append(failures, Failure{Index: j, Source: sources[j], Err: err})
			}
			break
		}
		f, err := load(src)
		if err != nil {
			logger.Warn("skipping candidate", zap.String("path", src), zap.Error(err))
			failures = append(failures, Failure{Index: i, Source: src, Err: err})
			continue
		}
		if best == nil || f.Spread() > best.Spread {
			best = &Result{Index: i, Source: src, Spread: f.Spread(), Frame: f}
		}
	}
	if best == nil {
		return nil, failures, &AllCandidatesFailedError{Failures: failures}
	}
	logger.Debug("selected frame",
		zap.String("path", best.Source),
		zap.Int("index", best.Index),
		zap.Float64("spread", best.Spread),
		zap.Int("failed", len(failures)),
	)
	return best, failures, nil
}
