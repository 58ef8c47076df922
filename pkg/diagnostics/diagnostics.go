// Package diagnostics carries the two-tier error model of spec.md §7:
// internal-compiler-errors for structural IR bugs, and plain user-visible
// pattern problems collected separately. It also wraps the structured
// logger every pass uses and the pass statistics the driver reports.
package diagnostics

import (
	"fmt"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"arccore/pkg/exhaust"
	"arccore/pkg/intern"
)

var logger = zap.NewNop().Sugar()

// SetLogger installs l as the package-level logger every pass uses for
// pass-entry/pass-exit and ICE events. Passing nil restores the no-op
// default.
func SetLogger(l *zap.Logger) {
	if l == nil {
		logger = zap.NewNop().Sugar()
		return
	}
	logger = l.Sugar()
}

// Logger returns the installed structured logger.
func Logger() *zap.SugaredLogger { return logger }

// ICE is an internal-compiler-error: a structural IR invariant violation
// that is always a compiler bug, never a user-facing diagnostic.
type ICE struct {
	Func intern.Name
	Msg  string
	err  error
}

func (e *ICE) Error() string {
	return fmt.Sprintf("internal compiler error in function %v: %s", e.Func, e.Msg)
}

// Unwrap exposes the stack-trace-carrying cause for errors.As/errors.Is.
func (e *ICE) Unwrap() error { return e.err }

// NewICE builds an ICE for fn, attaching a stack trace via
// github.com/pkg/errors so the panic/recover boundary in pkg/compiler can
// log it with useful context.
func NewICE(fn intern.Name, format string, args ...any) *ICE {
	msg := fmt.Sprintf(format, args...)
	return &ICE{Func: fn, Msg: msg, err: errors.WithStack(fmt.Errorf("%s", msg))}
}

// Panic logs ice at Error and panics with it. pkg/compiler's runPass
// recovers such a panic around RC insertion and returns the ICE as an
// error; the other passes are not wrapped in runPass (spec.md §7: "each
// pass either completes successfully or the function is discarded").
func Panic(ice *ICE) {
	logger.Errorw("internal compiler error", "function", ice.Func, "message", ice.Msg)
	panic(ice)
}

// PatternProblem re-exports exhaust.PatternProblem so callers depend on
// one diagnostics surface instead of reaching into pkg/exhaust directly.
type PatternProblem = exhaust.PatternProblem

// CheckResult re-exports exhaust.CheckResult for the same reason.
type CheckResult = exhaust.CheckResult

// PassStats reports what a single pipeline stage did, grounded in the
// teacher's OptimizationStats/RCStats idiom: every pass hands one of
// these back so the driver can print a summary without each pass owning
// its own ad hoc counter type.
type PassStats struct {
	Name            string
	IncsInserted    int
	DecsInserted    int
	PairsEliminated int
	ReuseRewrites   int
}

func (s PassStats) String() string {
	return fmt.Sprintf("%s: +%d inc, +%d dec, -%d pairs, %d reuse",
		s.Name, s.IncsInserted, s.DecsInserted, s.PairsEliminated, s.ReuseRewrites)
}

// PipelineReport accumulates PassStats across a full compiler run.
type PipelineReport struct {
	Stats []PassStats
}

func (r *PipelineReport) Add(s PassStats) {
	r.Stats = append(r.Stats, s)
}

func (r *PipelineReport) String() string {
	out := ""
	for i, s := range r.Stats {
		if i > 0 {
			out += "\n"
		}
		out += s.String()
	}
	return out
}
