package compiler

import (
	"fmt"

	"arccore/pkg/arcir"
	"arccore/pkg/diagnostics"
	"arccore/pkg/exhaust"
	"arccore/pkg/intern"
	"arccore/pkg/liveness"
	"arccore/pkg/ownership"
	"arccore/pkg/pattern"
	"arccore/pkg/rcelim"
	"arccore/pkg/rcinsert"
	"arccore/pkg/reuse"
)

// PipelineConfig toggles the optional passes spec.md §9 leaves open:
// constructor-reuse expansion and the ownership-enhanced variant of RC
// insertion/elimination. Populated via functional options, the same
// boolean-flag idiom the teacher's CodeGenerator uses for enableRCOpt,
// enableRegions, and friends.
type PipelineConfig struct {
	reuse            bool
	ownershipAware   bool
	classifier       arcir.TypeClassifier
	sigs             arcir.SignatureTable
	types            *intern.TypeInterner
}

// Option configures a PipelineConfig.
type Option func(*PipelineConfig)

// WithReuse enables the constructor-reuse expansion pass between RC
// insertion and RC elimination.
func WithReuse() Option {
	return func(c *PipelineConfig) { c.reuse = true }
}

// WithOwnershipAware enables ownership inference (C7) and threads its
// result into RC insertion and elimination, so borrowed-derived variables
// skip RC traffic instead of only recognizing borrowed parameters
// directly.
func WithOwnershipAware() Option {
	return func(c *PipelineConfig) { c.ownershipAware = true }
}

// WithClassifier overrides the default BasicClassifier.
func WithClassifier(c arcir.TypeClassifier) Option {
	return func(cfg *PipelineConfig) { cfg.classifier = c }
}

// WithSignatures supplies the borrowed-parameter annotations PartialApply's
// closure-borrowed-capture rule consults (spec.md §4.4).
func WithSignatures(sigs arcir.SignatureTable) Option {
	return func(cfg *PipelineConfig) { cfg.sigs = sigs }
}

func newConfig(types *intern.TypeInterner, opts []Option) *PipelineConfig {
	cfg := &PipelineConfig{
		types:      types,
		classifier: arcir.BasicClassifier{Types: types},
		sigs:       arcir.SignatureTable{},
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// Pipeline runs the fixed middle-end pass order of spec.md §5:
// canonicalization (C3/C4, performed by the caller via pkg/pattern and
// pkg/exhaust before Lower/Run are even reached) → liveness (C6) → RC
// insertion (C8) → constructor-reuse expansion (optional) → RC elimination
// (C9). Swapping insertion and elimination is a correctness bug (insertion
// asserts the IR has no RC ops yet); this function is the one place that
// ordering is enforced.
func Run(f *arcir.ArcFunction, opts ...Option) (*diagnostics.PipelineReport, error) {
	return RunWithTypes(f, intern.NewTypeInterner(), opts...)
}

// RunWithTypes is Run with an explicit TypeInterner, needed whenever the
// default BasicClassifier must resolve real user types instead of just
// the builtin sentinels.
func RunWithTypes(f *arcir.ArcFunction, types *intern.TypeInterner, opts ...Option) (*diagnostics.PipelineReport, error) {
	if err := arcir.CheckInvariants(f); err != nil {
		ice := diagnostics.NewICE(f.Name, "%v", err)
		return nil, ice
	}

	cfg := newConfig(types, opts)
	report := &diagnostics.PipelineReport{}

	live := liveness.Analyze(f)

	var owners ownership.Table
	if cfg.ownershipAware {
		owners = ownership.Infer(f)
	}

	var insertStats rcinsert.Stats
	if err := runPass(f.Name, func() error {
		var err error
		insertStats, err = rcinsert.Insert(f, live, cfg.classifier, cfg.sigs, owners)
		return err
	}); err != nil {
		return nil, err
	}
	report.Add(diagnostics.PassStats{Name: "rcinsert", IncsInserted: insertStats.IncsInserted, DecsInserted: insertStats.DecsInserted})

	if cfg.reuse {
		sizer := reuse.DefaultSizer{Types: cfg.types}
		varTypes := arcir.VarTypes(f)
		stats := reuse.Expand(f, sizer, cfg.classifier, varTypes)
		report.Add(stats)
	}

	pairsEliminated := rcelim.Eliminate(f, owners)
	report.Add(diagnostics.PassStats{Name: "rcelim", PairsEliminated: pairsEliminated})

	if err := arcir.CheckInvariants(f); err != nil {
		return nil, diagnostics.NewICE(f.Name, "%v", err)
	}

	return report, nil
}

// runPass recovers an *diagnostics.ICE panicked by a pass and returns it as
// a plain error, matching spec.md §7: "each pass either completes
// successfully or the function is discarded."
func runPass(fn intern.Name, body func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			if ice, ok := r.(*diagnostics.ICE); ok {
				err = ice
				return
			}
			err = diagnostics.NewICE(fn, "panic: %v", r)
		}
	}()
	return body()
}

// CheckPatterns runs C3/C4 (pattern compilation then exhaustiveness) ahead
// of Lower/Run, returning the compiled tree for Lower and the diagnostic
// problems for the front-end's collector (spec.md §6: "pattern problems
// are reported via a collector the front-end supplies").
func CheckPatterns(arms []pattern.MatchArm, armRangeStart uint32, scrutineeType intern.TypeIdx, names *intern.StringInterner, ti *intern.TypeInterner, resolver pattern.Resolver) (pattern.DecisionTree, diagnostics.CheckResult, error) {
	tree, err := pattern.Compile(arms, armRangeStart, names, resolver)
	if err != nil {
		return nil, diagnostics.CheckResult{}, fmt.Errorf("pattern canonicalization: %w", err)
	}
	result := exhaust.Check(tree, scrutineeType, arms, armRangeStart, ti)
	return tree, result, nil
}
