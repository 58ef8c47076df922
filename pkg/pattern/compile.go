package pattern

import (
	"fmt"

	"arccore/pkg/intern"
	"arccore/pkg/typedast"
)

// Resolver looks up how an ambiguous Identifier pattern in a given arm was
// disambiguated by the resolver (spec.md §4.1).
type Resolver interface {
	Resolve(key typedast.PatternKey) (typedast.PatternResolution, bool)
}

// row is one live entry of the pattern matrix: a pattern per occurrence
// still being tested, plus everything already decided for this arm.
type row struct {
	cols     []Pattern
	armIndex uint32
	guard    typedast.ExprId
	bindings []Binding
}

// Compile lowers arms into a DecisionTree using classical matrix
// compilation (spec.md §4.1). armRangeStart offsets every arm index in the
// resulting tree and in the returned resolution lookups, so a caller
// compiling several matches within one function can keep arm indices
// globally unique.
func Compile(arms []MatchArm, armRangeStart uint32, names *intern.StringInterner, resolver Resolver) (DecisionTree, error) {
	rows := make([]row, len(arms))
	for i, arm := range arms {
		rows[i] = row{
			cols:     []Pattern{arm.Pattern},
			armIndex: armRangeStart + uint32(i),
			guard:    arm.Guard,
		}
	}
	occurrences := [][]PathInstr{{}}

	c := &compiler{names: names, resolver: resolver, arms: arms, armRangeStart: armRangeStart}
	return c.compile(occurrences, rows)
}

type compiler struct {
	names         *intern.StringInterner
	resolver      Resolver
	arms          []MatchArm
	armRangeStart uint32
}

// resolve turns a possibly-ambiguous Identifier pattern into either a
// binding or a nullary enum-variant test, using the arm's resolution entry.
func (c *compiler) resolve(p Pattern, armIndex uint32) Pattern {
	if p.Kind != Identifier {
		return p
	}
	localIdx := armIndex - c.armRangeStart
	if c.resolver != nil {
		if res, ok := c.resolver.Resolve(typedast.PatternKey{ArmIndex: localIdx}); ok {
			if res.IsVariantMatch {
				return Pattern{Kind: EnumCtor, Variant: res.VariantName}
			}
			return Pattern{Kind: Binding, Name: p.Name}
		}
	}
	// No resolution on record: conservatively treat as a binding, matching
	// the contract that an unresolved identifier always binds.
	return Pattern{Kind: Binding, Name: p.Name}
}

func isIrrefutable(k Kind) bool { return k == Wildcard || k == Binding }

// rowFullyMatched reports whether every column of the row is irrefutable —
// such a row matches unconditionally (modulo its guard).
func rowFullyMatched(r row) bool {
	for _, p := range r.cols {
		if !isIrrefutable(p.Kind) {
			return false
		}
	}
	return true
}

func (c *compiler) compile(occurrences [][]PathInstr, rows []row) (DecisionTree, error) {
	if len(rows) == 0 {
		return &Fail{}, nil
	}

	// Resolve any ambiguous identifiers in the first row's columns before
	// deciding whether it's fully matched.
	for i, p := range rows[0].cols {
		rows[0].cols[i] = c.resolve(p, rows[0].armIndex)
	}

	if rowFullyMatched(rows[0]) {
		bindings := c.collectBindings(rows[0], occurrences)
		if rows[0].guard != typedast.InvalidExprId {
			rest, err := c.compile(occurrences, rows[1:])
			if err != nil {
				return nil, err
			}
			return &Guard{
				ArmIndex:  rows[0].armIndex,
				Bindings:  bindings,
				GuardExpr: rows[0].guard,
				OnFail:    rest,
			}, nil
		}
		return &Leaf{ArmIndex: rows[0].armIndex, Bindings: bindings}, nil
	}

	// Resolve ambiguous identifiers across all rows before column selection.
	for ri := range rows {
		for ci, p := range rows[ri].cols {
			rows[ri].cols[ci] = c.resolve(p, rows[ri].armIndex)
		}
	}

	col := leftmostRefutableColumn(rows)

	// Tuples are irrefutable (no tag to test) — flatten them in place
	// rather than emitting a Switch.
	if k := firstNonWildcardKind(rows, col); k == Tuple {
		return c.expandTuple(occurrences, rows, col)
	}

	switch firstNonWildcardKind(rows, col) {
	case LiteralBool:
		return c.compileLiteralSwitch(occurrences, rows, col, BoolEq)
	case LiteralInt:
		return c.compileLiteralSwitch(occurrences, rows, col, IntEq)
	case LiteralStr:
		return c.compileLiteralSwitch(occurrences, rows, col, StrEq)
	case EnumCtor:
		return c.compileEnumSwitch(occurrences, rows, col)
	case List:
		return c.compileListSwitch(occurrences, rows, col)
	default:
		return nil, fmt.Errorf("pattern: internal error: unexpected pattern kind in refutable column")
	}
}

func (c *compiler) collectBindings(r row, occurrences [][]PathInstr) []Binding {
	out := append([]Binding{}, r.bindings...)
	for i, p := range r.cols {
		if p.Kind == Binding && p.Name != "" {
			out = append(out, Binding{Name: c.names.Intern(p.Name), Path: append([]PathInstr{}, occurrences[i]...)})
		}
	}
	return out
}

// leftmostRefutableColumn returns the index of the first column where some
// row carries a refutable (non-wildcard, non-binding) pattern. Column
// selection affects decision-tree shape, not soundness (spec.md §9).
func leftmostRefutableColumn(rows []row) int {
	numCols := len(rows[0].cols)
	for c := 0; c < numCols; c++ {
		for _, r := range rows {
			if !isIrrefutable(r.cols[c].Kind) {
				return c
			}
		}
	}
	return 0
}

func firstNonWildcardKind(rows []row, col int) Kind {
	for _, r := range rows {
		if !isIrrefutable(r.cols[col].Kind) {
			return r.cols[col].Kind
		}
	}
	return Wildcard
}

func dropCol(pats []Pattern, col int) []Pattern {
	out := make([]Pattern, 0, len(pats)-1)
	out = append(out, pats[:col]...)
	out = append(out, pats[col+1:]...)
	return out
}

func spliceCol(pats []Pattern, col int, with []Pattern) []Pattern {
	out := make([]Pattern, 0, len(pats)-1+len(with))
	out = append(out, pats[:col]...)
	out = append(out, with...)
	out = append(out, pats[col+1:]...)
	return out
}

func spliceOcc(occs [][]PathInstr, col int, with [][]PathInstr) [][]PathInstr {
	out := make([][]PathInstr, 0, len(occs)-1+len(with))
	out = append(out, occs[:col]...)
	out = append(out, with...)
	out = append(out, occs[col+1:]...)
	return out
}

func wildcards(n int) []Pattern {
	out := make([]Pattern, n)
	for i := range out {
		out[i] = Pattern{Kind: Wildcard}
	}
	return out
}

// expandTuple flattens an (irrefutable) tuple column into its elements, in
// place, for every row — rows whose column is a wildcard fan out into N
// wildcards; rows whose column is a Tuple splice in its actual elements.
func (c *compiler) expandTuple(occurrences [][]PathInstr, rows []row, col int) (DecisionTree, error) {
	arity := 0
	for _, r := range rows {
		if r.cols[col].Kind == Tuple {
			arity = len(r.cols[col].Args)
			break
		}
	}
	base := occurrences[col]
	newOccs := make([][]PathInstr, arity)
	for i := 0; i < arity; i++ {
		p := append(append([]PathInstr{}, base...), PathInstr{Kind: TuplePos, Index: uint32(i)})
		newOccs[i] = p
	}
	newRows := make([]row, len(rows))
	for i, r := range rows {
		var sub []Pattern
		switch r.cols[col].Kind {
		case Tuple:
			sub = r.cols[col].Args
		default:
			sub = wildcards(arity)
			if r.cols[col].Kind == Binding {
				r.bindings = append(r.bindings, Binding{Name: c.names.Intern(r.cols[col].Name), Path: append([]PathInstr{}, base...)})
			}
		}
		newRows[i] = row{
			cols:     spliceCol(r.cols, col, sub),
			armIndex: r.armIndex,
			guard:    r.guard,
			bindings: r.bindings,
		}
	}
	return c.compile(spliceOcc(occurrences, col, newOccs), newRows)
}

func (c *compiler) compileLiteralSwitch(occurrences [][]PathInstr, rows []row, col int, kind TestKind) (DecisionTree, error) {
	var values []TestValue
	seen := map[string]bool{}
	for _, r := range rows {
		p := r.cols[col]
		if isIrrefutable(p.Kind) {
			continue
		}
		key := literalKey(p)
		if !seen[key] {
			seen[key] = true
			values = append(values, testValueOf(p, kind))
		}
	}

	var edges []SwitchEdge
	for _, v := range values {
		specRows := make([]row, 0, len(rows))
		for _, r := range rows {
			p := r.cols[col]
			if isIrrefutable(p.Kind) {
				nr := r
				nr.cols = dropCol(r.cols, col)
				if p.Kind == Binding {
					nr.bindings = append(append([]Binding{}, r.bindings...), Binding{Name: c.names.Intern(p.Name), Path: append([]PathInstr{}, occurrences[col]...)})
				}
				specRows = append(specRows, nr)
				continue
			}
			if literalKey(p) == literalKey(valueAsPattern(v)) {
				nr := r
				nr.cols = dropCol(r.cols, col)
				specRows = append(specRows, nr)
			}
		}
		sub, err := c.compile(spliceOcc(occurrences, col, nil), specRows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, SwitchEdge{Value: v, Tree: sub})
	}

	def, err := c.compileDefault(occurrences, rows, col)
	if err != nil {
		return nil, err
	}

	return &Switch{Path: occurrences[col], TestKind: kind, Edges: edges, Default: def}, nil
}

// compileDefault builds the default branch from rows whose column is
// irrefutable, with that column dropped. Returns nil if no such row exists.
func (c *compiler) compileDefault(occurrences [][]PathInstr, rows []row, col int) (DecisionTree, error) {
	var defRows []row
	for _, r := range rows {
		p := r.cols[col]
		if !isIrrefutable(p.Kind) {
			continue
		}
		nr := r
		nr.cols = dropCol(r.cols, col)
		if p.Kind == Binding {
			nr.bindings = append(append([]Binding{}, r.bindings...), Binding{Name: c.names.Intern(p.Name), Path: append([]PathInstr{}, occurrences[col]...)})
		}
		defRows = append(defRows, nr)
	}
	if len(defRows) == 0 {
		return nil, nil
	}
	return c.compile(spliceOcc(occurrences, col, nil), defRows)
}

func literalKey(p Pattern) string {
	switch p.Kind {
	case LiteralBool:
		return fmt.Sprintf("b:%v", p.BoolVal)
	case LiteralInt:
		return fmt.Sprintf("i:%v", p.IntVal)
	case LiteralStr:
		return fmt.Sprintf("s:%v", p.StrVal)
	default:
		return ""
	}
}

func testValueOf(p Pattern, kind TestKind) TestValue {
	switch kind {
	case BoolEq:
		return TestValue{Kind: BoolEq, Bool: p.BoolVal}
	case IntEq:
		return TestValue{Kind: IntEq, Int: p.IntVal}
	case StrEq:
		return TestValue{Kind: StrEq, Str: p.StrVal}
	default:
		return TestValue{}
	}
}

func valueAsPattern(v TestValue) Pattern {
	switch v.Kind {
	case BoolEq:
		return Pattern{Kind: LiteralBool, BoolVal: v.Bool}
	case IntEq:
		return Pattern{Kind: LiteralInt, IntVal: v.Int}
	case StrEq:
		return Pattern{Kind: LiteralStr, StrVal: v.Str}
	default:
		return Pattern{}
	}
}

// compileEnumSwitch groups rows by the EnumCtor variant tested in col and
// emits one edge per variant name that actually appears among the rows.
// Rows whose column is irrefutable contribute to every edge, expanded into
// wildcard field patterns (spec.md §4.1 — enums are a finite, closed
// domain, so there is no separate catch-all edge).
func (c *compiler) compileEnumSwitch(occurrences [][]PathInstr, rows []row, col int) (DecisionTree, error) {
	type variantInfo struct {
		name  string
		arity int
		order int
	}
	variants := map[string]*variantInfo{}
	var order []string
	for _, r := range rows {
		p := r.cols[col]
		if p.Kind != EnumCtor {
			continue
		}
		if _, ok := variants[p.Variant]; !ok {
			variants[p.Variant] = &variantInfo{name: p.Variant, arity: len(p.Args), order: len(order)}
			order = append(order, p.Variant)
		}
	}

	base := occurrences[col]
	var edges []SwitchEdge
	for vi, name := range order {
		v := variants[name]
		newOccs := make([][]PathInstr, v.arity)
		for i := 0; i < v.arity; i++ {
			newOccs[i] = append(append([]PathInstr{}, base...), PathInstr{Kind: TagPayload, Index: uint32(i)})
		}

		var specRows []row
		for _, r := range rows {
			p := r.cols[col]
			switch {
			case isIrrefutable(p.Kind):
				nr := r
				if p.Kind == Binding {
					nr.bindings = append(append([]Binding{}, r.bindings...), Binding{Name: c.names.Intern(p.Name), Path: append([]PathInstr{}, base...)})
				}
				nr.cols = spliceCol(r.cols, col, wildcards(v.arity))
				specRows = append(specRows, nr)
			case p.Kind == EnumCtor && p.Variant == name:
				nr := r
				nr.cols = spliceCol(r.cols, col, p.Args)
				specRows = append(specRows, nr)
			}
		}

		sub, err := c.compile(spliceOcc(occurrences, col, newOccs), specRows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, SwitchEdge{
			Value: TestValue{Kind: EnumTag, VariantIndex: vi, VariantName: name},
			Tree:  sub,
		})
	}

	return &Switch{Path: base, TestKind: EnumTag, Edges: edges}, nil
}

// compileListSwitch groups rows by list shape — the pair (fixed-length,
// has-rest) — and emits one edge per distinct shape (spec.md §4.1). Shapes
// are ordered longest-fixed-length first so a more specific shape (e.g.
// exactly two elements) is tried before a shorter rest pattern that would
// otherwise shadow it.
func (c *compiler) compileListSwitch(occurrences [][]PathInstr, rows []row, col int) (DecisionTree, error) {
	type shape struct {
		length  int
		hasRest bool
	}
	seen := map[shape]bool{}
	var shapes []shape
	for _, r := range rows {
		p := r.cols[col]
		if p.Kind != List {
			continue
		}
		s := shape{length: len(p.ListElems), hasRest: p.HasRest}
		if !seen[s] {
			seen[s] = true
			shapes = append(shapes, s)
		}
	}
	for i := 1; i < len(shapes); i++ {
		for j := i; j > 0; j-- {
			a, b := shapes[j-1], shapes[j]
			if a.hasRest && !b.hasRest || (a.hasRest == b.hasRest && a.length < b.length) {
				shapes[j-1], shapes[j] = shapes[j], shapes[j-1]
			}
		}
	}

	base := occurrences[col]
	var edges []SwitchEdge
	for _, s := range shapes {
		newOccs := make([][]PathInstr, 0, s.length+1)
		for i := 0; i < s.length; i++ {
			newOccs = append(newOccs, append(append([]PathInstr{}, base...), PathInstr{Kind: ListElem, Index: uint32(i)}))
		}
		if s.hasRest {
			newOccs = append(newOccs, append(append([]PathInstr{}, base...), PathInstr{Kind: ListRest, Index: uint32(s.length)}))
		}

		var specRows []row
		for _, r := range rows {
			p := r.cols[col]
			switch {
			case isIrrefutable(p.Kind):
				nr := r
				if p.Kind == Binding {
					nr.bindings = append(append([]Binding{}, r.bindings...), Binding{Name: c.names.Intern(p.Name), Path: append([]PathInstr{}, base...)})
				}
				with := wildcards(s.length)
				if s.hasRest {
					with = append(with, Pattern{Kind: Wildcard})
				}
				nr.cols = spliceCol(r.cols, col, with)
				specRows = append(specRows, nr)
			case p.Kind == List && len(p.ListElems) == s.length && p.HasRest == s.hasRest:
				nr := r
				with := append([]Pattern{}, p.ListElems...)
				if s.hasRest && p.RestName != "" {
					nr.bindings = append(append([]Binding{}, r.bindings...), Binding{Name: c.names.Intern(p.RestName), Path: newOccs[len(newOccs)-1]})
				}
				if s.hasRest {
					with = append(with, Pattern{Kind: Wildcard})
				}
				nr.cols = spliceCol(r.cols, col, with)
				specRows = append(specRows, nr)
			}
		}

		sub, err := c.compile(spliceOcc(occurrences, col, newOccs), specRows)
		if err != nil {
			return nil, err
		}
		edges = append(edges, SwitchEdge{
			Value: TestValue{Kind: ListLen, ListLenVal: s.length, ListExact: !s.hasRest},
			Tree:  sub,
		})
	}

	def, err := c.compileDefault(occurrences, rows, col)
	if err != nil {
		return nil, err
	}

	return &Switch{Path: base, TestKind: ListLen, Edges: edges, Default: def}, nil
}
