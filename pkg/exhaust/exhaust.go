// Package exhaust checks a compiled DecisionTree for missing and redundant
// match arms against type information (C4, spec.md §4.2).
package exhaust

import (
	"sort"
	"strings"

	"arccore/pkg/intern"
	"arccore/pkg/pattern"
	"arccore/pkg/typedast"
)

// PatternProblem is one diagnostic produced by Check.
type PatternProblem interface {
	isPatternProblem()
}

// NonExhaustive reports that some value of the scrutinee type matches no
// arm. Missing holds human-readable witnesses, sorted and deduplicated.
type NonExhaustive struct {
	Span    typedast.Span
	Missing []string
}

// RedundantArm reports that an arm is never reached from any leaf of the
// compiled decision tree.
type RedundantArm struct {
	Span     typedast.Span
	ArmIndex uint32
}

func (NonExhaustive) isPatternProblem() {}
func (RedundantArm) isPatternProblem()  {}

// CheckResult collects every problem found in one match (spec.md §7).
type CheckResult struct {
	Problems []PatternProblem
}

// Check walks tree against the scrutinee's type and the arms that produced
// it. armRangeStart must match the value passed to pattern.Compile for the
// same arms, since arm indices recorded in the tree are global.
func Check(tree pattern.DecisionTree, scrutineeType intern.TypeIdx, arms []pattern.MatchArm, armRangeStart uint32, ti *intern.TypeInterner) CheckResult {
	var problems []PatternProblem

	missing := dedupeSorted(missingForType(tree, scrutineeType, ti))
	if len(missing) > 0 {
		problems = append(problems, NonExhaustive{Span: matchSpan(arms), Missing: missing})
	}

	seen := map[uint32]bool{}
	collectReferenced(tree, seen)
	for i, arm := range arms {
		idx := armRangeStart + uint32(i)
		if !seen[idx] {
			problems = append(problems, RedundantArm{Span: arm.Span, ArmIndex: idx})
		}
	}

	return CheckResult{Problems: problems}
}

func matchSpan(arms []pattern.MatchArm) typedast.Span {
	if len(arms) == 0 {
		return typedast.Span{}
	}
	span := arms[0].Span
	for _, a := range arms[1:] {
		if a.Span.End > span.End {
			span.End = a.Span.End
		}
	}
	return span
}

func collectReferenced(tree pattern.DecisionTree, seen map[uint32]bool) {
	switch t := tree.(type) {
	case *pattern.Leaf:
		seen[t.ArmIndex] = true
	case *pattern.Guard:
		seen[t.ArmIndex] = true
		collectReferenced(t.OnFail, seen)
	case *pattern.Switch:
		for _, e := range t.Edges {
			collectReferenced(e.Tree, seen)
		}
		if t.Default != nil {
			collectReferenced(t.Default, seen)
		}
	}
}

// missingForType computes witnesses for values of ty that reach no leaf,
// assuming tree is the decision continuation for exactly one occurrence of
// type ty with no other columns outstanding. This holds at the root of a
// single-scrutinee match, and continues to hold one level into a
// single-field enum variant — the common Option/Result nesting case. For a
// variant with zero or more than one field, the presence of the variant's
// edge counts as full coverage: sub-patterns on the fields of a
// multi-field variant are not checked for missing cases.
func missingForType(tree pattern.DecisionTree, ty intern.TypeIdx, ti *intern.TypeInterner) []string {
	switch t := tree.(type) {
	case nil:
		return []string{genericWitness(ty)}
	case *pattern.Fail:
		return []string{genericWitness(ty)}
	case *pattern.Leaf:
		return nil
	case *pattern.Guard:
		return missingForType(t.OnFail, ty, ti)
	case *pattern.Switch:
		return missingForSwitch(t, ty, ti)
	default:
		return nil
	}
}

func missingForSwitch(s *pattern.Switch, ty intern.TypeIdx, ti *intern.TypeInterner) []string {
	switch s.TestKind {
	case pattern.BoolEq:
		covered := map[bool]bool{}
		for _, e := range s.Edges {
			covered[e.Value.Bool] = true
		}
		if s.Default != nil || (covered[true] && covered[false]) {
			return nil
		}
		var out []string
		if !covered[true] {
			out = append(out, "true")
		}
		if !covered[false] {
			out = append(out, "false")
		}
		return out

	case pattern.IntEq, pattern.StrEq:
		if s.Default != nil {
			return nil
		}
		return []string{"_"}

	case pattern.EnumTag:
		info := ti.Info(ty)
		if info.Kind != intern.KindEnum {
			// Can't type-direct a non-enum scrutinee; skip gracefully
			// rather than risk a false positive (spec.md §4.2).
			return nil
		}
		byName := map[string]*pattern.SwitchEdge{}
		for i := range s.Edges {
			byName[s.Edges[i].Value.VariantName] = &s.Edges[i]
		}
		var out []string
		for _, v := range info.Variants {
			if intern.IsUninhabitedVariant(v, ti) {
				continue
			}
			edge, ok := byName[v.Name]
			if !ok {
				if s.Default != nil {
					continue
				}
				out = append(out, genericVariantWitness(v))
				continue
			}
			if len(v.Fields) == 1 {
				for _, w := range missingForType(edge.Tree, v.Fields[0], ti) {
					out = append(out, v.Name+"("+w+")")
				}
			}
			// Variants with zero or >1 fields: presence of the edge is
			// treated as full coverage of that variant.
		}
		return out

	case pattern.ListLen:
		return missingForList(s)

	default:
		return nil
	}
}

func missingForList(s *pattern.Switch) []string {
	if s.Default != nil {
		return nil
	}
	exact := map[int]bool{}
	restMinLen := -1
	for _, e := range s.Edges {
		if e.Value.ListExact {
			exact[e.Value.ListLenVal] = true
		} else if restMinLen == -1 || e.Value.ListLenVal < restMinLen {
			restMinLen = e.Value.ListLenVal
		}
	}
	if restMinLen < 0 {
		return []string{"_"}
	}
	var out []string
	for i := 0; i < restMinLen; i++ {
		if !exact[i] {
			out = append(out, listWitness(i))
		}
	}
	return out
}

func listWitness(n int) string {
	if n == 0 {
		return "[]"
	}
	parts := make([]string, n)
	for i := range parts {
		parts[i] = "_"
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func genericVariantWitness(v intern.EnumVariant) string {
	if len(v.Fields) == 0 {
		return v.Name
	}
	parts := make([]string, len(v.Fields))
	for i := range parts {
		parts[i] = "_"
	}
	return v.Name + "(" + strings.Join(parts, ", ") + ")"
}

func genericWitness(intern.TypeIdx) string {
	return "_"
}

func dedupeSorted(witnesses []string) []string {
	if len(witnesses) == 0 {
		return nil
	}
	sort.Strings(witnesses)
	out := witnesses[:1]
	for _, w := range witnesses[1:] {
		if w != out[len(out)-1] {
			out = append(out, w)
		}
	}
	return out
}
