// Package reuse implements the supplemental constructor-reuse expansion
// pass that spec.md §5 schedules, by name only, between RC insertion (C8)
// and RC elimination (C9). It adapts the teacher's own reuse analysis
// (sizing a freed allocation against a fresh one to decide whether the
// fresh allocation can reinitialize the freed cell in place) onto ARC IR:
// a scan for `RcDec(v)` immediately followed by a same-shape `Construct`
// rewrites the pair into a single `Reuse` instruction.
package reuse

import (
	"arccore/pkg/arcir"
	"arccore/pkg/diagnostics"
	"arccore/pkg/intern"
	"arccore/pkg/typedast"
)

// ShapeSizer reports how many machine words a type occupies, mirroring the
// teacher's TypeSize.GetSize. Two types of equal word size are considered
// reusable for each other's storage.
type ShapeSizer interface {
	WordSize(ty intern.TypeIdx) int
}

// DefaultSizer derives a word size directly from type structure: one word
// for the tag plus one word per field, the same accounting the teacher's
// NewTypeSize defaults approximate by hand per builtin name.
type DefaultSizer struct {
	Types *intern.TypeInterner
}

func (s DefaultSizer) WordSize(ty intern.TypeIdx) int {
	info := s.Types.Info(ty)
	switch info.Kind {
	case intern.KindTuple:
		return 1 + len(info.Elems)
	case intern.KindEnum:
		max := 0
		for _, v := range info.Variants {
			if len(v.Fields) > max {
				max = len(v.Fields)
			}
		}
		return 1 + max
	case intern.KindList:
		return 3 // tag + head + tail, matching a cons-cell layout
	case intern.KindFunc:
		return 4 // tag + fn ptr + env + arity, as in the teacher's "closure" entry
	default:
		return 2
	}
}

// Expand runs constructor-reuse expansion over f in place, returning stats
// in the teacher's PassStats shape.
func Expand(f *arcir.ArcFunction, sizer ShapeSizer, classifier arcir.TypeClassifier, varTypes map[typedast.VarId]intern.TypeIdx) diagnostics.PassStats {
	stats := diagnostics.PassStats{Name: "reuse"}
	for _, b := range f.Blocks {
		stats.ReuseRewrites += expandBlock(b, sizer, classifier, varTypes)
	}
	return stats
}

func expandBlock(b *arcir.ArcBlock, sizer ShapeSizer, classifier arcir.TypeClassifier, varTypes map[typedast.VarId]intern.TypeIdx) int {
	count := 0
	newBody := make([]arcir.ArcInstr, 0, len(b.Body))
	newSpans := make([]*typedast.Span, 0, len(b.Spans))

	for i := 0; i < len(b.Body); i++ {
		dec, ok := b.Body[i].(*arcir.RcDec)
		if !ok || i+1 >= len(b.Body) {
			newBody = append(newBody, b.Body[i])
			newSpans = append(newSpans, b.Spans[i])
			continue
		}
		ctor, ok := b.Body[i+1].(*arcir.Construct)
		if !ok || !sameShape(dec.Var, ctor.Type, sizer, classifier, varTypes) {
			newBody = append(newBody, b.Body[i])
			newSpans = append(newSpans, b.Spans[i])
			continue
		}

		newBody = append(newBody, &arcir.Reuse{
			Dst:  ctor.Dst,
			Type: ctor.Type,
			Ctor: ctor.Ctor,
			Args: ctor.Args,
			Src:  dec.Var,
		})
		newSpans = append(newSpans, b.Spans[i+1])
		count++
		i++ // consumed the Construct too
	}

	b.Body = newBody
	b.Spans = newSpans
	return count
}

// sameShape requires that src needs RC at all (a dead value with nothing
// to reuse can't be a reuse source) and that its word size matches the
// constructed type's.
func sameShape(src typedast.VarId, ctorTy intern.TypeIdx, sizer ShapeSizer, classifier arcir.TypeClassifier, varTypes map[typedast.VarId]intern.TypeIdx) bool {
	srcTy, ok := varTypes[src]
	if !ok || !classifier.NeedsRC(srcTy) {
		return false
	}
	return sizer.WordSize(srcTy) == sizer.WordSize(ctorTy)
}
