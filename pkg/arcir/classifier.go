package arcir

import "arccore/pkg/intern"

// TypeClassifier tells the RC passes which types carry a refcount at all
// (spec.md §6). Scalars like int/bool never need RC tracking; enums,
// tuples containing a heap type, lists, and closures typically do.
type TypeClassifier interface {
	NeedsRC(ty intern.TypeIdx) bool
}

// BasicClassifier is the default TypeClassifier, grounded on the type
// interner's own Kind tag: of the primitives only Str carries a refcount,
// a tuple carries one only if one of its elements does, and everything
// else (enum, list, func/closure, opaque) does. A front-end with a more
// precise cost model can supply its own TypeClassifier instead.
type BasicClassifier struct {
	Types *intern.TypeInterner
}

func (c BasicClassifier) NeedsRC(ty intern.TypeIdx) bool {
	switch ty {
	case intern.Int, intern.Str, intern.Bool, intern.Unit, intern.Never, intern.Error:
		return ty == intern.Str // strings are heap-allocated and refcounted; the rest are not
	}
	info := c.Types.Info(ty)
	switch info.Kind {
	case intern.KindPrimitive:
		return false
	case intern.KindTuple:
		for _, e := range info.Elems {
			if c.NeedsRC(e) {
				return true
			}
		}
		return false
	default:
		return true
	}
}
