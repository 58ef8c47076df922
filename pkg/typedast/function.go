package typedast

import "arccore/pkg/intern"

// Ownership annotates how a function parameter (or, later, an ArcParam)
// relates to the reference count of the value passed in (spec.md §3.3).
type Ownership int

const (
	Owned Ownership = iota
	Borrowed
)

func (o Ownership) String() string {
	if o == Borrowed {
		return "borrowed"
	}
	return "owned"
}

// Param is a typed, ownership-annotated function parameter.
type Param struct {
	Var       VarId
	Type      intern.TypeIdx
	Ownership Ownership
}

// PatternKey identifies one position in a compiled match — currently only
// "the pattern that compiled arm N" (spec.md §4.1), but kept as a struct
// rather than a bare index so it can grow additional key kinds (e.g.
// sub-pattern positions) without breaking callers that already switch on
// it structurally.
type PatternKey struct {
	ArmIndex uint32
}

// PatternResolution records how an identifier pattern in a given arm was
// disambiguated: either it binds a fresh local, or it matches a nullary
// enum variant of that name (spec.md §4.1).
type PatternResolution struct {
	Key PatternKey

	IsVariantMatch bool
	VariantName    string
	BindName       intern.Name
}

// ResolutionTable is a PatternKey-sorted slice, searched by binary search
// per spec.md §4.1 ("stored in a sorted vector keyed by PatternKey").
type ResolutionTable []PatternResolution

// Lookup finds the resolution for key, if any, via binary search. The
// table must be sorted by (ArmIndex) — callers build it with NewResolutionTable.
func (rt ResolutionTable) Lookup(key PatternKey) (PatternResolution, bool) {
	lo, hi := 0, len(rt)
	for lo < hi {
		mid := (lo + hi) / 2
		if rt[mid].Key.ArmIndex < key.ArmIndex {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	if lo < len(rt) && rt[lo].Key.ArmIndex == key.ArmIndex {
		return rt[lo], true
	}
	return PatternResolution{}, false
}

// NewResolutionTable sorts resolutions by ArmIndex and returns the table.
func NewResolutionTable(resolutions []PatternResolution) ResolutionTable {
	out := make(ResolutionTable, len(resolutions))
	copy(out, resolutions)
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1].Key.ArmIndex > out[j].Key.ArmIndex; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}

// TypedFunction is the input contract from the front-end/resolver
// (spec.md §6): a single resolved function, ready for pattern
// canonicalization and ARC IR construction.
type TypedFunction struct {
	Name               intern.Name
	Params             []Param
	ReturnType         intern.TypeIdx
	EntryExpr          ExprId
	Arena              *Arena
	ExprTypes          []intern.TypeIdx
	PatternResolutions ResolutionTable
}
