// Package arcir defines the basic-block CFG IR that C5 builds and that C6
// through C9 analyze and mutate in place (spec.md §3.2). ArcInstr and
// ArcTerminator are closed tagged unions, dispatched by type switch rather
// than an open class hierarchy (spec.md §9).
package arcir

import (
	"arccore/pkg/intern"
	"arccore/pkg/typedast"
)

// UsePosition is one variable reference within an instruction, tagged with
// whether the reference is an "owned position" per spec.md's glossary: a
// slot whose value gains a refcount contributed by the storing instruction.
type UsePosition struct {
	Var   typedast.VarId
	Owned bool
}

// ArcInstr is one instruction in a block body.
type ArcInstr interface {
	isArcInstr()
	// Def returns the variable this instruction defines, if any.
	Def() (typedast.VarId, bool)
	// DefType returns the type of the variable Def defines, if any.
	DefType() (intern.TypeIdx, bool)
	// UsePositions lists every variable this instruction reads, in the
	// order they occur, each tagged owned/borrowed.
	UsePositions() []UsePosition
}

// Uses extracts the bare variable list from an instruction's UsePositions,
// for callers (liveness) that don't care about ownership.
func Uses(i ArcInstr) []typedast.VarId {
	pos := i.UsePositions()
	out := make([]typedast.VarId, len(pos))
	for idx, p := range pos {
		out[idx] = p.Var
	}
	return out
}

// ArcValueKind discriminates a Let instruction's right-hand side.
type ArcValueKind int

const (
	ValueInt ArcValueKind = iota
	ValueStr
	ValueBool
	ValueUnit
	ValueVar
)

// ArcValue is a scalar literal or a variable reference.
type ArcValue struct {
	Kind ArcValueKind
	Int  int64
	Str  string
	Bool bool
	Var  typedast.VarId
}

// Let binds dst to a literal or to an owned move of another variable.
type Let struct {
	Dst   typedast.VarId
	Type  intern.TypeIdx
	Value ArcValue
}

func (*Let) isArcInstr()                { }
func (i *Let) Def() (typedast.VarId, bool) { return i.Dst, true }
func (i *Let) DefType() (intern.TypeIdx, bool) { return i.Type, true }
func (i *Let) UsePositions() []UsePosition {
	if i.Value.Kind == ValueVar {
		return []UsePosition{{Var: i.Value.Var, Owned: true}}
	}
	return nil
}

// Construct allocates a heap value of the given constructor; every
// argument is an owned position (the new object contributes a refcount to
// each field it stores).
type Construct struct {
	Dst  typedast.VarId
	Type intern.TypeIdx
	Ctor string
	Args []typedast.VarId
}

func (*Construct) isArcInstr()                { }
func (i *Construct) Def() (typedast.VarId, bool) { return i.Dst, true }
func (i *Construct) DefType() (intern.TypeIdx, bool) { return i.Type, true }
func (i *Construct) UsePositions() []UsePosition {
	out := make([]UsePosition, len(i.Args))
	for idx, a := range i.Args {
		out[idx] = UsePosition{Var: a, Owned: true}
	}
	return out
}

// Project reads a field out of value without consuming it — the classic
// borrow-inheriting instruction (spec.md §3.2).
type Project struct {
	Dst   typedast.VarId
	Type  intern.TypeIdx
	Value typedast.VarId
	Field uint32
}

func (*Project) isArcInstr()                { }
func (i *Project) Def() (typedast.VarId, bool) { return i.Dst, true }
func (i *Project) DefType() (intern.TypeIdx, bool) { return i.Type, true }
func (i *Project) UsePositions() []UsePosition {
	return []UsePosition{{Var: i.Value, Owned: false}}
}

// Apply calls a statically-known function; arguments are owned positions.
type Apply struct {
	Dst  typedast.VarId
	Type intern.TypeIdx
	Func intern.Name
	Args []typedast.VarId
}

func (*Apply) isArcInstr()                { }
func (i *Apply) Def() (typedast.VarId, bool) { return i.Dst, true }
func (i *Apply) DefType() (intern.TypeIdx, bool) { return i.Type, true }
func (i *Apply) UsePositions() []UsePosition {
	out := make([]UsePosition, len(i.Args))
	for idx, a := range i.Args {
		out[idx] = UsePosition{Var: a, Owned: true}
	}
	return out
}

// ApplyIndirect calls through a closure value; both the closure and its
// arguments are owned positions.
type ApplyIndirect struct {
	Dst     typedast.VarId
	Type    intern.TypeIdx
	Closure typedast.VarId
	Args    []typedast.VarId
}

func (*ApplyIndirect) isArcInstr()                { }
func (i *ApplyIndirect) Def() (typedast.VarId, bool) { return i.Dst, true }
func (i *ApplyIndirect) DefType() (intern.TypeIdx, bool) { return i.Type, true }
func (i *ApplyIndirect) UsePositions() []UsePosition {
	out := make([]UsePosition, 0, len(i.Args)+1)
	out = append(out, UsePosition{Var: i.Closure, Owned: true})
	for _, a := range i.Args {
		out = append(out, UsePosition{Var: a, Owned: true})
	}
	return out
}

// PartialApply builds a closure over func, capturing args. Captured
// arguments default to owned positions; RC insertion may skip the RcInc
// for a specific capture under the closure-borrowed-capture rule
// (spec.md §4.4), which is a property of the call site, not of this
// instruction, so it is not encoded here.
type PartialApply struct {
	Dst  typedast.VarId
	Type intern.TypeIdx
	Func intern.Name
	Args []typedast.VarId
}

func (*PartialApply) isArcInstr()                { }
func (i *PartialApply) Def() (typedast.VarId, bool) { return i.Dst, true }
func (i *PartialApply) DefType() (intern.TypeIdx, bool) { return i.Type, true }
func (i *PartialApply) UsePositions() []UsePosition {
	out := make([]UsePosition, len(i.Args))
	for idx, a := range i.Args {
		out[idx] = UsePosition{Var: a, Owned: true}
	}
	return out
}

// Set stores value into base's field. The base reference is mutated, not
// consumed; value is an owned position (spec.md §4.4).
type Set struct {
	Base  typedast.VarId
	Field uint32
	Value typedast.VarId
}

func (*Set) isArcInstr()                { }
func (*Set) Def() (typedast.VarId, bool) { return 0, false }
func (*Set) DefType() (intern.TypeIdx, bool) { return 0, false }
func (i *Set) UsePositions() []UsePosition {
	return []UsePosition{{Var: i.Base, Owned: false}, {Var: i.Value, Owned: true}}
}

// SetTag overwrites base's variant tag in place (used by constructor reuse).
type SetTag struct {
	Base typedast.VarId
	Tag  string
}

func (*SetTag) isArcInstr()                { }
func (*SetTag) Def() (typedast.VarId, bool) { return 0, false }
func (*SetTag) DefType() (intern.TypeIdx, bool) { return 0, false }
func (i *SetTag) UsePositions() []UsePosition {
	return []UsePosition{{Var: i.Base, Owned: false}}
}

// IsShared tests whether var's refcount is greater than one. It does not
// consume var.
type IsShared struct {
	Dst typedast.VarId
	Var typedast.VarId
}

func (*IsShared) isArcInstr()                { }
func (i *IsShared) Def() (typedast.VarId, bool) { return i.Dst, true }
func (i *IsShared) DefType() (intern.TypeIdx, bool) { return intern.Bool, true }
func (i *IsShared) UsePositions() []UsePosition {
	return []UsePosition{{Var: i.Var, Owned: false}}
}

// RcInc increments var's refcount by count. Emitted only by C8/reuse; must
// not appear before RC insertion runs (spec.md §3.2 invariant 5).
type RcInc struct {
	Var   typedast.VarId
	Count uint32
}

func (*RcInc) isArcInstr()                { }
func (*RcInc) Def() (typedast.VarId, bool) { return 0, false }
func (*RcInc) DefType() (intern.TypeIdx, bool) { return 0, false }
func (i *RcInc) UsePositions() []UsePosition {
	return []UsePosition{{Var: i.Var, Owned: false}}
}

// RcDec decrements var's refcount, freeing it at zero.
type RcDec struct {
	Var typedast.VarId
}

func (*RcDec) isArcInstr()                { }
func (*RcDec) Def() (typedast.VarId, bool) { return 0, false }
func (*RcDec) DefType() (intern.TypeIdx, bool) { return 0, false }
func (i *RcDec) UsePositions() []UsePosition {
	return []UsePosition{{Var: i.Var, Owned: false}}
}
