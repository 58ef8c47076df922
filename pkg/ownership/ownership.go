// Package ownership infers, per variable, where its reference-count
// contribution actually comes from (C7, spec.md §3.3, §4.4's "ownership-
// enhanced variant"). RC insertion and elimination consult the result to
// skip RcInc/RcDec on values that merely alias a borrowed parameter.
package ownership

import (
	"arccore/pkg/arcir"
	"arccore/pkg/typedast"
)

// Kind discriminates a DerivedOwnership value.
type Kind int

const (
	// Owned: this function's activation contributes a refcount to the value.
	Owned Kind = iota
	// Fresh: produced by a Construct (or call) returning a refcount-1 value.
	Fresh
	// BorrowedFrom: aliases Src without contributing an extra refcount.
	BorrowedFrom
)

// DerivedOwnership is one lattice value (spec.md §3.3).
type DerivedOwnership struct {
	Kind Kind
	Src  typedast.VarId // meaningful only when Kind == BorrowedFrom
}

// IsOwnedLike reports whether o should be treated as RC-trackable-and-
// owned by RC insertion — Owned and Fresh are indistinguishable for that
// purpose; only BorrowedFrom changes the insertion/elimination rules.
func (o DerivedOwnership) IsOwnedLike() bool { return o.Kind != BorrowedFrom }

// Table maps every variable with a known derivation to its ownership.
// A variable absent from the table (e.g. a loop-carried block parameter
// this pass could not resolve) is conservatively Owned.
type Table map[typedast.VarId]DerivedOwnership

// Get returns v's ownership, defaulting to Owned when v is unrecorded.
func (t Table) Get(v typedast.VarId) DerivedOwnership {
	if o, ok := t[v]; ok {
		return o
	}
	return DerivedOwnership{Kind: Owned}
}

// inferenceContext carries the running table while Infer walks the
// function, following the teacher's Context-struct-with-maps idiom for
// analysis passes.
type inferenceContext struct {
	table Table
}

func newInferenceContext() *inferenceContext {
	return &inferenceContext{table: Table{}}
}

// Infer computes a DerivedOwnership for every variable in f reachable from
// its parameters and instruction results.
//
// This is a single forward pass in block-id order, not an iterative
// fixpoint: a BorrowedFrom chain that only closes through a loop back-edge
// resolves to the conservative Owned default rather than its true root.
// Straight-line and forward-branching code (the overwhelming majority of
// generated IR) resolves exactly.
func Infer(f *arcir.ArcFunction) Table {
	ctx := newInferenceContext()

	for _, p := range f.Params {
		if p.Ownership == typedast.Borrowed {
			ctx.table[p.Var] = DerivedOwnership{Kind: BorrowedFrom, Src: p.Var}
		} else {
			ctx.table[p.Var] = DerivedOwnership{Kind: Owned}
		}
	}

	preds := arcir.Predecessors(f)

	for _, b := range f.Blocks {
		for _, bp := range b.Params {
			ctx.table[bp.Var] = ctx.inferBlockParam(f, b, bp, preds)
		}
		for _, instr := range b.Body {
			ctx.inferInstr(instr)
		}
		if inv, ok := b.Terminator.(*arcir.Invoke); ok && inv.HasDst {
			ctx.table[inv.Dst] = DerivedOwnership{Kind: Fresh}
		}
	}

	return ctx.table
}

func (ctx *inferenceContext) root(v typedast.VarId) (typedast.VarId, bool) {
	o := ctx.table.Get(v)
	if o.Kind != BorrowedFrom {
		return 0, false
	}
	return o.Src, true
}

func (ctx *inferenceContext) inferInstr(instr arcir.ArcInstr) {
	dst, ok := instr.Def()
	if !ok {
		return
	}
	switch i := instr.(type) {
	case *arcir.Let:
		if i.Value.Kind == arcir.ValueVar {
			ctx.table[dst] = ctx.table.Get(i.Value.Var)
		} else {
			ctx.table[dst] = DerivedOwnership{Kind: Fresh}
		}
	case *arcir.Construct:
		ctx.table[dst] = DerivedOwnership{Kind: Fresh}
	case *arcir.Project:
		if root, ok := ctx.root(i.Value); ok {
			ctx.table[dst] = DerivedOwnership{Kind: BorrowedFrom, Src: root}
		} else {
			ctx.table[dst] = DerivedOwnership{Kind: BorrowedFrom, Src: i.Value}
		}
	case *arcir.Apply, *arcir.ApplyIndirect, *arcir.PartialApply:
		ctx.table[dst] = DerivedOwnership{Kind: Fresh}
	case *arcir.IsShared:
		ctx.table[dst] = DerivedOwnership{Kind: Owned}
	default:
		ctx.table[dst] = DerivedOwnership{Kind: Owned}
	}
}

// inferBlockParam resolves a join-point parameter by checking whether
// every predecessor's Jump passes an argument borrowed from the same
// ultimate root; otherwise the parameter is conservatively Owned.
func (ctx *inferenceContext) inferBlockParam(f *arcir.ArcFunction, b *arcir.ArcBlock, bp arcir.BlockParam, preds map[typedast.BlockId][]typedast.BlockId) DerivedOwnership {
	paramIdx := -1
	for idx, p := range b.Params {
		if p.Var == bp.Var {
			paramIdx = idx
			break
		}
	}
	if paramIdx < 0 {
		return DerivedOwnership{Kind: Owned}
	}

	var commonRoot typedast.VarId
	haveRoot := false
	sawAny := false
	for _, predID := range preds[b.ID] {
		pred := f.Block(predID)
		jmp, ok := pred.Terminator.(*arcir.Jump)
		if !ok || jmp.Target != b.ID || paramIdx >= len(jmp.Args) {
			return DerivedOwnership{Kind: Owned}
		}
		sawAny = true
		root, ok := ctx.root(jmp.Args[paramIdx])
		if !ok {
			return DerivedOwnership{Kind: Owned}
		}
		if !haveRoot {
			commonRoot, haveRoot = root, true
			continue
		}
		if root != commonRoot {
			return DerivedOwnership{Kind: Owned}
		}
	}
	if !sawAny || !haveRoot {
		return DerivedOwnership{Kind: Owned}
	}
	return DerivedOwnership{Kind: BorrowedFrom, Src: commonRoot}
}
