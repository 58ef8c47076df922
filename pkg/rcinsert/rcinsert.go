// Package rcinsert places RcInc/RcDec instructions into an ArcFunction
// under the Perceus discipline (C8, spec.md §4.4): every heap value is
// freed exactly once at its last use, every non-last use increments
// first, and borrowed values are never inc'd/dec'd except the one
// ownership-transferring inc immediately before a Return.
package rcinsert

import (
	"fmt"

	"arccore/pkg/arcir"
	"arccore/pkg/intern"
	"arccore/pkg/liveness"
	"arccore/pkg/ownership"
	"arccore/pkg/typedast"
)

// Stats reports how many RC instructions Insert actually placed, for
// pkg/diagnostics.PassStats.
type Stats struct {
	IncsInserted int
	DecsInserted int
}

// Insert runs RC insertion over f in place. f must contain no RcInc/RcDec
// instructions yet (spec.md §3.2 invariant 5); live must be the liveness
// result for f as it stood before insertion. owners may be nil — when
// present, insertion uses the "ownership-enhanced variant" of §4.4 that
// tracks borrowed-derived variables across blocks instead of only
// recognizing borrowed function parameters directly.
func Insert(f *arcir.ArcFunction, live liveness.Result, classifier arcir.TypeClassifier, sigs arcir.SignatureTable, owners ownership.Table) (Stats, error) {
	if err := assertNoRC(f); err != nil {
		return Stats{}, err
	}
	if sigs == nil {
		sigs = arcir.SignatureTable{}
	}

	ins := &inserter{
		f:          f,
		live:       live,
		classifier: classifier,
		sigs:       sigs,
		owners:     owners,
		varTypes:   arcir.VarTypes(f),
	}

	for _, b := range f.Blocks {
		ins.processBlock(b)
	}
	ins.deadParamCleanup()
	ins.entryCleanup()
	edgeCleanup(f, live, classifier, ins.varTypes)

	return countRC(f), nil
}

// countRC tallies every RcInc/RcDec now present in f. assertNoRC guarantees
// f had none before Insert ran, so this total is exactly what Insert added.
func countRC(f *arcir.ArcFunction) Stats {
	var s Stats
	for _, b := range f.Blocks {
		for _, instr := range b.Body {
			switch instr.(type) {
			case *arcir.RcInc:
				s.IncsInserted++
			case *arcir.RcDec:
				s.DecsInserted++
			}
		}
	}
	return s
}

func assertNoRC(f *arcir.ArcFunction) error {
	for _, b := range f.Blocks {
		for _, instr := range b.Body {
			switch instr.(type) {
			case *arcir.RcInc, *arcir.RcDec:
				return fmt.Errorf("rcinsert: function %v: block %v already contains RC instructions", f.Name, b.ID)
			}
		}
	}
	return nil
}

type ownerClass int

const (
	classOwned ownerClass = iota
	classBorrowedParam
	classBorrowedDerived
)

type inserter struct {
	f          *arcir.ArcFunction
	live       liveness.Result
	classifier arcir.TypeClassifier
	sigs       arcir.SignatureTable
	owners     ownership.Table
	varTypes   map[typedast.VarId]intern.TypeIdx
}

func (ins *inserter) needsRC(v typedast.VarId) bool {
	ty, ok := ins.varTypes[v]
	if !ok {
		return false
	}
	return ins.classifier.NeedsRC(ty)
}

func (ins *inserter) isBorrowedParam(v typedast.VarId) bool {
	for _, p := range ins.f.Params {
		if p.Var == v {
			return p.Ownership == typedast.Borrowed
		}
	}
	return false
}

func (ins *inserter) classify(v typedast.VarId) ownerClass {
	if ins.isBorrowedParam(v) {
		return classBorrowedParam
	}
	if ins.owners != nil {
		if o := ins.owners.Get(v); o.Kind == ownership.BorrowedFrom {
			return classBorrowedDerived
		}
	}
	return classOwned
}

func (ins *inserter) isClosureBorrowedCapture(instr arcir.ArcInstr, pos int, liveOutB liveness.VarSet) bool {
	pa, ok := instr.(*arcir.PartialApply)
	if !ok {
		return false
	}
	if !ins.sigs.BorrowedParam(pa.Func, pos) {
		return false
	}
	return !liveOutB[pa.Dst]
}

// processBlock runs the per-block backward pass of spec.md §4.4: the
// terminator pass, then the body backward pass.
func (ins *inserter) processBlock(b *arcir.ArcBlock) {
	bl := ins.live[b.ID]
	live := bl.LiveOut.Clone()
	ins.filterRC(live)

	tail := ins.terminatorPass(b, live)
	ins.bodyPass(b, live, bl.LiveOut)
	b.Body = append(b.Body, tail...)
	for range tail {
		b.Spans = append(b.Spans, nil)
	}
}

func (ins *inserter) filterRC(s liveness.VarSet) {
	for v := range s {
		if !ins.needsRC(v) {
			delete(s, v)
		}
	}
}

// terminatorPass returns the RcInc instructions to append after the (not
// yet touched) block body, immediately before the terminator.
func (ins *inserter) terminatorPass(b *arcir.ArcBlock, live liveness.VarSet) []arcir.ArcInstr {
	if b.Terminator == nil {
		return nil
	}
	_, isReturn := b.Terminator.(*arcir.Return)

	var out []arcir.ArcInstr
	for _, v := range b.Terminator.Uses() {
		if !ins.needsRC(v) {
			continue
		}
		switch ins.classify(v) {
		case classBorrowedParam, classBorrowedDerived:
			if isReturn {
				out = append(out, &arcir.RcInc{Var: v, Count: 1})
			}
		default:
			if live[v] {
				out = append(out, &arcir.RcInc{Var: v, Count: 1})
			}
			live[v] = true
		}
	}
	return out
}

// bodyPass rewrites b.Body (and b.Spans) in place with inc/dec
// instructions interleaved per spec.md §4.4 step 2. liveOutB is the
// block's original live_out, used by the closure-borrowed-capture check,
// which must not see the mutations bodyPass makes to live.
func (ins *inserter) bodyPass(b *arcir.ArcBlock, live liveness.VarSet, liveOutB liveness.VarSet) {
	newBody := make([]arcir.ArcInstr, 0, len(b.Body))
	newSpans := make([]*typedast.Span, 0, len(b.Spans))

	for i := len(b.Body) - 1; i >= 0; i-- {
		instr := b.Body[i]
		span := b.Spans[i]

		group := []arcir.ArcInstr{}
		spans := []*typedast.Span{}

		seen := map[typedast.VarId]bool{}
		for pos, up := range instr.UsePositions() {
			u := up.Var
			if !ins.needsRC(u) {
				continue
			}
			switch ins.classify(u) {
			case classBorrowedParam:
				continue
			case classBorrowedDerived:
				if up.Owned && !ins.isClosureBorrowedCapture(instr, pos, liveOutB) {
					group = append(group, &arcir.RcInc{Var: u, Count: 1})
					spans = append(spans, nil)
				}
			default:
				if seen[u] {
					group = append(group, &arcir.RcInc{Var: u, Count: 1})
					spans = append(spans, nil)
				} else {
					seen[u] = true
					if live[u] {
						group = append(group, &arcir.RcInc{Var: u, Count: 1})
						spans = append(spans, nil)
					}
					live[u] = true
				}
			}
		}

		group = append(group, instr)
		spans = append(spans, span)

		if dst, ok := instr.Def(); ok {
			if ins.needsRC(dst) && ins.classify(dst) == classOwned && !live[dst] {
				group = append(group, &arcir.RcDec{Var: dst})
				spans = append(spans, nil)
			}
			delete(live, dst)
		}

		newBody = append(group, newBody...)
		newSpans = append(spans, newSpans...)
	}

	b.Body = newBody
	b.Spans = newSpans
}

// deadParamCleanup implements spec.md §4.4 steps 3 and 4: RC-trackable,
// owned block parameters (and Invoke destinations treated as extra block
// parameters) that are dead at block entry get a prepended RcDec.
func (ins *inserter) deadParamCleanup() {
	invokeDstsByBlock := map[typedast.BlockId][]typedast.VarId{}
	for _, b := range ins.f.Blocks {
		if inv, ok := b.Terminator.(*arcir.Invoke); ok && inv.HasDst {
			invokeDstsByBlock[inv.Normal] = append(invokeDstsByBlock[inv.Normal], inv.Dst)
		}
	}

	for _, b := range ins.f.Blocks {
		liveIn := ins.live[b.ID].LiveIn
		var dead []typedast.VarId
		for _, p := range b.Params {
			if ins.needsRC(p.Var) && ins.classify(p.Var) == classOwned && !liveIn[p.Var] {
				dead = append(dead, p.Var)
			}
		}
		for _, v := range invokeDstsByBlock[b.ID] {
			if ins.needsRC(v) && ins.classify(v) == classOwned && !liveIn[v] {
				dead = append(dead, v)
			}
		}
		prepend(b, dead)
	}
}

// entryCleanup implements spec.md §4.4 step 5.
func (ins *inserter) entryCleanup() {
	entry := ins.f.Block(ins.f.Entry)
	liveIn := ins.live[ins.f.Entry].LiveIn
	var dead []typedast.VarId
	for _, p := range ins.f.Params {
		if p.Ownership == typedast.Owned && ins.needsRC(p.Var) && !liveIn[p.Var] {
			dead = append(dead, p.Var)
		}
	}
	prepend(entry, dead)
}

func prepend(b *arcir.ArcBlock, vars []typedast.VarId) {
	if len(vars) == 0 {
		return
	}
	instrs := make([]arcir.ArcInstr, len(vars))
	spans := make([]*typedast.Span, len(vars))
	for i, v := range vars {
		instrs[i] = &arcir.RcDec{Var: v}
	}
	b.Body = append(instrs, b.Body...)
	b.Spans = append(spans, b.Spans...)
}
