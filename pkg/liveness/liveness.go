// Package liveness computes per-block live-in/live-out variable sets over
// an ArcFunction via backward fixed-point dataflow (C6, spec.md §4.3).
package liveness

import (
	"arccore/pkg/arcir"
	"arccore/pkg/typedast"
)

// VarSet is an unordered set of variables.
type VarSet map[typedast.VarId]bool

// Clone returns a shallow copy of s.
func (s VarSet) Clone() VarSet {
	out := make(VarSet, len(s))
	for v := range s {
		out[v] = true
	}
	return out
}

func equalSets(a, b VarSet) bool {
	if len(a) != len(b) {
		return false
	}
	for v := range a {
		if !b[v] {
			return false
		}
	}
	return true
}

// BlockLiveness is one block's dataflow facts.
type BlockLiveness struct {
	LiveIn  VarSet
	LiveOut VarSet
}

// Result holds the fixpoint for every block in a function.
type Result map[typedast.BlockId]*BlockLiveness

// Analyze runs liveness to a fixpoint over reverse postorder (spec.md §4.3).
// It tracks every variable uniformly; RC passes that only care about
// RC-trackable variables filter the result themselves via a TypeClassifier.
func Analyze(f *arcir.ArcFunction) Result {
	order := reversePostorder(f)
	result := make(Result, len(f.Blocks))
	for _, b := range f.Blocks {
		result[b.ID] = &BlockLiveness{LiveIn: VarSet{}, LiveOut: VarSet{}}
	}

	for changed := true; changed; {
		changed = false
		for _, id := range order {
			b := f.Block(id)
			out := liveOutFor(f, b, result)
			in := transfer(b, out)

			cur := result[id]
			if !equalSets(cur.LiveOut, out) || !equalSets(cur.LiveIn, in) {
				changed = true
			}
			cur.LiveOut = out
			cur.LiveIn = in
		}
	}

	return result
}

// liveOutFor implements live_out[B] = ⋃ { live_in[S] \ defined_at_entry(S) |
// S ∈ succ(B) } ∪ term_uses(B). defined_at_entry(S) is S's block
// parameters, plus — when the edge is B's Invoke targeting S as Normal —
// the invoke's destination (spec.md §4.3's special case).
func liveOutFor(f *arcir.ArcFunction, b *arcir.ArcBlock, result Result) VarSet {
	out := VarSet{}

	if inv, ok := b.Terminator.(*arcir.Invoke); ok {
		addFiltered(out, result[inv.Normal].LiveIn, f.Block(inv.Normal), inv.Dst, inv.HasDst)
		addFiltered(out, result[inv.Unwind].LiveIn, f.Block(inv.Unwind), 0, false)
	} else {
		for _, succ := range arcir.Successors(b.Terminator) {
			addFiltered(out, result[succ].LiveIn, f.Block(succ), 0, false)
		}
	}

	if b.Terminator != nil {
		for _, u := range b.Terminator.Uses() {
			out[u] = true
		}
	}
	return out
}

func addFiltered(dst VarSet, src VarSet, succBlock *arcir.ArcBlock, extra typedast.VarId, hasExtra bool) {
	params := make(map[typedast.VarId]bool, len(succBlock.Params))
	for _, p := range succBlock.Params {
		params[p.Var] = true
	}
	for v := range src {
		if params[v] {
			continue
		}
		if hasExtra && v == extra {
			continue
		}
		dst[v] = true
	}
}

// transfer walks b's body backward from liveOut, removing definitions and
// adding uses, then removes b's own parameters (defined at block entry).
func transfer(b *arcir.ArcBlock, liveOut VarSet) VarSet {
	live := liveOut.Clone()
	for i := len(b.Body) - 1; i >= 0; i-- {
		instr := b.Body[i]
		if dst, ok := instr.Def(); ok {
			delete(live, dst)
		}
		for _, u := range arcir.Uses(instr) {
			live[u] = true
		}
	}
	for _, p := range b.Params {
		delete(live, p.Var)
	}
	return live
}

func reversePostorder(f *arcir.ArcFunction) []typedast.BlockId {
	visited := make(map[typedast.BlockId]bool, len(f.Blocks))
	post := make([]typedast.BlockId, 0, len(f.Blocks))

	var visit func(id typedast.BlockId)
	visit = func(id typedast.BlockId) {
		if visited[id] {
			return
		}
		visited[id] = true
		b := f.Block(id)
		for _, s := range arcir.Successors(b.Terminator) {
			visit(s)
		}
		post = append(post, id)
	}

	visit(f.Entry)
	for _, b := range f.Blocks {
		if !visited[b.ID] {
			visit(b.ID)
		}
	}

	out := make([]typedast.BlockId, len(post))
	for i, id := range post {
		out[len(post)-1-i] = id
	}
	return out
}
