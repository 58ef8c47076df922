package rcinsert

import (
	"sort"

	"arccore/pkg/arcir"
	"arccore/pkg/intern"
	"arccore/pkg/liveness"
	"arccore/pkg/typedast"
)

// edgeCleanup implements spec.md §4.4's "Edge cleanup": for each block with
// predecessors whose live_out disagrees with the block's own live_in on
// RC-trackable variables, dec the gap — at the block's start when every
// predecessor agrees, or on a per-edge trampoline block when they don't.
//
// Trampoline splitting is implemented for Jump and Branch predecessors,
// which cover every merge point a structured if/match/loop lowering
// produces. A predecessor reaching the block through a Switch case or an
// Invoke's normal/unwind edge is folded into the uniform prepend using
// only the gap variables common to every predecessor — always safe, since
// a variable dead on every incoming edge is dead at the block's start
// regardless of path — while Jump/Branch predecessors still get their own
// trampoline for whatever remains in their larger gap.
func edgeCleanup(f *arcir.ArcFunction, live liveness.Result, classifier arcir.TypeClassifier, varTypes map[typedast.VarId]intern.TypeIdx) {
	preds := arcir.Predecessors(f)

	needsRC := func(v typedast.VarId) bool {
		ty, ok := varTypes[v]
		return ok && classifier.NeedsRC(ty)
	}

	gapOf := func(predID, blockID typedast.BlockId) map[typedast.VarId]bool {
		gap := map[typedast.VarId]bool{}
		if predID == blockID {
			return gap // self-loop: skipped per spec.md §4.4
		}
		out := live[predID].LiveOut
		in := live[blockID].LiveIn
		for v := range out {
			if needsRC(v) && !in[v] {
				gap[v] = true
			}
		}
		return gap
	}

	// Blocks are appended to f.Blocks as trampolines are created; capture
	// the original count so we only process pre-existing merge points.
	originalBlocks := len(f.Blocks)

	for bi := 0; bi < originalBlocks; bi++ {
		b := f.Blocks[bi]
		ps := preds[b.ID]
		if len(ps) == 0 {
			continue
		}

		gaps := make(map[typedast.BlockId]map[typedast.VarId]bool, len(ps))
		for _, pid := range ps {
			gaps[pid] = gapOf(pid, b.ID)
		}

		if len(ps) == 1 {
			prependSet(b, gaps[ps[0]])
			continue
		}

		if allEqual(gaps, ps) {
			prependSet(b, gaps[ps[0]])
			continue
		}

		common := intersect(gaps, ps)
		prependSet(b, common)

		for _, pid := range ps {
			residual := subtract(gaps[pid], common)
			if len(residual) == 0 {
				continue
			}
			pred := f.Block(pid)
			if !splittable(pred.Terminator) {
				continue // folded into the common prepend above
			}
			tramp := f.AddBlock()
			tramp.Params = append(tramp.Params, b.Params...)
			args := make([]typedast.VarId, len(b.Params))
			for i, p := range b.Params {
				args[i] = p.Var
			}
			tramp.Terminator = &arcir.Jump{Target: b.ID, Args: args}
			prependSet(tramp, residual)
			redirectTarget(pred.Terminator, b.ID, tramp.ID)
		}
	}
}

func splittable(t arcir.ArcTerminator) bool {
	switch t.(type) {
	case *arcir.Jump, *arcir.Branch:
		return true
	default:
		return false
	}
}

func redirectTarget(term arcir.ArcTerminator, from, to typedast.BlockId) {
	switch t := term.(type) {
	case *arcir.Jump:
		if t.Target == from {
			t.Target = to
		}
	case *arcir.Branch:
		if t.Then == from {
			t.Then = to
		}
		if t.Else == from {
			t.Else = to
		}
	}
}

func prependSet(b *arcir.ArcBlock, gap map[typedast.VarId]bool) {
	if len(gap) == 0 {
		return
	}
	vars := make([]typedast.VarId, 0, len(gap))
	for v := range gap {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i] < vars[j] })
	prepend(b, vars)
}

func allEqual(gaps map[typedast.BlockId]map[typedast.VarId]bool, ps []typedast.BlockId) bool {
	first := gaps[ps[0]]
	for _, pid := range ps[1:] {
		g := gaps[pid]
		if len(g) != len(first) {
			return false
		}
		for v := range first {
			if !g[v] {
				return false
			}
		}
	}
	return true
}

func intersect(gaps map[typedast.BlockId]map[typedast.VarId]bool, ps []typedast.BlockId) map[typedast.VarId]bool {
	out := map[typedast.VarId]bool{}
	for v := range gaps[ps[0]] {
		inAll := true
		for _, pid := range ps[1:] {
			if !gaps[pid][v] {
				inAll = false
				break
			}
		}
		if inAll {
			out[v] = true
		}
	}
	return out
}

func subtract(a, b map[typedast.VarId]bool) map[typedast.VarId]bool {
	out := map[typedast.VarId]bool{}
	for v := range a {
		if !b[v] {
			out[v] = true
		}
	}
	return out
}
