// Package rcelim removes redundant RcInc/RcDec pairs from an already
// RC-balanced ArcFunction (C9, spec.md §4.5). The three pairwise passes
// preserve net per-path RC deltas: they only remove an inc that strictly
// precedes its matching dec in program order, with no intervening use.
// The ownership-based pass additionally drops single RcInc/RcDec ops on
// BorrowedFrom variables (see Eliminate).
package rcelim

import (
	"arccore/pkg/arcir"
	"arccore/pkg/ownership"
	"arccore/pkg/typedast"
)

// Eliminate runs RC elimination over f in place until no pass removes
// anything further, returning the total number of RcInc/RcDec pairs (or,
// for the single-ended ownership-based pass, individual redundant RC ops)
// removed across every iteration, for pkg/diagnostics.PassStats. owners
// may be nil; when present, the ownership-based pass additionally removes
// RcInc/RcDec on BorrowedFrom variables whose source has not yet been
// dec'd in the same block.
func Eliminate(f *arcir.ArcFunction, owners ownership.Table) int {
	total := 0
	for {
		n := intraBlock(f)
		n += crossBlockSinglePred(f)
		n += multiPredJoin(f)
		if owners != nil {
			n += ownershipBased(f, owners)
		}
		total += n
		if n == 0 {
			return total
		}
	}
}

type pair struct {
	block         *arcir.ArcBlock
	incPos, decPos int
}

// intraBlock runs the top-down and bottom-up scans of spec.md §4.5 over
// every block, deduplicates the candidates they find, and removes them.
// Returns the number of pairs removed.
func intraBlock(f *arcir.ArcFunction) int {
	count := 0
	for _, b := range f.Blocks {
		seen := map[[2]int]bool{}
		var pairs []pair

		for _, p := range topDownPairs(b) {
			key := [2]int{p.incPos, p.decPos}
			if !seen[key] {
				seen[key] = true
				pairs = append(pairs, pair{b, p.incPos, p.decPos})
			}
		}
		for _, p := range bottomUpPairs(b) {
			key := [2]int{p.incPos, p.decPos}
			if !seen[key] {
				seen[key] = true
				pairs = append(pairs, pair{b, p.incPos, p.decPos})
			}
		}

		if len(pairs) > 0 {
			removePositions(b, pairs)
			count += len(pairs)
		}
	}
	return count
}

type posPair struct{ incPos, decPos int }

// topDownPairs implements the forward scan: Incremented(pos) is set on
// RcInc(v, 1), overwriting any stale entry, consumed by a matching RcDec,
// and lifted to MightBeUsed (no longer matchable) by any other use of v.
func topDownPairs(b *arcir.ArcBlock) []posPair {
	type state struct {
		incPos int
		active bool
	}
	incState := map[typedast.VarId]state{}
	var out []posPair

	for i, instr := range b.Body {
		switch ins := instr.(type) {
		case *arcir.RcInc:
			if ins.Count == 1 {
				incState[ins.Var] = state{incPos: i, active: true}
				continue
			}
			delete(incState, ins.Var)
		case *arcir.RcDec:
			if st, ok := incState[ins.Var]; ok && st.active {
				out = append(out, posPair{incPos: st.incPos, decPos: i})
			}
			delete(incState, ins.Var)
		default:
			for _, u := range arcir.Uses(instr) {
				delete(incState, u)
			}
			if dst, ok := instr.Def(); ok {
				delete(incState, dst)
			}
		}
	}
	return out
}

// bottomUpPairs is the symmetric backward scan: Decremented(pos) is set on
// RcDec, matched by the nearest preceding RcInc(v,1) with no intervening
// use.
func bottomUpPairs(b *arcir.ArcBlock) []posPair {
	type state struct {
		decPos int
		active bool
	}
	decState := map[typedast.VarId]state{}
	var out []posPair

	for i := len(b.Body) - 1; i >= 0; i-- {
		instr := b.Body[i]
		switch ins := instr.(type) {
		case *arcir.RcDec:
			decState[ins.Var] = state{decPos: i, active: true}
			continue
		case *arcir.RcInc:
			if ins.Count == 1 {
				if st, ok := decState[ins.Var]; ok && st.active {
					out = append(out, posPair{incPos: i, decPos: st.decPos})
				}
			}
			delete(decState, ins.Var)
		default:
			for _, u := range arcir.Uses(instr) {
				delete(decState, u)
			}
			if dst, ok := instr.Def(); ok {
				delete(decState, dst)
			}
		}
	}
	return out
}

// removePositions deletes the instructions at the given positions from b,
// rebuilding Body and Spans in one pass.
func removePositions(b *arcir.ArcBlock, pairs []pair) {
	drop := map[int]bool{}
	for _, p := range pairs {
		drop[p.incPos] = true
		drop[p.decPos] = true
	}
	newBody := make([]arcir.ArcInstr, 0, len(b.Body))
	newSpans := make([]*typedast.Span, 0, len(b.Spans))
	for i, instr := range b.Body {
		if drop[i] {
			continue
		}
		newBody = append(newBody, instr)
		newSpans = append(newSpans, b.Spans[i])
	}
	b.Body = newBody
	b.Spans = newSpans
}

// crossBlockSinglePred implements spec.md §4.5's cross-block elimination:
// a leading RcDec(v) in B, whose sole predecessor P neither uses v in its
// terminator nor has an intervening use after its trailing RcInc(v,1), is
// removed together with that trailing inc. Returns the number of pairs
// removed.
func crossBlockSinglePred(f *arcir.ArcFunction) int {
	preds := arcir.Predecessors(f)
	count := 0

	for _, b := range f.Blocks {
		ps := preds[b.ID]
		if len(ps) != 1 || ps[0] == b.ID {
			continue
		}
		pred := f.Block(ps[0])

		leadingDecs := 0
		for _, instr := range b.Body {
			if _, ok := instr.(*arcir.RcDec); !ok {
				break
			}
			leadingDecs++
		}

		removeFromB := map[int]bool{}
		for i := 0; i < leadingDecs; i++ {
			v := b.Body[i].(*arcir.RcDec).Var
			if usesVar(pred.Terminator, v) {
				continue
			}
			if incPos, ok := trailingMatchingInc(pred, v); ok {
				removeFromB[i] = true
				removePositions(pred, []pair{{pred, incPos, incPos}})
				count++
			}
		}
		if len(removeFromB) > 0 {
			newBody := make([]arcir.ArcInstr, 0, len(b.Body))
			newSpans := make([]*typedast.Span, 0, len(b.Spans))
			for i, instr := range b.Body {
				if removeFromB[i] {
					continue
				}
				newBody = append(newBody, instr)
				newSpans = append(newSpans, b.Spans[i])
			}
			b.Body = newBody
			b.Spans = newSpans
		}
	}
	return count
}

// trailingMatchingInc scans pred's body backward from the end for the
// nearest instruction touching v: if it is RcInc(v, 1), that position
// matches.
func trailingMatchingInc(pred *arcir.ArcBlock, v typedast.VarId) (int, bool) {
	for i := len(pred.Body) - 1; i >= 0; i-- {
		instr := pred.Body[i]
		if inc, ok := instr.(*arcir.RcInc); ok && inc.Var == v {
			if inc.Count == 1 {
				return i, true
			}
			return 0, false
		}
		if touchesVar(instr, v) {
			return 0, false
		}
	}
	return 0, false
}

func touchesVar(instr arcir.ArcInstr, v typedast.VarId) bool {
	for _, u := range arcir.Uses(instr) {
		if u == v {
			return true
		}
	}
	if dst, ok := instr.Def(); ok && dst == v {
		return true
	}
	return false
}

func usesVar(t arcir.ArcTerminator, v typedast.VarId) bool {
	if t == nil {
		return false
	}
	for _, u := range t.Uses() {
		if u == v {
			return true
		}
	}
	return false
}

// multiPredJoin implements spec.md §4.5's forward dataflow over "available
// RcInc" sets: a leading RcDec(v) at a join block B is eliminated, together
// with the trailing inc in every predecessor, when v is available
// (last RC op is an uncontested RcInc(v)) at the exit of every predecessor.
// Returns the number of decs removed at join points.
func multiPredJoin(f *arcir.ArcFunction) int {
	preds := arcir.Predecessors(f)
	count := 0

	for _, b := range f.Blocks {
		ps := preds[b.ID]
		if len(ps) < 2 {
			continue
		}

		var availSets []map[typedast.VarId]int
		ok := true
		for _, pid := range ps {
			if pid == b.ID {
				ok = false
				break
			}
			availSets = append(availSets, availableOut(f.Block(pid)))
		}
		if !ok {
			continue
		}

		avail := availSets[0]
		for _, s := range availSets[1:] {
			for v := range avail {
				if _, in := s[v]; !in {
					delete(avail, v)
				}
			}
		}

		leadingDecs := 0
		for _, instr := range b.Body {
			if _, ok := instr.(*arcir.RcDec); !ok {
				break
			}
			leadingDecs++
		}

		removeFromB := map[int]bool{}
		for i := 0; i < leadingDecs; i++ {
			v := b.Body[i].(*arcir.RcDec).Var
			if _, in := avail[v]; !in {
				continue
			}
			removeFromB[i] = true
			for _, pid := range ps {
				pred := f.Block(pid)
				incPos := availableOut(pred)[v]
				removePositions(pred, []pair{{pred, incPos, incPos}})
			}
			count++
		}

		if len(removeFromB) > 0 {
			newBody := make([]arcir.ArcInstr, 0, len(b.Body))
			newSpans := make([]*typedast.Span, 0, len(b.Spans))
			for i, instr := range b.Body {
				if removeFromB[i] {
					continue
				}
				newBody = append(newBody, instr)
				newSpans = append(newSpans, b.Spans[i])
			}
			b.Body = newBody
			b.Spans = newSpans
		}
	}
	return count
}

// availableOut returns, for each variable whose last RC op in b is an
// uncontested RcInc(v, 1) not used by b's terminator, the position of that
// inc.
func availableOut(b *arcir.ArcBlock) map[typedast.VarId]int {
	last := map[typedast.VarId]int{}
	isInc := map[typedast.VarId]bool{}

	for i, instr := range b.Body {
		switch ins := instr.(type) {
		case *arcir.RcInc:
			last[ins.Var] = i
			isInc[ins.Var] = ins.Count == 1
		case *arcir.RcDec:
			last[ins.Var] = i
			isInc[ins.Var] = false
		default:
			for _, u := range arcir.Uses(instr) {
				delete(last, u)
				delete(isInc, u)
			}
			if dst, ok := instr.Def(); ok {
				delete(last, dst)
				delete(isInc, dst)
			}
		}
	}

	out := map[typedast.VarId]int{}
	for v, pos := range last {
		if isInc[v] && !usesVar(b.Terminator, v) {
			out[v] = pos
		}
	}
	return out
}

// ownershipBased implements spec.md §4.5's final pass: any RcInc/RcDec on a
// variable derived BorrowedFrom(src), whose src has not been dec'd earlier
// in the same block, carries no real refcount obligation and is removed.
// Returns the number of individual RC ops dropped this way (unlike the
// other three passes, these are single-ended removals, not matched pairs).
func ownershipBased(f *arcir.ArcFunction, owners ownership.Table) int {
	count := 0
	for _, b := range f.Blocks {
		decedSrc := map[typedast.VarId]bool{}
		var drop []int

		for i, instr := range b.Body {
			switch ins := instr.(type) {
			case *arcir.RcInc:
				if redundantBorrow(owners, ins.Var, decedSrc) {
					drop = append(drop, i)
				}
			case *arcir.RcDec:
				if redundantBorrow(owners, ins.Var, decedSrc) {
					drop = append(drop, i)
				} else {
					decedSrc[ins.Var] = true
				}
			}
		}

		if len(drop) > 0 {
			dropSet := map[int]bool{}
			for _, i := range drop {
				dropSet[i] = true
			}
			newBody := make([]arcir.ArcInstr, 0, len(b.Body))
			newSpans := make([]*typedast.Span, 0, len(b.Spans))
			for i, instr := range b.Body {
				if dropSet[i] {
					continue
				}
				newBody = append(newBody, instr)
				newSpans = append(newSpans, b.Spans[i])
			}
			b.Body = newBody
			b.Spans = newSpans
			count += len(drop)
		}
	}
	return count
}

func redundantBorrow(owners ownership.Table, v typedast.VarId, decedSrc map[typedast.VarId]bool) bool {
	o := owners.Get(v)
	if o.Kind != ownership.BorrowedFrom {
		return false
	}
	return !decedSrc[o.Src]
}
