package arcir

import (
	"arccore/pkg/intern"
	"arccore/pkg/typedast"
)

// Reuse is a pseudo-instruction inserted by the constructor-reuse pass
// between RC insertion and RC elimination (spec.md §5's "constructor-reuse
// expansion"). It replaces a dying allocation's RcDec immediately followed
// by a same-shape Construct: instead of freeing Src and allocating a fresh
// cell, codegen reinitializes Src's storage in place with Ctor/Args.
//
// Src is consumed exactly as the RcDec it replaces would have consumed it
// (an owned, non-reusable use) so RC elimination's balance accounting sees
// no change: one RC op disappears, but the net per-path delta on Src is
// identical to what the eliminated RcDec contributed.
type Reuse struct {
	Dst  typedast.VarId
	Type intern.TypeIdx
	Ctor string
	Args []typedast.VarId
	Src  typedast.VarId
}

func (*Reuse) isArcInstr()                       {}
func (i *Reuse) Def() (typedast.VarId, bool)     { return i.Dst, true }
func (i *Reuse) DefType() (intern.TypeIdx, bool) { return i.Type, true }
func (i *Reuse) UsePositions() []UsePosition {
	out := make([]UsePosition, 0, len(i.Args)+1)
	out = append(out, UsePosition{Var: i.Src, Owned: true})
	for _, a := range i.Args {
		out = append(out, UsePosition{Var: a, Owned: true})
	}
	return out
}
