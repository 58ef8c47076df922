package arcir

import (
	"arccore/pkg/intern"
	"arccore/pkg/typedast"
)

// ArcTerminator is the closed set of ways a block can end (spec.md §3.2).
type ArcTerminator interface {
	isArcTerminator()
	// Uses lists the variables this terminator reads.
	Uses() []typedast.VarId
}

// Return ends the function, optionally producing a value. The returned
// value is an owned position: ownership transfers to the caller.
type Return struct {
	Value    typedast.VarId
	HasValue bool
}

func (*Return) isArcTerminator() { }
func (t *Return) Uses() []typedast.VarId {
	if t.HasValue {
		return []typedast.VarId{t.Value}
	}
	return nil
}

// Jump transfers control to target, passing args as its block parameters.
type Jump struct {
	Target typedast.BlockId
	Args   []typedast.VarId
}

func (*Jump) isArcTerminator()          { }
func (t *Jump) Uses() []typedast.VarId { return t.Args }

// Branch evaluates cond and jumps to Then or Else; neither successor takes
// block arguments from a Branch (spec.md §3.2 describes Branch without an
// args list — successors needing values use a preceding Let/Project and a
// shared join block parameter instead).
type Branch struct {
	Cond       typedast.VarId
	Then, Else typedast.BlockId
}

func (*Branch) isArcTerminator()          { }
func (t *Branch) Uses() []typedast.VarId { return []typedast.VarId{t.Cond} }

// SwitchCase pairs one tag value with its target block.
type SwitchCase struct {
	Tag    string
	Target typedast.BlockId
}

// SwitchTerm dispatches on scrutinee's variant tag.
type SwitchTerm struct {
	Scrutinee  typedast.VarId
	Cases      []SwitchCase
	Default    typedast.BlockId
	HasDefault bool
}

func (*SwitchTerm) isArcTerminator()          { }
func (t *SwitchTerm) Uses() []typedast.VarId { return []typedast.VarId{t.Scrutinee} }

// Invoke calls func and dispatches to Normal on success or Unwind on a
// raised exception. Dst is defined at the entry of Normal, not at the
// instruction site — liveness and RC insertion treat it like an extra
// block parameter of Normal (spec.md §3.2 invariant 3).
type Invoke struct {
	Dst    typedast.VarId
	HasDst bool
	Type   intern.TypeIdx
	Func   intern.Name
	Args   []typedast.VarId

	Normal, Unwind typedast.BlockId
}

func (*Invoke) isArcTerminator()          { }
func (t *Invoke) Uses() []typedast.VarId { return t.Args }

// Resume re-raises the in-flight exception (only valid in an unwind block).
type Resume struct{}

func (*Resume) isArcTerminator()          { }
func (*Resume) Uses() []typedast.VarId { return nil }

// Unreachable marks a program point the front-end has proven dead.
type Unreachable struct{}

func (*Unreachable) isArcTerminator()          { }
func (*Unreachable) Uses() []typedast.VarId { return nil }

// Successors returns every block this terminator can transfer control to,
// in a stable order (Normal before Unwind for Invoke, Then before Else for
// Branch, declaration order for Switch cases with Default last).
func Successors(t ArcTerminator) []typedast.BlockId {
	switch term := t.(type) {
	case *Return, *Resume, *Unreachable:
		return nil
	case *Jump:
		return []typedast.BlockId{term.Target}
	case *Branch:
		return []typedast.BlockId{term.Then, term.Else}
	case *SwitchTerm:
		out := make([]typedast.BlockId, 0, len(term.Cases)+1)
		for _, c := range term.Cases {
			out = append(out, c.Target)
		}
		if term.HasDefault {
			out = append(out, term.Default)
		}
		return out
	case *Invoke:
		return []typedast.BlockId{term.Normal, term.Unwind}
	default:
		return nil
	}
}
