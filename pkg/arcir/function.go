package arcir

import (
	"fmt"

	"arccore/pkg/intern"
	"arccore/pkg/typedast"
)

// ArcParam is a typed, ownership-annotated function parameter.
type ArcParam struct {
	Var       typedast.VarId
	Type      intern.TypeIdx
	Ownership typedast.Ownership
}

// BlockParam is a typed block parameter, the classical-CFG substitute for
// SSA phi nodes (spec.md §1 Non-goals).
type BlockParam struct {
	Var  typedast.VarId
	Type intern.TypeIdx
}

// ArcBlock is one basic block: parameters, a straight-line body, and
// exactly one terminator. Spans is parallel to Body; a nil entry means no
// span was recorded for that instruction (spec.md §3.2).
type ArcBlock struct {
	ID         typedast.BlockId
	Params     []BlockParam
	Body       []ArcInstr
	Spans      []*typedast.Span
	Terminator ArcTerminator
}

// PushInstr appends an instruction (and its optional span) to the block.
func (b *ArcBlock) PushInstr(i ArcInstr, span *typedast.Span) {
	b.Body = append(b.Body, i)
	b.Spans = append(b.Spans, span)
}

// ArcFunction is a basic-block CFG function, the output contract of the
// middle-end (spec.md §3.2, §6).
type ArcFunction struct {
	Name   intern.Name
	Params []ArcParam
	Blocks []*ArcBlock
	Entry  typedast.BlockId
}

// NewFunction creates an empty function with no blocks yet; callers add
// blocks with AddBlock.
func NewFunction(name intern.Name, params []ArcParam) *ArcFunction {
	return &ArcFunction{Name: name, Params: params}
}

// AddBlock appends a new, empty block and returns its id. Blocks are
// addressed by slice position, matching the dense-index convention used
// throughout the IR.
func (f *ArcFunction) AddBlock() *ArcBlock {
	id := typedast.BlockId(len(f.Blocks))
	b := &ArcBlock{ID: id}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Block returns the block with the given id. Panics on a dangling id
// (spec.md §3.1 invariant).
func (f *ArcFunction) Block(id typedast.BlockId) *ArcBlock {
	if int(id) >= len(f.Blocks) {
		panic("arcir: dangling BlockId")
	}
	return f.Blocks[id]
}

// VarTypes maps every variable defined anywhere in f to its type: function
// parameters, block parameters, instruction results, and Invoke
// destinations. RC insertion and liveness consult it together with a
// TypeClassifier to decide whether a variable is RC-trackable at all.
func VarTypes(f *ArcFunction) map[typedast.VarId]intern.TypeIdx {
	out := make(map[typedast.VarId]intern.TypeIdx)
	for _, p := range f.Params {
		out[p.Var] = p.Type
	}
	for _, b := range f.Blocks {
		for _, p := range b.Params {
			out[p.Var] = p.Type
		}
		for _, instr := range b.Body {
			if dst, ok := instr.Def(); ok {
				if ty, ok := instr.DefType(); ok {
					out[dst] = ty
				}
			}
		}
		if inv, ok := b.Terminator.(*Invoke); ok && inv.HasDst {
			out[inv.Dst] = inv.Type
		}
	}
	return out
}

// Predecessors computes, for every block, the set of blocks whose
// terminator can transfer control to it. Used by RC insertion's edge
// cleanup and RC elimination's join-point dataflow (spec.md §4.4, §4.5).
func Predecessors(f *ArcFunction) map[typedast.BlockId][]typedast.BlockId {
	preds := make(map[typedast.BlockId][]typedast.BlockId, len(f.Blocks))
	for _, b := range f.Blocks {
		if b.Terminator == nil {
			continue
		}
		for _, succ := range Successors(b.Terminator) {
			preds[succ] = append(preds[succ], b.ID)
		}
	}
	return preds
}

// CheckInvariants verifies the structural invariants of spec.md §3.2 that
// can be checked without a liveness/ownership result: each variable is
// defined at most once, every block has exactly one terminator, and every
// Jump/Branch-implied successor is addressed with the right arity. A
// violation is an internal-compiler-error, not a user-facing diagnostic
// (spec.md §7).
func CheckInvariants(f *ArcFunction) error {
	defined := map[typedast.VarId]bool{}
	for _, p := range f.Params {
		if defined[p.Var] {
			return fmt.Errorf("arcir: function %v: parameter %v defined more than once", f.Name, p.Var)
		}
		defined[p.Var] = true
	}

	for _, b := range f.Blocks {
		for _, p := range b.Params {
			if defined[p.Var] {
				return fmt.Errorf("arcir: function %v: block %v: parameter %v defined more than once", f.Name, b.ID, p.Var)
			}
			defined[p.Var] = true
		}
		if len(b.Spans) != len(b.Body) {
			return fmt.Errorf("arcir: function %v: block %v: span count %d does not match body length %d", f.Name, b.ID, len(b.Spans), len(b.Body))
		}
		for _, instr := range b.Body {
			if dst, ok := instr.Def(); ok {
				if defined[dst] {
					return fmt.Errorf("arcir: function %v: block %v: variable %v defined more than once", f.Name, b.ID, dst)
				}
				defined[dst] = true
			}
		}
		if b.Terminator == nil {
			return fmt.Errorf("arcir: function %v: block %v: missing terminator", f.Name, b.ID)
		}
		if inv, ok := b.Terminator.(*Invoke); ok && inv.HasDst {
			if defined[inv.Dst] {
				return fmt.Errorf("arcir: function %v: block %v: invoke dst %v defined more than once", f.Name, b.ID, inv.Dst)
			}
			defined[inv.Dst] = true
		}
	}

	for _, b := range f.Blocks {
		switch t := b.Terminator.(type) {
		case *Jump:
			if err := f.checkArity(t.Target, len(t.Args)); err != nil {
				return err
			}
		default:
			_ = t
		}
		for _, succ := range Successors(b.Terminator) {
			if int(succ) >= len(f.Blocks) {
				return fmt.Errorf("arcir: function %v: block %v: dangling successor %v", f.Name, b.ID, succ)
			}
		}
	}

	return nil
}

func (f *ArcFunction) checkArity(target typedast.BlockId, argc int) error {
	if int(target) >= len(f.Blocks) {
		return fmt.Errorf("arcir: function %v: jump to dangling block %v", f.Name, target)
	}
	want := len(f.Blocks[target].Params)
	if argc != want {
		return fmt.Errorf("arcir: function %v: jump to block %v passes %d args, wants %d", f.Name, target, argc, want)
	}
	return nil
}
