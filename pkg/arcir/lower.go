package arcir

import (
	"fmt"

	"arccore/pkg/intern"
	"arccore/pkg/pattern"
	"arccore/pkg/typedast"
)

// MatchArms bundles one ExprMatch node's surface arms with the VarId each
// arm's pattern bindings should materialize into. The arena has no arms
// field of its own (spec.md §3.1 keeps Expr a fixed-shape struct); bodies
// reference bound pattern variables the same way they reference any other
// local, by VarId, so the front-end that assigned those VarIds also
// supplies this mapping alongside the arms.
type MatchArms struct {
	Arms     []pattern.MatchArm
	BindVars map[intern.Name]typedast.VarId
}

// MatchTable associates every ExprMatch node in a TypedFunction's arena
// with its MatchArms.
type MatchTable map[typedast.ExprId]MatchArms

// Lower builds an ArcFunction from a TypedFunction by walking its
// expression arena, compiling every ExprMatch via pkg/pattern, and emitting
// the resulting DecisionTree as Switch/Branch terminators. Building the IR
// from a typed expression tree is the constructive half of C5: spec.md
// §3.2 specifies the IR's shape; this is how a function actually arrives
// in that shape before C6 through C9 run over it.
func Lower(tf *typedast.TypedFunction, matches MatchTable, names *intern.StringInterner, resolver pattern.Resolver) (*ArcFunction, error) {
	params := make([]ArcParam, len(tf.Params))
	for i, p := range tf.Params {
		params[i] = ArcParam{Var: p.Var, Type: p.Type, Ownership: p.Ownership}
	}

	b := &builder{
		tf:       tf,
		matches:  matches,
		names:    names,
		resolver: resolver,
		f:        NewFunction(tf.Name, params),
		nextVar:  maxVarId(tf) + 1,
	}

	entry := b.f.AddBlock()
	b.f.Entry = entry.ID
	b.cur = entry

	result, err := b.lower(tf.EntryExpr)
	if err != nil {
		return nil, err
	}
	b.cur.Terminator = &Return{Value: result, HasValue: true}

	return b.f, nil
}

// maxVarId scans every VarId already assigned by the front-end (params and
// arena Let bindings) so fresh IR temporaries never collide with them.
func maxVarId(tf *typedast.TypedFunction) typedast.VarId {
	var max typedast.VarId
	for _, p := range tf.Params {
		if p.Var > max {
			max = p.Var
		}
	}
	for i := 0; i < tf.Arena.Len(); i++ {
		e := tf.Arena.Get(typedast.ExprId(i))
		if e.Var > max {
			max = e.Var
		}
		if e.LetVar > max {
			max = e.LetVar
		}
	}
	return max
}

type builder struct {
	tf       *typedast.TypedFunction
	matches  MatchTable
	names    *intern.StringInterner
	resolver pattern.Resolver
	f        *ArcFunction
	cur      *ArcBlock
	nextVar  typedast.VarId
}

func (b *builder) fresh() typedast.VarId {
	v := b.nextVar
	b.nextVar++
	return v
}

func (b *builder) push(instr ArcInstr, id typedast.ExprId) {
	var span *typedast.Span
	if id != typedast.InvalidExprId {
		s := b.tf.Arena.Span(id)
		span = &s
	}
	b.cur.PushInstr(instr, span)
}

func (b *builder) lower(id typedast.ExprId) (typedast.VarId, error) {
	e := b.tf.Arena.Get(id)
	ty := b.tf.Arena.Type(id)

	switch e.Kind {
	case typedast.ExprIntLit:
		dst := b.fresh()
		b.push(&Let{Dst: dst, Type: ty, Value: ArcValue{Kind: ValueInt, Int: e.IntVal}}, id)
		return dst, nil

	case typedast.ExprStrLit:
		dst := b.fresh()
		b.push(&Let{Dst: dst, Type: ty, Value: ArcValue{Kind: ValueStr, Str: e.StrVal}}, id)
		return dst, nil

	case typedast.ExprBoolLit:
		dst := b.fresh()
		b.push(&Let{Dst: dst, Type: ty, Value: ArcValue{Kind: ValueBool, Bool: e.BoolVal}}, id)
		return dst, nil

	case typedast.ExprVar:
		dst := b.fresh()
		b.push(&Let{Dst: dst, Type: ty, Value: ArcValue{Kind: ValueVar, Var: e.Var}}, id)
		return dst, nil

	case typedast.ExprBinOp:
		lhs, err := b.lower(e.Lhs)
		if err != nil {
			return 0, err
		}
		rhs, err := b.lower(e.Rhs)
		if err != nil {
			return 0, err
		}
		dst := b.fresh()
		b.push(&Apply{Dst: dst, Type: ty, Func: b.names.Intern(e.Op), Args: []typedast.VarId{lhs, rhs}}, id)
		return dst, nil

	case typedast.ExprCall:
		args := make([]typedast.VarId, len(e.Args))
		for i, a := range e.Args {
			v, err := b.lower(a)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		dst := b.fresh()
		b.push(&Apply{Dst: dst, Type: ty, Func: e.Callee, Args: args}, id)
		return dst, nil

	case typedast.ExprTuple:
		args := make([]typedast.VarId, len(e.Elems))
		for i, el := range e.Elems {
			v, err := b.lower(el)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		dst := b.fresh()
		b.push(&Construct{Dst: dst, Type: ty, Ctor: "tuple", Args: args}, id)
		return dst, nil

	case typedast.ExprListLit:
		args := make([]typedast.VarId, len(e.Elems))
		for i, el := range e.Elems {
			v, err := b.lower(el)
			if err != nil {
				return 0, err
			}
			args[i] = v
		}
		dst := b.fresh()
		b.push(&Construct{Dst: dst, Type: ty, Ctor: "list", Args: args}, id)
		return dst, nil

	case typedast.ExprFieldAccess:
		base, err := b.lower(e.FieldBase)
		if err != nil {
			return 0, err
		}
		dst := b.fresh()
		b.push(&Project{Dst: dst, Type: ty, Value: base, Field: e.FieldIndex}, id)
		return dst, nil

	case typedast.ExprLet:
		v, err := b.lower(e.LetValue)
		if err != nil {
			return 0, err
		}
		b.push(&Let{Dst: e.LetVar, Type: b.tf.Arena.Type(e.LetValue), Value: ArcValue{Kind: ValueVar, Var: v}}, id)
		return b.lower(e.LetBody)

	case typedast.ExprIf:
		return b.lowerIf(e, ty)

	case typedast.ExprMatch:
		return b.lowerMatch(e, id, ty)

	default:
		return 0, fmt.Errorf("arcir: lower: unhandled expression kind %v", e.Kind)
	}
}

func (b *builder) lowerIf(e typedast.Expr, ty intern.TypeIdx) (typedast.VarId, error) {
	cond, err := b.lower(e.Cond)
	if err != nil {
		return 0, err
	}
	condBlock := b.cur

	thenBlock := b.f.AddBlock()
	elseBlock := b.f.AddBlock()
	condBlock.Terminator = &Branch{Cond: cond, Then: thenBlock.ID, Else: elseBlock.ID}

	joinParam := b.fresh()
	join := b.f.AddBlock()
	join.Params = []BlockParam{{Var: joinParam, Type: ty}}

	b.cur = thenBlock
	thenVal, err := b.lower(e.Then)
	if err != nil {
		return 0, err
	}
	b.cur.Terminator = &Jump{Target: join.ID, Args: []typedast.VarId{thenVal}}

	b.cur = elseBlock
	elseVal, err := b.lower(e.Else)
	if err != nil {
		return 0, err
	}
	b.cur.Terminator = &Jump{Target: join.ID, Args: []typedast.VarId{elseVal}}

	b.cur = join
	return joinParam, nil
}

func (b *builder) lowerMatch(e typedast.Expr, id typedast.ExprId, resultTy intern.TypeIdx) (typedast.VarId, error) {
	ma, ok := b.matches[id]
	if !ok {
		return 0, fmt.Errorf("arcir: lower: no match arms registered for expr %d", id)
	}
	scrutVar, err := b.lower(e.MatchScrut)
	if err != nil {
		return 0, err
	}

	tree, err := pattern.Compile(ma.Arms, 0, b.names, b.resolver)
	if err != nil {
		return 0, err
	}

	joinParam := b.fresh()
	join := b.f.AddBlock()
	join.Params = []BlockParam{{Var: joinParam, Type: resultTy}}

	cache := map[string]typedast.VarId{"": scrutVar}
	if err := b.lowerTree(tree, ma, cache, join.ID); err != nil {
		return 0, err
	}

	b.cur = join
	return joinParam, nil
}

// lowerTree recursively lowers one DecisionTree node into b.cur, eventually
// terminating every reachable path with a Jump to joinID carrying the
// matched arm's body result.
func (b *builder) lowerTree(tree pattern.DecisionTree, ma MatchArms, cache map[string]typedast.VarId, joinID typedast.BlockId) error {
	switch t := tree.(type) {
	case *pattern.Fail:
		b.cur.Terminator = &Unreachable{}
		return nil

	case *pattern.Leaf:
		return b.lowerLeaf(t.ArmIndex, t.Bindings, ma, cache, joinID)

	case *pattern.Guard:
		condVar, err := b.lower(t.GuardExpr)
		if err != nil {
			return err
		}
		trueBlock := b.f.AddBlock()
		falseBlock := b.f.AddBlock()
		b.cur.Terminator = &Branch{Cond: condVar, Then: trueBlock.ID, Else: falseBlock.ID}

		b.cur = trueBlock
		if err := b.lowerLeaf(t.ArmIndex, t.Bindings, ma, cache, joinID); err != nil {
			return err
		}

		b.cur = falseBlock
		return b.lowerTree(t.OnFail, ma, cache, joinID)

	case *pattern.Switch:
		return b.lowerSwitch(t, ma, cache, joinID)

	default:
		return fmt.Errorf("arcir: lower: unknown decision tree node %T", tree)
	}
}

func (b *builder) lowerLeaf(armIndex uint32, bindings []pattern.Binding, ma MatchArms, cache map[string]typedast.VarId, joinID typedast.BlockId) error {
	for _, bind := range bindings {
		dst, ok := ma.BindVars[bind.Name]
		if !ok {
			return fmt.Errorf("arcir: lower: arm %d binds %v with no VarId supplied", armIndex, bind.Name)
		}
		if err := b.materializeInto(dst, bind.Path, cache); err != nil {
			return err
		}
	}
	arm := ma.Arms[armIndex]
	val, err := b.lower(arm.Body)
	if err != nil {
		return err
	}
	b.cur.Terminator = &Jump{Target: joinID, Args: []typedast.VarId{val}}
	return nil
}

func (b *builder) lowerSwitch(sw *pattern.Switch, ma MatchArms, cache map[string]typedast.VarId, joinID typedast.BlockId) error {
	scrut, err := b.materializePath(sw.Path, cache)
	if err != nil {
		return err
	}

	switch sw.TestKind {
	case pattern.BoolEq:
		var trueEdge, falseEdge *pattern.SwitchEdge
		for i := range sw.Edges {
			if sw.Edges[i].Value.Bool {
				trueEdge = &sw.Edges[i]
			} else {
				falseEdge = &sw.Edges[i]
			}
		}
		thenBlock := b.f.AddBlock()
		elseBlock := b.f.AddBlock()
		b.cur.Terminator = &Branch{Cond: scrut, Then: thenBlock.ID, Else: elseBlock.ID}

		if trueEdge != nil {
			b.cur = thenBlock
			if err := b.lowerTree(trueEdge.Tree, ma, cache, joinID); err != nil {
				return err
			}
		} else {
			thenBlock.Terminator = &Unreachable{}
		}
		if falseEdge != nil {
			b.cur = elseBlock
			if err := b.lowerTree(falseEdge.Tree, ma, cache, joinID); err != nil {
				return err
			}
		} else {
			elseBlock.Terminator = &Unreachable{}
		}
		return nil

	case pattern.EnumTag:
		cases := make([]SwitchCase, len(sw.Edges))
		edgeBlocks := make([]*ArcBlock, len(sw.Edges))
		for i, edge := range sw.Edges {
			blk := b.f.AddBlock()
			edgeBlocks[i] = blk
			cases[i] = SwitchCase{Tag: edge.Value.VariantName, Target: blk.ID}
		}
		var defaultBlock *ArcBlock
		if sw.Default != nil {
			defaultBlock = b.f.AddBlock()
		}
		term := &SwitchTerm{Scrutinee: scrut, Cases: cases}
		if defaultBlock != nil {
			term.Default = defaultBlock.ID
			term.HasDefault = true
		}
		b.cur.Terminator = term

		for i, edge := range sw.Edges {
			b.cur = edgeBlocks[i]
			if err := b.lowerTree(edge.Tree, ma, cache, joinID); err != nil {
				return err
			}
		}
		if defaultBlock != nil {
			b.cur = defaultBlock
			if err := b.lowerTree(sw.Default, ma, cache, joinID); err != nil {
				return err
			}
		}
		return nil

	default:
		// IntEq, StrEq, ListLen: a linear chain of equality branches,
		// since ArcTerminator has no generic n-way value switch besides
		// the tag-keyed SwitchTerm used for enums.
		return b.lowerLinearSwitch(sw, scrut, ma, cache, joinID)
	}
}

func (b *builder) lowerLinearSwitch(sw *pattern.Switch, scrut typedast.VarId, ma MatchArms, cache map[string]typedast.VarId, joinID typedast.BlockId) error {
	for _, edge := range sw.Edges {
		litVar := b.fresh()
		b.push(literalOf(litVar, sw.TestKind, edge.Value), typedast.InvalidExprId)

		eqDst := b.fresh()
		b.push(&Apply{Dst: eqDst, Type: intern.Bool, Func: b.names.Intern(eqOpName(sw.TestKind, edge.Value)), Args: []typedast.VarId{scrut, litVar}}, typedast.InvalidExprId)

		matchBlock := b.f.AddBlock()
		nextBlock := b.f.AddBlock()
		b.cur.Terminator = &Branch{Cond: eqDst, Then: matchBlock.ID, Else: nextBlock.ID}

		b.cur = matchBlock
		if err := b.lowerTree(edge.Tree, ma, cache, joinID); err != nil {
			return err
		}

		b.cur = nextBlock
	}

	if sw.Default != nil {
		return b.lowerTree(sw.Default, ma, cache, joinID)
	}
	b.cur.Terminator = &Unreachable{}
	return nil
}

// literalOf materializes the comparison value an IntEq/StrEq/ListLen edge
// tests against. ListLen compares a length, an int regardless of the
// scrutinee's own element type.
func literalOf(dst typedast.VarId, kind pattern.TestKind, value pattern.TestValue) *Let {
	switch kind {
	case pattern.StrEq:
		return &Let{Dst: dst, Type: intern.Str, Value: ArcValue{Kind: ValueStr, Str: value.Str}}
	case pattern.ListLen:
		return &Let{Dst: dst, Type: intern.Int, Value: ArcValue{Kind: ValueInt, Int: int64(value.ListLenVal)}}
	default:
		return &Let{Dst: dst, Type: intern.Int, Value: ArcValue{Kind: ValueInt, Int: value.Int}}
	}
}

// eqOpName names the comparison primitive a linear-switch edge applies.
// ArcInstr has no dedicated literal-equality opcode (spec.md §3.2's
// instruction list is representative, not exhaustive); codegen resolves
// these names to actual comparison code, out of scope here per §1.
func eqOpName(kind pattern.TestKind, value pattern.TestValue) string {
	switch kind {
	case pattern.StrEq:
		return "str_eq"
	case pattern.ListLen:
		if value.ListExact {
			return "list_len_eq"
		}
		return "list_len_ge"
	default:
		return "int_eq"
	}
}

// materializePath resolves path (relative to the match's scrutinee) to a
// VarId, materializing and caching any intermediate Project instructions
// along the way. Each PathKind maps to a field-indexed Project: the
// distinction between tuple positions, enum payload slots, and list
// elements/tails is a property of the type the backend must know, not of
// this generic accessor (codegen is out of scope per §1).
func (b *builder) materializePath(path []pattern.PathInstr, cache map[string]typedast.VarId) (typedast.VarId, error) {
	key := pathKey(path)
	if v, ok := cache[key]; ok {
		return v, nil
	}
	parentKey := pathKey(path[:len(path)-1])
	parent, ok := cache[parentKey]
	if !ok {
		var err error
		parent, err = b.materializePath(path[:len(path)-1], cache)
		if err != nil {
			return 0, err
		}
	}
	last := path[len(path)-1]
	dst := b.fresh()
	b.push(&Project{Dst: dst, Type: intern.Unit, Value: parent, Field: last.Index}, typedast.InvalidExprId)
	cache[key] = dst
	return dst, nil
}

// materializeInto is like materializePath but writes the result into a
// caller-chosen VarId (a pattern-bound name) instead of a fresh temp.
func (b *builder) materializeInto(dst typedast.VarId, path []pattern.PathInstr, cache map[string]typedast.VarId) error {
	if len(path) == 0 {
		scrut, ok := cache[""]
		if !ok {
			return fmt.Errorf("arcir: lower: empty binding path with no scrutinee cached")
		}
		b.push(&Let{Dst: dst, Type: intern.Unit, Value: ArcValue{Kind: ValueVar, Var: scrut}}, typedast.InvalidExprId)
		return nil
	}
	parentKey := pathKey(path[:len(path)-1])
	parent, ok := cache[parentKey]
	if !ok {
		var err error
		parent, err = b.materializePath(path[:len(path)-1], cache)
		if err != nil {
			return err
		}
	}
	last := path[len(path)-1]
	b.push(&Project{Dst: dst, Type: intern.Unit, Value: parent, Field: last.Index}, typedast.InvalidExprId)
	cache[pathKey(path)] = dst
	return nil
}

func pathKey(path []pattern.PathInstr) string {
	s := ""
	for _, p := range path {
		s += fmt.Sprintf("%d:%d/", p.Kind, p.Index)
	}
	return s
}
