package intern

import "fmt"

// TypeIdx is an opaque handle into the type interner. Equality between two
// TypeIdx values implies structural equality of the underlying types
// (spec.md §3.1) — two calls to Intern with the same shape return the same
// handle.
type TypeIdx uint32

// Builtin sentinels. Every TypeInterner reserves these at construction so
// callers can compare against them without a lookup.
const (
	Int TypeIdx = iota
	Str
	Bool
	Unit
	Never
	Error
	firstUserType
)

// Kind discriminates the shape carried by a TypeInfo.
type Kind int

const (
	KindPrimitive Kind = iota
	KindEnum
	KindTuple
	KindList
	KindFunc
	KindOpaque
)

// EnumVariant describes one constructor of an enum/sum type.
type EnumVariant struct {
	Name   string
	Fields []TypeIdx
}

// TypeInfo is the structural description behind a TypeIdx.
type TypeInfo struct {
	Kind Kind

	// KindPrimitive / KindOpaque
	Name string

	// KindEnum
	Variants []EnumVariant

	// KindTuple
	Elems []TypeIdx

	// KindList
	Elem TypeIdx

	// KindFunc
	Params []TypeIdx
	Ret    TypeIdx
}

type typeKey string

// TypeInterner canonicalizes type shapes to TypeIdx handles. See
// StringInterner for the concurrency contract.
type TypeInterner struct {
	infos []TypeInfo
	byKey map[typeKey]TypeIdx
}

// NewTypeInterner creates an interner with the builtin sentinels already
// registered at their fixed indices.
func NewTypeInterner() *TypeInterner {
	ti := &TypeInterner{
		infos: make([]TypeInfo, firstUserType),
		byKey: make(map[typeKey]TypeIdx),
	}
	ti.infos[Int] = TypeInfo{Kind: KindPrimitive, Name: "int"}
	ti.infos[Str] = TypeInfo{Kind: KindPrimitive, Name: "str"}
	ti.infos[Bool] = TypeInfo{Kind: KindPrimitive, Name: "bool"}
	ti.infos[Unit] = TypeInfo{Kind: KindPrimitive, Name: "unit"}
	ti.infos[Never] = TypeInfo{Kind: KindPrimitive, Name: "never"}
	ti.infos[Error] = TypeInfo{Kind: KindPrimitive, Name: "error"}
	for k := TypeIdx(0); k < firstUserType; k++ {
		ti.byKey[keyFor(ti.infos[k])] = k
	}
	return ti
}

// Info returns the structural description for idx. Panics on a dangling
// handle (spec.md §3.1 invariant).
func (ti *TypeInterner) Info(idx TypeIdx) TypeInfo {
	if int(idx) >= len(ti.infos) {
		panic("intern: dangling TypeIdx handle")
	}
	return ti.infos[idx]
}

func (ti *TypeInterner) intern(info TypeInfo) TypeIdx {
	key := keyFor(info)
	if idx, ok := ti.byKey[key]; ok {
		return idx
	}
	idx := TypeIdx(len(ti.infos))
	ti.infos = append(ti.infos, info)
	ti.byKey[key] = idx
	return idx
}

// Enum interns a named sum type with the given variants.
func (ti *TypeInterner) Enum(name string, variants []EnumVariant) TypeIdx {
	return ti.intern(TypeInfo{Kind: KindEnum, Name: name, Variants: variants})
}

// Tuple interns a fixed-arity product type.
func (ti *TypeInterner) Tuple(elems ...TypeIdx) TypeIdx {
	return ti.intern(TypeInfo{Kind: KindTuple, Elems: elems})
}

// List interns a homogeneous list type.
func (ti *TypeInterner) List(elem TypeIdx) TypeIdx {
	return ti.intern(TypeInfo{Kind: KindList, Elem: elem})
}

// Func interns a function type.
func (ti *TypeInterner) Func(params []TypeIdx, ret TypeIdx) TypeIdx {
	return ti.intern(TypeInfo{Kind: KindFunc, Params: params, Ret: ret})
}

// Opaque interns a named type with no structure visible to this package
// (e.g. an abstract handle type from the front-end).
func (ti *TypeInterner) Opaque(name string) TypeIdx {
	return ti.intern(TypeInfo{Kind: KindOpaque, Name: name})
}

// Option interns the standard `Option<elem>` enum: `None | Some(elem)`.
// Variant order matches the corpus convention (None=0, Some=1).
func (ti *TypeInterner) Option(elem TypeIdx) TypeIdx {
	return ti.Enum("Option", []EnumVariant{
		{Name: "None", Fields: nil},
		{Name: "Some", Fields: []TypeIdx{elem}},
	})
}

// Result interns the standard `Result<ok, err>` enum: `Ok(ok) | Err(err)`.
func (ti *TypeInterner) Result(ok, err TypeIdx) TypeIdx {
	return ti.Enum("Result", []EnumVariant{
		{Name: "Ok", Fields: []TypeIdx{ok}},
		{Name: "Err", Fields: []TypeIdx{err}},
	})
}

// IsNever reports whether idx is the `never` sentinel.
func (ti *TypeInterner) IsNever(idx TypeIdx) bool { return idx == Never }

// IsUninhabitedVariant reports whether every field of the variant is of
// type `never`. A nullary variant (zero fields) is never uninhabited —
// the vacuous-truth reading of "every field is never" would otherwise
// wrongly discard constructors like `None` that carry no fields at all.
func IsUninhabitedVariant(v EnumVariant, ti *TypeInterner) bool {
	if len(v.Fields) == 0 {
		return false
	}
	for _, f := range v.Fields {
		if !ti.IsNever(f) {
			return false
		}
	}
	return true
}

func keyFor(info TypeInfo) typeKey {
	switch info.Kind {
	case KindPrimitive, KindOpaque:
		return typeKey(fmt.Sprintf("%d:%s", info.Kind, info.Name))
	case KindEnum:
		s := fmt.Sprintf("enum:%s(", info.Name)
		for _, v := range info.Variants {
			s += fmt.Sprintf("%s%v,", v.Name, v.Fields)
		}
		return typeKey(s + ")")
	case KindTuple:
		return typeKey(fmt.Sprintf("tuple:%v", info.Elems))
	case KindList:
		return typeKey(fmt.Sprintf("list:%d", info.Elem))
	case KindFunc:
		return typeKey(fmt.Sprintf("func:%v->%d", info.Params, info.Ret))
	default:
		panic("intern: unknown type kind")
	}
}
