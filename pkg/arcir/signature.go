package arcir

import (
	"arccore/pkg/intern"
	"arccore/pkg/typedast"
)

// AnnotatedParam describes one parameter of a callee, as seen from a
// caller deciding whether a use is an owned or borrowed position.
type AnnotatedParam struct {
	Name      intern.Name
	Type      intern.TypeIdx
	Ownership typedast.Ownership
}

// AnnotatedSig is the ownership-annotated signature of a function,
// resolved ahead of RC insertion (spec.md §6).
type AnnotatedSig struct {
	Params     []AnnotatedParam
	ReturnType intern.TypeIdx
}

// SignatureTable maps a function name to its annotated signature. RC
// insertion consults it to decide whether a PartialApply capture is a
// closure-borrowed capture (spec.md §4.4).
type SignatureTable map[intern.Name]AnnotatedSig

// BorrowedParam reports whether sig's parameter at pos is Borrowed. A
// callee with no recorded signature is conservatively treated as taking
// every argument by ownership.
func (t SignatureTable) BorrowedParam(fn intern.Name, pos int) bool {
	sig, ok := t[fn]
	if !ok || pos < 0 || pos >= len(sig.Params) {
		return false
	}
	return sig.Params[pos].Ownership == typedast.Borrowed
}
