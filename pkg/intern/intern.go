// Package intern canonicalizes names and types to small integer handles.
//
// Both interners are append-only: once a string or type shape has been
// interned it keeps its handle for the lifetime of the process. This lets
// every later pass compare handles with a plain integer equality check
// instead of comparing strings or walking type trees (C1, spec.md §2).
package intern

import "sync"

// Name is an opaque handle into the string interner. Equality between two
// Names is equality between the underlying strings.
type Name uint32

// InvalidName is never produced by Intern; it marks an unset field.
const InvalidName Name = 0

// StringInterner canonicalizes strings (identifiers, variant names, field
// names, ...) to Name handles.
//
// Safe for concurrent use: a driver that parallelizes a pipeline run across
// functions (spec.md §5) may share one interner across goroutines as long
// as all writes happen before any pass starts reading (spec.md §5, "Shared
// resources").
type StringInterner struct {
	mu      sync.RWMutex
	strings []string
	byText  map[string]Name
}

// NewStringInterner creates an interner with index 0 reserved as InvalidName.
func NewStringInterner() *StringInterner {
	return &StringInterner{
		strings: []string{""},
		byText:  map[string]Name{"": InvalidName},
	}
}

// Intern returns the Name for s, allocating a new handle if s hasn't been
// seen before.
func (si *StringInterner) Intern(s string) Name {
	si.mu.RLock()
	if n, ok := si.byText[s]; ok {
		si.mu.RUnlock()
		return n
	}
	si.mu.RUnlock()

	si.mu.Lock()
	defer si.mu.Unlock()
	if n, ok := si.byText[s]; ok {
		return n
	}
	n := Name(len(si.strings))
	si.strings = append(si.strings, s)
	si.byText[s] = n
	return n
}

// Text returns the original string for a Name. Panics on an out-of-range
// handle — a dangling Name is a correctness bug per spec.md §3.1.
func (si *StringInterner) Text(n Name) string {
	si.mu.RLock()
	defer si.mu.RUnlock()
	if int(n) >= len(si.strings) {
		panic("intern: dangling Name handle")
	}
	return si.strings[n]
}
