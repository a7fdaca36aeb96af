// Package resolver tracks import-alias bindings for a single source file
// and canonicalizes decorator attribute chains through them.
//
// This is the key invariant that lets the scanner treat all import
// styles uniformly: direct module import, aliased module import,
// from-import, and aliased from-import all resolve to the same
// canonical path for a given marker.
package resolver

// BindingKind distinguishes a module binding from a symbol binding.
type BindingKind int

const (
	// BindModule binds a local name to an entire imported module.
	BindModule BindingKind = iota
	// BindSymbol binds a local name to one symbol pulled out of a module.
	BindSymbol
)

// Binding is what a local name resolves to.
type Binding struct {
	Kind BindingKind
	// Module is the canonical module name (e.g. "pytest", "rtest").
	Module string
	// Symbol is the imported symbol's name, only set when Kind == BindSymbol
	// (e.g. "mark" for `from pytest import mark`).
	Symbol string
}

// nativeModules are the module names treated as the canonical test
// framework for marker recognition. The legacy alias module name
// ("pytest") is equivalent to the native one ("rtest") here; the
// deprecation notice for using the legacy name is a worker-side concern
// (spec.md §9), not a resolution concern.
var nativeModules = map[string]bool{
	"pytest": true,
	"rtest":  true,
}

// IsNativeModule reports whether module is one of the recognized
// canonical test-framework module names.
func IsNativeModule(module string) bool {
	return nativeModules[module]
}

// Resolver accumulates import bindings discovered while scanning one
// source file, in source order.
type Resolver struct {
	bindings map[string]Binding
}

// New returns an empty Resolver.
func New() *Resolver {
	return &Resolver{bindings: make(map[string]Binding)}
}

// BindModule records `import <module>` or `import <module> as <local>`.
func (r *Resolver) BindModule(local, module string) {
	r.bindings[local] = Binding{Kind: BindModule, Module: module}
}

// BindSymbol records `from <module> import <symbol>` or
// `from <module> import <symbol> as <local>`.
func (r *Resolver) BindSymbol(local, module, symbol string) {
	r.bindings[local] = Binding{Kind: BindSymbol, Module: module, Symbol: symbol}
}

// Lookup returns the binding for a local name, if any was recorded.
func (r *Resolver) Lookup(local string) (Binding, bool) {
	b, ok := r.bindings[local]
	return b, ok
}

// Canonicalize resolves a decorator's attribute chain (e.g.
// ["pt", "mark", "xdist_group"] for `@pt.mark.xdist_group(...)`) to a
// canonical path relative to the test-framework module, walking the
// chain leftmost-first.
//
// It returns (path, true) when the chain resolves to the native test
// framework; otherwise it returns (nil, false) and the caller should
// emit Marker::Unknown with the literal chain.
func (r *Resolver) Canonicalize(chain []string) ([]string, bool) {
	if len(chain) == 0 {
		return nil, false
	}

	head, rest := chain[0], chain[1:]
	binding, ok := r.Lookup(head)
	if !ok {
		return nil, false
	}

	switch binding.Kind {
	case BindModule:
		// `import pytest` / `import pytest as pt`: the remaining chain
		// is the canonical path directly, e.g. pt.mark.xdist_group ->
		// ["mark", "xdist_group"].
		if !IsNativeModule(binding.Module) {
			return nil, false
		}
		return rest, true

	case BindSymbol:
		// `from pytest import mark` / `from pytest import mark as m`:
		// binding.Symbol is a one-segment attribute relative to the
		// module (e.g. "mark"); prepend it to the remaining chain.
		if !IsNativeModule(binding.Module) {
			return nil, false
		}
		path := make([]string, 0, len(rest)+1)
		path = append(path, binding.Symbol)
		path = append(path, rest...)
		return path, true
	}

	return nil, false
}

// LegacyModuleUsed reports whether chain's leftmost binding resolves to
// the legacy alias module name ("pytest") rather than the native one
// ("rtest"). Used by the worker to emit a deprecation notice.
func (r *Resolver) LegacyModuleUsed(chain []string) bool {
	if len(chain) == 0 {
		return false
	}
	binding, ok := r.Lookup(chain[0])
	if !ok {
		return false
	}
	return binding.Module == "pytest"
}
