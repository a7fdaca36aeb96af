package resolver

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestIsNativeModule(t *testing.T) {
	tests := []struct {
		module string
		want   bool
	}{
		{"rtest", true},
		{"pytest", true},
		{"unittest", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.module, func(t *testing.T) {
			if got := IsNativeModule(tt.module); got != tt.want {
				t.Errorf("IsNativeModule(%q) = %v, want %v", tt.module, got, tt.want)
			}
		})
	}
}

func TestResolver_Canonicalize_DirectImport(t *testing.T) {
	r := New()
	r.BindModule("rtest", "rtest")

	got, ok := r.Canonicalize([]string{"rtest", "mark", "parametrize"})
	if !ok {
		t.Fatal("Canonicalize() ok = false, want true")
	}
	if diff := cmp.Diff([]string{"mark", "parametrize"}, got); diff != "" {
		t.Errorf("Canonicalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestResolver_Canonicalize_AliasedModule(t *testing.T) {
	r := New()
	r.BindModule("pt", "pytest")

	got, ok := r.Canonicalize([]string{"pt", "mark", "xdist_group"})
	if !ok {
		t.Fatal("Canonicalize() ok = false, want true")
	}
	if diff := cmp.Diff([]string{"mark", "xdist_group"}, got); diff != "" {
		t.Errorf("Canonicalize() mismatch (-want +got):\n%s", diff)
	}
	if !r.LegacyModuleUsed([]string{"pt", "mark", "xdist_group"}) {
		t.Error("LegacyModuleUsed() = false, want true for pytest alias")
	}
}

func TestResolver_Canonicalize_FromImportSymbol(t *testing.T) {
	r := New()
	r.BindSymbol("mark", "rtest", "mark")

	got, ok := r.Canonicalize([]string{"mark", "skip"})
	if !ok {
		t.Fatal("Canonicalize() ok = false, want true")
	}
	if diff := cmp.Diff([]string{"mark", "skip"}, got); diff != "" {
		t.Errorf("Canonicalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestResolver_Canonicalize_AliasedFromImportSymbol(t *testing.T) {
	r := New()
	r.BindSymbol("m", "pytest", "mark")

	got, ok := r.Canonicalize([]string{"m", "xdist_group"})
	if !ok {
		t.Fatal("Canonicalize() ok = false, want true")
	}
	if diff := cmp.Diff([]string{"mark", "xdist_group"}, got); diff != "" {
		t.Errorf("Canonicalize() mismatch (-want +got):\n%s", diff)
	}
	if !r.LegacyModuleUsed([]string{"m", "xdist_group"}) {
		t.Error("LegacyModuleUsed() = false, want true for pytest-derived symbol")
	}
}

func TestResolver_Canonicalize_UnboundOrNonNative(t *testing.T) {
	tests := []struct {
		name  string
		setup func(r *Resolver)
		chain []string
	}{
		{
			name:  "unbound local name",
			setup: func(r *Resolver) {},
			chain: []string{"something", "mark"},
		},
		{
			name: "bound to non-native module",
			setup: func(r *Resolver) {
				r.BindModule("np", "numpy")
			},
			chain: []string{"np", "array"},
		},
		{
			name:  "empty chain",
			setup: func(r *Resolver) {},
			chain: nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := New()
			tt.setup(r)
			if _, ok := r.Canonicalize(tt.chain); ok {
				t.Error("Canonicalize() ok = true, want false")
			}
		})
	}
}

func TestResolver_LegacyModuleUsed_Native(t *testing.T) {
	r := New()
	r.BindModule("rtest", "rtest")

	if r.LegacyModuleUsed([]string{"rtest", "mark"}) {
		t.Error("LegacyModuleUsed() = true, want false for native module name")
	}
}

func TestResolver_Lookup(t *testing.T) {
	r := New()
	r.BindModule("rtest", "rtest")

	got, ok := r.Lookup("rtest")
	if !ok {
		t.Fatal("Lookup() ok = false, want true")
	}
	want := Binding{Kind: BindModule, Module: "rtest"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Lookup() mismatch (-want +got):\n%s", diff)
	}

	if _, ok := r.Lookup("missing"); ok {
		t.Error("Lookup() ok = true for unbound name, want false")
	}
}
