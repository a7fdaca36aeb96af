// Package pyscan implements static discovery of test functions, test
// classes, and marker decorators from source text, without executing
// the file.
package pyscan

import (
	"fmt"
	"strings"

	"github.com/hughhan1/rtest/internal/marker"
)

// NodeID is the structured, wire-stable identifier for a (possibly
// parametrized) test case:
//
//	<relative_path>::[<Class>::]<function>[<case_id>]
type NodeID string

// Stem builds the unparametrized NodeID for a test item.
func Stem(relPath string, className, functionName string) NodeID {
	if className == "" {
		return NodeID(fmt.Sprintf("%s::%s", relPath, functionName))
	}
	return NodeID(fmt.Sprintf("%s::%s::%s", relPath, className, functionName))
}

// WithCase appends a bracketed case id to a stem NodeID.
func (id NodeID) WithCase(caseID string) NodeID {
	return NodeID(fmt.Sprintf("%s[%s]", id, caseID))
}

// SourceFile returns the relative-path component of a NodeID.
func (id NodeID) SourceFile() string {
	if i := strings.Index(string(id), "::"); i >= 0 {
		return string(id)[:i]
	}
	return string(id)
}

// TestItem is a pre-expansion discovery result: one test function or
// test method, with its merged marker list and parametrize stack, but
// not yet expanded into per-case ExecutableItems.
type TestItem struct {
	// NodeIDStem is the NodeID this item would have without a case suffix.
	NodeIDStem NodeID
	// SourceFile is the path the item was discovered in.
	SourceFile string
	// ClassName is the enclosing test class name, if any.
	ClassName string
	// FunctionName is the test function or method name.
	FunctionName string
	// Markers are every decorator attached to the function, merged with
	// class-level decorators prepended (outermost-first in source order).
	Markers []marker.Marker
	// ParamStack holds just the Parametrize markers from Markers, in
	// innermost-first order (nearest to the function, i.e. reverse of
	// source order for stacked decorators).
	ParamStack []marker.Marker
	// UsesLegacyAlias is set when any recognized marker decorator on this
	// item was reached through the legacy alias module name rather than
	// the native one.
	UsesLegacyAlias bool
}

// SkipReason returns the first Skip marker's reason (possibly empty)
// and whether any Skip marker is present, scanning outermost-first so a
// class-level skip is found before a method-level one.
func (t TestItem) SkipReason() (string, bool) {
	for _, m := range t.Markers {
		if m.IsSkip() {
			return m.SkipReason, true
		}
	}
	return "", false
}

// XdistGroup returns the last xdist_group marker's name (innermost
// declaration wins, since a method-level group should override a
// class-level one, and methods are appended after class markers).
func (t TestItem) XdistGroup() (string, bool) {
	group, found := "", false
	for _, m := range t.Markers {
		if m.IsXdistGroup() {
			group, found = m.GroupName, true
		}
	}
	return group, found
}

// ExecutableItem is a fully expanded, schedulable, wire-stable test case.
type ExecutableItem struct {
	NodeID       NodeID
	SourceFile   string
	ClassName    string
	FunctionName string
	// SkipReason is set (possibly to "") when the item is statically
	// skipped; HasSkip distinguishes "no skip" from "skip with empty reason".
	SkipReason string
	HasSkip    bool
	// XdistGroup is the scheduling affinity label, if any.
	XdistGroup string
	HasGroup   bool
	// ParamBindings maps argname to an opaque, unevaluated value-token,
	// in parametrize declaration order.
	ParamBindings []ParamBinding
}

// ParamBinding is one resolved (argname, value-token) pair for an
// ExecutableItem produced by the parametrize expander.
type ParamBinding struct {
	Name  string
	Token string
}
