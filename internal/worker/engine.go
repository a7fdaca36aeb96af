package worker

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/hughhan1/rtest/internal/pyscan"
)

// Engine is the boundary between the batch runner and whatever actually
// imports a source file and invokes a test body. The batch runner never
// constructs a starlark.Thread directly; it only calls through this
// interface, so the "execute path" described for the Worker Process stays
// swappable independent of the runner's skip/outcome/JSONL bookkeeping.
type Engine interface {
	// Load compiles and executes moduleSource once, returning the
	// module's top-level names. It must not be called for items on the
	// skip path.
	Load(moduleName, moduleSource string) (Module, error)
}

// Module is a loaded source file's callable surface.
type Module interface {
	// Call invokes className.functionName (or the bare function when
	// className is empty) with bindings resolved as kwargs, capturing
	// stdout/stderr and classifying the outcome.
	Call(className, functionName string, bindings []pyscan.ParamBinding) Execution
}

// Execution is the outcome of one Execute-path call.
type Execution struct {
	Outcome   Outcome
	Duration  time.Duration
	Stdout    string
	Stderr    string
	ErrorType string
	Message   string
	Traceback string
}

// errSkip is the canonical skip signal a test body raises via skip(...).
type errSkip struct{ reason string }

func (e *errSkip) Error() string { return e.reason }

// errAssertion is the canonical assertion-error type; any other error
// value raised by a test body (or by importing the module) classifies as
// Errored instead of Failed.
type errAssertion struct{ msg string }

func (e *errAssertion) Error() string { return e.msg }

// StarlarkEngine runs discovered function bodies with
// go.starlark.net/starlark, giving the worker a safely sandboxed
// in-process evaluator instead of shelling out to an external
// interpreter per test.
type StarlarkEngine struct{}

// NewStarlarkEngine returns the engine used by cmd/ptest-worker.
func NewStarlarkEngine() *StarlarkEngine { return &StarlarkEngine{} }

func (e *StarlarkEngine) Load(moduleName, moduleSource string) (Module, error) {
	predeclared := starlark.StringDict{
		"assert": newAssertModule(),
		"struct": starlark.NewBuiltin("struct", starlarkstruct.Make),
		"skip":   starlark.NewBuiltin("skip", builtinSkip),
	}

	thread := &starlark.Thread{Name: moduleName}
	globals, err := starlark.ExecFile(thread, moduleName, moduleSource, predeclared)
	if err != nil {
		return nil, fmt.Errorf("import %s: %w", moduleName, err)
	}

	return &starlarkModule{name: moduleName, globals: globals, predeclared: predeclared}, nil
}

type starlarkModule struct {
	name        string
	globals     starlark.StringDict
	predeclared starlark.StringDict
}

func (m *starlarkModule) Call(className, functionName string, bindings []pyscan.ParamBinding) Execution {
	start := time.Now()

	fnVal, ok := m.globals[functionName]
	if !ok {
		return Execution{
			Outcome:   Errored,
			Duration:  time.Since(start),
			ErrorType: "NameError",
			Message:   fmt.Sprintf("%s has no function %s", m.name, functionName),
		}
	}
	fn, ok := fnVal.(*starlark.Function)
	if !ok {
		return Execution{
			Outcome:   Errored,
			Duration:  time.Since(start),
			ErrorType: "TypeError",
			Message:   fmt.Sprintf("%s.%s is not callable", m.name, functionName),
		}
	}

	kwargs, evalErr := m.evalBindings(bindings)
	if evalErr != nil {
		return Execution{
			Outcome:   Errored,
			Duration:  time.Since(start),
			ErrorType: "ValueError",
			Message:   evalErr.Error(),
		}
	}

	var args starlark.Tuple
	if className != "" {
		// Instantiate the enclosing class with no arguments: give the
		// method a bare attribute bag as `self`.
		self := starlarkstruct.FromStringDict(starlarkstruct.Default, nil)
		if fn.NumParams() > 0 {
			args = starlark.Tuple{self}
		}
	}

	var stdout, stderr bytes.Buffer
	thread := &starlark.Thread{
		Name: m.name,
		Print: func(_ *starlark.Thread, msg string) {
			stdout.WriteString(msg)
			stdout.WriteByte('\n')
		},
	}

	_, err := starlark.Call(thread, fn, args, kwargs)
	duration := time.Since(start)

	switch {
	case err == nil:
		return Execution{Outcome: Passed, Duration: duration, Stdout: stdout.String(), Stderr: stderr.String()}
	default:
		return classifyError(err, duration, stdout.String(), stderr.String())
	}
}

// evalBindings evaluates each opaque case-value token as a Starlark
// expression in the module's own namespace, the only place these tokens
// are ever evaluated (the scanner never evaluates them).
func (m *starlarkModule) evalBindings(bindings []pyscan.ParamBinding) ([]starlark.Tuple, error) {
	if len(bindings) == 0 {
		return nil, nil
	}
	kwargs := make([]starlark.Tuple, 0, len(bindings))
	thread := &starlark.Thread{Name: m.name + ".param"}
	env := make(starlark.StringDict, len(m.globals)+len(m.predeclared))
	for k, v := range m.predeclared {
		env[k] = v
	}
	for k, v := range m.globals {
		env[k] = v
	}
	for _, b := range bindings {
		v, err := starlark.Eval(thread, "<param>", b.Token, env)
		if err != nil {
			return nil, fmt.Errorf("evaluate %s=%s: %w", b.Name, b.Token, err)
		}
		kwargs = append(kwargs, starlark.Tuple{starlark.String(b.Name), v})
	}
	return kwargs, nil
}

// classifyError inspects an error returned by starlark.Call. The
// interpreter wraps errors raised inside a called function's own frame in
// a *starlark.EvalError, so the sentinel skip/assertion types are
// recovered with errors.As rather than a direct type assertion.
func classifyError(err error, duration time.Duration, stdout, stderr string) Execution {
	var skip *errSkip
	if errors.As(err, &skip) {
		return Execution{
			Outcome:  Skipped,
			Duration: duration,
			Stdout:   stdout,
			Stderr:   stderr,
			Message:  skip.reason,
		}
	}

	var assertion *errAssertion
	if errors.As(err, &assertion) {
		return Execution{
			Outcome:   Failed,
			Duration:  duration,
			Stdout:    stdout,
			Stderr:    stderr,
			ErrorType: "AssertionError",
			Message:   assertion.msg,
			Traceback: evalErrorTraceback(err),
		}
	}

	// Starlark's own evaluation errors (type error, a Starlark-raised
	// error via fail()) and anything else classify as error, never
	// failed: the canonical assertion type is the only thing that maps to
	// `failed`. Undefined names never reach here; Load already rejects
	// them.
	return Execution{
		Outcome:   Errored,
		Duration:  duration,
		Stdout:    stdout,
		Stderr:    stderr,
		ErrorType: errorTypeName(err),
		Message:   err.Error(),
		Traceback: evalErrorTraceback(err),
	}
}

func evalErrorTraceback(err error) string {
	if evalErr, ok := err.(*starlark.EvalError); ok {
		return evalErr.Backtrace()
	}
	return ""
}

func errorTypeName(err error) string {
	if _, ok := err.(*starlark.EvalError); ok {
		return "EvalError"
	}
	return "RuntimeError"
}

// builtinSkip raises the canonical skip signal from inside a test body,
// e.g. `skip("not supported on this platform")`.
func builtinSkip(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var reason starlark.String
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "reason?", &reason); err != nil {
		return nil, err
	}
	return nil, &errSkip{reason: string(reason)}
}

// newAssertModule is a trimmed version of the broader assertion surface,
// generalized down to what the engine needs to classify passed vs.
// failed vs. error: eq/true/false/contains plus the raises primitive.
func newAssertModule() *starlarkstruct.Module {
	return &starlarkstruct.Module{
		Name: "assert",
		Members: starlark.StringDict{
			"eq":       starlark.NewBuiltin("assert.eq", assertEq),
			"true_":    starlark.NewBuiltin("assert.true_", assertTrue),
			"false_":   starlark.NewBuiltin("assert.false_", assertFalse),
			"contains": starlark.NewBuiltin("assert.contains", assertContains),
			"raises":   starlark.NewBuiltin("assert.raises", assertRaises),
		},
	}
}

func assertEq(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var a, expected starlark.Value
	var msg starlark.String
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "a", &a, "b", &expected, "msg?", &msg); err != nil {
		return nil, err
	}
	eq, err := starlark.Equal(a, expected)
	if err != nil {
		return nil, &errAssertion{msg: err.Error()}
	}
	if !eq {
		return nil, &errAssertion{msg: assertionMessage(msg, "expected %s == %s", a, expected)}
	}
	return starlark.None, nil
}

func assertTrue(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var cond starlark.Value
	var msg starlark.String
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "cond", &cond, "msg?", &msg); err != nil {
		return nil, err
	}
	if !cond.Truth() {
		return nil, &errAssertion{msg: assertionMessage(msg, "expected %s to be true", cond)}
	}
	return starlark.None, nil
}

func assertFalse(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var cond starlark.Value
	var msg starlark.String
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "cond", &cond, "msg?", &msg); err != nil {
		return nil, err
	}
	if cond.Truth() {
		return nil, &errAssertion{msg: assertionMessage(msg, "expected %s to be false", cond)}
	}
	return starlark.None, nil
}

func assertContains(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var container, item starlark.Value
	var msg starlark.String
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "container", &container, "item", &item, "msg?", &msg); err != nil {
		return nil, err
	}

	found := false
	switch c := container.(type) {
	case *starlark.List:
		for i := 0; i < c.Len(); i++ {
			if eq, _ := starlark.Equal(c.Index(i), item); eq {
				found = true
				break
			}
		}
	case starlark.Tuple:
		for i := 0; i < c.Len(); i++ {
			if eq, _ := starlark.Equal(c.Index(i), item); eq {
				found = true
				break
			}
		}
	case starlark.String:
		if s, ok := item.(starlark.String); ok {
			found = strings.Contains(string(c), string(s))
		}
	case *starlark.Dict:
		_, found, _ = c.Get(item)
	default:
		return nil, &errAssertion{msg: fmt.Sprintf("assert.contains: unsupported container type %s", container.Type())}
	}

	if !found {
		return nil, &errAssertion{msg: assertionMessage(msg, "expected %s to contain %s", container, item)}
	}
	return starlark.None, nil
}

// assertRaises is the minimal primitive the engine needs internally; the
// richer context-manager helper this generalizes from remains an
// external collaborator and is not reimplemented here.
func assertRaises(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var fn starlark.Callable
	var excType starlark.String
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "fn", &fn, "exc?", &excType); err != nil {
		return nil, err
	}
	_, err := starlark.Call(thread, fn, nil, nil)
	if err == nil {
		return nil, &errAssertion{msg: "assert.raises: expected function to raise, but it returned normally"}
	}
	if excType != "" && !strings.Contains(err.Error(), string(excType)) {
		return nil, &errAssertion{msg: fmt.Sprintf("assert.raises: error %q does not mention %q", err.Error(), excType)}
	}
	return starlark.None, nil
}

func assertionMessage(custom starlark.String, format string, args ...any) string {
	if custom != "" {
		return string(custom)
	}
	return fmt.Sprintf(format, args...)
}
