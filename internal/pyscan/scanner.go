package pyscan

import (
	"fmt"
	"strings"

	"github.com/hughhan1/rtest/internal/marker"
	"github.com/hughhan1/rtest/internal/resolver"
)

// testFunctionPrefix and testClassPrefix match the canonical test-framework
// naming convention: a function or class is a test only if its name starts
// with this prefix.
const (
	testFunctionPrefix = "test_"
	testClassPrefix    = "Test"
)

// ScanError reports that a single file could not be statically scanned.
// The driver/worker turn this into a single `error` outcome recorded under
// the file's relative path, rather than aborting the whole run
// (SPEC_FULL.md "Import-failure isolation"). The file's individual test
// items are not reported, since none were discovered.
type ScanError struct {
	File string
	Err  error
}

func (e *ScanError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *ScanError) Unwrap() error { return e.Err }

// FileResult is everything the scanner produces for one source file: the
// discovered test items and the runtime-safe source text the worker engine
// should actually execute.
type FileResult struct {
	Items []TestItem
	// RuntimeSource is src with import lines and decorator lines blanked
	// (line numbers preserved for error messages) and class bodies
	// dedented by one level, ready for the worker's engine to load.
	RuntimeSource string
}

// rawLine is one physical line annotated with its leading-whitespace
// indentation width, tabs counted as one column each.
type rawLine struct {
	text   string
	indent int
	blank  bool
}

// ScanFile statically discovers test items in src without executing it.
// relPath is the path used to build NodeIDs and is typically relative to
// the run's root directory.
func ScanFile(relPath string, src string) (FileResult, error) {
	lines := splitLines(src)
	raws := make([]rawLine, len(lines))
	for i, l := range lines {
		raws[i] = classifyLine(l)
	}

	res := resolver.New()
	scanImports(res, raws)

	runtime := make([]string, len(raws))
	for i, r := range raws {
		runtime[i] = r.text
		trimmed := strings.TrimSpace(r.text)
		if strings.HasPrefix(trimmed, "import ") || strings.HasPrefix(trimmed, "from ") {
			// Import lines are not statements in the embeddable grammar;
			// scanImports has already recorded their bindings.
			runtime[i] = ""
		}
	}

	var items []TestItem
	var classStack []classFrame

	for i := 0; i < len(raws); i++ {
		r := raws[i]
		if r.blank {
			continue
		}
		trimmed := strings.TrimSpace(r.text)

		// Pop class frames we've dedented past.
		for len(classStack) > 0 && r.indent <= classStack[len(classStack)-1].indent {
			classStack = classStack[:len(classStack)-1]
		}

		switch {
		case strings.HasPrefix(trimmed, "@"):
			markers, legacy, consumed, err := collectDecoratorBlock(res, raws, i)
			if err != nil {
				return FileResult{}, &ScanError{File: relPath, Err: err}
			}
			// Blank the decorator lines in the runtime source; they are
			// not valid statements in the embeddable expression grammar.
			for j := i; j < i+consumed; j++ {
				runtime[j] = ""
			}
			i += consumed - 1

			// Find the def/class these decorators attach to. The line
			// itself is consumed here too, so the outer loop never
			// reprocesses it as an undecorated def/class.
			next := i + 1
			for next < len(raws) && raws[next].blank {
				next++
			}
			if next >= len(raws) {
				continue
			}
			nextTrimmed := strings.TrimSpace(raws[next].text)
			i = next
			switch {
			case strings.HasPrefix(nextTrimmed, "def "):
				name, ok := defName(nextTrimmed)
				if !ok || !strings.HasPrefix(name, testFunctionPrefix) {
					continue
				}
				className := ""
				if len(classStack) > 0 {
					className = classStack[len(classStack)-1].name
				}
				items = append(items, buildItem(relPath, className, name, classStack, markers, legacy))
			case strings.HasPrefix(nextTrimmed, "class "):
				name, ok := className(nextTrimmed)
				if !ok {
					continue
				}
				classStack = append(classStack, classFrame{
					name:    name,
					indent:  raws[next].indent,
					markers: markers,
					legacy:  legacy,
				})
				runtime[next] = ""
			}

		case strings.HasPrefix(trimmed, "def "):
			name, ok := defName(trimmed)
			if !ok {
				continue
			}
			if !strings.HasPrefix(name, testFunctionPrefix) {
				continue
			}
			className := ""
			if len(classStack) > 0 {
				className = classStack[len(classStack)-1].name
			}
			items = append(items, buildItem(relPath, className, name, classStack, nil, false))

		case strings.HasPrefix(trimmed, "class "):
			name, ok := className(trimmed)
			if !ok {
				continue
			}
			classStack = append(classStack, classFrame{name: name, indent: r.indent})
			runtime[i] = ""
		}
	}

	dedentClassBodies(runtime, raws)

	return FileResult{Items: items, RuntimeSource: strings.Join(runtime, "\n")}, nil
}

type classFrame struct {
	name    string
	indent  int
	markers []marker.Marker
	legacy  bool
}

func buildItem(relPath, className, funcName string, classStack []classFrame, own []marker.Marker, ownLegacy bool) TestItem {
	var merged []marker.Marker
	legacy := ownLegacy
	if len(classStack) > 0 {
		merged = append(merged, classStack[len(classStack)-1].markers...)
		legacy = legacy || classStack[len(classStack)-1].legacy
	}
	merged = append(merged, own...)

	var params []marker.Marker
	// Innermost-first: stacked decorators closest to the function are
	// applied first to the base case list, matching source order for a
	// single function's own decorators reversed; class-level parametrize
	// markers (rare, but not excluded) sort after method-level ones for
	// the same reason.
	for i := len(own) - 1; i >= 0; i-- {
		if own[i].IsParametrize() {
			params = append(params, own[i])
		}
	}
	if len(classStack) > 0 {
		classMarkers := classStack[len(classStack)-1].markers
		for i := len(classMarkers) - 1; i >= 0; i-- {
			if classMarkers[i].IsParametrize() {
				params = append(params, classMarkers[i])
			}
		}
	}

	return TestItem{
		NodeIDStem:      Stem(relPath, className, funcName),
		SourceFile:      relPath,
		ClassName:       className,
		FunctionName:    funcName,
		Markers:         merged,
		ParamStack:      params,
		UsesLegacyAlias: legacy,
	}
}

func splitLines(src string) []string {
	return strings.Split(src, "\n")
}

func classifyLine(line string) rawLine {
	indent := 0
	for _, c := range line {
		if c == ' ' || c == '\t' {
			indent++
			continue
		}
		break
	}
	trimmed := strings.TrimSpace(line)
	return rawLine{text: line, indent: indent, blank: trimmed == "" || strings.HasPrefix(trimmed, "#")}
}

func defName(trimmed string) (string, bool) {
	rest := strings.TrimPrefix(trimmed, "def ")
	rest = strings.TrimSpace(rest)
	if i := strings.IndexByte(rest, '('); i >= 0 {
		return strings.TrimSpace(rest[:i]), true
	}
	return "", false
}

func className(trimmed string) (string, bool) {
	rest := strings.TrimPrefix(trimmed, "class ")
	rest = strings.TrimSpace(rest)
	for i, c := range rest {
		if c == '(' || c == ':' {
			rest = rest[:i]
			break
		}
	}
	rest = strings.TrimSpace(rest)
	if rest == "" || !strings.HasPrefix(rest, testClassPrefix) {
		return "", false
	}
	return rest, true
}

// collectDecoratorBlock parses every consecutive decorator line starting
// at index i, returning their markers outermost-first and how many lines
// (including multi-line decorators) were consumed.
func collectDecoratorBlock(res *resolver.Resolver, raws []rawLine, i int) ([]marker.Marker, bool, int, error) {
	var markers []marker.Marker
	legacy := false
	consumed := 0
	for i+consumed < len(raws) {
		idx := i + consumed
		if raws[idx].blank {
			break
		}
		trimmed := strings.TrimSpace(raws[idx].text)
		if !strings.HasPrefix(trimmed, "@") {
			break
		}
		text := make([]string, len(raws))
		for j := range raws {
			text[j] = raws[j].text
		}
		joined, n := joinContinuations(text, idx)
		m, isLegacy, ok := parseDecorator(res, decoratorText{expr: joined, startLine: idx + 1})
		if !ok {
			return nil, false, 0, fmt.Errorf("line %d: invalid decorator expression", idx+1)
		}
		markers = append(markers, m)
		legacy = legacy || isLegacy
		consumed += n
	}
	return markers, legacy, consumed, nil
}

// dedentClassBodies removes one indentation level from every class body
// line in runtime, since the class header itself is blanked and methods
// become bare top-level functions for the worker engine to call with an
// explicit `self` argument.
func dedentClassBodies(runtime []string, raws []rawLine) {
	var stack []int // indent levels of open class headers
	for i, r := range raws {
		trimmed := strings.TrimSpace(r.text)
		isClassHeader := strings.HasPrefix(trimmed, "class ") && runtime[i] == ""
		for len(stack) > 0 && !r.blank && r.indent <= stack[len(stack)-1] && !isClassHeader {
			stack = stack[:len(stack)-1]
		}
		if isClassHeader {
			stack = append(stack, r.indent)
			continue
		}
		if len(stack) > 0 && !r.blank {
			runtime[i] = dedentOnce(runtime[i])
		}
	}
}

func dedentOnce(line string) string {
	// Remove up to one tab or up to four spaces of leading indentation.
	if strings.HasPrefix(line, "\t") {
		return line[1:]
	}
	trimmed := strings.TrimLeft(line, " ")
	removed := len(line) - len(trimmed)
	if removed > 4 {
		removed = 4
	}
	return line[removed:]
}

// scanImports walks every line looking for `import X`, `import X as Y`,
// `from X import Y`, and `from X import Y as Z`, binding each into res.
// Import recognition runs as a separate pre-pass so decorator canonicalization
// later in the same file can see bindings declared anywhere above it,
// matching the five styles exercised by the original scanning tests.
func scanImports(res *resolver.Resolver, raws []rawLine) {
	for _, r := range raws {
		if r.blank {
			continue
		}
		trimmed := strings.TrimSpace(r.text)
		switch {
		case strings.HasPrefix(trimmed, "from "):
			scanFromImport(res, trimmed)
		case strings.HasPrefix(trimmed, "import "):
			scanPlainImport(res, trimmed)
		}
	}
}

// scanPlainImport handles `import module` and `import module as alias`.
func scanPlainImport(res *resolver.Resolver, trimmed string) {
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "import "))
	for _, clause := range strings.Split(rest, ",") {
		clause = strings.TrimSpace(clause)
		module, alias := splitAs(clause)
		local := alias
		if local == "" {
			local = module
		}
		if module == "" {
			continue
		}
		res.BindModule(local, module)
	}
}

// scanFromImport handles `from module import symbol[, symbol2, ...]`
// and `from module import symbol as alias`.
func scanFromImport(res *resolver.Resolver, trimmed string) {
	rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "from "))
	parts := strings.SplitN(rest, " import ", 2)
	if len(parts) != 2 {
		return
	}
	module := strings.TrimSpace(parts[0])
	if module == "" {
		return
	}
	for _, clause := range strings.Split(parts[1], ",") {
		clause = strings.TrimSpace(clause)
		symbol, alias := splitAs(clause)
		local := alias
		if local == "" {
			local = symbol
		}
		if symbol == "" {
			continue
		}
		res.BindSymbol(local, module, symbol)
	}
}

func splitAs(clause string) (name, alias string) {
	parts := strings.SplitN(clause, " as ", 2)
	if len(parts) == 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
	}
	return strings.TrimSpace(clause), ""
}
