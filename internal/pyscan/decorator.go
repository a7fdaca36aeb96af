package pyscan

import (
	"strings"

	"go.starlark.net/syntax"

	"github.com/hughhan1/rtest/internal/marker"
	"github.com/hughhan1/rtest/internal/resolver"
)

// decoratorText is one `@...` decorator, already joined across continuation
// lines (see joinContinuations), paired with the 1-indexed source line its
// first physical line started on.
type decoratorText struct {
	expr      string
	startLine int
}

// parseDecorator parses one decorator's expression text (everything after
// the leading `@`) with go.starlark.net/syntax.ParseExpr, canonicalizes its
// attribute chain through res, and returns the marker it denotes and
// whether the chain was reached through the legacy alias module name.
//
// ok is false when the expression failed to parse at all, or when a
// recognized parametrize or xdist_group decorator has arguments it cannot
// interpret (for example an ids= list whose length differs from the case
// list); the caller treats either as a scan error for the enclosing file.
func parseDecorator(res *resolver.Resolver, d decoratorText) (m marker.Marker, legacy bool, ok bool) {
	expr, err := syntax.ParseExpr("<decorator>", d.expr, 0)
	if err != nil {
		return marker.Marker{}, false, false
	}

	var fn syntax.Expr
	var args []syntax.Expr
	switch e := expr.(type) {
	case *syntax.CallExpr:
		fn = e.Fn
		args = e.Args
	default:
		// Bare decorator with no call, e.g. `@skip`.
		fn = expr
	}

	chain, ok := attributeChain(fn)
	if !ok {
		return marker.Unknown(nil), false, true
	}

	canon, recognized := res.Canonicalize(chain)
	if !recognized {
		return marker.Unknown(chain), false, true
	}
	legacy = res.LegacyModuleUsed(chain)

	pos, kwargs := splitArgs(args)

	switch lastSegment(canon) {
	case "parametrize":
		pm, ok := parseParametrize(d.expr, pos, kwargs)
		return pm, legacy, ok
	case "skip":
		return parseSkip(pos, kwargs), legacy, true
	case "xdist_group":
		xm, ok := parseXdistGroup(pos, kwargs)
		return xm, legacy, ok
	default:
		return marker.Unknown(chain), false, true
	}
}

func lastSegment(chain []string) string {
	if len(chain) == 0 {
		return ""
	}
	return chain[len(chain)-1]
}

// attributeChain walks a leftmost-first chain of *syntax.Ident/*syntax.DotExpr
// nodes (e.g. `pytest.mark.parametrize` -> ["pytest", "mark", "parametrize"]).
func attributeChain(expr syntax.Expr) ([]string, bool) {
	var rev []string
	for {
		switch e := expr.(type) {
		case *syntax.Ident:
			rev = append(rev, e.Name)
			segs := make([]string, len(rev))
			for i, s := range rev {
				segs[len(rev)-1-i] = s
			}
			return segs, true
		case *syntax.DotExpr:
			rev = append(rev, e.Name.Name)
			expr = e.X
		default:
			return nil, false
		}
	}
}

// argPair is one keyword argument, `name=value`.
type argPair struct {
	name  string
	value syntax.Expr
}

// splitArgs separates positional arguments from keyword arguments. A
// keyword argument is represented by the parser as a *syntax.BinaryExpr
// with Op == syntax.EQ.
func splitArgs(args []syntax.Expr) (positional []syntax.Expr, kwargs []argPair) {
	for _, a := range args {
		if bin, ok := a.(*syntax.BinaryExpr); ok && bin.Op == syntax.EQ {
			if ident, ok := bin.X.(*syntax.Ident); ok {
				kwargs = append(kwargs, argPair{name: ident.Name, value: bin.Y})
				continue
			}
		}
		positional = append(positional, a)
	}
	return positional, kwargs
}

func kwarg(kwargs []argPair, name string) (syntax.Expr, bool) {
	for _, k := range kwargs {
		if k.name == name {
			return k.value, true
		}
	}
	return nil, false
}

func stringLiteral(expr syntax.Expr) (string, bool) {
	lit, ok := expr.(*syntax.Literal)
	if !ok || lit.Token != syntax.STRING {
		return "", false
	}
	s, ok := lit.Value.(string)
	return s, ok
}

// parseSkip handles `@skip`, `@skip()`, `@skip("reason")` and
// `@skip(reason="...")`.
func parseSkip(pos []syntax.Expr, kwargs []argPair) marker.Marker {
	if len(pos) > 0 {
		if s, ok := stringLiteral(pos[0]); ok {
			return marker.Skip(s, true)
		}
	}
	if v, ok := kwarg(kwargs, "reason"); ok {
		if s, ok := stringLiteral(v); ok {
			return marker.Skip(s, true)
		}
	}
	return marker.Skip("", false)
}

// parseXdistGroup handles `@xdist_group("name")` and
// `@xdist_group(name="name")`.
func parseXdistGroup(pos []syntax.Expr, kwargs []argPair) (marker.Marker, bool) {
	var nameExpr syntax.Expr
	if len(pos) > 0 {
		nameExpr = pos[0]
	} else if v, ok := kwarg(kwargs, "name"); ok {
		nameExpr = v
	}
	if nameExpr == nil {
		return marker.Marker{}, false
	}
	name, ok := stringLiteral(nameExpr)
	if !ok {
		return marker.Marker{}, false
	}
	return marker.XdistGroup(name), true
}

// parseParametrize handles `@parametrize("a,b", [(1,2), (3,4)])` and the
// `@parametrize("a,b", [...], ids=[...])` variant. Case values are kept as
// opaque source-slice tokens (full text, Parametrize expander evaluates
// nothing at scan time) extracted via each sub-expression's Span().
func parseParametrize(src string, pos []syntax.Expr, kwargs []argPair) (marker.Marker, bool) {
	if len(pos) < 2 {
		return marker.Marker{}, false
	}
	argnameExpr, casesExpr := pos[0], pos[1]

	argnameStr, ok := stringLiteral(argnameExpr)
	if !ok {
		return marker.Marker{}, false
	}
	argnames := splitArgnames(argnameStr)

	var idsExpr *syntax.ListExpr
	if v, ok := kwarg(kwargs, "ids"); ok {
		if l, ok := v.(*syntax.ListExpr); ok {
			idsExpr = l
		}
	}

	var caseList []syntax.Expr
	switch c := casesExpr.(type) {
	case *syntax.ListExpr:
		caseList = c.List
	case *syntax.TupleExpr:
		caseList = c.List
	default:
		return marker.Marker{}, false
	}

	var explicitIDs []string
	if idsExpr != nil {
		for _, idExpr := range idsExpr.List {
			s, ok := stringLiteral(idExpr)
			if !ok {
				return marker.Marker{}, false
			}
			explicitIDs = append(explicitIDs, s)
		}
		if len(explicitIDs) != len(caseList) {
			return marker.Marker{}, false
		}
	}

	cases := make([]marker.ParameterCase, 0, len(caseList))
	for i, ce := range caseList {
		var values []syntax.Expr
		switch v := ce.(type) {
		case *syntax.TupleExpr:
			values = v.List
		default:
			values = []syntax.Expr{ce}
		}
		if len(argnames) > 1 && len(values) != len(argnames) {
			return marker.Marker{}, false
		}

		tokens := make([]string, len(values))
		for j, v := range values {
			tokens[j] = sliceSpan(src, v)
		}

		pc := marker.ParameterCase{Values: tokens}
		if explicitIDs != nil {
			pc.ExplicitID = explicitIDs[i]
		}
		cases = append(cases, pc)
	}

	return marker.Parametrize(argnames, cases), true
}

func splitArgnames(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// sliceSpan returns the verbatim source text an expression spans within
// src, the same joined decorator text it was parsed from. syntax.Position
// is a 1-indexed (line, col) pair in runes; offsets are recomputed against
// src's own lines rather than trusting any absolute byte offset, since
// ParseExpr is always invoked on a single-decorator string starting at
// line 1.
func sliceSpan(src string, e syntax.Expr) string {
	start, end := e.Span()
	lines := strings.Split(src, "\n")

	startOff := lineColOffset(lines, int(start.Line), int(start.Col))
	endOff := lineColOffset(lines, int(end.Line), int(end.Col))
	if startOff < 0 || endOff < 0 || endOff < startOff || endOff > len(src) {
		return ""
	}
	return strings.TrimSpace(src[startOff:endOff])
}

// lineColOffset converts a 1-indexed (line, col) rune position, as used by
// go.starlark.net/syntax.Position, to a byte offset into the text joined
// from lines.
func lineColOffset(lines []string, line, col int) int {
	if line < 1 || line > len(lines) {
		return -1
	}
	offset := 0
	for i := 0; i < line-1; i++ {
		offset += len(lines[i]) + 1 // +1 for the newline joined back in
	}
	target := lines[line-1]
	runes := []rune(target)
	if col < 1 {
		col = 1
	}
	if col-1 > len(runes) {
		col = len(runes) + 1
	}
	offset += len(string(runes[:col-1]))
	return offset
}

// joinContinuations joins a decorator's physical source lines (starting at
// the line holding the leading `@`) into one expression string, tracking
// bracket depth so a multi-line call like
//
//	@pytest.mark.parametrize(
//	    "x,y,expected",
//	    [(1, 2, 3), (5, 5, 10)],
//	)
//
// becomes one line before being handed to syntax.ParseExpr. lines is the
// full file split on "\n"; startLine is 0-indexed.
func joinContinuations(lines []string, startLine int) (joined string, consumed int) {
	depth := 0
	var b strings.Builder
	i := startLine
	for ; i < len(lines); i++ {
		line := lines[i]
		depth += bracketDelta(line)
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(line)
		if depth <= 0 {
			i++
			break
		}
	}
	return strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(b.String()), "@")), i - startLine
}

func bracketDelta(line string) int {
	depth := 0
	inString := byte(0)
	for i := 0; i < len(line); i++ {
		c := line[i]
		if inString != 0 {
			if c == '\\' {
				i++
				continue
			}
			if c == inString {
				inString = 0
			}
			continue
		}
		switch c {
		case '\'', '"':
			inString = c
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
		case '#':
			return depth
		}
	}
	return depth
}
