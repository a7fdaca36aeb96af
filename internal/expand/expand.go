// Package expand turns a discovered TestItem into one or more
// ExecutableItems by taking the cartesian product of its stacked
// parametrize markers.
package expand

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/hughhan1/rtest/internal/marker"
	"github.com/hughhan1/rtest/internal/pyscan"
)

// Expand produces the ExecutableItems for one TestItem. Skip and
// XdistGroup markers are inherited by every resulting item; Unknown
// markers never influence expansion.
//
// Expand is a pure function of its input: given identical TestItem values in
// identical order, it returns identical ExecutableItems in identical order.
func Expand(item pyscan.TestItem) ([]pyscan.ExecutableItem, error) {
	skipReason, hasSkip := item.SkipReason()
	xdistGroup, hasGroup := item.XdistGroup()

	// ParamStack is innermost-first (nearest the function); the cartesian
	// product varies the outermost decorator slowest, so work in
	// outermost-first order here.
	outermostFirst := make([]marker.Marker, len(item.ParamStack))
	for i, m := range item.ParamStack {
		outermostFirst[len(item.ParamStack)-1-i] = m
	}

	if len(outermostFirst) == 0 {
		return []pyscan.ExecutableItem{{
			NodeID:       item.NodeIDStem,
			SourceFile:   item.SourceFile,
			ClassName:    item.ClassName,
			FunctionName: item.FunctionName,
			SkipReason:   skipReason,
			HasSkip:      hasSkip,
			XdistGroup:   xdistGroup,
			HasGroup:     hasGroup,
		}}, nil
	}

	combos, err := cartesianProduct(outermostFirst)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", item.NodeIDStem, err)
	}

	items := make([]pyscan.ExecutableItem, 0, len(combos))
	for _, c := range combos {
		items = append(items, pyscan.ExecutableItem{
			NodeID:       item.NodeIDStem.WithCase(c.caseID),
			SourceFile:   item.SourceFile,
			ClassName:    item.ClassName,
			FunctionName: item.FunctionName,
			SkipReason:   skipReason,
			HasSkip:      hasSkip,
			XdistGroup:   xdistGroup,
			HasGroup:     hasGroup,
			ParamBindings: c.bindings,
		})
	}
	return items, nil
}

// combo is one element of the cartesian product: a combined case id and
// the flattened, in-order param bindings across every stacked decorator.
type combo struct {
	caseID   string
	bindings []pyscan.ParamBinding
}

// cartesianProduct builds the combo list for outermostFirst, varying the
// first marker slowest.
func cartesianProduct(outermostFirst []marker.Marker) ([]combo, error) {
	for _, m := range outermostFirst {
		if len(m.Cases) == 0 {
			return nil, fmt.Errorf("parametrize decorator has no cases")
		}
	}

	combos := []combo{{}}
	for _, m := range outermostFirst {
		caseIDs, err := caseIDsFor(m)
		if err != nil {
			return nil, err
		}

		var next []combo
		for _, prefix := range combos {
			for i, c := range m.Cases {
				bindings := make([]pyscan.ParamBinding, 0, len(prefix.bindings)+len(m.Argnames))
				bindings = append(bindings, prefix.bindings...)
				for j, name := range m.Argnames {
					token := ""
					if j < len(c.Values) {
						token = c.Values[j]
					}
					bindings = append(bindings, pyscan.ParamBinding{Name: name, Token: token})
				}

				id := caseIDs[i]
				caseID := id
				if prefix.caseID != "" {
					caseID = prefix.caseID + "-" + id
				}

				next = append(next, combo{caseID: caseID, bindings: bindings})
			}
		}
		combos = next
	}
	return combos, nil
}

// caseIDsFor returns one id per case of m: the explicit id when the
// decorator supplied `ids=`, otherwise the decimal string of the case's
// index.
func caseIDsFor(m marker.Marker) ([]string, error) {
	ids := make([]string, len(m.Cases))
	anyExplicit := false
	for _, c := range m.Cases {
		if c.ExplicitID != "" {
			anyExplicit = true
			break
		}
	}
	for i, c := range m.Cases {
		if anyExplicit {
			if c.ExplicitID == "" {
				return nil, fmt.Errorf("parametrize: ids must be given for every case or none")
			}
			ids[i] = c.ExplicitID
		} else {
			ids[i] = strconv.Itoa(i)
		}
	}
	for _, id := range ids {
		if strings.TrimSpace(id) == "" {
			return nil, fmt.Errorf("parametrize: empty case id")
		}
	}
	return ids, nil
}
