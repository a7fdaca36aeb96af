// Package schedule assigns ExecutableItems to worker slots using a
// longest-processing-time-first heuristic over xdist_group-affine groups.
package schedule

import (
	"container/heap"
	"sort"
	"strconv"

	"github.com/hughhan1/rtest/internal/pyscan"
)

// Assign partitions items into workers worker-index lists of length
// numWorkers. Items sharing an xdist_group are always assigned to the
// same worker. Assignment is deterministic: identical items in identical
// order always produce identical output.
func Assign(items []pyscan.ExecutableItem, numWorkers int) [][]pyscan.ExecutableItem {
	assignments := make([][]pyscan.ExecutableItem, numWorkers)
	if numWorkers <= 0 {
		return assignments
	}

	groups := groupItems(items)
	sort.Slice(groups, func(i, j int) bool {
		if len(groups[i].items) != len(groups[j].items) {
			return len(groups[i].items) > len(groups[j].items)
		}
		return groups[i].name < groups[j].name
	})

	loads := make(workerHeap, numWorkers)
	for i := range loads {
		loads[i] = &workerLoad{index: i}
	}
	heap.Init(&loads)

	for _, g := range groups {
		least := heap.Pop(&loads).(*workerLoad)
		assignments[least.index] = append(assignments[least.index], g.items...)
		least.load += len(g.items)
		heap.Push(&loads, least)
	}

	return assignments
}

// group is one xdist_group's items, or a singleton group for an
// ungrouped item (synthesized a name so sort ordering stays deterministic
// without letting singleton groups collide with a real group name).
type group struct {
	name  string
	items []pyscan.ExecutableItem
}

// groupItems partitions items preserving discovery order within each
// group; the order groups are first encountered has no bearing on the
// final assignment, since groups are always re-sorted before scheduling.
func groupItems(items []pyscan.ExecutableItem) []group {
	index := make(map[string]int)
	var groups []group

	singleton := 0
	for _, it := range items {
		key := ""
		if it.HasGroup {
			key = "g:" + it.XdistGroup
		} else {
			key = singletonKey(singleton)
			singleton++
		}

		if idx, ok := index[key]; ok {
			groups[idx].items = append(groups[idx].items, it)
			continue
		}

		name := it.XdistGroup
		if !it.HasGroup {
			name = string(it.NodeID)
		}
		index[key] = len(groups)
		groups = append(groups, group{name: name, items: []pyscan.ExecutableItem{it}})
	}
	return groups
}

// singletonKey gives every ungrouped item its own unique partition key;
// the numeric suffix only needs to be unique within one call to
// groupItems, never stable across calls.
func singletonKey(n int) string {
	return "s:" + strconv.Itoa(n)
}

// workerLoad tracks one worker's running item count for the min-heap.
type workerLoad struct {
	index int
	load  int
}

// workerHeap is a min-heap of workerLoad ordered by load, tie-broken by
// worker index so two runs over identical input assign identically.
type workerHeap []*workerLoad

func (h workerHeap) Len() int { return len(h) }
func (h workerHeap) Less(i, j int) bool {
	if h[i].load != h[j].load {
		return h[i].load < h[j].load
	}
	return h[i].index < h[j].index
}
func (h workerHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *workerHeap) Push(x any) {
	*h = append(*h, x.(*workerLoad))
}

func (h *workerHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
