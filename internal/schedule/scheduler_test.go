package schedule

import (
	"testing"

	"github.com/hughhan1/rtest/internal/pyscan"
)

func itemsOf(nodeIDs ...string) []pyscan.ExecutableItem {
	items := make([]pyscan.ExecutableItem, len(nodeIDs))
	for i, id := range nodeIDs {
		items[i] = pyscan.ExecutableItem{NodeID: pyscan.NodeID(id)}
	}
	return items
}

func withGroup(items []pyscan.ExecutableItem, group string) []pyscan.ExecutableItem {
	out := make([]pyscan.ExecutableItem, len(items))
	for i, it := range items {
		it.HasGroup = true
		it.XdistGroup = group
		out[i] = it
	}
	return out
}

func totalAssigned(assignments [][]pyscan.ExecutableItem) int {
	n := 0
	for _, a := range assignments {
		n += len(a)
	}
	return n
}

func TestAssign_ZeroWorkers(t *testing.T) {
	items := itemsOf("a", "b")
	got := Assign(items, 0)
	if len(got) != 0 {
		t.Errorf("Assign() with 0 workers returned %d slots, want 0", len(got))
	}
}

func TestAssign_EveryItemAssignedExactlyOnce(t *testing.T) {
	var items []pyscan.ExecutableItem
	items = append(items, withGroup(itemsOf("db1", "db2", "db3"), "database")...)
	items = append(items, withGroup(itemsOf("ui1", "ui2"), "ui")...)
	items = append(items, itemsOf("solo1")...)

	got := Assign(items, 3)
	if len(got) != 3 {
		t.Fatalf("Assign() returned %d worker slots, want 3", len(got))
	}
	if n := totalAssigned(got); n != len(items) {
		t.Errorf("total assigned items = %d, want %d", n, len(items))
	}

	seen := make(map[string]bool)
	for _, bucket := range got {
		for _, it := range bucket {
			if seen[string(it.NodeID)] {
				t.Errorf("NodeID %q assigned more than once", it.NodeID)
			}
			seen[string(it.NodeID)] = true
		}
	}
}

func TestAssign_GroupStaysTogether(t *testing.T) {
	items := withGroup(itemsOf("db1", "db2", "db3"), "database")
	items = append(items, itemsOf("solo1", "solo2", "solo3")...)

	got := Assign(items, 3)

	var groupBucket int = -1
	for i, bucket := range got {
		for _, it := range bucket {
			if it.HasGroup && it.XdistGroup == "database" {
				if groupBucket == -1 {
					groupBucket = i
				} else if groupBucket != i {
					t.Fatalf("database group split across workers %d and %d", groupBucket, i)
				}
			}
		}
	}
	if groupBucket == -1 {
		t.Fatal("database group not found in any bucket")
	}
}

func TestAssign_Deterministic(t *testing.T) {
	build := func() []pyscan.ExecutableItem {
		var items []pyscan.ExecutableItem
		items = append(items, withGroup(itemsOf("db1", "db2"), "database")...)
		items = append(items, withGroup(itemsOf("ui1"), "ui")...)
		items = append(items, itemsOf("solo1", "solo2")...)
		return items
	}

	first := Assign(build(), 2)
	second := Assign(build(), 2)

	for i := range first {
		if len(first[i]) != len(second[i]) {
			t.Fatalf("bucket %d length differs between runs: %d vs %d", i, len(first[i]), len(second[i]))
		}
		for j := range first[i] {
			if first[i][j].NodeID != second[i][j].NodeID {
				t.Errorf("bucket %d item %d differs between runs: %q vs %q", i, j, first[i][j].NodeID, second[i][j].NodeID)
			}
		}
	}
}

func TestAssign_MoreWorkersThanGroups_SomeEmpty(t *testing.T) {
	items := withGroup(itemsOf("a", "b"), "only-group")
	got := Assign(items, 4)
	if len(got) != 4 {
		t.Fatalf("Assign() returned %d slots, want 4", len(got))
	}
	nonEmpty := 0
	for _, bucket := range got {
		if len(bucket) > 0 {
			nonEmpty++
		}
	}
	if nonEmpty != 1 {
		t.Errorf("non-empty buckets = %d, want 1 (group stays together)", nonEmpty)
	}
}
