package harness

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ekifun/esrgan-super-resolution-golang/internal/reconcile"
	"github.com/ekifun/esrgan-super-resolution-golang/internal/topic"
)

// jobKey is the order-insensitive identity of a job in a final view.
// Completion order and source URLs depend on arrival order, so they are not
// part of it.
type jobKey struct {
	Name      string
	State     topic.State
	Progress  int
	ResultURL string
}

// CheckOrderIndependence applies every permutation of muts to a fresh store
// and reports the first ordering whose jobs differ from final.
func CheckOrderIndependence(muts []reconcile.Mutation, final reconcile.View) []string {
	want := jobSet(final)

	var errs []string
	permute(len(muts), func(order []int) bool {
		s := reconcile.New()
		for _, i := range order {
			// Rejections are part of the outcome being compared.
			_, _, _ = s.Apply(muts[i])
		}
		got := jobSet(s.View())
		if !equalJobs(want, got) {
			errs = append(errs, fmt.Sprintf("order independence: ordering %s ends in %s, want %s",
				describeOrder(muts, order), formatJobs(got), formatJobs(want)))
			return false
		}
		return true
	})
	return errs
}

func jobSet(v reconcile.View) []jobKey {
	out := make([]jobKey, 0, len(v.InFlight)+len(v.Completed))
	for _, j := range v.InFlight {
		out = append(out, jobKey{Name: j.Name, State: j.State, Progress: j.Progress})
	}
	for _, j := range v.Completed {
		out = append(out, jobKey{Name: j.Name, State: topic.StateCompleted, ResultURL: j.ResultURL})
	}
	sort.Slice(out, func(a, b int) bool { return out[a].Name < out[b].Name })
	return out
}

func equalJobs(a, b []jobKey) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func formatJobs(jobs []jobKey) string {
	parts := make([]string, len(jobs))
	for i, j := range jobs {
		if j.State == topic.StateCompleted {
			parts[i] = fmt.Sprintf("%s:%s", j.Name, j.State)
		} else {
			parts[i] = fmt.Sprintf("%s:%s@%d", j.Name, j.State, j.Progress)
		}
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func describeOrder(muts []reconcile.Mutation, order []int) string {
	parts := make([]string, len(order))
	for i, idx := range order {
		parts[i] = muts[idx].String()
	}
	return strings.Join(parts, ", ")
}

// permute calls fn with each permutation of [0, n) using Heap's algorithm.
// It stops early when fn returns false. The slice passed to fn is reused.
func permute(n int, fn func([]int) bool) {
	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	if !fn(order) {
		return
	}

	c := make([]int, n)
	for i := 0; i < n; {
		if c[i] < i {
			if i%2 == 0 {
				order[0], order[i] = order[i], order[0]
			} else {
				order[c[i]], order[i] = order[i], order[c[i]]
			}
			if !fn(order) {
				return
			}
			c[i]++
			i = 0
		} else {
			c[i] = 0
			i++
		}
	}
}
