package planner

import (
	"sort"

	"github.com/blackwell-systems/zerobrew/internal/formula"
	"github.com/blackwell-systems/zerobrew/internal/platform"
	"github.com/blackwell-systems/zerobrew/internal/zerrors"
)

// resolveOrder topologically sorts the closure using Kahn's algorithm.
// Dependencies come before dependents; siblings break ties alphabetically so
// the order is reproducible. A cycle fails with DependencyCycleError naming
// the offending chain.
func resolveOrder(closure map[string]*formula.Formula, plat platform.Platform) ([]string, error) {
	indegree := make(map[string]int, len(closure))
	dependents := make(map[string][]string, len(closure))

	for name := range closure {
		indegree[name] = 0
	}
	for name, f := range closure {
		deps := f.RuntimeDependencies(plat)
		sort.Strings(deps)
		for _, dep := range deps {
			if _, ok := closure[dep]; !ok {
				continue
			}
			if dep == name {
				return nil, &zerrors.DependencyCycleError{Cycle: []string{name, name}}
			}
			indegree[name]++
			dependents[dep] = append(dependents[dep], name)
		}
	}

	ready := make([]string, 0, len(closure))
	for name, n := range indegree {
		if n == 0 {
			ready = append(ready, name)
		}
	}
	sort.Strings(ready)

	ordered := make([]string, 0, len(closure))
	for len(ready) > 0 {
		name := ready[0]
		ready = ready[1:]
		ordered = append(ordered, name)

		inserted := false
		for _, child := range dependents[name] {
			indegree[child]--
			if indegree[child] == 0 {
				ready = append(ready, child)
				inserted = true
			}
		}
		if inserted {
			sort.Strings(ready)
		}
	}

	if len(ordered) != len(closure) {
		return nil, &zerrors.DependencyCycleError{Cycle: findCycle(closure, indegree, plat)}
	}
	return ordered, nil
}

// findCycle walks the leftover subgraph (every node still has an unmet
// dependency, so following any dependency edge must revisit a node) and
// returns the chain with the entry node repeated at the end.
func findCycle(closure map[string]*formula.Formula, indegree map[string]int, plat platform.Platform) []string {
	remaining := make(map[string]bool)
	for name, n := range indegree {
		if n > 0 {
			remaining[name] = true
		}
	}

	var start string
	names := make([]string, 0, len(remaining))
	for name := range remaining {
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) == 0 {
		return nil
	}
	start = names[0]

	visited := make(map[string]int)
	var chain []string
	current := start
	for {
		if at, seen := visited[current]; seen {
			cycle := append([]string{}, chain[at:]...)
			return append(cycle, current)
		}
		visited[current] = len(chain)
		chain = append(chain, current)

		deps := closure[current].RuntimeDependencies(plat)
		sort.Strings(deps)
		next := ""
		for _, dep := range deps {
			if remaining[dep] {
				next = dep
				break
			}
		}
		if next == "" {
			// Should not happen in a leftover subgraph; bail with what we have.
			return append(chain, chain[0])
		}
		current = next
	}
}
