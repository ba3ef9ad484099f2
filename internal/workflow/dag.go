package workflow

import "fmt"

// ValidateAcyclic runs Kahn's algorithm to fixed point: if fewer nodes are
// consumed than the step count, a cycle exists among the remainder.
func ValidateAcyclic(d *Definition) error {
	inDegree := make(map[string]int, len(d.Steps))
	dependents := make(map[string][]string, len(d.Steps))
	for _, s := range d.Steps {
		if _, ok := inDegree[s.ID]; !ok {
			inDegree[s.ID] = 0
		}
		for _, dep := range s.DependsOn {
			inDegree[s.ID]++
			dependents[dep] = append(dependents[dep], s.ID)
		}
	}

	queue := make([]string, 0, len(inDegree))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	visited := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range dependents[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if visited != len(d.Steps) {
		return fmt.Errorf("workflow %q: dependency graph contains a cycle", d.ID)
	}
	return nil
}

// graphState tracks per-step scheduling state for one execution of a DAG
// workflow: remaining in-degree and each step's dependents. Whether a step
// has run is tracked in runningExecution.done.
type graphState struct {
	inDegree   map[string]int
	dependents map[string][]string
}

func buildGraphState(d *Definition) *graphState {
	gs := &graphState{inDegree: make(map[string]int, len(d.Steps)), dependents: make(map[string][]string, len(d.Steps))}
	for _, s := range d.Steps {
		if _, ok := gs.inDegree[s.ID]; !ok {
			gs.inDegree[s.ID] = 0
		}
		for _, dep := range s.DependsOn {
			gs.inDegree[s.ID]++
			gs.dependents[dep] = append(gs.dependents[dep], s.ID)
		}
	}
	return gs
}

// frontier returns every step id currently at in-degree zero.
func (gs *graphState) frontier(done map[string]bool) []string {
	var out []string
	for id, deg := range gs.inDegree {
		if deg == 0 && !done[id] {
			out = append(out, id)
		}
	}
	return out
}

// satisfy decrements the in-degree of every direct dependent of id.
func (gs *graphState) satisfy(id string) []string {
	var unlocked []string
	for _, next := range gs.dependents[id] {
		gs.inDegree[next]--
		if gs.inDegree[next] == 0 {
			unlocked = append(unlocked, next)
		}
	}
	return unlocked
}

// descendants returns every step transitively dependent on id, used to
// cascade a fail-policy failure without ever running them.
func (gs *graphState) descendants(id string) []string {
	seen := map[string]bool{}
	var out []string
	var walk func(string)
	walk = func(cur string) {
		for _, next := range gs.dependents[cur] {
			if seen[next] {
				continue
			}
			seen[next] = true
			out = append(out, next)
			walk(next)
		}
	}
	walk(id)
	return out
}
