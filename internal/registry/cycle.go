package registry

import (
	"strings"

	"github.com/roach88/jagtrack/internal/ir"
)

// Recursion is a chain of templates that contain themselves.
// Path starts and ends with the same URN: ["a", "b", "a"].
type Recursion struct {
	Path []string `json:"path"`
}

func (r Recursion) String() string {
	return strings.Join(r.Path, " -> ")
}

// FindRecursion reports every template cycle in the catalog.
//
// Instantiation expands children eagerly, so a cycle would never
// terminate. The child graph is analysed with Tarjan's algorithm; each
// strongly connected component with more than one member, or a single
// member that lists itself as a child, is one Recursion. Children that
// refer to unknown templates are ignored here.
func FindRecursion(templates []ir.Template) []Recursion {
	graph := make(childGraph, len(templates))
	var order []string
	for _, t := range templates {
		if _, seen := graph[t.URN]; seen {
			continue
		}
		order = append(order, t.URN)
		graph[t.URN] = nil
	}
	for _, t := range templates {
		for _, c := range t.Children {
			if _, known := graph[c.URN]; known {
				graph[t.URN] = append(graph[t.URN], c.URN)
			}
		}
	}

	var out []Recursion
	for _, scc := range tarjanSCC(graph, order) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			out = append(out, Recursion{Path: cyclePath(scc, graph)})
		}
	}
	return out
}

// childGraph maps a template URN to the URNs of its children.
type childGraph map[string][]string

func hasSelfLoop(node string, graph childGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components, visiting roots in order
// so that results are deterministic.
func tarjanSCC(graph childGraph, order []string) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			sccs = append(sccs, scc)
		}
	}

	for _, node := range order {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

// cyclePath walks edges inside the component from its last-popped member
// (the DFS root) back to itself.
func cyclePath(scc []string, graph childGraph) []string {
	start := scc[len(scc)-1]
	if len(scc) == 1 {
		return []string{start, start}
	}

	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	path := []string{start}
	visited := map[string]bool{start: true}
	current := start
	for {
		var next string
		for _, neighbor := range graph[current] {
			if members[neighbor] && (!visited[neighbor] || neighbor == start) {
				next = neighbor
				break
			}
		}
		if next == "" {
			break
		}
		path = append(path, next)
		if next == start {
			break
		}
		visited[next] = true
		current = next
	}
	return path
}
