package compiler

import (
	"fmt"
	"sort"
	"strings"

	"github.com/roach88/docbridge/internal/schema"
)

// CycleWarning reports a loop in the embedded-copy graph.
//
// Cycles are warnings, not errors: the schema is still usable for queries,
// but an UPDATE on any table in the loop fails with an unsupported cascade.
type CycleWarning struct {
	Path    []string `json:"path"`    // Cycle path: ["Regions", "Regions"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeEmbeddings detects cycles in the embedded-copy graph.
//
// An edge E -> P exists when table P holds a foreign key to the EMBEDDABLE
// table E, so that an update to E must be copied into P's documents. If P
// is itself EMBEDDABLE, that copy cascades further.
//
// The algorithm:
//  1. Build the table -> copy-holder graph from foreign key roles
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a cycle warning
//
// An acyclic schema returns an empty warning list.
func AnalyzeEmbeddings(m *schema.Model) []CycleWarning {
	graph := buildEmbeddingGraph(m)
	if len(graph) == 0 {
		return []CycleWarning{}
	}

	sccs := tarjanSCC(graph)

	warnings := []CycleWarning{}
	for _, scc := range sccs {
		if len(scc) > 1 || (len(scc) == 1 && hasSelfLoop(scc[0], graph)) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	return warnings
}

// embeddingGraph maps an EMBEDDABLE table to the tables holding its copies.
type embeddingGraph map[string][]string

func buildEmbeddingGraph(m *schema.Model) embeddingGraph {
	graph := make(embeddingGraph)
	for _, t := range m.Tables() {
		for _, fk := range t.ForeignKeys {
			if fk.Role != schema.RoleEmbeddableParent {
				continue
			}
			target, err := m.LookupTable(fk.References)
			if err != nil {
				continue
			}
			graph[target.Name] = appendUnique(graph[target.Name], t.Name)
		}
	}
	for k := range graph {
		sort.Strings(graph[k])
	}
	return graph
}

func appendUnique(list []string, s string) []string {
	for _, existing := range list {
		if existing == s {
			return list
		}
	}
	return append(list, s)
}

// hasSelfLoop checks if a node has an edge to itself.
func hasSelfLoop(node string, graph embeddingGraph) bool {
	for _, neighbor := range graph[node] {
		if neighbor == node {
			return true
		}
	}
	return false
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Nodes are visited in sorted order so the result is deterministic.
func tarjanSCC(graph embeddingGraph) [][]string {
	index := 0
	stack := []string{}
	onStack := make(map[string]bool)
	indices := make(map[string]int)
	lowlinks := make(map[string]int)
	var sccs [][]string

	var strongConnect func(v string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlinks[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range graph[v] {
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlinks[v] = min(lowlinks[v], lowlinks[w])
			} else if onStack[w] {
				lowlinks[v] = min(lowlinks[v], indices[w])
			}
		}

		if lowlinks[v] == indices[v] {
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

	nodes := make([]string, 0, len(graph))
	for v := range graph {
		nodes = append(nodes, v)
	}
	sort.Strings(nodes)
	for _, v := range nodes {
		if _, visited := indices[v]; !visited {
			strongConnect(v)
		}
	}
	return sccs
}

// cycleSCCToWarning converts an SCC to a CycleWarning.
func cycleSCCToWarning(scc []string, graph embeddingGraph) CycleWarning {
	path := reconstructCyclePath(scc, graph)

	var message string
	if len(scc) == 1 {
		message = fmt.Sprintf("table %s embeds a copy of itself; updates to it cannot cascade", scc[0])
	} else {
		message = fmt.Sprintf("embedded copies form a cycle: %s; updates to these tables cannot cascade",
			strings.Join(path, " -> "))
	}

	return CycleWarning{
		Path:    path,
		Message: message,
		Level:   "warning",
	}
}

// reconstructCyclePath walks the SCC from its smallest member to produce a
// readable path that ends where it started.
func reconstructCyclePath(scc []string, graph embeddingGraph) []string {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}
	sorted := append([]string(nil), scc...)
	sort.Strings(sorted)
	start := sorted[0]

	if len(scc) == 1 {
		return []string{start, start}
	}

	path := []string{start}
	seen := map[string]bool{start: true}
	current := start
	for {
		next := ""
		for _, w := range graph[current] {
			if !members[w] {
				continue
			}
			if w == start && len(path) == len(scc) {
				return append(path, start)
			}
			if !seen[w] {
				next = w
				break
			}
		}
		if next == "" {
			// Cannot close a simple cycle through every member; report the walk.
			return append(path, start)
		}
		path = append(path, next)
		seen[next] = true
		current = next
	}
}
