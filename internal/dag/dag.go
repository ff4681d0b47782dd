package dag

import (
	"errors"
	"fmt"
	"sort"

	graphlib "github.com/dominikbraun/graph"
)

// Graph is a directed graph of string IDs.
type Graph struct {
	g graphlib.Graph[string, string]
}

// New creates and returns an initialized, empty Graph.
func New() *Graph {
	return &Graph{g: graphlib.New(graphlib.StringHash, graphlib.Directed())}
}

// AddNode adds a node with the given ID. Adding an existing ID does nothing.
func (g *Graph) AddNode(id string) {
	// The only possible error is graphlib.ErrVertexAlreadyExists.
	_ = g.g.AddVertex(id)
}

// AddEdge creates a directed edge from fromID to toID, meaning toID depends
// on fromID. Adding an existing edge does nothing.
func (g *Graph) AddEdge(fromID, toID string) error {
	if fromID == toID {
		return fmt.Errorf("self-referential edge not allowed: %s -> %s", fromID, fromID)
	}
	if _, err := g.g.Vertex(fromID); err != nil {
		return fmt.Errorf("source node not found: %s", fromID)
	}
	if _, err := g.g.Vertex(toID); err != nil {
		return fmt.Errorf("destination node not found: %s", toID)
	}

	err := g.g.AddEdge(fromID, toID)
	if err != nil && !errors.Is(err, graphlib.ErrEdgeAlreadyExists) {
		return fmt.Errorf("adding edge %s -> %s: %w", fromID, toID, err)
	}
	return nil
}

// Components returns the strongly connected groups of two or more nodes,
// i.e. the sets of nodes that mutually depend on each other. Each group is
// sorted and the groups are ordered by their first member.
func (g *Graph) Components() [][]string {
	sccs, err := graphlib.StronglyConnectedComponents(g.g)
	if err != nil {
		// Only returned for undirected graphs.
		panic(err)
	}

	var groups [][]string
	for _, scc := range sccs {
		if len(scc) < 2 {
			continue
		}
		group := append([]string(nil), scc...)
		sort.Strings(group)
		groups = append(groups, group)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i][0] < groups[j][0] })
	return groups
}
