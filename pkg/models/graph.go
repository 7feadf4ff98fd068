package models

import "sort"

// Graph maps node identifiers to nodes. It is the unit submitted to the engine.
type Graph map[string]*Node

// Clone returns a deep copy of the graph. Mutating the copy never affects g.
func (g Graph) Clone() Graph {
	if g == nil {
		return nil
	}

	clone := make(Graph, len(g))
	for id, node := range g {
		clone[id] = node.Clone()
	}

	return clone
}

// Node returns the node with the given id, or nil.
func (g Graph) Node(id string) *Node {
	if id == "" {
		return nil
	}

	return g[id]
}

// NodeIDs returns the node identifiers sorted numerically when possible,
// lexically otherwise.
func (g Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g))
	for id := range g {
		ids = append(ids, id)
	}

	sort.Slice(ids, func(i, j int) bool {
		if len(ids[i]) != len(ids[j]) {
			return len(ids[i]) < len(ids[j])
		}

		return ids[i] < ids[j]
	})

	return ids
}

// DanglingRefs lists references that point at nodes missing from the graph.
// The engine rejects such graphs; the client only reports them.
func (g Graph) DanglingRefs() []Ref {
	var dangling []Ref

	for _, id := range g.NodeIDs() {
		node := g[id]
		if node == nil {
			continue
		}

		for _, value := range node.Inputs {
			ref, ok := AsRef(value)
			if !ok {
				continue
			}

			if _, exists := g[ref.NodeID]; !exists {
				dangling = append(dangling, ref)
			}
		}
	}

	return dangling
}
