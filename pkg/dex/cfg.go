package dex

import (
	"sort"

	"gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/simple"
)

// CFG is the successor relation between the blocks of a method.
// simple.DirectedGraph rejects self edges, so single-block loops are tracked beside it.
type CFG struct {
	g     *simple.DirectedGraph
	loops map[BlockID]bool
}

// NewCFG creates an empty graph
func NewCFG() *CFG {
	return &CFG{g: simple.NewDirectedGraph(), loops: make(map[BlockID]bool)}
}

// AddBlock adds a node for b if it is not yet present
func (c *CFG) AddBlock(b BlockID) {
	if c.g.Node(int64(b)) == nil {
		c.g.AddNode(simple.Node(b))
	}
}

// AddEdge records the edge from -> to
func (c *CFG) AddEdge(from, to BlockID) {
	if from == to {
		c.AddBlock(from)
		c.loops[from] = true
		return
	}
	c.g.SetEdge(c.g.NewEdge(simple.Node(from), simple.Node(to)))
}

// HasEdge reports whether from -> to is an edge
func (c *CFG) HasEdge(from, to BlockID) bool {
	if from == to {
		return c.loops[from]
	}
	return c.g.HasEdgeFromTo(int64(from), int64(to))
}

// Successors returns the successors of b in ascending order
func (c *CFG) Successors(b BlockID) []BlockID {
	ids := collect(c.g.From(int64(b)))
	if c.loops[b] {
		ids = append(ids, b)
	}
	return sorted(ids)
}

// Predecessors returns the predecessors of b in ascending order
func (c *CFG) Predecessors(b BlockID) []BlockID {
	ids := collect(c.g.To(int64(b)))
	if c.loops[b] {
		ids = append(ids, b)
	}
	return sorted(ids)
}

func collect(it graph.Nodes) []BlockID {
	var ids []BlockID
	for it.Next() {
		ids = append(ids, BlockID(it.Node().ID()))
	}
	return ids
}

func sorted(ids []BlockID) []BlockID {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
