package graph

import (
	"testing"

	tdd "github.com/stretchr/testify/assert"
)

func triangle() *Graph {
	g := New()
	g.AddSegment(Segment{ID: "AB", From: "A", To: "B", Mode: 1, Cost: 1})
	g.AddSegment(Segment{ID: "BC", From: "B", To: "C", Mode: 1, Cost: 1})
	g.AddSegment(Segment{ID: "AC", From: "A", To: "C", Mode: 1, Cost: 1})
	return g
}

func TestShortestPath(t *testing.T) {
	assert := tdd.New(t)
	g := triangle()

	// the direct edge beats the two-hop route
	p, err := g.ShortestPath("A", "C", nil, nil)
	assert.Nil(err)
	assert.Equal([]string{"A", "C"}, p.Terminals)
	assert.Len(p.Segments, 1)
	assert.Equal("AC", p.Segments[0].ID)
	assert.Equal(1.0, p.Cost)
}

func TestShortestPathNotFound(t *testing.T) {
	assert := tdd.New(t)
	g := triangle()
	_, err := g.ShortestPath("C", "A", nil, nil)
	assert.NotNil(err)
}

func TestShortestPathExclusions(t *testing.T) {
	assert := tdd.New(t)
	g := triangle()
	p, err := g.ShortestPath("A", "C", map[string]bool{"AC": true}, nil)
	assert.Nil(err)
	assert.Equal([]string{"A", "B", "C"}, p.Terminals)
	assert.Equal(2.0, p.Cost)
}

func TestTopPaths(t *testing.T) {
	assert := tdd.New(t)
	g := triangle()

	paths, err := g.TopPaths("A", "C", 2)
	assert.Nil(err)
	assert.Len(paths, 2)
	// cost order: direct first, then the two-hop alternative
	assert.Equal([]string{"A", "C"}, paths[0].Terminals)
	assert.Equal([]string{"A", "B", "C"}, paths[1].Terminals)
	assert.LessOrEqual(paths[0].Cost, paths[1].Cost)
}

func TestTopPathsExhausted(t *testing.T) {
	assert := tdd.New(t)
	g := triangle()
	// only two loopless paths exist; asking for more returns what's there
	paths, err := g.TopPaths("A", "C", 5)
	assert.Nil(err)
	assert.Len(paths, 2)
}

func TestNodes(t *testing.T) {
	assert := tdd.New(t)
	g := triangle()
	assert.Equal([]string{"A", "B", "C"}, g.Nodes())
}
