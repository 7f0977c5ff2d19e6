// Package graph implements an in-process directed graph over terminal names,
// supporting shortest-path and k-shortest-loopless-paths queries used by
// terminal clients to route containers between terminals.
package graph

import (
	"container/heap"
	"sort"

	"go.bryk.io/x/cargonetsim/errors"
)

// Segment is a single directed edge between two terminals.
type Segment struct {
	ID         string
	From       string
	To         string
	Mode       int
	Cost       float64
	Attributes map[string]interface{}
}

// Path is a full route between two terminals, made up of ordered segments.
type Path struct {
	Terminals []string
	Segments  []Segment
	Cost      float64
}

// Graph is a directed, weighted graph keyed by terminal name.
type Graph struct {
	adjacency map[string][]Segment
}

// New returns an empty Graph.
func New() *Graph {
	return &Graph{adjacency: make(map[string][]Segment)}
}

// AddSegment inserts a directed edge into the graph. Both endpoints are
// implicitly created as nodes if they don't already exist.
func (g *Graph) AddSegment(s Segment) {
	if _, ok := g.adjacency[s.From]; !ok {
		g.adjacency[s.From] = nil
	}
	if _, ok := g.adjacency[s.To]; !ok {
		g.adjacency[s.To] = nil
	}
	g.adjacency[s.From] = append(g.adjacency[s.From], s)
}

// Nodes returns every terminal name registered in the graph.
func (g *Graph) Nodes() []string {
	nodes := make([]string, 0, len(g.adjacency))
	for n := range g.adjacency {
		nodes = append(nodes, n)
	}
	sort.Strings(nodes)
	return nodes
}

// dijkstraItem is an entry in the priority queue used by Dijkstra's
// algorithm, tracking the cheapest known path to reach `node`.
type dijkstraItem struct {
	node  string
	cost  float64
	path  []Segment
	index int
}

type priorityQueue []*dijkstraItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].cost < pq[j].cost }
func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index, pq[j].index = i, j
}
func (pq *priorityQueue) Push(x interface{}) {
	item := x.(*dijkstraItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

// ShortestPath runs Dijkstra's algorithm over the graph and returns the
// lowest-cost loopless path from origin to destination. `excluded` segments
// (identified by ID) and `excludedNodes` are skipped, supporting Yen's
// algorithm's spur-path search without needing a separate graph copy.
func (g *Graph) ShortestPath(origin, destination string, excluded map[string]bool, excludedNodes map[string]bool) (Path, error) {
	if origin == destination {
		return Path{Terminals: []string{origin}}, nil
	}

	pq := &priorityQueue{}
	heap.Init(pq)
	heap.Push(pq, &dijkstraItem{node: origin, cost: 0})
	visited := make(map[string]bool)

	for pq.Len() > 0 {
		current := heap.Pop(pq).(*dijkstraItem)
		if visited[current.node] {
			continue
		}
		if current.node == destination {
			return buildPath(origin, current.path), nil
		}
		visited[current.node] = true

		for _, seg := range g.adjacency[current.node] {
			if excluded[seg.ID] || excludedNodes[seg.To] || visited[seg.To] {
				continue
			}
			nextPath := append(append([]Segment{}, current.path...), seg)
			heap.Push(pq, &dijkstraItem{
				node: seg.To,
				cost: current.cost + seg.Cost,
				path: nextPath,
			})
		}
	}
	return Path{}, errors.New("no path found between terminals")
}

func buildPath(origin string, segments []Segment) Path {
	terminals := make([]string, 0, len(segments)+1)
	terminals = append(terminals, origin)
	var cost float64
	for _, seg := range segments {
		terminals = append(terminals, seg.To)
		cost += seg.Cost
	}
	return Path{Terminals: terminals, Segments: segments, Cost: cost}
}

// candidate is a path kept in the Yen's-algorithm candidate heap.
type candidate struct {
	path  Path
	index int
}

type candidateQueue []*candidate

func (cq candidateQueue) Len() int           { return len(cq) }
func (cq candidateQueue) Less(i, j int) bool { return cq[i].path.Cost < cq[j].path.Cost }
func (cq candidateQueue) Swap(i, j int) {
	cq[i], cq[j] = cq[j], cq[i]
	cq[i].index, cq[j].index = i, j
}
func (cq *candidateQueue) Push(x interface{}) {
	item := x.(*candidate)
	item.index = len(*cq)
	*cq = append(*cq, item)
}
func (cq *candidateQueue) Pop() interface{} {
	old := *cq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*cq = old[:n-1]
	return item
}

// TopPaths returns up to k loopless paths from origin to destination in
// increasing cost order, using Yen's algorithm built on top of ShortestPath.
func (g *Graph) TopPaths(origin, destination string, k int) ([]Path, error) {
	if k <= 0 {
		return nil, errors.New("k must be positive")
	}

	best, err := g.ShortestPath(origin, destination, nil, nil)
	if err != nil {
		return nil, err
	}
	paths := []Path{best}

	candidates := &candidateQueue{}
	heap.Init(candidates)
	seen := map[string]bool{pathKey(best): true}

	for len(paths) < k {
		prev := paths[len(paths)-1]
		for i := 0; i < len(prev.Terminals)-1; i++ {
			spurNode := prev.Terminals[i]
			rootPath := prev.Terminals[:i+1]
			rootSegments := prev.Segments[:i]

			excludedSegments := map[string]bool{}
			for _, p := range paths {
				if hasRootPrefix(p, rootPath) && len(p.Segments) > i {
					excludedSegments[p.Segments[i].ID] = true
				}
			}
			excludedNodes := map[string]bool{}
			for _, n := range rootPath[:len(rootPath)-1] {
				excludedNodes[n] = true
			}

			spur, err := g.ShortestPath(spurNode, destination, excludedSegments, excludedNodes)
			if err != nil {
				continue
			}

			total := Path{
				Terminals: append(append([]string{}, rootPath[:len(rootPath)-1]...), spur.Terminals...),
				Segments:  append(append([]Segment{}, rootSegments...), spur.Segments...),
				Cost:      pathCost(rootSegments) + spur.Cost,
			}
			key := pathKey(total)
			if !seen[key] {
				seen[key] = true
				heap.Push(candidates, &candidate{path: total})
			}
		}

		if candidates.Len() == 0 {
			break
		}
		paths = append(paths, heap.Pop(candidates).(*candidate).path)
	}
	return paths, nil
}

func pathCost(segments []Segment) float64 {
	var total float64
	for _, s := range segments {
		total += s.Cost
	}
	return total
}

func pathKey(p Path) string {
	key := ""
	for _, t := range p.Terminals {
		key += t + ">"
	}
	return key
}

func hasRootPrefix(p Path, root []string) bool {
	if len(p.Terminals) < len(root) {
		return false
	}
	for i, n := range root {
		if p.Terminals[i] != n {
			return false
		}
	}
	return true
}
