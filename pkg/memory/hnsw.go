package memory

import (
	"container/heap"
	"math"
	"math/rand"
	"sort"
)

// maxNodeLevel caps the exponential level assignment so a pathological
// random draw cannot create a degenerate tower of layers.
const maxNodeLevel = 10

// IndexConfig holds the HNSW construction and search parameters.
type IndexConfig struct {
	// Dimension is the embedding vector size.
	Dimension int
	// M is the max neighbors per node and layer.
	M int
	// EfConstruction is the beam width used while inserting.
	EfConstruction int
	// EfSearch is the beam width used at layer 0 while searching.
	EfSearch int
}

// DefaultIndexConfig returns the parameters the engine was tuned for:
// 128-dim embeddings, M=16, efConstruction=200, efSearch=50.
func DefaultIndexConfig() IndexConfig {
	return IndexConfig{
		Dimension:      128,
		M:              16,
		EfConstruction: 200,
		EfSearch:       50,
	}
}

// node is an arena slot. Neighbors are integer handles into the arena,
// one list per layer up to the node's assigned level.
type node struct {
	vector    []float32
	neighbors [][]uint32
	deleted   bool
}

func (n *node) level() int {
	return len(n.neighbors) - 1
}

// Candidate is a raw index search result.
type Candidate struct {
	ID       uint32
	Distance float64
}

/*
Index is an HNSW proximity graph over a dense node arena. Node identity is
an integer handle, which avoids pointer cycles and keeps deletion a matter
of scrubbing adjacency lists.

Index is not safe for concurrent mutation; confine each instance to one
logical owner.
*/
type Index struct {
	config IndexConfig
	nodes  []*node
	free   []uint32
	// entry is the current entry point handle, -1 when the index is empty.
	// The entry point always carries the max layer of the graph.
	entry int
	count int
	rng   *rand.Rand
}

// NewIndex creates an HNSW index. The caller supplies the random source so
// graph construction is reproducible in tests; a nil rng falls back to a
// fixed seed.
func NewIndex(config IndexConfig, rng *rand.Rand) *Index {
	if config.M <= 0 {
		config = DefaultIndexConfig()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Index{
		config: config,
		entry:  -1,
		rng:    rng,
	}
}

// Len returns the number of live nodes.
func (idx *Index) Len() int {
	return idx.count
}

// Vector returns the stored vector for a live handle.
func (idx *Index) Vector(id uint32) []float32 {
	if int(id) >= len(idx.nodes) || idx.nodes[id] == nil || idx.nodes[id].deleted {
		return nil
	}
	return idx.nodes[id].vector
}

// randomLevel draws the node level from an exponential distribution:
// level = min(floor(-ln(U) / ln(M)), maxNodeLevel).
func (idx *Index) randomLevel() int {
	u := idx.rng.Float64()
	if u == 0 {
		u = math.SmallestNonzeroFloat64
	}
	level := int(math.Floor(-math.Log(u) / math.Log(float64(idx.config.M))))
	if level > maxNodeLevel {
		level = maxNodeLevel
	}
	return level
}

// Insert adds a vector and returns its handle.
func (idx *Index) Insert(vector []float32) uint32 {
	level := idx.randomLevel()

	n := &node{
		vector:    vector,
		neighbors: make([][]uint32, level+1),
	}

	id := idx.alloc(n)

	if idx.entry < 0 {
		idx.entry = int(id)
		return id
	}

	top := idx.nodes[idx.entry].level()

	// Greedy descent with single-best-neighbor hops down to the first
	// layer the new node participates in.
	cur := uint32(idx.entry)
	for layer := top; layer > level; layer-- {
		cur = idx.greedySearch(vector, cur, layer)
	}

	start := level
	if top < start {
		start = top
	}

	for layer := start; layer >= 0; layer-- {
		candidates := idx.searchLayer(vector, cur, layer, idx.config.EfConstruction)

		m := idx.config.M
		if len(candidates) < m {
			m = len(candidates)
		}

		for _, cand := range candidates[:m] {
			idx.connect(id, cand.ID, layer)
		}

		if len(candidates) > 0 {
			cur = candidates[0].ID
		}
	}

	if level > top {
		idx.entry = int(id)
	}

	return id
}

// Search returns up to k candidates ordered by ascending distance. An empty
// index yields an empty result, not an error.
func (idx *Index) Search(query []float32, k int) []Candidate {
	if idx.entry < 0 || k <= 0 {
		return nil
	}

	top := idx.nodes[idx.entry].level()

	cur := uint32(idx.entry)
	for layer := top; layer >= 1; layer-- {
		cur = idx.greedySearch(query, cur, layer)
	}

	candidates := idx.searchLayer(query, cur, 0, idx.config.EfSearch)
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

// Delete removes a node, scrubbing it from every neighbor adjacency list on
// every layer. When the entry point dies a new one is elected from the
// remaining nodes, which also re-establishes the max layer.
func (idx *Index) Delete(id uint32) bool {
	if int(id) >= len(idx.nodes) || idx.nodes[id] == nil || idx.nodes[id].deleted {
		return false
	}

	n := idx.nodes[id]

	for layer, neighbors := range n.neighbors {
		for _, nb := range neighbors {
			idx.unlink(nb, id, layer)
		}
	}

	n.deleted = true
	n.vector = nil
	n.neighbors = nil
	idx.free = append(idx.free, id)
	idx.count--

	if idx.entry == int(id) {
		idx.entry = -1
		best := -1
		for i, other := range idx.nodes {
			if other == nil || other.deleted {
				continue
			}
			if best < 0 || other.level() > idx.nodes[best].level() {
				best = i
			}
		}
		idx.entry = best
	}

	return true
}

func (idx *Index) alloc(n *node) uint32 {
	if len(idx.free) > 0 {
		id := idx.free[len(idx.free)-1]
		idx.free = idx.free[:len(idx.free)-1]
		idx.nodes[id] = n
		idx.count++
		return id
	}

	idx.nodes = append(idx.nodes, n)
	idx.count++
	return uint32(len(idx.nodes) - 1)
}

// connect links a and b bidirectionally at layer, pruning either side back
// to M neighbors by nearest distance once it exceeds 2M.
func (idx *Index) connect(a, b uint32, layer int) {
	idx.nodes[a].neighbors[layer] = append(idx.nodes[a].neighbors[layer], b)
	idx.nodes[b].neighbors[layer] = append(idx.nodes[b].neighbors[layer], a)

	idx.prune(a, layer)
	idx.prune(b, layer)
}

// prune trims a node's adjacency back to M by nearest distance once it
// exceeds 2M. Dropped edges are removed from both sides; Delete relies on
// that symmetry to scrub every reference to the victim.
func (idx *Index) prune(id uint32, layer int) {
	n := idx.nodes[id]
	if len(n.neighbors[layer]) <= 2*idx.config.M {
		return
	}

	neighbors := n.neighbors[layer]
	sort.Slice(neighbors, func(i, j int) bool {
		return cosineDistance(n.vector, idx.nodes[neighbors[i]].vector) <
			cosineDistance(n.vector, idx.nodes[neighbors[j]].vector)
	})

	for _, dropped := range neighbors[idx.config.M:] {
		idx.unlink(dropped, id, layer)
	}

	n.neighbors[layer] = append([]uint32(nil), neighbors[:idx.config.M]...)
}

func (idx *Index) unlink(id, target uint32, layer int) {
	n := idx.nodes[id]
	if n == nil || n.deleted || layer >= len(n.neighbors) {
		return
	}

	neighbors := n.neighbors[layer]
	for i, nb := range neighbors {
		if nb == target {
			n.neighbors[layer] = append(neighbors[:i], neighbors[i+1:]...)
			return
		}
	}
}

// greedySearch hops to the single best neighbor until no neighbor improves
// the distance to the query.
func (idx *Index) greedySearch(query []float32, start uint32, layer int) uint32 {
	cur := start
	curDist := cosineDistance(query, idx.nodes[cur].vector)

	for {
		improved := false
		for _, nb := range idx.nodes[cur].neighbors[layer] {
			d := cosineDistance(query, idx.nodes[nb].vector)
			if d < curDist {
				cur = nb
				curDist = d
				improved = true
			}
		}
		if !improved {
			return cur
		}
	}
}

// searchLayer runs the bounded beam search at one layer, returning up to ef
// candidates ordered by ascending distance.
func (idx *Index) searchLayer(query []float32, start uint32, layer, ef int) []Candidate {
	startDist := cosineDistance(query, idx.nodes[start].vector)

	visited := map[uint32]bool{start: true}

	candidates := &minQueue{{ID: start, Distance: startDist}}
	heap.Init(candidates)

	results := &maxQueue{{ID: start, Distance: startDist}}
	heap.Init(results)

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(Candidate)

		if results.Len() >= ef && c.Distance > (*results)[0].Distance {
			break
		}

		for _, nb := range idx.nodes[c.ID].neighbors[layer] {
			if visited[nb] {
				continue
			}
			visited[nb] = true

			d := cosineDistance(query, idx.nodes[nb].vector)
			if results.Len() < ef || d < (*results)[0].Distance {
				heap.Push(candidates, Candidate{ID: nb, Distance: d})
				heap.Push(results, Candidate{ID: nb, Distance: d})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}

	out := make([]Candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(Candidate)
	}
	return out
}

// minQueue is a min-heap of candidates by distance.
type minQueue []Candidate

func (q minQueue) Len() int           { return len(q) }
func (q minQueue) Less(i, j int) bool { return q[i].Distance < q[j].Distance }
func (q minQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *minQueue) Push(x any)        { *q = append(*q, x.(Candidate)) }

func (q *minQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	*q = old[:n-1]
	return c
}

// maxQueue is a max-heap of candidates by distance.
type maxQueue []Candidate

func (q maxQueue) Len() int           { return len(q) }
func (q maxQueue) Less(i, j int) bool { return q[i].Distance > q[j].Distance }
func (q maxQueue) Swap(i, j int)      { q[i], q[j] = q[j], q[i] }
func (q *maxQueue) Push(x any)        { *q = append(*q, x.(Candidate)) }

func (q *maxQueue) Pop() any {
	old := *q
	n := len(old)
	c := old[n-1]
	*q = old[:n-1]
	return c
}
