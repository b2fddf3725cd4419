package store

import (
	"cmp"
	"encoding/binary"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/coder/hnsw"
)

// DefaultExactSearchLimit is the largest collection searched by a full
// scan. Bigger collections go through the HNSW graph.
const DefaultExactSearchLimit = 20000

// graphOversample widens graph candidate lists before exact re-scoring.
const graphOversample = 4

// cosineDistanceName registers cosineDistance so graphs using it can be
// exported and imported.
const cosineDistanceName = "amandocs_cosine"

func init() {
	hnsw.RegisterDistanceFunc(cosineDistanceName, cosineDistance)
}

// vectorIndex holds the live vectors keyed by the documents.seq rowid.
//
// Up to exactLimit vectors, search is an exact scan. Past that an HNSW
// graph supplies candidates, which are re-scored exactly.
//
// Graph deletes are lazy: the key leaves the live set but the node stays
// in the graph, because coder/hnsw misbehaves when the last node is
// removed. Orphans are skipped at search time and dropped on the next
// rebuild.
type vectorIndex struct {
	mu         sync.Mutex
	vecs       map[uint64][]float32
	graph      *hnsw.Graph[uint64]
	distance   func(a, b []float32) float32
	metric     string
	dims       int
	m          int
	efSearch   int
	exactLimit int
}

func newVectorIndex(cfg Config, dims int) *vectorIndex {
	limit := cfg.ExactSearchLimit
	if limit == 0 {
		limit = DefaultExactSearchLimit
	}
	return &vectorIndex{
		vecs:       make(map[uint64][]float32),
		distance:   distanceFunc(cfg.Metric),
		metric:     cfg.Metric,
		dims:       dims,
		m:          cfg.M,
		efSearch:   cfg.EfSearch,
		exactLimit: limit,
	}
}

func (v *vectorIndex) newGraph() *hnsw.Graph[uint64] {
	g := hnsw.NewGraph[uint64]()
	g.Distance = v.distance
	g.M = v.m
	g.EfSearch = v.efSearch
	g.Ml = 0.25
	return g
}

// add inserts a vector. Callers must have validated its width.
func (v *vectorIndex) add(key uint64, vec []float32) {
	v.mu.Lock()
	defer v.mu.Unlock()

	cp := make([]float32, len(vec))
	copy(cp, vec)
	v.vecs[key] = cp
	if v.graph != nil {
		v.graph.Add(hnsw.MakeNode(key, cp))
	}
}

// remove drops keys from the live set.
func (v *vectorIndex) remove(keys ...uint64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for _, k := range keys {
		delete(v.vecs, k)
	}
}

// ensureGraph builds the graph once the index outgrows exact search.
func (v *vectorIndex) ensureGraph() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.ensureGraphLocked()
}

func (v *vectorIndex) ensureGraphLocked() {
	if v.graph != nil || len(v.vecs) <= v.exactLimit {
		return
	}
	keys := v.sortedKeysLocked()
	nodes := make([]hnsw.Node[uint64], 0, len(keys))
	for _, k := range keys {
		nodes = append(nodes, hnsw.MakeNode(k, v.vecs[k]))
	}
	g := v.newGraph()
	g.Add(nodes...)
	v.graph = g
}

func (v *vectorIndex) sortedKeysLocked() []uint64 {
	keys := make([]uint64, 0, len(v.vecs))
	for k := range v.vecs {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// neighbor is one search result.
type neighbor struct {
	key      uint64
	distance float32
}

// search returns up to k live neighbors of query by ascending distance.
// Equal distances keep insertion order.
func (v *vectorIndex) search(query []float32, k int) []neighbor {
	v.mu.Lock()
	defer v.mu.Unlock()

	if len(v.vecs) == 0 || k <= 0 {
		return nil
	}
	v.ensureGraphLocked()

	var cands []neighbor
	if v.graph == nil {
		cands = make([]neighbor, 0, len(v.vecs))
		for key, vec := range v.vecs {
			cands = append(cands, neighbor{key: key, distance: v.distance(query, vec)})
		}
	} else {
		total := v.graph.Len()
		// Over-ask by the orphan count so lazy deletes cannot starve results.
		want := min(max(k*graphOversample, v.efSearch)+total-len(v.vecs), total)
		v.graph.EfSearch = max(v.efSearch, want)
		for _, n := range v.graph.Search(query, want) {
			vec, ok := v.vecs[n.Key]
			if !ok {
				continue
			}
			cands = append(cands, neighbor{key: n.Key, distance: v.distance(query, vec)})
		}
	}

	slices.SortFunc(cands, func(a, b neighbor) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.key, b.key)
	})
	if len(cands) > k {
		cands = cands[:k]
	}
	return cands
}

// needsCompaction reports whether graph orphans outnumber live vectors.
func (v *vectorIndex) needsCompaction() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.graph == nil {
		return false
	}
	orphans := v.graph.Len() - len(v.vecs)
	return orphans > 64 && orphans > len(v.vecs)
}

func (v *vectorIndex) len() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.vecs)
}

func (v *vectorIndex) usesGraph() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.graph != nil
}

// distanceFunc returns the distance for a metric name.
func distanceFunc(metric string) func(a, b []float32) float32 {
	if metric == MetricEuclidean {
		return hnsw.EuclideanDistance
	}
	return cosineDistance
}

// cosineDistance is 1 - cos(a, b). A zero vector has no direction, so its
// distance to anything is 1 rather than NaN.
func cosineDistance(a, b []float32) float32 {
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	d := 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
	if d < 0 {
		return 0
	}
	return float32(d)
}

// distanceToScore converts a distance value to a similarity score.
// Cosine distance ranges 0..2, so score = 1 - d/2.
// L2 distance is unbounded, so score = 1 / (1 + d).
func distanceToScore(distance float32, metric string) float32 {
	if metric == MetricEuclidean {
		return 1.0 / (1.0 + distance)
	}
	return 1.0 - distance/2.0
}

// encodeVector packs a vector as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// decodeVector unpacks a vector written by encodeVector.
func decodeVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("vector blob length %d is not a multiple of 4", len(b))
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[4*i:]))
	}
	return v, nil
}
