package store

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	graphFileMagic   = "AMDGRAPH"
	graphFileVersion = 1
)

// errStaleGraph marks a graph file that does not describe the current
// collection. Callers rebuild from SQLite.
var errStaleGraph = errors.New("graph file is stale")

// graphHeader prefixes a saved graph. Generation is the store_state write
// counter the graph was built at.
type graphHeader struct {
	Magic      [8]byte
	Version    uint32
	Dims       uint32
	Metric     [8]byte
	Generation int64
	Keys       uint64
}

func newGraphHeader(metric string, dims int, generation int64, keys int) graphHeader {
	h := graphHeader{
		Version:    graphFileVersion,
		Dims:       uint32(dims),
		Generation: generation,
		Keys:       uint64(keys),
	}
	copy(h.Magic[:], graphFileMagic)
	copy(h.Metric[:], metric)
	return h
}

// save writes the graph and its live keys to path atomically. It must be
// called on a freshly built index, before any lazy delete.
func (v *vectorIndex) save(path string, generation int64) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	if v.graph == nil {
		return nil
	}
	if v.graph.Len() != len(v.vecs) {
		return fmt.Errorf("graph has %d nodes for %d live vectors", v.graph.Len(), len(v.vecs))
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create graph file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() { _ = os.Remove(tmpPath) }()

	keys := v.sortedKeysLocked()
	w := bufio.NewWriter(tmp)
	header := newGraphHeader(v.metric, v.dims, generation, len(keys))
	if err := binary.Write(w, binary.LittleEndian, header); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write graph header: %w", err)
	}
	if err := binary.Write(w, binary.LittleEndian, keys); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write graph keys: %w", err)
	}
	if err := v.graph.Export(w); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to export graph: %w", err)
	}
	if err := w.Flush(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to flush graph file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close graph file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// loadVectorIndex reads a graph saved by save. It returns errStaleGraph
// when the file was built for another generation, width, metric or
// record count.
func loadVectorIndex(path string, cfg Config, dims int, generation int64, records int) (*vectorIndex, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errStaleGraph
		}
		return nil, err
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var header graphHeader
	if err := binary.Read(r, binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to read graph header: %w", err)
	}
	if header != newGraphHeader(cfg.Metric, dims, generation, records) {
		return nil, errStaleGraph
	}

	keys := make([]uint64, header.Keys)
	if err := binary.Read(r, binary.LittleEndian, keys); err != nil {
		return nil, fmt.Errorf("failed to read graph keys: %w", err)
	}

	idx := newVectorIndex(cfg, dims)
	g := idx.newGraph()
	if err := g.Import(r); err != nil {
		return nil, fmt.Errorf("failed to import graph: %w", err)
	}
	g.M = cfg.M
	g.EfSearch = cfg.EfSearch
	if g.Len() != len(keys) {
		return nil, fmt.Errorf("graph has %d nodes for %d keys", g.Len(), len(keys))
	}

	for _, k := range keys {
		vec, ok := g.Lookup(k)
		if !ok {
			return nil, fmt.Errorf("graph is missing key %d", k)
		}
		if len(vec) != dims {
			return nil, errStaleGraph
		}
		idx.vecs[k] = vec
	}
	idx.graph = g
	return idx, nil
}
