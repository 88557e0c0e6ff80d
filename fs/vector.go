package fs

import (
	"context"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/memoracle/memoracle"
)

// Ensure VectorStore implements memoracle.VectorStore at compile time.
var _ memoracle.VectorStore = (*VectorStore)(nil)

// VectorStore is a per-namespace flat vector index persisted as one JSON
// file per namespace under baseDir. Search is exact cosine similarity.
// It is safe for concurrent use.
type VectorStore struct {
	baseDir string

	mu         sync.RWMutex
	namespaces map[string]*namespace
}

// namespace holds one docset's vectors. dimensions is 0 until the first
// upsert locks it. fileHash is the xxhash of the last serialized state,
// used to skip rewriting an unchanged file.
type namespace struct {
	dimensions int
	records    []memoracle.VectorRecord
	index      map[string]int // id → position in records
	fileHash   uint64
}

// namespaceFile is the on-disk representation.
type namespaceFile struct {
	Dimensions int                      `json:"dimensions"`
	Vectors    []memoracle.VectorRecord `json:"vectors"`
}

// NewVectorStore creates a store rooted at baseDir.
func NewVectorStore(baseDir string) *VectorStore {
	return &VectorStore{
		baseDir:    baseDir,
		namespaces: make(map[string]*namespace),
	}
}

func (s *VectorStore) filePath(name string) string {
	return filepath.Join(s.baseDir, sanitizeName(name)+".json")
}

// Init loads the namespace file if present, else starts an empty
// namespace with dimensions unknown.
func (s *VectorStore) Init(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.namespaces[name]; ok {
		return nil
	}

	ns := &namespace{index: make(map[string]int)}
	data, err := os.ReadFile(s.filePath(name))
	if err == nil {
		var file namespaceFile
		if err := json.Unmarshal(data, &file); err != nil {
			return memoracle.Errorf(memoracle.EINTERNAL, "corrupt vector file for namespace %s: %v", name, err)
		}
		ns.dimensions = file.Dimensions
		ns.records = file.Vectors
		for i, rec := range file.Vectors {
			ns.index[rec.ID] = i
		}
		ns.fileHash = xxhash.Sum64(data)
	} else if !os.IsNotExist(err) {
		return err
	}

	s.namespaces[name] = ns
	return nil
}

func (s *VectorStore) namespace(name string) (*namespace, error) {
	ns, ok := s.namespaces[name]
	if !ok {
		return nil, memoracle.Errorf(memoracle.ENOTFOUND, "vector namespace %s not initialized", name)
	}
	return ns, nil
}

// Upsert inserts or replaces vectors by ID, then persists the namespace.
// The first inserted vector locks the namespace dimensionality.
func (s *VectorStore) Upsert(_ context.Context, name string, records []memoracle.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, err := s.namespace(name)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if ns.dimensions == 0 {
			ns.dimensions = len(rec.Vector)
		}
		if len(rec.Vector) != ns.dimensions {
			return &memoracle.DimensionError{Namespace: name, Want: ns.dimensions, Got: len(rec.Vector)}
		}
		if i, ok := ns.index[rec.ID]; ok {
			ns.records[i] = rec
		} else {
			ns.index[rec.ID] = len(ns.records)
			ns.records = append(ns.records, rec)
		}
	}

	return s.persist(name, ns)
}

// Search computes cosine similarity against every stored vector and
// returns the topK results scoring at least minScore, best first.
func (s *VectorStore) Search(_ context.Context, name string, query []float32, topK int, minScore float32) ([]memoracle.VectorMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns, err := s.namespace(name)
	if err != nil {
		return nil, err
	}
	if len(ns.records) == 0 {
		return nil, nil
	}
	if len(query) != ns.dimensions {
		return nil, &memoracle.DimensionError{Namespace: name, Want: ns.dimensions, Got: len(query)}
	}
	if topK <= 0 {
		return nil, nil
	}

	matches := make([]memoracle.VectorMatch, 0, len(ns.records))
	for _, rec := range ns.records {
		score := Cosine(query, rec.Vector)
		if score < minScore {
			continue
		}
		matches = append(matches, memoracle.VectorMatch{
			ID:       rec.ID,
			Score:    score,
			Metadata: rec.Metadata,
		})
	}

	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].Score > matches[j].Score
	})
	if len(matches) > topK {
		matches = matches[:topK]
	}
	return matches, nil
}

// Delete removes vectors by ID and persists.
func (s *VectorStore) Delete(_ context.Context, name string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ns, err := s.namespace(name)
	if err != nil {
		return err
	}

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}

	kept := ns.records[:0]
	for _, rec := range ns.records {
		if !drop[rec.ID] {
			kept = append(kept, rec)
		}
	}
	ns.records = kept
	ns.index = make(map[string]int, len(kept))
	for i, rec := range kept {
		ns.index[rec.ID] = i
	}

	return s.persist(name, ns)
}

// Clear removes all vectors in the namespace and persists.
func (s *VectorStore) Clear(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ns, err := s.namespace(name)
	if err != nil {
		return err
	}
	ns.records = nil
	ns.index = make(map[string]int)
	ns.dimensions = 0

	return s.persist(name, ns)
}

// persist serializes the namespace and writes it atomically, skipping
// the write when the serialized bytes are unchanged since the last
// persist or load.
func (s *VectorStore) persist(name string, ns *namespace) error {
	file := namespaceFile{
		Dimensions: ns.dimensions,
		Vectors:    ns.records,
	}
	data, err := json.Marshal(file)
	if err != nil {
		return err
	}

	sum := xxhash.Sum64(data)
	if sum == ns.fileHash {
		return nil
	}

	if err := os.MkdirAll(s.baseDir, 0o755); err != nil {
		return err
	}
	if err := writeFileAtomic(s.filePath(name), data); err != nil {
		return err
	}
	ns.fileHash = sum
	return nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either has
// zero norm.
func Cosine(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
