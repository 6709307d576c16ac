// Package embedding provides deterministic text embeddings for similarity
// ranking. Vectors are hashed bag-of-tokens: cheap, reproducible, and good
// enough to order catalog candidates against a preference query without an
// external model.
package embedding

import (
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"sync"
)

// Dimension is the fixed vector size. Every token hashes into one of these
// buckets.
const Dimension = 16

// Vector is an L2-normalized embedding.
type Vector [Dimension]float64

// IsZero reports whether the vector has no signal (empty source text).
func (v Vector) IsZero() bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Embed tokenizes text, hashes each token into a bucket, accumulates counts
// and L2-normalizes. Returns the zero vector when the text yields no tokens.
func Embed(text string) Vector {
	var v Vector

	for _, token := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(token))
		v[h.Sum32()%Dimension]++
	}

	norm := 0.0
	for _, x := range v {
		norm += x * x
	}
	if norm == 0 {
		return v
	}

	norm = math.Sqrt(norm)
	for i := range v {
		v[i] /= norm
	}
	return v
}

// Cosine returns the cosine similarity of two vectors, 0 when either has
// zero norm.
func Cosine(a, b Vector) float64 {
	dot := 0.0
	normA := 0.0
	normB := 0.0
	for i := 0; i < Dimension; i++ {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
}

// Store caches one vector per item id. Entries are created lazily on first
// request and never invalidated within the process lifetime; redundant writes
// for the same id produce identical vectors, so racing writers are harmless.
type Store struct {
	mu    sync.RWMutex
	cache map[string]Vector
}

// NewStore creates an empty embedding cache.
func NewStore() *Store {
	return &Store{
		cache: make(map[string]Vector),
	}
}

// ForItem returns the cached vector for an item, embedding text on first use.
func (s *Store) ForItem(id, text string) Vector {
	s.mu.RLock()
	v, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return v
	}

	v = Embed(text)

	s.mu.Lock()
	s.cache[id] = v
	s.mu.Unlock()

	return v
}

// Len returns the number of cached vectors.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.cache)
}

// Item pairs an id with its embeddable text.
type Item struct {
	ID   string
	Text string
}

// Ranked is one similarity result.
type Ranked struct {
	TrackID string  `json:"track_id"`
	Score   float64 `json:"score"`
}

// Rank orders items by descending cosine similarity to the query. The sort is
// stable: ties keep input order.
func (s *Store) Rank(query string, items []Item) []Ranked {
	q := Embed(query)

	ranked := make([]Ranked, len(items))
	for i, item := range items {
		ranked[i] = Ranked{
			TrackID: item.ID,
			Score:   Cosine(q, s.ForItem(item.ID, item.Text)),
		}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})

	return ranked
}
