// Package mock provides a deterministic in-process embedder for tests.
package mock

import (
	"context"
	"crypto/sha256"
	"errors"
	"math"
	"strings"
	"sync"

	"github.com/memcore/memcore/internal/embedding"
)

// ErrEmbed is returned for texts registered via FailOn.
var ErrEmbed = errors.New("mock embed failure")

// Embedder derives vectors from text content so that identical texts
// embed identically and texts sharing a registered group embed nearly
// identically. No network, no model.
type Embedder struct {
	mu      sync.Mutex
	dims    int
	groups  map[string]string // substring -> group key
	failing map[string]bool
	calls   int
}

// New creates a mock embedder producing vectors of the given dimension.
func New(dims int) *Embedder {
	if dims <= 0 {
		dims = 16
	}
	return &Embedder{
		dims:    dims,
		groups:  map[string]string{},
		failing: map[string]bool{},
	}
}

// Alias makes every text containing substr embed close to the group
// vector for key, so two aliased texts exceed any realistic similarity
// threshold against each other.
func (e *Embedder) Alias(substr, key string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.groups[substr] = key
}

// FailOn makes Embed return ErrEmbed for any text containing substr.
func (e *Embedder) FailOn(substr string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failing[substr] = true
}

// Calls reports how many Embed calls were made.
func (e *Embedder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func (e *Embedder) Embed(_ context.Context, text string) (embedding.Vector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++

	for substr := range e.failing {
		if strings.Contains(text, substr) {
			return nil, ErrEmbed
		}
	}

	seed := text
	perturb := false
	for substr, key := range e.groups {
		if strings.Contains(text, substr) {
			seed = key
			// Nudge aliased texts off the bare key's vector so they
			// stay near cosine 1.0 without being byte-identical to it.
			perturb = seed != text
			break
		}
	}

	vec := vectorFor(seed, e.dims)
	if perturb {
		vec[0] += 0.001
	}
	return vec, nil
}

func (e *Embedder) Dims() int { return e.dims }

func vectorFor(seed string, dims int) embedding.Vector {
	sum := sha256.Sum256([]byte(seed))
	vec := make(embedding.Vector, dims)
	var norm float64
	for i := 0; i < dims; i++ {
		// Signed components keep unrelated texts far apart in cosine
		// space; all-positive vectors would cluster near each other.
		v := (float32(sum[i%len(sum)]) - 127.5) / 127.5
		vec[i] = v
		norm += float64(v) * float64(v)
	}
	n := float32(math.Sqrt(norm))
	for i := range vec {
		vec[i] /= n
	}
	return vec
}
