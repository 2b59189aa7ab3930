// Package rank turns a candidate record set into relevance-scored
// results for retrieval.
package rank

import (
	"sort"
	"time"

	"github.com/memcore/memcore/internal/embedding"
	"github.com/memcore/memcore/internal/model"
)

// decayRate controls the staleness penalty for state and episode
// records: 1/(1+rate*hours) is ~0.5 at 1000 hours (about 41 days).
const decayRate = 0.001

// neutralSimilarity is assigned when no query was given, so importance,
// confidence, and decay still differentiate results.
const neutralSimilarity = 0.5

// Scored is a record annotated with retrieval scores. Score, not raw
// Similarity, is what downstream consumers should treat as relevance.
type Scored struct {
	model.Record
	Similarity float64 `json:"similarity"`
	Score      float64 `json:"score"`
}

// Score computes a relevance score for each record:
//
//	score = similarity * (importance/3) * confidence * decay
//
// With a query vector, similarity is cosine similarity against each
// record's embedding and results are re-sorted by score descending.
// Without one, every record gets the neutral baseline and the incoming
// order (most recent first) is preserved.
func Score(records []model.Record, query embedding.Vector, now time.Time) []Scored {
	scored := make([]Scored, 0, len(records))
	for _, rec := range records {
		sim := neutralSimilarity
		if query != nil {
			sim = embedding.CosineSimilarity(query, rec.Embedding)
		}
		scored = append(scored, Scored{
			Record:     rec,
			Similarity: sim,
			Score:      sim * weight(&rec, now),
		})
	}

	if query != nil {
		sort.SliceStable(scored, func(i, j int) bool {
			return scored[i].Score > scored[j].Score
		})
	}
	return scored
}

func weight(rec *model.Record, now time.Time) float64 {
	importance := float64(rec.Importance) / 3.0

	decay := 1.0
	if rec.Type.Decays() {
		hours := now.Sub(rec.CreatedAt).Hours()
		if hours < 0 {
			hours = 0
		}
		decay = 1.0 / (1.0 + decayRate*hours)
	}

	return importance * rec.Confidence * decay
}
