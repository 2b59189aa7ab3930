// Package extract turns free-form text into structured memory
// candidates using an external language model.
package extract

import (
	"context"

	"github.com/memcore/memcore/internal/model"
)

// Candidate is one atomic piece of information extracted from raw text.
type Candidate struct {
	Content    string           `json:"content"`
	Type       model.RecordType `json:"memory_type"`
	Tags       []string         `json:"tags"`
	Importance int              `json:"importance"`
	Confidence float64          `json:"confidence"`
}

// Extractor analyzes raw text into memory candidates. An empty result
// with a nil error means nothing extractable, not a failure.
type Extractor interface {
	Extract(ctx context.Context, text, source string) ([]Candidate, error)
}

// ContextSynthesis is a summarized view of retrieved memories.
type ContextSynthesis struct {
	Summary string   `json:"summary"`
	Bullets []string `json:"bullets"`
}

// Synthesizer condenses ranked memories into a context summary for a
// downstream consumer.
type Synthesizer interface {
	Synthesize(ctx context.Context, query string, memories []model.Record) (*ContextSynthesis, error)
}
