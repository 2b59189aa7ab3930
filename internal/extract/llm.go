package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/memcore/memcore/internal/model"
)

const extractionPrompt = `You are a memory extraction system. Analyze the input text and extract atomic pieces of information.

For each piece of information, determine:
1. content: a concise, self-contained statement (include the subject if omitted)
2. memory_type: "fact" (stable information), "state" (temporary current conditions), "episode" (past events), or "policy" (preferences and rules)
3. tags: relevant classification tags
4. importance: 1-5 scale (5=critical, 1=trivial)
5. confidence: 0.0-1.0 how certain you are about this extraction

Rules:
- Extract only meaningful, reusable information
- Skip pure greetings, acknowledgments, or trivial chat
- Normalize dates to absolute format when possible
- Use "the user" as subject if omitted
- Combine related statements into one atomic fact

Output a JSON array of objects with keys content, memory_type, tags, importance, confidence. If nothing is extractable, output [].`

const synthesisPrompt = `Based on the user's query and their stored memories, synthesize a helpful context summary.
Provide a concise summary paragraph and key bullet points.
Output a JSON object with keys "summary" (string) and "bullets" (array of strings).`

// LLMExtractor calls an OpenAI-compatible chat completions API for
// extraction and context synthesis.
type LLMExtractor struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

// NewLLMExtractor creates an extractor against an OpenAI-compatible API.
func NewLLMExtractor(baseURL, apiKey, modelName string) *LLMExtractor {
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	if modelName == "" {
		modelName = "gpt-4o-mini"
	}
	return &LLMExtractor{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   modelName,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (e *LLMExtractor) complete(ctx context.Context, system, user string, temperature float64) (string, error) {
	body, _ := json.Marshal(chatRequest{
		Model: e.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Temperature: temperature,
	})
	req, err := http.NewRequestWithContext(ctx, "POST", e.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if e.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.apiKey)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("llm request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		b, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("llm error %d: %s", resp.StatusCode, string(b))
	}

	var result chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no completion returned")
	}
	return result.Choices[0].Message.Content, nil
}

// Extract analyzes text into memory candidates. Model output that is
// not valid JSON yields an empty candidate list, not an error.
func (e *LLMExtractor) Extract(ctx context.Context, text, source string) ([]Candidate, error) {
	user := "Input text:\n" + text
	if source != "" {
		user = "Source: " + source + "\n" + user
	}
	raw, err := e.complete(ctx, extractionPrompt, user, 0.2)
	if err != nil {
		return nil, err
	}
	return ParseCandidates(raw), nil
}

// Synthesize condenses ranked memories into a context summary.
func (e *LLMExtractor) Synthesize(ctx context.Context, query string, memories []model.Record) (*ContextSynthesis, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "User Query: %s\n\nRelevant Memories:\n", query)
	for _, m := range memories {
		fmt.Fprintf(&sb, "- [%s] %s\n", m.Type, m.Content)
	}

	raw, err := e.complete(ctx, synthesisPrompt, sb.String(), 0.3)
	if err != nil {
		return nil, err
	}

	var out ContextSynthesis
	if err := json.Unmarshal([]byte(stripFences(raw)), &out); err != nil {
		return &ContextSynthesis{Summary: "Unable to synthesize context."}, nil
	}
	return &out, nil
}

// ParseCandidates decodes a model response into validated candidates.
// Unknown types default to fact; importance and confidence are clamped;
// entries without content are dropped.
func ParseCandidates(raw string) []Candidate {
	var decoded []struct {
		Content    string   `json:"content"`
		Type       string   `json:"memory_type"`
		Tags       []string `json:"tags"`
		Importance *int     `json:"importance"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(stripFences(raw)), &decoded); err != nil {
		return nil
	}

	candidates := make([]Candidate, 0, len(decoded))
	for _, d := range decoded {
		if strings.TrimSpace(d.Content) == "" {
			continue
		}
		typ := model.RecordType(d.Type)
		if !typ.Valid() {
			typ = model.TypeFact
		}
		importance := 3
		if d.Importance != nil {
			importance = model.ClampImportance(*d.Importance)
		}
		confidence := 0.7
		if d.Confidence != nil {
			confidence = model.ClampConfidence(*d.Confidence)
		}
		candidates = append(candidates, Candidate{
			Content:    d.Content,
			Type:       typ,
			Tags:       d.Tags,
			Importance: importance,
			Confidence: confidence,
		})
	}
	return candidates
}

// stripFences removes a markdown code fence wrapper if the model added
// one despite being asked for bare JSON.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}

// NewFromEnv creates an extractor from environment variables.
// MEMCORE_LLM_URL: base URL override
// MEMCORE_LLM_MODEL: model name
// OPENAI_API_KEY: credential
//
// Returns nil when no credential is configured.
func NewFromEnv() *LLMExtractor {
	key := os.Getenv("OPENAI_API_KEY")
	url := os.Getenv("MEMCORE_LLM_URL")
	if key == "" && url == "" {
		return nil
	}
	return NewLLMExtractor(url, key, os.Getenv("MEMCORE_LLM_MODEL"))
}
