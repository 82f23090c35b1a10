package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
)

// supportedModels maps model names to their fixed output dimension.
// The dimension is needed to decode stored vectors, so construction with an
// unknown model fails fast rather than guessing.
var supportedModels = map[string]int{
	"all-MiniLM-L6-v2":   384,
	"all-mpnet-base-v2":  768,
	"bge-small-en-v1.5":  384,
	"bge-base-en-v1.5":   768,
}

// DefaultModel is the embedding model used when none is configured.
const DefaultModel = "all-MiniLM-L6-v2"

// Model generates embeddings through an OpenAI-style /v1/embeddings endpoint
// and knows the fixed dimension of its vectors.
type Model struct {
	BaseURL string
	APIKey  string
	Name    string

	dimension int
	client    *http.Client
}

// NewModel creates an embedding model client for the named model.
// The name must be in the supported registry; the dimension is fixed for the
// process lifetime.
func NewModel(baseURL, apiKey, name string) (*Model, error) {
	dim, ok := supportedModels[name]
	if !ok {
		names := make([]string, 0, len(supportedModels))
		for n := range supportedModels {
			names = append(names, n)
		}
		sort.Strings(names)
		return nil, fmt.Errorf("unsupported embedding model %q (supported: %v)", name, names)
	}
	return &Model{
		BaseURL:   baseURL,
		APIKey:    apiKey,
		Name:      name,
		dimension: dim,
		client:    http.DefaultClient,
	}, nil
}

// Dimension returns the fixed vector width of this model.
func (m *Model) Dimension() int {
	return m.dimension
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingData struct {
	Embedding []float64 `json:"embedding"`
}

type embeddingsResponse struct {
	Data []embeddingData `json:"data"`
}

// EmbedDocuments generates embeddings for a batch of texts.
// Returned vectors are validated against the model dimension.
func (m *Model) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	payload := embeddingsRequest{Model: m.Name, Input: texts}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.BaseURL+"/v1/embeddings", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bad status %d: %s", resp.StatusCode, string(raw))
	}

	var parsed embeddingsResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(parsed.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(parsed.Data))
	}

	result := make([][]float32, len(parsed.Data))
	for i, data := range parsed.Data {
		if len(data.Embedding) != m.dimension {
			return nil, fmt.Errorf("embedding %d has size %d, expected %d: %w", i, len(data.Embedding), m.dimension, ErrDimensionMismatch)
		}
		vec := make([]float32, len(data.Embedding))
		for j, v := range data.Embedding {
			vec[j] = float32(v)
		}
		result[i] = vec
	}

	return result, nil
}

// EmbedQuery generates an embedding for a single query text.
func (m *Model) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := m.EmbedDocuments(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 {
		return nil, fmt.Errorf("no embedding returned for query")
	}
	return vectors[0], nil
}

// SupportedModels returns the names in the registry, sorted.
func SupportedModels() []string {
	names := make([]string, 0, len(supportedModels))
	for n := range supportedModels {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// DimensionOf returns the registry dimension for a model name.
func DimensionOf(name string) (int, bool) {
	dim, ok := supportedModels[name]
	return dim, ok
}
