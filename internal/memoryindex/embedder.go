package memoryindex

import (
	"context"
	"fmt"
	"math"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// EmbeddingBatchSize is the number of chunk texts sent per embeddings
// call.
const EmbeddingBatchSize = 100

// DefaultEmbeddingModel is used when configuration leaves the model
// unset.
const DefaultEmbeddingModel = "text-embedding-3-small"

// Embedder turns chunk texts into dense vectors. NoopEmbedder is used
// when no embeddings provider is configured, which degrades Search to
// its lexical branch only.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// NoopEmbedder never produces vectors.
type NoopEmbedder struct{}

// Embed implements Embedder by returning no vectors at all.
func (NoopEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, nil
}

// OpenAIEmbedder is the production Embedder, backed by the OpenAI
// embeddings endpoint.
type OpenAIEmbedder struct {
	client openai.Client
	model  string
}

// NewOpenAIEmbedder returns an OpenAIEmbedder authenticated with
// apiKey. An empty model falls back to DefaultEmbeddingModel.
func NewOpenAIEmbedder(apiKey, model string) *OpenAIEmbedder {
	if model == "" {
		model = DefaultEmbeddingModel
	}
	return &OpenAIEmbedder{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Embed batches texts into groups of EmbeddingBatchSize and calls the
// embeddings endpoint once per batch, preserving input order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += EmbeddingBatchSize {
		end := start + EmbeddingBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		resp, err := e.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
			Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: batch},
			Model: openai.EmbeddingModel(e.model),
		})
		if err != nil {
			return nil, fmt.Errorf("memoryindex: embed batch: %w", err)
		}
		for _, d := range resp.Data {
			vec := make([]float32, len(d.Embedding))
			for i, f := range d.Embedding {
				vec[i] = float32(f)
			}
			out = append(out, vec)
		}
	}
	return out, nil
}

// cosineSimilarity returns the cosine similarity of a and b, or 0 if
// either is the zero vector or they differ in length.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}

// encodeEmbedding packs a float32 vector into a little-endian byte
// blob for sqlite storage.
func encodeEmbedding(vec []float32) []byte {
	out := make([]byte, len(vec)*4)
	for i, f := range vec {
		bits := math.Float32bits(f)
		out[i*4+0] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}

// decodeEmbedding is the inverse of encodeEmbedding.
func decodeEmbedding(blob []byte) []float32 {
	n := len(blob) / 4
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		bits := uint32(blob[i*4]) | uint32(blob[i*4+1])<<8 | uint32(blob[i*4+2])<<16 | uint32(blob[i*4+3])<<24
		out[i] = math.Float32frombits(bits)
	}
	return out
}
