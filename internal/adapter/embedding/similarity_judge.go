// Package embedding grades free-text answers by comparing their embeddings.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"

	"slagie/internal/domain"
	"slagie/internal/logger"

	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"
)

// DefaultThreshold is the cosine similarity from which two answers count as equal.
const DefaultThreshold = 0.85

// SimilarityJudge implements domain.AnswerJudge by embedding the expected and
// the given answer and comparing the vectors.
type SimilarityJudge struct {
	embedder  embeddings.Embedder
	threshold float64
}

// NewSimilarityJudge wraps an embedder. A threshold outside (0, 1] falls back
// to DefaultThreshold.
func NewSimilarityJudge(embedder embeddings.Embedder, threshold float64) *SimilarityJudge {
	if threshold <= 0 || threshold > 1 {
		threshold = DefaultThreshold
	}
	return &SimilarityJudge{embedder: embedder, threshold: threshold}
}

// NewOllamaSimilarityJudge connects to an ollama server for embeddings.
func NewOllamaSimilarityJudge(serverURL, model string, threshold float64) (*SimilarityJudge, error) {
	if serverURL == "" {
		return nil, errors.New("ollama server URL cannot be empty")
	}
	if model == "" {
		return nil, errors.New("ollama model name cannot be empty")
	}
	llm, err := ollama.New(ollama.WithModel(model), ollama.WithServerURL(serverURL))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client for embeddings: %w", err)
	}
	embedder, err := embeddings.NewEmbedder(llm)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return NewSimilarityJudge(embedder, threshold), nil
}

// Judge implements domain.AnswerJudge. The question text is not embedded.
func (j *SimilarityJudge) Judge(ctx context.Context, questionText, expected, given string) (bool, error) {
	vectors, err := j.embedder.EmbedDocuments(ctx, []string{expected, given})
	if err != nil {
		return false, domain.NewEvaluatorError(err)
	}
	if len(vectors) != 2 {
		return false, domain.NewEvaluatorError(fmt.Errorf("expected 2 embeddings, got %d", len(vectors)))
	}
	similarity, err := CosineSimilarity(vectors[0], vectors[1])
	if err != nil {
		return false, domain.NewEvaluatorError(err)
	}
	logger.Get().Debug("Embedding similarity",
		zap.Float64("similarity", similarity),
		zap.Float64("threshold", j.threshold))
	return similarity >= j.threshold, nil
}

// CosineSimilarity returns the cosine of the angle between a and b. Zero-length
// vectors have similarity 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, errors.New("input vectors cannot be empty")
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector dimensions do not match: %d vs %d", len(a), len(b))
	}

	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB)), nil
}
