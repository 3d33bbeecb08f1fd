package evaluator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"slagie/internal/domain"
	"slagie/internal/logger"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"go.uber.org/zap"
)

// Caller is the slice of a langchaingo model the judge needs.
type Caller interface {
	Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error)
}

// llmJudge implements domain.AnswerJudge on top of an LLM.
type llmJudge struct {
	llm     Caller
	timeout time.Duration
}

// NewLLMJudge creates a judge around an already configured model.
func NewLLMJudge(llm Caller, timeout time.Duration) domain.AnswerJudge {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &llmJudge{llm: llm, timeout: timeout}
}

// NewOllamaJudge connects to an ollama server.
func NewOllamaJudge(server, model string, timeout time.Duration) (domain.AnswerJudge, error) {
	llm, err := ollama.New(ollama.WithServerURL(server), ollama.WithModel(model))
	if err != nil {
		return nil, fmt.Errorf("failed to create ollama client: %w", err)
	}
	return NewLLMJudge(llm, timeout), nil
}

const judgePrompt = `You grade answers of a Dutch driving-theory exam. Decide whether the student's answer means the same as the expected answer. Ignore spelling mistakes, word order and letter case. Respond with ONLY a JSON object in the following format:
{"correct": true, "reason": "short reason"}

Question: %s
Expected answer: %s
Student answer: %s`

// Judge implements domain.AnswerJudge
func (j *llmJudge) Judge(ctx context.Context, questionText, expected, given string) (bool, error) {
	l := logger.Get()
	prompt := fmt.Sprintf(judgePrompt, questionText, expected, given)

	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	raw, err := j.llm.Call(ctx, prompt, llms.WithTemperature(0))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			l.Warn("LLM judge timed out", zap.Duration("timeout", j.timeout))
		}
		return false, domain.NewEvaluatorError(err)
	}
	l.Debug("Raw LLM judge response", zap.String("raw_response", raw))

	verdict, err := parseVerdict(raw)
	if err != nil {
		l.Error("Failed to parse LLM judge response", zap.Error(err), zap.String("raw_response", raw))
		return false, domain.NewEvaluatorError(err)
	}
	l.Info("LLM judge verdict",
		zap.Bool("correct", verdict.Correct),
		zap.String("reason", verdict.Reason))
	return verdict.Correct, nil
}

type verdict struct {
	Correct bool   `json:"correct"`
	Reason  string `json:"reason"`
}

// parseVerdict extracts the JSON object from a model response, skipping any <think> block.
func parseVerdict(raw string) (verdict, error) {
	cleaned := strings.TrimSpace(raw)
	if start := strings.Index(cleaned, "<think>"); start != -1 {
		if end := strings.Index(cleaned, "</think>"); end > start {
			cleaned = strings.TrimSpace(cleaned[:start] + cleaned[end+len("</think>"):])
		}
	}
	open := strings.Index(cleaned, "{")
	closing := strings.LastIndex(cleaned, "}")
	if open == -1 || closing <= open {
		return verdict{}, fmt.Errorf("no JSON object found in LLM response: %q", cleaned)
	}
	var v verdict
	if err := json.Unmarshal([]byte(cleaned[open:closing+1]), &v); err != nil {
		return verdict{}, fmt.Errorf("failed to unmarshal LLM verdict: %w", err)
	}
	return v, nil
}
