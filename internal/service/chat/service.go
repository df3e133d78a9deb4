// Package chat answers questions about aggregated logs through an external
// generative-language collaborator.
package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"log/slog"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// ErrQuestionRequired is returned when the question is blank.
var ErrQuestionRequired = errors.New("question is required")

const promptTemplate = "You are an assistant analysing observability logs.\n" +
	"Answer strictly from the provided context. If you cannot, say \"I don't see that in the logs.\"\n\n" +
	"### Context\n%s\n\n### Question\n%s"

// Generator produces one answer for one prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Service templates questions against truncated log context and delegates to
// the generator.
type Service struct {
	gen     Generator
	builder Builder
	logger  *slog.Logger
}

// New constructs a chat service.
func New(gen Generator, builder Builder, logger *slog.Logger) Service {
	return Service{gen: gen, builder: builder, logger: logger}
}

// Ask answers a question from the given log context. The context is clipped
// to the builder's budget before templating; no other summarization occurs.
func (s Service) Ask(ctx context.Context, question, logContext string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", ErrQuestionRequired
	}
	prompt := fmt.Sprintf(promptTemplate, s.builder.Truncate(logContext), question)
	answer, err := s.gen.Generate(ctx, prompt)
	if err != nil {
		s.logger.Error("generative model request failed", "error", err)
		return "", err
	}
	return answer, nil
}

// GeminiClient is the production Generator backed by the Gemini API.
type GeminiClient struct {
	client *genai.Client
	model  string
}

// NewGeminiClient constructs the client; the API key must be set.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("GEMINI_API_KEY not set")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("init gemini client: %w", err)
	}
	return &GeminiClient{client: client, model: model}, nil
}

// Generate implements Generator.
func (g *GeminiClient) Generate(ctx context.Context, prompt string) (string, error) {
	resp, err := g.client.GenerativeModel(g.model).GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
		break
	}
	if sb.Len() == 0 {
		return "No answer", nil
	}
	return sb.String(), nil
}

// Close releases the underlying connection.
func (g *GeminiClient) Close() error {
	return g.client.Close()
}
