package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	chromem "github.com/philippgille/chromem-go"
)

// Params describe one completion request.
type Params struct {
	Model       string
	System      string
	User        string
	Temperature float64
	MaxTokens   int64
}

// Completion is one successful provider reply.
type Completion struct {
	Text             string
	PromptTokens     int64
	CompletionTokens int64
}

// Provider is the completion upstream. The OpenAI implementation is the
// only production one; tests substitute fakes.
type Provider interface {
	Complete(ctx context.Context, p Params) (Completion, error)
}

// OpenAIProvider calls the chat completions API and maps its failures
// onto the package taxonomy.
type OpenAIProvider struct {
	client  openai.Client
	timeout time.Duration
}

func NewOpenAIProvider(apiKey string, baseURL string, timeout time.Duration) *OpenAIProvider {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if strings.TrimSpace(baseURL) != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAIProvider{
		client:  openai.NewClient(opts...),
		timeout: timeout,
	}
}

func (p *OpenAIProvider) Complete(ctx context.Context, params Params) (Completion, error) {
	if strings.TrimSpace(params.System) == "" || strings.TrimSpace(params.User) == "" {
		return Completion{}, fmt.Errorf("%w: system and user messages are required", ErrInvalidRequest)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	resp, err := p.client.Chat.Completions.New(callCtx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(params.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(params.System),
			openai.UserMessage(params.User),
		},
		Temperature: openai.Float(params.Temperature),
		MaxTokens:   openai.Int(params.MaxTokens),
		TopP:        openai.Float(0.9),
	})
	if err != nil {
		return Completion{}, mapProviderError(err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return Completion{}, ErrEmptyResponse
	}
	return Completion{
		Text:             strings.TrimSpace(resp.Choices[0].Message.Content),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}, nil
}

// EmbeddingFunc adapts the embeddings endpoint to the signature the
// semantic cache expects.
func (p *OpenAIProvider) EmbeddingFunc(modelName string) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		callCtx, cancel := context.WithTimeout(ctx, p.timeout)
		defer cancel()

		resp, err := p.client.Embeddings.New(callCtx, openai.EmbeddingNewParams{
			Model: openai.EmbeddingModel(modelName),
			Input: openai.EmbeddingNewParamsInputUnion{
				OfString: openai.String(text),
			},
		})
		if err != nil {
			return nil, mapProviderError(err)
		}
		if len(resp.Data) == 0 {
			return nil, ErrEmptyResponse
		}
		vec := make([]float32, len(resp.Data[0].Embedding))
		for i, v := range resp.Data[0].Embedding {
			vec[i] = float32(v)
		}
		return vec, nil
	}
}

func mapProviderError(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: request timed out", ErrServiceUnavailable)
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429:
			return fmt.Errorf("%w: %v", ErrRateLimited, err)
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return fmt.Errorf("%w: %v", ErrUnauthorized, err)
		case apiErr.StatusCode == 400 || apiErr.StatusCode == 404 || apiErr.StatusCode == 422:
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		case apiErr.StatusCode >= 500:
			return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
		}
	}
	// network-level failures come through as transport errors
	return fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
}
