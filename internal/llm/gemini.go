package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

// GeminiProvider implements Provider on the Gemini generative API.
type GeminiProvider struct {
	client *genai.Client
	model  string
}

// GeminiOption configures the Gemini provider.
type GeminiOption func(*geminiConfig)

type geminiConfig struct {
	model    string
	endpoint string
}

// WithGeminiModel sets the default model.
func WithGeminiModel(model string) GeminiOption {
	return func(c *geminiConfig) { c.model = model }
}

// WithGeminiEndpoint overrides the API endpoint.
func WithGeminiEndpoint(endpoint string) GeminiOption {
	return func(c *geminiConfig) { c.endpoint = endpoint }
}

// NewGeminiProvider creates a Gemini provider. The client holds a connection
// and must be closed.
func NewGeminiProvider(ctx context.Context, apiKey string, opts ...GeminiOption) (*GeminiProvider, error) {
	if apiKey == "" {
		return nil, ErrNoAPIKey
	}
	cfg := geminiConfig{model: "gemini-2.0-flash"}
	for _, opt := range opts {
		opt(&cfg)
	}
	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if cfg.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(cfg.endpoint))
	}
	client, err := genai.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("gemini: client init failed: %w", err)
	}
	return &GeminiProvider{client: client, model: cfg.model}, nil
}

func (p *GeminiProvider) Name() string { return ProviderGemini }

// Close releases the underlying client.
func (p *GeminiProvider) Close() error { return p.client.Close() }

// Chat sends the conversation as chat history plus a final prompt.
func (p *GeminiProvider) Chat(ctx context.Context, messages []Message, opts *ChatOptions) (*Response, error) {
	start := time.Now()
	system, turns := splitSystem(messages)
	if len(turns) == 0 {
		return nil, fmt.Errorf("gemini: no user message")
	}

	name := p.model
	if opts != nil && opts.Model != "" {
		name = opts.Model
	}
	model := p.client.GenerativeModel(name)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}
	if opts != nil {
		if opts.Temperature > 0 {
			model.SetTemperature(float32(opts.Temperature))
		}
		if opts.MaxTokens > 0 {
			model.SetMaxOutputTokens(int32(opts.MaxTokens))
		}
	}

	session := model.StartChat()
	for _, m := range turns[:len(turns)-1] {
		role := "user"
		if m.Role == RoleAssistant {
			role = "model"
		}
		session.History = append(session.History, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	resp, err := session.SendMessage(ctx, genai.Text(turns[len(turns)-1].Content))
	if err != nil {
		return nil, p.wrapError(err)
	}

	var sb strings.Builder
	finish := ""
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		finish = resp.Candidates[0].FinishReason.String()
		for _, part := range resp.Candidates[0].Content.Parts {
			if text, ok := part.(genai.Text); ok {
				sb.WriteString(string(text))
			}
		}
	}
	if sb.Len() == 0 {
		return nil, fmt.Errorf("gemini: %w", ErrEmptyResponse)
	}
	var usage Usage
	if md := resp.UsageMetadata; md != nil {
		usage = Usage{
			PromptTokens:     int(md.PromptTokenCount),
			CompletionTokens: int(md.CandidatesTokenCount),
			TotalTokens:      int(md.TotalTokenCount),
		}
	}
	return &Response{
		Content:      sb.String(),
		FinishReason: finish,
		Usage:        usage,
		Model:        name,
		Provider:     ProviderGemini,
		Latency:      time.Since(start),
	}, nil
}

func (p *GeminiProvider) wrapError(err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return classifyStatus(ProviderGemini, apiErr.Code, err)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "API key not valid"), strings.Contains(msg, "PERMISSION_DENIED"):
		return fmt.Errorf("gemini: %w: %w", ErrNoAPIKey, err)
	case strings.Contains(msg, "RESOURCE_EXHAUSTED"):
		return fmt.Errorf("gemini: %w: %w", ErrRateLimit, err)
	case strings.Contains(msg, "NOT_FOUND"):
		return fmt.Errorf("gemini: %w: %w", ErrInvalidModel, err)
	}
	return fmt.Errorf("gemini: %w: %w", ErrProviderDown, err)
}
