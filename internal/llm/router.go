package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/geraldosnetto/agro-sub002/internal/config"
)

// Router sends chat requests to the primary provider and falls back through
// the others in order. Each provider gets its own model for each tier.
type Router struct {
	mu         sync.RWMutex
	providers  map[string]Provider
	primary    string
	fallbacks  []string
	models     map[string]map[Tier]string // provider → tier → model
	defaults   ChatOptions
	maxRetries  int
	retryDelay  time.Duration
	callTimeout time.Duration
	logger      zerolog.Logger
}

// RouterOption configures the router.
type RouterOption func(*Router)

// WithFallbacks sets the fallback provider chain.
func WithFallbacks(providers ...string) RouterOption {
	return func(r *Router) { r.fallbacks = providers }
}

// WithTierModel sets the model a provider uses for a tier.
func WithTierModel(provider string, tier Tier, model string) RouterOption {
	return func(r *Router) { r.setModel(provider, tier, model) }
}

// WithDefaults sets the temperature and token limit applied when a request
// leaves them zero.
func WithDefaults(opts ChatOptions) RouterOption {
	return func(r *Router) { r.defaults = opts }
}

// WithMaxRetries sets the maximum number of retry attempts per provider.
func WithMaxRetries(n int) RouterOption {
	return func(r *Router) { r.maxRetries = n }
}

// WithRetryDelay sets the base delay between retries.
func WithRetryDelay(d time.Duration) RouterOption {
	return func(r *Router) { r.retryDelay = d }
}

// WithCallTimeout bounds each provider attempt. Zero leaves attempts bounded
// only by the caller's context.
func WithCallTimeout(d time.Duration) RouterOption {
	return func(r *Router) { r.callTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a new LLM router with the given primary provider.
func NewRouter(primary string, opts ...RouterOption) *Router {
	r := &Router{
		providers:  make(map[string]Provider),
		primary:    primary,
		models:     make(map[string]map[Tier]string),
		maxRetries: 2,
		retryDelay: time.Second,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *Router) setModel(provider string, tier Tier, model string) {
	if model == "" {
		return
	}
	if r.models[provider] == nil {
		r.models[provider] = make(map[Tier]string)
	}
	r.models[provider][tier] = model
}

// RegisterProvider adds a provider to the router.
func (r *Router) RegisterProvider(provider Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providers[provider.Name()] = provider
}

// GetProvider returns a registered provider by name.
func (r *Router) GetProvider(name string) (Provider, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	return p, ok
}

// Model returns the model a provider uses for a tier, or "" for the
// provider's own default.
func (r *Router) Model(provider string, tier Tier) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.models[provider][tier]
}

// Chat routes a request through the provider chain with fallback, using each
// provider's model for the tier. A permanent error stops the chain.
func (r *Router) Chat(ctx context.Context, tier Tier, messages []Message, opts *ChatOptions) (*Response, error) {
	chain := r.providerChain()
	if len(chain) == 0 {
		return nil, ErrNoProviders
	}

	var lastErr error
	tried := 0
	for _, name := range chain {
		provider, ok := r.GetProvider(name)
		if !ok {
			continue
		}
		tried++

		o := r.resolve(name, tier, opts)
		resp, err := r.chatWithRetry(ctx, provider, messages, &o)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		r.logger.Warn().Err(err).Str("provider", name).Str("tier", string(tier)).Msg("llm provider failed")

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if errors.Is(err, ErrContextLength) {
			return nil, err
		}
	}
	if tried == 0 {
		return nil, fmt.Errorf("%w: primary provider %q not registered", ErrNoProviders, r.primary)
	}
	return nil, fmt.Errorf("llm/router: all providers failed, last error: %w", lastErr)
}

// Name returns the name of the primary provider.
func (r *Router) Name() string {
	return "router/" + r.primary
}

// ProviderNames returns the names of all registered providers, sorted.
func (r *Router) ProviderNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close releases providers holding connections.
func (r *Router) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var errs []error
	for _, p := range r.providers {
		if c, ok := p.(io.Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

// ── Internal Helpers ──

func (r *Router) providerChain() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	chain := []string{r.primary}
	for _, fb := range r.fallbacks {
		if fb != r.primary {
			chain = append(chain, fb)
		}
	}
	return chain
}

func (r *Router) resolve(provider string, tier Tier, opts *ChatOptions) ChatOptions {
	o := r.defaults
	if opts != nil {
		if opts.Temperature > 0 {
			o.Temperature = opts.Temperature
		}
		if opts.MaxTokens > 0 {
			o.MaxTokens = opts.MaxTokens
		}
	}
	o.Model = r.Model(provider, tier)
	return o
}

func (r *Router) chatWithRetry(ctx context.Context, provider Provider, messages []Message, opts *ChatOptions) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if attempt > 0 {
			delay := r.retryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		resp, err := r.attempt(ctx, provider, messages, opts)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if IsPermanent(err) || ctx.Err() != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (r *Router) attempt(ctx context.Context, provider Provider, messages []Message, opts *ChatOptions) (*Response, error) {
	if r.callTimeout <= 0 {
		return provider.Chat(ctx, messages, opts)
	}
	ctx, cancel := context.WithTimeout(ctx, r.callTimeout)
	defer cancel()
	return provider.Chat(ctx, messages, opts)
}

// NewRouterFromConfig creates a Router from the application config,
// registering every provider that has an API key. The configured fast and
// quality models apply to the primary provider; fallbacks use their own
// tier defaults.
func NewRouterFromConfig(ctx context.Context, cfg config.LLMConfig, logger zerolog.Logger) (*Router, error) {
	router := NewRouter(cfg.Primary,
		WithMaxRetries(2),
		WithRetryDelay(time.Second),
		WithDefaults(ChatOptions{Temperature: cfg.Temperature, MaxTokens: cfg.MaxTokens}),
		WithCallTimeout(cfg.Timeout),
		WithLogger(logger),
	)

	var fallbacks []string
	register := func(p Provider) {
		router.RegisterProvider(p)
		for _, tier := range []Tier{TierFast, TierQuality} {
			router.setModel(p.Name(), tier, defaultTierModel(p.Name(), tier))
		}
		if p.Name() != cfg.Primary {
			fallbacks = append(fallbacks, p.Name())
		}
	}

	if cfg.OpenAIKey != "" {
		if p, err := NewOpenAIProvider(cfg.OpenAIKey); err == nil {
			register(p)
		}
	}
	if cfg.AnthropicKey != "" {
		if p, err := NewAnthropicProvider(cfg.AnthropicKey); err == nil {
			register(p)
		}
	}
	if cfg.GeminiKey != "" {
		p, err := NewGeminiProvider(ctx, cfg.GeminiKey)
		if err != nil {
			logger.Warn().Err(err).Msg("gemini provider disabled")
		} else {
			register(p)
		}
	}

	if len(router.providers) == 0 {
		return nil, ErrNoProviders
	}
	if _, ok := router.providers[cfg.Primary]; !ok {
		// Promote the first available fallback.
		router.primary = fallbacks[0]
		fallbacks = fallbacks[1:]
		logger.Warn().Str("configured", cfg.Primary).Str("using", router.primary).Msg("primary llm provider has no key")
	} else {
		if matchesProvider(cfg.Primary, cfg.FastModel) {
			router.setModel(cfg.Primary, TierFast, cfg.FastModel)
		}
		if matchesProvider(cfg.Primary, cfg.QualityModel) {
			router.setModel(cfg.Primary, TierQuality, cfg.QualityModel)
		}
	}
	router.fallbacks = fallbacks
	return router, nil
}

// defaultTierModel returns the model each provider uses for a tier when the
// configured models belong to another provider.
func defaultTierModel(provider string, tier Tier) string {
	switch provider {
	case ProviderOpenAI:
		if tier == TierFast {
			return "gpt-4o-mini"
		}
		return "gpt-4o"
	case ProviderAnthropic:
		if tier == TierFast {
			return "claude-3-5-haiku-latest"
		}
		return "claude-sonnet-4-20250514"
	case ProviderGemini:
		if tier == TierFast {
			return "gemini-2.0-flash-lite"
		}
		return "gemini-2.0-flash"
	}
	return ""
}

// matchesProvider reports whether a model name looks like it belongs to the
// provider, so that an OpenAI model name is never sent to Gemini.
func matchesProvider(provider, model string) bool {
	switch provider {
	case ProviderOpenAI:
		return strings.HasPrefix(model, "gpt") || strings.HasPrefix(model, "o1") ||
			strings.HasPrefix(model, "o3") || strings.HasPrefix(model, "o4")
	case ProviderAnthropic:
		return strings.HasPrefix(model, "claude")
	case ProviderGemini:
		return strings.HasPrefix(model, "gemini")
	}
	return false
}
