package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"go.uber.org/zap"

	"feed-translator/internal/apperr"
	"feed-translator/internal/chunk"
	"feed-translator/internal/model"
)

const KindAnthropic = "anthropic"

type AnthropicSettings struct {
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url,omitempty"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	Interval    float64 `json:"interval,omitempty"`
	Prompts
}

type AnthropicEngine struct {
	base
	settings AnthropicSettings
	client   anthropic.Client
	throttle *Throttle
	logger   *zap.Logger
}

func NewAnthropic(cfg *model.EngineConfig, opts Options) (Engine, error) {
	var s AnthropicSettings
	if err := cfg.Decode(&s); err != nil {
		return nil, apperr.Configuration("anthropic settings: %v", err)
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, apperr.Configuration("anthropic engine %q: api_key is empty", cfg.Name)
	}
	if s.Model == "" {
		s.Model = "claude-haiku-4-5-20251001"
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = 1000
	}
	if s.Temperature == 0 {
		s.Temperature = 0.2
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(s.APIKey)),
		option.WithMaxRetries(0),
		option.WithHTTPClient(opts.httpClient()),
	}
	if baseURL := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/"); baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL))
	}

	return &AnthropicEngine{
		base:     base{Limits: Limits{Max: s.MaxTokens, Unit: chunk.Tokens}, name: cfg.Name, kind: KindAnthropic},
		settings: s,
		client:   anthropic.NewClient(reqOpts...),
		throttle: NewThrottle(seconds(s.Interval)),
		logger:   opts.logger().With(zap.String("engine", cfg.Name)),
	}, nil
}

func (e *AnthropicEngine) Translate(ctx context.Context, req Request) (Result, error) {
	if err := e.throttle.Wait(ctx); err != nil {
		return Result{}, err
	}
	return e.message(ctx, e.settings.System(req), req.Text, int64(e.settings.MaxTokens))
}

func (e *AnthropicEngine) Summarize(ctx context.Context, text string, lang model.Language) (Result, error) {
	return e.Translate(ctx, summaryRequest(e.settings.Prompts, text, lang))
}

func (e *AnthropicEngine) Validate(ctx context.Context) bool {
	res, err := e.message(ctx, "", "Hi", 10)
	if err != nil {
		e.logger.Warn("validate failed", zap.Error(err))
		return false
	}
	return res.Tokens > 0 || res.Text != ""
}

func (e *AnthropicEngine) message(ctx context.Context, system, text string, maxTokens int64) (Result, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(e.settings.Model),
		MaxTokens:   maxTokens,
		Messages:    []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(text))},
		Temperature: anthropic.Float(e.settings.Temperature),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	if e.settings.TopP != 0 {
		params.TopP = anthropic.Float(e.settings.TopP)
	}

	msg, err := e.client.Messages.New(ctx, params)
	if err != nil {
		var apiErr *anthropic.Error
		if errors.As(err, &apiErr) {
			return Result{}, apperr.Provider(KindAnthropic, apiErr.StatusCode, err)
		}
		return Result{}, apperr.Provider(KindAnthropic, 0, err)
	}

	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return Result{
		Text:   strings.TrimSpace(b.String()),
		Tokens: int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
	}, nil
}
