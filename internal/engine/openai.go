package engine

import (
	"context"
	"errors"
	"strings"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"go.uber.org/zap"

	"feed-translator/internal/apperr"
	"feed-translator/internal/chunk"
	"feed-translator/internal/model"
)

const KindOpenAI = "openai"

// OpenAISettings 兼容 OpenAI chat completions 的服务（OpenRouter、Groq、Moonshot 等通过 base_url 接入）
type OpenAISettings struct {
	APIKey           string  `json:"api_key"`
	BaseURL          string  `json:"base_url,omitempty"`
	Model            string  `json:"model,omitempty"`
	MaxTokens        int     `json:"max_tokens,omitempty"`
	Temperature      float64 `json:"temperature,omitempty"`
	TopP             float64 `json:"top_p,omitempty"`
	FrequencyPenalty float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  float64 `json:"presence_penalty,omitempty"`
	Interval         float64 `json:"interval,omitempty"`
	Prompts
}

type OpenAIEngine struct {
	base
	settings OpenAISettings
	client   openai.Client
	throttle *Throttle
	logger   *zap.Logger
}

func NewOpenAI(cfg *model.EngineConfig, opts Options) (Engine, error) {
	var s OpenAISettings
	if err := cfg.Decode(&s); err != nil {
		return nil, apperr.Configuration("openai settings: %v", err)
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, apperr.Configuration("openai engine %q: api_key is empty", cfg.Name)
	}
	if s.Model == "" {
		s.Model = "gpt-4o-mini"
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = 2000
	}
	if s.Temperature == 0 {
		s.Temperature = 0.2
	}
	if s.TopP == 0 {
		s.TopP = 0.2
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(strings.TrimSpace(s.APIKey)),
		option.WithMaxRetries(0),
		option.WithHTTPClient(opts.httpClient()),
	}
	if baseURL := strings.TrimRight(strings.TrimSpace(s.BaseURL), "/"); baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(baseURL+"/"))
	}

	return &OpenAIEngine{
		base:     base{Limits: Limits{Max: s.MaxTokens, Unit: chunk.Tokens}, name: cfg.Name, kind: KindOpenAI},
		settings: s,
		client:   openai.NewClient(reqOpts...),
		throttle: NewThrottle(seconds(s.Interval)),
		logger:   opts.logger().With(zap.String("engine", cfg.Name)),
	}, nil
}

func (e *OpenAIEngine) Translate(ctx context.Context, req Request) (Result, error) {
	if err := e.throttle.Wait(ctx); err != nil {
		return Result{}, err
	}
	return e.complete(ctx, e.settings.System(req), req.Text, int64(e.settings.MaxTokens))
}

func (e *OpenAIEngine) Summarize(ctx context.Context, text string, lang model.Language) (Result, error) {
	return e.Translate(ctx, summaryRequest(e.settings.Prompts, text, lang))
}

func (e *OpenAIEngine) Validate(ctx context.Context) bool {
	res, err := e.complete(ctx, "", "Hi", 10)
	if err != nil {
		e.logger.Warn("validate failed", zap.Error(err))
		return false
	}
	return res.Tokens > 0 || res.Text != ""
}

func (e *OpenAIEngine) complete(ctx context.Context, system, text string, maxTokens int64) (Result, error) {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(text))

	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(e.settings.Model),
		Messages:    messages,
		MaxTokens:   openai.Int(maxTokens),
		Temperature: openai.Float(e.settings.Temperature),
		TopP:        openai.Float(e.settings.TopP),
	}
	if e.settings.FrequencyPenalty != 0 {
		params.FrequencyPenalty = openai.Float(e.settings.FrequencyPenalty)
	}
	if e.settings.PresencePenalty != 0 {
		params.PresencePenalty = openai.Float(e.settings.PresencePenalty)
	}

	resp, err := e.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return Result{}, apperr.Provider(KindOpenAI, apiErr.StatusCode, err)
		}
		return Result{}, apperr.Provider(KindOpenAI, 0, err)
	}

	res := Result{Tokens: int(resp.Usage.TotalTokens)}
	if len(resp.Choices) > 0 {
		res.Text = strings.TrimSpace(resp.Choices[0].Message.Content)
	}
	return res, nil
}
