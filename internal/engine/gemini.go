package engine

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"feed-translator/internal/apperr"
	"feed-translator/internal/chunk"
	"feed-translator/internal/model"
)

const KindGemini = "gemini"

type GeminiSettings struct {
	APIKey      string  `json:"api_key"`
	BaseURL     string  `json:"base_url,omitempty"`
	Model       string  `json:"model,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	TopP        float64 `json:"top_p,omitempty"`
	Interval    float64 `json:"interval,omitempty"`
	Prompts
}

type GeminiEngine struct {
	base
	settings GeminiSettings
	client   *genai.Client
	throttle *Throttle
	logger   *zap.Logger
}

func NewGemini(cfg *model.EngineConfig, opts Options) (Engine, error) {
	var s GeminiSettings
	if err := cfg.Decode(&s); err != nil {
		return nil, apperr.Configuration("gemini settings: %v", err)
	}
	if strings.TrimSpace(s.APIKey) == "" {
		return nil, apperr.Configuration("gemini engine %q: api_key is empty", cfg.Name)
	}
	if s.Model == "" {
		s.Model = "gemini-2.0-flash"
	}
	if s.MaxTokens <= 0 {
		s.MaxTokens = 1000
	}
	if s.Temperature == 0 {
		s.Temperature = 0.2
	}

	cc := &genai.ClientConfig{
		APIKey:     strings.TrimSpace(s.APIKey),
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: opts.httpClient(),
	}
	if baseURL := strings.TrimSpace(s.BaseURL); baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(context.Background(), cc)
	if err != nil {
		return nil, apperr.Configuration("gemini client: %v", err)
	}

	return &GeminiEngine{
		base:     base{Limits: Limits{Max: s.MaxTokens, Unit: chunk.Tokens}, name: cfg.Name, kind: KindGemini},
		settings: s,
		client:   client,
		throttle: NewThrottle(seconds(s.Interval)),
		logger:   opts.logger().With(zap.String("engine", cfg.Name)),
	}, nil
}

func (e *GeminiEngine) Translate(ctx context.Context, req Request) (Result, error) {
	if err := e.throttle.Wait(ctx); err != nil {
		return Result{}, err
	}
	return e.generate(ctx, e.settings.System(req), req.Text, int32(e.settings.MaxTokens))
}

func (e *GeminiEngine) Summarize(ctx context.Context, text string, lang model.Language) (Result, error) {
	return e.Translate(ctx, summaryRequest(e.settings.Prompts, text, lang))
}

func (e *GeminiEngine) Validate(ctx context.Context) bool {
	res, err := e.generate(ctx, "", "Hi", 10)
	if err != nil {
		e.logger.Warn("validate failed", zap.Error(err))
		return false
	}
	return res.Tokens > 0 || res.Text != ""
}

func (e *GeminiEngine) generate(ctx context.Context, system, text string, maxTokens int32) (Result, error) {
	gc := &genai.GenerateContentConfig{
		MaxOutputTokens: maxTokens,
		Temperature:     genai.Ptr(float32(e.settings.Temperature)),
	}
	if e.settings.TopP != 0 {
		gc.TopP = genai.Ptr(float32(e.settings.TopP))
	}
	if system != "" {
		gc.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := e.client.Models.GenerateContent(ctx, e.settings.Model, genai.Text(text), gc)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return Result{}, apperr.Provider(KindGemini, apiErr.Code, err)
		}
		return Result{}, apperr.Provider(KindGemini, 0, err)
	}

	res := Result{Text: strings.TrimSpace(resp.Text())}
	if resp.UsageMetadata != nil {
		res.Tokens = int(resp.UsageMetadata.TotalTokenCount)
	}
	return res, nil
}
