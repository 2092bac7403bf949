package engine

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"feed-translator/internal/apperr"
	"feed-translator/internal/chunk"
	"feed-translator/internal/model"
)

const KindDeepLX = "deeplx"

type DeepLXSettings struct {
	URL           string   `json:"url,omitempty"`
	MaxCharacters int      `json:"max_characters,omitempty"`
	Interval      *float64 `json:"interval,omitempty"`
}

// DeepLXEngine 自建的 DeepLX 接口，要求两次调用之间有固定间隔
type DeepLXEngine struct {
	base
	settings DeepLXSettings
	client   *http.Client
	throttle *Throttle
	logger   *zap.Logger
}

func NewDeepLX(cfg *model.EngineConfig, opts Options) (Engine, error) {
	var s DeepLXSettings
	if err := cfg.Decode(&s); err != nil {
		return nil, apperr.Configuration("deeplx settings: %v", err)
	}
	if s.URL == "" {
		s.URL = "http://127.0.0.1:1188/translate"
	}
	if s.MaxCharacters <= 0 {
		s.MaxCharacters = 5000
	}
	interval := 3.0
	if s.Interval != nil {
		interval = *s.Interval
	}
	return &DeepLXEngine{
		base:     base{Limits: Limits{Max: s.MaxCharacters, Unit: chunk.Characters}, name: cfg.Name, kind: KindDeepLX},
		settings: s,
		client:   opts.httpClient(),
		throttle: NewThrottle(seconds(interval)),
		logger:   opts.logger().With(zap.String("engine", cfg.Name)),
	}, nil
}

func (e *DeepLXEngine) Translate(ctx context.Context, req Request) (Result, error) {
	if _, err := deeplxCodes.code(KindDeepLX, req.TargetLanguage); err != nil {
		return Result{}, err
	}
	if err := e.throttle.Wait(ctx); err != nil {
		return Result{}, err
	}
	return e.translate(ctx, req)
}

func (e *DeepLXEngine) translate(ctx context.Context, req Request) (Result, error) {
	code, err := deeplxCodes.code(KindDeepLX, req.TargetLanguage)
	if err != nil {
		return Result{}, err
	}
	body := map[string]string{
		"text":        req.Text,
		"source_lang": "auto",
		"target_lang": code,
	}
	var out struct {
		Data string `json:"data"`
	}
	if err := doJSON(ctx, e.client, KindDeepLX, http.MethodPost, e.settings.URL, nil, body, &out); err != nil {
		return Result{}, err
	}
	res := e.cost(req.Text, 0)
	res.Text = strings.TrimSpace(out.Data)
	return res, nil
}

func (e *DeepLXEngine) Summarize(ctx context.Context, text string, lang model.Language) (Result, error) {
	return e.Translate(ctx, summaryRequest(Prompts{}, text, lang))
}

// Validate 不等待调用间隔
func (e *DeepLXEngine) Validate(ctx context.Context) bool {
	res, err := e.translate(ctx, Request{Text: "Hello World", TargetLanguage: model.ChineseSimplified, TextType: TextTitle})
	if err != nil {
		e.logger.Warn("validate failed", zap.Error(err))
		return false
	}
	return res.Text != ""
}
