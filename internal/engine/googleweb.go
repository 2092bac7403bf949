package engine

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"feed-translator/internal/apperr"
	"feed-translator/internal/chunk"
	"feed-translator/internal/model"
)

const KindGoogleWeb = "google_web"

type GoogleWebSettings struct {
	BaseURL       string   `json:"base_url,omitempty"`
	MaxCharacters int      `json:"max_characters,omitempty"`
	Interval      *float64 `json:"interval,omitempty"`
}

// GoogleWebEngine 使用网页版翻译的公开接口，无需凭据
type GoogleWebEngine struct {
	base
	settings GoogleWebSettings
	client   *http.Client
	throttle *Throttle
	logger   *zap.Logger
}

func NewGoogleWeb(cfg *model.EngineConfig, opts Options) (Engine, error) {
	var s GoogleWebSettings
	if err := cfg.Decode(&s); err != nil {
		return nil, apperr.Configuration("google_web settings: %v", err)
	}
	if s.BaseURL == "" {
		s.BaseURL = "https://translate.googleapis.com"
	}
	s.BaseURL = strings.TrimRight(s.BaseURL, "/")
	if s.MaxCharacters <= 0 {
		s.MaxCharacters = 1000
	}
	interval := 1.0
	if s.Interval != nil {
		interval = *s.Interval
	}
	return &GoogleWebEngine{
		base:     base{Limits: Limits{Max: s.MaxCharacters, Unit: chunk.Characters}, name: cfg.Name, kind: KindGoogleWeb},
		settings: s,
		client:   opts.httpClient(),
		throttle: NewThrottle(seconds(interval)),
		logger:   opts.logger().With(zap.String("engine", cfg.Name)),
	}, nil
}

func (e *GoogleWebEngine) Translate(ctx context.Context, req Request) (Result, error) {
	if _, err := googleCodes.code(KindGoogleWeb, req.TargetLanguage); err != nil {
		return Result{}, err
	}
	if err := e.throttle.Wait(ctx); err != nil {
		return Result{}, err
	}
	return e.translate(ctx, req)
}

func (e *GoogleWebEngine) translate(ctx context.Context, req Request) (Result, error) {
	code, err := googleCodes.code(KindGoogleWeb, req.TargetLanguage)
	if err != nil {
		return Result{}, err
	}
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", "auto")
	q.Set("tl", code)
	q.Set("dt", "t")
	q.Set("q", req.Text)

	// 响应是嵌套数组：[[["译文","原文",...],...],...]
	var out []any
	if err := doJSON(ctx, e.client, KindGoogleWeb, http.MethodGet, e.settings.BaseURL+"/translate_a/single?"+q.Encode(), nil, nil, &out); err != nil {
		return Result{}, err
	}
	res := e.cost(req.Text, 0)
	res.Text = joinSentences(out)
	return res, nil
}

func joinSentences(out []any) string {
	if len(out) == 0 {
		return ""
	}
	sentences, ok := out[0].([]any)
	if !ok {
		return ""
	}
	var b strings.Builder
	for _, s := range sentences {
		parts, ok := s.([]any)
		if !ok || len(parts) == 0 {
			continue
		}
		if text, ok := parts[0].(string); ok {
			b.WriteString(text)
		}
	}
	return b.String()
}

func (e *GoogleWebEngine) Summarize(ctx context.Context, text string, lang model.Language) (Result, error) {
	return e.Translate(ctx, summaryRequest(Prompts{}, text, lang))
}

func (e *GoogleWebEngine) Validate(ctx context.Context) bool {
	res, err := e.translate(ctx, Request{Text: "hi", TargetLanguage: model.ChineseSimplified, TextType: TextTitle})
	if err != nil {
		e.logger.Warn("validate failed", zap.Error(err))
		return false
	}
	return res.Text != ""
}
