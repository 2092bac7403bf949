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

const (
	KindDeepL = "deepl"

	deeplFreeURL = "https://api-free.deepl.com"
	deeplProURL  = "https://api.deepl.com"
)

type DeepLSettings struct {
	APIKey        string `json:"api_key"`
	ServerURL     string `json:"server_url,omitempty"`
	MaxCharacters int    `json:"max_characters,omitempty"`
}

// DeepLEngine 文档翻译 API，按字符计费
type DeepLEngine struct {
	base
	settings DeepLSettings
	client   *http.Client
	logger   *zap.Logger
}

func NewDeepL(cfg *model.EngineConfig, opts Options) (Engine, error) {
	var s DeepLSettings
	if err := cfg.Decode(&s); err != nil {
		return nil, apperr.Configuration("deepl settings: %v", err)
	}
	s.APIKey = strings.TrimSpace(s.APIKey)
	if s.APIKey == "" {
		return nil, apperr.Configuration("deepl engine %q: api_key is empty", cfg.Name)
	}
	if s.ServerURL == "" {
		s.ServerURL = deeplProURL
		if strings.HasSuffix(s.APIKey, ":fx") {
			s.ServerURL = deeplFreeURL
		}
	}
	s.ServerURL = strings.TrimRight(s.ServerURL, "/")
	if s.MaxCharacters <= 0 {
		s.MaxCharacters = 5000
	}
	return &DeepLEngine{
		base:     base{Limits: Limits{Max: s.MaxCharacters, Unit: chunk.Characters}, name: cfg.Name, kind: KindDeepL},
		settings: s,
		client:   opts.httpClient(),
		logger:   opts.logger().With(zap.String("engine", cfg.Name)),
	}, nil
}

func (e *DeepLEngine) headers() map[string]string {
	return map[string]string{"Authorization": "DeepL-Auth-Key " + e.settings.APIKey}
}

func (e *DeepLEngine) Translate(ctx context.Context, req Request) (Result, error) {
	code, err := deeplCodes.code(KindDeepL, req.TargetLanguage)
	if err != nil {
		return Result{}, err
	}
	body := map[string]any{
		"text":                []string{req.Text},
		"target_lang":         code,
		"preserve_formatting": true,
		"split_sentences":     "nonewlines",
	}
	if req.TextType == TextContent {
		body["tag_handling"] = "html"
	}
	var out struct {
		Translations []struct {
			Text string `json:"text"`
		} `json:"translations"`
	}
	if err := doJSON(ctx, e.client, KindDeepL, http.MethodPost, e.settings.ServerURL+"/v2/translate", e.headers(), body, &out); err != nil {
		return Result{}, err
	}
	res := e.cost(req.Text, 0)
	if len(out.Translations) > 0 {
		res.Text = out.Translations[0].Text
	}
	return res, nil
}

func (e *DeepLEngine) Summarize(ctx context.Context, text string, lang model.Language) (Result, error) {
	return e.Translate(ctx, summaryRequest(Prompts{}, text, lang))
}

// Validate 查询用量接口
func (e *DeepLEngine) Validate(ctx context.Context) bool {
	var usage struct {
		CharacterCount int64 `json:"character_count"`
		CharacterLimit int64 `json:"character_limit"`
	}
	if err := doJSON(ctx, e.client, KindDeepL, http.MethodGet, e.settings.ServerURL+"/v2/usage", e.headers(), nil, &usage); err != nil {
		e.logger.Warn("validate failed", zap.Error(err))
		return false
	}
	return usage.CharacterLimit == 0 || usage.CharacterCount < usage.CharacterLimit
}
