package engine

import (
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"feed-translator/internal/apperr"
	"feed-translator/internal/chunk"
	"feed-translator/internal/model"
)

const KindMicrosoft = "microsoft"

type MicrosoftSettings struct {
	APIKey        string `json:"api_key"`
	Region        string `json:"region,omitempty"`
	Endpoint      string `json:"endpoint,omitempty"`
	MaxCharacters int    `json:"max_characters,omitempty"`
}

// MicrosoftEngine Azure Translator v3
type MicrosoftEngine struct {
	base
	settings MicrosoftSettings
	client   *http.Client
	logger   *zap.Logger
}

func NewMicrosoft(cfg *model.EngineConfig, opts Options) (Engine, error) {
	var s MicrosoftSettings
	if err := cfg.Decode(&s); err != nil {
		return nil, apperr.Configuration("microsoft settings: %v", err)
	}
	s.APIKey = strings.TrimSpace(s.APIKey)
	if s.APIKey == "" {
		return nil, apperr.Configuration("microsoft engine %q: api_key is empty", cfg.Name)
	}
	if s.Endpoint == "" {
		s.Endpoint = "https://api.cognitive.microsofttranslator.com"
	}
	s.Endpoint = strings.TrimRight(s.Endpoint, "/")
	if s.Region == "" {
		s.Region = "global"
	}
	if s.MaxCharacters <= 0 {
		s.MaxCharacters = 5000
	}
	return &MicrosoftEngine{
		base:     base{Limits: Limits{Max: s.MaxCharacters, Unit: chunk.Characters}, name: cfg.Name, kind: KindMicrosoft},
		settings: s,
		client:   opts.httpClient(),
		logger:   opts.logger().With(zap.String("engine", cfg.Name)),
	}, nil
}

func (e *MicrosoftEngine) Translate(ctx context.Context, req Request) (Result, error) {
	code, err := microsoftCodes.code(KindMicrosoft, req.TargetLanguage)
	if err != nil {
		return Result{}, err
	}
	q := url.Values{}
	q.Set("api-version", "3.0")
	q.Set("to", code)
	if req.TextType == TextContent {
		q.Set("textType", "html")
	}
	headers := map[string]string{
		"Ocp-Apim-Subscription-Key":    e.settings.APIKey,
		"Ocp-Apim-Subscription-Region": e.settings.Region,
		"X-ClientTraceId":              uuid.NewString(),
	}
	body := []map[string]string{{"Text": req.Text}}
	var out []struct {
		Translations []struct {
			Text string `json:"text"`
			To   string `json:"to"`
		} `json:"translations"`
	}
	if err := doJSON(ctx, e.client, KindMicrosoft, http.MethodPost, e.settings.Endpoint+"/translate?"+q.Encode(), headers, body, &out); err != nil {
		return Result{}, err
	}
	res := e.cost(req.Text, 0)
	if len(out) > 0 && len(out[0].Translations) > 0 {
		res.Text = out[0].Translations[0].Text
	}
	return res, nil
}

func (e *MicrosoftEngine) Summarize(ctx context.Context, text string, lang model.Language) (Result, error) {
	return e.Translate(ctx, summaryRequest(Prompts{}, text, lang))
}

func (e *MicrosoftEngine) Validate(ctx context.Context) bool {
	res, err := e.Translate(ctx, Request{Text: "Hi", TargetLanguage: model.ChineseSimplified, TextType: TextTitle})
	if err != nil {
		e.logger.Warn("validate failed", zap.Error(err))
		return false
	}
	return res.Text != ""
}
