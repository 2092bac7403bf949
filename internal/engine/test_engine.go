package engine

import (
	"context"

	"feed-translator/internal/apperr"
	"feed-translator/internal/chunk"
	"feed-translator/internal/model"
)

const KindTest = "test"

type TestSettings struct {
	TranslatedText string  `json:"translated_text,omitempty"`
	MaxCharacters  int     `json:"max_characters,omitempty"`
	Interval       float64 `json:"interval,omitempty"`
}

// TestEngine 不访问网络，固定返回配置的文本，用于联调
type TestEngine struct {
	base
	settings TestSettings
	throttle *Throttle
}

func NewTest(cfg *model.EngineConfig, _ Options) (Engine, error) {
	var s TestSettings
	if err := cfg.Decode(&s); err != nil {
		return nil, apperr.Configuration("test settings: %v", err)
	}
	if s.TranslatedText == "" {
		s.TranslatedText = "@@Translated Text@@"
	}
	if s.MaxCharacters <= 0 {
		s.MaxCharacters = 50000
	}
	return &TestEngine{
		base:     base{Limits: Limits{Max: s.MaxCharacters, Unit: chunk.Characters}, name: cfg.Name, kind: KindTest},
		settings: s,
		throttle: NewThrottle(seconds(s.Interval)),
	}, nil
}

func (e *TestEngine) Translate(ctx context.Context, req Request) (Result, error) {
	if err := e.throttle.Wait(ctx); err != nil {
		return Result{}, err
	}
	res := e.cost(req.Text, 0)
	res.Text = e.settings.TranslatedText
	return res, nil
}

func (e *TestEngine) Summarize(ctx context.Context, text string, lang model.Language) (Result, error) {
	return e.Translate(ctx, summaryRequest(Prompts{}, text, lang))
}

func (e *TestEngine) Validate(context.Context) bool { return true }
