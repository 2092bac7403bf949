package engine

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"feed-translator/internal/apperr"
	"feed-translator/internal/chunk"
	"feed-translator/internal/model"
)

func engineConfig(t *testing.T, kind string, settings any) *model.EngineConfig {
	t.Helper()
	cfg := &model.EngineConfig{ID: 1, Name: kind + "-test", Kind: kind, UpdatedAt: time.Unix(100, 0)}
	require.NoError(t, cfg.Encode(settings))
	return cfg
}

func build(t *testing.T, kind string, settings any) Engine {
	t.Helper()
	e, err := NewRegistry(Options{}).Build(engineConfig(t, kind, settings))
	require.NoError(t, err)
	return e
}

func TestLimits(t *testing.T) {
	l := Limits{Max: 5000, Unit: chunk.Characters}
	assert.Equal(t, 3500, l.MinSize())
	assert.Equal(t, 4500, l.MaxSize())
	assert.Equal(t, chunk.Characters, l.Measure())
}

func TestPromptsSystem(t *testing.T) {
	p := Prompts{Title: "Title to {target_language}"}
	got := p.System(Request{TargetLanguage: model.Spanish, TextType: TextTitle, UserPrompt: "Keep it short."})
	assert.Equal(t, "Title to Spanish\n\nKeep it short.", got)

	got = p.System(Request{TargetLanguage: model.German, TextType: TextContent})
	assert.Contains(t, got, "German")
	assert.NotContains(t, got, languagePlaceholder)

	got = p.System(Request{TargetLanguage: model.German, SystemPrompt: "custom {target_language}"})
	assert.Equal(t, "custom German", got)
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(Options{})
	assert.Equal(t, []string{"anthropic", "deepl", "deeplx", "gemini", "google_web", "microsoft", "openai", "test"}, r.Kinds())

	_, err := r.Build(&model.EngineConfig{Name: "x", Kind: "nope"})
	assert.ErrorIs(t, err, apperr.ErrConfiguration)

	for _, kind := range []string{KindOpenAI, KindAnthropic, KindGemini, KindDeepL, KindMicrosoft} {
		_, err := r.Build(&model.EngineConfig{Name: kind, Kind: kind})
		assert.ErrorIs(t, err, apperr.ErrConfiguration, kind)
	}

	r.Register("custom", func(cfg *model.EngineConfig, _ Options) (Engine, error) {
		return NewTest(cfg, Options{})
	})
	e, err := r.Build(&model.EngineConfig{Name: "c", Kind: "custom"})
	require.NoError(t, err)
	assert.Equal(t, "c", e.Name())
}

func TestResolverReusesInstances(t *testing.T) {
	res := NewResolver(NewRegistry(Options{}))
	cfg := engineConfig(t, KindTest, TestSettings{})

	a, err := res.Resolve(cfg)
	require.NoError(t, err)
	b, err := res.Resolve(cfg)
	require.NoError(t, err)
	assert.Same(t, a, b)

	updated := *cfg
	updated.UpdatedAt = cfg.UpdatedAt.Add(time.Second)
	c, err := res.Resolve(&updated)
	require.NoError(t, err)
	assert.NotSame(t, a, c)
}

func TestTestEngine(t *testing.T) {
	e := build(t, KindTest, TestSettings{})
	res, err := e.Translate(context.Background(), Request{Text: "Hello", TargetLanguage: model.Spanish})
	require.NoError(t, err)
	assert.Equal(t, "@@Translated Text@@", res.Text)
	assert.Equal(t, 5, res.Characters)
	assert.Zero(t, res.Tokens)
	assert.Equal(t, 45000, e.MaxSize())
	assert.True(t, e.Validate(context.Background()))
}

func TestDeepL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "DeepL-Auth-Key secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/v2/translate":
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "ES", body["target_lang"])
			assert.Equal(t, "html", body["tag_handling"])
			w.Write([]byte(`{"translations":[{"detected_source_language":"EN","text":"<p>Hola</p>"}]}`))
		case "/v2/usage":
			w.Write([]byte(`{"character_count":10,"character_limit":500000}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	e := build(t, KindDeepL, DeepLSettings{APIKey: "secret", ServerURL: srv.URL})
	res, err := e.Translate(context.Background(), Request{Text: "<p>Hello</p>", TargetLanguage: model.Spanish, TextType: TextContent})
	require.NoError(t, err)
	assert.Equal(t, "<p>Hola</p>", res.Text)
	assert.Equal(t, 12, res.Characters)
	assert.True(t, e.Validate(context.Background()))

	_, err = e.Translate(context.Background(), Request{Text: "Hello", TargetLanguage: model.ChineseTraditional})
	assert.ErrorIs(t, err, apperr.ErrUnsupportedLanguage)
}

func TestDeepLX(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "auto", body["source_lang"])
		if body["text"] == "blocked" {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"code":200,"data":"你好世界"}`))
	}))
	defer srv.Close()

	zero := 0.0
	e := build(t, KindDeepLX, DeepLXSettings{URL: srv.URL, Interval: &zero})
	res, err := e.Translate(context.Background(), Request{Text: "Hello World", TargetLanguage: model.ChineseSimplified})
	require.NoError(t, err)
	assert.Equal(t, "你好世界", res.Text)
	assert.Equal(t, 11, res.Characters)

	_, err = e.Translate(context.Background(), Request{Text: "blocked", TargetLanguage: model.ChineseSimplified})
	require.Error(t, err)
	assert.True(t, apperr.IsRetryable(err))

	before := calls
	_, err = e.Translate(context.Background(), Request{Text: "x", TargetLanguage: model.ChineseTraditional})
	assert.ErrorIs(t, err, apperr.ErrUnsupportedLanguage)
	assert.Equal(t, before, calls)
}

func TestMicrosoft(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate", r.URL.Path)
		assert.Equal(t, "3.0", r.URL.Query().Get("api-version"))
		assert.Equal(t, "zh-Hant", r.URL.Query().Get("to"))
		assert.Equal(t, "key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		assert.Equal(t, "westeurope", r.Header.Get("Ocp-Apim-Subscription-Region"))
		assert.NotEmpty(t, r.Header.Get("X-ClientTraceId"))
		w.Write([]byte(`[{"translations":[{"text":"你好","to":"zh-Hant"}]}]`))
	}))
	defer srv.Close()

	e := build(t, KindMicrosoft, MicrosoftSettings{APIKey: "key", Region: "westeurope", Endpoint: srv.URL})
	res, err := e.Translate(context.Background(), Request{Text: "Hello", TargetLanguage: model.ChineseTraditional})
	require.NoError(t, err)
	assert.Equal(t, "你好", res.Text)
	assert.Equal(t, 5, res.Characters)
}

func TestGoogleWeb(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/translate_a/single", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "gtx", q.Get("client"))
		assert.Equal(t, "de", q.Get("tl"))
		assert.Equal(t, "Hello. World.", q.Get("q"))
		w.Write([]byte(`[[["Hallo. ","Hello. ",null,null,10],["Welt.","World.",null,null,10]],null,"en"]`))
	}))
	defer srv.Close()

	zero := 0.0
	e := build(t, KindGoogleWeb, GoogleWebSettings{BaseURL: srv.URL, Interval: &zero})
	res, err := e.Translate(context.Background(), Request{Text: "Hello. World.", TargetLanguage: model.German})
	require.NoError(t, err)
	assert.Equal(t, "Hallo. Welt.", res.Text)
	assert.Equal(t, 900, e.MaxSize())
	assert.Equal(t, chunk.Characters, e.Measure())
}

func TestOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		data, _ := io.ReadAll(r.Body)
		var body struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		require.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, "gpt-test", body.Model)
		if body.Messages[len(body.Messages)-1].Content == "deny" {
			w.WriteHeader(http.StatusUnauthorized)
			w.Write([]byte(`{"error":{"message":"invalid key","type":"invalid_request_error"}}`))
			return
		}
		require.Len(t, body.Messages, 2)
		assert.Equal(t, "system", body.Messages[0].Role)
		assert.Contains(t, body.Messages[0].Content, "Spanish")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","created":1,"model":"gpt-test",
			"choices":[{"index":0,"message":{"role":"assistant","content":" Hola "},"finish_reason":"stop"}],
			"usage":{"prompt_tokens":9,"completion_tokens":3,"total_tokens":12}}`))
	}))
	defer srv.Close()

	e := build(t, KindOpenAI, OpenAISettings{APIKey: "sk-test", BaseURL: srv.URL + "/v1", Model: "gpt-test"})
	assert.Equal(t, chunk.Tokens, e.Measure())
	assert.Equal(t, 1800, e.MaxSize())

	res, err := e.Translate(context.Background(), Request{Text: "Hello", TargetLanguage: model.Spanish, TextType: TextTitle})
	require.NoError(t, err)
	assert.Equal(t, "Hola", res.Text)
	assert.Equal(t, 12, res.Tokens)

	_, err = e.Translate(context.Background(), Request{Text: "deny", TargetLanguage: model.Spanish})
	require.Error(t, err)
	assert.False(t, apperr.IsRetryable(err))
}

func TestAnthropic(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "sk-ant", r.Header.Get("X-Api-Key"))
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body, "system")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"msg_1","type":"message","role":"assistant","model":"claude-test",
			"content":[{"type":"text","text":"Bonjour"}],"stop_reason":"end_turn",
			"usage":{"input_tokens":20,"output_tokens":4}}`))
	}))
	defer srv.Close()

	e := build(t, KindAnthropic, AnthropicSettings{APIKey: "sk-ant", BaseURL: srv.URL, Model: "claude-test"})
	res, err := e.Summarize(context.Background(), "Some long text", model.French)
	require.NoError(t, err)
	assert.Equal(t, "Bonjour", res.Text)
	assert.Equal(t, 24, res.Tokens)
}
