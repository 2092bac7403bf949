package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"go.uber.org/zap"

	"feed-translator/internal/cache"
	"feed-translator/internal/chunk"
	"feed-translator/internal/engine"
	"feed-translator/internal/model"
)

const (
	summaryDelimiter = "."
	// 递归摘要时前文摘要与下一段的拼接格式
	recursivePrompt = "Previous summaries:\n\n%s\n\nText to summarize next:\n\n%s"
)

// Cost 一次处理累计的成本，只统计真正调用了服务的部分
type Cost struct {
	Tokens     int
	Characters int
}

func (c *Cost) Add(tokens, characters int) {
	c.Tokens += tokens
	c.Characters += characters
}

func (c *Cost) AddCost(o Cost) { c.Add(o.Tokens, o.Characters) }

// ProcessorOptions EntryProcessor 的可调参数
type ProcessorOptions struct {
	SummaryMinChunk  int
	RecursiveSummary bool
}

// EntryProcessor 翻译/摘要单个条目：先查缓存，未命中时经 Retrier 调用引擎
type EntryProcessor struct {
	cache     *cache.Cache
	retrier   *engine.Retrier
	articles  ArticleSource
	sanitizer *bluemonday.Policy
	metrics   *Metrics
	logger    *zap.Logger
	opts      ProcessorOptions
}

func NewEntryProcessor(c *cache.Cache, retrier *engine.Retrier, articles ArticleSource, metrics *Metrics, logger *zap.Logger, opts ProcessorOptions) *EntryProcessor {
	if opts.SummaryMinChunk <= 0 {
		opts.SummaryMinChunk = 500
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EntryProcessor{
		cache:     c,
		retrier:   retrier,
		articles:  articles,
		sanitizer: bluemonday.UGCPolicy(),
		metrics:   metrics,
		logger:    logger.Named("processor"),
		opts:      opts,
	}
}

// Translate 按订阅源配置翻译标题和正文。已有译文的字段不会重复翻译。
// 返回的错误只影响这一条目
func (p *EntryProcessor) Translate(ctx context.Context, feed *model.Feed, eng engine.Engine, entry *model.Entry) (Cost, error) {
	var (
		cost Cost
		errs []error
	)

	if feed.TranslateTitle && entry.TranslatedTitle == "" && strings.TrimSpace(entry.OriginalTitle) != "" {
		v, c, err := p.translateText(ctx, eng, entry.OriginalTitle, feed.TargetLanguage, engine.TextTitle, feed.AdditionalPrompt)
		cost.AddCost(c)
		if err != nil {
			errs = append(errs, fmt.Errorf("title: %w", err))
		} else if v.Text != "" {
			formatted, err := feed.DisplayMode.Format(entry.OriginalTitle, v.Text, model.TitleSeparator)
			if err != nil {
				return cost, err
			}
			entry.TranslatedTitle = formatted
		}
	}

	if feed.TranslateContent && entry.TranslatedContent == "" && strings.TrimSpace(entry.OriginalContent) != "" {
		original := p.sourceContent(ctx, feed, entry)
		translated, c, err := p.translateHTML(ctx, eng, original, feed)
		cost.AddCost(c)
		if err != nil {
			errs = append(errs, fmt.Errorf("content: %w", err))
		} else if translated != "" {
			formatted, err := feed.DisplayMode.Format(original, translated, model.ContentSeparator)
			if err != nil {
				return cost, err
			}
			entry.TranslatedContent = p.sanitizer.Sanitize(formatted)
		}
	}

	return cost, errors.Join(errs...)
}

// Summarize 生成 AI 摘要，结果以 markdown 保存在 AISummary
func (p *EntryProcessor) Summarize(ctx context.Context, feed *model.Feed, eng engine.Engine, entry *model.Entry) (Cost, error) {
	var cost Cost
	if !feed.Summarize || entry.AISummary != "" {
		return cost, nil
	}
	text := plainText(p.sourceContent(ctx, feed, entry))
	if text == "" {
		text = strings.TrimSpace(entry.OriginalTitle)
	}
	if text == "" {
		return cost, nil
	}

	v, computed, err := p.cache.Resolve(ctx, model.KindSummary, text, feed.TargetLanguage, func(ctx context.Context) (cache.Value, error) {
		return p.summarizeText(ctx, eng, text, feed)
	})
	if computed {
		cost.Add(v.Tokens, v.Characters)
	}
	if err != nil {
		return cost, fmt.Errorf("summary: %w", err)
	}
	entry.AISummary = strings.TrimSpace(v.Text)
	return cost, nil
}

// sourceContent 开启全文抓取时用原文页面替换 feed 中的正文，失败时保持不变
func (p *EntryProcessor) sourceContent(ctx context.Context, feed *model.Feed, entry *model.Entry) string {
	if !feed.FetchArticle || entry.Link == "" || p.articles == nil {
		return entry.OriginalContent
	}
	full, err := p.articles.FetchArticle(ctx, entry.Link)
	if err != nil || strings.TrimSpace(full) == "" {
		p.logger.Debug("article fetch failed, keeping feed content",
			zap.String("link", entry.Link), zap.Error(err))
		return entry.OriginalContent
	}
	return full
}

// translateHTML 逐个文本节点翻译，节点之间共享缓存
func (p *EntryProcessor) translateHTML(ctx context.Context, eng engine.Engine, raw string, feed *model.Feed) (string, Cost, error) {
	var cost Cost
	content, err := parseContent(raw, feed.Quality)
	if err != nil {
		return "", cost, err
	}
	texts := content.texts()
	if len(texts) == 0 {
		return "", cost, nil
	}

	translated := 0
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return "", cost, err
		}
		v, c, err := p.translateText(ctx, eng, text, feed.TargetLanguage, engine.TextContent, feed.AdditionalPrompt)
		cost.AddCost(c)
		if err != nil {
			return "", cost, err
		}
		if v.Text != "" {
			content.set(i, v.Text)
			translated++
		}
	}
	if translated == 0 {
		return "", cost, nil
	}
	out, err := content.html()
	return out, cost, err
}

// translateText 缓存命中时成本为零
func (p *EntryProcessor) translateText(ctx context.Context, eng engine.Engine, text string, lang model.Language, textType engine.TextType, userPrompt string) (cache.Value, Cost, error) {
	var cost Cost
	v, computed, err := p.cache.Resolve(ctx, model.KindTranslation, text, lang, func(ctx context.Context) (cache.Value, error) {
		return p.callTranslate(ctx, eng, text, lang, textType, userPrompt)
	})
	if computed {
		cost.Add(v.Tokens, v.Characters)
	}
	return v, cost, err
}

// callTranslate 超过引擎上限的文本按块翻译，按原顺序拼接，成本为各块之和
func (p *EntryProcessor) callTranslate(ctx context.Context, eng engine.Engine, text string, lang model.Language, textType engine.TextType, userPrompt string) (cache.Value, error) {
	req := engine.Request{Text: text, TargetLanguage: lang, TextType: textType, UserPrompt: userPrompt}
	if eng.Measure().Size(text) <= eng.MaxSize() {
		res, err := p.invoke(ctx, eng, "translate", func(ctx context.Context) (engine.Result, error) {
			return eng.Translate(ctx, req)
		})
		return cache.Value(res), err
	}

	chunks, err := chunk.Plan(text, chunk.DefaultDelimiter, eng.MinSize(), eng.MaxSize(), eng.Measure())
	if err != nil {
		return cache.Value{}, err
	}
	var (
		b     strings.Builder
		total cache.Value
	)
	for _, c := range chunks {
		req := req
		req.Text = c.Text
		res, err := p.invoke(ctx, eng, "translate", func(ctx context.Context) (engine.Result, error) {
			return eng.Translate(ctx, req)
		})
		total.Tokens += res.Tokens
		total.Characters += res.Characters
		if err != nil {
			return cache.Value{Tokens: total.Tokens, Characters: total.Characters}, err
		}
		if res.Text == "" {
			// 任一块没有结果时整体视为无结果，不写入缓存
			return cache.Value{Tokens: total.Tokens, Characters: total.Characters}, nil
		}
		b.WriteString(res.Text)
		b.WriteString(c.Tail)
	}
	total.Text = b.String()
	return total, nil
}

// summarizeText 按 detail 在 1 和最大分段数之间插值得到分段数，逐段摘要后拼接
func (p *EntryProcessor) summarizeText(ctx context.Context, eng engine.Engine, text string, feed *model.Feed) (cache.Value, error) {
	measure := eng.Measure()
	minChunk := p.opts.SummaryMinChunk
	maxSize := eng.MaxSize()
	if minChunk > maxSize {
		minChunk = maxSize
	}

	segments := chunk.Split(text, summaryDelimiter)
	finest, err := chunk.Group(segments, summaryDelimiter, 0, minChunk, measure)
	if err != nil {
		return cache.Value{}, err
	}
	n := chunk.TargetChunks(feed.SummaryDetail, len(finest))
	size := measure.Size(text) / n
	if size < minChunk {
		size = minChunk
	}
	if size > maxSize {
		size = maxSize
	}
	chunks, err := chunk.Group(segments, summaryDelimiter, minChunk, size, measure)
	if err != nil {
		return cache.Value{}, err
	}

	var (
		summaries []string
		total     cache.Value
	)
	for _, c := range chunks {
		input := strings.TrimSpace(c.Text + c.Tail)
		if input == "" {
			continue
		}
		if p.opts.RecursiveSummary && len(summaries) > 0 {
			input = fmt.Sprintf(recursivePrompt, strings.Join(summaries, "\n\n"), input)
		}
		res, err := p.invoke(ctx, eng, "summarize", func(ctx context.Context) (engine.Result, error) {
			return eng.Summarize(ctx, input, feed.TargetLanguage)
		})
		total.Tokens += res.Tokens
		total.Characters += res.Characters
		if err != nil {
			return cache.Value{Tokens: total.Tokens, Characters: total.Characters}, err
		}
		if s := strings.TrimSpace(res.Text); s != "" {
			summaries = append(summaries, s)
		}
	}
	total.Text = strings.Join(summaries, "\n\n")
	return total, nil
}

func (p *EntryProcessor) invoke(ctx context.Context, eng engine.Engine, op string, fn func(ctx context.Context) (engine.Result, error)) (engine.Result, error) {
	return p.retrier.Invoke(ctx, eng.Name()+" "+op, func(ctx context.Context) (engine.Result, error) {
		res, err := fn(ctx)
		p.metrics.ProviderCall(eng.Kind(), op, err)
		return res, err
	})
}
