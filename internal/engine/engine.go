package engine

import (
	"context"

	"feed-translator/internal/chunk"
	"feed-translator/internal/model"
)

// TextType 决定默认使用哪条提示词
type TextType string

const (
	TextTitle   TextType = "title"
	TextContent TextType = "content"
	TextSummary TextType = "summary"
)

// Request 一次翻译调用
type Request struct {
	Text           string
	TargetLanguage model.Language
	TextType       TextType
	// 为空时使用引擎配置的提示词
	SystemPrompt string
	// 追加在系统提示词之后
	UserPrompt string
}

// Result 翻译/摘要结果。Text 为空表示服务没有返回内容，不是错误
type Result struct {
	Text       string
	Tokens     int
	Characters int
}

// Engine 翻译/摘要服务的统一能力
type Engine interface {
	Name() string
	Kind() string
	Translate(ctx context.Context, req Request) (Result, error)
	Summarize(ctx context.Context, text string, lang model.Language) (Result, error)
	// Validate 做一次最小调用检查凭据与连通性，不返回错误
	Validate(ctx context.Context) bool
	MinSize() int
	MaxSize() int
	Measure() chunk.Measure
}

// Limits 由服务的上限推导分块尺寸：软上限 70%，硬上限 90%
type Limits struct {
	Max  int
	Unit chunk.Measure
}

func (l Limits) MinSize() int { return l.Max * 7 / 10 }

func (l Limits) MaxSize() int { return l.Max * 9 / 10 }

func (l Limits) Measure() chunk.Measure { return l.Unit }

// cost 按引擎的计量方式填充成本字段
func (l Limits) cost(text string, tokens int) Result {
	if l.Unit == chunk.Characters {
		return Result{Characters: chunk.CountCharacters(text)}
	}
	return Result{Tokens: tokens}
}

type base struct {
	Limits
	name string
	kind string
}

func (b base) Name() string { return b.name }

func (b base) Kind() string { return b.kind }
