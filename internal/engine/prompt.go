package engine

import (
	"strings"

	"feed-translator/internal/model"
)

const languagePlaceholder = "{target_language}"

const (
	DefaultTitlePrompt   = "Translate the following title into {target_language}. Only return the translated title, without quotes or explanations."
	DefaultContentPrompt = "Translate the following content into {target_language}. Keep all HTML tags, attributes and line breaks unchanged. Only return the translation."
	DefaultSummaryPrompt = "Summarize the following text in {target_language}. Focus on the key points, use concise markdown and do not add information that is not in the text."
)

// Prompts 每个引擎可单独配置的提示词
type Prompts struct {
	Title   string `json:"title_prompt,omitempty"`
	Content string `json:"content_prompt,omitempty"`
	Summary string `json:"summary_prompt,omitempty"`
}

func (p Prompts) withDefaults() Prompts {
	if p.Title == "" {
		p.Title = DefaultTitlePrompt
	}
	if p.Content == "" {
		p.Content = DefaultContentPrompt
	}
	if p.Summary == "" {
		p.Summary = DefaultSummaryPrompt
	}
	return p
}

// System 根据请求拼出最终的系统提示词
func (p Prompts) System(req Request) string {
	p = p.withDefaults()
	prompt := req.SystemPrompt
	if prompt == "" {
		switch req.TextType {
		case TextSummary:
			prompt = p.Summary
		case TextContent:
			prompt = p.Content
		default:
			prompt = p.Title
		}
	}
	prompt = RenderPrompt(prompt, req.TargetLanguage)
	if up := strings.TrimSpace(req.UserPrompt); up != "" {
		prompt += "\n\n" + up
	}
	return prompt
}

// RenderPrompt 替换 {target_language}
func RenderPrompt(prompt string, lang model.Language) string {
	return strings.ReplaceAll(prompt, languagePlaceholder, lang.DisplayName())
}

// summaryRequest 默认摘要实现：使用摘要提示词调用 Translate
func summaryRequest(p Prompts, text string, lang model.Language) Request {
	return Request{
		Text:           text,
		TargetLanguage: lang,
		TextType:       TextSummary,
		SystemPrompt:   p.withDefaults().Summary,
	}
}
