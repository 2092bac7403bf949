package service

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"codeberg.org/readeck/go-readability/v2"
)

const maxArticleBytes = 5 << 20

// ArticleSource 根据链接获取全文
type ArticleSource interface {
	FetchArticle(ctx context.Context, link string) (string, error)
}

// ArticleService 抓取原文页面并提取正文 HTML
type ArticleService struct {
	client    *http.Client
	userAgent string
}

func NewArticleService(client *http.Client, userAgent string) *ArticleService {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &ArticleService{client: client, userAgent: userAgent}
}

func (s *ArticleService) FetchArticle(ctx context.Context, link string) (string, error) {
	pageURL, err := url.Parse(link)
	if err != nil || pageURL.Scheme == "" || pageURL.Host == "" {
		return "", fmt.Errorf("invalid article link %q", link)
	}
	if strings.HasSuffix(strings.ToLower(pageURL.Path), ".mp3") {
		return "", fmt.Errorf("article link %q is not a page", link)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL.String(), nil)
	if err != nil {
		return "", err
	}
	if s.userAgent != "" {
		req.Header.Set("User-Agent", s.userAgent)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch article: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("fetch article: unexpected status %d", resp.StatusCode)
	}

	article, err := readability.FromReader(io.LimitReader(resp.Body, maxArticleBytes), pageURL)
	if err != nil {
		return "", fmt.Errorf("parse article: %w", err)
	}
	var buf strings.Builder
	if err := article.RenderHTML(&buf); err != nil {
		return "", fmt.Errorf("render article: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}
