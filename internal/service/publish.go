package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gorilla/feeds"
	"github.com/yuin/goldmark"

	"feed-translator/config"
	"feed-translator/internal/model"
)

const (
	artifactExt         = ".xml"
	artifactContentType = "application/atom+xml; charset=utf-8"
	summaryPrefix       = "<br />🤖:"
)

// Publisher 保存/删除订阅源的输出文件，按 slug 命名
type Publisher interface {
	Publish(ctx context.Context, slug string, data []byte) error
	Remove(ctx context.Context, slug string) error
}

// FeedFormat 输出格式
type FeedFormat int

const (
	FormatAtom FeedFormat = iota
	// FormatJSON 译文的 JSON Feed
	FormatJSON
	// FormatOriginal 只含原文的 Atom
	FormatOriginal
)

func (f FeedFormat) route() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatOriginal:
		return "proxy"
	default:
		return "rss"
	}
}

// RenderAtom 用条目的译文生成 Atom 文档，摘要渲染为 HTML 放在正文前
func RenderAtom(feed *model.Feed, entries []model.Entry, baseURL string, now time.Time) ([]byte, error) {
	return Render(feed, entries, baseURL, now, FormatAtom)
}

// Render 按格式生成订阅源文档
func Render(feed *model.Feed, entries []model.Entry, baseURL string, now time.Time, format FeedFormat) ([]byte, error) {
	title := feed.Name
	if title == "" {
		title = feed.URL
	}
	original := format == FormatOriginal
	description := fmt.Sprintf("%s (%s)", title, feed.TargetLanguage.DisplayName())
	if original {
		description = title
	}
	out := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: feed.URL},
		Description: description,
		Id:          artifactURL(baseURL, format, feed.Slug),
		Updated:     now,
		Created:     feed.CreatedAt,
	}

	for i := range entries {
		e := &entries[i]
		item := &feeds.Item{
			Id:      e.GUID,
			Title:   e.OriginalTitle,
			Link:    &feeds.Link{Href: e.Link},
			Content: e.OriginalContent,
			Created: e.Published,
			Updated: e.UpdatedAt,
		}
		if !original {
			item.Title = e.DisplayTitle()
			content, err := displayContent(e)
			if err != nil {
				return nil, err
			}
			item.Content = content
		}
		if e.OriginalSummary != "" {
			item.Description = e.OriginalSummary
		}
		if e.Author != "" {
			item.Author = &feeds.Author{Name: e.Author}
		}
		out.Items = append(out.Items, item)
	}

	var (
		doc string
		err error
	)
	if format == FormatJSON {
		doc, err = out.ToJSON()
	} else {
		doc, err = out.ToAtom()
	}
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", format.route(), err)
	}
	return []byte(doc), nil
}

// displayContent 译文正文，有摘要时放在最前
func displayContent(e *model.Entry) (string, error) {
	content := e.DisplayContent()
	if e.AISummary == "" {
		return content, nil
	}
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(e.AISummary), &buf); err != nil {
		return "", fmt.Errorf("render summary of %s: %w", e.GUID, err)
	}
	return summaryPrefix + strings.TrimSpace(buf.String()) + model.ContentSeparator + content, nil
}

func artifactURL(baseURL string, format FeedFormat, slug string) string {
	if baseURL == "" {
		return "urn:feed-translator:" + format.route() + ":" + slug
	}
	return strings.TrimRight(baseURL, "/") + "/" + format.route() + "/" + slug
}

// FilePublisher 写入本地目录，先写临时文件再 rename，读取方不会看到半个文件
type FilePublisher struct {
	dir string
}

func NewFilePublisher(dir string) *FilePublisher {
	return &FilePublisher{dir: dir}
}

// Path 输出文件路径
func (p *FilePublisher) Path(slug string) string {
	return filepath.Join(p.dir, filepath.Base(slug)+artifactExt)
}

func (p *FilePublisher) Publish(_ context.Context, slug string, data []byte) error {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return fmt.Errorf("create publish dir: %w", err)
	}
	tmp, err := os.CreateTemp(p.dir, slug+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write artifact: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), p.Path(slug)); err != nil {
		return fmt.Errorf("rename artifact: %w", err)
	}
	return nil
}

func (p *FilePublisher) Remove(_ context.Context, slug string) error {
	err := os.Remove(p.Path(slug))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove artifact: %w", err)
	}
	return nil
}

// S3Publisher 额外上传到对象存储
type S3Publisher struct {
	client *s3.Client
	bucket string
	prefix string
}

func NewS3Publisher(cfg config.PublishConfig) (*S3Publisher, error) {
	bucket := strings.TrimSpace(cfg.S3Bucket)
	if bucket == "" {
		return nil, fmt.Errorf("s3 bucket is required")
	}
	region := cfg.S3Region
	if region == "" {
		region = "us-east-1"
	}
	opts := s3.Options{Region: region}
	if cfg.S3AccessKey != "" {
		opts.Credentials = credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")
	}
	if endpoint := strings.TrimRight(strings.TrimSpace(cfg.S3Endpoint), "/"); endpoint != "" {
		opts.BaseEndpoint = aws.String(endpoint)
		// 自建存储一般只支持 path style
		opts.UsePathStyle = true
	}
	return &S3Publisher{
		client: s3.New(opts),
		bucket: bucket,
		prefix: strings.Trim(cfg.S3Prefix, "/"),
	}, nil
}

func (p *S3Publisher) key(slug string) string {
	if p.prefix == "" {
		return slug + artifactExt
	}
	return p.prefix + "/" + slug + artifactExt
}

func (p *S3Publisher) Publish(ctx context.Context, slug string, data []byte) error {
	_, err := p.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(p.bucket),
		Key:         aws.String(p.key(slug)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(artifactContentType),
	})
	if err != nil {
		return fmt.Errorf("put s3 object: %w", err)
	}
	return nil
}

func (p *S3Publisher) Remove(ctx context.Context, slug string) error {
	_, err := p.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(p.bucket),
		Key:    aws.String(p.key(slug)),
	})
	if err != nil {
		return fmt.Errorf("delete s3 object: %w", err)
	}
	return nil
}

// MultiPublisher 依次写入多个目标，全部尝试后合并错误
type MultiPublisher []Publisher

func (m MultiPublisher) Publish(ctx context.Context, slug string, data []byte) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, slug, data); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m MultiPublisher) Remove(ctx context.Context, slug string) error {
	var errs []error
	for _, p := range m {
		if err := p.Remove(ctx, slug); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
