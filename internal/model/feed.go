package model

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RefreshBucket 刷新间隔（分钟）
type RefreshBucket int

const (
	Every5Minutes  RefreshBucket = 5
	Every15Minutes RefreshBucket = 15
	Every30Minutes RefreshBucket = 30
	Hourly         RefreshBucket = 60
	Daily          RefreshBucket = 1440
	Weekly         RefreshBucket = 10080
)

var bucketNames = map[RefreshBucket]string{
	Every5Minutes:  "5min",
	Every15Minutes: "15min",
	Every30Minutes: "30min",
	Hourly:         "hourly",
	Daily:          "daily",
	Weekly:         "weekly",
}

// Buckets 全部刷新间隔，按从短到长排序
func Buckets() []RefreshBucket {
	return []RefreshBucket{Every5Minutes, Every15Minutes, Every30Minutes, Hourly, Daily, Weekly}
}

func (b RefreshBucket) Valid() bool {
	_, ok := bucketNames[b]
	return ok
}

func (b RefreshBucket) String() string {
	if name, ok := bucketNames[b]; ok {
		return name
	}
	return fmt.Sprintf("%dmin", int(b))
}

// ParseBucket 解析 "5min"/"hourly" 等名称
func ParseBucket(s string) (RefreshBucket, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	for b, name := range bucketNames {
		if name == s {
			return b, nil
		}
	}
	return 0, fmt.Errorf("unknown refresh bucket %q", s)
}

// Feed 订阅源，一次同步周期内被单个 worker 独占
type Feed struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Slug string `gorm:"size:64;uniqueIndex;not null" json:"slug"`
	Name string `gorm:"size:255" json:"name"`
	URL  string `gorm:"size:1024;not null" json:"url"`

	ETag      string     `gorm:"column:etag;size:255" json:"etag"`
	LastFetch *time.Time `json:"last_fetch,omitempty"`

	// 三个阶段状态：nil 未知/进行中，true 成功，false 失败
	FetchStatus       *bool `json:"fetch_status"`
	TranslationStatus *bool `json:"translation_status"`
	SummaryStatus     *bool `json:"summary_status"`

	// 上一次发布失败，下一轮即使没有变化也要重新发布
	ArtifactStale bool `gorm:"default:false" json:"artifact_stale"`

	TotalTokens     int64  `gorm:"default:0" json:"total_tokens"`
	TotalCharacters int64  `gorm:"default:0" json:"total_characters"`
	Log             string `gorm:"type:text" json:"log"`

	TargetLanguage   Language      `gorm:"size:16;not null" json:"target_language"`
	MaxPosts         int           `gorm:"default:20" json:"max_posts"`
	RefreshBucket    RefreshBucket `gorm:"index;default:30" json:"refresh_bucket"`
	TranslateTitle   bool          `json:"translate_title"`
	TranslateContent bool          `json:"translate_content"`
	Summarize        bool          `json:"summarize"`
	DisplayMode      DisplayMode   `gorm:"default:0" json:"display_mode"`
	Quality          bool          `json:"quality"`
	FetchArticle     bool          `json:"fetch_article"`
	SummaryDetail    float64       `gorm:"default:0" json:"summary_detail"`
	AdditionalPrompt string        `gorm:"type:text" json:"additional_prompt"`

	TranslatorID *uint `json:"translator_id"`
	SummarizerID *uint `json:"summarizer_id"`

	Entries []Entry `gorm:"constraint:OnDelete:CASCADE" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FeedSlug 由源地址和密钥派生稳定标识，同一地址重建后得到相同的 slug
func FeedSlug(url, secret string) string {
	id := uuid.NewSHA1(uuid.NameSpaceURL, []byte(strings.TrimSpace(url)+":"+secret))
	return strings.ReplaceAll(id.String(), "-", "")
}

const maxLogSize = 64 << 10

// AppendLog 追加一行带时间戳的操作日志，只保留最近的部分
func (f *Feed) AppendLog(now time.Time, format string, args ...any) {
	line := fmt.Sprintf("[%s] %s\n", now.UTC().Format("2006-01-02 15:04:05"), fmt.Sprintf(format, args...))
	f.Log += line
	if len(f.Log) > maxLogSize {
		cut := len(f.Log) - maxLogSize
		if i := strings.IndexByte(f.Log[cut:], '\n'); i >= 0 {
			cut += i + 1
		}
		f.Log = f.Log[cut:]
	}
}

// Validate 检查枚举字段
func (f *Feed) Validate() error {
	if strings.TrimSpace(f.URL) == "" {
		return fmt.Errorf("feed url is empty")
	}
	if !f.TargetLanguage.Valid() {
		return fmt.Errorf("unsupported target language %q", f.TargetLanguage)
	}
	if !f.RefreshBucket.Valid() {
		return fmt.Errorf("unsupported refresh bucket %d", f.RefreshBucket)
	}
	if !f.DisplayMode.Valid() {
		return fmt.Errorf("unsupported display mode %d", f.DisplayMode)
	}
	if f.SummaryDetail < 0 || f.SummaryDetail > 1 {
		return fmt.Errorf("summary detail %.2f out of range [0,1]", f.SummaryDetail)
	}
	if f.MaxPosts <= 0 {
		return fmt.Errorf("max posts must be positive")
	}
	return nil
}

// ResetTranslations 显式重置：清空计数器，译文由调用方清空
func (f *Feed) ResetTranslations() {
	f.TotalTokens = 0
	f.TotalCharacters = 0
	f.TranslationStatus = nil
	f.SummaryStatus = nil
}

// Bool 返回指针，便于设置阶段状态
func Bool(v bool) *bool { return &v }
