package model

import "time"

// Entry 订阅源中的一条内容，(FeedID, GUID) 唯一
type Entry struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	FeedID uint   `gorm:"not null;uniqueIndex:idx_entry_feed_guid" json:"feed_id"`
	GUID   string `gorm:"size:512;not null;uniqueIndex:idx_entry_feed_guid" json:"guid"`
	Link   string `gorm:"size:1024" json:"link"`
	Author string `gorm:"size:255" json:"author"`

	Published time.Time `gorm:"index" json:"published"`

	OriginalTitle   string `gorm:"type:text" json:"original_title"`
	OriginalContent string `gorm:"type:text" json:"original_content"`
	OriginalSummary string `gorm:"type:text" json:"original_summary"`

	TranslatedTitle   string `gorm:"type:text" json:"translated_title"`
	TranslatedContent string `gorm:"type:text" json:"translated_content"`
	AISummary         string `gorm:"column:ai_summary;type:text" json:"ai_summary"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Merge 用新抓取的原文更新已有条目；原文变化时清空对应译文
func (e *Entry) Merge(fresh Entry) {
	if fresh.OriginalTitle != e.OriginalTitle {
		e.TranslatedTitle = ""
	}
	if fresh.OriginalContent != e.OriginalContent {
		e.TranslatedContent = ""
		e.AISummary = ""
	}
	e.Link = fresh.Link
	e.Author = fresh.Author
	e.Published = fresh.Published
	e.OriginalTitle = fresh.OriginalTitle
	e.OriginalContent = fresh.OriginalContent
	e.OriginalSummary = fresh.OriginalSummary
}

// ClearTranslations 清空译文和摘要
func (e *Entry) ClearTranslations() {
	e.TranslatedTitle = ""
	e.TranslatedContent = ""
	e.AISummary = ""
}

// DisplayTitle 发布时使用的标题
func (e *Entry) DisplayTitle() string {
	if e.TranslatedTitle != "" {
		return e.TranslatedTitle
	}
	return e.OriginalTitle
}

// DisplayContent 发布时使用的正文
func (e *Entry) DisplayContent() string {
	if e.TranslatedContent != "" {
		return e.TranslatedContent
	}
	return e.OriginalContent
}
