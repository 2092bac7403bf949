package model

import "time"

// CacheKind 区分翻译和摘要缓存
type CacheKind string

const (
	KindTranslation CacheKind = "translation"
	KindSummary     CacheKind = "summary"
)

// CacheEntry 一次服务调用的结果，按内容哈希寻址，写入后不再修改
type CacheEntry struct {
	Hash           string    `gorm:"primaryKey;size:64" json:"hash"`
	Kind           CacheKind `gorm:"primaryKey;size:16" json:"kind"`
	OriginalText   string    `gorm:"type:text" json:"original_text"`
	TargetLanguage Language  `gorm:"size:16" json:"target_language"`
	Text           string    `gorm:"type:text" json:"text"`
	Tokens         int       `json:"tokens"`
	Characters     int       `json:"characters"`
	CreatedAt      time.Time `json:"created_at"`
}
