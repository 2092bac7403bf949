package model

import (
	"encoding/json"
	"time"
)

// EngineConfig 一个已配置的翻译/摘要服务实例，Kind 决定具体实现
type EngineConfig struct {
	ID       uint   `gorm:"primaryKey" json:"id"`
	Name     string `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Kind     string `gorm:"size:50;not null" json:"kind"`
	Settings string `gorm:"type:text" json:"settings"`
	// 仅由显式的校验操作写入
	Valid *bool `json:"valid"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Decode 将 Settings JSON 解码到具体实现的配置结构
func (c *EngineConfig) Decode(v any) error {
	if c.Settings == "" {
		return nil
	}
	return json.Unmarshal([]byte(c.Settings), v)
}

// Encode 写入 Settings
func (c *EngineConfig) Encode(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.Settings = string(data)
	return nil
}
