package model

import (
	"time"

	"gorm.io/gorm"
)

// Shop 商铺信息，热点读走缓存（逻辑过期策略）。
type Shop struct {
	ID        int64          `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`

	Name     string `gorm:"size:128;not null" json:"name"`
	Address  string `gorm:"size:255" json:"address"`
	AvgPrice int64  `json:"avg_price"` // 单位：分
	Sold     int64  `json:"sold"`
	Score    int64  `json:"score"` // 评分 * 10，如 45 表示 4.5 分
}

func (Shop) TableName() string { return "shops" }
