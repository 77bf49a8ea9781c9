package model

import (
	"time"
)

// VoucherOrder 秒杀订单。
// ID 由全局 ID 生成器产出（时间戳<<32 | 当日序列号），不走自增。
// (user_id, voucher_id) 的联合唯一索引是一人一单的最终兜底：
// 无论消息被重投多少次，数据库层面都只可能存在一行。
type VoucherOrder struct {
	ID        int64     `gorm:"primarykey;autoIncrement:false" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	UserID    int64 `gorm:"not null;uniqueIndex:uk_user_voucher" json:"user_id"`
	VoucherID int64 `gorm:"not null;uniqueIndex:uk_user_voucher;index" json:"voucher_id"`
}

func (VoucherOrder) TableName() string { return "voucher_orders" }
