package queue

import (
	"fmt"
	"time"
)

// OrderCreatedEvent 是订单落库成功后外发给下游（通知、对账等）的事件。
type OrderCreatedEvent struct {
	OrderID   int64     `json:"order_id"`
	UserID    int64     `json:"user_id"`
	VoucherID int64     `json:"voucher_id"`
	CreatedAt time.Time `json:"created_at"`
}

// Validate 做最小字段校验。
func (e OrderCreatedEvent) Validate() error {
	if e.OrderID <= 0 {
		return fmt.Errorf("order_id is required")
	}
	if e.UserID <= 0 {
		return fmt.Errorf("user_id is required")
	}
	if e.VoucherID <= 0 {
		return fmt.Errorf("voucher_id is required")
	}
	return nil
}
