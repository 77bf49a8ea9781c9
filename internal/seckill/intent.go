package seckill

import (
	"fmt"
	"strconv"
)

// OrderIntent 是通过准入后写入消息流的购买意向，
// 只存在于准入与落单之间。userId 显式携带在载荷里：
// Worker 不在请求上下文中运行，取不到任何请求级状态。
type OrderIntent struct {
	OrderID   int64
	UserID    int64
	VoucherID int64
}

// Validate 做最小字段校验，防止消费端处理脏消息。
func (i OrderIntent) Validate() error {
	if i.OrderID <= 0 {
		return fmt.Errorf("order_id is required")
	}
	if i.UserID <= 0 {
		return fmt.Errorf("user_id is required")
	}
	if i.VoucherID <= 0 {
		return fmt.Errorf("voucher_id is required")
	}
	return nil
}

func parseOrderIntent(values map[string]interface{}) (OrderIntent, error) {
	orderID, err := getStreamInt64(values, "order_id")
	if err != nil {
		return OrderIntent{}, err
	}
	userID, err := getStreamInt64(values, "user_id")
	if err != nil {
		return OrderIntent{}, err
	}
	voucherID, err := getStreamInt64(values, "voucher_id")
	if err != nil {
		return OrderIntent{}, err
	}

	intent := OrderIntent{
		OrderID:   orderID,
		UserID:    userID,
		VoucherID: voucherID,
	}
	if err := intent.Validate(); err != nil {
		return OrderIntent{}, err
	}
	return intent, nil
}

func getStreamInt64(values map[string]interface{}, key string) (int64, error) {
	v, ok := values[key]
	if !ok {
		return 0, fmt.Errorf("missing field %s", key)
	}
	switch x := v.(type) {
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q", key, x)
		}
		return n, nil
	case []byte:
		n, err := strconv.ParseInt(string(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid %s %q", key, x)
		}
		return n, nil
	case int64:
		return x, nil
	case float64:
		return int64(x), nil
	default:
		return 0, fmt.Errorf("unsupported field type %s: %T", key, v)
	}
}
