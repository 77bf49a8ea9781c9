package seckill

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOrderIntent(t *testing.T) {
	intent, err := parseOrderIntent(map[string]interface{}{
		"order_id":   "555",
		"user_id":    "1001",
		"voucher_id": "7",
	})
	require.NoError(t, err)
	assert.Equal(t, OrderIntent{OrderID: 555, UserID: 1001, VoucherID: 7}, intent)
}

func TestParseOrderIntentRejectsBadPayload(t *testing.T) {
	// 依次：缺 order_id、非数字、零值、负 user、零券
	cases := []map[string]interface{}{
		{"user_id": "1001", "voucher_id": "7"},
		{"order_id": "x", "user_id": "1001", "voucher_id": "7"},
		{"order_id": "0", "user_id": "1001", "voucher_id": "7"},
		{"order_id": "555", "user_id": "-1", "voucher_id": "7"},
		{"order_id": "555", "user_id": "1001", "voucher_id": "0"},
	}
	for _, values := range cases {
		_, err := parseOrderIntent(values)
		assert.Error(t, err, "values=%v", values)
	}
}
