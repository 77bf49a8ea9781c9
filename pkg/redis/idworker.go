package redis

import (
	"context"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
)

const (
	// idEpochSecond：ID 的起始时间戳 2022-01-01 00:00:00 UTC。
	idEpochSecond int64 = 1640995200
	// countBits：序列号占低 32 位，高位留给相对时间戳，保证 ID 大致按时间递增。
	countBits = 32
)

// IDWorker 生成全局唯一、趋势递增的 64 位 ID。
// 序列号按「业务前缀 + 当天日期」自增：key 带日期既方便按天统计，
// 也避免单 key 无限增长最终溢出 32 位挤占时间戳位。
type IDWorker struct {
	rdb *rd.Client
}

func NewIDWorker(rdb *rd.Client) *IDWorker {
	return &IDWorker{rdb: rdb}
}

// NextID 返回下一个 ID。Redis 不可用时直接报错，不做本地退路——
// 离开原子自增无法保证唯一性。
func (w *IDWorker) NextID(ctx context.Context, prefix string) (int64, error) {
	now := time.Now().UTC()
	timestamp := now.Unix() - idEpochSecond

	key := fmt.Sprintf("icr:%s:%s", prefix, now.Format("2006:01:02"))
	count, err := w.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("id worker incr %s: %w", key, err)
	}

	return timestamp<<countBits | count, nil
}
