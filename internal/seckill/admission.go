package seckill

import (
	"context"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"

	rediskey "hmdp-go/pkg/redis"
)

// AdmissionResult 是准入判定的三种结局。
type AdmissionResult int

const (
	Admitted AdmissionResult = iota
	OutOfStock
	DuplicatePurchase
)

// luaAdmit：库存判定、一人一单判定、扣减、入队，一次往返内原子完成。
// 并发请求间唯一的串行化点就是这段脚本，进程内不需要任何锁。
// KEYS[1]=库存key KEYS[2]=下单用户集合key KEYS[3]=订单消息流key
// ARGV[1]=voucherId ARGV[2]=userId ARGV[3]=orderId ARGV[4]=用户集合TTL秒
// 返回：0 成功入队，1 库存不足，2 重复下单
const luaAdmit = `
local stockKey = KEYS[1]
local orderSetKey = KEYS[2]
local streamKey = KEYS[3]
local voucherId = ARGV[1]
local userId = ARGV[2]
local orderId = ARGV[3]
local setTTL = tonumber(ARGV[4])

if (tonumber(redis.call('GET', stockKey) or '0') <= 0) then
  return 1
end
if (redis.call('SISMEMBER', orderSetKey, userId) == 1) then
  return 2
end

redis.call('INCRBY', stockKey, -1)
redis.call('SADD', orderSetKey, userId)
if (setTTL > 0) then
  redis.call('EXPIRE', orderSetKey, setTTL)
end
redis.call('XADD', streamKey, '*',
  'order_id', orderId, 'user_id', userId, 'voucher_id', voucherId)
return 0
`

// AdmissionGate 执行秒杀准入。时间窗校验由调用方基于缓存的券元数据完成，
// 不进原子单元——时间窗几乎不变，不需要同等的一致性保障。
type AdmissionGate struct {
	rdb    *rd.Client
	stream string
}

func NewAdmissionGate(rdb *rd.Client, stream string) *AdmissionGate {
	return &AdmissionGate{rdb: rdb, stream: stream}
}

// Admit 原子判定并登记一次购买意向。成功时意向已在消息流中等待异步落单。
// setTTL 控制下单用户集合随活动窗口过期，传 0 表示不过期。
func (g *AdmissionGate) Admit(ctx context.Context, voucherID, userID, orderID int64, setTTL time.Duration) (AdmissionResult, error) {
	keys := []string{
		rediskey.StockKey(voucherID),
		rediskey.OrderSetKey(voucherID),
		g.stream,
	}
	res, err := g.rdb.Eval(ctx, luaAdmit, keys,
		voucherID, userID, orderID, int64(setTTL/time.Second)).Int()
	if err != nil {
		return 0, fmt.Errorf("seckill admit script: %w", err)
	}

	switch res {
	case 0:
		return Admitted, nil
	case 1:
		return OutOfStock, nil
	case 2:
		return DuplicatePurchase, nil
	default:
		return 0, fmt.Errorf("seckill admit script: unexpected result %d", res)
	}
}
