package seckill

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"hmdp-go/internal/model"
	rediskey "hmdp-go/pkg/redis"
)

const (
	// 券元数据的缓存 TTL。元数据读多写少，旁路缓存 + 空值防穿透即可。
	voucherCacheTTL = 30 * time.Minute
	// 下单用户集合在活动结束后的保留宽限，过后整 key 过期回收。
	orderSetGrace = 24 * time.Hour
)

// OrderService 是秒杀下单的请求侧入口。
// 请求在准入成功后立刻拿到订单号返回，落单由 Worker 异步完成——
// 这是显式的延迟换一致性取舍：客户端先看到订单号，行稍后才持久化。
type OrderService struct {
	db    *gorm.DB
	cache *rediskey.Client
	id    *rediskey.IDWorker
	gate  *AdmissionGate
}

func NewOrderService(db *gorm.DB, cache *rediskey.Client, id *rediskey.IDWorker, gate *AdmissionGate) *OrderService {
	return &OrderService{db: db, cache: cache, id: id, gate: gate}
}

// Seckill 执行一次秒杀下单：
// 1. 读券元数据（旁路缓存）并校验活动时间窗
// 2. 生成全局订单号
// 3. 原子准入（库存 + 一人一单 + 入队，单次往返）
// userId 全程显式传参，包括写进队列意向，Worker 侧不依赖任何请求级状态。
func (s *OrderService) Seckill(ctx context.Context, voucherID, userID int64) (int64, error) {
	v, err := s.Voucher(ctx, voucherID)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, ErrVoucherNotFound
	}

	now := time.Now()
	if now.Before(v.BeginTime) {
		return 0, ErrSeckillNotStarted
	}
	if now.After(v.EndTime) {
		return 0, ErrSeckillEnded
	}

	orderID, err := s.id.NextID(ctx, "order")
	if err != nil {
		return 0, err
	}

	// 一人一单集合随活动窗口过期，避免集合无限存留
	setTTL := time.Until(v.EndTime) + orderSetGrace
	res, err := s.gate.Admit(ctx, voucherID, userID, orderID, setTTL)
	if err != nil {
		return 0, err
	}
	switch res {
	case OutOfStock:
		return 0, ErrOutOfStock
	case DuplicatePurchase:
		return 0, ErrDuplicateOrder
	}
	return orderID, nil
}

// Voucher 读取券元数据，未命中回源 DB，不存在缓存空值墓碑。
func (s *OrderService) Voucher(ctx context.Context, voucherID int64) (*model.SeckillVoucher, error) {
	return rediskey.QueryPassThrough(ctx, s.cache, rediskey.VoucherKey(voucherID), voucherCacheTTL,
		func(ctx context.Context) (*model.SeckillVoucher, error) {
			var v model.SeckillVoucher
			if err := s.db.WithContext(ctx).First(&v, voucherID).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil, nil
				}
				return nil, err
			}
			return &v, nil
		})
}
