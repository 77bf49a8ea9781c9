package seckill

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"hmdp-go/internal/model"
	rediskey "hmdp-go/pkg/redis"
)

func setupService(t *testing.T) (*OrderService, *gorm.DB, *Worker) {
	t.Helper()
	rdb := newTestRedis(t)
	db := newTestDB(t)
	cache := rediskey.NewClient(rdb)
	gate := NewAdmissionGate(rdb, testStream)
	svc := NewOrderService(db, cache, rediskey.NewIDWorker(rdb), gate)
	worker := newTestWorker(t, rdb, db)
	return svc, db, worker
}

// seedSeckill 同时把券写进 DB、库存预热进 Redis。
func seedSeckill(t *testing.T, db *gorm.DB, w *Worker, voucherID, stock int64) {
	t.Helper()
	seedVoucher(t, db, voucherID, stock)
	seedStock(t, w.rdb, voucherID, stock)
}

func TestSeckillHappyPath(t *testing.T) {
	svc, db, w := setupService(t)
	seedSeckill(t, db, w, 7, 10)
	ctx := context.Background()

	orderID, err := svc.Seckill(ctx, 7, 1001)
	require.NoError(t, err)
	assert.Greater(t, orderID, int64(0))

	// 准入即返回订单号；行由 Worker 异步落库
	assert.Zero(t, countOrders(t, db, 1001, 7))

	msgs, err := w.readGroup(ctx, ">", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	require.NoError(t, w.handle(ctx, msgs[0]))

	assert.EqualValues(t, 1, countOrders(t, db, 1001, 7))
	var order model.VoucherOrder
	require.NoError(t, db.First(&order, orderID).Error)
	assert.EqualValues(t, 1001, order.UserID)
}

func TestSeckillVoucherNotFound(t *testing.T) {
	svc, _, _ := setupService(t)
	_, err := svc.Seckill(context.Background(), 404, 1001)
	assert.ErrorIs(t, err, ErrVoucherNotFound)
}

func TestSeckillTimeWindow(t *testing.T) {
	svc, db, w := setupService(t)
	ctx := context.Background()

	require.NoError(t, db.Create(&model.SeckillVoucher{
		ID: 1, Title: "未开始", PayValue: 100, Stock: 10,
		BeginTime: time.Now().Add(time.Hour),
		EndTime:   time.Now().Add(2 * time.Hour),
	}).Error)
	require.NoError(t, db.Create(&model.SeckillVoucher{
		ID: 2, Title: "已结束", PayValue: 100, Stock: 10,
		BeginTime: time.Now().Add(-2 * time.Hour),
		EndTime:   time.Now().Add(-time.Hour),
	}).Error)
	seedStock(t, w.rdb, 1, 10)
	seedStock(t, w.rdb, 2, 10)

	_, err := svc.Seckill(ctx, 1, 1001)
	assert.ErrorIs(t, err, ErrSeckillNotStarted)

	_, err = svc.Seckill(ctx, 2, 1001)
	assert.ErrorIs(t, err, ErrSeckillEnded)
}

func TestSeckillDuplicateUser(t *testing.T) {
	svc, db, w := setupService(t)
	seedSeckill(t, db, w, 7, 10)
	ctx := context.Background()

	_, err := svc.Seckill(ctx, 7, 1001)
	require.NoError(t, err)

	_, err = svc.Seckill(ctx, 7, 1001)
	assert.ErrorIs(t, err, ErrDuplicateOrder)
}

func TestSeckillOutOfStock(t *testing.T) {
	svc, db, w := setupService(t)
	seedSeckill(t, db, w, 7, 1)
	ctx := context.Background()

	_, err := svc.Seckill(ctx, 7, 1001)
	require.NoError(t, err)

	_, err = svc.Seckill(ctx, 7, 1002)
	assert.ErrorIs(t, err, ErrOutOfStock)
}

// 端到端：库存 1、两个用户——一个拿到订单号，另一个库存不足；
// 队列里恰好一条意向，Worker 消费后恰好一行订单。
func TestSeckillEndToEndStockOne(t *testing.T) {
	svc, db, w := setupService(t)
	seedSeckill(t, db, w, 7, 1)
	ctx := context.Background()

	id1, err1 := svc.Seckill(ctx, 7, 101)
	id2, err2 := svc.Seckill(ctx, 7, 102)

	var winner int64
	switch {
	case err1 == nil && err2 != nil:
		assert.ErrorIs(t, err2, ErrOutOfStock)
		winner = 101
		assert.Greater(t, id1, int64(0))
	case err2 == nil && err1 != nil:
		assert.ErrorIs(t, err1, ErrOutOfStock)
		winner = 102
		assert.Greater(t, id2, int64(0))
	default:
		t.Fatalf("exactly one must win: err1=%v err2=%v", err1, err2)
	}

	msgs, err := w.readGroup(ctx, ">", 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1, "one intent in the queue")
	require.NoError(t, w.handle(ctx, msgs[0]))

	var n int64
	require.NoError(t, db.Model(&model.VoucherOrder{}).Count(&n).Error)
	assert.EqualValues(t, 1, n, "one order row")
	assert.EqualValues(t, 1, countOrders(t, db, winner, 7))
}

// 券元数据走旁路缓存：首次回源后写缓存，删掉 DB 行也照样命中。
func TestSeckillVoucherMetadataCached(t *testing.T) {
	svc, db, w := setupService(t)
	seedSeckill(t, db, w, 7, 10)
	ctx := context.Background()

	v, err := svc.Voucher(ctx, 7)
	require.NoError(t, err)
	require.NotNil(t, v)

	// 元数据已在缓存里，DB 不再被读
	require.NoError(t, db.Unscoped().Delete(&model.SeckillVoucher{}, 7).Error)
	v, err = svc.Voucher(ctx, 7)
	require.NoError(t, err)
	assert.NotNil(t, v, "metadata read served from cache")
}
