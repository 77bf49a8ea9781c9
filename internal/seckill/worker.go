package seckill

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	rd "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"hmdp-go/internal/model"
	"hmdp-go/internal/queue"
	rediskey "hmdp-go/pkg/redis"
)

const (
	// 落单兜底锁 TTL：覆盖一次事务绰绰有余，持有者崩溃也能自动解锁。
	orderLockTTL = 10 * time.Second
	// 主循环阻塞读的等待上界。
	pollBlock = 2 * time.Second
	// 读取/处理出错后的退避。
	retryDelay = 200 * time.Millisecond
)

// Worker 消费订单消息流，异步完成落单。
// 消费组语义保证每条意向只投递给组内一个消费者，且必须显式 ACK；
// 处理中途崩溃的消息留在 pending-list，恢复流程会重放直到处理完。
type Worker struct {
	rdb      *rd.Client
	db       *gorm.DB
	producer *queue.Producer // 可为 nil：不外发订单事件

	stream   string
	group    string
	consumer string
}

func NewWorker(rdb *rd.Client, db *gorm.DB, producer *queue.Producer, stream, group, consumer string) *Worker {
	return &Worker{
		rdb:      rdb,
		db:       db,
		producer: producer,
		stream:   stream,
		group:    group,
		consumer: consumer,
	}
}

// Run 阻塞运行消费循环，直到 ctx 取消。
// 启动时先清一遍自己的 pending-list：上次崩溃留下的未确认消息
// 代表可能丢失的成交，必须先于新消息处理。
func (w *Worker) Run(ctx context.Context) {
	if err := w.ensureGroup(ctx); err != nil {
		log.Error().Err(err).Str("stream", w.stream).Msg("worker ensure group")
		return
	}

	w.recoverPending(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := w.readGroup(ctx, ">", pollBlock)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Msg("worker read stream")
			time.Sleep(retryDelay)
			continue
		}

		for _, xm := range msgs {
			if err := w.handle(ctx, xm); err != nil {
				// 处理失败的消息未 ACK，留在 pending-list，转入恢复流程
				log.Error().Err(err).Str("id", xm.ID).Msg("worker handle message")
				w.recoverPending(ctx)
				break
			}
		}
	}
}

// recoverPending 从头重放本消费者 pending-list 中的所有未确认消息。
// 处理出错只退避后重试，绝不放弃：未确认的意向迟早要有结论。
func (w *Worker) recoverPending(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := w.readGroup(ctx, "0", 0)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			log.Error().Err(err).Msg("worker read pending")
			time.Sleep(retryDelay)
			continue
		}
		if len(msgs) == 0 {
			return
		}

		for _, xm := range msgs {
			if err := w.handle(ctx, xm); err != nil {
				log.Error().Err(err).Str("id", xm.ID).Msg("worker recover message")
				time.Sleep(retryDelay)
				break
			}
		}
	}
}

// handle 处理一条消息并 ACK。脏消息直接 ACK 丢弃，避免阻塞队列。
func (w *Worker) handle(ctx context.Context, xm rd.XMessage) error {
	intent, err := parseOrderIntent(xm.Values)
	if err != nil {
		log.Warn().Err(err).Str("id", xm.ID).Msg("worker drop malformed message")
		return w.ack(ctx, xm.ID)
	}
	if err := w.fulfill(ctx, intent); err != nil {
		return err
	}
	return w.ack(ctx, xm.ID)
}

// fulfill 按用户加兜底锁后幂等落单。
// 准入脚本已保证一人一单，这里拿不到锁只可能是同一用户的重复投递
// 正在被别的消费者处理，放弃本条即可，不是正确性问题。
func (w *Worker) fulfill(ctx context.Context, intent OrderIntent) error {
	lock := rediskey.NewLock(w.rdb, rediskey.OrderLockKey(intent.UserID))
	ok, err := lock.TryLock(ctx, orderLockTTL)
	if err != nil {
		return fmt.Errorf("order lock: %w", err)
	}
	if !ok {
		log.Warn().Int64("user_id", intent.UserID).Int64("voucher_id", intent.VoucherID).
			Msg("worker skip: user order in flight")
		return nil
	}
	defer func() {
		if err := lock.Unlock(ctx); err != nil {
			log.Warn().Err(err).Int64("user_id", intent.UserID).Msg("worker unlock failed")
		}
	}()

	return w.createVoucherOrder(ctx, intent)
}

// createVoucherOrder 在单个事务里完成：一人一单复查、DB 库存扣减、插入订单。
// 复查命中（消息重投）按成功处理。库存在准入时已原子扣过，
// 这里的 stock > 0 条件只是 DB 侧的同款保险，理论上不可能拦下消息。
func (w *Worker) createVoucherOrder(ctx context.Context, intent OrderIntent) error {
	var created bool
	err := w.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.VoucherOrder{}).
			Where("user_id = ? AND voucher_id = ?", intent.UserID, intent.VoucherID).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			// 幂等守卫命中：重投消息，当作已处理
			log.Warn().Int64("user_id", intent.UserID).Int64("voucher_id", intent.VoucherID).
				Msg("worker skip: order already exists")
			return nil
		}

		res := tx.Model(&model.SeckillVoucher{}).
			Where("id = ? AND stock > 0", intent.VoucherID).
			UpdateColumn("stock", gorm.Expr("stock - 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			log.Error().Int64("voucher_id", intent.VoucherID).
				Msg("worker: db stock exhausted for admitted intent")
			return nil
		}

		if err := tx.Create(&model.VoucherOrder{
			ID:        intent.OrderID,
			UserID:    intent.UserID,
			VoucherID: intent.VoucherID,
		}).Error; err != nil {
			// 唯一约束兜底：并发重投挤过了复查窗口，也当作成功
			if errorsLikeUnique(err) {
				return nil
			}
			return err
		}
		created = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("create voucher order: %w", err)
	}

	if created && w.producer != nil {
		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		evt := queue.OrderCreatedEvent{
			OrderID:   intent.OrderID,
			UserID:    intent.UserID,
			VoucherID: intent.VoucherID,
			CreatedAt: time.Now(),
		}
		// 事件外发尽力而为，失败不影响 ACK
		if err := w.producer.Publish(pubCtx, evt); err != nil {
			log.Error().Err(err).Int64("order_id", intent.OrderID).Msg("worker publish order event")
		}
	}
	return nil
}

func (w *Worker) ensureGroup(ctx context.Context) error {
	err := w.rdb.XGroupCreateMkStream(ctx, w.stream, w.group, "0").Err()
	if err == nil {
		return nil
	}
	if strings.Contains(err.Error(), "BUSYGROUP") {
		return nil
	}
	return err
}

func (w *Worker) readGroup(ctx context.Context, streamID string, block time.Duration) ([]rd.XMessage, error) {
	streams, err := w.rdb.XReadGroup(ctx, &rd.XReadGroupArgs{
		Group:    w.group,
		Consumer: w.consumer,
		Streams:  []string{w.stream, streamID},
		Count:    16,
		Block:    block,
		NoAck:    false,
	}).Result()
	if err != nil {
		if errors.Is(err, rd.Nil) {
			return nil, nil
		}
		return nil, err
	}
	out := make([]rd.XMessage, 0, 16)
	for _, s := range streams {
		out = append(out, s.Messages...)
	}
	return out, nil
}

func (w *Worker) ack(ctx context.Context, id string) error {
	return w.rdb.XAck(ctx, w.stream, w.group, id).Err()
}

func errorsLikeUnique(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE") || strings.Contains(s, "unique")
}
