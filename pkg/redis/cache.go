package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	rd "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const (
	// 空值墓碑的 TTL，远短于正常数据，防穿透的同时不长期挡住真实数据。
	nullTTL = 2 * time.Minute
	// 缓存重建互斥锁 TTL 与后台重建的超时上界。
	cacheLockTTL   = 10 * time.Second
	rebuildTimeout = 10 * time.Second
)

// redisData 是逻辑过期条目的包装：物理上永不过期，
// 过期与否只看内嵌的 expire_at。
type redisData struct {
	ExpireAt time.Time       `json:"expire_at"`
	Data     json.RawMessage `json:"data"`
}

// Client 旁路缓存客户端：
// - Set / QueryPassThrough：物理 TTL + 空值墓碑，解决缓存穿透
// - SetWithLogicalExpire / QueryLogicalExpire：逻辑过期 + 重建互斥，解决缓存击穿
type Client struct {
	rdb *rd.Client
}

func NewClient(rdb *rd.Client) *Client {
	return &Client{rdb: rdb}
}

// Set 序列化后写入，带物理 TTL。
func (c *Client) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	b, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, b, ttl).Err()
}

// SetWithLogicalExpire 写入逻辑过期条目，物理 TTL 为 0（永不过期）。
func (c *Client) SetWithLogicalExpire(ctx context.Context, key string, value any, window time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal %s: %w", key, err)
	}
	wrapper, err := json.Marshal(redisData{
		ExpireAt: time.Now().Add(window),
		Data:     data,
	})
	if err != nil {
		return fmt.Errorf("cache marshal wrapper %s: %w", key, err)
	}
	return c.rdb.Set(ctx, key, wrapper, 0).Err()
}

// QueryPassThrough 旁路缓存读：未命中则同步回源，回源结果（包括「不存在」）
// 都会写回缓存。loader 返回 (nil, nil) 表示数据不存在，此时缓存空字符串墓碑，
// 墓碑 TTL 内的再次查询不会再打到底层存储。
// 该策略对穿透有效，对热点 key 过期瞬间的击穿无能为力。
func QueryPassThrough[T any](ctx context.Context, c *Client, key string, ttl time.Duration, loader func(context.Context) (*T, error)) (*T, error) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if err == nil {
		// 命中墓碑：数据确认不存在，直接拦截
		if raw == "" {
			return nil, nil
		}
		var v T
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			return nil, fmt.Errorf("cache unmarshal %s: %w", key, err)
		}
		return &v, nil
	}
	if !errors.Is(err, rd.Nil) {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}

	// 未命中，回源
	v, err := loader(ctx)
	if err != nil {
		return nil, err
	}
	if v == nil {
		if err := c.rdb.Set(ctx, key, "", nullTTL).Err(); err != nil {
			return nil, fmt.Errorf("cache set null %s: %w", key, err)
		}
		return nil, nil
	}
	if err := c.Set(ctx, key, v, ttl); err != nil {
		return nil, err
	}
	return v, nil
}

// QueryLogicalExpire 逻辑过期读：条目需要预热，完全未命中直接返回 nil，
// 绝不同步回源。命中后若未过期返回数据；已过期则抢重建锁，
// 抢到的去后台异步重建，没抢到的什么也不做——两种情况都立刻返回旧值。
// 全局同一时刻每个 key 至多一个重建任务，调用方永不阻塞等待重建。
func QueryLogicalExpire[T any](ctx context.Context, c *Client, key string, window time.Duration, loader func(context.Context) (*T, error)) (*T, error) {
	raw, err := c.rdb.Get(ctx, key).Result()
	if errors.Is(err, rd.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}

	var wrapper redisData
	if err := json.Unmarshal([]byte(raw), &wrapper); err != nil {
		return nil, fmt.Errorf("cache unmarshal wrapper %s: %w", key, err)
	}
	var v T
	if err := json.Unmarshal(wrapper.Data, &v); err != nil {
		return nil, fmt.Errorf("cache unmarshal %s: %w", key, err)
	}
	if time.Now().Before(wrapper.ExpireAt) {
		return &v, nil
	}

	// 已过期：尝试拿重建锁，拿到才起后台重建
	lock := NewLock(c.rdb, CacheLockKey(key))
	ok, err := lock.TryLock(ctx, cacheLockTTL)
	if err != nil {
		// 锁服务异常不影响本次读，旧值照常返回
		log.Warn().Err(err).Str("key", key).Msg("cache rebuild lock failed")
		return &v, nil
	}
	if ok {
		go func() {
			// 请求上下文随响应结束取消，重建用独立的有界上下文
			rctx, cancel := context.WithTimeout(context.Background(), rebuildTimeout)
			defer cancel()
			defer func() {
				if err := lock.Unlock(rctx); err != nil {
					log.Warn().Err(err).Str("key", key).Msg("cache rebuild unlock failed")
				}
			}()

			fresh, err := loader(rctx)
			if err != nil {
				log.Error().Err(err).Str("key", key).Msg("cache rebuild load failed")
				return
			}
			if fresh == nil {
				// 源头数据已不存在，保留旧条目等待删除流程，不写 null
				log.Warn().Str("key", key).Msg("cache rebuild: source gone")
				return
			}
			if err := c.SetWithLogicalExpire(rctx, key, fresh, window); err != nil {
				log.Error().Err(err).Str("key", key).Msg("cache rebuild write failed")
			}
		}()
	}

	// 无论是否抢到锁，当前（可能已过期的）值立即返回
	return &v, nil
}
