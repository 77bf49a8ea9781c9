package redis

import (
	"context"
	"time"

	"github.com/google/uuid"
	rd "github.com/redis/go-redis/v9"
)

// luaReleaseLockIfMatch 仅当锁值与持有者令牌匹配时才删除，
// 避免锁超时被他人接手后，原持有者误删新锁。
const luaReleaseLockIfMatch = `
local lockKey = KEYS[1]
local token = ARGV[1]
if redis.call('GET', lockKey) == token then
  return redis.call('DEL', lockKey)
end
return 0
`

// Lock 基于 SETNX + TTL 的分布式互斥锁。
// 这是尽力而为的互斥：持有期间锁可能因 TTL 先行过期（慢 I/O 等），
// 下游还有数据库唯一约束兜底，锁只负责挡掉绝大多数并发。
type Lock struct {
	rdb   *rd.Client
	key   string
	token string
}

// NewLock 创建一把命名锁，持有者令牌随机生成。
func NewLock(rdb *rd.Client, key string) *Lock {
	return &Lock{
		rdb:   rdb,
		key:   key,
		token: uuid.New().String(),
	}
}

// TryLock 非阻塞获取。已被持有返回 false，不排队、不报错。
func (l *Lock) TryLock(ctx context.Context, ttl time.Duration) (bool, error) {
	return l.rdb.SetNX(ctx, l.key, l.token, ttl).Result()
}

// Unlock 释放锁。令牌不匹配（锁已过期易主）时是空操作。
func (l *Lock) Unlock(ctx context.Context) error {
	return l.rdb.Eval(ctx, luaReleaseLockIfMatch, []string{l.key}, l.token).Err()
}
