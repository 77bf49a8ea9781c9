package redis

import "fmt"

// StockKey 统一约定秒杀券库存键名。
func StockKey(voucherID int64) string {
	return fmt.Sprintf("seckill:stock:%d", voucherID)
}

// OrderSetKey 记录某张券下已下单用户的集合（一人一单的 Redis 侧判定）。
func OrderSetKey(voucherID int64) string {
	return fmt.Sprintf("seckill:order:%d", voucherID)
}

// VoucherKey 秒杀券元数据缓存（旁路缓存 + 空值防穿透）。
func VoucherKey(voucherID int64) string {
	return fmt.Sprintf("cache:voucher:%d", voucherID)
}

// ShopKey 商铺缓存（逻辑过期策略）。
func ShopKey(shopID int64) string {
	return fmt.Sprintf("cache:shop:%d", shopID)
}

// CacheLockKey 缓存重建互斥锁，和被重建的逻辑键一一对应。
func CacheLockKey(key string) string {
	return "lock:cache:" + key
}

// OrderLockKey 异步落单时按用户加的兜底锁。
func OrderLockKey(userID int64) string {
	return fmt.Sprintf("lock:order:%d", userID)
}
