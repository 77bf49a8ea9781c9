package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
type AppConfig struct {
	HTTPAddr string
	DBPath   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// 订单消息流（Redis Stream 消费组）
	OrderStream   string
	OrderGroup    string
	OrderConsumer string

	// Kafka 订单事件外发（留空 broker 则关闭外发）
	KafkaBrokers []string
	KafkaTopic   string

	// 秒杀接口限流
	BuyRateLimit  int
	BuyRateWindow time.Duration

	// 商铺缓存逻辑过期窗口
	ShopCacheWindow time.Duration

	// 管理接口的简单令牌（demo 级别保护）
	AdminToken string
}

// Load 读取并校验配置，缺失时使用默认值。
// 工作目录下存在 .env 时先行加载（不覆盖已有环境变量）。
func Load() (AppConfig, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return AppConfig{}, fmt.Errorf("load .env: %w", err)
		}
	}

	cfg := AppConfig{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		DBPath:          getEnv("DB_PATH", "hmdp.db"),
		RedisAddr:       getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		RedisDB:         0,
		OrderStream:     getEnv("ORDER_STREAM", "stream.orders"),
		OrderGroup:      getEnv("ORDER_GROUP", "g1"),
		OrderConsumer:   getEnv("ORDER_CONSUMER", "c1"),
		KafkaBrokers:    splitCSV(getEnv("KAFKA_BROKERS", "")),
		KafkaTopic:      getEnv("KAFKA_TOPIC", "hmdp-order-events"),
		BuyRateLimit:    200,
		BuyRateWindow:   time.Second,
		ShopCacheWindow: 30 * time.Minute,
		AdminToken:      getEnv("ADMIN_TOKEN", "dev-admin-token"),
	}

	redisDB, err := getEnvInt("REDIS_DB", cfg.RedisDB)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	cfg.RedisDB = redisDB

	rateLimit, err := getEnvInt("BUY_RATE_LIMIT", cfg.BuyRateLimit)
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid BUY_RATE_LIMIT: %w", err)
	}
	if rateLimit <= 0 {
		return AppConfig{}, fmt.Errorf("BUY_RATE_LIMIT must be > 0")
	}
	cfg.BuyRateLimit = rateLimit

	rateWindowSec, err := getEnvInt("BUY_RATE_WINDOW_SEC", int(cfg.BuyRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid BUY_RATE_WINDOW_SEC: %w", err)
	}
	if rateWindowSec <= 0 {
		return AppConfig{}, fmt.Errorf("BUY_RATE_WINDOW_SEC must be > 0")
	}
	cfg.BuyRateWindow = time.Duration(rateWindowSec) * time.Second

	shopWindowMin, err := getEnvInt("SHOP_CACHE_WINDOW_MIN", int(cfg.ShopCacheWindow.Minutes()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid SHOP_CACHE_WINDOW_MIN: %w", err)
	}
	if shopWindowMin <= 0 {
		return AppConfig{}, fmt.Errorf("SHOP_CACHE_WINDOW_MIN must be > 0")
	}
	cfg.ShopCacheWindow = time.Duration(shopWindowMin) * time.Minute

	if cfg.OrderStream == "" {
		return AppConfig{}, fmt.Errorf("ORDER_STREAM must not be empty")
	}
	if cfg.OrderGroup == "" {
		return AppConfig{}, fmt.Errorf("ORDER_GROUP must not be empty")
	}
	if cfg.OrderConsumer == "" {
		return AppConfig{}, fmt.Errorf("ORDER_CONSUMER must not be empty")
	}
	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaTopic == "" {
		return AppConfig{}, fmt.Errorf("KAFKA_TOPIC must not be empty when brokers are set")
	}

	return cfg, nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
