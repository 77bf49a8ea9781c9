package router

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"hmdp-go/internal/config"
	"hmdp-go/internal/middleware"
	"hmdp-go/internal/model"
	"hmdp-go/internal/seckill"
	rediskey "hmdp-go/pkg/redis"
)

// Setup 注册全部 HTTP 路由。路由层只做参数解析和结果映射，不承载业务。
func Setup(r *gin.Engine, db *gorm.DB, rdb *rd.Client, cache *rediskey.Client, orders *seckill.OrderService, cfg config.AppConfig) {
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "pong"})
	})

	// Vouchers
	r.POST("/api/vouchers", createVoucher(db, rdb, cfg.AdminToken))
	r.GET("/api/vouchers/:voucher_id", getVoucher(orders))

	// Seckill
	r.POST("/api/seckill", middleware.RedisRateLimit(rdb, cfg.BuyRateLimit, cfg.BuyRateWindow), buyVoucher(orders))
	r.GET("/api/orders/:order_id", getOrder(db))

	// Shops
	r.POST("/api/shops", createShop(db, cache, cfg.AdminToken, cfg.ShopCacheWindow))
	r.GET("/api/shops/:shop_id", getShop(db, cache, cfg.ShopCacheWindow))
}

// createVoucher 创建秒杀券并把库存预热进 Redis，供准入脚本原子扣减。
func createVoucher(db *gorm.DB, rdb *rd.Client, adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Admin-Token") != adminToken {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "admin token 无效"})
			return
		}

		var req struct {
			Title     string `json:"title" binding:"required"`
			PayValue  int64  `json:"pay_value" binding:"required,min=1"`
			Stock     int64  `json:"stock" binding:"required,min=1"`
			BeginTime string `json:"begin_time" binding:"required"`
			EndTime   string `json:"end_time" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		begin, err := time.Parse(time.RFC3339, req.BeginTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "begin_time 格式错误，请用 RFC3339"})
			return
		}
		end, err := time.Parse(time.RFC3339, req.EndTime)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "end_time 格式错误，请用 RFC3339"})
			return
		}
		if !end.After(begin) {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "end_time 必须晚于 begin_time"})
			return
		}

		v := &model.SeckillVoucher{
			Title:     req.Title,
			PayValue:  req.PayValue,
			Stock:     req.Stock,
			BeginTime: begin,
			EndTime:   end,
		}
		if err := db.Create(v).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}

		// 库存写入 Redis，TTL 覆盖到活动结束
		key := rediskey.StockKey(v.ID)
		ttl := time.Until(end)
		if err := rdb.Set(c.Request.Context(), key, v.Stock, ttl).Err(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": v})
	}
}

// getVoucher 查询券元数据，走旁路缓存（含空值防穿透）。
func getVoucher(orders *seckill.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("voucher_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "券ID无效"})
			return
		}
		v, err := orders.Voucher(c.Request.Context(), id)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if v == nil {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "券不存在"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": v})
	}
}

// buyVoucher 秒杀下单入口。准入成功即返回订单号，落单由 Worker 异步完成。
func buyVoucher(orders *seckill.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req struct {
			VoucherID int64 `json:"voucher_id" binding:"required,min=1"`
			UserID    int64 `json:"user_id" binding:"required,min=1"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}

		orderID, err := orders.Seckill(c.Request.Context(), req.VoucherID, req.UserID)
		if err != nil {
			switch {
			case errors.Is(err, seckill.ErrVoucherNotFound):
				c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "券不存在"})
			case errors.Is(err, seckill.ErrSeckillNotStarted):
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "秒杀尚未开始"})
			case errors.Is(err, seckill.ErrSeckillEnded):
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "秒杀已经结束"})
			case errors.Is(err, seckill.ErrOutOfStock):
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "库存不足"})
			case errors.Is(err, seckill.ErrDuplicateOrder):
				c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "不能重复下单"})
			default:
				c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"code": 0,
			"data": gin.H{"order_id": orderID},
		})
	}
}

// getOrder 查询异步落单进度：行未出现说明还在队列里，返回 pending。
func getOrder(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("order_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "订单ID无效"})
			return
		}

		var order model.VoucherOrder
		if err := db.First(&order, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusOK, gin.H{
					"code": 0,
					"data": gin.H{"order_id": id, "status": "pending"},
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"code": 0,
			"data": gin.H{"order_id": order.ID, "status": "created", "order": order},
		})
	}
}

// createShop 创建商铺并以逻辑过期方式预热缓存。
func createShop(db *gorm.DB, cache *rediskey.Client, adminToken string, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader("X-Admin-Token") != adminToken {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "msg": "admin token 无效"})
			return
		}

		var req model.Shop
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": err.Error()})
			return
		}
		if req.Name == "" {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "name 必填"})
			return
		}
		if err := db.Create(&req).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if err := cache.SetWithLogicalExpire(c.Request.Context(), rediskey.ShopKey(req.ID), &req, window); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": req})
	}
}

// getShop 查询商铺，走逻辑过期缓存：过期也立即返回旧值，重建在后台进行。
// 未预热的商铺视为不存在——该策略不做同步回源。
func getShop(db *gorm.DB, cache *rediskey.Client, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := strconv.ParseInt(c.Param("shop_id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"code": 400, "msg": "商铺ID无效"})
			return
		}

		shop, err := rediskey.QueryLogicalExpire(c.Request.Context(), cache, rediskey.ShopKey(id), window,
			func(ctx context.Context) (*model.Shop, error) {
				var s model.Shop
				if err := db.WithContext(ctx).First(&s, id).Error; err != nil {
					if errors.Is(err, gorm.ErrRecordNotFound) {
						return nil, nil
					}
					return nil, err
				}
				return &s, nil
			})
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"code": 500, "msg": err.Error()})
			return
		}
		if shop == nil {
			c.JSON(http.StatusNotFound, gin.H{"code": 404, "msg": "商铺不存在"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"code": 0, "data": shop})
	}
}
