package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	rd "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"hmdp-go/internal/config"
	"hmdp-go/internal/model"
	"hmdp-go/internal/queue"
	"hmdp-go/internal/router"
	"hmdp-go/internal/seckill"
	rediskey "hmdp-go/pkg/redis"
)

func main() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	log.Info().Msg("starting hmdp-go")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}

	rootCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// SQLite，自动建表
	db, err := gorm.Open(sqlite.Open(cfg.DBPath), &gorm.Config{})
	if err != nil {
		log.Fatal().Err(err).Msg("db open")
	}
	if err := db.AutoMigrate(&model.SeckillVoucher{}, &model.VoucherOrder{}, &model.Shop{}); err != nil {
		log.Fatal().Err(err).Msg("db migrate")
	}

	rdb := rd.NewClient(&rd.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(rootCtx).Err(); err != nil {
		log.Fatal().Err(err).Msg("redis ping")
	}
	defer rdb.Close()

	// Kafka 外发是可选的：没配 broker 就只落库不发事件
	var producer *queue.Producer
	if len(cfg.KafkaBrokers) > 0 {
		producer = queue.NewProducer(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer producer.Close()
	}

	cache := rediskey.NewClient(rdb)
	idWorker := rediskey.NewIDWorker(rdb)
	gate := seckill.NewAdmissionGate(rdb, cfg.OrderStream)
	orders := seckill.NewOrderService(db, cache, idWorker, gate)

	// 异步落单 Worker，受 rootCtx 监督
	worker := seckill.NewWorker(rdb, db, producer, cfg.OrderStream, cfg.OrderGroup, cfg.OrderConsumer)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		worker.Run(rootCtx)
	}()

	r := gin.Default()
	router.Setup(r, db, rdb, cache, orders, cfg)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: r}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("http serve")
		}
	}()
	log.Info().Str("addr", cfg.HTTPAddr).Msg("http listening")

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Info().Msg("shutting down")

	cancel() // 通知 Worker 退出

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("http shutdown")
	}

	wg.Wait()
	log.Info().Msg("bye")
}
