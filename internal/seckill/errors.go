package seckill

import "errors"

// 秒杀下单的业务失败都以哨兵错误返回，调用方按类别映射为用户提示；
// 存储层故障则包装后向上传播，属于硬失败。
var (
	ErrVoucherNotFound   = errors.New("voucher not found")
	ErrSeckillNotStarted = errors.New("seckill not started")
	ErrSeckillEnded      = errors.New("seckill ended")
	ErrOutOfStock        = errors.New("out of stock")
	ErrDuplicateOrder    = errors.New("duplicate order")
)
