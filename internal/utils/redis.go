package utils

import (
	"context"
	"time"

	"geozone-api/internal/config"
	"geozone-api/internal/logger"

	"github.com/redis/go-redis/v9"
)

// OpenRedis：REDIS_ENABLED 为 false 时返回 nil
// 约束：探活失败只记录日志，客户端仍返回；缓存层在 Redis 不可用时退回本地
func OpenRedis(ctx context.Context, c config.Config) *redis.Client {
	if !c.RedisEnabled {
		logger.L().Info("redis_disabled")
		return nil
	}
	rc := redis.NewClient(&redis.Options{Addr: c.RedisAddr(), Password: c.RedisPass, DB: c.RedisDB})
	pctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Ping(pctx).Err(); err != nil {
		logger.L().Error("redis_ping_error", "addr", c.RedisAddr(), "err", err)
	} else {
		logger.L().Info("redis_ping_ok", "addr", c.RedisAddr(), "db", c.RedisDB)
	}
	return rc
}
