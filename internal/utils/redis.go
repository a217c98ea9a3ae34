// 包 utils：数据库、Redis 与证书等基础设施工具，统一环境变量读取
package utils

import (
	"os"
	"strconv"

	"github.com/redis/go-redis/v9"

	"geofence-api/internal/logger"
)

// RedisAddrFromEnv：REDIS_HOST:REDIS_PORT，默认 127.0.0.1:6379
func RedisAddrFromEnv() string {
	return envOr("REDIS_HOST", "127.0.0.1") + ":" + envOr("REDIS_PORT", "6379")
}

// OpenRedisFromEnv：从环境变量打开 Redis 客户端，支持 REDIS_DB 选择
// 约束：REDIS_DB 解析失败或为负时回退到 0
func OpenRedisFromEnv() *redis.Client {
	addr := RedisAddrFromEnv()
	db := 0
	if v := os.Getenv("REDIS_DB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			db = n
		}
	}
	logger.L().Debug("redis_env", "addr", addr, "db", db)
	return redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASS"), DB: db})
}
