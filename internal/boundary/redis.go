package boundary

import (
	"context"

	"github.com/redis/go-redis/v9"

	"geofence-api/internal/geo"
)

// DefaultRedisKey：边界哈希键，字段为区域名，值为 GeoJSON 几何
const DefaultRedisKey = "geofence:boundaries"

// HashReader：*redis.Client 满足该接口；测试中以假实现替换
type HashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

// 文档注释：Redis 边界数据源
// 背景：多实例部署时共享同一份边界数据，避免每个节点挂载数据目录。
// 约束：键不存在时 HGetAll 返回空哈希，由 Store 按 ErrNoRegions 处理。
type RedisSource struct {
	Client HashReader
	Key    string
}

func (s RedisSource) Name() string { return "redis:" + s.key() }

func (s RedisSource) key() string {
	if s.Key == "" {
		return DefaultRedisKey
	}
	return s.Key
}

func (s RedisSource) Fetch(ctx context.Context) ([]*geo.Region, error) {
	m, err := s.Client.HGetAll(ctx, s.key()).Result()
	if err != nil {
		return nil, err
	}
	rows := make([]RawBoundary, 0, len(m))
	for name, gj := range m {
		rows = append(rows, RawBoundary{Name: name, GeoJSON: gj})
	}
	return parseRaw(rows)
}
