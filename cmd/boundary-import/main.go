package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"geofence-api/internal/boundary"
	"geofence-api/internal/logger"
	"geofence-api/internal/migrate"
	"geofence-api/internal/store"
	"geofence-api/internal/utils"
)

// target：导入目标（Postgres 表或 Redis 哈希）
type target interface {
	Put(ctx context.Context, name string, geojson []byte) error
	Prune(ctx context.Context, keep []string) (int64, error)
}

type pgTarget struct{ st *store.Store }

func (t pgTarget) Put(ctx context.Context, name string, gj []byte) error {
	return t.st.UpsertBoundary(ctx, name, string(gj))
}

func (t pgTarget) Prune(ctx context.Context, keep []string) (int64, error) {
	return t.st.PruneBoundaries(ctx, keep)
}

type redisTarget struct {
	rc  redis.Cmdable
	key string
}

func (t redisTarget) Put(ctx context.Context, name string, gj []byte) error {
	return t.rc.HSet(ctx, t.key, name, string(gj)).Err()
}

func (t redisTarget) Prune(ctx context.Context, keep []string) (int64, error) {
	fields, err := t.rc.HKeys(ctx, t.key).Result()
	if err != nil {
		return 0, err
	}
	stale := staleNames(fields, keep)
	if len(stale) == 0 {
		return 0, nil
	}
	return t.rc.HDel(ctx, t.key, stale...).Result()
}

// 文档注释：边界导入工具
// 背景：把数据目录中的 GeoJSON（与服务端同一解析器校验）写入 Postgres 或 Redis，供多实例共享加载。
// 约束：IMPORT_ONLY 指定的区域必须全部存在，否则不写入任何数据；IMPORT_PRUNE=true 时删除目标中未出现在本次导入的区域。
func main() {
	_ = godotenv.Load(".env")
	l := logger.Setup()
	ctx := context.Background()

	dir := os.Getenv("IMPORT_DIR")
	if dir == "" {
		dir = os.Getenv("BOUNDARY_DIR")
	}
	if dir == "" {
		dir = "data/boundaries"
	}
	var t target
	switch strings.ToLower(os.Getenv("IMPORT_TARGET")) {
	case "", "postgres":
		db, err := utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := migrate.EnsureSchema(ctx, db); err != nil {
			l.Error("schema_error", "err", err)
			os.Exit(1)
		}
		t = pgTarget{st: store.AttachDB(db)}
	case "redis":
		rc := utils.OpenRedisFromEnv()
		defer rc.Close()
		key := os.Getenv("BOUNDARY_REDIS_KEY")
		if key == "" {
			key = boundary.DefaultRedisKey
		}
		t = redisTarget{rc: rc, key: key}
	default:
		l.Error("import_target_unknown", "target", os.Getenv("IMPORT_TARGET"))
		os.Exit(1)
	}

	n, pruned, err := run(ctx, boundary.DirSource{Dir: dir}, t, splitList(os.Getenv("IMPORT_ONLY")), os.Getenv("IMPORT_PRUNE") == "true")
	if err != nil {
		l.Error("import_error", "dir", dir, "err", err)
		os.Exit(1)
	}
	l.Info("import_done", "dir", dir, "regions", n, "pruned", pruned)
}

func run(ctx context.Context, src boundary.Source, t target, only []string, prune bool) (int, int64, error) {
	regions, err := src.Fetch(ctx)
	if err != nil {
		return 0, 0, &boundary.DataLoadError{Source: src.Name(), Err: err}
	}
	if len(only) > 0 {
		byName := make(map[string]int, len(regions))
		for i, r := range regions {
			byName[strings.ToLower(r.Name)] = i
		}
		picked := regions[:0:0]
		for _, n := range only {
			i, ok := byName[strings.ToLower(n)]
			if !ok {
				return 0, 0, fmt.Errorf("%w: %s", boundary.ErrRegionNotFound, n)
			}
			picked = append(picked, regions[i])
		}
		regions = picked
	}
	names := make([]string, 0, len(regions))
	for _, r := range regions {
		gj, err := boundary.EncodeGeometry(r)
		if err != nil {
			return 0, 0, err
		}
		if err := t.Put(ctx, r.Name, gj); err != nil {
			return 0, 0, fmt.Errorf("put %s: %w", r.Name, err)
		}
		names = append(names, r.Name)
	}
	var pruned int64
	if prune {
		if pruned, err = t.Prune(ctx, names); err != nil {
			return len(names), 0, err
		}
	}
	return len(names), pruned, nil
}

func staleNames(have, keep []string) []string {
	k := make(map[string]struct{}, len(keep))
	for _, n := range keep {
		k[n] = struct{}{}
	}
	var out []string
	for _, n := range have {
		if _, ok := k[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
