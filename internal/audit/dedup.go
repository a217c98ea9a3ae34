// 包 audit：违规审计写入前的短周期去重
package audit

import (
	"context"
	"hash/fnv"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"geofence-api/internal/violation"
)

// BitStore：布隆位图所需的 Redis 命令子集；*redis.Client 满足该接口
type BitStore interface {
	GetBit(ctx context.Context, key string, offset int64) *redis.IntCmd
	SetBit(ctx context.Context, key string, offset int64, value int) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

const (
	DefaultBits   = 1 << 20
	DefaultHashes = 4
	DefaultTTL    = 10 * time.Minute
	keyPrefix     = "geofence:audit:bloom:"
)

// 文档注释：审计去重 Sink
// 背景：同一用户在同一网格内反复越界（例如拖动地图上的标注）会产生大量重复审计行；按 用户|类型|网格 做布隆去重，窗口内只落库一次。
// 约束：布隆误判会丢弃少量非重复记录，会话内违规记录不受影响；没有网格（按区域名判定）的条目不去重；Redis 出错时放行。
type DedupSink struct {
	next   violation.Sink
	rc     BitStore
	bits   uint32
	hashes int
	ttl    time.Duration
	log    *slog.Logger
}

func NewDedupSink(next violation.Sink, rc BitStore, ttl time.Duration, l *slog.Logger) *DedupSink {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if l == nil {
		l = slog.Default()
	}
	return &DedupSink{next: next, rc: rc, bits: DefaultBits, hashes: DefaultHashes, ttl: ttl, log: l}
}

func (d *DedupSink) WriteViolation(ctx context.Context, e violation.Entry) error {
	if d.rc == nil || e.Cell == "" {
		return d.next.WriteViolation(ctx, e)
	}
	// 窗口按 TTL 分桶，窗口切换时自然失效
	win := int64(d.ttl / time.Second)
	if win < 1 {
		win = 1
	}
	key := keyPrefix + strconv.FormatInt(e.Timestamp.Unix()/win, 10)
	first, err := bloomCheckAndSet(ctx, d.rc, key, bloomPositions([]byte(e.UserID+"|"+e.Type+"|"+e.Cell), d.bits, d.hashes), d.ttl)
	if err != nil {
		d.log.Warn("audit_dedup_error", "err", err)
	}
	if !first {
		d.log.Debug("audit_dedup_skip", "user_id", e.UserID, "cell", e.Cell)
		return nil
	}
	return d.next.WriteViolation(ctx, e)
}

// bloomPositions：FNV64a 结合索引扰动生成 k 个位置
func bloomPositions(data []byte, m uint32, k int) []int64 {
	pos := make([]int64, k)
	for i := 0; i < k; i++ {
		h := fnv.New64a()
		h.Write([]byte{byte(i)})
		h.Write(data)
		pos[i] = int64(uint32(h.Sum64() % uint64(m)))
	}
	return pos
}

// bloomCheckAndSet：true 表示首次见到（已写入位图）；Redis 出错时返回 true 与错误
func bloomCheckAndSet(ctx context.Context, rc BitStore, key string, positions []int64, ttl time.Duration) (bool, error) {
	seen := true
	for _, p := range positions {
		b, err := rc.GetBit(ctx, key, p).Result()
		if err != nil {
			return true, err
		}
		if b == 0 {
			seen = false
		}
	}
	if seen {
		return false, nil
	}
	for _, p := range positions {
		if err := rc.SetBit(ctx, key, p, 1).Err(); err != nil {
			return true, err
		}
	}
	_ = rc.Expire(ctx, key, ttl).Err()
	return true, nil
}
