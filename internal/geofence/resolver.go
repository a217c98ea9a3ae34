package geofence

import (
	"math"
	"strings"

	"geofence-api/internal/geo"
)

// RegionLookup：按名称获取区域几何；boundary.Store 满足该接口
type RegionLookup interface {
	Get(name string) (*geo.Region, bool)
}

// Resolver：把用户分配的区域名解析为几何
type Resolver struct {
	lookup RegionLookup
}

func NewResolver(l RegionLookup) *Resolver { return &Resolver{lookup: l} }

// 文档注释：解析区域名
// 背景：某个分配名拼写错误不应把用户整体锁死，因此未知名称跳过并返回给调用方用于诊断。
// 约束：保持输入顺序（决定最近区域的并列裁决）；重复名称与空白名称忽略。
func (r *Resolver) Resolve(names []string) ([]*geo.Region, []string) {
	var regions []*geo.Region
	var unknown []string
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		k := strings.ToLower(strings.TrimSpace(n))
		if k == "" {
			continue
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		reg, ok := r.lookup.Get(n)
		if !ok {
			unknown = append(unknown, strings.TrimSpace(n))
			continue
		}
		regions = append(regions, reg)
	}
	return regions, unknown
}

// Match：多区域判定结果；未命中时给出最近区域与距离（千米）
type Match struct {
	Matched           bool
	Nearest           *geo.Region
	NearestDistanceKm float64
}

// 文档注释：多区域命中判定
// 背景：逐个区域测试（含包围盒快速排除），首个命中即返回；全部未命中时才计算到各区域边界的最短距离。
// 约束：距离相同按输入顺序取下标最小者；无区域时 Nearest 为空、距离为 +Inf。
func IsInAnyRegion(p geo.Coordinate, regions []*geo.Region) Match {
	for _, r := range regions {
		if geo.PointInRegion(p, r) {
			return Match{Matched: true, Nearest: r}
		}
	}
	m := Match{NearestDistanceKm: math.Inf(1)}
	for _, r := range regions {
		if d := geo.DistanceToRegionBoundary(p, r); d < m.NearestDistanceKm {
			m.Nearest = r
			m.NearestDistanceKm = d
		}
	}
	return m
}
