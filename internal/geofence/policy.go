package geofence

import (
	"fmt"
	"strings"

	"geofence-api/internal/geo"
)

// 文档注释：围栏策略引擎
// 背景：校验结论的唯一来源；按固定顺序判定：不限制 → 坐标非法 → 区域命中 → 严格模式 → 边界容差 → 拒绝。
// 约束：纯函数式判定，不做 I/O；区域数据须已驻留（由会话层负责等待预加载或降级）。
// observe 在每个被判定的点上调用一次（指标与测试计数使用），可为空。
type Engine struct {
	resolver *Resolver
	observe  func(p geo.Coordinate, r Result)
}

func NewEngine(l RegionLookup) *Engine {
	return &Engine{resolver: NewResolver(l)}
}

// WithObserver：返回挂接了逐点观察函数的引擎副本
func (e *Engine) WithObserver(fn func(p geo.Coordinate, r Result)) *Engine {
	cp := *e
	cp.observe = fn
	return &cp
}

// ValidatePoint：单点校验
func (e *Engine) ValidatePoint(lat, lng float64, cfg Config) (res Result) {
	p := geo.Coordinate{Lat: lat, Lng: lng}
	if cfg.Unrestricted() {
		return Result{IsValid: true}
	}
	defer recoverInto(&res, &p)
	regions, unknown := e.resolver.Resolve(cfg.AssignedStates)
	return e.evaluate(p, cfg, regions, unknown)
}

// 文档注释：路径校验
// 背景：按顺序逐点判定，遇到首个无效点立即返回并标明该点，后续点不再判定。
// 约束：空路径有效；全部有效时若出现过近边界告警，返回第一个告警（含其坐标），其余告警丢弃。
func (e *Engine) ValidatePath(points []geo.Coordinate, cfg Config) (res Result) {
	if cfg.Unrestricted() || len(points) == 0 {
		return Result{IsValid: true}
	}
	defer recoverInto(&res, nil)
	regions, unknown := e.resolver.Resolve(cfg.AssignedStates)
	var warned *Result
	for _, p := range points {
		r := e.evaluate(p, cfg, regions, unknown)
		if !r.IsValid {
			return r
		}
		if warned == nil && r.ViolationType == NearBorderWarning {
			w := r
			warned = &w
		}
	}
	if warned != nil {
		return *warned
	}
	return Result{IsValid: true, Warnings: unknownWarnings(unknown)}
}

// 文档注释：按区域名校验（IP 库仅给出省级名称、没有坐标时使用）
// 约束：名称忽略大小写比较；不涉及几何与边界容差。
// 只与已解析的区域比较：边界数据中不存在的分配名与按坐标判定时一样视为未命中。
func (e *Engine) ValidateRegionName(name string, cfg Config) Result {
	if cfg.Unrestricted() {
		return Result{IsValid: true}
	}
	regions, unknown := e.resolver.Resolve(cfg.AssignedStates)
	warnings := unknownWarnings(unknown)
	n := strings.TrimSpace(name)
	for _, r := range regions {
		if strings.EqualFold(r.Name, n) {
			return Result{IsValid: true, Warnings: warnings}
		}
	}
	return Result{
		IsValid:       false,
		ViolationType: OutsideAllRegions,
		Message:       fmt.Sprintf("region %q is not among the assigned regions", n),
		Warnings:      warnings,
	}
}

func (e *Engine) evaluate(p geo.Coordinate, cfg Config, regions []*geo.Region, unknown []string) Result {
	r := decide(p, cfg, regions, unknown)
	if e.observe != nil {
		e.observe(p, r)
	}
	return r
}

func decide(p geo.Coordinate, cfg Config, regions []*geo.Region, unknown []string) Result {
	warnings := unknownWarnings(unknown)
	if !p.Valid() {
		return invalidCoordinates(p, warnings)
	}
	m := IsInAnyRegion(p, regions)
	if m.Matched {
		return Result{IsValid: true, Warnings: warnings}
	}
	out := Result{
		IsValid:        false,
		ViolationType:  OutsideAllRegions,
		ViolatingPoint: &p,
		Warnings:       warnings,
	}
	if m.Nearest == nil {
		out.Message = fmt.Sprintf("point %s is outside all assigned regions; no assigned region could be resolved", p)
		return out
	}
	out.NearestRegion = m.Nearest.Name
	out.NearestDistanceKm = m.NearestDistanceKm
	if cfg.StrictMode {
		out.Message = fmt.Sprintf("point %s is outside all assigned regions; nearest region %s is %.2f km away", p, m.Nearest.Name, m.NearestDistanceKm)
		return out
	}
	if cfg.AllowNearBorder && m.NearestDistanceKm <= cfg.BorderToleranceKm {
		ok := Result{IsValid: true, NearestRegion: m.Nearest.Name, NearestDistanceKm: m.NearestDistanceKm, Warnings: warnings}
		if cfg.ShowWarnings {
			ok.ViolationType = NearBorderWarning
			ok.Message = fmt.Sprintf("point %s is %.2f km outside %s, within the %.2f km border tolerance", p, m.NearestDistanceKm, m.Nearest.Name, cfg.BorderToleranceKm)
			ok.ViolatingPoint = &p
		}
		return ok
	}
	out.Message = fmt.Sprintf("point %s is %.2f km outside the nearest assigned region %s", p, m.NearestDistanceKm, m.Nearest.Name)
	return out
}

func invalidCoordinates(p geo.Coordinate, warnings []string) Result {
	return Result{
		IsValid:        false,
		ViolationType:  InvalidCoordinates,
		Message:        fmt.Sprintf("coordinates %s are out of range", p),
		ViolatingPoint: &p,
		Warnings:       warnings,
	}
}

func unknownWarnings(unknown []string) []string {
	if len(unknown) == 0 {
		return nil
	}
	out := make([]string, 0, len(unknown))
	for _, n := range unknown {
		out = append(out, fmt.Sprintf("unknown region %q", n))
	}
	return out
}

// 判定过程中的 panic 转为 unknown_violation，不越过公开边界
func recoverInto(res *Result, p *geo.Coordinate) {
	if rec := recover(); rec != nil {
		*res = Result{
			IsValid:        false,
			ViolationType:  UnknownViolation,
			Message:        fmt.Sprintf("internal validation error: %v", rec),
			ViolatingPoint: p,
		}
	}
}
