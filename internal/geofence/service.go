package geofence

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"geofence-api/internal/geo"
	"geofence-api/internal/geoip"
	"geofence-api/internal/metrics"
	"geofence-api/internal/violation"
)

// Store：边界数据存储（查询 + 一次性加载）
type Store interface {
	RegionLookup
	Loader
}

// IPLocator：IP 定位；*geoip.Resolver 满足该接口
type IPLocator interface {
	Locate(ctx context.Context, ip string) (geoip.Location, error)
}

const degradedMessage = "boundary data unavailable; geofence not enforced"

// 文档注释：围栏服务
// 背景：进程内构造一次并按引用传递，持有边界存储、预加载器与策略引擎；每个用户会话通过 NewSession 派生。
// 约束：不使用包级单例；审计 Sink 与 IP 定位均为可选依赖。
type Service struct {
	engine *Engine
	pre    *Preloader
	log    *slog.Logger
	sink   violation.Sink
	ip     IPLocator
	logCap int
}

type Option func(*Service)

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// WithSink：违规审计落库
func WithSink(sink violation.Sink) Option { return func(s *Service) { s.sink = sink } }

// WithViolationCapacity：单会话违规缓冲容量
func WithViolationCapacity(n int) Option { return func(s *Service) { s.logCap = n } }

func WithIPLocator(ip IPLocator) Option { return func(s *Service) { s.ip = ip } }

// WithEngine：替换策略引擎（测试挂接观察函数时使用）
func WithEngine(e *Engine) Option {
	return func(s *Service) {
		if e != nil {
			s.engine = e
		}
	}
}

func NewService(st Store, opts ...Option) *Service {
	s := &Service{
		engine: NewEngine(st),
		pre:    NewPreloader(st),
		log:    slog.Default(),
		logCap: violation.DefaultCapacity,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Preload：等待边界数据驻留；并发调用共享同一次加载
func (s *Service) Preload(ctx context.Context) error {
	t0 := time.Now()
	err := s.pre.Preload(ctx)
	if err != nil {
		s.log.Error("geofence_preload_error", "err", err, "state", s.pre.State().String())
		return err
	}
	s.log.Debug("geofence_preload_ok", "ms", time.Since(t0).Milliseconds(), "loads", s.pre.Loads())
	return nil
}

func (s *Service) IsLoaded() bool { return s.pre.IsLoaded() }

func (s *Service) State() State { return s.pre.State() }

// Err：最近一次预加载失败原因
func (s *Service) Err() error { return s.pre.Err() }

// NewSession：按用户策略派生会话；会话独占自己的违规记录
func (s *Service) NewSession(cfg Config) *Session {
	return &Session{
		svc:        s,
		cfg:        cfg,
		violations: violation.NewLog(s.logCap),
		log:        s.log.With("user_id", cfg.UserID),
	}
}

// 文档注释：用户会话
// 背景：对外暴露的校验入口（地图工具、管理端界面）；在引擎判定前处理预加载等待与降级，判定后记录违规、指标与审计。
// 约束：校验调用不返回错误、不 panic，所有预期情况都编码进 Result；ctx 只用于限定等待预加载与审计写入。
type Session struct {
	svc        *Service
	cfg        Config
	violations *violation.Log
	log        *slog.Logger
	warned     atomic.Bool
}

func (s *Session) Config() Config { return s.cfg }

func (s *Session) ValidatePoint(ctx context.Context, lat, lng float64) Result {
	t0 := time.Now()
	p := geo.Coordinate{Lat: lat, Lng: lng}
	var res Result
	switch {
	case s.cfg.Unrestricted():
		res = Result{IsValid: true}
	case s.ready(ctx):
		res = s.svc.engine.ValidatePoint(lat, lng, s.cfg)
	case !p.Valid():
		res = invalidCoordinates(p, nil)
	default:
		res = s.degraded()
	}
	s.finish(ctx, metrics.ValidationsTotal.WithLabelValues(outcome(res)), res, t0)
	return res
}

// ValidatePath：路径校验；加载进行中先等待数据，按顺序判定。
// 未发起或已失败时仍拒绝首个坐标非法的点，其余降级
func (s *Session) ValidatePath(ctx context.Context, points []geo.Coordinate) Result {
	t0 := time.Now()
	var res Result
	switch {
	case s.cfg.Unrestricted() || len(points) == 0:
		res = Result{IsValid: true}
	case s.ready(ctx):
		res = s.svc.engine.ValidatePath(points, s.cfg)
	case firstInvalid(points) >= 0:
		res = invalidCoordinates(points[firstInvalid(points)], nil)
	default:
		res = s.degraded()
	}
	s.finish(ctx, metrics.PathValidationsTotal.WithLabelValues(outcome(res)), res, t0)
	return res
}

// IsPointValid：仅返回布尔结论
func (s *Session) IsPointValid(ctx context.Context, lat, lng float64) bool {
	return s.ValidatePoint(ctx, lat, lng).IsValid
}

// 文档注释：按客户端 IP 校验（登录地/操作地）
// 背景：IP 库给出坐标时按点校验；只给出省级名称时按区域名匹配 AssignedStates。
// 异常：未配置 IP 库、IP 非法或库中无记录时返回错误，由调用方决定放行或拒绝。
func (s *Session) ValidateIP(ctx context.Context, ip string) (Result, error) {
	if s.cfg.Unrestricted() {
		return Result{IsValid: true}, nil
	}
	if s.svc.ip == nil {
		return Result{}, geoip.ErrNoDatabase
	}
	loc, err := s.svc.ip.Locate(ctx, ip)
	if err != nil {
		return Result{}, err
	}
	if loc.HasCoordinate {
		return s.ValidatePoint(ctx, loc.Coordinate.Lat, loc.Coordinate.Lng), nil
	}
	t0 := time.Now()
	var res Result
	if !s.ready(ctx) {
		res = s.degraded()
	} else {
		res = s.svc.engine.ValidateRegionName(loc.Province, s.cfg)
	}
	s.finish(ctx, metrics.ValidationsTotal.WithLabelValues(outcome(res)), res, t0)
	return res, nil
}

// Preload：preloadGeofenceData 的会话入口
func (s *Session) Preload(ctx context.Context) error { return s.svc.Preload(ctx) }

// RecentViolations：最近 count 条违规，按发生顺序（最新在最后）；count<0 返回全部
func (s *Session) RecentViolations(count int) []violation.Entry {
	return s.violations.Recent(count)
}

func (s *Session) ClearViolations() { s.violations.Clear() }

func (s *Session) ready(ctx context.Context) bool { return s.svc.pre.Wait(ctx) }

func (s *Session) degraded() Result {
	metrics.DataUnavailableTotal.Inc()
	attrs := []any{"state", s.svc.pre.State().String()}
	if err := s.svc.pre.Err(); err != nil {
		attrs = append(attrs, "err", err)
	}
	s.log.Warn("geofence_data_unavailable", attrs...)
	return Result{IsValid: true, ViolationType: DataUnavailable, Message: degradedMessage}
}

func firstInvalid(points []geo.Coordinate) int {
	for i, p := range points {
		if !p.Valid() {
			return i
		}
	}
	return -1
}

type counter interface{ Inc() }

func (s *Session) finish(ctx context.Context, c counter, res Result, t0 time.Time) {
	c.Inc()
	metrics.ValidationDurationMs.Observe(float64(time.Since(t0).Microseconds()) / 1000)
	if len(res.Warnings) > 0 && s.warned.CompareAndSwap(false, true) {
		metrics.UnknownRegionsTotal.Add(float64(len(res.Warnings)))
		s.log.Warn("geofence_unknown_region", "warnings", res.Warnings, "assigned", s.cfg.AssignedStates)
	}
	if res.IsValid {
		return
	}
	e := violation.NewEntry(res.ViolatingPoint, string(res.ViolationType), res.Message, s.cfg.UserID)
	s.violations.Record(e)
	metrics.ViolationsRecordedTotal.WithLabelValues(e.Type).Inc()
	s.log.Info("geofence_violation", "type", e.Type, "id", e.ID, "cell", e.Cell)
	if s.svc.sink == nil {
		return
	}
	if err := s.svc.sink.WriteViolation(ctx, e); err != nil {
		metrics.AuditWriteFailTotal.Inc()
		s.log.Warn("geofence_audit_write_error", "id", e.ID, "err", err)
	}
}

func outcome(r Result) string {
	switch {
	case !r.IsValid:
		return "invalid"
	case r.ViolationType == NearBorderWarning:
		return "warning"
	case r.ViolationType == DataUnavailable:
		return "degraded"
	default:
		return "valid"
	}
}
