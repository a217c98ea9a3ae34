// 包 api：集中注册围栏校验 HTTP 路由，供地图工具与管理端界面调用
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/oschwald/maxminddb-golang"

	"geofence-api/internal/geofence"
	"geofence-api/internal/geoip"
	"geofence-api/internal/store"
	"geofence-api/internal/users"
)

// 单次路径校验的最大点数
const maxPathPoints = 10000

// 请求体上限（字节）
const maxBodyBytes = 4 << 20

// RegionCatalog：已加载区域概况；*boundary.Store 满足该接口
type RegionCatalog interface {
	Names() []string
	Len() int
	LoadedAt() time.Time
}

// AuditTotals：违规审计统计；*store.Store 满足该接口
type AuditTotals interface {
	ViolationTotals(ctx context.Context, userID string) (*store.Totals, error)
}

// GeoIPInfo：IP 库元数据；*geoip.Resolver 满足该接口
type GeoIPInfo interface {
	Metadata() (maxminddb.Metadata, bool)
}

// 文档注释：HTTP 处理器
// 背景：会话按 userId 懒创建并缓存，策略来自用户目录叠加默认策略；同一用户的违规记录跨请求保留。
// 约束：未知用户返回 404；参数或 JSON 错误返回 400；校验结论（含无效）一律 200 返回 Result。
type Handler struct {
	svc      *geofence.Service
	users    users.Provider
	defaults geofence.Config
	catalog  RegionCatalog
	audit    AuditTotals
	geoip    GeoIPInfo
	log      *slog.Logger

	preloadTimeout time.Duration

	mu       sync.Mutex
	sessions map[string]*geofence.Session
}

type Option func(*Handler)

func WithAuditTotals(a AuditTotals) Option { return func(h *Handler) { h.audit = a } }

func WithGeoIPInfo(g GeoIPInfo) Option { return func(h *Handler) { h.geoip = g } }

func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.log = l
		}
	}
}

// WithPreloadTimeout：POST /geofence/preload 的最长等待
func WithPreloadTimeout(d time.Duration) Option { return func(h *Handler) { h.preloadTimeout = d } }

func NewHandler(svc *geofence.Service, up users.Provider, defaults geofence.Config, catalog RegionCatalog, opts ...Option) *Handler {
	h := &Handler{
		svc:            svc,
		users:          up,
		defaults:       defaults,
		catalog:        catalog,
		log:            slog.Default(),
		preloadTimeout: 30 * time.Second,
		sessions:       make(map[string]*geofence.Session),
	}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Routes：围栏路由，由主入口挂载到 API_BASE
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Route("/geofence", func(r chi.Router) {
		r.Post("/validate/point", h.validatePoint)
		r.Post("/validate/path", h.validatePath)
		r.Post("/validate/ip", h.validateIP)
		r.Get("/valid", h.isPointValid)
		r.Post("/preload", h.preload)
		r.Get("/violations", h.recentViolations)
		r.Delete("/violations", h.clearViolations)
		r.Get("/status", h.status)
		r.Get("/regions", h.regions)
	})
	return r
}

func (h *Handler) session(userID string) (*geofence.Session, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[userID]; ok {
		return s, true
	}
	a, ok := h.users.Lookup(userID)
	if !ok {
		return nil, false
	}
	s := h.svc.NewSession(a.Config(h.defaults))
	h.sessions[userID] = s
	return s, true
}

// sessionOr404：未知用户时写出 404
func (h *Handler) sessionOr404(w http.ResponseWriter, userID string) (*geofence.Session, bool) {
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return nil, false
	}
	s, ok := h.session(userID)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown user "+strconv.Quote(userID))
	}
	return s, ok
}

func (h *Handler) validatePoint(w http.ResponseWriter, r *http.Request) {
	var req pointRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Lat == nil || req.Lng == nil {
		writeError(w, http.StatusBadRequest, "lat and lng are required")
		return
	}
	s, ok := h.sessionOr404(w, req.UserID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.ValidatePoint(r.Context(), *req.Lat, *req.Lng))
}

func (h *Handler) validatePath(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !decode(w, r, &req) {
		return
	}
	if len(req.Points) > maxPathPoints {
		writeError(w, http.StatusBadRequest, "too many points")
		return
	}
	s, ok := h.sessionOr404(w, req.UserID)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.ValidatePath(r.Context(), req.Points))
}

func (h *Handler) isPointValid(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	lat, err1 := strconv.ParseFloat(q.Get("lat"), 64)
	lng, err2 := strconv.ParseFloat(q.Get("lng"), 64)
	if err1 != nil || err2 != nil {
		writeError(w, http.StatusBadRequest, "lat and lng must be numbers")
		return
	}
	s, ok := h.sessionOr404(w, q.Get("userId"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, validResponse{Valid: s.IsPointValid(r.Context(), lat, lng)})
}

func (h *Handler) validateIP(w http.ResponseWriter, r *http.Request) {
	var req ipRequest
	if !decode(w, r, &req) {
		return
	}
	s, ok := h.sessionOr404(w, req.UserID)
	if !ok {
		return
	}
	ip := req.IP
	if ip == "" {
		ip = clientIP(r)
	}
	res, err := s.ValidateIP(r.Context(), ip)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, res)
	case errors.Is(err, geoip.ErrNoDatabase):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, geoip.ErrBadIP):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, geoip.ErrNoLocation):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		h.log.Error("geoip_lookup_error", "ip", ip, "err", err)
		writeError(w, http.StatusInternalServerError, "geoip lookup failed")
	}
}

func (h *Handler) preload(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.preloadTimeout)
	defer cancel()
	if err := h.svc.Preload(ctx); err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) recentViolations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	// count 缺省时返回全部；count=0 返回空列表
	count := -1
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "count must be a non-negative integer")
			return
		}
		count = n
	}
	s, ok := h.sessionOr404(w, q.Get("userId"))
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.RecentViolations(count))
}

func (h *Handler) clearViolations(w http.ResponseWriter, r *http.Request) {
	s, ok := h.sessionOr404(w, r.URL.Query().Get("userId"))
	if !ok {
		return
	}
	s.ClearViolations()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	out := statusResponse{State: h.svc.State().String(), Regions: h.catalog.Len()}
	if t := h.catalog.LoadedAt(); !t.IsZero() {
		out.LoadedAt = &t
	}
	if err := h.svc.Err(); err != nil {
		out.Error = err.Error()
	}
	if h.geoip != nil {
		if md, ok := h.geoip.Metadata(); ok {
			out.GeoIP = &geoipStatus{DatabaseType: md.DatabaseType, BuildTime: time.Unix(int64(md.BuildEpoch), 0).UTC()}
		}
	}
	if h.audit != nil {
		if t, err := h.audit.ViolationTotals(r.Context(), r.URL.Query().Get("userId")); err == nil {
			out.Audit = t
		} else {
			h.log.Warn("audit_totals_error", "err", err)
		}
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *Handler) regions(w http.ResponseWriter, r *http.Request) {
	names := h.catalog.Names()
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, names)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.Header().Set("cache-control", "no-store")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
