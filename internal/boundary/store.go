// 包 boundary：边界数据存储，一次加载后只读，按区域名提供几何
package boundary

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"geofence-api/internal/geo"
	"geofence-api/internal/metrics"
)

// 加载结果快照：只读引用，供查询期共享
type snapshot struct {
	byKey    map[string]*geo.Region
	names    []string
	loadedAt time.Time
}

// 文档注释：边界数据存储
// 背景：区域几何在进程生命周期内静态不变；加载完成后以原子指针发布快照，读路径无锁。
// 约束：Get 在 Load 完成前返回未命中；重复 Load 会整体替换快照，不做增量合并。
type Store struct {
	src  Source
	log  *slog.Logger
	snap atomic.Pointer[snapshot]
}

func NewStore(src Source, l *slog.Logger) *Store {
	if l == nil {
		l = slog.Default()
	}
	return &Store{src: src, log: l}
}

// Load：从数据源拉取全部区域并发布快照
// 异常：数据源为空、不可达或几何非法时返回 *DataLoadError。
func (s *Store) Load(ctx context.Context) error {
	if s.src == nil {
		metrics.BoundaryLoadsTotal.WithLabelValues("error").Inc()
		return &DataLoadError{Source: "none", Err: ErrNoSource}
	}
	t0 := time.Now()
	regions, err := s.src.Fetch(ctx)
	if err == nil && len(regions) == 0 {
		err = ErrNoRegions
	}
	if err != nil {
		metrics.BoundaryLoadsTotal.WithLabelValues("error").Inc()
		s.log.Error("boundary_load_error", "source", s.src.Name(), "err", err)
		return &DataLoadError{Source: s.src.Name(), Err: err}
	}
	snap := &snapshot{byKey: make(map[string]*geo.Region, len(regions)), loadedAt: time.Now()}
	for _, r := range regions {
		k := key(r.Name)
		if _, dup := snap.byKey[k]; dup {
			s.log.Warn("boundary_duplicate_region", "name", r.Name)
		} else {
			snap.names = append(snap.names, r.Name)
		}
		snap.byKey[k] = r
	}
	sort.Strings(snap.names)
	s.snap.Store(snap)
	metrics.BoundaryLoadsTotal.WithLabelValues("ok").Inc()
	metrics.RegionsLoaded.Set(float64(len(snap.names)))
	s.log.Info("boundary_load_ok", "source", s.src.Name(), "regions", len(snap.names), "ms", time.Since(t0).Milliseconds())
	return nil
}

// Get：按名称（忽略大小写与首尾空白）获取区域；未知名称返回 false，不视为错误
func (s *Store) Get(name string) (*geo.Region, bool) {
	sn := s.snap.Load()
	if sn == nil {
		return nil, false
	}
	r, ok := sn.byKey[key(name)]
	return r, ok
}

func (s *Store) Loaded() bool { return s.snap.Load() != nil }

// Names：已加载区域名（排序后）
func (s *Store) Names() []string {
	sn := s.snap.Load()
	if sn == nil {
		return nil
	}
	return append([]string(nil), sn.names...)
}

func (s *Store) Len() int {
	sn := s.snap.Load()
	if sn == nil {
		return 0
	}
	return len(sn.names)
}

func (s *Store) LoadedAt() time.Time {
	sn := s.snap.Load()
	if sn == nil {
		return time.Time{}
	}
	return sn.loadedAt
}

func key(name string) string { return strings.ToLower(strings.TrimSpace(name)) }
