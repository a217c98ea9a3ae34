package boundary

import (
	"context"

	"geofence-api/internal/geo"
)

// BoundaryLister：读取按区域存放的 GeoJSON 行；由 store.Store 实现
type BoundaryLister interface {
	ListBoundaries(ctx context.Context) ([]RawBoundary, error)
}

// 文档注释：PostgreSQL 边界数据源
// 背景：运营方通过 boundary-import 将 GeoJSON 写入 _geofence_boundaries；服务启动时一次性读取。
type PostgresSource struct {
	Rows BoundaryLister
}

func (s PostgresSource) Name() string { return "postgres" }

func (s PostgresSource) Fetch(ctx context.Context) ([]*geo.Region, error) {
	rows, err := s.Rows.ListBoundaries(ctx)
	if err != nil {
		return nil, err
	}
	return parseRaw(rows)
}
