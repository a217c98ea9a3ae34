// 包 geo：地理围栏判定所需的最小几何结构与纯函数（点入多边形、边界距离、包围盒）
package geo

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrMalformedGeometry：环不足三个不同顶点、坐标越界等导致点入判定无定义的几何
var ErrMalformedGeometry = errors.New("malformed geometry")

// Coordinate：WGS84 经纬度，值类型，不可变
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid：经纬度范围校验；NaN/Inf 视为非法，不做截断
func (c Coordinate) Valid() bool {
	if !c.Finite() {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Finite：经纬度均为有限值（可编码为 JSON）
func (c Coordinate) Finite() bool {
	return !math.IsNaN(c.Lat) && !math.IsNaN(c.Lng) && !math.IsInf(c.Lat, 0) && !math.IsInf(c.Lng, 0)
}

func (c Coordinate) String() string { return fmt.Sprintf("(%.6f, %.6f)", c.Lat, c.Lng) }

// BBox：轴对齐包围盒（度）
type BBox struct {
	MinLat float64 `json:"minLat"`
	MinLng float64 `json:"minLng"`
	MaxLat float64 `json:"maxLat"`
	MaxLng float64 `json:"maxLng"`
}

func emptyBBox() BBox { return BBox{MinLat: 90, MinLng: 180, MaxLat: -90, MaxLng: -180} }

func (b *BBox) extend(c Coordinate) {
	if c.Lat < b.MinLat {
		b.MinLat = c.Lat
	}
	if c.Lng < b.MinLng {
		b.MinLng = c.Lng
	}
	if c.Lat > b.MaxLat {
		b.MaxLat = c.Lat
	}
	if c.Lng > b.MaxLng {
		b.MaxLng = c.Lng
	}
}

func (b *BBox) union(o BBox) {
	b.extend(Coordinate{Lat: o.MinLat, Lng: o.MinLng})
	b.extend(Coordinate{Lat: o.MaxLat, Lng: o.MaxLng})
}

// Contains：闭区间判定，边界上的点视为在盒内
func (b BBox) Contains(c Coordinate) bool {
	return c.Lat >= b.MinLat && c.Lat <= b.MaxLat && c.Lng >= b.MinLng && c.Lng <= b.MaxLng
}

// Polygon：按 GeoJSON 约定的环集合，第一环是外环，其后为洞；环已闭合（首尾相同）
type Polygon struct {
	Rings  [][]Coordinate
	Bounds BBox
}

// Region：单个行政区（州/省）的几何
// 约束：构造后只读；多面（MultiPolygon）以多个 Polygon 表达，任一 Polygon 命中即视为在区域内。
type Region struct {
	Name     string
	Polygons []Polygon
	Bounds   BBox
}

// NewRegion：由若干多边形（每个多边形为环列表）构造区域，并预计算包围盒
// 背景：数据源约定环闭合，但兼容未闭合输入；未闭合时自动补上首点，不改变缠绕方向。
// 异常：名称为空、无多边形、环顶点不足或坐标越界时返回包装了 ErrMalformedGeometry 的错误。
func NewRegion(name string, polygons ...[][]Coordinate) (*Region, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: region name is empty", ErrMalformedGeometry)
	}
	if len(polygons) == 0 {
		return nil, fmt.Errorf("%w: region %q has no polygons", ErrMalformedGeometry, name)
	}
	r := &Region{Name: name, Bounds: emptyBBox()}
	for pi, rings := range polygons {
		if len(rings) == 0 {
			return nil, fmt.Errorf("%w: region %q polygon %d has no rings", ErrMalformedGeometry, name, pi)
		}
		poly := Polygon{Bounds: emptyBBox()}
		for ri, ring := range rings {
			closed, err := closeRing(ring)
			if err != nil {
				return nil, fmt.Errorf("%w: region %q polygon %d ring %d: %v", ErrMalformedGeometry, name, pi, ri, err)
			}
			if ri == 0 {
				for _, c := range closed {
					poly.Bounds.extend(c)
				}
			}
			poly.Rings = append(poly.Rings, closed)
		}
		r.Bounds.union(poly.Bounds)
		r.Polygons = append(r.Polygons, poly)
	}
	return r, nil
}

// MustRegion：测试与静态数据使用；几何非法时 panic
func MustRegion(name string, polygons ...[][]Coordinate) *Region {
	r, err := NewRegion(name, polygons...)
	if err != nil {
		panic(err)
	}
	return r
}

func closeRing(ring []Coordinate) ([]Coordinate, error) {
	distinct := make(map[Coordinate]struct{}, len(ring))
	for _, c := range ring {
		if !c.Valid() {
			return nil, fmt.Errorf("coordinate %s out of range", c)
		}
		distinct[c] = struct{}{}
	}
	if len(distinct) < 3 {
		return nil, fmt.Errorf("ring needs at least 3 distinct vertices, got %d", len(distinct))
	}
	out := make([]Coordinate, 0, len(ring)+1)
	out = append(out, ring...)
	if out[0] != out[len(out)-1] {
		out = append(out, out[0])
	}
	return out, nil
}
