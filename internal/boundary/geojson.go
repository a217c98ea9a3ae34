package boundary

import (
	"encoding/json"
	"fmt"
	"strings"

	"geofence-api/internal/geo"
)

// 文档注释：GeoJSON 解析（FeatureCollection / Feature / Polygon / MultiPolygon / GeometryCollection）
// 背景：行政边界常见来源（geoBoundaries、Datameet 印度邦界等）均为 GeoJSON；坐标顺序为 [lng, lat]。
// 约束：区域名取自属性 name/state/st_nm/province/region/NAME_1；同名要素合并为一个多面区域，按首次出现顺序输出。
var nameKeys = []string{"name", "state", "st_nm", "province", "region", "NAME_1"}

type geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
	Geometries  []geometry      `json:"geometries"`
}

type feature struct {
	Type       string         `json:"type"`
	Properties map[string]any `json:"properties"`
	Geometry   *geometry      `json:"geometry"`
}

type document struct {
	Type        string          `json:"type"`
	Features    []feature       `json:"features"`
	Properties  map[string]any  `json:"properties"`
	Geometry    *geometry       `json:"geometry"`
	Coordinates json.RawMessage `json:"coordinates"`
	Geometries  []geometry      `json:"geometries"`
}

// boundaries.json 的条目：{"name": "...", "geometry": {...}}，兼容 state/province 字段
type namedEntry struct {
	Name     string    `json:"name"`
	State    string    `json:"state"`
	Province string    `json:"province"`
	Geometry *geometry `json:"geometry"`
}

// ParseGeoJSON：解析单个 GeoJSON 文档为区域列表
// 参数：fallbackName 用于裸几何（无属性）文档，通常为文件名。
func ParseGeoJSON(data []byte, fallbackName string) ([]*geo.Region, error) {
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		return parseEntries(data)
	}
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", geo.ErrMalformedGeometry, err)
	}
	acc := newAccumulator()
	switch strings.ToLower(doc.Type) {
	case "featurecollection":
		for i, f := range doc.Features {
			name := propName(f.Properties)
			if name == "" {
				return nil, fmt.Errorf("%w: feature %d has no name property", geo.ErrMalformedGeometry, i)
			}
			if err := acc.add(name, f.Geometry); err != nil {
				return nil, err
			}
		}
	case "feature":
		name := propName(doc.Properties)
		if name == "" {
			name = fallbackName
		}
		if err := acc.add(name, doc.Geometry); err != nil {
			return nil, err
		}
	case "polygon", "multipolygon", "geometrycollection":
		g := &geometry{Type: doc.Type, Coordinates: doc.Coordinates, Geometries: doc.Geometries}
		if err := acc.add(fallbackName, g); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: unsupported GeoJSON type %q", geo.ErrMalformedGeometry, doc.Type)
	}
	return acc.regions()
}

// ParseGeometry：按给定名称解析单个几何或要素（数据库/Redis 中按区域存放的值）
func ParseGeometry(name string, data []byte) (*geo.Region, error) {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: region %q: %v", geo.ErrMalformedGeometry, name, err)
	}
	g := doc.Geometry
	if !strings.EqualFold(doc.Type, "feature") {
		g = &geometry{Type: doc.Type, Coordinates: doc.Coordinates, Geometries: doc.Geometries}
	}
	acc := newAccumulator()
	if err := acc.add(name, g); err != nil {
		return nil, err
	}
	rs, err := acc.regions()
	if err != nil {
		return nil, err
	}
	return rs[0], nil
}

func parseEntries(data []byte) ([]*geo.Region, error) {
	var entries []namedEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %v", geo.ErrMalformedGeometry, err)
	}
	acc := newAccumulator()
	for i, e := range entries {
		name := firstNonEmpty(e.Name, e.State, e.Province)
		if name == "" {
			return nil, fmt.Errorf("%w: entry %d has no name", geo.ErrMalformedGeometry, i)
		}
		if err := acc.add(name, e.Geometry); err != nil {
			return nil, err
		}
	}
	return acc.regions()
}

type accumulator struct {
	order []string
	polys map[string][][][]geo.Coordinate
}

func newAccumulator() *accumulator {
	return &accumulator{polys: make(map[string][][][]geo.Coordinate)}
}

func (a *accumulator) add(name string, g *geometry) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: geometry without region name", geo.ErrMalformedGeometry)
	}
	if g == nil {
		return fmt.Errorf("%w: region %q has no geometry", geo.ErrMalformedGeometry, name)
	}
	polys, err := polygonsOf(g)
	if err != nil {
		return fmt.Errorf("%w: region %q: %v", geo.ErrMalformedGeometry, name, err)
	}
	if _, ok := a.polys[name]; !ok {
		a.order = append(a.order, name)
	}
	a.polys[name] = append(a.polys[name], polys...)
	return nil
}

func (a *accumulator) regions() ([]*geo.Region, error) {
	out := make([]*geo.Region, 0, len(a.order))
	for _, name := range a.order {
		r, err := geo.NewRegion(name, a.polys[name]...)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

func polygonsOf(g *geometry) ([][][]geo.Coordinate, error) {
	switch strings.ToLower(g.Type) {
	case "polygon":
		var coords [][][]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, err
		}
		p, err := toRings(coords)
		if err != nil {
			return nil, err
		}
		return [][][]geo.Coordinate{p}, nil
	case "multipolygon":
		var coords [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &coords); err != nil {
			return nil, err
		}
		out := make([][][]geo.Coordinate, 0, len(coords))
		for _, part := range coords {
			p, err := toRings(part)
			if err != nil {
				return nil, err
			}
			out = append(out, p)
		}
		return out, nil
	case "geometrycollection":
		var out [][][]geo.Coordinate
		for i := range g.Geometries {
			ps, err := polygonsOf(&g.Geometries[i])
			if err != nil {
				return nil, err
			}
			out = append(out, ps...)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
	}
}

func toRings(coords [][][]float64) ([][]geo.Coordinate, error) {
	rings := make([][]geo.Coordinate, 0, len(coords))
	for _, ring := range coords {
		rr := make([]geo.Coordinate, 0, len(ring))
		for _, p := range ring {
			if len(p) < 2 {
				return nil, fmt.Errorf("position with %d values", len(p))
			}
			rr = append(rr, geo.Coordinate{Lat: p[1], Lng: p[0]})
		}
		rings = append(rings, rr)
	}
	return rings, nil
}

func propName(props map[string]any) string {
	for _, k := range nameKeys {
		if v, ok := props[k].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// EncodeGeometry：区域几何编码为 GeoJSON（单面为 Polygon，多面为 MultiPolygon），供导入工具写入数据库或 Redis
func EncodeGeometry(r *geo.Region) ([]byte, error) {
	if r == nil || len(r.Polygons) == 0 {
		return nil, fmt.Errorf("%w: empty region", geo.ErrMalformedGeometry)
	}
	polys := make([][][][2]float64, 0, len(r.Polygons))
	for _, p := range r.Polygons {
		rings := make([][][2]float64, 0, len(p.Rings))
		for _, ring := range p.Rings {
			rr := make([][2]float64, 0, len(ring))
			for _, c := range ring {
				rr = append(rr, [2]float64{c.Lng, c.Lat})
			}
			rings = append(rings, rr)
		}
		polys = append(polys, rings)
	}
	if len(polys) == 1 {
		return json.Marshal(struct {
			Type        string         `json:"type"`
			Coordinates [][][2]float64 `json:"coordinates"`
		}{"Polygon", polys[0]})
	}
	return json.Marshal(struct {
		Type        string           `json:"type"`
		Coordinates [][][][2]float64 `json:"coordinates"`
	}{"MultiPolygon", polys})
}
