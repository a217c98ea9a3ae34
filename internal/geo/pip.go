package geo

import "math"

// 边界判定容差（度）；点到边的叉积在容差内且落在线段包围盒内即视为在边上
const edgeEpsilon = 1e-12

// 文档注释：点入区域判定（Even-Odd）
// 背景：先做包围盒快速排除，再逐个多边形执行射线法；任一多边形命中即命中。
// 约束：外环边界与顶点包含在内；洞内视为不在区域内，洞的边界仍属于区域；不处理跨 180° 经线（数据均在印度经度范围内）。
func PointInRegion(p Coordinate, r *Region) bool {
	if r == nil || BoundingBoxReject(p, r) {
		return false
	}
	for i := range r.Polygons {
		if pointInPolygon(p, &r.Polygons[i]) {
			return true
		}
	}
	return false
}

// BoundingBoxReject：点在区域包围盒之外时返回 true，此时不可能在多边形内
func BoundingBoxReject(p Coordinate, r *Region) bool {
	return !r.Bounds.Contains(p)
}

func pointInPolygon(p Coordinate, poly *Polygon) bool {
	if len(poly.Rings) == 0 || !poly.Bounds.Contains(p) {
		return false
	}
	outer := poly.Rings[0]
	if onRingEdge(p, outer) {
		return true
	}
	if !pointInRing(p, outer) {
		return false
	}
	for _, hole := range poly.Rings[1:] {
		if onRingEdge(p, hole) {
			continue
		}
		if pointInRing(p, hole) {
			return false
		}
	}
	return true
}

// 射线法判定点是否在环内；与缠绕方向无关
func pointInRing(p Coordinate, ring []Coordinate) bool {
	n := len(ring)
	if n < 3 {
		return false
	}
	inside := false
	x, y := p.Lng, p.Lat
	for i, j := 0, n-1; i < n; j, i = i, i+1 {
		xi, yi := ring[i].Lng, ring[i].Lat
		xj, yj := ring[j].Lng, ring[j].Lat
		if (yi > y) != (yj > y) && x < (xj-xi)*(y-yi)/(yj-yi)+xi {
			inside = !inside
		}
	}
	return inside
}

func onRingEdge(p Coordinate, ring []Coordinate) bool {
	for i := 1; i < len(ring); i++ {
		if onSegment(p, ring[i-1], ring[i]) {
			return true
		}
	}
	return false
}

func onSegment(p, a, b Coordinate) bool {
	if p == a || p == b {
		return true
	}
	if p.Lng < math.Min(a.Lng, b.Lng)-edgeEpsilon || p.Lng > math.Max(a.Lng, b.Lng)+edgeEpsilon ||
		p.Lat < math.Min(a.Lat, b.Lat)-edgeEpsilon || p.Lat > math.Max(a.Lat, b.Lat)+edgeEpsilon {
		return false
	}
	dx, dy := b.Lng-a.Lng, b.Lat-a.Lat
	cross := dx*(p.Lat-a.Lat) - dy*(p.Lng-a.Lng)
	return math.Abs(cross) <= edgeEpsilon*math.Max(1, math.Hypot(dx, dy))
}
