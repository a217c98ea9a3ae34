package geo

import "math"

// EarthRadiusKm：平均地球半径
const EarthRadiusKm = 6371.0

// Haversine：球面距离（千米）
// a = sin²(Δφ/2) + cos φ1 · cos φ2 · sin²(Δλ/2)；d = 2R · atan2(√a, √(1−a))
func Haversine(a, b Coordinate) float64 {
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(a.Lat*math.Pi/180)*math.Cos(b.Lat*math.Pi/180)*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusKm * c
}

// 文档注释：点到区域边界的最短距离（千米）
// 背景：供边界容差判定使用；点在区域内时返回 0，使容差逻辑直接短路。
// 约束：对每个多边形取外环各线段的最近点；若点落在某多边形的洞内，则改为测量到该洞各环的距离。
// 最近点在以查询点纬度缩放的等距矩形平面中按线段投影求得，距离本身以 Haversine 计算。
func DistanceToRegionBoundary(p Coordinate, r *Region) float64 {
	if r == nil {
		return math.Inf(1)
	}
	if PointInRegion(p, r) {
		return 0
	}
	best := math.Inf(1)
	for i := range r.Polygons {
		poly := &r.Polygons[i]
		if len(poly.Rings) == 0 {
			continue
		}
		rings := poly.Rings[:1]
		if len(poly.Rings) > 1 && pointInRing(p, poly.Rings[0]) {
			rings = poly.Rings[1:]
		}
		for _, ring := range rings {
			if d := distanceToRing(p, ring); d < best {
				best = d
			}
		}
	}
	return best
}

func distanceToRing(p Coordinate, ring []Coordinate) float64 {
	best := math.Inf(1)
	for i := 1; i < len(ring); i++ {
		c := closestOnSegment(p, ring[i-1], ring[i])
		if d := Haversine(p, c); d < best {
			best = d
		}
	}
	return best
}

func closestOnSegment(p, a, b Coordinate) Coordinate {
	k := math.Cos(p.Lat * math.Pi / 180)
	ax, ay := a.Lng*k, a.Lat
	bx, by := b.Lng*k, b.Lat
	px, py := p.Lng*k, p.Lat
	dx, dy := bx-ax, by-ay
	l2 := dx*dx + dy*dy
	if l2 == 0 {
		return a
	}
	t := ((px-ax)*dx + (py-ay)*dy) / l2
	if t <= 0 {
		return a
	}
	if t >= 1 {
		return b
	}
	return Coordinate{Lat: a.Lat + t*(b.Lat-a.Lat), Lng: a.Lng + t*(b.Lng-a.Lng)}
}
