// 包 geoip：客户端 IP → 坐标/省级名称，用于登录地与操作地围栏校验
package geoip

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/lionsoul2014/ip2region/binding/golang/xdb"
	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"

	"geofence-api/internal/geo"
	"geofence-api/internal/metrics"
)

var (
	ErrNoDatabase = errors.New("no geoip database configured")
	ErrNoLocation = errors.New("no location for ip")
	ErrBadIP      = errors.New("bad ip")
)

// 默认可信精度（千米）；MaxMind 精度半径超过该值时只信任省级名称
const DefaultMaxAccuracyKm = 200

// Location：IP 定位结果；HasCoordinate=false 时仅 Province 可用
type Location struct {
	Coordinate    geo.Coordinate
	HasCoordinate bool
	AccuracyKm    int
	Province      string
	Source        string
}

// CityReader：*geoip2.Reader 满足该接口
type CityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Metadata() maxminddb.Metadata
	Close() error
}

// RegionSearcher：*xdb.Searcher 满足该接口
type RegionSearcher interface {
	SearchByStr(ip string) (string, error)
}

// 文档注释：IP 定位器
// 背景：优先 MaxMind GeoLite2/GeoIP2 City 获取经纬度；记录缺坐标或精度过粗时回退 ip2region 的省级名称。
// 约束：两者皆未配置时返回 ErrNoDatabase；名称语言取 lang（默认 en）。
type Resolver struct {
	city          CityReader
	region        RegionSearcher
	lang          string
	maxAccuracyKm int
}

func New(city CityReader, region RegionSearcher) *Resolver {
	return &Resolver{city: city, region: region, lang: "en", maxAccuracyKm: DefaultMaxAccuracyKm}
}

// Open：按路径打开数据库；路径为空的一侧跳过
func Open(mmdbPath, xdbPath string) (*Resolver, error) {
	var city CityReader
	var region RegionSearcher
	if mmdbPath != "" {
		r, err := geoip2.Open(mmdbPath)
		if err != nil {
			return nil, err
		}
		city = r
	}
	if xdbPath != "" {
		s, err := xdb.NewWithFileOnly(xdb.IPv4, xdbPath)
		if err != nil {
			if city != nil {
				_ = city.Close()
			}
			return nil, err
		}
		region = s
	}
	if city == nil && region == nil {
		return nil, ErrNoDatabase
	}
	return New(city, region), nil
}

// SetMaxAccuracyKm：调整坐标可信精度阈值
func (r *Resolver) SetMaxAccuracyKm(km int) {
	if km > 0 {
		r.maxAccuracyKm = km
	}
}

// Metadata：MaxMind 库元数据（构建时间、库类型），未配置时返回 false
func (r *Resolver) Metadata() (maxminddb.Metadata, bool) {
	if r == nil || r.city == nil {
		return maxminddb.Metadata{}, false
	}
	return r.city.Metadata(), true
}

func (r *Resolver) Locate(ctx context.Context, ip string) (Location, error) {
	if r == nil || (r.city == nil && r.region == nil) {
		return Location{}, ErrNoDatabase
	}
	if err := ctx.Err(); err != nil {
		return Location{}, err
	}
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return Location{}, ErrBadIP
	}
	var out Location
	if r.city != nil {
		rec, err := r.city.City(parsed)
		if err != nil {
			metrics.GeoIPLookupsTotal.WithLabelValues("maxmind", "error").Inc()
		} else {
			out.Source = "maxmind"
			out.AccuracyKm = int(rec.Location.AccuracyRadius)
			if len(rec.Subdivisions) > 0 {
				out.Province = rec.Subdivisions[0].Names[r.lang]
			}
			hasXY := rec.Location.Latitude != 0 || rec.Location.Longitude != 0
			if hasXY && out.AccuracyKm <= r.maxAccuracyKm {
				out.Coordinate = geo.Coordinate{Lat: rec.Location.Latitude, Lng: rec.Location.Longitude}
				out.HasCoordinate = true
				metrics.GeoIPLookupsTotal.WithLabelValues("maxmind", "ok").Inc()
				return out, nil
			}
			metrics.GeoIPLookupsTotal.WithLabelValues("maxmind", "coarse").Inc()
		}
	}
	if out.Province == "" && r.region != nil && parsed.To4() != nil {
		s, err := r.region.SearchByStr(parsed.String())
		if err == nil && s != "" {
			if p := provinceOf(s); p != "" {
				out.Province = p
				out.Source = "ip2region"
				metrics.GeoIPLookupsTotal.WithLabelValues("ip2region", "ok").Inc()
			}
		} else {
			metrics.GeoIPLookupsTotal.WithLabelValues("ip2region", "miss").Inc()
		}
	}
	if out.Province == "" {
		return Location{}, ErrNoLocation
	}
	return out, nil
}

func (r *Resolver) Close() error {
	if r == nil {
		return nil
	}
	var err error
	if r.city != nil {
		err = r.city.Close()
	}
	if c, ok := r.region.(interface{ Close() }); ok {
		c.Close()
	}
	return err
}

// ip2region 区域串：国家|区域|省份|城市|ISP，"0" 表示缺失
func provinceOf(s string) string {
	parts := strings.Split(s, "|")
	if len(parts) < 3 {
		return ""
	}
	p := strings.TrimSpace(parts[2])
	if p == "0" || strings.EqualFold(p, "unknown") {
		return ""
	}
	return p
}
