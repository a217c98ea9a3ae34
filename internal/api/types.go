package api

import (
	"time"

	"geofence-api/internal/geo"
)

// 文档注释：请求与响应结构（对外）
// 约束：字段稳定；新增字段需评估前端地图工具的兼容性。坐标使用指针以区分缺省与 0。
type pointRequest struct {
	UserID string   `json:"userId"`
	Lat    *float64 `json:"lat"`
	Lng    *float64 `json:"lng"`
}

type pathRequest struct {
	UserID string           `json:"userId"`
	Points []geo.Coordinate `json:"points"`
}

type ipRequest struct {
	UserID string `json:"userId"`
	IP     string `json:"ip"`
}

type validResponse struct {
	Valid bool `json:"valid"`
}

type errorResponse struct {
	Error string `json:"error"`
}

type geoipStatus struct {
	DatabaseType string    `json:"databaseType"`
	BuildTime    time.Time `json:"buildTime"`
}

type statusResponse struct {
	State    string       `json:"state"`
	Regions  int          `json:"regions"`
	LoadedAt *time.Time   `json:"loadedAt,omitempty"`
	Error    string       `json:"error,omitempty"`
	GeoIP    *geoipStatus `json:"geoip,omitempty"`
	Audit    any          `json:"audit,omitempty"`
}
