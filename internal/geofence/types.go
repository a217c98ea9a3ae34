// 包 geofence：地理围栏校验核心（区域解析、策略判定、预加载与会话）
package geofence

import "geofence-api/internal/geo"

// ViolationType：校验结果分类
type ViolationType string

const (
	OutsideAllRegions  ViolationType = "outside_all_regions"
	InvalidCoordinates ViolationType = "invalid_coordinates"
	NearBorderWarning  ViolationType = "near_border_warning"
	UnknownViolation   ViolationType = "unknown_violation"
	// DataUnavailable：边界数据未就绪时的降级标注，结果仍为有效，不计入违规记录
	DataUnavailable ViolationType = "data_unavailable"
)

// Config：围栏策略；每个用户会话构造一次
// AssignedStates 为空表示不做地理限制（全局权限管理员）；UserID 仅用于审计归属。
type Config struct {
	StrictMode        bool     `json:"strictMode" yaml:"strict_mode"`
	ShowWarnings      bool     `json:"showWarnings" yaml:"show_warnings"`
	AllowNearBorder   bool     `json:"allowNearBorder" yaml:"allow_near_border"`
	BorderToleranceKm float64  `json:"borderTolerance" yaml:"border_tolerance_km"`
	AssignedStates    []string `json:"assignedStates,omitempty" yaml:"assigned_states"`
	UserID            string   `json:"userId,omitempty" yaml:"user_id"`
}

// Unrestricted：未分配任何区域
func (c Config) Unrestricted() bool { return len(c.AssignedStates) == 0 }

// Result：校验结果
// 约束：IsValid=true 与非空 ViolationType 可以同时出现（near_border_warning、data_unavailable），二者不可混为一谈。
type Result struct {
	IsValid           bool            `json:"isValid"`
	ViolationType     ViolationType   `json:"violationType,omitempty"`
	Message           string          `json:"message,omitempty"`
	ViolatingPoint    *geo.Coordinate `json:"violatingPoint,omitempty"`
	NearestRegion     string          `json:"nearestRegion,omitempty"`
	NearestDistanceKm float64         `json:"nearestDistanceKm,omitempty"`
	Warnings          []string        `json:"warnings,omitempty"`
}

// Flagged：结果携带任何分类（含有效但被标注的情况）
func (r Result) Flagged() bool { return r.ViolationType != "" }
