// 包 users：用户 → 已分配区域与策略的只读目录（会话提供方）
package users

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"geofence-api/internal/geofence"
)

var ErrDuplicateUser = errors.New("duplicate user id")

// Assignment：单个用户的区域分配；策略字段为空时取全局默认
type Assignment struct {
	ID                string   `yaml:"id" json:"id"`
	States            []string `yaml:"states" json:"states"`
	StrictMode        *bool    `yaml:"strict_mode,omitempty" json:"strictMode,omitempty"`
	ShowWarnings      *bool    `yaml:"show_warnings,omitempty" json:"showWarnings,omitempty"`
	AllowNearBorder   *bool    `yaml:"allow_near_border,omitempty" json:"allowNearBorder,omitempty"`
	BorderToleranceKm *float64 `yaml:"border_tolerance_km,omitempty" json:"borderTolerance,omitempty"`
}

// Config：叠加默认策略得到会话配置
func (a Assignment) Config(defaults geofence.Config) geofence.Config {
	c := defaults
	c.UserID = a.ID
	c.AssignedStates = append([]string(nil), a.States...)
	if a.StrictMode != nil {
		c.StrictMode = *a.StrictMode
	}
	if a.ShowWarnings != nil {
		c.ShowWarnings = *a.ShowWarnings
	}
	if a.AllowNearBorder != nil {
		c.AllowNearBorder = *a.AllowNearBorder
	}
	if a.BorderToleranceKm != nil {
		c.BorderToleranceKm = *a.BorderToleranceKm
	}
	return c
}

// Provider：按用户 ID 查找分配
type Provider interface {
	Lookup(userID string) (Assignment, bool)
}

// Static：内存目录，来自配置文件
type Static struct {
	byID map[string]Assignment
}

// NewStatic：用户 ID 为空或重复时报错
func NewStatic(as []Assignment) (*Static, error) {
	s := &Static{byID: make(map[string]Assignment, len(as))}
	for i, a := range as {
		id := strings.TrimSpace(a.ID)
		if id == "" {
			return nil, fmt.Errorf("user #%d: empty id", i)
		}
		if _, dup := s.byID[id]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateUser, id)
		}
		a.ID = id
		s.byID[id] = a
	}
	return s, nil
}

func (s *Static) Lookup(userID string) (Assignment, bool) {
	a, ok := s.byID[strings.TrimSpace(userID)]
	return a, ok
}

// IDs：排序后的用户 ID
func (s *Static) IDs() []string {
	out := make([]string, 0, len(s.byID))
	for id := range s.byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
