package boundary

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSource：未配置边界数据源
	ErrNoSource = errors.New("no boundary source configured")
	// ErrNoRegions：数据源可达但没有任何区域
	ErrNoRegions = errors.New("boundary source returned no regions")
	// ErrRegionNotFound：按名称访问不存在的区域（导入工具使用；查询路径上未知名称不是错误）
	ErrRegionNotFound = errors.New("region not found")
)

// DataLoadError：边界数据不可达或格式错误；调用方（预加载器）据此重试或降级为不限制
type DataLoadError struct {
	Source string
	Err    error
}

func (e *DataLoadError) Error() string {
	return fmt.Sprintf("boundary load from %s: %v", e.Source, e.Err)
}

func (e *DataLoadError) Unwrap() error { return e.Err }
