// 包 config：服务配置；环境变量提供基础设施参数，GEOFENCE_CONFIG 指向的 YAML 文件提供默认策略与用户分配
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"geofence-api/internal/geofence"
	"geofence-api/internal/users"
)

var ErrInvalidConfig = errors.New("invalid config")

// 边界数据源名称
const (
	SourceDir      = "dir"
	SourcePostgres = "postgres"
	SourceRedis    = "redis"
)

// Config：启动期一次性读取，之后只读
type Config struct {
	Addr    string
	APIBase string

	// BoundarySources：按顺序合并，后者覆盖前者同名区域
	BoundarySources []string
	BoundaryDir     string
	RedisKey        string

	GeoIPCityPath      string
	IP2RegionPath      string
	GeoIPMaxAccuracyKm int

	ViolationCapacity int
	PreloadTimeout    time.Duration
	AuditEnabled      bool
	AuditDedupTTL     time.Duration

	RateLimitEnabled bool
	RateLimitQPS     float64
	RateLimitBurst   int

	TLSEnable   bool
	TLSCertPath string
	TLSKeyPath  string

	Policy geofence.Config
	Users  []users.Assignment
}

// file：YAML 文件结构
type file struct {
	Policy *geofence.Config   `yaml:"policy"`
	Users  []users.Assignment `yaml:"users"`
}

// Defaults：未设置任何环境变量时的取值
func Defaults() Config {
	return Config{
		Addr:               ":8080",
		APIBase:            "/api",
		BoundarySources:    []string{SourceDir},
		BoundaryDir:        "data/boundaries",
		RedisKey:           "geofence:boundaries",
		GeoIPMaxAccuracyKm: 200,
		ViolationCapacity:  200,
		PreloadTimeout:     30 * time.Second,
		RateLimitQPS:       200,
		RateLimitBurst:     400,
		Policy: geofence.Config{
			ShowWarnings:      true,
			AllowNearBorder:   true,
			BorderToleranceKm: 10,
		},
	}
}

// 文档注释：读取配置
// 背景：顺序为默认值 → YAML 文件 → 环境变量，后者覆盖前者；YAML 中未知字段视为错误，避免拼写错误的策略被静默忽略。
// 异常：取值非法时返回包装了 ErrInvalidConfig 的错误。
func Load() (*Config, error) {
	c := Defaults()
	if path := os.Getenv("GEOFENCE_CONFIG"); path != "" {
		if err := c.loadFile(path); err != nil {
			return nil, err
		}
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	var f file
	if err := yaml.UnmarshalWithOptions(data, &f, yaml.DisallowUnknownField()); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrInvalidConfig, path, err)
	}
	if f.Policy != nil {
		c.Policy = *f.Policy
		c.Policy.AssignedStates = nil
		c.Policy.UserID = ""
	}
	c.Users = f.Users
	return nil
}

func (c *Config) applyEnv() error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			*dst = v
		}
	}
	str("ADDR", &c.Addr)
	str("API_BASE", &c.APIBase)
	str("BOUNDARY_DIR", &c.BoundaryDir)
	str("BOUNDARY_REDIS_KEY", &c.RedisKey)
	str("GEOIP_CITY_DB", &c.GeoIPCityPath)
	str("IP2REGION_XDB", &c.IP2RegionPath)
	str("TLS_CERT_PATH", &c.TLSCertPath)
	str("TLS_KEY_PATH", &c.TLSKeyPath)
	if v := os.Getenv("BOUNDARY_SOURCE"); v != "" {
		c.BoundarySources = nil
		for _, s := range strings.Split(v, ",") {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				c.BoundarySources = append(c.BoundarySources, s)
			}
		}
	}

	var errs []error
	parsed := func(key string, set func(string) error) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			if err := set(v); err != nil {
				errs = append(errs, fmt.Errorf("%s=%q: %v", key, v, err))
			}
		}
	}
	parsed("GEOIP_MAX_ACCURACY_KM", intVar(&c.GeoIPMaxAccuracyKm))
	parsed("VIOLATION_LOG_CAPACITY", intVar(&c.ViolationCapacity))
	parsed("PRELOAD_TIMEOUT", durationVar(&c.PreloadTimeout))
	parsed("AUDIT_ENABLED", boolVar(&c.AuditEnabled))
	parsed("AUDIT_DEDUP_TTL", durationVar(&c.AuditDedupTTL))
	parsed("RATE_LIMIT_ENABLED", boolVar(&c.RateLimitEnabled))
	parsed("RATE_LIMIT_QPS", floatVar(&c.RateLimitQPS))
	parsed("RATE_LIMIT_BURST", intVar(&c.RateLimitBurst))
	parsed("TLS_ENABLE", boolVar(&c.TLSEnable))
	parsed("GEOFENCE_STRICT_MODE", boolVar(&c.Policy.StrictMode))
	parsed("GEOFENCE_SHOW_WARNINGS", boolVar(&c.Policy.ShowWarnings))
	parsed("GEOFENCE_ALLOW_NEAR_BORDER", boolVar(&c.Policy.AllowNearBorder))
	parsed("GEOFENCE_BORDER_TOLERANCE_KM", floatVar(&c.Policy.BorderToleranceKm))
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Validate：跨字段校验
func (c *Config) Validate() error {
	var errs []error
	if len(c.BoundarySources) == 0 {
		errs = append(errs, errors.New("no boundary source"))
	}
	for _, s := range c.BoundarySources {
		switch s {
		case SourceDir, SourcePostgres, SourceRedis:
		default:
			errs = append(errs, fmt.Errorf("unknown boundary source %q", s))
		}
	}
	if tol := c.Policy.BorderToleranceKm; tol < 0 || math.IsNaN(tol) || math.IsInf(tol, 0) {
		errs = append(errs, fmt.Errorf("border tolerance %v km", tol))
	}
	if c.ViolationCapacity <= 0 {
		errs = append(errs, fmt.Errorf("violation log capacity %d", c.ViolationCapacity))
	}
	if c.RateLimitEnabled && (c.RateLimitQPS <= 0 || c.RateLimitBurst <= 0) {
		errs = append(errs, fmt.Errorf("rate limit %v qps burst %d", c.RateLimitQPS, c.RateLimitBurst))
	}
	if !strings.HasPrefix(c.APIBase, "/") {
		errs = append(errs, fmt.Errorf("api base %q must start with /", c.APIBase))
	}
	for _, u := range c.Users {
		if u.BorderToleranceKm == nil {
			continue
		}
		if tol := *u.BorderToleranceKm; tol < 0 || math.IsNaN(tol) || math.IsInf(tol, 0) {
			errs = append(errs, fmt.Errorf("user %s: border tolerance %v km", u.ID, *u.BorderToleranceKm))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// HasSource：是否启用了指定边界数据源
func (c *Config) HasSource(name string) bool {
	for _, s := range c.BoundarySources {
		if s == name {
			return true
		}
	}
	return false
}

func intVar(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(v)
		if err == nil {
			*dst = n
		}
		return err
	}
}

func floatVar(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(v, 64)
		if err == nil {
			*dst = f
		}
		return err
	}
}

func boolVar(dst *bool) func(string) error {
	return func(v string) error {
		b, err := strconv.ParseBool(v)
		if err == nil {
			*dst = b
		}
		return err
	}
}

func durationVar(dst *time.Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err == nil {
			*dst = d
		}
		return err
	}
}
