package middleware

import (
	"math"
	"net/http"
	"strconv"

	"golang.org/x/time/rate"

	"geofence-api/internal/metrics"
)

// 文档注释：令牌桶限流中间件
// 背景：在流量峰值时对入口进行限速，避免批量路径校验拖慢交互式请求；速率与突发量来自配置。
// 约束：不做队列排队，超限直接返回 429 并附带 Retry-After；/metrics 不经过该中间件（由路由层决定挂载位置）。
func RateLimit(qps float64, burst int) func(http.Handler) http.Handler {
	lim := rate.NewLimiter(rate.Limit(qps), burst)
	retry := strconv.Itoa(int(math.Max(1, math.Ceil(1/qps))))
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !lim.Allow() {
				metrics.HTTPRejectedTotal.Inc()
				w.Header().Set("Retry-After", retry)
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
