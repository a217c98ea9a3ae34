// 程序入口：仅负责读取配置、初始化依赖并启动服务；API 注册在 internal/api 以便扩展
package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"geofence-api/internal/api"
	"geofence-api/internal/audit"
	"geofence-api/internal/boundary"
	"geofence-api/internal/config"
	"geofence-api/internal/geofence"
	"geofence-api/internal/geoip"
	"geofence-api/internal/logger"
	"geofence-api/internal/migrate"
	"geofence-api/internal/store"
	"geofence-api/internal/users"
	"geofence-api/internal/utils"
	"geofence-api/internal/violation"
)

func main() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(filepath.Join("data", "env", ".env"))
	l := logger.Setup()
	l.Debug("log_init_ok")

	cfg, err := config.Load()
	if err != nil {
		l.Error("config_error", "err", err)
		os.Exit(1)
	}
	l.Debug("config_ok", "sources", cfg.BoundarySources, "api_base", cfg.APIBase, "users", len(cfg.Users))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *sql.DB
	if cfg.HasSource(config.SourcePostgres) || cfg.AuditEnabled {
		db, err = utils.OpenPostgresFromEnv()
		if err != nil {
			l.Error("db_open_error", "err", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.PingContext(ctx); err != nil {
			l.Error("db_ping_error", "err", err)
		} else {
			l.Info("db_ping_ok")
			if err := migrate.EnsureSchema(ctx, db); err != nil {
				l.Error("schema_error", "err", err)
			}
		}
	}
	var rc *redis.Client
	if cfg.HasSource(config.SourceRedis) || cfg.AuditDedupTTL > 0 {
		rc = utils.OpenRedisFromEnv()
		defer rc.Close()
		if err := rc.Ping(ctx).Err(); err != nil {
			l.Error("redis_ping_error", "err", err)
		} else {
			l.Info("redis_ping_ok")
		}
	}

	var st *store.Store
	if db != nil {
		st = store.AttachDB(db)
	}
	bs := boundary.NewStore(buildSource(cfg, st, rc), logger.Component("boundary"))

	opts := []geofence.Option{
		geofence.WithLogger(logger.Component("geofence")),
		geofence.WithViolationCapacity(cfg.ViolationCapacity),
	}
	if cfg.AuditEnabled && st != nil {
		var sink violation.Sink = st
		if rc != nil && cfg.AuditDedupTTL > 0 {
			sink = audit.NewDedupSink(st, rc, cfg.AuditDedupTTL, logger.Component("audit"))
		}
		opts = append(opts, geofence.WithSink(sink))
	}
	var gr *geoip.Resolver
	if cfg.GeoIPCityPath != "" || cfg.IP2RegionPath != "" {
		gr, err = geoip.Open(cfg.GeoIPCityPath, cfg.IP2RegionPath)
		if err != nil {
			l.Error("geoip_open_error", "err", err)
		} else {
			defer gr.Close()
			gr.SetMaxAccuracyKm(cfg.GeoIPMaxAccuracyKm)
			opts = append(opts, geofence.WithIPLocator(gr))
			if md, ok := gr.Metadata(); ok {
				l.Info("geoip_open_ok", "type", md.DatabaseType, "build_epoch", md.BuildEpoch)
			}
		}
	}
	svc := geofence.NewService(bs, opts...)

	up, err := users.NewStatic(cfg.Users)
	if err != nil {
		l.Error("users_error", "err", err)
		os.Exit(1)
	}

	go preloadLoop(ctx, svc, cfg.PreloadTimeout, l)

	hopts := []api.Option{api.WithLogger(logger.Component("api")), api.WithPreloadTimeout(cfg.PreloadTimeout)}
	if st != nil && cfg.AuditEnabled {
		hopts = append(hopts, api.WithAuditTotals(st))
	}
	if gr != nil {
		hopts = append(hopts, api.WithGeoIPInfo(gr))
	}
	h := api.NewHandler(svc, up, cfg.Policy, bs, hopts...)
	handler := api.NewRouter(h, api.RouterConfig{
		APIBase:        cfg.APIBase,
		RateLimit:      cfg.RateLimitEnabled,
		RateLimitQPS:   cfg.RateLimitQPS,
		RateLimitBurst: cfg.RateLimitBurst,
	}, l)

	s := &http.Server{Addr: cfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = s.Shutdown(sctx)
	}()

	if cfg.TLSEnable {
		certPath, keyPath := cfg.TLSCertPath, cfg.TLSKeyPath
		if certPath == "" {
			certPath = filepath.Join("data", "certs", "server.crt")
		}
		if keyPath == "" {
			keyPath = filepath.Join("data", "certs", "server.key")
		}
		if err := utils.EnsureSelfSignedCert(certPath, keyPath, "geofence.local"); err != nil {
			l.Error("tls_cert_error", "err", err)
			os.Exit(1)
		}
		l.Info("listening_tls", "addr", cfg.Addr, "cert", certPath)
		err = s.ListenAndServeTLS(certPath, keyPath)
	} else {
		l.Info("listening", "addr", cfg.Addr)
		err = s.ListenAndServe()
	}
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		l.Error("server_error", "err", err)
		os.Exit(1)
	}
	l.Info("server_stopped")
}

// buildSource：按配置顺序组合数据源，后者覆盖前者同名区域
func buildSource(cfg *config.Config, st *store.Store, rc *redis.Client) boundary.Source {
	var srcs []boundary.Source
	for _, name := range cfg.BoundarySources {
		switch name {
		case config.SourceDir:
			srcs = append(srcs, boundary.DirSource{Dir: cfg.BoundaryDir})
		case config.SourcePostgres:
			if st != nil {
				srcs = append(srcs, boundary.PostgresSource{Rows: st})
			}
		case config.SourceRedis:
			if rc != nil {
				srcs = append(srcs, boundary.RedisSource{Client: rc, Key: cfg.RedisKey})
			}
		}
	}
	switch len(srcs) {
	case 0:
		return nil
	case 1:
		return srcs[0]
	default:
		return boundary.MultiSource{Sources: srcs}
	}
}

// preloadLoop：后台预加载；失败按指数退避重试，直到成功或进程退出
func preloadLoop(ctx context.Context, svc *geofence.Service, timeout time.Duration, l *slog.Logger) {
	backoff := 5 * time.Second
	for {
		pctx, cancel := context.WithTimeout(ctx, timeout)
		err := svc.Preload(pctx)
		cancel()
		if err == nil {
			l.Info("boundary_preload_ok")
			return
		}
		l.Warn("boundary_preload_retry", "err", err, "in", backoff.String())
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff < time.Minute {
			backoff *= 2
		}
	}
}
