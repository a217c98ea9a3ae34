// 包 store: 提供与 PostgreSQL 的数据访问层，包含边界几何读写与违规审计
package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"geofence-api/internal/boundary"
	"geofence-api/internal/logger"
	"geofence-api/internal/violation"
)

// Store: 数据库访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Close: 关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// ListBoundaries: 读取全部区域（名称 + GeoJSON 几何），供 boundary.PostgresSource 加载
func (s *Store) ListBoundaries(ctx context.Context) ([]boundary.RawBoundary, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, geojson FROM _geofence_boundaries ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []boundary.RawBoundary
	for rows.Next() {
		var b boundary.RawBoundary
		if err := rows.Scan(&b.Name, &b.GeoJSON); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	logger.L().Debug("db_boundaries_listed", "count", len(out))
	return out, nil
}

// UpsertBoundary: 按名称写入或覆盖区域几何
func (s *Store) UpsertBoundary(ctx context.Context, name, geojson string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO _geofence_boundaries(name, geojson, updated_at) VALUES($1, $2, now())
		 ON CONFLICT (name) DO UPDATE SET geojson=EXCLUDED.geojson, updated_at=now()`,
		name, geojson)
	return err
}

// PruneBoundaries: 删除不在 keep 列表中的区域，返回删除行数；keep 为空时不做删除
func (s *Store) PruneBoundaries(ctx context.Context, keep []string) (int64, error) {
	if len(keep) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx, "DELETE FROM _geofence_boundaries WHERE NOT (name = ANY($1))", pq.Array(keep))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// WriteViolation: 违规审计落库，实现 violation.Sink；ID 冲突（重复投递）忽略
func (s *Store) WriteViolation(ctx context.Context, e violation.Entry) error {
	var lat, lng sql.NullFloat64
	if e.Point != nil {
		lat = sql.NullFloat64{Float64: e.Point.Lat, Valid: true}
		lng = sql.NullFloat64{Float64: e.Point.Lng, Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO _geofence_violations(id, user_id, type, message, lat, lng, cell, created_at)
		 VALUES($1, $2, $3, $4, $5, $6, $7, $8) ON CONFLICT (id) DO NOTHING`,
		e.ID, e.UserID, e.Type, e.Message, lat, lng, e.Cell, e.Timestamp)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) {
			logger.L().Debug("db_violation_write_error", "code", string(pqErr.Code), "detail", pqErr.Detail)
		}
		return err
	}
	return nil
}

// Totals: 违规累计与当日计数
type Totals struct {
	Total int64 `json:"total"`
	Today int64 `json:"today"`
}

// ViolationTotals: 按用户统计违规；userID 为空时统计全部
func (s *Store) ViolationTotals(ctx context.Context, userID string) (*Totals, error) {
	var t Totals
	since := time.Now().UTC().Truncate(24 * time.Hour)
	row := s.db.QueryRowContext(ctx,
		`SELECT count(*), count(*) FILTER (WHERE created_at >= $2)
		 FROM _geofence_violations WHERE ($1 = '' OR user_id = $1)`,
		userID, since)
	if err := row.Scan(&t.Total, &t.Today); err != nil {
		return nil, err
	}
	logger.L().Debug("stats_totals", "user_id", userID, "total", t.Total, "today", t.Today)
	return &t, nil
}
