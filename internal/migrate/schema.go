package migrate

import (
	"context"
	"database/sql"

	"geofence-api/internal/logger"
)

// 背景：首次运行自动创建边界与审计表，保障后续导入与查询
// 约束：使用 IF NOT EXISTS 避免与既有结构冲突；仅创建最小必需结构
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS _geofence_boundaries (
			name TEXT PRIMARY KEY,
			geojson TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`,
		`CREATE TABLE IF NOT EXISTS _geofence_violations (
			id UUID PRIMARY KEY,
			user_id TEXT NOT NULL DEFAULT '',
			type TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			lat DOUBLE PRECISION,
			lng DOUBLE PRECISION,
			cell TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_geofence_violations_user_time ON _geofence_violations(user_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_geofence_violations_cell ON _geofence_violations(cell)`,
	}
	for i, s := range stmts {
		logger.L().Debug("schema_exec", "idx", i)
		if _, err := db.ExecContext(ctx, s); err != nil {
			return err
		}
	}
	logger.L().Debug("schema_done")
	return nil
}
