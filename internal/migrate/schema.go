// 包 migrate：首次运行自动创建围栏与设备组成员表
package migrate

import (
	"context"
	"database/sql"
	"fmt"

	"geozone-api/internal/logger"
)

// 背景：围栏按 (account_id, geozone_id, sort_id) 唯一；包围盒四列带账号前缀索引，支撑扁平扫描预过滤
// 约束：使用 IF NOT EXISTS，可重复执行；顶点以两个等长 FLOAT8[] 列保存
var stmts = []string{
	`CREATE TABLE IF NOT EXISTS geozone (
            account_id TEXT NOT NULL,
            geozone_id TEXT NOT NULL,
            sort_id INTEGER NOT NULL DEFAULT 0,
            zone_type SMALLINT NOT NULL DEFAULT 0,
            radius INTEGER NOT NULL DEFAULT 0 CHECK (radius >= 0),
            lats DOUBLE PRECISION[] NOT NULL DEFAULT '{}',
            lons DOUBLE PRECISION[] NOT NULL DEFAULT '{}',
            min_lat DOUBLE PRECISION NOT NULL DEFAULT 0,
            max_lat DOUBLE PRECISION NOT NULL DEFAULT 0,
            min_lon DOUBLE PRECISION NOT NULL DEFAULT 0,
            max_lon DOUBLE PRECISION NOT NULL DEFAULT 0,
            priority INTEGER NOT NULL DEFAULT 0,
            group_id TEXT NOT NULL DEFAULT '',
            purpose_id TEXT NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            arrival_zone BOOLEAN NOT NULL DEFAULT TRUE,
            departure_zone BOOLEAN NOT NULL DEFAULT TRUE,
            auto_notify BOOLEAN NOT NULL DEFAULT FALSE,
            reverse_geocode BOOLEAN NOT NULL DEFAULT TRUE,
            client_upload BOOLEAN NOT NULL DEFAULT FALSE,
            client_id INTEGER NOT NULL DEFAULT 0,
            speed_limit_kph DOUBLE PRECISION NOT NULL DEFAULT 0,
            description TEXT NOT NULL DEFAULT '',
            updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
            PRIMARY KEY (account_id, geozone_id, sort_id)
        )`,
	`CREATE INDEX IF NOT EXISTS idx_geozone_bounds ON geozone(account_id, min_lat, max_lat, min_lon, max_lon)`,
	`CREATE INDEX IF NOT EXISTS idx_geozone_priority ON geozone(account_id, priority, sort_id)`,
	`CREATE TABLE IF NOT EXISTS device_group_member (
            account_id TEXT NOT NULL,
            group_id TEXT NOT NULL,
            device_id TEXT NOT NULL,
            PRIMARY KEY (account_id, group_id, device_id)
        )`,
}

// EnsureSchema：按顺序执行建表语句，任一失败即返回
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for i, s := range stmts {
		if _, err := db.ExecContext(ctx, s); err != nil {
			logger.L().Error("schema_stmt_error", "index", i, "err", err)
			return fmt.Errorf("schema statement %d: %w", i, err)
		}
	}
	logger.L().Info("schema_ready", "statements", len(stmts))
	return nil
}
