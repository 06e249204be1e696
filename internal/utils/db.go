// 包 utils：外部连接工具（PostgreSQL、Redis、自签名证书），参数统一来自 config.Config
package utils

import (
	"context"
	"database/sql"
	"time"

	"geozone-api/internal/config"
	"geozone-api/internal/logger"

	_ "github.com/lib/pq"
)

// OpenPostgres：按配置打开连接池并探活
// 约束：未配置 PG_HOST 时返回 (nil, nil)，调用方改用内存存储
func OpenPostgres(ctx context.Context, c config.Config) (*sql.DB, error) {
	dsn := c.PostgresDSN()
	if dsn == "" {
		return nil, nil
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(c.PGMaxOpenConns)
	db.SetMaxIdleConns(c.PGMaxIdleConns)
	db.SetConnMaxIdleTime(5 * time.Minute)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	logger.L().Info("db_open_ok", "host", c.PGHost, "db", c.PGDB)
	return db, nil
}
