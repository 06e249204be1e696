// 包 app：进程装配；按配置选择存储与缓存，构建判定器表与解析器，供各命令入口共用
package app

import (
	"context"
	"database/sql"
	"fmt"

	"geozone-api/internal/config"
	"geozone-api/internal/geozone"
	"geozone-api/internal/loader"
	"geozone-api/internal/logger"
	"geozone-api/internal/metrics"
	"geozone-api/internal/migrate"
	"geozone-api/internal/plugins"
	"geozone-api/internal/resolver"
	"geozone-api/internal/store"
	"geozone-api/internal/utils"
	"geozone-api/internal/zonecache"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

// zoneBackend：PostgreSQL 与内存存储的共同能力
type zoneBackend interface {
	resolver.ZoneStore
	resolver.DeviceGroups
	AddMember(ctx context.Context, account, groupID, deviceID string) error
}

// App：装配完成的依赖
type App struct {
	Config   config.Config
	DB       *sql.DB
	Redis    *redis.Client
	Store    zoneBackend
	Checkers *plugins.Manager
	Metrics  *metrics.Collector
	Resolver *resolver.Resolver
}

// 文档注释：按配置装配
// 背景：配置了 PG_HOST 时使用 PostgreSQL 并确保表结构；否则使用内存存储，并从 ZONES_GEOJSON 装载围栏。
// 约束：reg 为空时不注册指标；任一步失败都会释放已打开的连接。
func Build(ctx context.Context, c config.Config, reg prometheus.Registerer) (_ *App, err error) {
	a := &App{Config: c}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()
	if reg != nil {
		if a.Metrics, err = metrics.New(reg); err != nil {
			return nil, fmt.Errorf("metrics: %w", err)
		}
	}
	a.Checkers = plugins.NewManager(a.Metrics)
	a.Checkers.SetLegacyCorridorFallback(c.LegacyCorridorFallback)
	if err = plugins.RegisterBuiltins(a.Checkers, c.Checkers()); err != nil {
		return nil, err
	}

	if a.DB, err = utils.OpenPostgres(ctx, c); err != nil {
		return nil, fmt.Errorf("%w: postgres: %v", geozone.ErrStoreUnavailable, err)
	}
	if a.DB != nil {
		if err = migrate.EnsureSchema(ctx, a.DB); err != nil {
			return nil, fmt.Errorf("schema: %w", err)
		}
		a.Store = store.AttachDB(a.DB)
	} else {
		logger.L().Info("store_memory", "reason", "PG_HOST not set")
		a.Store = store.NewMemory()
	}

	a.Redis = utils.OpenRedis(ctx, c)
	var cache *zonecache.Cache
	if c.CacheSize > 0 {
		cache = zonecache.New(zonecache.Options{Size: c.CacheSize, TTL: c.CacheTTL(), Precision: c.CacheGeohashPrecision}, a.Redis, a.Metrics)
	}
	policy := resolver.UseStoredFlag
	if c.AlwaysActive {
		policy = resolver.TreatAllAsActive
	}
	a.Resolver = resolver.New(a.Store, a.Store, a.Checkers, cache, a.Metrics, resolver.Options{
		ActivePolicy:       policy,
		PrioritySupported:  c.PrioritySupported,
		ClientUploadOnly:   c.ClientUploadOnly,
		ReverseGeocodeOnly: c.ReverseGeocodeOnly,
	})

	if a.DB == nil && c.ZonesGeoJSON != "" {
		n, err := a.Import(ctx, c.ZonesGeoJSON, "")
		if err != nil {
			return nil, err
		}
		logger.L().Info("store_memory_seeded", "zones", n)
	}
	return a, nil
}

// Import：从 GeoJSON 文件或目录装载围栏并逐条保存（保存时重算包围盒）
func (a *App) Import(ctx context.Context, path, account string) (int, error) {
	zs, err := loader.LoadPath(path, account)
	if err != nil {
		return 0, fmt.Errorf("load %s: %w", path, err)
	}
	for i, z := range zs {
		if err := a.Resolver.Save(ctx, z); err != nil {
			return i, fmt.Errorf("save %s: %w", z.Key(), err)
		}
	}
	return len(zs), nil
}

// Ping：健康检查项
func (a *App) Ping() map[string]func(context.Context) error {
	checks := map[string]func(context.Context) error{}
	if a.DB != nil {
		checks["postgres"] = a.DB.PingContext
	}
	if a.Redis != nil {
		checks["redis"] = func(ctx context.Context) error { return a.Redis.Ping(ctx).Err() }
	}
	return checks
}

func (a *App) Close() {
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
