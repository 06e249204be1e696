// 包 zonecache：按 geohash 网格缓存候选围栏行；本地 LRU 在前，可选 Redis 共享层在后
package zonecache

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"

	"geozone-api/internal/geozone"
	"geozone-api/internal/logger"
	"geozone-api/internal/metrics"

	"github.com/redis/go-redis/v9"
)

// Options：缓存参数
type Options struct {
	Size      int
	TTL       time.Duration
	Precision int
}

// 文档注释：候选缓存
// 背景：网格内任意点的候选集都是“包围盒与网格相交的围栏”的子集，缓存该超集后再按点过滤即可得到精确候选。
// 约束：键包含账号版本号；写入围栏后 Bump 递增版本，使旧键自然失效。配置了 Redis 时版本号存于 Redis 以便多实例共享。
type Cache struct {
	lru       *LRU
	rc        *redis.Client
	ttl       time.Duration
	precision int
	mc        *metrics.Collector

	mu       sync.Mutex
	versions map[string]int64
}

func New(opts Options, rc *redis.Client, mc *metrics.Collector) *Cache {
	if opts.Size <= 0 {
		opts.Size = 4096
	}
	if opts.TTL <= 0 {
		opts.TTL = 5 * time.Minute
	}
	if opts.Precision <= 0 {
		opts.Precision = 6
	}
	return &Cache{
		lru:       NewLRU(opts.Size, opts.TTL),
		rc:        rc,
		ttl:       opts.TTL,
		precision: opts.Precision,
		mc:        mc,
		versions:  make(map[string]int64),
	}
}

// Cell：点所在网格与其范围
func (c *Cache) Cell(p geozone.Point) (string, geozone.Bounds) { return cellOf(p, c.precision) }

// Key：组合缓存键；flags 由调用方编码查询过滤条件
func (c *Cache) Key(ctx context.Context, account, flags, cell string) string {
	return "geozone:cand:" + account + ":" + strconv.FormatInt(c.version(ctx, account), 10) + ":" + flags + ":" + cell
}

func verKey(account string) string { return "geozone:ver:" + account }

func (c *Cache) version(ctx context.Context, account string) int64 {
	if c.rc != nil {
		v, err := c.rc.Get(ctx, verKey(account)).Int64()
		if err == nil {
			return v
		}
		if !errors.Is(err, redis.Nil) {
			logger.L().Debug("cache_version_error", "account", account, "err", err)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.versions[account]
}

// Get：先查本地 LRU，未命中再查 Redis；Redis 命中后回填本地
func (c *Cache) Get(ctx context.Context, key string) ([]*geozone.Zone, bool) {
	if v, ok := c.lru.Get(key); ok {
		c.mc.CacheHit("local")
		return v, true
	}
	if c.rc != nil {
		s, err := c.rc.Get(ctx, key).Result()
		if err == nil && s != "" {
			var rows []*geozone.Zone
			if e := json.Unmarshal([]byte(s), &rows); e == nil {
				c.lru.Set(key, rows)
				c.mc.CacheHit("redis")
				return rows, true
			}
		}
	}
	c.mc.CacheMiss()
	return nil, false
}

// Set：写入本地与 Redis（失败仅记录日志）
func (c *Cache) Set(ctx context.Context, key string, rows []*geozone.Zone) {
	c.lru.Set(key, rows)
	if c.rc == nil {
		return
	}
	b, err := json.Marshal(rows)
	if err != nil {
		return
	}
	if err := c.rc.Set(ctx, key, b, c.ttl).Err(); err != nil {
		logger.L().Debug("cache_redis_set_error", "key", key, "err", err)
	}
}

// Bump：递增账号版本，使该账号全部缓存失效
func (c *Cache) Bump(ctx context.Context, account string) {
	c.mu.Lock()
	c.versions[account]++
	c.mu.Unlock()
	if c.rc != nil {
		if err := c.rc.Incr(ctx, verKey(account)).Err(); err != nil {
			logger.L().Warn("cache_version_bump_error", "account", account, "err", err)
		}
	}
	logger.L().Debug("cache_version_bump", "account", account)
}

// Flags：把查询过滤条件编码为键片段
func Flags(activeOnly, clientUploadOnly, reverseGeocodeOnly, byPriority bool, zoneID string) string {
	var b strings.Builder
	for _, f := range []bool{activeOnly, clientUploadOnly, reverseGeocodeOnly, byPriority} {
		if f {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	if zoneID != "" {
		b.WriteString("/" + zoneID)
	}
	return b.String()
}
