// 包 config：进程配置；.env 先由 godotenv 装载，再由 viper 合并环境变量与默认值
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config：全部配置项，键名即环境变量名
type Config struct {
	Addr      string `mapstructure:"ADDR"`
	APIBase   string `mapstructure:"API_BASE"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`

	TLSEnable   bool   `mapstructure:"TLS_ENABLE"`
	TLSCertPath string `mapstructure:"TLS_CERT_PATH"`
	TLSKeyPath  string `mapstructure:"TLS_KEY_PATH"`

	// PG_HOST 为空时使用内存存储
	PGHost         string `mapstructure:"PG_HOST"`
	PGPort         int    `mapstructure:"PG_PORT"`
	PGUser         string `mapstructure:"PG_USER"`
	PGPassword     string `mapstructure:"PG_PASSWORD"`
	PGDB           string `mapstructure:"PG_DB"`
	PGSSLMode      string `mapstructure:"PG_SSLMODE"`
	PGMaxOpenConns int    `mapstructure:"PG_MAX_OPEN_CONNS"`
	PGMaxIdleConns int    `mapstructure:"PG_MAX_IDLE_CONNS"`

	RedisEnabled bool   `mapstructure:"REDIS_ENABLED"`
	RedisHost    string `mapstructure:"REDIS_HOST"`
	RedisPort    int    `mapstructure:"REDIS_PORT"`
	RedisPass    string `mapstructure:"REDIS_PASS"`
	RedisDB      int    `mapstructure:"REDIS_DB"`

	CacheTTLSeconds       int `mapstructure:"CACHE_TTL_S"`
	CacheSize             int `mapstructure:"CACHE_SIZE"`
	CacheGeohashPrecision int `mapstructure:"CACHE_GEOHASH_PRECISION"`

	AlwaysActive           bool   `mapstructure:"GEOZONE_ALWAYS_ACTIVE"`
	PrioritySupported      bool   `mapstructure:"GEOZONE_PRIORITY_SUPPORTED"`
	ClientUploadOnly       bool   `mapstructure:"GEOZONE_CLIENT_UPLOAD_ONLY"`
	ReverseGeocodeOnly     bool   `mapstructure:"GEOZONE_REVERSE_GEOCODE_ONLY"`
	CheckerList            string `mapstructure:"GEOZONE_CHECKERS"`
	LegacyCorridorFallback bool   `mapstructure:"GEOZONE_LEGACY_CORRIDOR_FALLBACK"`

	ZonesGeoJSON       string `mapstructure:"ZONES_GEOJSON"`
	ZonesReloadSeconds int    `mapstructure:"ZONES_RELOAD_S"`
	GeoIPDBPath        string `mapstructure:"GEOIP_DB_PATH"`

	RateLimitEnabled bool `mapstructure:"RATE_LIMIT_ENABLED"`
	RateLimitQPS     int  `mapstructure:"RATE_LIMIT_QPS"`

	MQTTBroker      string `mapstructure:"MQTT_BROKER"`
	MQTTClientID    string `mapstructure:"MQTT_CLIENT_ID"`
	MQTTTopic       string `mapstructure:"MQTT_TOPIC"`
	RabbitMQURL     string `mapstructure:"RABBITMQ_URL"`
	TrackerExchange string `mapstructure:"TRACKER_EXCHANGE"`
}

var defaults = map[string]any{
	"ADDR":                             ":8080",
	"API_BASE":                         "/api",
	"LOG_LEVEL":                        "info",
	"LOG_FORMAT":                       "text",
	"TLS_ENABLE":                       false,
	"TLS_CERT_PATH":                    "data/certs/server.crt",
	"TLS_KEY_PATH":                     "data/certs/server.key",
	"PG_HOST":                          "",
	"PG_PORT":                          5432,
	"PG_USER":                          "postgres",
	"PG_PASSWORD":                      "",
	"PG_DB":                            "geozone",
	"PG_SSLMODE":                       "disable",
	"PG_MAX_OPEN_CONNS":                50,
	"PG_MAX_IDLE_CONNS":                25,
	"REDIS_ENABLED":                    false,
	"REDIS_HOST":                       "127.0.0.1",
	"REDIS_PORT":                       6379,
	"REDIS_PASS":                       "",
	"REDIS_DB":                         0,
	"CACHE_TTL_S":                      300,
	"CACHE_SIZE":                       4096,
	"CACHE_GEOHASH_PRECISION":          6,
	"GEOZONE_ALWAYS_ACTIVE":            false,
	"GEOZONE_PRIORITY_SUPPORTED":       true,
	"GEOZONE_CLIENT_UPLOAD_ONLY":       false,
	"GEOZONE_REVERSE_GEOCODE_ONLY":     false,
	"GEOZONE_CHECKERS":                 "",
	"GEOZONE_LEGACY_CORRIDOR_FALLBACK": false,
	"ZONES_GEOJSON":                    "",
	"ZONES_RELOAD_S":                   0,
	"GEOIP_DB_PATH":                    "",
	"RATE_LIMIT_ENABLED":               false,
	"RATE_LIMIT_QPS":                   50,
	"MQTT_BROKER":                      "",
	"MQTT_CLIENT_ID":                   "geozone-listener",
	"MQTT_TOPIC":                       "/fleet/+/+/position",
	"RABBITMQ_URL":                     "",
	"TRACKER_EXCHANGE":                 "geozone.events",
}

// 文档注释：加载配置
// 背景：.env 供本地开发；APP_ENV 指定的 .env.<env> 作为 viper 配置文件；环境变量优先于文件。
// 异常：配置文件缺失不视为错误；取值不合法返回错误，进程应拒绝启动。
func Load() (Config, error) {
	_ = godotenv.Load()
	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}
	v := viper.New()
	for k, d := range defaults {
		v.SetDefault(k, d)
	}
	v.SetConfigName(".env." + env)
	v.SetConfigType("env")
	v.AddConfigPath(".")
	v.AutomaticEnv()
	if err := v.ReadInConfig(); err != nil {
		var nf viper.ConfigFileNotFoundError
		if !errors.As(err, &nf) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate：检查取值范围
func (c Config) Validate() error {
	if c.CacheGeohashPrecision < 1 || c.CacheGeohashPrecision > 12 {
		return fmt.Errorf("CACHE_GEOHASH_PRECISION must be within 1..12, got %d", c.CacheGeohashPrecision)
	}
	if c.RateLimitEnabled && c.RateLimitQPS <= 0 {
		return fmt.Errorf("RATE_LIMIT_QPS must be positive, got %d", c.RateLimitQPS)
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// Checkers：GEOZONE_CHECKERS 拆分后的名称；为空表示全部
func (c Config) Checkers() []string {
	var out []string
	for _, s := range strings.Split(c.CheckerList, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, strings.ToLower(s))
		}
	}
	return out
}

func (c Config) CacheTTL() time.Duration { return time.Duration(c.CacheTTLSeconds) * time.Second }

// PostgresDSN：按 PG_* 组合连接串；未配置 PG_HOST 时返回空
func (c Config) PostgresDSN() string {
	if c.PGHost == "" {
		return ""
	}
	dsn := "postgres://" + c.PGUser
	if c.PGPassword != "" {
		dsn += ":" + c.PGPassword
	}
	return dsn + fmt.Sprintf("@%s:%d/%s?sslmode=%s", c.PGHost, c.PGPort, c.PGDB, c.PGSSLMode)
}

func (c Config) RedisAddr() string { return fmt.Sprintf("%s:%d", c.RedisHost, c.RedisPort) }
