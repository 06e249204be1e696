package api

import (
	"context"

	"geozone-api/internal/geozone"
)

// Resolver：路由依赖的解析能力
type Resolver interface {
	FindContaining(ctx context.Context, account string, p geozone.Point) ([]*geozone.Zone, error)
	FindFirstContaining(ctx context.Context, account string, p geozone.Point, purpose string) (*geozone.Zone, error)
	FindFirstForDevice(ctx context.Context, account string, p geozone.Point, deviceID string) (*geozone.Zone, error)
	ContainsExact(ctx context.Context, account, zoneID string, p geozone.Point) (bool, error)
	FindInBounds(ctx context.Context, account string, b geozone.Bounds) ([]*geozone.Zone, error)
	Description(ctx context.Context, account string, p geozone.Point) (string, error)
	Save(ctx context.Context, z *geozone.Zone) error
	IsTypeSupported(t geozone.GeozoneType) bool
}

// Locator：IP 定位，可为空
type Locator interface {
	Locate(ip string) (geozone.Point, error)
}

// 文档注释：对外返回结构
// 约束：列表字段始终输出数组，零命中为 []，不是 null。
type zonesResult struct {
	Zones []*geozone.Zone `json:"zones"`
}

type zoneResult struct {
	Zone *geozone.Zone `json:"zone"`
}

type containsResult struct {
	Contains bool `json:"contains"`
}

type descriptionResult struct {
	Description string `json:"description"`
}

type typeInfo struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	HasRadius bool   `json:"hasRadius"`
	Supported bool   `json:"supported"`
}

type errorResult struct {
	Error string `json:"error"`
}
