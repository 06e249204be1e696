// 包 geoip：基于 MaxMind City 库把 IP 定位为坐标，供 HTTP 查询在缺少经纬度时使用
package geoip

import (
	"fmt"
	"net"
	"strings"
	"time"

	"geozone-api/internal/geozone"
	"geozone-api/internal/logger"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"
)

// cityReader：geoip2.Reader 的最小子集
type cityReader interface {
	City(ip net.IP) (*geoip2.City, error)
	Metadata() maxminddb.Metadata
	Close() error
}

// Locator：IP → 坐标
type Locator struct {
	r cityReader
}

// Open：打开 mmdb 文件并记录库类型与构建时间
func Open(path string) (*Locator, error) {
	r, err := geoip2.Open(path)
	if err != nil {
		return nil, err
	}
	l := &Locator{r: r}
	md := l.r.Metadata()
	logger.L().Info("geoip_open_ok", "path", path, "type", md.DatabaseType, "built", l.BuildTime().Format(time.RFC3339))
	return l, nil
}

// BuildTime：数据库构建时间
func (l *Locator) BuildTime() time.Time {
	return time.Unix(int64(l.r.Metadata().BuildEpoch), 0).UTC()
}

// 文档注释：定位 IP
// 异常：IP 非法或库中无坐标时返回 ErrInvalidInput；库读取失败返回 ErrStoreUnavailable。
func (l *Locator) Locate(ip string) (geozone.Point, error) {
	addr := net.ParseIP(strings.TrimSpace(ip))
	if addr == nil {
		return geozone.Point{}, fmt.Errorf("%w: ip %q", geozone.ErrInvalidInput, ip)
	}
	c, err := l.r.City(addr)
	if err != nil {
		return geozone.Point{}, fmt.Errorf("%w: geoip: %v", geozone.ErrStoreUnavailable, err)
	}
	p := geozone.Point{Lat: c.Location.Latitude, Lon: c.Location.Longitude}
	if !p.Valid() {
		return geozone.Point{}, fmt.Errorf("%w: no location for %s", geozone.ErrInvalidInput, ip)
	}
	return p, nil
}

func (l *Locator) Close() error { return l.r.Close() }
