package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"geozone-api/internal/geozone"
)

var errNoLocator = errors.New("lat/lon required")

// 文档注释：解析查询点
// 背景：优先 lat/lon；缺失时使用 ip 参数，再退回请求来源 IP，经 Locator 定位。
// 约束：lat/lon 只给一个或无法解析时返回 ErrInvalidInput；越界坐标原样返回，由解析器按“空结果”处理。
func pointFrom(r *http.Request, loc Locator) (geozone.Point, error) {
	q := r.URL.Query()
	la, lo := strings.TrimSpace(q.Get("lat")), strings.TrimSpace(q.Get("lon"))
	if la != "" || lo != "" {
		lat, err1 := strconv.ParseFloat(la, 64)
		lon, err2 := strconv.ParseFloat(lo, 64)
		if err1 != nil || err2 != nil {
			return geozone.Point{}, fmt.Errorf("%w: lat=%q lon=%q", geozone.ErrInvalidInput, la, lo)
		}
		return geozone.Point{Lat: lat, Lon: lon}, nil
	}
	if loc == nil {
		return geozone.Point{}, fmt.Errorf("%w: %v", geozone.ErrInvalidInput, errNoLocator)
	}
	ip := clientIP(r)
	if ip == "" {
		return geozone.Point{}, fmt.Errorf("%w: %v", geozone.ErrInvalidInput, errNoLocator)
	}
	return loc.Locate(ip)
}

func boundsFrom(r *http.Request) (geozone.Bounds, error) {
	q := r.URL.Query()
	var v [4]float64
	for i, k := range []string{"minLat", "maxLat", "minLon", "maxLon"} {
		f, err := strconv.ParseFloat(strings.TrimSpace(q.Get(k)), 64)
		if err != nil {
			return geozone.Bounds{}, fmt.Errorf("%w: %s=%q", geozone.ErrInvalidInput, k, q.Get(k))
		}
		v[i] = f
	}
	return geozone.Bounds{MinLat: v[0], MaxLat: v[1], MinLon: v[2], MaxLon: v[3]}, nil
}

// clientIP：显式 ip 参数，其次常见反向代理头，最后 RemoteAddr
func clientIP(r *http.Request) string {
	if q := strings.TrimSpace(r.URL.Query().Get("ip")); q != "" {
		return q
	}
	h := r.Header
	if x := h.Get("x-forwarded-for"); x != "" {
		return strings.TrimSpace(strings.Split(x, ",")[0])
	}
	for _, k := range []string{"cf-connecting-ip", "x-real-ip", "x-client-ip"} {
		if x := h.Get(k); x != "" {
			return strings.TrimSpace(x)
		}
	}
	host := r.RemoteAddr
	if i := strings.LastIndex(host, ":"); i > 0 {
		host = host[:i]
	}
	return strings.Trim(host, "[]")
}
