package zonecache

import "geozone-api/internal/geozone"

var base32 = "0123456789bcdefghjkmnpqrstuvwxyz"

// 文档注释：geohash 编码并同时返回所在网格的经纬度范围
// 背景：网格范围作为候选查询的包围盒；编码与范围共用同一组二分区间，保证点一定落在返回的网格内。
// 约束：precision 取 1..12，超出时截断。
func cellOf(p geozone.Point, precision int) (string, geozone.Bounds) {
	if precision < 1 {
		precision = 1
	}
	if precision > 12 {
		precision = 12
	}
	latLo, latHi := -90.0, 90.0
	lonLo, lonHi := -180.0, 180.0
	out := make([]byte, 0, precision)
	even := true
	bit, ch := 0, 0
	for len(out) < precision {
		if even {
			mid := (lonLo + lonHi) / 2
			if p.Lon >= mid {
				ch |= 16 >> bit
				lonLo = mid
			} else {
				lonHi = mid
			}
		} else {
			mid := (latLo + latHi) / 2
			if p.Lat >= mid {
				ch |= 16 >> bit
				latLo = mid
			} else {
				latHi = mid
			}
		}
		even = !even
		if bit < 4 {
			bit++
		} else {
			out = append(out, base32[ch])
			bit, ch = 0, 0
		}
	}
	return string(out), geozone.Bounds{MinLat: latLo, MaxLat: latHi, MinLon: lonLo, MaxLon: lonHi}
}
