package geozone

import (
	"math"

	"github.com/paulmach/orb"
)

// BoundsEpsilon：新旧包围盒比较容差（度），避免浮点噪声导致重复写库
const BoundsEpsilon = 1e-7

// Bounds：经纬度包围盒，仅作为预过滤条件，不作为最终判定
type Bounds struct {
	MinLat float64 `json:"minLat"`
	MaxLat float64 `json:"maxLat"`
	MinLon float64 `json:"minLon"`
	MaxLon float64 `json:"maxLon"`
}

// PointBounds：零面积包围盒
func PointBounds(p Point) Bounds {
	return Bounds{MinLat: p.Lat, MaxLat: p.Lat, MinLon: p.Lon, MaxLon: p.Lon}
}

func boundsFromOrb(b orb.Bound) Bounds {
	out := Bounds{
		MinLat: clampLat(b.Min.Lat()),
		MaxLat: clampLat(b.Max.Lat()),
		MinLon: clampLon(b.Min.Lon()),
		MaxLon: clampLon(b.Max.Lon()),
	}
	// 圆跨越 180 度经线时经度区间回绕，保守处理为全经度
	if out.MinLon > out.MaxLon {
		out.MinLon, out.MaxLon = -180, 180
	}
	return out
}

// Orb：转换为 orb.Bound（Min/Max 为 lon,lat 顺序）
func (b Bounds) Orb() orb.Bound {
	return orb.Bound{Min: orb.Point{b.MinLon, b.MinLat}, Max: orb.Point{b.MaxLon, b.MaxLat}}
}

// Valid：上下界有序且在合法范围内
func (b Bounds) Valid() bool {
	if b.MinLat > b.MaxLat || b.MinLon > b.MaxLon {
		return false
	}
	return b.MinLat >= -90 && b.MaxLat <= 90 && b.MinLon >= -180 && b.MaxLon <= 180
}

// Contains：点是否落在包围盒内（含边界）
func (b Bounds) Contains(p Point) bool { return b.Orb().Contains(p.toOrb()) }

// Overlaps：两个包围盒是否相交（含接触）
func (b Bounds) Overlaps(o Bounds) bool { return b.Orb().Intersects(o.Orb()) }

func (b Bounds) Extend(p Point) Bounds { return boundsFromOrb(b.Orb().Extend(p.toOrb())) }

func (b Bounds) Union(o Bounds) Bounds { return boundsFromOrb(b.Orb().Union(o.Orb())) }

// Equal：逐边比较，误差在 eps 内视为相同
func (b Bounds) Equal(o Bounds, eps float64) bool {
	return math.Abs(b.MinLat-o.MinLat) <= eps &&
		math.Abs(b.MaxLat-o.MaxLat) <= eps &&
		math.Abs(b.MinLon-o.MinLon) <= eps &&
		math.Abs(b.MaxLon-o.MaxLon) <= eps
}

func (b Bounds) pad(d float64) Bounds {
	return Bounds{
		MinLat: clampLat(b.MinLat - d),
		MaxLat: clampLat(b.MaxLat + d),
		MinLon: clampLon(b.MinLon - d),
		MaxLon: clampLon(b.MaxLon + d),
	}
}

func (b Bounds) corners() [4]Point {
	return [4]Point{
		{Lat: b.MinLat, Lon: b.MinLon},
		{Lat: b.MinLat, Lon: b.MaxLon},
		{Lat: b.MaxLat, Lon: b.MinLon},
		{Lat: b.MaxLat, Lon: b.MaxLon},
	}
}

// 文档注释：由几何计算包围盒
// 背景：包围盒用于存储侧的扁平扫描预过滤；必须保守，任何被判定器接受的点都要落在盒内。
// 约束：
//   - 半径类按每个合法顶点的圆取并集，客户端上报的围栏计入 7 米膨胀；走廊额外覆盖每段大圆弧；
//   - 矩形取前两个合法顶点并按客户端容差外扩；多边形取全部合法顶点的外接矩形；
//   - 顶点不足或半径为 0 时退化为首个合法顶点处的零面积盒；没有合法顶点时为零值盒。
func ComputeBounds(g Geometry, clientUpload bool) Bounds {
	vs := g.ValidVertices()
	if len(vs) == 0 {
		return Bounds{}
	}
	single := PointBounds(vs[0])
	switch g.Type {
	case PointRadius, SweptPointRadius:
		if g.RadiusMeters == 0 {
			return single
		}
		r := float64(g.RadiusMeters)
		if clientUpload {
			r += ClientRadiusDeltaMeters
		}
		b := circleBounds(vs[0], r)
		for _, v := range vs[1:] {
			b = b.Union(circleBounds(v, r))
		}
		if g.Type == SweptPointRadius {
			for i := 1; i < len(vs); i++ {
				if vs[i-1] == vs[i] {
					continue
				}
				sb := segmentBounds(vs[i-1], vs[i])
				b = b.Union(sb)
				for _, c := range sb.corners() {
					b = b.Union(circleBounds(c, r))
				}
			}
		}
		return b
	case BoundedRectangle:
		if len(vs) < 2 {
			return single
		}
		return single.Extend(vs[1]).pad(ClientGeoPointDelta)
	case Polygon:
		if len(vs) < 3 {
			return single
		}
		b := single
		for _, v := range vs[1:] {
			b = b.Extend(v)
		}
		return b
	}
	return single
}

// RecomputeBounds：重新计算并写回 z.Bounds，返回是否超出容差发生变化
// 约束：变化在容差内时保留旧值，保证重复计算结果稳定
func RecomputeBounds(z *Zone) bool {
	nb := ComputeBounds(z.Geometry, z.ClientUpload)
	if z.Bounds.Equal(nb, BoundsEpsilon) {
		return false
	}
	z.Bounds = nb
	return true
}
