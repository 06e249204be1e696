package geozone

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ContainmentChecker：单一形状的精确点包含判定
// 约束：几何退化（顶点不足、半径为 0）时返回 false，不 panic
type ContainmentChecker interface {
	Type() GeozoneType
	Contains(p Point, z *Zone) bool
}

// effectiveRadius：客户端上报围栏计入半径膨胀
func effectiveRadius(z *Zone) float64 {
	r := float64(z.RadiusMeters)
	if r > 0 && z.ClientUpload {
		r += ClientRadiusDeltaMeters
	}
	return r
}

// PointRadiusChecker：任一合法顶点为圆心的圆内即命中（多圆心并集）
type PointRadiusChecker struct{}

func (PointRadiusChecker) Type() GeozoneType { return PointRadius }

func (PointRadiusChecker) Contains(p Point, z *Zone) bool {
	r := effectiveRadius(z)
	if r <= 0 || !p.Valid() {
		return false
	}
	for _, v := range z.ValidVertices() {
		if DistanceMeters(p, v) <= r {
			return true
		}
	}
	return false
}

// CorridorChecker：走廊（扫掠胶囊），到任一相邻顶点构成的线段距离不超过半径即命中
// 背景：不是只看端点；单顶点时退化为圆
type CorridorChecker struct{}

func (CorridorChecker) Type() GeozoneType { return SweptPointRadius }

func (CorridorChecker) Contains(p Point, z *Zone) bool {
	r := effectiveRadius(z)
	if r <= 0 || !p.Valid() {
		return false
	}
	vs := z.ValidVertices()
	switch len(vs) {
	case 0:
		return false
	case 1:
		return DistanceMeters(p, vs[0]) <= r
	}
	for i := 1; i < len(vs); i++ {
		if SegmentDistanceMeters(p, vs[i-1], vs[i]) <= r {
			return true
		}
	}
	return false
}

// RectangleChecker：前两个合法顶点为对角，按轴分别取 min/max 后加容差判定
type RectangleChecker struct{}

func (RectangleChecker) Type() GeozoneType { return BoundedRectangle }

func (RectangleChecker) Contains(p Point, z *Zone) bool {
	if !p.Valid() {
		return false
	}
	vs := z.ValidVertices()
	if len(vs) < 2 {
		return false
	}
	a, b := vs[0], vs[1]
	north, south := max(a.Lat, b.Lat), min(a.Lat, b.Lat)
	east, west := max(a.Lon, b.Lon), min(a.Lon, b.Lon)
	if p.Lat < south-ClientGeoPointDelta || p.Lat > north+ClientGeoPointDelta {
		return false
	}
	return p.Lon >= west-ClientGeoPointDelta && p.Lon <= east+ClientGeoPointDelta
}

// PolygonChecker：射线法点入多边形，边界视为命中；半径字段忽略
type PolygonChecker struct{}

func (PolygonChecker) Type() GeozoneType { return Polygon }

func (PolygonChecker) Contains(p Point, z *Zone) bool {
	if !p.Valid() {
		return false
	}
	vs := z.ValidVertices()
	if len(vs) < 3 {
		return false
	}
	ring := make(orb.Ring, 0, len(vs)+1)
	for _, v := range vs {
		ring = append(ring, v.toOrb())
	}
	if !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return planar.RingContains(ring, p.toOrb())
}

// Builtins：内置判定器，按枚举顺序
func Builtins() []ContainmentChecker {
	return []ContainmentChecker{PointRadiusChecker{}, RectangleChecker{}, CorridorChecker{}, PolygonChecker{}}
}
