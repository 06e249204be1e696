package geozone

import (
	"math"

	"github.com/golang/geo/s2"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
)

// EarthRadiusMeters：距离与包围盒共用同一地球半径，保证包围盒对判定结果保守
const EarthRadiusMeters = orb.EarthRadius

func (p Point) toOrb() orb.Point { return orb.Point{p.Lon, p.Lat} }

func (p Point) toS2() s2.Point { return s2.PointFromLatLng(s2.LatLngFromDegrees(p.Lat, p.Lon)) }

// DistanceMeters：大圆距离（haversine）
func DistanceMeters(a, b Point) float64 {
	return geo.DistanceHaversine(a.toOrb(), b.toOrb())
}

// SegmentDistanceMeters：点到大圆线段 ab 的最短距离
// 约束：a==b 时退化为点距离
func SegmentDistanceMeters(p, a, b Point) float64 {
	if a == b {
		return DistanceMeters(p, a)
	}
	ang := s2.DistanceFromSegment(p.toS2(), a.toS2(), b.toS2())
	return ang.Radians() * EarthRadiusMeters
}

// circleBounds：以 c 为圆心、半径 meters 的圆的外接经纬度矩形
func circleBounds(c Point, meters float64) Bounds {
	return boundsFromOrb(geo.NewBoundAroundPoint(c.toOrb(), meters))
}

// segmentBounds：大圆线段的经纬度矩形（s2 计算，覆盖向极点方向的弧顶）
func segmentBounds(a, b Point) Bounds {
	rb := s2.NewRectBounder()
	rb.AddPoint(a.toS2())
	rb.AddPoint(b.toS2())
	r := rb.RectBound()
	out := Bounds{
		MinLat: r.Lo().Lat.Degrees(),
		MaxLat: r.Hi().Lat.Degrees(),
		MinLon: r.Lo().Lng.Degrees(),
		MaxLon: r.Hi().Lng.Degrees(),
	}
	// 跨越 180 度经线时退化为全经度范围
	if r.Lng.IsInverted() || out.MinLon > out.MaxLon {
		out.MinLon, out.MaxLon = -180, 180
	}
	return out
}

func clampLat(v float64) float64 { return math.Max(-90, math.Min(90, v)) }

func clampLon(v float64) float64 { return math.Max(-180, math.Min(180, v)) }
