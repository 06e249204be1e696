// 包 loader：从 GeoJSON 装载围栏定义，用于导入数据库或初始化内存存储
package loader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"geozone-api/internal/geozone"
	"geozone-api/internal/logger"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// 文档注释：解析 FeatureCollection 为围栏列表
// 背景：几何映射 Point/MultiPoint → 点半径，LineString → 走廊，Polygon → 多边形（仅外环），
// MultiPolygon 按顺序展开为同一 geozoneID 下递增的 sortID；properties.type=rect 时取几何外包矩形的两个角点。
// 约束：缺少 id 或几何不受支持的要素跳过并记录 warn；account 为空时取要素的 account 属性。
func Parse(data []byte, account string) ([]*geozone.Zone, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: geojson: %v", geozone.ErrInvalidInput, err)
	}
	var out []*geozone.Zone
	for i, f := range fc.Features {
		zs, err := fromFeature(f, account)
		if err != nil {
			logger.L().Warn("geojson_feature_skipped", "index", i, "err", err)
			continue
		}
		out = append(out, zs...)
	}
	return out, nil
}

func Read(r io.Reader, account string) ([]*geozone.Zone, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Parse(b, account)
}

// LoadPath：path 为文件时直接解析，为目录时按文件名顺序解析其中全部 .geojson
func LoadPath(path, account string) ([]*geozone.Zone, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	files := []string{path}
	if st.IsDir() {
		entries, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		files = files[:0]
		for _, e := range entries {
			if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".geojson") {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
	}
	var out []*geozone.Zone
	for _, fp := range files {
		b, err := os.ReadFile(fp)
		if err != nil {
			return nil, err
		}
		zs, err := Parse(b, account)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fp, err)
		}
		logger.L().Info("geojson_loaded", "file", fp, "zones", len(zs))
		out = append(out, zs...)
	}
	return out, nil
}

func fromFeature(f *geojson.Feature, account string) ([]*geozone.Zone, error) {
	p := f.Properties
	if account == "" {
		account = strings.TrimSpace(p.MustString("account", ""))
	}
	id := strings.TrimSpace(p.MustString("id", ""))
	if id == "" {
		if s, ok := f.ID.(string); ok {
			id = strings.TrimSpace(s)
		}
	}
	if account == "" || id == "" {
		return nil, fmt.Errorf("%w: feature needs account and id", geozone.ErrInvalidInput)
	}
	rect := strings.EqualFold(p.MustString("type", ""), "rect")
	sortID := p.MustInt("sortID", 0)

	var geoms []geozone.Geometry
	switch g := f.Geometry.(type) {
	case orb.Point:
		geoms = append(geoms, geozone.Geometry{Type: geozone.PointRadius, Vertices: points(g)})
	case orb.MultiPoint:
		geoms = append(geoms, shape(geozone.PointRadius, rect, points(g...)))
	case orb.LineString:
		geoms = append(geoms, shape(geozone.SweptPointRadius, rect, points(g...)))
	case orb.Polygon:
		geoms = append(geoms, polygon(g, rect))
	case orb.MultiPolygon:
		for _, pg := range g {
			geoms = append(geoms, polygon(pg, rect))
		}
	default:
		return nil, fmt.Errorf("%w: geometry %T", geozone.ErrUnsupportedZoneType, f.Geometry)
	}

	out := make([]*geozone.Zone, 0, len(geoms))
	for i, gm := range geoms {
		z := geozone.New(account, id, sortID+i)
		z.SetType(gm.Type)
		z.Vertices = gm.Vertices
		if r := p.MustFloat64("radius", -1); r >= 0 {
			z.RadiusMeters = uint32(r)
		}
		applyAttributes(z, p)
		out = append(out, z)
	}
	return out, nil
}

func applyAttributes(z *geozone.Zone, p geojson.Properties) {
	z.IsActive = p.MustBool("active", z.IsActive)
	z.Priority = p.MustInt("priority", z.Priority)
	z.GroupID = p.MustString("groupID", z.GroupID)
	z.PurposeID = p.MustString("purposeID", z.PurposeID)
	z.ArrivalZone = p.MustBool("arrival", z.ArrivalZone)
	z.DepartureZone = p.MustBool("departure", z.DepartureZone)
	z.AutoNotify = p.MustBool("autoNotify", z.AutoNotify)
	z.ReverseGeocode = p.MustBool("reverseGeocode", z.ReverseGeocode)
	z.ClientUpload = p.MustBool("clientUpload", z.ClientUpload)
	z.ClientID = p.MustInt("clientID", z.ClientID)
	z.SpeedLimitKPH = p.MustFloat64("speedLimitKPH", z.SpeedLimitKPH)
	z.Description = p.MustString("description", z.Description)
}

func points(ps ...orb.Point) []geozone.Point {
	out := make([]geozone.Point, len(ps))
	for i, p := range ps {
		out[i] = geozone.Point{Lat: p.Lat(), Lon: p.Lon()}
	}
	return out
}

func shape(t geozone.GeozoneType, rect bool, vs []geozone.Point) geozone.Geometry {
	if rect {
		return rectOf(vs)
	}
	return geozone.Geometry{Type: t, Vertices: vs}
}

func polygon(pg orb.Polygon, rect bool) geozone.Geometry {
	if len(pg) == 0 {
		return geozone.Geometry{Type: geozone.Polygon}
	}
	ring := pg[0]
	if len(ring) > 1 && ring.Closed() {
		ring = ring[:len(ring)-1]
	}
	return shape(geozone.Polygon, rect, points(ring...))
}

func rectOf(vs []geozone.Point) geozone.Geometry {
	if len(vs) == 0 {
		return geozone.Geometry{Type: geozone.BoundedRectangle}
	}
	b := geozone.PointBounds(vs[0])
	for _, v := range vs[1:] {
		b = b.Extend(v)
	}
	return geozone.Geometry{
		Type:     geozone.BoundedRectangle,
		Vertices: []geozone.Point{{Lat: b.MaxLat, Lon: b.MinLon}, {Lat: b.MinLat, Lon: b.MaxLon}},
	}
}
