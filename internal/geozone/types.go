// 包 geozone：地理围栏的领域模型、几何判定与包围盒计算；不依赖存储与传输层
package geozone

import (
	"math"
	"strconv"
	"strings"
)

// GeozoneType：围栏形状类型（封闭枚举，落库为 SMALLINT）
type GeozoneType int

const (
	PointRadius      GeozoneType = 0
	BoundedRectangle GeozoneType = 1
	SweptPointRadius GeozoneType = 2
	Polygon          GeozoneType = 3
)

// AllTypes：按枚举值顺序列出全部类型
var AllTypes = []GeozoneType{PointRadius, BoundedRectangle, SweptPointRadius, Polygon}

const (
	MinRadiusMeters = 5
	MaxRadiusMeters = 30000

	// 客户端上报围栏的半径膨胀量（米），抵消设备端与服务端的取整差异
	ClientRadiusDeltaMeters = 7.0
	// 矩形判定的经纬度容差（度）
	ClientGeoPointDelta = 0.00007

	// AnySortID：Exists 查询时表示不限定 sortID
	AnySortID = -1
)

// HasRadius：该类型的几何是否使用半径
func (t GeozoneType) HasRadius() bool {
	return t == PointRadius || t == SweptPointRadius
}

// Valid：是否为已知枚举值
func (t GeozoneType) Valid() bool {
	return t >= PointRadius && t <= Polygon
}

func (t GeozoneType) String() string {
	switch t {
	case PointRadius:
		return "point"
	case BoundedRectangle:
		return "rect"
	case SweptPointRadius:
		return "corridor"
	case Polygon:
		return "polygon"
	}
	return "unknown"
}

// ParseType：解析配置/接口中的类型名，兼容旧名称
func ParseType(s string) (GeozoneType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "point", "pointradius", "circle":
		return PointRadius, true
	case "rect", "boundedrectangle", "rectangle":
		return BoundedRectangle, true
	case "corridor", "sweptpointradius", "swept":
		return SweptPointRadius, true
	case "polygon", "poly":
		return Polygon, true
	}
	return 0, false
}

// DefaultRadius：新建或类型切换时使用的默认半径（米）
func (t GeozoneType) DefaultRadius() uint32 {
	switch t {
	case PointRadius:
		return 3000
	case SweptPointRadius:
		return 1000
	case Polygon:
		return 500
	}
	return 0
}

// ClampRadius：写入前将半径限制在类型允许范围内；无半径类型原样返回
func (t GeozoneType) ClampRadius(r uint32) uint32 {
	if !t.HasRadius() {
		return r
	}
	if r < MinRadiusMeters {
		return MinRadiusMeters
	}
	if r > MaxRadiusMeters {
		return MaxRadiusMeters
	}
	return r
}

// Point：WGS84 坐标
type Point struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid：坐标在合法范围内且不是 (0,0)
// 约束：(0,0) 在历史数据中表示“未设置”，一律视为缺失
func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	if p.Lat < -90 || p.Lat > 90 || p.Lon < -180 || p.Lon > 180 {
		return false
	}
	return p.Lat != 0 || p.Lon != 0
}

// Geometry：单条围栏记录的几何部分
type Geometry struct {
	Type         GeozoneType `json:"type"`
	RadiusMeters uint32      `json:"radius"`
	Vertices     []Point     `json:"vertices"`
}

// ValidVertices：按原顺序返回合法顶点，非法项视为不存在
func (g Geometry) ValidVertices() []Point {
	out := make([]Point, 0, len(g.Vertices))
	for _, v := range g.Vertices {
		if v.Valid() {
			out = append(out, v)
		}
	}
	return out
}

// Attributes：策略属性，不参与几何判定
type Attributes struct {
	IsActive       bool    `json:"isActive"`
	Priority       int     `json:"priority"`
	GroupID        string  `json:"groupID,omitempty"`
	PurposeID      string  `json:"purposeID,omitempty"`
	ArrivalZone    bool    `json:"arrivalZone"`
	DepartureZone  bool    `json:"departureZone"`
	AutoNotify     bool    `json:"autoNotify"`
	ReverseGeocode bool    `json:"reverseGeocode"`
	ClientUpload   bool    `json:"clientUpload"`
	ClientID       int     `json:"clientID,omitempty"`
	SpeedLimitKPH  float64 `json:"speedLimitKPH,omitempty"`
	Description    string  `json:"description"`
}

// Zone：一条围栏记录，主键 (AccountID, GeozoneID, SortID)
// 背景：同一 GeozoneID 下多个 SortID 表示同名逻辑区域的多个不相交几何
type Zone struct {
	AccountID string `json:"accountID"`
	GeozoneID string `json:"geozoneID"`
	SortID    int    `json:"sortID"`
	Geometry
	Attributes
	Bounds Bounds `json:"bounds"`
}

// New：按默认值创建围栏
func New(accountID, geozoneID string, sortID int) *Zone {
	return &Zone{
		AccountID: accountID,
		GeozoneID: geozoneID,
		SortID:    sortID,
		Geometry: Geometry{
			Type:         PointRadius,
			RadiusMeters: PointRadius.DefaultRadius(),
		},
		Attributes: Attributes{
			IsActive:       true,
			ReverseGeocode: true,
			ArrivalZone:    true,
			DepartureZone:  true,
			Description:    "Custom Zone " + geozoneID,
		},
	}
}

// SetType：切换类型并同步默认半径
func (z *Zone) SetType(t GeozoneType) {
	if z.Type == t {
		return
	}
	z.Type = t
	z.RadiusMeters = t.DefaultRadius()
}

// Clone：深拷贝，顶点切片独立
func (z *Zone) Clone() *Zone {
	c := *z
	c.Vertices = append([]Point(nil), z.Vertices...)
	return &c
}

// Key：用于日志与缓存的主键文本
func (z *Zone) Key() string {
	return z.AccountID + "/" + z.GeozoneID + "/" + strconv.Itoa(z.SortID)
}
