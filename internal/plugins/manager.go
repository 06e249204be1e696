// 包 plugins：围栏判定器插件表；启动时按配置注册，未注册的类型对外报告“不支持”
package plugins

import (
	"fmt"
	"sort"
	"sync"

	"geozone-api/internal/geozone"
	"geozone-api/internal/logger"
	"geozone-api/internal/metrics"
)

// 文档注释：判定器插件接口（统一契约）
// 背景：每种围栏类型一个实现，可选安装；管理器按类型分派，缺失时显式报告而非静默近似。
// 约束：Contains 不得 panic，几何退化时返回 false。
type Checker interface {
	Name() string
	Version() string
	Type() geozone.GeozoneType
	Contains(p geozone.Point, z *geozone.Zone) bool
}

// 文档注释：内置判定器适配器
// 背景：将 geozone 包内的纯函数判定器包装为插件，附带名称与版本用于日志。
type BuiltinChecker struct {
	name    string
	version string
	c       geozone.ContainmentChecker
}

func NewBuiltin(name, version string, c geozone.ContainmentChecker) *BuiltinChecker {
	return &BuiltinChecker{name: name, version: version, c: c}
}

func (b *BuiltinChecker) Name() string              { return b.name }
func (b *BuiltinChecker) Version() string           { return b.version }
func (b *BuiltinChecker) Type() geozone.GeozoneType { return b.c.Type() }

func (b *BuiltinChecker) Contains(p geozone.Point, z *geozone.Zone) bool {
	return b.c.Contains(p, z)
}

// 文档注释：判定器管理器
// 背景：读多写少的类型表，解析路径只读加锁；注册通常只发生在启动阶段。
// 约束：LegacyCorridorFallback 打开且走廊判定器缺失时，走廊围栏按顶点圆判定并告警一次（每个 geozoneID），
// IsTypeSupported 仍报告走廊不受支持，使降级可被发现。
type Manager struct {
	mu             sync.RWMutex
	ps             map[geozone.GeozoneType]Checker
	legacyCorridor bool
	warned         sync.Map
	mc             *metrics.Collector
}

func NewManager(mc *metrics.Collector) *Manager {
	return &Manager{ps: make(map[geozone.GeozoneType]Checker), mc: mc}
}

// SetLegacyCorridorFallback：开启/关闭走廊降级
func (m *Manager) SetLegacyCorridorFallback(on bool) {
	m.mu.Lock()
	m.legacyCorridor = on
	m.mu.Unlock()
}

// Register：注册或替换某类型的判定器
func (m *Manager) Register(p Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ps[p.Type()] = p
	logger.L().Info("plugin_registered", "name", p.Name(), "type", p.Type().String(), "version", p.Version())
}

func (m *Manager) Unregister(t geozone.GeozoneType) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.ps[t]; ok {
		delete(m.ps, t)
		logger.L().Info("plugin_unregistered", "name", p.Name(), "type", t.String())
	}
}

// IsTypeSupported：该类型是否安装了判定器
func (m *Manager) IsTypeSupported(t geozone.GeozoneType) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.ps[t]
	return ok
}

// Supported：已安装判定器的类型，按枚举值排序
func (m *Manager) Supported() []geozone.GeozoneType {
	m.mu.RLock()
	out := make([]geozone.GeozoneType, 0, len(m.ps))
	for t := range m.ps {
		out = append(out, t)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// 文档注释：按围栏类型分派精确判定
// 返回：判定器缺失时返回 (false, ErrUnsupportedZoneType)；调用方将其视为“不命中”而不是查询失败。
func (m *Manager) Contains(z *geozone.Zone, p geozone.Point) (bool, error) {
	m.mu.RLock()
	c, ok := m.ps[z.Type]
	var fb Checker
	if !ok && z.Type == geozone.SweptPointRadius && m.legacyCorridor {
		fb = m.ps[geozone.PointRadius]
	}
	m.mu.RUnlock()
	if ok {
		hit := c.Contains(p, z)
		m.mc.CheckerEvaluated(z.Type.String(), hit)
		return hit, nil
	}
	if fb != nil {
		if _, seen := m.warned.LoadOrStore(z.AccountID+"/"+z.GeozoneID, struct{}{}); !seen {
			logger.L().Warn("corridor_fallback_point_radius", "account", z.AccountID, "zone", z.GeozoneID)
		}
		hit := fb.Contains(p, z)
		m.mc.CheckerEvaluated("corridor_fallback", hit)
		return hit, nil
	}
	m.mc.CheckerMissing(z.Type.String())
	return false, fmt.Errorf("%w: %s", geozone.ErrUnsupportedZoneType, z.Type)
}

// 文档注释：按名称注册内置判定器
// 背景：names 来自配置（point,rect,corridor,polygon），为空时注册全部；用于按部署裁剪能力。
// 异常：未知名称返回 ErrInvalidInput，不做部分注册。
func RegisterBuiltins(m *Manager, names []string) error {
	byType := map[geozone.GeozoneType]geozone.ContainmentChecker{}
	for _, c := range geozone.Builtins() {
		byType[c.Type()] = c
	}
	want := geozone.AllTypes
	if len(names) > 0 {
		want = nil
		for _, n := range names {
			t, ok := geozone.ParseType(n)
			if !ok {
				return fmt.Errorf("%w: unknown checker %q", geozone.ErrInvalidInput, n)
			}
			want = append(want, t)
		}
	}
	for _, t := range want {
		m.Register(NewBuiltin("builtin-"+t.String(), "1.0", byType[t]))
	}
	return nil
}
