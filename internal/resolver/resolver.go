// 包 resolver：围栏解析编排（候选查询 → 精确判定 → 策略过滤 → 排序输出）
package resolver

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"geozone-api/internal/geozone"
	"geozone-api/internal/logger"
	"geozone-api/internal/metrics"
	"geozone-api/internal/plugins"
	"geozone-api/internal/store"
	"geozone-api/internal/zonecache"
)

// ZoneStore：候选查询与持久化
type ZoneStore interface {
	Candidates(ctx context.Context, q store.Query) ([]*geozone.Zone, error)
	Exists(ctx context.Context, account, zoneID string, sortID int) (bool, error)
	Save(ctx context.Context, z *geozone.Zone) error
}

// DeviceGroups：设备组成员关系
type DeviceGroups interface {
	IsMember(ctx context.Context, account, groupID, deviceID string) (bool, error)
}

// ActivePolicy：是否按存储的 isActive 过滤
type ActivePolicy int

const (
	UseStoredFlag ActivePolicy = iota
	TreatAllAsActive
)

// Options：部署级查询策略
type Options struct {
	ActivePolicy       ActivePolicy
	PrioritySupported  bool
	ClientUploadOnly   bool
	ReverseGeocodeOnly bool
}

// 文档注释：围栏解析器
// 背景：除缓存与判定器表外无共享可变状态，可无限并发调用。
// 约束：返回的 Zone 均为副本；缓存中的行只读共享，描述回填只作用于副本。
type Resolver struct {
	store    ZoneStore
	groups   DeviceGroups
	checkers *plugins.Manager
	cache    *zonecache.Cache
	mc       *metrics.Collector
	opts     Options
}

// New：cache 与 groups 可为空；groups 为空时任何带组限制的围栏都不匹配设备
func New(st ZoneStore, groups DeviceGroups, checkers *plugins.Manager, cache *zonecache.Cache, mc *metrics.Collector, opts Options) *Resolver {
	return &Resolver{store: st, groups: groups, checkers: checkers, cache: cache, mc: mc, opts: opts}
}

// IsTypeSupported：类型判定器是否已安装
func (r *Resolver) IsTypeSupported(t geozone.GeozoneType) bool { return r.checkers.IsTypeSupported(t) }

// Options：当前策略
func (r *Resolver) Options() Options { return r.opts }

func (r *Resolver) query(account string) store.Query {
	return store.Query{
		Account:            account,
		ActiveOnly:         r.opts.ActivePolicy == UseStoredFlag,
		ClientUploadOnly:   r.opts.ClientUploadOnly,
		ReverseGeocodeOnly: r.opts.ReverseGeocodeOnly,
		ByPriority:         r.opts.PrioritySupported,
	}
}

func checkAccount(account string) error {
	if strings.TrimSpace(account) == "" {
		return fmt.Errorf("%w: blank account", geozone.ErrInvalidInput)
	}
	return nil
}

func storeErr(err error) error {
	if errors.Is(err, geozone.ErrStoreUnavailable) || errors.Is(err, geozone.ErrInvalidInput) {
		return err
	}
	return fmt.Errorf("%w: %v", geozone.ErrStoreUnavailable, err)
}

func (r *Resolver) observe(op string, start time.Time, candidates, matches int, err error) {
	if err != nil && !errors.Is(err, geozone.ErrStoreUnavailable) {
		err = nil
	}
	r.mc.ObserveResolve(op, time.Since(start), candidates, matches, err)
}

// 文档注释：取点所在的候选行
// 背景：有缓存时按 geohash 网格范围查询并缓存超集，再以“包围盒含点”过滤，与直接点查询得到相同的有序候选。
func (r *Resolver) candidates(ctx context.Context, q store.Query, p geozone.Point) ([]*geozone.Zone, error) {
	if r.cache == nil {
		q.Point = &p
		rows, err := r.store.Candidates(ctx, q)
		if err != nil {
			return nil, storeErr(err)
		}
		return rows, nil
	}
	cell, cb := r.cache.Cell(p)
	key := r.cache.Key(ctx, q.Account, zonecache.Flags(q.ActiveOnly, q.ClientUploadOnly, q.ReverseGeocodeOnly, q.ByPriority, q.ZoneID), cell)
	rows, ok := r.cache.Get(ctx, key)
	if !ok {
		q.Bounds = &cb
		var err error
		rows, err = r.store.Candidates(ctx, q)
		if err != nil {
			return nil, storeErr(err)
		}
		r.cache.Set(ctx, key, rows)
	}
	out := make([]*geozone.Zone, 0, len(rows))
	for _, z := range rows {
		if z.Bounds.Contains(p) {
			out = append(out, z)
		}
	}
	return out, nil
}

// 文档注释：有序扫描候选并做精确判定
// 背景：同一 geozoneID 的多条几何共享描述；命中行描述为空时取扫描顺序中此前同名行最近的非空描述。
// 约束：判定器缺失的类型按不命中处理并跳过，单条退化几何不影响整体结果。
func (r *Resolver) scan(rows []*geozone.Zone, p geozone.Point) []*geozone.Zone {
	store.SortRows(rows, r.opts.PrioritySupported)
	last := make(map[string]string)
	var out []*geozone.Zone
	for _, z := range rows {
		hit, err := r.checkers.Contains(z, p)
		if err != nil {
			logger.L().Debug("checker_unsupported", "zone", z.Key(), "type", z.Type.String())
		}
		if hit {
			m := z.Clone()
			if strings.TrimSpace(m.Description) == "" {
				m.Description = last[z.GeozoneID]
			}
			out = append(out, m)
		}
		if strings.TrimSpace(z.Description) != "" {
			last[z.GeozoneID] = z.Description
		}
	}
	return out
}

func (r *Resolver) resolve(ctx context.Context, q store.Query, p geozone.Point) ([]*geozone.Zone, int, error) {
	rows, err := r.candidates(ctx, q, p)
	if err != nil {
		logger.L().Warn("store_query_error", "account", q.Account, "err", err)
		return nil, 0, err
	}
	// 缓存行只读：排序前复制切片头
	rows = append([]*geozone.Zone(nil), rows...)
	return r.scan(rows, p), len(rows), nil
}

// FindContaining：包含该点的全部围栏，按 (priority, sortID) 升序；非法点返回空
func (r *Resolver) FindContaining(ctx context.Context, account string, p geozone.Point) (out []*geozone.Zone, err error) {
	start, n := time.Now(), 0
	defer func() { r.observe("containing", start, n, len(out), err) }()
	if err = checkAccount(account); err != nil {
		return nil, err
	}
	if !p.Valid() {
		return nil, nil
	}
	out, n, err = r.resolve(ctx, r.query(account), p)
	return out, err
}

// FindFirstContaining：首个命中且 purposeID 匹配（不区分大小写，空则不过滤）的围栏；无命中返回 nil
func (r *Resolver) FindFirstContaining(ctx context.Context, account string, p geozone.Point, purpose string) (found *geozone.Zone, err error) {
	start, n := time.Now(), 0
	defer func() {
		m := 0
		if found != nil {
			m = 1
		}
		r.observe("first", start, n, m, err)
	}()
	if err = checkAccount(account); err != nil {
		return nil, err
	}
	if !p.Valid() {
		return nil, nil
	}
	var zs []*geozone.Zone
	zs, n, err = r.resolve(ctx, r.query(account), p)
	if err != nil {
		return nil, err
	}
	purpose = strings.TrimSpace(purpose)
	for _, z := range zs {
		if purpose == "" || strings.EqualFold(z.PurposeID, purpose) {
			return z, nil
		}
	}
	return nil, nil
}

func anyGroup(groupID string) bool {
	g := strings.TrimSpace(groupID)
	return g == "" || strings.EqualFold(g, "ALL")
}

// 文档注释：设备维度的首个命中
// 背景：带 groupID 的围栏仅对组内设备生效；不满足的围栏直接跳过，继续按优先级找下一个。
// 约束：仅存在被组过滤掉的命中时记录 warn，列出 zoneID(groupID)。
func (r *Resolver) FindFirstForDevice(ctx context.Context, account string, p geozone.Point, deviceID string) (found *geozone.Zone, err error) {
	start, n := time.Now(), 0
	defer func() {
		m := 0
		if found != nil {
			m = 1
		}
		r.observe("device", start, n, m, err)
	}()
	if err = checkAccount(account); err != nil {
		return nil, err
	}
	if !p.Valid() {
		return nil, nil
	}
	var zs []*geozone.Zone
	zs, n, err = r.resolve(ctx, r.query(account), p)
	if err != nil {
		return nil, err
	}
	var skipped []string
	for _, z := range zs {
		if anyGroup(z.GroupID) {
			return z, nil
		}
		ok := false
		if r.groups != nil && deviceID != "" {
			ok, err = r.groups.IsMember(ctx, account, z.GroupID, deviceID)
			if err != nil {
				return nil, storeErr(err)
			}
		}
		if ok {
			return z, nil
		}
		skipped = append(skipped, z.GeozoneID+"("+z.GroupID+")")
	}
	if len(skipped) > 0 {
		logger.L().Warn("device_group_excluded", "account", account, "device", deviceID, "zones", strings.Join(skipped, ","))
	}
	return nil, nil
}

// 文档注释：点是否落在任一（可选按 zoneID 限定的）围栏内
// 异常：指定 zoneID 且账号下不存在该名称时返回 ErrNotFound；仅在未命中时额外查询一次存在性。
func (r *Resolver) ContainsExact(ctx context.Context, account, zoneID string, p geozone.Point) (hit bool, err error) {
	start, n := time.Now(), 0
	defer func() {
		m := 0
		if hit {
			m = 1
		}
		r.observe("contains", start, n, m, err)
	}()
	if err = checkAccount(account); err != nil {
		return false, err
	}
	zoneID = strings.TrimSpace(zoneID)
	if p.Valid() {
		q := r.query(account)
		q.ZoneID = zoneID
		var zs []*geozone.Zone
		zs, n, err = r.resolve(ctx, q, p)
		if err != nil {
			return false, err
		}
		if len(zs) > 0 {
			return true, nil
		}
	}
	if zoneID == "" {
		return false, nil
	}
	ok, err := r.store.Exists(ctx, account, zoneID, geozone.AnySortID)
	if err != nil {
		return false, storeErr(err)
	}
	if !ok {
		return false, fmt.Errorf("%w: %s/%s", geozone.ErrNotFound, account, zoneID)
	}
	return false, nil
}

// FindInBounds：包围盒与给定范围相交的围栏（不做精确判定）
func (r *Resolver) FindInBounds(ctx context.Context, account string, b geozone.Bounds) (out []*geozone.Zone, err error) {
	start, n := time.Now(), 0
	defer func() { r.observe("bounds", start, n, len(out), err) }()
	if err = checkAccount(account); err != nil {
		return nil, err
	}
	if !b.Valid() {
		return nil, fmt.Errorf("%w: bounds %+v", geozone.ErrInvalidInput, b)
	}
	q := r.query(account)
	q.Bounds = &b
	rows, err := r.store.Candidates(ctx, q)
	if err != nil {
		return nil, storeErr(err)
	}
	n = len(rows)
	store.SortRows(rows, r.opts.PrioritySupported)
	last := make(map[string]string)
	out = make([]*geozone.Zone, 0, len(rows))
	for _, z := range rows {
		c := z.Clone()
		if strings.TrimSpace(c.Description) == "" {
			c.Description = last[z.GeozoneID]
		} else {
			last[z.GeozoneID] = c.Description
		}
		out = append(out, c)
	}
	return out, nil
}

// Description：首个包含该点的反地理围栏的描述；无命中返回空串
func (r *Resolver) Description(ctx context.Context, account string, p geozone.Point) (desc string, err error) {
	start, n, m := time.Now(), 0, 0
	defer func() { r.observe("description", start, n, m, err) }()
	if err = checkAccount(account); err != nil {
		return "", err
	}
	if !p.Valid() {
		return "", nil
	}
	q := r.query(account)
	q.ReverseGeocodeOnly = true
	var zs []*geozone.Zone
	zs, n, err = r.resolve(ctx, q, p)
	if err != nil || len(zs) == 0 {
		return "", err
	}
	m = 1
	return zs[0].Description, nil
}

// 文档注释：保存围栏
// 背景：写入前总是钳制半径并重算包围盒，过期的包围盒会让围栏从预过滤中消失。
// 约束：保存成功后递增账号缓存版本。
func (r *Resolver) Save(ctx context.Context, z *geozone.Zone) error {
	if z == nil {
		return fmt.Errorf("%w: nil zone", geozone.ErrInvalidInput)
	}
	if err := checkAccount(z.AccountID); err != nil {
		return err
	}
	if strings.TrimSpace(z.GeozoneID) == "" {
		return fmt.Errorf("%w: blank geozoneID", geozone.ErrInvalidInput)
	}
	if !z.Type.Valid() {
		return fmt.Errorf("%w: zone type %d", geozone.ErrInvalidInput, int(z.Type))
	}
	if z.SortID < 0 {
		return fmt.Errorf("%w: negative sortID", geozone.ErrInvalidInput)
	}
	z.RadiusMeters = z.Type.ClampRadius(z.RadiusMeters)
	changed := geozone.RecomputeBounds(z)
	if err := r.store.Save(ctx, z); err != nil {
		logger.L().Warn("zone_save_error", "zone", z.Key(), "err", err)
		return storeErr(err)
	}
	if r.cache != nil {
		r.cache.Bump(ctx, z.AccountID)
	}
	logger.L().Info("zone_saved", "zone", z.Key(), "type", z.Type.String(), "bounds_changed", changed)
	return nil
}
