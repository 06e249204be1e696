// 包 store：围栏数据访问层，PostgreSQL 实现与内存实现共享同一查询契约
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"geozone-api/internal/geozone"
	"geozone-api/internal/logger"

	"github.com/lib/pq"
)

const zoneColumns = `account_id, geozone_id, sort_id, zone_type, radius, lats, lons,
        min_lat, max_lat, min_lon, max_lon, priority, group_id, purpose_id,
        is_active, arrival_zone, departure_zone, auto_notify, reverse_geocode,
        client_upload, client_id, speed_limit_kph, description`

// Store：PostgreSQL 访问入口，持有连接池
type Store struct {
	db *sql.DB
}

func AttachDB(db *sql.DB) *Store { return &Store{db: db} }

// Close：关闭数据库连接
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", geozone.ErrStoreUnavailable, op, err)
}

// 文档注释：按包围盒预过滤查询候选围栏
// 背景：单条 SELECT 即一次一致性读，替代历史上“锁表后多步读取”的做法。
// 约束：排序与内存实现一致；扫描出错整体返回 ErrStoreUnavailable，不返回部分结果。
func (s *Store) Candidates(ctx context.Context, q Query) ([]*geozone.Zone, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	query, args := buildCandidatesSQL(q)
	logger.L().Debug("db_candidates_begin", "account", q.Account, "zone", q.ZoneID, "args", len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.L().Error("db_candidates_error", "account", q.Account, "err", err)
		return nil, unavailable("candidates", err)
	}
	defer rows.Close()
	var out []*geozone.Zone
	for rows.Next() {
		z, err := scanZone(rows)
		if err != nil {
			return nil, unavailable("candidates scan", err)
		}
		out = append(out, z)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("candidates rows", err)
	}
	logger.L().Debug("db_candidates_done", "account", q.Account, "rows", len(out))
	return out, nil
}

func buildCandidatesSQL(q Query) (string, []any) {
	args := []any{q.Account}
	where := []string{"account_id = $1"}
	if q.ZoneID != "" {
		args = append(args, q.ZoneID)
		where = append(where, fmt.Sprintf("geozone_id = $%d", len(args)))
	}
	if q.Point != nil {
		args = append(args, q.Point.Lat, q.Point.Lon)
		la, lo := len(args)-1, len(args)
		where = append(where, fmt.Sprintf("min_lat <= $%d AND max_lat >= $%d AND min_lon <= $%d AND max_lon >= $%d", la, la, lo, lo))
	}
	if b := q.Bounds; b != nil {
		args = append(args, b.MinLat, b.MaxLat, b.MinLon, b.MaxLon)
		n := len(args)
		where = append(where, fmt.Sprintf("min_lat <= $%d AND max_lat >= $%d AND min_lon <= $%d AND max_lon >= $%d", n-2, n-3, n, n-1))
	}
	if q.ActiveOnly {
		where = append(where, "is_active")
	}
	if q.ClientUploadOnly {
		where = append(where, "client_upload")
	}
	if q.ReverseGeocodeOnly {
		where = append(where, "reverse_geocode")
	}
	order := "geozone_id, sort_id"
	if q.ByPriority {
		order = "priority, sort_id, geozone_id"
	}
	return "SELECT " + zoneColumns + " FROM geozone WHERE " + strings.Join(where, " AND ") + " ORDER BY " + order, args
}

type scanner interface{ Scan(dest ...any) error }

func scanZone(r scanner) (*geozone.Zone, error) {
	var (
		z          geozone.Zone
		zt         int
		radius     int64
		lats, lons pq.Float64Array
	)
	err := r.Scan(&z.AccountID, &z.GeozoneID, &z.SortID, &zt, &radius, &lats, &lons,
		&z.Bounds.MinLat, &z.Bounds.MaxLat, &z.Bounds.MinLon, &z.Bounds.MaxLon,
		&z.Priority, &z.GroupID, &z.PurposeID,
		&z.IsActive, &z.ArrivalZone, &z.DepartureZone, &z.AutoNotify, &z.ReverseGeocode,
		&z.ClientUpload, &z.ClientID, &z.SpeedLimitKPH, &z.Description)
	if err != nil {
		return nil, err
	}
	z.Type = geozone.GeozoneType(zt)
	if radius > 0 {
		z.RadiusMeters = uint32(radius)
	}
	n := min(len(lats), len(lons))
	z.Vertices = make([]geozone.Point, 0, n)
	for i := 0; i < n; i++ {
		z.Vertices = append(z.Vertices, geozone.Point{Lat: lats[i], Lon: lons[i]})
	}
	return &z, nil
}

// Exists：账号下是否存在该 geozoneID（sortID 为 AnySortID 时不限定）
func (s *Store) Exists(ctx context.Context, account, zoneID string, sortID int) (bool, error) {
	q := "SELECT 1 FROM geozone WHERE account_id = $1 AND geozone_id = $2 LIMIT 1"
	args := []any{account, zoneID}
	if sortID != geozone.AnySortID {
		q = "SELECT 1 FROM geozone WHERE account_id = $1 AND geozone_id = $2 AND sort_id = $3 LIMIT 1"
		args = append(args, sortID)
	}
	var one int
	err := s.db.QueryRowContext(ctx, q, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("exists", err)
	}
	return true, nil
}

// 文档注释：写入围栏（存在则更新）
// 约束：调用方保证包围盒已按当前几何重算；单条 upsert 由数据库按行串行化。
func (s *Store) Save(ctx context.Context, z *geozone.Zone) error {
	lats := make(pq.Float64Array, len(z.Vertices))
	lons := make(pq.Float64Array, len(z.Vertices))
	for i, v := range z.Vertices {
		lats[i], lons[i] = v.Lat, v.Lon
	}
	_, err := s.db.ExecContext(ctx, `INSERT INTO geozone(`+zoneColumns+`, updated_at)
        VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22,$23, now())
        ON CONFLICT (account_id, geozone_id, sort_id) DO UPDATE SET
            zone_type=EXCLUDED.zone_type, radius=EXCLUDED.radius, lats=EXCLUDED.lats, lons=EXCLUDED.lons,
            min_lat=EXCLUDED.min_lat, max_lat=EXCLUDED.max_lat, min_lon=EXCLUDED.min_lon, max_lon=EXCLUDED.max_lon,
            priority=EXCLUDED.priority, group_id=EXCLUDED.group_id, purpose_id=EXCLUDED.purpose_id,
            is_active=EXCLUDED.is_active, arrival_zone=EXCLUDED.arrival_zone, departure_zone=EXCLUDED.departure_zone,
            auto_notify=EXCLUDED.auto_notify, reverse_geocode=EXCLUDED.reverse_geocode,
            client_upload=EXCLUDED.client_upload, client_id=EXCLUDED.client_id,
            speed_limit_kph=EXCLUDED.speed_limit_kph, description=EXCLUDED.description, updated_at=now()`,
		z.AccountID, z.GeozoneID, z.SortID, int(z.Type), int64(z.RadiusMeters), lats, lons,
		z.Bounds.MinLat, z.Bounds.MaxLat, z.Bounds.MinLon, z.Bounds.MaxLon,
		z.Priority, z.GroupID, z.PurposeID,
		z.IsActive, z.ArrivalZone, z.DepartureZone, z.AutoNotify, z.ReverseGeocode,
		z.ClientUpload, z.ClientID, z.SpeedLimitKPH, z.Description,
	)
	if err != nil {
		logger.L().Error("db_save_error", "zone", z.Key(), "err", err)
		return unavailable("save", err)
	}
	logger.L().Debug("db_save_done", "zone", z.Key())
	return nil
}

// IsMember：设备是否属于设备组
func (s *Store) IsMember(ctx context.Context, account, groupID, deviceID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		"SELECT 1 FROM device_group_member WHERE account_id = $1 AND group_id = $2 AND device_id = $3 LIMIT 1",
		account, GroupKey(groupID), deviceID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, unavailable("membership", err)
	}
	return true, nil
}

// AddMember：写入设备组成员关系（导入工具使用）
func (s *Store) AddMember(ctx context.Context, account, groupID, deviceID string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO device_group_member(account_id, group_id, device_id) VALUES($1,$2,$3) ON CONFLICT DO NOTHING",
		account, GroupKey(groupID), deviceID)
	if err != nil {
		return unavailable("add member", err)
	}
	return nil
}
