package store

import (
	"fmt"
	"sort"
	"strings"

	"geozone-api/internal/geozone"
)

// Query：候选围栏查询条件
// 约束：账号必填；Point 与 Bounds 二选一；点查询为包围盒包含点（含边界），盒查询为包围盒相交（含接触）
type Query struct {
	Account            string
	ZoneID             string
	Point              *geozone.Point
	Bounds             *geozone.Bounds
	ActiveOnly         bool
	ClientUploadOnly   bool
	ReverseGeocodeOnly bool
	ByPriority         bool
}

// Validate：检查必填项
func (q Query) Validate() error {
	if strings.TrimSpace(q.Account) == "" {
		return fmt.Errorf("%w: blank account", geozone.ErrInvalidInput)
	}
	if (q.Point == nil) == (q.Bounds == nil) {
		return fmt.Errorf("%w: exactly one of point or bounds is required", geozone.ErrInvalidInput)
	}
	return nil
}

// Match：内存实现使用的同等过滤逻辑
func (q Query) Match(z *geozone.Zone) bool {
	if z.AccountID != q.Account {
		return false
	}
	if q.ZoneID != "" && z.GeozoneID != q.ZoneID {
		return false
	}
	if q.ActiveOnly && !z.IsActive {
		return false
	}
	if q.ClientUploadOnly && !z.ClientUpload {
		return false
	}
	if q.ReverseGeocodeOnly && !z.ReverseGeocode {
		return false
	}
	if q.Point != nil {
		return z.Bounds.Contains(*q.Point)
	}
	if q.Bounds != nil {
		return z.Bounds.Overlaps(*q.Bounds)
	}
	return true
}

// SortRows：按 (priority, sortID, geozoneID) 或 (geozoneID, sortID) 稳定排序，与 SQL 的 ORDER BY 对齐
func SortRows(rows []*geozone.Zone, byPriority bool) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if byPriority {
			if a.Priority != b.Priority {
				return a.Priority < b.Priority
			}
			if a.SortID != b.SortID {
				return a.SortID < b.SortID
			}
			return a.GeozoneID < b.GeozoneID
		}
		if a.GeozoneID != b.GeozoneID {
			return a.GeozoneID < b.GeozoneID
		}
		return a.SortID < b.SortID
	})
}

// GroupKey：设备组 ID 归一化，两种存储读写成员关系时都按小写比较
func GroupKey(groupID string) string { return strings.ToLower(strings.TrimSpace(groupID)) }
