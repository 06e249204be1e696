package store

import (
	"context"
	"fmt"
	"sync"

	"geozone-api/internal/geozone"
)

// 文档注释：内存围栏存储
// 背景：未配置数据库时由 GeoJSON 文件装载，也用于测试；与 PostgreSQL 实现遵循同一查询与排序语义。
// 约束：读写均复制对象，调用方修改返回值不影响存储内容。
type Memory struct {
	mu      sync.RWMutex
	rows    []*geozone.Zone
	idx     map[string]int
	members map[string]map[string]bool
}

func NewMemory() *Memory {
	return &Memory{idx: make(map[string]int), members: make(map[string]map[string]bool)}
}

func (m *Memory) Candidates(ctx context.Context, q Query) ([]*geozone.Zone, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", geozone.ErrStoreUnavailable, err)
	}
	m.mu.RLock()
	var out []*geozone.Zone
	for _, z := range m.rows {
		if q.Match(z) {
			out = append(out, z.Clone())
		}
	}
	m.mu.RUnlock()
	SortRows(out, q.ByPriority)
	return out, nil
}

func (m *Memory) Exists(ctx context.Context, account, zoneID string, sortID int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, z := range m.rows {
		if z.AccountID == account && z.GeozoneID == zoneID && (sortID == geozone.AnySortID || z.SortID == sortID) {
			return true, nil
		}
	}
	return false, nil
}

// Save：按主键插入或替换，保留首次插入的位置
func (m *Memory) Save(ctx context.Context, z *geozone.Zone) error {
	c := z.Clone()
	m.mu.Lock()
	defer m.mu.Unlock()
	k := c.Key()
	if i, ok := m.idx[k]; ok {
		m.rows[i] = c
		return nil
	}
	m.idx[k] = len(m.rows)
	m.rows = append(m.rows, c)
	return nil
}

// Len：当前记录数
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.rows)
}

func memberKey(account, groupID string) string { return account + "\x00" + GroupKey(groupID) }

func (m *Memory) AddMember(ctx context.Context, account, groupID, deviceID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := memberKey(account, groupID)
	if m.members[k] == nil {
		m.members[k] = make(map[string]bool)
	}
	m.members[k][deviceID] = true
	return nil
}

func (m *Memory) IsMember(ctx context.Context, account, groupID, deviceID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.members[memberKey(account, groupID)][deviceID], nil
}
