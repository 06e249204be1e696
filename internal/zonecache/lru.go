package zonecache

import (
	"container/list"
	"sync"
	"time"

	"geozone-api/internal/geozone"
)

// 文档注释：进程内 LRU（带 TTL）
// 背景：热点网格在短周期内重复查询，本地缓存候选行可省去一次存储往返。
// 约束：值为只读共享切片，调用方不得修改其中的 Zone。
type LRU struct {
	mu   sync.Mutex
	cap  int
	ttl  time.Duration
	lst  *list.List
	dict map[string]*list.Element
	now  func() time.Time
}

type entry struct {
	k   string
	v   []*geozone.Zone
	exp time.Time
}

func NewLRU(capacity int, ttl time.Duration) *LRU {
	if capacity <= 0 {
		capacity = 1
	}
	return &LRU{cap: capacity, ttl: ttl, lst: list.New(), dict: make(map[string]*list.Element), now: time.Now}
}

func (c *LRU) Get(k string) ([]*geozone.Zone, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.dict[k]
	if !ok {
		return nil, false
	}
	it := e.Value.(entry)
	if c.now().After(it.exp) {
		c.lst.Remove(e)
		delete(c.dict, k)
		return nil, false
	}
	c.lst.MoveToFront(e)
	return it.v, true
}

func (c *LRU) Set(k string, v []*geozone.Zone) {
	c.mu.Lock()
	defer c.mu.Unlock()
	it := entry{k: k, v: v, exp: c.now().Add(c.ttl)}
	if e, ok := c.dict[k]; ok {
		e.Value = it
		c.lst.MoveToFront(e)
		return
	}
	c.dict[k] = c.lst.PushFront(it)
	for c.lst.Len() > c.cap {
		back := c.lst.Back()
		delete(c.dict, back.Value.(entry).k)
		c.lst.Remove(back)
	}
}

func (c *LRU) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lst.Len()
}
