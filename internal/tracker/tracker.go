// 包 tracker：设备进出围栏检测；订阅 MQTT 位置，按设备维护当前围栏，向 RabbitMQ 发布进出事件
package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"geozone-api/internal/geozone"
	"geozone-api/internal/logger"
	"geozone-api/internal/metrics"
)

type EventKind string

const (
	Arrive EventKind = "arrive"
	Depart EventKind = "depart"
)

// Position：一条设备位置上报
type Position struct {
	Account  string
	DeviceID string
	Point    geozone.Point
	Time     time.Time
}

// Event：进出事件（对外 JSON）
type Event struct {
	Kind        EventKind `json:"event"`
	Account     string    `json:"account"`
	DeviceID    string    `json:"device_id"`
	GeozoneID   string    `json:"geozone_id"`
	Description string    `json:"description,omitempty"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Timestamp   int64     `json:"timestamp"`
}

// ZoneFinder：设备维度的首个命中围栏
type ZoneFinder interface {
	FindFirstForDevice(ctx context.Context, account string, p geozone.Point, deviceID string) (*geozone.Zone, error)
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

type deviceState struct {
	zoneID    string
	desc      string
	departure bool
	at        time.Time
}

// 文档注释：进出检测器
// 背景：设备状态只保存在进程内，重启后首个位置会按“从无到有”产生一次 arrive。
// 约束：早于该设备上次处理时间的位置视为乱序并丢弃；同一设备的上报串行处理。
type Tracker struct {
	finder ZoneFinder
	pub    Publisher
	mc     *metrics.Collector

	mu     sync.Mutex
	states map[string]deviceState
	locks  map[string]*sync.Mutex
}

func New(finder ZoneFinder, pub Publisher, mc *metrics.Collector) *Tracker {
	return &Tracker{finder: finder, pub: pub, mc: mc, states: make(map[string]deviceState), locks: make(map[string]*sync.Mutex)}
}

// deviceLock：设备级互斥锁；t.mu 只保护 states 与 locks 两个映射
func (t *Tracker) deviceLock(key string) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	l, ok := t.locks[key]
	if !ok {
		l = &sync.Mutex{}
		t.locks[key] = l
	}
	return l
}

func (t *Tracker) state(key string) deviceState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.states[key]
}

// 文档注释：处理一条位置
// 返回：本次产生的事件；发布失败不回滚状态，错误合并返回。
func (t *Tracker) Handle(ctx context.Context, pos Position) ([]Event, error) {
	key := pos.Account + "/" + pos.DeviceID
	dl := t.deviceLock(key)
	dl.Lock()
	defer dl.Unlock()
	prev := t.state(key)
	if !prev.at.IsZero() && pos.Time.Before(prev.at) {
		t.mc.TrackerEvent("stale")
		logger.L().Debug("tracker_stale_position", "device", key, "at", pos.Time)
		return nil, nil
	}
	t.mc.TrackerEvent("position")
	z, err := t.finder.FindFirstForDevice(ctx, pos.Account, pos.Point, pos.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", key, err)
	}
	cur := deviceState{at: pos.Time}
	if z != nil {
		cur.zoneID, cur.desc, cur.departure = z.GeozoneID, z.Description, z.DepartureZone
	}
	var events []Event
	if prev.zoneID != cur.zoneID {
		if prev.zoneID != "" && prev.departure {
			events = append(events, newEvent(Depart, pos, prev.zoneID, prev.desc))
		}
		if z != nil && z.ArrivalZone {
			events = append(events, newEvent(Arrive, pos, z.GeozoneID, z.Description))
		}
	}
	if cur.zoneID == "" {
		cur.departure = false
	}
	t.mu.Lock()
	t.states[key] = cur
	t.mu.Unlock()

	var errs []error
	for _, e := range events {
		t.mc.TrackerEvent(string(e.Kind))
		logger.L().Info("tracker_event", "event", e.Kind, "device", key, "zone", e.GeozoneID)
		if t.pub == nil {
			continue
		}
		if err := t.pub.Publish(ctx, e); err != nil {
			t.mc.PublishFailed()
			logger.L().Error("tracker_publish_error", "event", e.Kind, "device", key, "err", err)
			errs = append(errs, err)
		}
	}
	return events, errors.Join(errs...)
}

// Current：设备当前所在围栏，未知为空
func (t *Tracker) Current(account, deviceID string) string {
	return t.state(account + "/" + deviceID).zoneID
}

func newEvent(kind EventKind, pos Position, zoneID, desc string) Event {
	return Event{
		Kind:        kind,
		Account:     pos.Account,
		DeviceID:    pos.DeviceID,
		GeozoneID:   zoneID,
		Description: desc,
		Latitude:    pos.Point.Lat,
		Longitude:   pos.Point.Lon,
		Timestamp:   pos.Time.Unix(),
	}
}
