package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"geozone-api/internal/geozone"
	"geozone-api/internal/plugins"
	"geozone-api/internal/store"
	"geozone-api/internal/zonecache"
)

type mockStore struct {
	CandidatesFunc func(ctx context.Context, q store.Query) ([]*geozone.Zone, error)
	ExistsFunc     func(ctx context.Context, account, zoneID string, sortID int) (bool, error)
	SaveFunc       func(ctx context.Context, z *geozone.Zone) error
}

func (m *mockStore) Candidates(ctx context.Context, q store.Query) ([]*geozone.Zone, error) {
	return m.CandidatesFunc(ctx, q)
}

func (m *mockStore) Exists(ctx context.Context, account, zoneID string, sortID int) (bool, error) {
	return m.ExistsFunc(ctx, account, zoneID, sortID)
}

func (m *mockStore) Save(ctx context.Context, z *geozone.Zone) error { return m.SaveFunc(ctx, z) }

func allCheckers(t *testing.T) *plugins.Manager {
	t.Helper()
	m := plugins.NewManager(nil)
	if err := plugins.RegisterBuiltins(m, nil); err != nil {
		t.Fatalf("register builtins: %v", err)
	}
	return m
}

func circle(id string, sortID, priority int, lat, lon float64, radius uint32) *geozone.Zone {
	z := geozone.New("acme", id, sortID)
	z.Vertices = []geozone.Point{{Lat: lat, Lon: lon}}
	z.RadiusMeters = radius
	z.Priority = priority
	return z
}

func seeded(t *testing.T, opts Options, zones ...*geozone.Zone) (*Resolver, *store.Memory) {
	t.Helper()
	mem := store.NewMemory()
	r := New(mem, mem, allCheckers(t), nil, nil, opts)
	for _, z := range zones {
		if err := r.Save(context.Background(), z); err != nil {
			t.Fatalf("save %s: %v", z.Key(), err)
		}
	}
	return r, mem
}

var here = geozone.Point{Lat: 34.0, Lon: -118.0}

func ids(zs []*geozone.Zone) []string {
	out := make([]string, len(zs))
	for i, z := range zs {
		out[i] = z.GeozoneID
	}
	return out
}

func TestFindContaining_PriorityOrder(t *testing.T) {
	zones := []*geozone.Zone{
		circle("alpha", 0, 2, 34.0, -118.0, 1000),
		circle("zulu", 0, 1, 34.0, -118.0, 1000),
		circle("far", 0, 0, 35.0, -118.0, 1000),
	}
	tests := []struct {
		name     string
		priority bool
		want     []string
	}{
		{"priority supported", true, []string{"zulu", "alpha"}},
		{"priority ignored", false, []string{"alpha", "zulu"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var cp []*geozone.Zone
			for _, z := range zones {
				cp = append(cp, z.Clone())
			}
			r, _ := seeded(t, Options{PrioritySupported: tc.priority}, cp...)
			got, err := r.FindContaining(context.Background(), "acme", here)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			g := ids(got)
			if len(g) != len(tc.want) {
				t.Fatalf("got %v want %v", g, tc.want)
			}
			for i := range g {
				if g[i] != tc.want[i] {
					t.Fatalf("got %v want %v", g, tc.want)
				}
			}
		})
	}
}

func TestFindContaining_InputHandling(t *testing.T) {
	r, _ := seeded(t, Options{}, circle("home", 0, 0, 34.0, -118.0, 1000))
	if _, err := r.FindContaining(context.Background(), "  ", here); !errors.Is(err, geozone.ErrInvalidInput) {
		t.Errorf("blank account should be invalid input, got %v", err)
	}
	got, err := r.FindContaining(context.Background(), "acme", geozone.Point{Lat: 91, Lon: 0})
	if err != nil || len(got) != 0 {
		t.Errorf("invalid point should give empty result, got %v %v", got, err)
	}
	got, err = r.FindContaining(context.Background(), "other", here)
	if err != nil || len(got) != 0 {
		t.Errorf("other account must not see zones, got %v %v", got, err)
	}
}

func TestFindContaining_ActivePolicy(t *testing.T) {
	z := circle("off", 0, 0, 34.0, -118.0, 1000)
	z.IsActive = false
	r, mem := seeded(t, Options{}, z)
	got, _ := r.FindContaining(context.Background(), "acme", here)
	if len(got) != 0 {
		t.Fatalf("inactive zone matched under stored-flag policy")
	}
	all := New(mem, mem, allCheckers(t), nil, nil, Options{ActivePolicy: TreatAllAsActive})
	got, _ = all.FindContaining(context.Background(), "acme", here)
	if len(got) != 1 {
		t.Fatalf("expected inactive zone with TreatAllAsActive, got %v", ids(got))
	}
}

func TestFindContaining_StoreError(t *testing.T) {
	ms := &mockStore{CandidatesFunc: func(ctx context.Context, q store.Query) ([]*geozone.Zone, error) {
		return nil, errors.New("connection refused")
	}}
	r := New(ms, nil, allCheckers(t), nil, nil, Options{})
	_, err := r.FindContaining(context.Background(), "acme", here)
	if !errors.Is(err, geozone.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestFindContaining_DescriptionBackfill(t *testing.T) {
	// 包围盒覆盖 here 但圆本身不命中：描述回填只看候选扫描顺序，不影响命中判定
	first := circle("home", 0, 0, 34.008, -117.992, 1000)
	first.Description = "Home Base"
	second := circle("home", 1, 0, 34.0, -118.0, 1000)
	second.Description = ""
	other := circle("yard", 0, 0, 34.0, -118.0, 1000)
	other.Description = ""
	r, mem := seeded(t, Options{}, first, second, other)

	got, err := r.FindContaining(context.Background(), "acme", here)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 matches, got %v", ids(got))
	}
	if got[0].GeozoneID != "home" || got[0].Description != "Home Base" {
		t.Errorf("expected back-filled description, got %+v", got[0].Attributes)
	}
	if got[1].Description != "" {
		t.Errorf("description must not leak across geozoneIDs, got %q", got[1].Description)
	}
	rows, _ := mem.Candidates(context.Background(), store.Query{Account: "acme", ZoneID: "home", Point: &here})
	if len(rows) != 1 || rows[0].Description != "" {
		t.Errorf("stored row must stay unchanged, got %+v", rows)
	}
}

func TestFindContaining_UnsupportedTypeSkipped(t *testing.T) {
	m := plugins.NewManager(nil)
	if err := plugins.RegisterBuiltins(m, []string{"point"}); err != nil {
		t.Fatal(err)
	}
	mem := store.NewMemory()
	r := New(mem, mem, m, nil, nil, Options{})
	road := geozone.New("acme", "road", 0)
	road.SetType(geozone.SweptPointRadius)
	road.Vertices = []geozone.Point{{Lat: 34.0, Lon: -118.01}, {Lat: 34.0, Lon: -117.99}}
	if err := r.Save(context.Background(), road); err != nil {
		t.Fatal(err)
	}
	if err := r.Save(context.Background(), circle("home", 0, 0, 34.0, -118.0, 1000)); err != nil {
		t.Fatal(err)
	}
	if r.IsTypeSupported(geozone.SweptPointRadius) {
		t.Errorf("corridor should be unsupported")
	}
	got, err := r.FindContaining(context.Background(), "acme", here)
	if err != nil {
		t.Fatalf("unsupported type must not fail the lookup: %v", err)
	}
	if len(got) != 1 || got[0].GeozoneID != "home" {
		t.Errorf("expected only home, got %v", ids(got))
	}
}

func TestFindFirstContaining_Purpose(t *testing.T) {
	a := circle("depot", 0, 1, 34.0, -118.0, 1000)
	a.PurposeID = "fuel"
	b := circle("office", 0, 2, 34.0, -118.0, 1000)
	b.PurposeID = "Parking"
	r, _ := seeded(t, Options{PrioritySupported: true}, a, b)
	tests := []struct {
		purpose string
		want    string
	}{
		{"", "depot"},
		{"parking", "office"},
		{"FUEL", "depot"},
		{"repair", ""},
	}
	for _, tc := range tests {
		z, err := r.FindFirstContaining(context.Background(), "acme", here, tc.purpose)
		if err != nil {
			t.Fatalf("purpose %q: %v", tc.purpose, err)
		}
		got := ""
		if z != nil {
			got = z.GeozoneID
		}
		if got != tc.want {
			t.Errorf("purpose %q: got %q want %q", tc.purpose, got, tc.want)
		}
	}
}

func TestFindFirstForDevice_GroupScoping(t *testing.T) {
	restricted := circle("yard", 0, 1, 34.0, -118.0, 1000)
	restricted.GroupID = "truckers"
	open := circle("lot", 0, 2, 34.0, -118.0, 1000)
	r, mem := seeded(t, Options{PrioritySupported: true}, restricted, open)
	if err := mem.AddMember(context.Background(), "acme", "truckers", "truck7"); err != nil {
		t.Fatal(err)
	}
	z, err := r.FindFirstForDevice(context.Background(), "acme", here, "car1")
	if err != nil {
		t.Fatal(err)
	}
	if z == nil || z.GeozoneID != "lot" {
		t.Fatalf("non-member should fall through to lot, got %+v", z)
	}
	z, err = r.FindFirstForDevice(context.Background(), "acme", here, "truck7")
	if err != nil {
		t.Fatal(err)
	}
	if z == nil || z.GeozoneID != "yard" {
		t.Fatalf("member should get yard, got %+v", z)
	}
}

type groupsFunc func(ctx context.Context, account, groupID, deviceID string) (bool, error)

func (f groupsFunc) IsMember(ctx context.Context, account, groupID, deviceID string) (bool, error) {
	return f(ctx, account, groupID, deviceID)
}

func TestFindFirstForDevice_MembershipError(t *testing.T) {
	restricted := circle("yard", 0, 1, 34.0, -118.0, 1000)
	restricted.GroupID = "truckers"
	mem := store.NewMemory()
	seed := New(mem, mem, allCheckers(t), nil, nil, Options{})
	if err := seed.Save(context.Background(), restricted); err != nil {
		t.Fatal(err)
	}
	groups := groupsFunc(func(context.Context, string, string, string) (bool, error) {
		return false, errors.New("connection reset")
	})
	r := New(mem, groups, allCheckers(t), nil, nil, Options{PrioritySupported: true})
	z, err := r.FindFirstForDevice(context.Background(), "acme", here, "truck7")
	if !errors.Is(err, geozone.ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
	if z != nil {
		t.Errorf("expected no zone on membership failure, got %+v", z)
	}
}

func TestFindFirstForDevice_OnlyExcluded(t *testing.T) {
	restricted := circle("yard", 0, 1, 34.0, -118.0, 1000)
	restricted.GroupID = "truckers"
	everyone := circle("gate", 0, 2, 35.0, -118.0, 1000)
	everyone.GroupID = "all"
	r, _ := seeded(t, Options{PrioritySupported: true}, restricted, everyone)
	z, err := r.FindFirstForDevice(context.Background(), "acme", here, "car1")
	if err != nil || z != nil {
		t.Fatalf("expected no zone, got %+v %v", z, err)
	}
	z, _ = r.FindFirstForDevice(context.Background(), "acme", geozone.Point{Lat: 35.0, Lon: -118.0}, "car1")
	if z == nil || z.GeozoneID != "gate" {
		t.Fatalf("group ALL should match any device, got %+v", z)
	}
}

func TestContainsExact(t *testing.T) {
	r, _ := seeded(t, Options{}, circle("home", 0, 0, 34.0, -118.0, 1000), circle("work", 0, 0, 35.0, -118.0, 1000))
	ctx := context.Background()
	tests := []struct {
		name    string
		zone    string
		p       geozone.Point
		want    bool
		wantErr error
	}{
		{"any zone hit", "", here, true, nil},
		{"named zone hit", "home", here, true, nil},
		{"named zone miss", "work", here, false, nil},
		{"unknown zone", "cabin", here, false, geozone.ErrNotFound},
		{"unknown zone invalid point", "cabin", geozone.Point{}, false, geozone.ErrNotFound},
		{"no zone invalid point", "", geozone.Point{}, false, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := r.ContainsExact(ctx, "acme", tc.zone, tc.p)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("got %v want %v", got, tc.want)
			}
		})
	}
}

func TestContainsExact_ExistsOnlyOnMiss(t *testing.T) {
	calls := 0
	hit := circle("home", 0, 0, 34.0, -118.0, 1000)
	geozone.RecomputeBounds(hit)
	ms := &mockStore{
		CandidatesFunc: func(ctx context.Context, q store.Query) ([]*geozone.Zone, error) {
			return []*geozone.Zone{hit}, nil
		},
		ExistsFunc: func(ctx context.Context, account, zoneID string, sortID int) (bool, error) {
			calls++
			if sortID != geozone.AnySortID {
				t.Errorf("expected AnySortID, got %d", sortID)
			}
			return true, nil
		},
	}
	r := New(ms, nil, allCheckers(t), nil, nil, Options{})
	if ok, err := r.ContainsExact(context.Background(), "acme", "home", here); !ok || err != nil {
		t.Fatalf("expected hit, got %v %v", ok, err)
	}
	if calls != 0 {
		t.Fatalf("exists should not be called on a hit")
	}
	if ok, err := r.ContainsExact(context.Background(), "acme", "home", geozone.Point{Lat: 40, Lon: -100}); ok || err != nil {
		t.Fatalf("expected miss, got %v %v", ok, err)
	}
	if calls != 1 {
		t.Fatalf("expected one exists call, got %d", calls)
	}
}

func TestFindInBounds(t *testing.T) {
	r, _ := seeded(t, Options{}, circle("home", 0, 0, 34.0, -118.0, 1000), circle("work", 0, 0, 36.0, -118.0, 1000))
	got, err := r.FindInBounds(context.Background(), "acme", geozone.Bounds{MinLat: 33.9, MaxLat: 34.1, MinLon: -118.1, MaxLon: -117.9})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].GeozoneID != "home" {
		t.Errorf("expected home, got %v", ids(got))
	}
	_, err = r.FindInBounds(context.Background(), "acme", geozone.Bounds{MinLat: 35, MaxLat: 34})
	if !errors.Is(err, geozone.ErrInvalidInput) {
		t.Errorf("inverted bounds should be invalid input, got %v", err)
	}
}

func TestDescription(t *testing.T) {
	hidden := circle("secret", 0, 0, 34.0, -118.0, 1000)
	hidden.ReverseGeocode = false
	hidden.Description = "Secret"
	shown := circle("plaza", 0, 1, 34.0, -118.0, 1000)
	shown.Description = "Plaza"
	r, _ := seeded(t, Options{PrioritySupported: true}, hidden, shown)
	d, err := r.Description(context.Background(), "acme", here)
	if err != nil {
		t.Fatal(err)
	}
	if d != "Plaza" {
		t.Errorf("expected Plaza, got %q", d)
	}
	d, _ = r.Description(context.Background(), "acme", geozone.Point{Lat: 10, Lon: 10})
	if d != "" {
		t.Errorf("expected blank description, got %q", d)
	}
}

func TestSave_ClampsAndRecomputes(t *testing.T) {
	var saved *geozone.Zone
	ms := &mockStore{SaveFunc: func(ctx context.Context, z *geozone.Zone) error {
		saved = z.Clone()
		return nil
	}}
	r := New(ms, nil, allCheckers(t), nil, nil, Options{})
	z := circle("home", 0, 0, 34.0, -118.0, 1)
	if err := r.Save(context.Background(), z); err != nil {
		t.Fatal(err)
	}
	if saved.RadiusMeters != geozone.MinRadiusMeters {
		t.Errorf("radius not clamped: %d", saved.RadiusMeters)
	}
	if !saved.Bounds.Contains(here) || saved.Bounds.MaxLat <= here.Lat {
		t.Errorf("bounds not recomputed: %+v", saved.Bounds)
	}
	if err := r.Save(context.Background(), geozone.New("", "x", 0)); !errors.Is(err, geozone.ErrInvalidInput) {
		t.Errorf("blank account should be invalid input, got %v", err)
	}
	ms.SaveFunc = func(ctx context.Context, z *geozone.Zone) error { return errors.New("disk full") }
	if err := r.Save(context.Background(), circle("home", 0, 0, 34.0, -118.0, 100)); !errors.Is(err, geozone.ErrStoreUnavailable) {
		t.Errorf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestCachedCandidates(t *testing.T) {
	mem := store.NewMemory()
	calls := 0
	ms := &mockStore{
		CandidatesFunc: func(ctx context.Context, q store.Query) ([]*geozone.Zone, error) {
			calls++
			if q.Point != nil || q.Bounds == nil {
				t.Errorf("cached lookups should query by cell bounds")
			}
			return mem.Candidates(ctx, q)
		},
		ExistsFunc: mem.Exists,
		SaveFunc:   mem.Save,
	}
	cache := zonecache.New(zonecache.Options{Size: 64, TTL: time.Minute, Precision: 6}, nil, nil)
	r := New(ms, mem, allCheckers(t), cache, nil, Options{})
	ctx := context.Background()
	if err := r.Save(ctx, circle("home", 0, 0, 34.0, -118.0, 1000)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		got, err := r.FindContaining(ctx, "acme", here)
		if err != nil || len(got) != 1 {
			t.Fatalf("lookup %d: %v %v", i, ids(got), err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected one store query, got %d", calls)
	}
	if err := r.Save(ctx, circle("shop", 0, 0, 34.0, -118.0, 500)); err != nil {
		t.Fatal(err)
	}
	got, err := r.FindContaining(ctx, "acme", here)
	if err != nil || len(got) != 2 {
		t.Fatalf("expected fresh rows after save, got %v %v", ids(got), err)
	}
	if calls != 2 {
		t.Fatalf("expected cache invalidation after save, got %d queries", calls)
	}
}
