package geozone

import "testing"

func TestNewDefaults(t *testing.T) {
	z := New("acme", "home", 2)
	if z.Description != "Custom Zone home" {
		t.Errorf("unexpected description %q", z.Description)
	}
	if !z.IsActive || !z.ArrivalZone || !z.DepartureZone || !z.ReverseGeocode {
		t.Errorf("expected active arrival/departure reverse-geocode defaults, got %+v", z.Attributes)
	}
	if z.Type != PointRadius || z.RadiusMeters != 3000 {
		t.Errorf("expected point radius 3000, got %v %d", z.Type, z.RadiusMeters)
	}
	if z.Key() != "acme/home/2" {
		t.Errorf("unexpected key %q", z.Key())
	}
}

func TestSetTypeResetsRadius(t *testing.T) {
	z := New("acme", "road", 0)
	z.SetType(SweptPointRadius)
	if z.RadiusMeters != 1000 {
		t.Errorf("expected corridor default 1000, got %d", z.RadiusMeters)
	}
	z.RadiusMeters = 42
	z.SetType(SweptPointRadius)
	if z.RadiusMeters != 42 {
		t.Errorf("same type must not reset radius")
	}
}

func TestClampRadius(t *testing.T) {
	tests := []struct {
		t    GeozoneType
		in   uint32
		want uint32
	}{
		{PointRadius, 0, MinRadiusMeters},
		{PointRadius, 100, 100},
		{SweptPointRadius, 50000, MaxRadiusMeters},
		{Polygon, 0, 0},
		{BoundedRectangle, 99999, 99999},
	}
	for _, tt := range tests {
		if got := tt.t.ClampRadius(tt.in); got != tt.want {
			t.Errorf("%s.ClampRadius(%d) = %d, want %d", tt.t, tt.in, got, tt.want)
		}
	}
}

func TestPointValid(t *testing.T) {
	tests := []struct {
		name string
		p    Point
		want bool
	}{
		{"normal", Point{Lat: 34, Lon: -118}, true},
		{"equator", Point{Lat: 0, Lon: 10}, true},
		{"origin", Point{}, false},
		{"lat range", Point{Lat: 90.1, Lon: 1}, false},
		{"lon range", Point{Lat: 1, Lon: -180.5}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Valid(); got != tt.want {
				t.Errorf("Valid() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParseType(t *testing.T) {
	for _, gt := range AllTypes {
		got, ok := ParseType(gt.String())
		if !ok || got != gt {
			t.Errorf("ParseType(%q) = %v, %v", gt.String(), got, ok)
		}
	}
	if _, ok := ParseType("hexagon"); ok {
		t.Errorf("unknown name should not parse")
	}
	if !PointRadius.HasRadius() || !SweptPointRadius.HasRadius() || Polygon.HasRadius() || BoundedRectangle.HasRadius() {
		t.Errorf("unexpected HasRadius table")
	}
}
