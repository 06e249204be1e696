package geoip

import (
	"errors"
	"net"
	"testing"
	"time"

	"geozone-api/internal/geozone"

	"github.com/oschwald/geoip2-golang"
	"github.com/oschwald/maxminddb-golang"
)

type fakeReader struct {
	CityFunc func(ip net.IP) (*geoip2.City, error)
	md       maxminddb.Metadata
}

func (f *fakeReader) City(ip net.IP) (*geoip2.City, error) { return f.CityFunc(ip) }
func (f *fakeReader) Metadata() maxminddb.Metadata         { return f.md }
func (f *fakeReader) Close() error                         { return nil }

func cityAt(lat, lon float64) *geoip2.City {
	c := &geoip2.City{}
	c.Location.Latitude = lat
	c.Location.Longitude = lon
	return c
}

func TestLocate(t *testing.T) {
	fr := &fakeReader{CityFunc: func(ip net.IP) (*geoip2.City, error) {
		switch ip.String() {
		case "203.0.113.7":
			return cityAt(34.05, -118.25), nil
		case "198.51.100.1":
			return cityAt(0, 0), nil
		}
		return nil, errors.New("corrupt database")
	}}
	l := &Locator{r: fr}
	tests := []struct {
		ip      string
		want    geozone.Point
		wantErr error
	}{
		{"203.0.113.7", geozone.Point{Lat: 34.05, Lon: -118.25}, nil},
		{" 203.0.113.7 ", geozone.Point{Lat: 34.05, Lon: -118.25}, nil},
		{"not-an-ip", geozone.Point{}, geozone.ErrInvalidInput},
		{"198.51.100.1", geozone.Point{}, geozone.ErrInvalidInput},
		{"192.0.2.1", geozone.Point{}, geozone.ErrStoreUnavailable},
	}
	for _, tc := range tests {
		got, err := l.Locate(tc.ip)
		if tc.wantErr != nil {
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("%q: expected %v, got %v", tc.ip, tc.wantErr, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Errorf("%q: got %v %v want %v", tc.ip, got, err, tc.want)
		}
	}
}

func TestBuildTime(t *testing.T) {
	l := &Locator{r: &fakeReader{md: maxminddb.Metadata{BuildEpoch: 1700000000, DatabaseType: "GeoLite2-City"}}}
	if got := l.BuildTime(); !got.Equal(time.Unix(1700000000, 0)) {
		t.Errorf("unexpected build time %v", got)
	}
}
