package geo

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestPoint_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Point
		wantErr bool
	}{
		{"lng", `{"lat": 1.5, "lng": 2.5}`, Point{Lat: 1.5, Lng: 2.5}, false},
		{"lon alias", `{"lat": -3, "lon": 4}`, Point{Lat: -3, Lng: 4}, false},
		{"lng wins over lon", `{"lat": 0, "lng": 1, "lon": 9}`, Point{Lat: 0, Lng: 1}, false},
		{"missing lat", `{"lng": 1}`, Point{}, true},
		{"missing lng", `{"lat": 1}`, Point{}, true},
		{"not an object", `[1,2]`, Point{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var p Point
			err := json.Unmarshal([]byte(tt.input), &p)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Unmarshal() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && p != tt.want {
				t.Errorf("Unmarshal() = %+v, want %+v", p, tt.want)
			}
		})
	}
}

func TestPoint_MarshalUsesLng(t *testing.T) {
	b, err := json.Marshal(Point{Lat: 1, Lng: 2})
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(b) != `{"lat":1,"lng":2}` {
		t.Errorf("Marshal() = %s", b)
	}
}

func TestPoint_Validate(t *testing.T) {
	if err := (Point{Lat: 51.5, Lng: -0.1}).Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	for _, p := range []Point{{Lat: 91}, {Lat: -91}, {Lng: 181}, {Lng: -181}} {
		if err := p.Validate(); !errors.Is(err, ErrInvalidPoint) {
			t.Errorf("Validate(%+v) error = %v, want ErrInvalidPoint", p, err)
		}
	}
}

func TestPolygonContains(t *testing.T) {
	square := []Point{{0, 0}, {0, 10}, {10, 10}, {10, 0}}

	tests := []struct {
		name    string
		polygon []Point
		point   Point
		want    bool
	}{
		{"centre", square, Point{5, 5}, true},
		{"outside east", square, Point{5, 15}, false},
		{"outside south", square, Point{-1, 5}, false},
		{"degenerate polygon", square[:2], Point{0, 0}, false},
		{"concave notch", []Point{{0, 0}, {0, 10}, {10, 10}, {10, 6}, {4, 5}, {10, 4}, {10, 0}}, Point{8, 5}, false},
		{"concave body", []Point{{0, 0}, {0, 10}, {10, 10}, {10, 6}, {4, 5}, {10, 4}, {10, 0}}, Point{2, 5}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PolygonContains(tt.polygon, tt.point); got != tt.want {
				t.Errorf("PolygonContains(%v) = %v, want %v", tt.point, got, tt.want)
			}
		})
	}
}
