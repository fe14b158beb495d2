package geo

import (
	"testing"
	"time"

	"ferry77-dispatch/internal/domain"
)

func TestDistanceKm_KnownPoints(t *testing.T) {
	t.Parallel()

	// Bogotá city center to the airport, roughly 12-13 km great circle.
	a := domain.Coordinates{Lat: 4.5981, Lng: -74.0758}
	b := domain.Coordinates{Lat: 4.7016, Lng: -74.1469}

	got := DistanceKm(a, b)
	if got < 12.0 || got > 15.0 {
		t.Fatalf("distance out of expected range: %v km", got)
	}
	// Rounded to one decimal place.
	if got != float64(int(got*10))/10 {
		t.Fatalf("distance not rounded to one decimal: %v", got)
	}
}

func TestDistanceKm_SamePoint(t *testing.T) {
	t.Parallel()

	p := domain.Coordinates{Lat: 10.5, Lng: -66.9}
	if d := DistanceKm(p, p); d != 0 {
		t.Fatalf("expected 0 km for identical points, got %v", d)
	}
}

func TestDistance_MissingCoordinates(t *testing.T) {
	t.Parallel()

	p := &domain.Coordinates{Lat: 1, Lng: 1}

	if _, ok := Distance(nil, p); ok {
		t.Fatal("expected ok=false when origin is missing")
	}
	if _, ok := Distance(p, nil); ok {
		t.Fatal("expected ok=false when destination is missing")
	}
	if _, ok := Distance(nil, nil); ok {
		t.Fatal("expected ok=false when both are missing")
	}
	if km, ok := Distance(p, p); !ok || km != 0 {
		t.Fatalf("expected 0 km ok=true, got %v %v", km, ok)
	}
}

func TestETA_Monotone(t *testing.T) {
	t.Parallel()

	prev := time.Duration(-1)
	for _, km := range []float64{0, 0.1, 0.4, 1, 2.5, 10, 29.9, 30, 75, 200} {
		eta := ETA(km)
		if eta < prev {
			t.Fatalf("ETA not monotone: ETA(%v)=%v < previous %v", km, eta, prev)
		}
		prev = eta
	}
}

func TestFormatETA(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		d    time.Duration
		want string
	}{
		{"sub-minute", 20 * time.Second, "less than a minute"},
		{"minutes", 14 * time.Minute, "14 min"},
		{"exactly an hour", time.Hour, "1 h 0 min"},
		{"hours and minutes", 90 * time.Minute, "1 h 30 min"},
		{"multiple hours", 2*time.Hour + 5*time.Minute, "2 h 5 min"},
		{"rounds up into the hour", 59*time.Minute + 42*time.Second, "1 h 0 min"},
		{"rounds up into the next hour", time.Hour + 59*time.Minute + 42*time.Second, "2 h 0 min"},
		{"rounds down below the hour", 59*time.Minute + 12*time.Second, "59 min"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := FormatETA(tc.d); got != tc.want {
				t.Fatalf("FormatETA(%v) = %q, want %q", tc.d, got, tc.want)
			}
		})
	}
}

func TestEtaMinutes_ThirtyKmIsOneHour(t *testing.T) {
	t.Parallel()

	if got := EtaMinutes(30); got != 60 {
		t.Fatalf("30 km at 30 km/h should be 60 minutes, got %v", got)
	}
}
