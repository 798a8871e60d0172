package utils

import (
	"math"
	"testing"
	"time"

	"riderx/models"
)

func TestCalculateDistanceKm(t *testing.T) {
	// San Francisco to Los Angeles is roughly 559 km
	d := CalculateDistanceKm(37.7749, -122.4194, 34.0522, -118.2437)
	if d < 550 || d > 570 {
		t.Fatalf("unexpected distance: %v", d)
	}

	if d := CalculateDistanceKm(40, -74, 40, -74); d != 0 {
		t.Fatalf("expected zero distance for identical points, got %v", d)
	}
}

func TestCalculateDistanceKmSymmetric(t *testing.T) {
	a := CalculateDistanceKm(51.5074, -0.1278, 48.8566, 2.3522)
	b := CalculateDistanceKm(48.8566, 2.3522, 51.5074, -0.1278)
	if math.Abs(a-b) > 1e-9 {
		t.Fatalf("distance not symmetric: %v vs %v", a, b)
	}
}

func TestOneDegreeOfLatitude(t *testing.T) {
	d := CalculateDistanceKm(0, 0, 1, 0)
	if math.Abs(d-111.19) > 0.05 {
		t.Fatalf("expected ~111.19 km, got %v", d)
	}
}

func TestTraceDistanceKm(t *testing.T) {
	now := time.Now()
	trace := models.RouteTrace{
		{Latitude: 0, Longitude: 0, Timestamp: now},
		{Latitude: 0.01, Longitude: 0, Timestamp: now.Add(time.Minute)},
		{Latitude: 0.02, Longitude: 0, Timestamp: now.Add(2 * time.Minute)},
	}

	got := TraceDistanceKm(trace)
	want := DistanceKm(trace[0], trace[1]) + DistanceKm(trace[1], trace[2])
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected %v, got %v", want, got)
	}

	if TraceDistanceKm(nil) != 0 || TraceDistanceKm(trace[:1]) != 0 {
		t.Fatalf("expected zero distance for short traces")
	}
}

func TestSpeedKmh(t *testing.T) {
	if got := SpeedKmh(1, 60); math.Abs(got-60) > 1e-9 {
		t.Fatalf("expected 60 km/h, got %v", got)
	}
	if got := SpeedKmh(5, 0); got != 0 {
		t.Fatalf("expected 0 for no elapsed time, got %v", got)
	}
	if got := SpeedKmh(5, -3); got != 0 {
		t.Fatalf("expected 0 for negative elapsed time, got %v", got)
	}
}

func TestMetersPerSecondToKmh(t *testing.T) {
	if got := MetersPerSecondToKmh(10); math.Abs(got-36) > 1e-9 {
		t.Fatalf("expected 36, got %v", got)
	}
}

func TestCalculateBearing(t *testing.T) {
	tests := []struct {
		name                   string
		lat1, lon1, lat2, lon2 float64
		want                   float64
	}{
		{"north", 0, 0, 1, 0, 0},
		{"east", 0, 0, 0, 1, 90},
		{"south", 1, 0, 0, 0, 180},
		{"west", 0, 1, 0, 0, 270},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateBearing(tt.lat1, tt.lon1, tt.lat2, tt.lon2)
			if math.Abs(got-tt.want) > 0.01 {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestIsValidCoordinate(t *testing.T) {
	tests := []struct {
		lat, lon float64
		want     bool
	}{
		{0, 0, true},
		{90, 180, true},
		{-90, -180, true},
		{90.0001, 0, false},
		{0, -180.5, false},
		{math.NaN(), 0, false},
		{0, math.NaN(), false},
	}

	for _, tt := range tests {
		if got := IsValidCoordinate(tt.lat, tt.lon); got != tt.want {
			t.Fatalf("IsValidCoordinate(%v, %v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
		}
	}
}
