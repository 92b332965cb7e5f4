package utils

import (
	"math"
	"testing"
)

func TestParseGPSRational(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantErr bool
	}{
		{"37/1", 37, false},
		{"2991/100", 29.91, false},
		{"45", 45, false},
		{" 30/2 ", 15, false},
		{"abc", 0, true},
		{"1/x", 0, true},
	}

	for _, tt := range tests {
		r, err := ParseGPSRational(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseGPSRational(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseGPSRational(%q): %v", tt.in, err)
			continue
		}
		got, err := r.Value()
		if err != nil {
			t.Errorf("Value(%q): %v", tt.in, err)
			continue
		}
		if math.Abs(got-tt.want) > 1e-9 {
			t.Errorf("ParseGPSRational(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestGPSAnglesToDecimal(t *testing.T) {
	deg := GPSRational{37, 1}
	min := GPSRational{46, 1}
	sec := GPSRational{30, 1}

	north, err := GPSAnglesToDecimal("N", deg, min, sec)
	if err != nil {
		t.Fatalf("GPSAnglesToDecimal: %v", err)
	}
	want := 37.0 + 46.0/60.0 + 30.0/3600.0
	if math.Abs(north-want) > 1e-9 {
		t.Errorf("north = %v, want %v", north, want)
	}

	south, err := GPSAnglesToDecimal("S", deg, min, sec)
	if err != nil {
		t.Fatalf("GPSAnglesToDecimal: %v", err)
	}
	if math.Abs(south+want) > 1e-9 {
		t.Errorf("south = %v, want %v", south, -want)
	}

	if _, err := GPSAnglesToDecimal("Q", deg, min, sec); err == nil {
		t.Error("expected error for bad reference")
	}

	if _, err := GPSAnglesToDecimal("N", GPSRational{1, 0}, min, sec); err == nil {
		t.Error("expected error for zero denominator")
	}
}
