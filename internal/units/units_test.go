package units

import (
	"math"
	"testing"
)

func TestBendRadius(t *testing.T) {
	tests := []struct {
		name     string
		pt       float64
		charge   int
		bmag     float64
		expected float64
	}{
		{"100 MeV in 1 T", 100, 1, 1.0, 333.564},
		{"negative charge flips sign", 100, -1, 1.0, -333.564},
		{"double field halves radius", 100, 1, 2.0, 166.782},
		{"electron 105 MeV in 1 T", 105, -1, 1.0, -350.242},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := BendRadius(tt.pt, tt.charge, tt.bmag)
			if math.Abs(result-tt.expected) > 0.01 {
				t.Errorf("BendRadius(%f, %d, %f) = %f, want %f", tt.pt, tt.charge, tt.bmag, result, tt.expected)
			}
		})
	}
}

func TestBeta(t *testing.T) {
	if Beta(0, 0.511) != 0 {
		t.Errorf("Beta at rest should be 0")
	}
	if b := Beta(105, 0.511); b < 0.9999 || b >= 1 {
		t.Errorf("Beta for 105 MeV electron = %f, want ~1", b)
	}
	if b := Beta(105.66, 105.66); math.Abs(b-1/math.Sqrt2) > 1e-9 {
		t.Errorf("Beta(p=m) = %f, want 1/sqrt(2)", b)
	}
}

func TestIsValid(t *testing.T) {
	tests := []struct {
		name     string
		unit     string
		expected bool
	}{
		{"valid mm", MM, true},
		{"valid ns", NS, true},
		{"valid radians", Radians, true},
		{"invalid unit", "furlong", false},
		{"empty string", "", false},
		{"case sensitive", "MM", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := IsValid(tt.unit); result != tt.expected {
				t.Errorf("IsValid(%s) = %v, want %v", tt.unit, result, tt.expected)
			}
		})
	}
}
