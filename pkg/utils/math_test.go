package utils

import (
	"math"
	"testing"
)

func TestClampFloat64(t *testing.T) {
	tests := []struct {
		value, min, max, expected float64
	}{
		{5.5, 0.0, 10.0, 5.5},
		{-5.5, 0.0, 10.0, 0.0},
		{15.5, 0.0, 10.0, 10.0},
		{5.5, 5.5, 10.0, 5.5},
		{10.0, 5.0, 10.0, 10.0},
	}

	for _, tt := range tests {
		result := ClampFloat64(tt.value, tt.min, tt.max)
		if result != tt.expected {
			t.Errorf("ClampFloat64(%f, %f, %f) = %f, expected %f",
				tt.value, tt.min, tt.max, result, tt.expected)
		}
	}
}

func TestMean(t *testing.T) {
	tests := []struct {
		values   []float64
		expected float64
	}{
		{[]float64{1, 2, 3, 4, 5}, 3.0},
		{[]float64{10, 20, 30}, 20.0},
		{[]float64{5}, 5.0},
		{[]float64{}, 0.0},
		{[]float64{-10, 10}, 0.0},
	}

	for _, tt := range tests {
		result := Mean(tt.values)
		if math.Abs(result-tt.expected) > 1e-9 {
			t.Errorf("Mean(%v) = %f, expected %f", tt.values, result, tt.expected)
		}
	}
}

func TestVariance(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	variance := Variance(values)

	// Variance of 1,2,3,4,5 is 2.0
	expected := 2.0
	if math.Abs(variance-expected) > 1e-9 {
		t.Errorf("Variance(%v) = %f, expected %f", values, variance, expected)
	}

	// Empty slice
	emptyVariance := Variance([]float64{})
	if emptyVariance != 0.0 {
		t.Errorf("Variance of empty slice should be 0, got %f", emptyVariance)
	}
}

func TestStdDev(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	stddev := StdDev(values)

	// StdDev of 1,2,3,4,5 is sqrt(2.0) ≈ 1.414
	expected := math.Sqrt(2.0)
	if math.Abs(stddev-expected) > 1e-9 {
		t.Errorf("StdDev(%v) = %f, expected %f", values, stddev, expected)
	}
}

func TestPercentile(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}

	tests := []struct {
		percentile float64
		expected   float64
	}{
		{0, 1},
		{25, 3.25},
		{50, 5.5},
		{75, 7.75},
		{100, 10},
	}

	for _, tt := range tests {
		result := Percentile(values, tt.percentile)
		if math.Abs(result-tt.expected) > 0.01 {
			t.Errorf("Percentile(%v, %f) = %f, expected %f",
				values, tt.percentile, result, tt.expected)
		}
	}

	// Empty slice
	emptyP50 := Percentile([]float64{}, 50)
	if emptyP50 != 0.0 {
		t.Errorf("Percentile of empty slice should be 0, got %f", emptyP50)
	}
}

func TestP50(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5}
	p50 := P50(values)

	expected := 3.0
	if math.Abs(p50-expected) > 1e-9 {
		t.Errorf("P50(%v) = %f, expected %f", values, p50, expected)
	}
}

func TestP95(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	p95 := P95(values)

	expected := 9.55
	if math.Abs(p95-expected) > 0.01 {
		t.Errorf("P95(%v) = %f, expected %f", values, p95, expected)
	}
}

func TestP99(t *testing.T) {
	values := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	p99 := P99(values)

	expected := 9.91
	if math.Abs(p99-expected) > 0.01 {
		t.Errorf("P99(%v) = %f, expected %f", values, p99, expected)
	}
}

func TestPercentileEdgeCases(t *testing.T) {
	// Single value
	single := []float64{5.0}
	if P50(single) != 5.0 {
		t.Error("P50 of single value should be that value")
	}

	// Two values
	two := []float64{1.0, 2.0}
	p50 := P50(two)
	if math.Abs(p50-1.5) > 1e-9 {
		t.Errorf("P50 of [1, 2] should be 1.5, got %f", p50)
	}
}
