package backoff

import (
	"testing"
	"time"
)

func TestCalculator(t *testing.T) {
	calc := NewCalculator(ExponentialStrategy{})

	result := calc.Calculate(1, 100*time.Millisecond, 5*time.Second, 0)
	expected := 200 * time.Millisecond
	if result != expected {
		t.Errorf("Calculate(1) = %v, want %v", result, expected)
	}
}

func TestGetFixedCalculator(t *testing.T) {
	calc := GetFixedCalculator()
	if calc == nil {
		t.Fatal("GetFixedCalculator() returned nil")
	}

	if got := calc.Calculate(7, 50*time.Millisecond, time.Second, 0); got != 50*time.Millisecond {
		t.Errorf("fixed calculator Calculate(7) = %v, want 50ms", got)
	}
}

func TestGetLinearCalculator(t *testing.T) {
	calc := GetLinearCalculator()
	if calc == nil {
		t.Fatal("GetLinearCalculator() returned nil")
	}

	if got := calc.Calculate(2, 50*time.Millisecond, time.Second, 0); got != 150*time.Millisecond {
		t.Errorf("linear calculator Calculate(2) = %v, want 150ms", got)
	}
}

func TestGetExponentialCalculator(t *testing.T) {
	calc := GetExponentialCalculator()
	if calc == nil {
		t.Fatal("GetExponentialCalculator() returned nil")
	}

	if got := calc.Calculate(3, 50*time.Millisecond, time.Second, 0); got != 400*time.Millisecond {
		t.Errorf("exponential calculator Calculate(3) = %v, want 400ms", got)
	}
}

func BenchmarkCalculatorExponential(b *testing.B) {
	calc := GetExponentialCalculator()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		calc.Calculate(i%10, 100*time.Millisecond, 5*time.Second, 0.1)
	}
}
