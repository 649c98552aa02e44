package fixedpoint

import "testing"

func TestIntRoundTrip(t *testing.T) {
	tests := []int{0, 1, -1, 31, -20, 63, 100, 131071, -131072}
	for _, n := range tests {
		if got := Int(n).Trunc(); got != n {
			t.Errorf("Int(%d).Trunc() = %d, want %d", n, got, n)
		}
		if got := Int(n).Round(); got != n {
			t.Errorf("Int(%d).Round() = %d, want %d", n, got, n)
		}
	}
}

func TestFrac(t *testing.T) {
	tests := []struct {
		name string
		n, d int
		want float64
	}{
		{"one half", 1, 2, 0.5},
		{"fifty nine sixtieths", 59, 60, 59.0 / 60.0},
		{"one sixtieth", 1, 60, 1.0 / 60.0},
		{"negative quarter", -1, 4, -0.25},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Frac(tt.n, tt.d).Float64()
			if diff := got - tt.want; diff > 1.0/scale || diff < -1.0/scale {
				t.Errorf("Frac(%d, %d) = %v, want %v (within one unit)", tt.n, tt.d, got, tt.want)
			}
		})
	}
}

func TestRound(t *testing.T) {
	tests := []struct {
		name string
		x    FP
		want int
	}{
		{"zero", Int(0), 0},
		{"below half", Frac(2, 5), 0},
		{"exactly half", Frac(1, 2), 1},
		{"above half", Frac(3, 5), 1},
		{"negative below half", Frac(-2, 5), 0},
		{"negative half", Frac(-1, 2), -1},
		{"negative above half", Frac(-3, 5), -1},
		{"seven and three quarters", Int(7).Add(Frac(3, 4)), 8},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.x.Round(); got != tt.want {
				t.Errorf("Round() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestTruncTowardZero(t *testing.T) {
	if got := Frac(7, 2).Trunc(); got != 3 {
		t.Errorf("Trunc(3.5) = %d, want 3", got)
	}
	if got := Frac(-7, 2).Trunc(); got != -3 {
		t.Errorf("Trunc(-3.5) = %d, want -3", got)
	}
}

func TestMulDiv(t *testing.T) {
	x := Frac(3, 2) // 1.5
	y := Int(4)
	if got := x.Mul(y).Round(); got != 6 {
		t.Errorf("1.5 * 4 = %d, want 6", got)
	}
	if got := y.Div(x).Round(); got != 3 {
		t.Errorf("4 / 1.5 rounds to %d, want 3", got)
	}
	if got := x.MulInt(4).Round(); got != 6 {
		t.Errorf("MulInt: 1.5 * 4 = %d, want 6", got)
	}
	if got := Int(100).DivInt(4).Round(); got != 25 {
		t.Errorf("DivInt: 100 / 4 = %d, want 25", got)
	}
}

// Mul must not overflow for values well inside the 17-bit integer range.
func TestMulWideIntermediate(t *testing.T) {
	x := Int(300) // 300*300 = 90000 fits the 17-bit range, but the raw product needs 64 bits
	if got := x.Mul(x).Trunc(); got != 90000 {
		t.Errorf("300 * 300 = %d, want 90000", got)
	}
}

// The load-average recurrence must converge toward the ready count.
func TestLoadAverageConvergence(t *testing.T) {
	const ready = 3
	load := Int(0)
	for i := 0; i < 3000; i++ {
		load = Frac(59, 60).Mul(load).Add(Frac(1, 60).Mul(Int(ready)))
	}
	if got := load.MulInt(100).Round(); got < 295 || got > 300 {
		t.Errorf("load average converged to %d/100, want within [295, 300]", got)
	}
}
