package compute

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func almostEqual(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol
}

// --- Integrals ---

func TestIntegrals_TwoPointScenario(t *testing.T) {
	errs := []float64{3, 1}
	times := []float64{0, 1}

	if v, ok := Integral(errs, times); !ok || v != 2 {
		t.Errorf("Integral = %v, %v; want 2, true", v, ok)
	}
	if v, ok := IntegralOfSquared(errs, times); !ok || v != 5 {
		t.Errorf("IntegralOfSquared = %v, %v; want 5, true", v, ok)
	}
	if v, ok := IntegralOfAbsolute(errs, times); !ok || v != 2 {
		t.Errorf("IntegralOfAbsolute = %v, %v; want 2, true", v, ok)
	}
}

func TestIntegrals_SignChange(t *testing.T) {
	errs := []float64{2, -2}
	times := []float64{0, 2}

	ie, _ := Integral(errs, times)
	if ie != 0 {
		t.Errorf("Integral over symmetric sign change = %v, want 0", ie)
	}
	iae, _ := IntegralOfAbsolute(errs, times)
	if iae != 4 {
		t.Errorf("IntegralOfAbsolute = %v, want 4", iae)
	}
}

func TestIntegrals_UnevenSpacing(t *testing.T) {
	errs := []float64{1, 1, 3}
	times := []float64{0, 0.5, 2.5}
	// 0.5*1 + 2*(1+3)/2 = 4.5
	if v, _ := Integral(errs, times); !almostEqual(v, 4.5, 1e-12) {
		t.Errorf("Integral = %v, want 4.5", v)
	}
}

func TestIntegrals_EmptyIsAbsent(t *testing.T) {
	fns := map[string]func(e, x []float64) (float64, bool){
		"IE":  Integral,
		"ISE": IntegralOfSquared,
		"IAE": IntegralOfAbsolute,
	}
	for name, fn := range fns {
		if _, ok := fn(nil, nil); ok {
			t.Errorf("%s(nil, nil) ok = true, want false", name)
		}
		if _, ok := fn([]float64{1, 2}, nil); ok {
			t.Errorf("%s(errs, nil) ok = true, want false", name)
		}
		if _, ok := fn(nil, []float64{0, 1}); ok {
			t.Errorf("%s(nil, times) ok = true, want false", name)
		}
	}
}

func TestIntegrals_SinglePointIsZero(t *testing.T) {
	v, ok := Integral([]float64{7}, []float64{0})
	if !ok || v != 0 {
		t.Errorf("Integral single point = %v, %v; want 0, true", v, ok)
	}
}

func TestIntegrals_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	for iter := 0; iter < 200; iter++ {
		n := 2 + rng.Intn(60)
		errs := make([]float64, n)
		times := make([]float64, n)
		var t0 float64
		for i := range errs {
			errs[i] = rng.NormFloat64() * 10
			t0 += rng.Float64() * 2
			times[i] = t0
		}
		times[0] = 0

		ie, _ := Integral(errs, times)
		ise, _ := IntegralOfSquared(errs, times)
		iae, _ := IntegralOfAbsolute(errs, times)

		if iae < math.Abs(ie)-1e-9 {
			t.Fatalf("iter %d: IAE %v < |IE| %v", iter, iae, math.Abs(ie))
		}
		if ise < 0 {
			t.Fatalf("iter %d: ISE %v < 0", iter, ise)
		}
	}
}

// --- Statistics ---

func TestStatistics_TwoPointScenario(t *testing.T) {
	st, err := Statistics([]float64{3, 1})
	if err != nil {
		t.Fatalf("Statistics() error = %v", err)
	}
	want := Stats{Max: 3, Min: 1, Mean: 2, Std: 1}
	if st != want {
		t.Errorf("Statistics = %+v, want %+v", st, want)
	}
}

func TestStatistics_PopulationStd(t *testing.T) {
	st, _ := Statistics([]float64{2, 4, 4, 4, 5, 5, 7, 9})
	// Population std of this classic vector is exactly 2 (sample std would be ~2.138).
	if !almostEqual(st.Std, 2, 1e-12) {
		t.Errorf("Std = %v, want 2", st.Std)
	}
	if st.Mean != 5 {
		t.Errorf("Mean = %v, want 5", st.Mean)
	}
}

func TestStatistics_Empty(t *testing.T) {
	_, err := Statistics(nil)
	if !errors.Is(err, ErrEmptyInput) {
		t.Errorf("Statistics(nil) error = %v, want ErrEmptyInput", err)
	}
}

func TestStatistics_Ordering(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 200; iter++ {
		n := 1 + rng.Intn(80)
		errs := make([]float64, n)
		for i := range errs {
			errs[i] = rng.NormFloat64()*5 + rng.Float64()*3
		}
		st, err := Statistics(errs)
		if err != nil {
			t.Fatalf("iter %d: Statistics() error = %v", iter, err)
		}
		if st.Max < st.Mean-1e-12 || st.Mean < st.Min-1e-12 {
			t.Fatalf("iter %d: ordering violated: %+v", iter, st)
		}
		if st.Std < 0 {
			t.Fatalf("iter %d: Std %v < 0", iter, st.Std)
		}
	}
}

// --- round ---

func TestRound(t *testing.T) {
	tests := []struct{ in, want float64 }{
		{1.23456, 1.2346},
		{-1.23454, -1.2345},
		{2, 2},
		{0.00004, 0},
	}
	for _, tc := range tests {
		if got := round(tc.in, 4); !almostEqual(got, tc.want, 1e-12) {
			t.Errorf("round(%v, 4) = %v, want %v", tc.in, got, tc.want)
		}
	}
	if got := round(math.Inf(1), 4); !math.IsInf(got, 1) {
		t.Errorf("round(+Inf) = %v, want +Inf", got)
	}
}
