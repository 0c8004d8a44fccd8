package paramspec

import "testing"

func TestParamValue_Scalar_ExpandsToItself(t *testing.T) {
	vals, err := Scalar(3.5).expand(false)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(vals) != 1 || vals[0] != 3.5 {
		t.Fatalf("got %v, want [3.5]", vals)
	}
}

func TestParamValue_List_RejectsEmpty(t *testing.T) {
	if _, err := List(nil).expand(false); err == nil {
		t.Fatalf("expected error for empty list")
	}
}

func TestParamValue_RangeStep_GeneratesInclusiveRange(t *testing.T) {
	vals, err := RangeStep(0, 10, 2.5).expand(false)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	want := []float64{0, 2.5, 5, 7.5, 10}
	if len(vals) != len(want) {
		t.Fatalf("got %v, want %v", vals, want)
	}
	for i := range want {
		if vals[i] != want[i] {
			t.Fatalf("index %d: got %v want %v", i, vals[i], want[i])
		}
	}
}

func TestParamValue_RangeStep_RejectsNonIntegerStepOnIntegerAxis(t *testing.T) {
	if _, err := RangeStep(0, 10, 2.5).expand(true); err == nil {
		t.Fatalf("expected error for non-integer step on an integer axis")
	}
}

func TestParamValue_RangeStep_RejectsNonPositiveStep(t *testing.T) {
	if _, err := RangeStep(0, 10, 0).expand(false); err == nil {
		t.Fatalf("expected error for zero step")
	}
	if _, err := RangeStep(0, 10, -1).expand(false); err == nil {
		t.Fatalf("expected error for negative step")
	}
}

func TestParamValue_RangePoints_SinglePointYieldsMin(t *testing.T) {
	vals, err := RangePoints(5, 20, 1).expand(false)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if len(vals) != 1 || vals[0] != 5 {
		t.Fatalf("got %v, want [5]", vals)
	}
}

func TestParamValue_RangePoints_LastValueExactlyMax(t *testing.T) {
	vals, err := RangePoints(0, 1, 7).expand(false)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if vals[0] != 0 {
		t.Fatalf("first value = %v, want 0", vals[0])
	}
	if vals[len(vals)-1] != 1 {
		t.Fatalf("last value = %v, want exactly 1", vals[len(vals)-1])
	}
}

func TestParamValue_RangePoints_IntegerRoundsHalfToEven(t *testing.T) {
	vals, err := RangePoints(0, 5, 3).expand(true)
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	// 0, 2.5, 5 -> round-half-to-even(2.5) = 2
	if vals[1] != 2 {
		t.Fatalf("middle value = %v, want 2 (round-half-to-even)", vals[1])
	}
}

func TestParamValue_RangeStep_RejectsInvertedBounds(t *testing.T) {
	if _, err := RangeStep(10, 0, 1).expand(false); err == nil {
		t.Fatalf("expected error for min > max")
	}
}
