package chainutils

import (
	"math"
	"testing"
)

func TestConvertWeightsAndUidsForEmit(t *testing.T) {
	uids := []int{0, 1, 2, 3}
	weights := []float64{1, 2, 4, 0}

	gotUids, gotWeights, err := ConvertWeightsAndUidsForEmit(uids, weights)
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}

	// Weight 0 rounds to zero and is dropped along with uid 3.
	wantUids := []int{0, 1, 2}
	wantWeights := []int{16384, 32768, 65535}

	if len(gotUids) != len(wantUids) {
		t.Fatalf("expected %d uids, got %d", len(wantUids), len(gotUids))
	}
	for i := range wantUids {
		if gotUids[i] != wantUids[i] {
			t.Errorf("uid[%d]: expected %d, got %d", i, wantUids[i], gotUids[i])
		}
		if gotWeights[i] != wantWeights[i] {
			t.Errorf("weight[%d]: expected %d, got %d", i, wantWeights[i], gotWeights[i])
		}
	}
}

func TestConvertWeightsAndUidsForEmitMaxIsU16Max(t *testing.T) {
	_, gotWeights, err := ConvertWeightsAndUidsForEmit([]int{5}, []float64{0.25})
	if err != nil {
		t.Fatalf("convert failed: %v", err)
	}
	if len(gotWeights) != 1 || gotWeights[0] != U16MAX {
		t.Errorf("expected single weight %d, got %v", U16MAX, gotWeights)
	}
}

func TestConvertWeightsAndUidsForEmitErrors(t *testing.T) {
	t.Run("length mismatch", func(t *testing.T) {
		_, _, err := ConvertWeightsAndUidsForEmit([]int{0, 1}, []float64{1})
		if err == nil {
			t.Error("expected error for mismatched lengths")
		}
	})

	t.Run("negative weight", func(t *testing.T) {
		_, _, err := ConvertWeightsAndUidsForEmit([]int{0}, []float64{-0.5})
		if err == nil {
			t.Error("expected error for negative weight")
		}
	})

	t.Run("negative uid", func(t *testing.T) {
		_, _, err := ConvertWeightsAndUidsForEmit([]int{-1}, []float64{0.5})
		if err == nil {
			t.Error("expected error for negative uid")
		}
	})
}

func TestConvertWeightsAndUidsForEmitDegenerate(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		gotUids, gotWeights, err := ConvertWeightsAndUidsForEmit([]int{}, []float64{})
		if err != nil {
			t.Fatalf("convert failed: %v", err)
		}
		if len(gotUids) != 0 || len(gotWeights) != 0 {
			t.Error("expected empty output for empty input")
		}
	})

	t.Run("all zero", func(t *testing.T) {
		gotUids, gotWeights, err := ConvertWeightsAndUidsForEmit([]int{0, 1}, []float64{0, 0})
		if err != nil {
			t.Fatalf("convert failed: %v", err)
		}
		if len(gotUids) != 0 || len(gotWeights) != 0 {
			t.Error("expected empty output for all-zero weights")
		}
	})
}

func TestClampNegativeWeights(t *testing.T) {
	scores := []float64{-1.5, 0, 0.5, 2}
	clamped := ClampNegativeWeights(scores)

	want := []float64{0, 0, 0.5, 2}
	for i := range want {
		if clamped[i] != want[i] {
			t.Errorf("clamped[%d]: expected %v, got %v", i, want[i], clamped[i])
		}
	}

	if scores[0] != -1.5 {
		t.Error("expected input slice to be left unmodified")
	}
}

func TestNormalizeWeights(t *testing.T) {
	normalized := NormalizeWeights([]float64{1, 3})
	if math.Abs(normalized[0]-0.25) > 1e-9 || math.Abs(normalized[1]-0.75) > 1e-9 {
		t.Errorf("expected [0.25 0.75], got %v", normalized)
	}

	zeros := NormalizeWeights([]float64{0, 0})
	if zeros[0] != 0 || zeros[1] != 0 {
		t.Errorf("expected all-zero slice unchanged, got %v", zeros)
	}
}
