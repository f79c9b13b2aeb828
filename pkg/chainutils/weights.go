package chainutils

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
)

const (
	U16MAX = 65535
)

// ConvertWeightsAndUidsForEmit scales float weights to the u16 range
// the chain accepts, normalizing against the largest weight. Entries
// that round to zero are dropped along with their uid.
func ConvertWeightsAndUidsForEmit(uids []int, weights []float64) ([]int, []int, error) {
	if len(uids) != len(weights) {
		return nil, nil, fmt.Errorf("uids and weights must have the same length, got %d and %d", len(uids), len(weights))
	}
	if len(uids) == 0 {
		return []int{}, []int{}, nil
	}

	for i, w := range weights {
		if w < 0 {
			return nil, nil, fmt.Errorf("weights cannot be negative: %v", weights)
		}
		if uids[i] < 0 {
			return nil, nil, fmt.Errorf("uids cannot be negative: %v", uids)
		}
	}

	maxWeight := floats.Max(weights)
	if maxWeight == 0 {
		return []int{}, []int{}, nil
	}

	weightUids := make([]int, 0, len(uids))
	weightVals := make([]int, 0, len(weights))

	for i, w := range weights {
		uint16Val := int(math.Round((w / maxWeight) * float64(U16MAX)))

		if uint16Val > 0 {
			weightUids = append(weightUids, uids[i])
			weightVals = append(weightVals, uint16Val)
		}
	}

	return weightUids, weightVals, nil
}

// ClampNegativeWeights returns a copy of scores with negative entries
// zeroed. Scores can go negative during scoring but the chain only
// accepts non-negative weights.
func ClampNegativeWeights(scores []float64) []float64 {
	result := make([]float64, len(scores))
	copy(result, scores)

	for i, v := range result {
		if v < 0 {
			result[i] = 0
		}
	}

	return result
}

// NormalizeWeights L1-normalizes the slice so entries sum to 1. An
// all-zero slice is returned unchanged.
func NormalizeWeights(weights []float64) []float64 {
	result := make([]float64, len(weights))
	copy(result, weights)

	sum := floats.Sum(result)
	if sum > 0 {
		floats.Scale(1.0/sum, result)
	}

	return result
}
