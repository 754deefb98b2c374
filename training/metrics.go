package training

import (
	"fmt"
	"math"

	"github.com/tsawler/go-gstm/gstm"
)

// RegressionMetrics holds regression evaluation metrics
type RegressionMetrics struct {
	MAE  float64 // Mean Absolute Error
	MSE  float64 // Mean Squared Error
	RMSE float64 // Root Mean Squared Error
	R2   float64 // R-squared
	NMAE float64 // MAE normalized by the range of the true values
}

// CalculateRegressionMetrics compares predictions with true values
// element by element; the slices must have the same length
func CalculateRegressionMetrics(predictions, trueValues []float64) (*RegressionMetrics, error) {
	n := len(predictions)
	if n != len(trueValues) {
		return nil, fmt.Errorf("length mismatch: %d predictions, %d true values", n, len(trueValues))
	}
	if n == 0 {
		return &RegressionMetrics{}, nil
	}

	meanTrue := 0.0
	for _, v := range trueValues {
		meanTrue += v
	}
	meanTrue /= float64(n)

	sumAbsErr, sumSqErr, sumSqTotal := 0.0, 0.0, 0.0
	minTrue, maxTrue := math.Inf(1), math.Inf(-1)
	for i, pred := range predictions {
		actual := trueValues[i]
		diff := pred - actual

		sumAbsErr += math.Abs(diff)
		sumSqErr += diff * diff
		sumSqTotal += (actual - meanTrue) * (actual - meanTrue)

		minTrue = math.Min(minTrue, actual)
		maxTrue = math.Max(maxTrue, actual)
	}

	m := &RegressionMetrics{
		MAE: sumAbsErr / float64(n),
		MSE: sumSqErr / float64(n),
	}
	m.RMSE = math.Sqrt(m.MSE)
	if sumSqTotal > 0 {
		m.R2 = 1 - sumSqErr/sumSqTotal
	}
	if maxTrue > minTrue {
		m.NMAE = m.MAE / (maxTrue - minTrue)
	}
	return m, nil
}

// Evaluate runs the model over every sample of ds, generating as many steps
// as the target holds, and scores the outputs against the targets.
// Parameter gradients are left untouched.
func Evaluate(m *Model, ds *Dataset) (*RegressionMetrics, error) {
	var predictions, actual []float64
	for i := 0; i < ds.Len(); i++ {
		sample, err := ds.Get(i)
		if err != nil {
			return nil, err
		}
		out, err := m.Forward(sample.Input, len(sample.Target))
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		predictions, actual = appendOverlap(predictions, actual, out.Values(), sample.Target)
	}
	return CalculateRegressionMetrics(predictions, actual)
}

func appendOverlap(predictions, actual []float64, out, target gstm.Sequence) ([]float64, []float64) {
	steps := len(out)
	if len(target) < steps {
		steps = len(target)
	}
	for t := 0; t < steps; t++ {
		for c := range target[t] {
			predictions = append(predictions, out[t][c]...)
			actual = append(actual, target[t][c]...)
		}
	}
	return predictions, actual
}
