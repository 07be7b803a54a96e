// Package metrics provides regression quality scores.
package metrics

import (
	"errors"
	"fmt"
	"math"
)

// ErrLengthMismatch is returned when actual and predicted values differ in length or are empty.
var ErrLengthMismatch = errors.New("metrics: length mismatch")

func check(actual, predicted []float64) error {
	if len(actual) != len(predicted) {
		return fmt.Errorf("%w: %d actual vs %d predicted", ErrLengthMismatch, len(actual), len(predicted))
	}
	if len(actual) == 0 {
		return fmt.Errorf("%w: no values", ErrLengthMismatch)
	}
	return nil
}

// R2Score returns the coefficient of determination 1 - SSres/SStot.
//
// When the actual values are constant, SStot is zero and the score is 1
// for a perfect prediction and 0 otherwise.
func R2Score(actual, predicted []float64) (float64, error) {
	if err := check(actual, predicted); err != nil {
		return 0, err
	}

	var mean float64
	for _, v := range actual {
		mean += v
	}
	mean /= float64(len(actual))

	var ssTot, ssRes float64
	for i, v := range actual {
		d := v - mean
		ssTot += d * d
		r := v - predicted[i]
		ssRes += r * r
	}
	if ssTot == 0 {
		if ssRes == 0 {
			return 1, nil
		}
		return 0, nil
	}
	return 1 - ssRes/ssTot, nil
}

// MSE returns the mean squared error.
func MSE(actual, predicted []float64) (float64, error) {
	if err := check(actual, predicted); err != nil {
		return 0, err
	}
	var s float64
	for i, v := range actual {
		d := predicted[i] - v
		s += d * d
	}
	return s / float64(len(actual)), nil
}

// MAE returns the mean absolute error.
func MAE(actual, predicted []float64) (float64, error) {
	if err := check(actual, predicted); err != nil {
		return 0, err
	}
	var s float64
	for i, v := range actual {
		s += math.Abs(predicted[i] - v)
	}
	return s / float64(len(actual)), nil
}

// RMSE returns the root mean squared error.
func RMSE(actual, predicted []float64) (float64, error) {
	mse, err := MSE(actual, predicted)
	if err != nil {
		return 0, err
	}
	return math.Sqrt(mse), nil
}
