package training

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCrossEntropyUniformLogits(t *testing.T) {
	loss := &CrossEntropyLoss{}

	// Uniform logits: loss must equal ln(numClasses) for any labels
	numClasses := 6
	pixels := 4
	logits := make([]float32, numClasses*pixels)
	labels := []int32{0, 2, 5, 3}

	value, err := loss.Forward(logits, labels, 1, numClasses, pixels)
	require.NoError(t, err)
	assert.InDelta(t, math.Log(float64(numClasses)), value, 1e-9)
}

func TestCrossEntropyGradientSumsToZero(t *testing.T) {
	loss := &CrossEntropyLoss{}

	logits := []float32{2.0, -1.0, 0.5, 1.5, 0.0, -0.5, 1.0, 2.5}
	labels := []int32{1, 0}
	// batch=1, classes=4, pixels=2

	grad, err := loss.Gradient(logits, labels, 1, 4, 2)
	require.NoError(t, err)
	require.Len(t, grad, len(logits))

	// Softmax gradient sums to zero over the class axis at every pixel
	for p := 0; p < 2; p++ {
		sum := 0.0
		for k := 0; k < 4; k++ {
			sum += float64(grad[k*2+p])
		}
		assert.InDelta(t, 0.0, sum, 1e-7, "pixel %d", p)
	}
}

func TestCrossEntropyGradientMatchesFiniteDifference(t *testing.T) {
	loss := &CrossEntropyLoss{}

	logits := []float32{0.3, -0.7, 1.2, 0.1, -0.4, 0.9}
	labels := []int32{2, 0}
	// batch=1, classes=3, pixels=2

	grad, err := loss.Gradient(logits, labels, 1, 3, 2)
	require.NoError(t, err)

	eps := float32(1e-3)
	for i := range logits {
		bumped := make([]float32, len(logits))
		copy(bumped, logits)
		bumped[i] += eps
		plus, err := loss.Forward(bumped, labels, 1, 3, 2)
		require.NoError(t, err)

		bumped[i] -= 2 * eps
		minus, err := loss.Forward(bumped, labels, 1, 3, 2)
		require.NoError(t, err)

		numeric := (plus - minus) / float64(2*eps)
		assert.InDelta(t, numeric, float64(grad[i]), 1e-4, "logit %d", i)
	}
}

func TestFocalLossReducesToCrossEntropyAtGammaZero(t *testing.T) {
	ce := &CrossEntropyLoss{}
	focal := &FocalLoss{Gamma: 0}

	logits := []float32{1.0, -0.5, 0.2, 0.8, -1.2, 0.4, 2.0, 0.0}
	labels := []int32{3, 1}
	// batch=1, classes=4, pixels=2

	ceValue, err := ce.Forward(logits, labels, 1, 4, 2)
	require.NoError(t, err)
	focalValue, err := focal.Forward(logits, labels, 1, 4, 2)
	require.NoError(t, err)
	assert.InDelta(t, ceValue, focalValue, 1e-9)

	ceGrad, err := ce.Gradient(logits, labels, 1, 4, 2)
	require.NoError(t, err)
	focalGrad, err := focal.Gradient(logits, labels, 1, 4, 2)
	require.NoError(t, err)
	for i := range ceGrad {
		assert.InDelta(t, float64(ceGrad[i]), float64(focalGrad[i]), 1e-6, "logit %d", i)
	}
}

func TestFocalLossDownWeightsEasyPixels(t *testing.T) {
	ce := &CrossEntropyLoss{}
	focal := &FocalLoss{Gamma: 2.0}

	// Confidently correct prediction
	logits := []float32{5.0, -5.0}
	labels := []int32{0}
	// batch=1, classes=2, pixels=1

	ceValue, err := ce.Forward(logits, labels, 1, 2, 1)
	require.NoError(t, err)
	focalValue, err := focal.Forward(logits, labels, 1, 2, 1)
	require.NoError(t, err)

	assert.Less(t, focalValue, ceValue)
}

func TestFocalLossGradientMatchesFiniteDifference(t *testing.T) {
	focal := &FocalLoss{Gamma: 2.0}

	logits := []float32{0.6, -0.2, 0.1, -0.9, 1.1, 0.3}
	labels := []int32{1, 2}
	// batch=1, classes=3, pixels=2

	grad, err := focal.Gradient(logits, labels, 1, 3, 2)
	require.NoError(t, err)

	eps := float32(1e-3)
	for i := range logits {
		bumped := make([]float32, len(logits))
		copy(bumped, logits)
		bumped[i] += eps
		plus, err := focal.Forward(bumped, labels, 1, 3, 2)
		require.NoError(t, err)

		bumped[i] -= 2 * eps
		minus, err := focal.Forward(bumped, labels, 1, 3, 2)
		require.NoError(t, err)

		numeric := (plus - minus) / float64(2*eps)
		assert.InDelta(t, numeric, float64(grad[i]), 1e-4, "logit %d", i)
	}
}

func TestLossRejectsOutOfRangeLabels(t *testing.T) {
	loss := &CrossEntropyLoss{}
	logits := make([]float32, 4)

	_, err := loss.Forward(logits, []int32{2}, 1, 4, 1)
	assert.NoError(t, err)

	_, err = loss.Forward(logits, []int32{4}, 1, 4, 1)
	assert.Error(t, err)

	_, err = loss.Gradient(logits, []int32{-1}, 1, 4, 1)
	assert.Error(t, err)
}

func TestNewLoss(t *testing.T) {
	tests := []struct {
		kind    string
		wantErr bool
	}{
		{"ce", false},
		{"focal", false},
		{"jaccard", true},
		{"", true},
	}

	for _, tt := range tests {
		_, err := NewLoss(tt.kind)
		if tt.wantErr {
			assert.Error(t, err, "kind %q", tt.kind)
		} else {
			assert.NoError(t, err, "kind %q", tt.kind)
		}
	}
}
