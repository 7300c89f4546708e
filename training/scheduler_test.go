package training

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCosineAnnealingLREndpoints(t *testing.T) {
	scheduler, err := NewCosineAnnealingLR(50, 1e-6)
	require.NoError(t, err)

	baseLR := 1e-3

	// Starts exactly at the base rate
	assert.InDelta(t, baseLR, scheduler.GetLR(0, 0, baseLR), 1e-12)

	// Reaches exactly the floor at TMax and stays there
	assert.InDelta(t, 1e-6, scheduler.GetLR(50, 0, baseLR), 1e-12)
	assert.InDelta(t, 1e-6, scheduler.GetLR(120, 0, baseLR), 1e-12)
}

func TestCosineAnnealingLRCurve(t *testing.T) {
	scheduler, err := NewCosineAnnealingLR(5, 0.0001)
	require.NoError(t, err)

	baseLR := 0.01

	tests := []struct {
		epoch      int
		expectedLR float64
	}{
		{0, 0.01},
		{5, 0.0001},
		{2, 0.0001 + (0.01-0.0001)*(1+math.Cos(math.Pi*2.0/5.0))/2},
	}

	for _, tt := range tests {
		lr := scheduler.GetLR(tt.epoch, 0, baseLR)
		assert.InDelta(t, tt.expectedLR, lr, 1e-9, "epoch %d", tt.epoch)
	}

	// Monotonically non-increasing across the schedule
	prev := scheduler.GetLR(0, 0, baseLR)
	for epoch := 1; epoch <= 5; epoch++ {
		lr := scheduler.GetLR(epoch, 0, baseLR)
		assert.LessOrEqual(t, lr, prev, "epoch %d", epoch)
		prev = lr
	}
}

func TestCosineAnnealingLRRejectsDegenerate(t *testing.T) {
	_, err := NewCosineAnnealingLR(0, 1e-6)
	assert.Error(t, err)

	_, err = NewCosineAnnealingLR(-3, 1e-6)
	assert.Error(t, err)

	_, err = NewCosineAnnealingLR(10, -1e-6)
	assert.Error(t, err)
}

func TestStepLR(t *testing.T) {
	scheduler, err := NewStepLR(2, 0.1)
	require.NoError(t, err)

	baseLR := 0.1

	tests := []struct {
		epoch      int
		expectedLR float64
	}{
		{0, 0.1},
		{1, 0.1},
		{2, 0.01},
		{3, 0.01},
		{4, 0.001},
		{6, 0.0001},
	}

	for _, tt := range tests {
		lr := scheduler.GetLR(tt.epoch, 0, baseLR)
		assert.InDelta(t, tt.expectedLR, lr, 1e-10, "epoch %d", tt.epoch)
	}
}

func TestExponentialLR(t *testing.T) {
	scheduler, err := NewExponentialLR(0.9)
	require.NoError(t, err)

	baseLR := 0.1

	for epoch := 0; epoch < 6; epoch++ {
		expected := baseLR * math.Pow(0.9, float64(epoch))
		assert.InDelta(t, expected, scheduler.GetLR(epoch, 0, baseLR), 1e-10, "epoch %d", epoch)
	}
}

func TestSchedulerConstructorValidation(t *testing.T) {
	_, err := NewStepLR(0, 0.5)
	assert.Error(t, err)

	_, err = NewStepLR(5, 1.5)
	assert.Error(t, err)

	_, err = NewExponentialLR(0)
	assert.Error(t, err)
}

func TestConstantLR(t *testing.T) {
	scheduler := &ConstantLR{}
	for epoch := 0; epoch < 100; epoch += 17 {
		assert.Equal(t, 0.25, scheduler.GetLR(epoch, 0, 0.25))
	}
}
