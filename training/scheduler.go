package training

import (
	"fmt"
	"math"
)

// LRScheduler defines the interface for learning rate scheduling strategies.
// Schedulers are pure functions of the epoch index and base rate; the
// trainer applies the returned rate to the optimizer at each epoch start.
type LRScheduler interface {
	// GetLR returns the learning rate for the current epoch/step
	GetLR(epoch int, step int, baseLR float64) float64

	// GetName returns the scheduler name for logging
	GetName() string
}

// CosineAnnealingLR anneals the learning rate along a half cosine from the
// base rate down to EtaMin over TMax epochs, then holds EtaMin
type CosineAnnealingLR struct {
	TMax   int     // Schedule length in epochs
	EtaMin float64 // Floor learning rate
}

// NewCosineAnnealingLR creates a cosine annealing scheduler. The schedule
// length must be positive and the floor non-negative; degenerate schedules
// are rejected rather than silently defaulted.
func NewCosineAnnealingLR(tMax int, etaMin float64) (*CosineAnnealingLR, error) {
	if tMax <= 0 {
		return nil, fmt.Errorf("schedule length must be positive, got %d", tMax)
	}
	if etaMin < 0 {
		return nil, fmt.Errorf("minimum learning rate must be non-negative, got %g", etaMin)
	}
	return &CosineAnnealingLR{TMax: tMax, EtaMin: etaMin}, nil
}

// GetLR returns baseLR at epoch 0 and exactly EtaMin at epoch TMax and beyond
func (s *CosineAnnealingLR) GetLR(epoch int, step int, baseLR float64) float64 {
	if epoch <= 0 {
		return baseLR
	}
	if epoch >= s.TMax {
		return s.EtaMin
	}

	return s.EtaMin + (baseLR-s.EtaMin)*(1+math.Cos(math.Pi*float64(epoch)/float64(s.TMax)))/2
}

func (s *CosineAnnealingLR) GetName() string {
	return "CosineAnnealingLR"
}

// StepLR reduces the learning rate by a factor every StepSize epochs
type StepLR struct {
	StepSize int     // Epochs between LR reductions
	Gamma    float64 // Multiplicative factor of LR decay
}

// NewStepLR creates a step learning rate scheduler
func NewStepLR(stepSize int, gamma float64) (*StepLR, error) {
	if stepSize <= 0 {
		return nil, fmt.Errorf("step size must be positive, got %d", stepSize)
	}
	if gamma <= 0 || gamma >= 1 {
		return nil, fmt.Errorf("gamma must be in (0, 1), got %g", gamma)
	}
	return &StepLR{StepSize: stepSize, Gamma: gamma}, nil
}

func (s *StepLR) GetLR(epoch int, step int, baseLR float64) float64 {
	times := epoch / s.StepSize
	return baseLR * math.Pow(s.Gamma, float64(times))
}

func (s *StepLR) GetName() string {
	return "StepLR"
}

// ExponentialLR decays the learning rate exponentially per epoch
type ExponentialLR struct {
	Gamma float64 // Multiplicative factor of LR decay per epoch
}

// NewExponentialLR creates an exponential learning rate scheduler
func NewExponentialLR(gamma float64) (*ExponentialLR, error) {
	if gamma <= 0 || gamma >= 1 {
		return nil, fmt.Errorf("gamma must be in (0, 1), got %g", gamma)
	}
	return &ExponentialLR{Gamma: gamma}, nil
}

func (s *ExponentialLR) GetLR(epoch int, step int, baseLR float64) float64 {
	return baseLR * math.Pow(s.Gamma, float64(epoch))
}

func (s *ExponentialLR) GetName() string {
	return "ExponentialLR"
}

// ConstantLR maintains a constant learning rate
type ConstantLR struct{}

func (s *ConstantLR) GetLR(epoch int, step int, baseLR float64) float64 {
	return baseLR
}

func (s *ConstantLR) GetName() string {
	return "ConstantLR"
}
