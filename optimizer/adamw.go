package optimizer

import (
	"fmt"
	"math"

	"github.com/LeWaldm/terraseg/checkpoints"
	"github.com/LeWaldm/terraseg/model"
)

// AdamWConfig holds the AdamW hyperparameters
type AdamWConfig struct {
	LearningRate float64
	Beta1        float64
	Beta2        float64
	Epsilon      float64
	WeightDecay  float64
}

// DefaultAdamWConfig returns the conventional AdamW settings
func DefaultAdamWConfig() AdamWConfig {
	return AdamWConfig{
		LearningRate: 1e-3,
		Beta1:        0.9,
		Beta2:        0.999,
		Epsilon:      1e-8,
		WeightDecay:  0.01,
	}
}

// AdamW implements the Adam optimizer with decoupled weight decay.
// Weight decay is applied directly to the parameters rather than folded
// into the gradient, so the moment estimates stay decay-free.
type AdamW struct {
	params    []*model.Tensor
	config    AdamWConfig
	stepCount uint64

	m map[string][]float32 // First moment estimates, keyed by tensor name
	v map[string][]float32 // Second moment estimates, keyed by tensor name
}

// NewAdamW creates an AdamW optimizer over the given parameter tensors
func NewAdamW(params []*model.Tensor, config AdamWConfig) (*AdamW, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("optimizer requires at least one parameter tensor")
	}
	if config.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %g", config.LearningRate)
	}
	if config.Beta1 < 0 || config.Beta1 >= 1 {
		return nil, fmt.Errorf("beta1 must be in [0, 1), got %g", config.Beta1)
	}
	if config.Beta2 < 0 || config.Beta2 >= 1 {
		return nil, fmt.Errorf("beta2 must be in [0, 1), got %g", config.Beta2)
	}
	if config.Epsilon <= 0 {
		return nil, fmt.Errorf("epsilon must be positive, got %g", config.Epsilon)
	}
	if config.WeightDecay < 0 {
		return nil, fmt.Errorf("weight decay must be non-negative, got %g", config.WeightDecay)
	}

	opt := &AdamW{
		params: params,
		config: config,
		m:      make(map[string][]float32, len(params)),
		v:      make(map[string][]float32, len(params)),
	}
	for _, p := range params {
		if _, exists := opt.m[p.Name]; exists {
			return nil, fmt.Errorf("duplicate parameter tensor name %q", p.Name)
		}
		opt.m[p.Name] = make([]float32, len(p.Data))
		opt.v[p.Name] = make([]float32, len(p.Data))
	}
	return opt, nil
}

// Step performs a single AdamW update over all parameters
func (a *AdamW) Step() error {
	a.stepCount++
	t := float64(a.stepCount)

	// Bias correction factors for this step
	bc1 := 1.0 - math.Pow(a.config.Beta1, t)
	bc2 := 1.0 - math.Pow(a.config.Beta2, t)

	lr := a.config.LearningRate
	beta1 := float32(a.config.Beta1)
	beta2 := float32(a.config.Beta2)

	for _, p := range a.params {
		m := a.m[p.Name]
		v := a.v[p.Name]

		for i := range p.Data {
			g := p.Grad[i]

			m[i] = beta1*m[i] + (1-beta1)*g
			v[i] = beta2*v[i] + (1-beta2)*g*g

			mHat := float64(m[i]) / bc1
			vHat := float64(v[i]) / bc2

			// Decoupled weight decay, then the Adam update
			update := lr * (mHat/(math.Sqrt(vHat)+a.config.Epsilon) + a.config.WeightDecay*float64(p.Data[i]))
			p.Data[i] -= float32(update)
		}
	}
	return nil
}

// ZeroGrad resets gradients on all parameters
func (a *AdamW) ZeroGrad() {
	zeroGradAll(a.params)
}

// GetLR returns the current learning rate
func (a *AdamW) GetLR() float64 {
	return a.config.LearningRate
}

// SetLR updates the learning rate
func (a *AdamW) SetLR(lr float64) {
	a.config.LearningRate = lr
}

// GetStepCount returns the number of completed optimization steps
func (a *AdamW) GetStepCount() uint64 {
	return a.stepCount
}

// GetState extracts the moment estimates and hyperparameters for checkpointing
func (a *AdamW) GetState() (*checkpoints.OptimizerState, error) {
	state := &checkpoints.OptimizerState{
		Type: "AdamW",
		Parameters: map[string]float64{
			"learning_rate": a.config.LearningRate,
			"beta1":         a.config.Beta1,
			"beta2":         a.config.Beta2,
			"epsilon":       a.config.Epsilon,
			"weight_decay":  a.config.WeightDecay,
			"step_count":    float64(a.stepCount),
		},
	}
	for _, p := range a.params {
		mCopy := make([]float32, len(a.m[p.Name]))
		copy(mCopy, a.m[p.Name])
		vCopy := make([]float32, len(a.v[p.Name]))
		copy(vCopy, a.v[p.Name])

		state.StateData = append(state.StateData,
			checkpoints.OptimizerTensor{Name: p.Name, Data: mCopy, StateType: "m"},
			checkpoints.OptimizerTensor{Name: p.Name, Data: vCopy, StateType: "v"},
		)
	}
	return state, nil
}

// LoadState restores moment estimates and hyperparameters from a checkpoint
func (a *AdamW) LoadState(state *checkpoints.OptimizerState) error {
	if err := validateStateType("AdamW", state); err != nil {
		return err
	}

	for _, p := range a.params {
		m, err := findStateTensor(state, p.Name, "m")
		if err != nil {
			return err
		}
		v, err := findStateTensor(state, p.Name, "v")
		if err != nil {
			return err
		}
		if len(m) != len(p.Data) || len(v) != len(p.Data) {
			return fmt.Errorf("state tensor %q size mismatch: expected %d, got m=%d v=%d",
				p.Name, len(p.Data), len(m), len(v))
		}
		copy(a.m[p.Name], m)
		copy(a.v[p.Name], v)
	}

	if lr, ok := state.Parameters["learning_rate"]; ok {
		a.config.LearningRate = lr
	}
	if steps, ok := state.Parameters["step_count"]; ok {
		a.stepCount = uint64(steps)
	}
	return nil
}
