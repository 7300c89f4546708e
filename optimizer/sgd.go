package optimizer

import (
	"fmt"

	"github.com/LeWaldm/terraseg/checkpoints"
	"github.com/LeWaldm/terraseg/model"
)

// SGDConfig holds the SGD hyperparameters
type SGDConfig struct {
	LearningRate float64
	Momentum     float64
	WeightDecay  float64
}

// DefaultSGDConfig returns conventional SGD-with-momentum settings
func DefaultSGDConfig() SGDConfig {
	return SGDConfig{
		LearningRate: 1e-2,
		Momentum:     0.9,
		WeightDecay:  0,
	}
}

// SGD implements stochastic gradient descent with optional momentum and
// coupled L2 weight decay
type SGD struct {
	params    []*model.Tensor
	config    SGDConfig
	stepCount uint64

	velocity map[string][]float32 // Momentum buffers, keyed by tensor name
}

// NewSGD creates an SGD optimizer over the given parameter tensors
func NewSGD(params []*model.Tensor, config SGDConfig) (*SGD, error) {
	if len(params) == 0 {
		return nil, fmt.Errorf("optimizer requires at least one parameter tensor")
	}
	if config.LearningRate <= 0 {
		return nil, fmt.Errorf("learning rate must be positive, got %g", config.LearningRate)
	}
	if config.Momentum < 0 || config.Momentum >= 1 {
		return nil, fmt.Errorf("momentum must be in [0, 1), got %g", config.Momentum)
	}
	if config.WeightDecay < 0 {
		return nil, fmt.Errorf("weight decay must be non-negative, got %g", config.WeightDecay)
	}

	opt := &SGD{
		params:   params,
		config:   config,
		velocity: make(map[string][]float32, len(params)),
	}
	for _, p := range params {
		if _, exists := opt.velocity[p.Name]; exists {
			return nil, fmt.Errorf("duplicate parameter tensor name %q", p.Name)
		}
		opt.velocity[p.Name] = make([]float32, len(p.Data))
	}
	return opt, nil
}

// Step performs a single SGD update over all parameters
func (s *SGD) Step() error {
	s.stepCount++

	lr := float32(s.config.LearningRate)
	momentum := float32(s.config.Momentum)
	weightDecay := float32(s.config.WeightDecay)

	for _, p := range s.params {
		vel := s.velocity[p.Name]
		for i := range p.Data {
			g := p.Grad[i]
			if weightDecay > 0 {
				g += weightDecay * p.Data[i]
			}
			if momentum > 0 {
				vel[i] = momentum*vel[i] + g
				g = vel[i]
			}
			p.Data[i] -= lr * g
		}
	}
	return nil
}

// ZeroGrad resets gradients on all parameters
func (s *SGD) ZeroGrad() {
	zeroGradAll(s.params)
}

// GetLR returns the current learning rate
func (s *SGD) GetLR() float64 {
	return s.config.LearningRate
}

// SetLR updates the learning rate
func (s *SGD) SetLR(lr float64) {
	s.config.LearningRate = lr
}

// GetStepCount returns the number of completed optimization steps
func (s *SGD) GetStepCount() uint64 {
	return s.stepCount
}

// GetState extracts the momentum buffers and hyperparameters for checkpointing
func (s *SGD) GetState() (*checkpoints.OptimizerState, error) {
	state := &checkpoints.OptimizerState{
		Type: "SGD",
		Parameters: map[string]float64{
			"learning_rate": s.config.LearningRate,
			"momentum":      s.config.Momentum,
			"weight_decay":  s.config.WeightDecay,
			"step_count":    float64(s.stepCount),
		},
	}
	for _, p := range s.params {
		velCopy := make([]float32, len(s.velocity[p.Name]))
		copy(velCopy, s.velocity[p.Name])
		state.StateData = append(state.StateData,
			checkpoints.OptimizerTensor{Name: p.Name, Data: velCopy, StateType: "velocity"})
	}
	return state, nil
}

// LoadState restores momentum buffers and hyperparameters from a checkpoint
func (s *SGD) LoadState(state *checkpoints.OptimizerState) error {
	if err := validateStateType("SGD", state); err != nil {
		return err
	}

	for _, p := range s.params {
		vel, err := findStateTensor(state, p.Name, "velocity")
		if err != nil {
			return err
		}
		if len(vel) != len(p.Data) {
			return fmt.Errorf("state tensor %q size mismatch: expected %d, got %d",
				p.Name, len(p.Data), len(vel))
		}
		copy(s.velocity[p.Name], vel)
	}

	if lr, ok := state.Parameters["learning_rate"]; ok {
		s.config.LearningRate = lr
	}
	if steps, ok := state.Parameters["step_count"]; ok {
		s.stepCount = uint64(steps)
	}
	return nil
}
