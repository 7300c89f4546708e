package optimizer

import (
	"fmt"

	"github.com/LeWaldm/terraseg/checkpoints"
	"github.com/LeWaldm/terraseg/model"
)

// Optimizer defines the common interface for all optimizers.
// State save/restore enables checkpoint round-trips of optimizer moments.
type Optimizer interface {
	// Step performs a single optimization step using the gradients
	// accumulated on the parameter tensors
	Step() error

	// ZeroGrad resets gradients to zero for all parameters
	ZeroGrad()

	// GetLR returns the current learning rate
	GetLR() float64

	// SetLR updates the learning rate
	SetLR(lr float64)

	// GetStepCount returns the current optimization step number
	GetStepCount() uint64

	// GetState extracts optimizer state for checkpointing
	GetState() (*checkpoints.OptimizerState, error)

	// LoadState restores optimizer state from a checkpoint
	LoadState(state *checkpoints.OptimizerState) error
}

// validateStateType ensures the state type matches the optimizer
func validateStateType(optimizerType string, state *checkpoints.OptimizerState) error {
	if state.Type != optimizerType {
		return fmt.Errorf("state type mismatch: expected %s, got %s", optimizerType, state.Type)
	}
	return nil
}

// zeroGradAll resets gradients on every parameter tensor
func zeroGradAll(params []*model.Tensor) {
	for _, p := range params {
		p.ZeroGrad()
	}
}

// findStateTensor locates a state tensor by name and slot type
func findStateTensor(state *checkpoints.OptimizerState, name, stateType string) ([]float32, error) {
	for _, st := range state.StateData {
		if st.Name == name && st.StateType == stateType {
			return st.Data, nil
		}
	}
	return nil, fmt.Errorf("state tensor %s/%s not found in checkpoint", name, stateType)
}
