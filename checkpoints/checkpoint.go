package checkpoints

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Checkpoint represents a complete task state: typed hyperparameters, model
// weights, optimizer state, and training progress metadata
type Checkpoint struct {
	// Hyperparameters is the task configuration, stored verbatim so that a
	// restored task sees bit-identical settings. The training package owns
	// the concrete type; checkpoints only round-trips the raw encoding.
	Hyperparameters json.RawMessage `json:"hyperparameters,omitempty"`

	// Model weights
	Weights []WeightTensor `json:"weights"`

	// Optimizer state (if available)
	OptimizerState *OptimizerState `json:"optimizer_state,omitempty"`

	// Training state
	TrainingState TrainingState `json:"training_state"`

	// Metadata
	Metadata Metadata `json:"metadata"`
}

// WeightTensor represents a model parameter tensor with its data
type WeightTensor struct {
	Name  string    `json:"name"`
	Shape []int     `json:"shape"`
	Data  []float32 `json:"data"`
}

// TrainingState captures the current training progress
type TrainingState struct {
	Epoch        int     `json:"epoch"`
	Step         uint64  `json:"step"`
	LearningRate float64 `json:"learning_rate"`
	MonitorName  string  `json:"monitor_name,omitempty"`
	MonitorValue float64 `json:"monitor_value,omitempty"`
}

// OptimizerState captures optimizer-specific state (moments, velocities, etc.)
type OptimizerState struct {
	Type       string             `json:"type"` // "AdamW", "SGD", etc.
	Parameters map[string]float64 `json:"parameters"`
	StateData  []OptimizerTensor  `json:"state_data"`
}

// OptimizerTensor represents optimizer state tensors (first/second moments, velocities)
type OptimizerTensor struct {
	Name      string    `json:"name"`
	Data      []float32 `json:"data"`
	StateType string    `json:"state_type"` // "m", "v", "velocity", etc.
}

// Metadata contains checkpoint metadata
type Metadata struct {
	Version     string    `json:"version"`
	Framework   string    `json:"framework"`
	CreatedAt   time.Time `json:"created_at"`
	Description string    `json:"description,omitempty"`
}

// Save writes a checkpoint to path as JSON, creating the parent directory if
// needed. The encoding stays compact so the raw hyperparameter bytes are
// written through untouched.
func Save(checkpoint *Checkpoint, path string) error {
	if checkpoint.Metadata.Framework == "" {
		checkpoint.Metadata.Framework = "terraseg"
		checkpoint.Metadata.Version = "1.0.0"
	}
	if checkpoint.Metadata.CreatedAt.IsZero() {
		checkpoint.Metadata.CreatedAt = time.Now()
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create checkpoint directory: %v", err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create checkpoint file: %v", err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	if err := encoder.Encode(checkpoint); err != nil {
		return fmt.Errorf("failed to encode checkpoint: %v", err)
	}

	return nil
}

// Load reads a checkpoint from path. Malformed or missing files surface as
// errors to the caller; no recovery is attempted.
func Load(path string) (*Checkpoint, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open checkpoint file: %v", err)
	}
	defer file.Close()

	var checkpoint Checkpoint
	decoder := json.NewDecoder(file)

	if err := decoder.Decode(&checkpoint); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint: %v", err)
	}

	return &checkpoint, nil
}

// WeightMap converts checkpoint weights into name-indexed data and shape maps
func (c *Checkpoint) WeightMap() (map[string][]float32, map[string][]int) {
	data := make(map[string][]float32, len(c.Weights))
	shapes := make(map[string][]int, len(c.Weights))
	for _, w := range c.Weights {
		data[w.Name] = w.Data
		shapes[w.Name] = w.Shape
	}
	return data, shapes
}
