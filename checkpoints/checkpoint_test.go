package checkpoints

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCheckpoint() *Checkpoint {
	return &Checkpoint{
		Hyperparameters: json.RawMessage(`{"architecture":"fcn","learning_rate":0.001}`),
		Weights: []WeightTensor{
			{Name: "head.weight", Shape: []int{2, 3}, Data: []float32{0.1, -0.2, 0.3, 0.4, -0.5, 0.6}},
			{Name: "head.bias", Shape: []int{2}, Data: []float32{0.01, -0.01}},
		},
		OptimizerState: &OptimizerState{
			Type:       "AdamW",
			Parameters: map[string]float64{"learning_rate": 0.001, "step_count": 7},
			StateData: []OptimizerTensor{
				{Name: "head.bias", Data: []float32{0.5, 0.5}, StateType: "m"},
			},
		},
		TrainingState: TrainingState{
			Epoch:        3,
			Step:         7,
			LearningRate: 0.001,
			MonitorName:  "val_loss",
			MonitorValue: 0.42,
		},
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.json")
	require.NoError(t, Save(sampleCheckpoint(), path))

	loaded, err := Load(path)
	require.NoError(t, err)

	original := sampleCheckpoint()
	assert.Equal(t, original.Weights, loaded.Weights)
	assert.Equal(t, original.OptimizerState, loaded.OptimizerState)
	assert.Equal(t, original.TrainingState, loaded.TrainingState)
}

func TestHyperparametersAreBitIdentical(t *testing.T) {
	// Stored settings must survive verbatim, including key order and float
	// formatting
	raw := `{"architecture":"fcn","in_channels":4,"learning_rate":0.00125,"min_learning_rate":3e-7}`

	ckpt := sampleCheckpoint()
	ckpt.Hyperparameters = json.RawMessage(raw)

	path := filepath.Join(t.TempDir(), "ckpt.json")
	require.NoError(t, Save(ckpt, path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, raw, string(loaded.Hyperparameters))
}

func TestSaveFillsMetadataDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ckpt.json")
	require.NoError(t, Save(sampleCheckpoint(), path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "terraseg", loaded.Metadata.Framework)
	assert.Equal(t, "1.0.0", loaded.Metadata.Version)
	assert.False(t, loaded.Metadata.CreatedAt.IsZero())
}

func TestSaveCreatesParentDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "run", "ckpt.json")
	require.NoError(t, Save(sampleCheckpoint(), path))

	_, err := Load(path)
	assert.NoError(t, err)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte("{not json"), 0644))
	_, err = Load(bad)
	assert.Error(t, err)
}

func TestWeightMap(t *testing.T) {
	ckpt := sampleCheckpoint()
	data, shapes := ckpt.WeightMap()

	require.Len(t, data, 2)
	assert.Equal(t, []float32{0.01, -0.01}, data["head.bias"])
	assert.Equal(t, []int{2, 3}, shapes["head.weight"])
}
