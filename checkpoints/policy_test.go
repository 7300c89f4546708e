package checkpoints

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fileExists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	if err == nil {
		return true
	}
	require.True(t, os.IsNotExist(err), "unexpected stat error: %v", err)
	return false
}

func TestParseMode(t *testing.T) {
	mode, err := ParseMode("min")
	require.NoError(t, err)
	assert.Equal(t, ModeMin, mode)

	mode, err = ParseMode("max")
	require.NoError(t, err)
	assert.Equal(t, ModeMax, mode)

	_, err = ParseMode("best")
	assert.Error(t, err)
}

func TestNewPeriodicPolicyValidation(t *testing.T) {
	_, err := NewPeriodicPolicy("", 5)
	assert.Error(t, err)

	_, err = NewPeriodicPolicy(t.TempDir(), 0)
	assert.Error(t, err)
}

func TestPeriodicPolicySavesOnInterval(t *testing.T) {
	dir := t.TempDir()
	policy, err := NewPeriodicPolicy(dir, 3)
	require.NoError(t, err)

	for epoch := 0; epoch < 7; epoch++ {
		require.NoError(t, policy.OnEpochEnd(epoch, nil, sampleCheckpoint()))
	}

	// Interval saves land on epochs 2 and 5 (3rd and 6th completed epochs)
	assert.True(t, fileExists(t, filepath.Join(dir, "epoch_0002.json")))
	assert.True(t, fileExists(t, filepath.Join(dir, "epoch_0005.json")))
	assert.False(t, fileExists(t, filepath.Join(dir, "epoch_0000.json")))
	assert.False(t, fileExists(t, filepath.Join(dir, "epoch_0006.json")))
}

func TestPeriodicPolicyAlwaysRefreshesLast(t *testing.T) {
	dir := t.TempDir()
	policy, err := NewPeriodicPolicy(dir, 50)
	require.NoError(t, err)

	// A single epoch well short of the interval still leaves a resumable
	// snapshot behind
	ckpt := sampleCheckpoint()
	ckpt.TrainingState.Epoch = 0
	require.NoError(t, policy.OnEpochEnd(0, nil, ckpt))

	loaded, err := Load(policy.LastPath())
	require.NoError(t, err)
	assert.Equal(t, 0, loaded.TrainingState.Epoch)

	ckpt.TrainingState.Epoch = 1
	require.NoError(t, policy.OnEpochEnd(1, nil, ckpt))

	loaded, err = Load(policy.LastPath())
	require.NoError(t, err)
	assert.Equal(t, 1, loaded.TrainingState.Epoch, "last snapshot must track the newest epoch")
}

func TestNewTopKPolicyValidation(t *testing.T) {
	_, err := NewTopKPolicy(t.TempDir(), 0, "val_loss", ModeMin)
	assert.Error(t, err)

	_, err = NewTopKPolicy(t.TempDir(), 5, "", ModeMin)
	assert.Error(t, err)

	_, err = NewTopKPolicy("", 5, "val_loss", ModeMin)
	assert.Error(t, err)
}

func TestTopKPolicyKeepsBestByMinMode(t *testing.T) {
	dir := t.TempDir()
	policy, err := NewTopKPolicy(dir, 2, "val_loss", ModeMin)
	require.NoError(t, err)

	losses := []float64{0.9, 0.5, 0.7, 0.3, 0.8}
	for epoch, loss := range losses {
		metrics := map[string]float64{"val_loss": loss}
		require.NoError(t, policy.OnEpochEnd(epoch, metrics, sampleCheckpoint()))
	}

	kept := policy.Kept()
	require.Len(t, kept, 2)
	assert.Equal(t, filepath.Join(dir, "best_epoch_0003.json"), kept[0], "loss 0.3 ranks first")
	assert.Equal(t, filepath.Join(dir, "best_epoch_0001.json"), kept[1], "loss 0.5 ranks second")

	// Evicted and skipped snapshots are gone from disk
	for _, epoch := range []int{0, 2, 4} {
		path := filepath.Join(dir, fmt.Sprintf("best_epoch_%04d.json", epoch))
		assert.False(t, fileExists(t, path), "epoch %d should not be retained", epoch)
	}
}

func TestTopKPolicyMaxMode(t *testing.T) {
	dir := t.TempDir()
	policy, err := NewTopKPolicy(dir, 1, "val_miou", ModeMax)
	require.NoError(t, err)

	for epoch, miou := range []float64{0.4, 0.7, 0.6} {
		metrics := map[string]float64{"val_miou": miou}
		require.NoError(t, policy.OnEpochEnd(epoch, metrics, sampleCheckpoint()))
	}

	kept := policy.Kept()
	require.Len(t, kept, 1)
	assert.Equal(t, filepath.Join(dir, "best_epoch_0001.json"), kept[0])
}

func TestTopKPolicyNeverExceedsK(t *testing.T) {
	dir := t.TempDir()
	policy, err := NewTopKPolicy(dir, 5, "val_loss", ModeMin)
	require.NoError(t, err)

	// Strictly improving losses force a save every epoch
	for epoch := 0; epoch < 20; epoch++ {
		metrics := map[string]float64{"val_loss": 1.0 / float64(epoch+1)}
		require.NoError(t, policy.OnEpochEnd(epoch, metrics, sampleCheckpoint()))
	}

	assert.Len(t, policy.Kept(), 5)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 5, "evicted snapshots must be removed from disk")
}

func TestTopKPolicySkipsEpochsWithoutMonitor(t *testing.T) {
	dir := t.TempDir()
	policy, err := NewTopKPolicy(dir, 5, "val_loss", ModeMin)
	require.NoError(t, err)

	// No validation metric this epoch: nothing to rank, nothing saved
	require.NoError(t, policy.OnEpochEnd(0, map[string]float64{"train_loss": 0.5}, sampleCheckpoint()))
	assert.Empty(t, policy.Kept())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)

	// Ranking resumes once the metric reappears
	require.NoError(t, policy.OnEpochEnd(1, map[string]float64{"val_loss": 0.5}, sampleCheckpoint()))
	assert.Len(t, policy.Kept(), 1)
}

func TestPoliciesAreIndependent(t *testing.T) {
	dir := t.TempDir()
	periodic, err := NewPeriodicPolicy(dir, 1)
	require.NoError(t, err)
	topK, err := NewTopKPolicy(dir, 5, "val_loss", ModeMin)
	require.NoError(t, err)

	metrics := map[string]float64{"val_loss": 0.5}
	ckpt := sampleCheckpoint()
	require.NoError(t, periodic.OnEpochEnd(0, metrics, ckpt))
	require.NoError(t, topK.OnEpochEnd(0, metrics, ckpt))

	// Both policies may save the same epoch under their own names
	assert.True(t, fileExists(t, filepath.Join(dir, "epoch_0000.json")))
	assert.True(t, fileExists(t, filepath.Join(dir, "last.json")))
	assert.True(t, fileExists(t, filepath.Join(dir, "best_epoch_0000.json")))
}
