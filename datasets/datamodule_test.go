package datasets

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSyntheticDataModuleSplits(t *testing.T) {
	config := DefaultDataModuleConfig()
	config.Chips = 20

	dm, err := NewSyntheticDataModule(config)
	require.NoError(t, err)

	// 60/20/remainder split
	assert.Equal(t, 12, dm.Train.Len())
	assert.Equal(t, 4, dm.Val.Len())
	assert.Equal(t, 4, dm.Test.Len())
}

func TestNewSyntheticDataModuleValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DataModuleConfig)
	}{
		{"zero train fraction", func(c *DataModuleConfig) { c.TrainFraction = 0 }},
		{"zero val fraction", func(c *DataModuleConfig) { c.ValFraction = 0 }},
		{"fractions exhaust the data", func(c *DataModuleConfig) { c.TrainFraction = 0.8; c.ValFraction = 0.2 }},
		{"too few chips", func(c *DataModuleConfig) { c.Chips = 2 }},
		{"zero batch size", func(c *DataModuleConfig) { c.BatchSize = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultDataModuleConfig()
			tt.mutate(&config)
			_, err := NewSyntheticDataModule(config)
			assert.Error(t, err)
		})
	}
}

func TestDataModuleValidate(t *testing.T) {
	config := DefaultDataModuleConfig()
	config.Chips = 10
	dm, err := NewSyntheticDataModule(config)
	require.NoError(t, err)

	assert.NoError(t, dm.Validate(4, 6))
	assert.NoError(t, dm.Validate(4, 8), "extra model classes are allowed")
	assert.Error(t, dm.Validate(3, 6), "channel mismatch")
	assert.Error(t, dm.Validate(4, 5), "too few model classes")
}

func TestDataModuleLoaders(t *testing.T) {
	config := DefaultDataModuleConfig()
	config.Chips = 10
	config.BatchSize = 3
	dm, err := NewSyntheticDataModule(config)
	require.NoError(t, err)

	trainLoader, err := dm.TrainLoader()
	require.NoError(t, err)
	valLoader, err := dm.ValLoader()
	require.NoError(t, err)
	testLoader, err := dm.TestLoader()
	require.NoError(t, err)

	// Train split has 6 chips at batch size 3
	assert.Equal(t, 2, trainLoader.Len())
	assert.Equal(t, 1, valLoader.Len())
	assert.Equal(t, 1, testLoader.Len())

	trainLoader.Reset()
	batch, err := trainLoader.Next()
	require.NoError(t, err)
	require.NotNil(t, batch)
	assert.Equal(t, 3, batch.Size)
	assert.Equal(t, 4, batch.Channels)
	assert.Equal(t, 32, batch.Height)
	assert.Equal(t, 32, batch.Width)
}
