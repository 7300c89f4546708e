package datasets

import (
	"fmt"

	"github.com/LeWaldm/terraseg/training"
)

// DataModuleConfig configures a land-cover data module
type DataModuleConfig struct {
	Chips     int // Total chips across all splits
	Channels  int
	ChipSize  int
	BatchSize int
	Seed      int64

	// Split fractions; test receives the remainder
	TrainFraction float64
	ValFraction   float64
}

// DefaultDataModuleConfig returns a small demo-sized configuration
func DefaultDataModuleConfig() DataModuleConfig {
	return DataModuleConfig{
		Chips:         64,
		Channels:      4,
		ChipSize:      32,
		BatchSize:     8,
		Seed:          0,
		TrainFraction: 0.6,
		ValFraction:   0.2,
	}
}

// DataModule bundles the train/validation/test splits of a land-cover
// dataset and hands batched loaders to the trainer
type DataModule struct {
	Train training.Dataset
	Val   training.Dataset
	Test  training.Dataset

	batchSize int
	seed      int64
}

// NewDataModule wraps pre-split datasets
func NewDataModule(train, val, test training.Dataset, batchSize int, seed int64) (*DataModule, error) {
	if train == nil || val == nil || test == nil {
		return nil, fmt.Errorf("all three dataset splits must be provided")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	return &DataModule{Train: train, Val: val, Test: test, batchSize: batchSize, seed: seed}, nil
}

// NewSyntheticDataModule generates a deterministic synthetic land-cover
// dataset and splits it into train/validation/test
func NewSyntheticDataModule(config DataModuleConfig) (*DataModule, error) {
	if config.TrainFraction <= 0 || config.ValFraction <= 0 ||
		config.TrainFraction+config.ValFraction >= 1 {
		return nil, fmt.Errorf("split fractions must be positive and sum below 1, got train=%g val=%g",
			config.TrainFraction, config.ValFraction)
	}

	nTrain := int(float64(config.Chips) * config.TrainFraction)
	nVal := int(float64(config.Chips) * config.ValFraction)
	nTest := config.Chips - nTrain - nVal
	if nTrain == 0 || nVal == 0 || nTest == 0 {
		return nil, fmt.Errorf("chip count %d too small for the requested splits", config.Chips)
	}

	// Distinct seeds keep the splits disjoint in content while the whole
	// module stays reproducible from one seed
	train, err := SyntheticScenes(nTrain, config.Channels, config.ChipSize, config.Seed)
	if err != nil {
		return nil, fmt.Errorf("failed to generate training split: %v", err)
	}
	val, err := SyntheticScenes(nVal, config.Channels, config.ChipSize, config.Seed+1)
	if err != nil {
		return nil, fmt.Errorf("failed to generate validation split: %v", err)
	}
	test, err := SyntheticScenes(nTest, config.Channels, config.ChipSize, config.Seed+2)
	if err != nil {
		return nil, fmt.Errorf("failed to generate test split: %v", err)
	}

	return NewDataModule(train, val, test, config.BatchSize, config.Seed)
}

// Validate checks the module against the task's expected channel and class
// counts before training starts
func (dm *DataModule) Validate(inChannels, numClasses int) error {
	if dm.Train.Channels() != inChannels {
		return fmt.Errorf("dataset has %d channels but the task expects %d", dm.Train.Channels(), inChannels)
	}
	if numClasses < NumClasses {
		return fmt.Errorf("task configured for %d classes but the dataset carries %d", numClasses, NumClasses)
	}
	return nil
}

// TrainLoader returns a shuffling loader over the training split
func (dm *DataModule) TrainLoader() (*training.DataLoader, error) {
	return training.NewDataLoader(dm.Train, dm.batchSize, true, dm.seed)
}

// ValLoader returns a sequential loader over the validation split
func (dm *DataModule) ValLoader() (*training.DataLoader, error) {
	return training.NewDataLoader(dm.Val, dm.batchSize, false, dm.seed)
}

// TestLoader returns a sequential loader over the test split
func (dm *DataModule) TestLoader() (*training.DataLoader, error) {
	return training.NewDataLoader(dm.Test, dm.batchSize, false, dm.seed)
}
