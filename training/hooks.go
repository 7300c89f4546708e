package training

import (
	"github.com/LeWaldm/terraseg/checkpoints"
	"github.com/LeWaldm/terraseg/model"
	"github.com/LeWaldm/terraseg/optimizer"
)

// OptimizerConfig is the structured result of the optimizer/scheduler
// factory: the optimizer, its schedule, and the metric the trainer should
// monitor for checkpoint ranking and schedule-adjacent decisions
type OptimizerConfig struct {
	Optimizer optimizer.Optimizer
	Scheduler LRScheduler
	Monitor   string
	Mode      checkpoints.Mode
}

// Task is the capability interface a trainable unit supplies to the
// Trainer. The trainer calls the three factories exactly once during setup
// and the epoch-start hook at the start of every training epoch; the core
// train/validate/test stepping stays in the trainer and is not overridable.
type Task interface {
	// Model returns the segmentation network being trained
	Model() model.Model

	// Criterion returns the loss function
	Criterion() Loss

	// Hyperparameters returns the task configuration persisted into
	// checkpoints so it survives save/restore
	Hyperparameters() TaskConfig

	// ConfigureOptimizers builds the optimizer and LR schedule.
	// Deterministic given identical hyperparameters and parameter
	// initialization.
	ConfigureOptimizers() (*OptimizerConfig, error)

	// ConfigureMetrics builds the three independent train/val/test metric
	// collections. Called exactly once during trainer setup, before any
	// metric update; calling it again mid-training would reset accumulated
	// state and is not supported.
	ConfigureMetrics() (*MetricSet, error)

	// ConfigureCheckpoints returns the ordered save policies consulted by
	// the trainer after each epoch
	ConfigureCheckpoints(dir string) ([]checkpoints.Policy, error)

	// OnTrainEpochStart runs at the start of every training epoch. Side
	// effects only; must not alter training state.
	OnTrainEpochStart(epoch int, optimizers []optimizer.Optimizer, logger *ExperimentLogger)
}
