package training

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/LeWaldm/terraseg/checkpoints"
	"github.com/LeWaldm/terraseg/optimizer"
)

// TrainerConfig holds configuration for the training driver
type TrainerConfig struct {
	MaxEpochs     int
	CheckpointDir string
	Verbose       bool // Print epoch summaries to stdout
}

// DefaultTrainerConfig returns a sensible default configuration
func DefaultTrainerConfig() TrainerConfig {
	return TrainerConfig{
		MaxEpochs:     50,
		CheckpointDir: "./checkpoints",
		Verbose:       true,
	}
}

// Trainer is the training driver. It owns the fixed lifecycle a Task plugs
// into: setup calls the task's three factories exactly once, Fit runs the
// epoch loop with the epoch-start hook and checkpoint policies, and Test
// runs a single evaluation pass.
type Trainer struct {
	task   Task
	config TrainerConfig
	logger *ExperimentLogger

	optConfig *OptimizerConfig
	metrics   *MetricSet
	policies  []checkpoints.Policy

	baseLR float64
}

// NewTrainer creates a trainer and runs task setup: the optimizer, metric,
// and checkpoint factories are each invoked exactly once
func NewTrainer(task Task, config TrainerConfig) (*Trainer, error) {
	if task == nil {
		return nil, fmt.Errorf("task must not be nil")
	}
	if config.MaxEpochs <= 0 {
		return nil, fmt.Errorf("max epochs must be positive, got %d", config.MaxEpochs)
	}
	if config.CheckpointDir == "" {
		return nil, fmt.Errorf("checkpoint directory must not be empty")
	}

	optConfig, err := task.ConfigureOptimizers()
	if err != nil {
		return nil, fmt.Errorf("optimizer setup failed: %v", err)
	}
	if optConfig.Optimizer == nil {
		return nil, fmt.Errorf("optimizer setup returned no optimizer")
	}

	metrics, err := task.ConfigureMetrics()
	if err != nil {
		return nil, fmt.Errorf("metric setup failed: %v", err)
	}

	policies, err := task.ConfigureCheckpoints(config.CheckpointDir)
	if err != nil {
		return nil, fmt.Errorf("checkpoint setup failed: %v", err)
	}

	return &Trainer{
		task:      task,
		config:    config,
		logger:    NewExperimentLogger(),
		optConfig: optConfig,
		metrics:   metrics,
		policies:  policies,
		baseLR:    optConfig.Optimizer.GetLR(),
	}, nil
}

// Logger returns the experiment scalar logger
func (t *Trainer) Logger() *ExperimentLogger {
	return t.logger
}

// Metrics returns the task's metric collections
func (t *Trainer) Metrics() *MetricSet {
	return t.metrics
}

// Fit runs the training loop: for each epoch, apply the LR schedule, fire
// the epoch-start hook, train over all batches, validate, log scalars, and
// consult the checkpoint policies
func (t *Trainer) Fit(trainLoader, valLoader *DataLoader) error {
	if trainLoader == nil {
		return fmt.Errorf("training data loader must not be nil")
	}

	opt := t.optConfig.Optimizer

	for epoch := 0; epoch < t.config.MaxEpochs; epoch++ {
		epochStart := time.Now()

		// Schedule the learning rate for this epoch, then let the task
		// observe it
		if t.optConfig.Scheduler != nil {
			opt.SetLR(t.optConfig.Scheduler.GetLR(epoch, 0, t.baseLR))
		}
		t.task.OnTrainEpochStart(epoch, []optimizer.Optimizer{opt}, t.logger)

		trainLoss, err := t.trainEpoch(trainLoader)
		if err != nil {
			return fmt.Errorf("training epoch %d failed: %v", epoch, err)
		}

		epochMetrics := map[string]float64{"train_loss": trainLoss}
		for name, value := range t.metrics.Train.Compute() {
			epochMetrics[name] = value
		}

		if valLoader != nil {
			valLoss, err := t.evalEpoch(valLoader, t.metrics.Val)
			if err != nil {
				return fmt.Errorf("validation epoch %d failed: %v", epoch, err)
			}
			epochMetrics["val_loss"] = valLoss
			for name, value := range t.metrics.Val.Compute() {
				epochMetrics[name] = value
			}
		}

		for name, value := range epochMetrics {
			t.logger.LogScalar(name, epoch, value)
		}

		if t.config.Verbose {
			t.printEpochSummary(epoch, epochMetrics, time.Since(epochStart))
		}

		ckpt, err := t.snapshot(epoch, epochMetrics)
		if err != nil {
			return fmt.Errorf("failed to build checkpoint for epoch %d: %v", epoch, err)
		}
		for _, policy := range t.policies {
			if err := policy.OnEpochEnd(epoch, epochMetrics, ckpt); err != nil {
				return fmt.Errorf("checkpoint policy %s failed at epoch %d: %v", policy.Name(), epoch, err)
			}
		}
	}

	return nil
}

// Test runs a single evaluation pass over the test split and returns the
// test metrics including "test_loss"
func (t *Trainer) Test(testLoader *DataLoader) (map[string]float64, error) {
	if testLoader == nil {
		return nil, fmt.Errorf("test data loader must not be nil")
	}

	testLoss, err := t.evalEpoch(testLoader, t.metrics.Test)
	if err != nil {
		return nil, fmt.Errorf("test pass failed: %v", err)
	}

	results := map[string]float64{"test_loss": testLoss}
	for name, value := range t.metrics.Test.Compute() {
		results[name] = value
	}
	return results, nil
}

// trainEpoch runs one pass over the training loader with gradient updates
func (t *Trainer) trainEpoch(loader *DataLoader) (float64, error) {
	network := t.task.Model()
	criterion := t.task.Criterion()
	opt := t.optConfig.Optimizer
	numClasses := network.NumClasses()

	t.metrics.Train.Reset()
	loader.Reset()

	var totalLoss float64
	var totalPixels int

	for {
		batch, err := loader.Next()
		if err != nil {
			return 0, err
		}
		if batch == nil {
			break // End of epoch
		}

		pixels := batch.Pixels()

		logits, err := network.Forward(batch.Images, batch.Size, batch.Height, batch.Width)
		if err != nil {
			return 0, fmt.Errorf("forward pass failed: %v", err)
		}

		loss, err := criterion.Forward(logits, batch.Masks, batch.Size, numClasses, pixels)
		if err != nil {
			return 0, fmt.Errorf("loss computation failed: %v", err)
		}

		if err := t.metrics.Train.Update(logits, batch.Masks, batch.Size, pixels); err != nil {
			return 0, fmt.Errorf("metric update failed: %v", err)
		}

		gradLogits, err := criterion.Gradient(logits, batch.Masks, batch.Size, numClasses, pixels)
		if err != nil {
			return 0, fmt.Errorf("loss gradient failed: %v", err)
		}

		opt.ZeroGrad()
		if err := network.Backward(batch.Images, gradLogits, batch.Size, batch.Height, batch.Width); err != nil {
			return 0, fmt.Errorf("backward pass failed: %v", err)
		}
		if err := opt.Step(); err != nil {
			return 0, fmt.Errorf("optimizer step failed: %v", err)
		}

		totalLoss += loss * float64(batch.Size*pixels)
		totalPixels += batch.Size * pixels
	}

	if totalPixels == 0 {
		return 0, fmt.Errorf("training loader produced no batches")
	}
	return totalLoss / float64(totalPixels), nil
}

// evalEpoch runs one gradient-free pass, accumulating into the given
// metric collection
func (t *Trainer) evalEpoch(loader *DataLoader, collection *MetricCollection) (float64, error) {
	network := t.task.Model()
	criterion := t.task.Criterion()
	numClasses := network.NumClasses()

	collection.Reset()
	loader.Reset()

	var totalLoss float64
	var totalPixels int

	for {
		batch, err := loader.Next()
		if err != nil {
			return 0, err
		}
		if batch == nil {
			break
		}

		pixels := batch.Pixels()

		logits, err := network.Forward(batch.Images, batch.Size, batch.Height, batch.Width)
		if err != nil {
			return 0, fmt.Errorf("forward pass failed: %v", err)
		}

		loss, err := criterion.Forward(logits, batch.Masks, batch.Size, numClasses, pixels)
		if err != nil {
			return 0, fmt.Errorf("loss computation failed: %v", err)
		}

		if err := collection.Update(logits, batch.Masks, batch.Size, pixels); err != nil {
			return 0, fmt.Errorf("metric update failed: %v", err)
		}

		totalLoss += loss * float64(batch.Size*pixels)
		totalPixels += batch.Size * pixels
	}

	if totalPixels == 0 {
		return 0, fmt.Errorf("evaluation loader produced no batches")
	}
	return totalLoss / float64(totalPixels), nil
}

// snapshot builds a checkpoint of the current task and optimizer state
func (t *Trainer) snapshot(epoch int, epochMetrics map[string]float64) (*checkpoints.Checkpoint, error) {
	hparams, err := json.Marshal(t.task.Hyperparameters())
	if err != nil {
		return nil, fmt.Errorf("failed to encode hyperparameters: %v", err)
	}

	var weights []checkpoints.WeightTensor
	for _, param := range t.task.Model().Parameters() {
		data := make([]float32, len(param.Data))
		copy(data, param.Data)
		shape := make([]int, len(param.Shape))
		copy(shape, param.Shape)
		weights = append(weights, checkpoints.WeightTensor{
			Name:  param.Name,
			Shape: shape,
			Data:  data,
		})
	}

	opt := t.optConfig.Optimizer
	optState, err := opt.GetState()
	if err != nil {
		return nil, fmt.Errorf("failed to extract optimizer state: %v", err)
	}

	return &checkpoints.Checkpoint{
		Hyperparameters: hparams,
		Weights:         weights,
		OptimizerState:  optState,
		TrainingState: checkpoints.TrainingState{
			Epoch:        epoch,
			Step:         opt.GetStepCount(),
			LearningRate: opt.GetLR(),
			MonitorName:  t.optConfig.Monitor,
			MonitorValue: epochMetrics[t.optConfig.Monitor],
		},
		Metadata: checkpoints.Metadata{
			Description: fmt.Sprintf("epoch %d", epoch),
		},
	}, nil
}

// printEpochSummary prints a one-line summary of the epoch results
func (t *Trainer) printEpochSummary(epoch int, epochMetrics map[string]float64, duration time.Duration) {
	fmt.Printf("Epoch %d/%d: Train Loss=%.4f", epoch+1, t.config.MaxEpochs, epochMetrics["train_loss"])
	if valLoss, ok := epochMetrics["val_loss"]; ok {
		fmt.Printf(", Valid Loss=%.4f, Valid mIoU=%.4f", valLoss, epochMetrics["val_miou"])
	}
	fmt.Printf(", Time=%v\n", duration.Round(time.Millisecond))
}
