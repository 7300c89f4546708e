package training

import (
	"encoding/json"
	"fmt"

	"github.com/LeWaldm/terraseg/checkpoints"
	"github.com/LeWaldm/terraseg/model"
	"github.com/LeWaldm/terraseg/optimizer"
)

// Default values for the optimization parameters
const (
	DefaultOptimizerKind   = "adamw"
	DefaultSchedulerKind   = "cosine"
	DefaultScheduleLength  = 50
	DefaultMinLearningRate = 1e-6
	DefaultDecayRate       = 0.1
)

// TaskConfig is the immutable hyperparameter record of a segmentation task.
// It is stored verbatim in every checkpoint so restored tasks see identical
// settings.
type TaskConfig struct {
	Architecture string `json:"architecture"`
	Backbone     string `json:"backbone"`

	// Pretrained selects weight initialization from WeightsPath instead of
	// random initialization
	Pretrained  bool   `json:"pretrained"`
	WeightsPath string `json:"weights_path,omitempty"`

	InChannels int    `json:"in_channels"`
	NumClasses int    `json:"num_classes"`
	LossKind   string `json:"loss_kind"`

	LearningRate float64 `json:"learning_rate"`

	// OptimizerKind selects the optimizer: "adamw" (default) or "sgd"
	OptimizerKind string `json:"optimizer_kind"`

	// SchedulerKind selects the learning rate schedule: "cosine" (default),
	// "step", "exponential", or "constant"
	SchedulerKind string `json:"scheduler_kind"`

	// ScheduleLength is the cosine annealing period in epochs, or the epochs
	// between reductions for the step schedule (default 50)
	ScheduleLength int `json:"schedule_length"`

	// MinLearningRate is the cosine annealing floor (default 1e-6)
	MinLearningRate float64 `json:"min_learning_rate"`

	// DecayRate is the multiplicative factor of the step and exponential
	// schedules (default 0.1)
	DecayRate float64 `json:"decay_rate"`
}

// withDefaults fills the optimization parameters when unset
func (c TaskConfig) withDefaults() TaskConfig {
	if c.OptimizerKind == "" {
		c.OptimizerKind = DefaultOptimizerKind
	}
	if c.SchedulerKind == "" {
		c.SchedulerKind = DefaultSchedulerKind
	}
	if c.ScheduleLength == 0 {
		c.ScheduleLength = DefaultScheduleLength
	}
	if c.MinLearningRate == 0 {
		c.MinLearningRate = DefaultMinLearningRate
	}
	if c.DecayRate == 0 {
		c.DecayRate = DefaultDecayRate
	}
	return c
}

// Validate rejects malformed hyperparameters up front rather than letting
// them propagate as silent numerical corruption
func (c TaskConfig) Validate() error {
	if c.InChannels <= 0 {
		return fmt.Errorf("input channel count must be positive, got %d", c.InChannels)
	}
	if c.NumClasses < 2 {
		return fmt.Errorf("class count must be at least 2, got %d", c.NumClasses)
	}
	if c.LearningRate <= 0 {
		return fmt.Errorf("learning rate must be positive, got %g", c.LearningRate)
	}
	switch c.OptimizerKind {
	case "adamw", "sgd":
	default:
		return fmt.Errorf("unknown optimizer kind %q (supported: \"adamw\", \"sgd\")", c.OptimizerKind)
	}
	switch c.SchedulerKind {
	case "cosine", "step", "exponential", "constant":
	default:
		return fmt.Errorf("unknown scheduler kind %q (supported: \"cosine\", \"step\", \"exponential\", \"constant\")",
			c.SchedulerKind)
	}
	if c.DecayRate <= 0 || c.DecayRate >= 1 {
		return fmt.Errorf("decay rate must be in (0, 1), got %g", c.DecayRate)
	}
	if c.ScheduleLength <= 0 {
		return fmt.Errorf("schedule length must be positive, got %d", c.ScheduleLength)
	}
	if c.MinLearningRate <= 0 {
		return fmt.Errorf("minimum learning rate must be positive, got %g", c.MinLearningRate)
	}
	if c.MinLearningRate >= c.LearningRate {
		return fmt.Errorf("minimum learning rate %g must be below the initial learning rate %g",
			c.MinLearningRate, c.LearningRate)
	}
	if c.Pretrained && c.WeightsPath == "" {
		return fmt.Errorf("pretrained weights requested but no weights path given")
	}
	return nil
}

// SegmentationTask bundles a segmentation model, its loss, and the factory
// hooks the Trainer drives: optimizer/schedule construction, metric
// construction, checkpoint policies, and the epoch-start learning rate log.
type SegmentationTask struct {
	config    TaskConfig
	network   model.Model
	criterion Loss
}

// NewSegmentationTask builds a task from the given configuration. The two
// schedule parameters default to 50 epochs and 1e-6 when zero; everything
// else must be set and valid.
func NewSegmentationTask(config TaskConfig) (*SegmentationTask, error) {
	config = config.withDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid task configuration: %v", err)
	}

	network, err := model.New(config.Architecture, config.Backbone, config.InChannels, config.NumClasses)
	if err != nil {
		return nil, fmt.Errorf("failed to build model: %v", err)
	}

	criterion, err := NewLoss(config.LossKind)
	if err != nil {
		return nil, err
	}

	if config.Pretrained {
		ckpt, err := checkpoints.Load(config.WeightsPath)
		if err != nil {
			return nil, fmt.Errorf("failed to load pretrained weights: %v", err)
		}
		weights, shapes := ckpt.WeightMap()
		if err := model.LoadWeights(network, weights, shapes); err != nil {
			return nil, fmt.Errorf("failed to apply pretrained weights: %v", err)
		}
	}

	return &SegmentationTask{
		config:    config,
		network:   network,
		criterion: criterion,
	}, nil
}

// LoadTask restores a task from a checkpoint: the persisted hyperparameters
// rebuild the task and the stored weights replace the fresh initialization
func LoadTask(path string) (*SegmentationTask, error) {
	ckpt, err := checkpoints.Load(path)
	if err != nil {
		return nil, err
	}
	if len(ckpt.Hyperparameters) == 0 {
		return nil, fmt.Errorf("checkpoint %s carries no hyperparameters", path)
	}

	var config TaskConfig
	if err := json.Unmarshal(ckpt.Hyperparameters, &config); err != nil {
		return nil, fmt.Errorf("failed to decode checkpoint hyperparameters: %v", err)
	}

	// Weights come from the checkpoint itself, not from the original
	// pretrained source
	config.Pretrained = false
	config.WeightsPath = ""

	task, err := NewSegmentationTask(config)
	if err != nil {
		return nil, err
	}

	weights, shapes := ckpt.WeightMap()
	if err := model.LoadWeights(task.network, weights, shapes); err != nil {
		return nil, fmt.Errorf("failed to restore weights: %v", err)
	}
	return task, nil
}

// Model returns the segmentation network
func (t *SegmentationTask) Model() model.Model {
	return t.network
}

// Criterion returns the loss function
func (t *SegmentationTask) Criterion() Loss {
	return t.criterion
}

// Hyperparameters returns the task configuration with defaults applied
func (t *SegmentationTask) Hyperparameters() TaskConfig {
	return t.config
}

// ConfigureOptimizers builds one optimizer over all trainable parameters
// and its learning rate schedule, both selected by the configuration
// (AdamW with cosine annealing by default), and names the validation loss
// as the monitored metric
func (t *SegmentationTask) ConfigureOptimizers() (*OptimizerConfig, error) {
	var opt optimizer.Optimizer
	var err error
	switch t.config.OptimizerKind {
	case "adamw":
		adamConfig := optimizer.DefaultAdamWConfig()
		adamConfig.LearningRate = t.config.LearningRate
		opt, err = optimizer.NewAdamW(t.network.Parameters(), adamConfig)
	case "sgd":
		sgdConfig := optimizer.DefaultSGDConfig()
		sgdConfig.LearningRate = t.config.LearningRate
		opt, err = optimizer.NewSGD(t.network.Parameters(), sgdConfig)
	default:
		return nil, fmt.Errorf("unknown optimizer kind %q", t.config.OptimizerKind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build optimizer: %v", err)
	}

	var scheduler LRScheduler
	switch t.config.SchedulerKind {
	case "cosine":
		scheduler, err = NewCosineAnnealingLR(t.config.ScheduleLength, t.config.MinLearningRate)
	case "step":
		scheduler, err = NewStepLR(t.config.ScheduleLength, t.config.DecayRate)
	case "exponential":
		scheduler, err = NewExponentialLR(t.config.DecayRate)
	case "constant":
		scheduler = &ConstantLR{}
	default:
		return nil, fmt.Errorf("unknown scheduler kind %q", t.config.SchedulerKind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build scheduler: %v", err)
	}

	return &OptimizerConfig{
		Optimizer: opt,
		Scheduler: scheduler,
		Monitor:   "val_loss",
		Mode:      checkpoints.ModeMin,
	}, nil
}

// ConfigureMetrics builds three independent metric collections so logged
// train/validation/test values stay distinguishable
func (t *SegmentationTask) ConfigureMetrics() (*MetricSet, error) {
	train, err := NewMetricCollection("train_", t.config.NumClasses)
	if err != nil {
		return nil, err
	}
	val, err := NewMetricCollection("val_", t.config.NumClasses)
	if err != nil {
		return nil, err
	}
	test, err := NewMetricCollection("test_", t.config.NumClasses)
	if err != nil {
		return nil, err
	}
	return &MetricSet{Train: train, Val: val, Test: test}, nil
}

// ConfigureCheckpoints returns the ordered pair of save policies: an
// unconditional snapshot every 50 epochs (keeping all, plus the latest
// epoch's snapshot), and up to 5 snapshots ranked by the monitored metric
func (t *SegmentationTask) ConfigureCheckpoints(dir string) ([]checkpoints.Policy, error) {
	periodic, err := checkpoints.NewPeriodicPolicy(dir, 50)
	if err != nil {
		return nil, err
	}
	topK, err := checkpoints.NewTopKPolicy(dir, 5, "val_loss", checkpoints.ModeMin)
	if err != nil {
		return nil, err
	}
	return []checkpoints.Policy{periodic, topK}, nil
}

// OnTrainEpochStart records the current learning rate of the first managed
// optimizer against the epoch index. Inspecting only the first optimizer is
// sufficient for single-optimizer setups and a known limitation otherwise.
func (t *SegmentationTask) OnTrainEpochStart(epoch int, optimizers []optimizer.Optimizer, logger *ExperimentLogger) {
	if len(optimizers) == 0 || logger == nil {
		return
	}
	logger.LogScalar("lr", epoch, optimizers[0].GetLR())
}
