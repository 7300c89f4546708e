package model

import (
	"fmt"
	"math"
	"math/rand"
)

// Global random source for deterministic weight initialization
var globalRng *rand.Rand = rand.New(rand.NewSource(1))

// SetRandomSeed sets the global random seed for deterministic weight initialization
func SetRandomSeed(seed int64) {
	globalRng = rand.New(rand.NewSource(seed))
}

// Tensor is a named, flat parameter tensor with its accumulated gradient.
// Data is laid out row-major according to Shape.
type Tensor struct {
	Name  string
	Shape []int
	Data  []float32
	Grad  []float32
}

// NumElems returns the total number of elements described by the tensor shape
func (t *Tensor) NumElems() int {
	n := 1
	for _, dim := range t.Shape {
		n *= dim
	}
	return n
}

// ZeroGrad resets the accumulated gradient to zero
func (t *Tensor) ZeroGrad() {
	for i := range t.Grad {
		t.Grad[i] = 0
	}
}

// newTensor allocates a parameter tensor with matching gradient storage
func newTensor(name string, shape []int, data []float32) *Tensor {
	return &Tensor{
		Name:  name,
		Shape: shape,
		Data:  data,
		Grad:  make([]float32, len(data)),
	}
}

// xavierUniform fills a slice with Xavier/Glorot uniform samples:
// W ~ U(-sqrt(6/(fan_in + fan_out)), sqrt(6/(fan_in + fan_out)))
func xavierUniform(data []float32, fanIn, fanOut int) {
	bound := math.Sqrt(6.0 / float64(fanIn+fanOut))
	for i := range data {
		data[i] = float32((globalRng.Float64()*2.0 - 1.0) * bound)
	}
}

// Model is a per-pixel segmentation network. Images and logits use a flat
// CHW layout: images are [batch * channels * pixels] float32, logits are
// [batch * classes * pixels] float32, where pixels = height * width.
type Model interface {
	// Forward computes class logits for a batch of image chips
	Forward(images []float32, batchSize, height, width int) ([]float32, error)

	// Backward accumulates parameter gradients from dLoss/dLogits.
	// Must be called with the same images as the preceding Forward.
	Backward(images []float32, gradLogits []float32, batchSize, height, width int) error

	// Parameters returns the trainable parameter tensors
	Parameters() []*Tensor

	// InChannels returns the expected number of input channels
	InChannels() int

	// NumClasses returns the number of output classes
	NumClasses() int
}

// backboneWidths maps backbone names to hidden layer widths
var backboneWidths = map[string]int{
	"micro": 16,
	"small": 32,
	"base":  64,
}

// Backbones returns the supported backbone names
func Backbones() []string {
	return []string{"micro", "small", "base"}
}

// Architectures returns the supported architecture names
func Architectures() []string {
	return []string{"linear", "fcn"}
}

// New builds a segmentation model for the given architecture and backbone.
// "linear" is a single per-pixel projection and ignores the backbone;
// "fcn" adds a hidden layer whose width is selected by the backbone.
func New(architecture, backbone string, inChannels, numClasses int) (Model, error) {
	if inChannels <= 0 {
		return nil, fmt.Errorf("input channel count must be positive, got %d", inChannels)
	}
	if numClasses < 2 {
		return nil, fmt.Errorf("class count must be at least 2, got %d", numClasses)
	}

	switch architecture {
	case "linear":
		return newLinearSegmenter(inChannels, numClasses), nil
	case "fcn":
		width, ok := backboneWidths[backbone]
		if !ok {
			return nil, fmt.Errorf("unknown backbone %q (supported: %v)", backbone, Backbones())
		}
		return newFCNSegmenter(inChannels, numClasses, width), nil
	default:
		return nil, fmt.Errorf("unknown architecture %q (supported: %v)", architecture, Architectures())
	}
}

// LoadWeights copies checkpoint weight data into the model parameters,
// matching tensors by name and validating shapes.
func LoadWeights(m Model, weights map[string][]float32, shapes map[string][]int) error {
	for _, param := range m.Parameters() {
		data, ok := weights[param.Name]
		if !ok {
			return fmt.Errorf("weight tensor %q not found in checkpoint", param.Name)
		}
		if len(data) != len(param.Data) {
			return fmt.Errorf("weight tensor %q size mismatch: expected %d, got %d",
				param.Name, len(param.Data), len(data))
		}
		if shape, ok := shapes[param.Name]; ok {
			if len(shape) != len(param.Shape) {
				return fmt.Errorf("weight tensor %q rank mismatch: expected %v, got %v",
					param.Name, param.Shape, shape)
			}
			for i, dim := range shape {
				if dim != param.Shape[i] {
					return fmt.Errorf("weight tensor %q shape mismatch: expected %v, got %v",
						param.Name, param.Shape, shape)
				}
			}
		}
		copy(param.Data, data)
	}
	return nil
}
