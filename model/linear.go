package model

import "fmt"

// LinearSegmenter classifies every pixel with a single linear projection
// over the input channels (a 1x1 convolution).
type LinearSegmenter struct {
	inChannels int
	numClasses int
	weight     *Tensor // [numClasses, inChannels]
	bias       *Tensor // [numClasses]
}

func newLinearSegmenter(inChannels, numClasses int) *LinearSegmenter {
	weightData := make([]float32, numClasses*inChannels)
	xavierUniform(weightData, inChannels, numClasses)

	return &LinearSegmenter{
		inChannels: inChannels,
		numClasses: numClasses,
		weight:     newTensor("head.weight", []int{numClasses, inChannels}, weightData),
		bias:       newTensor("head.bias", []int{numClasses}, make([]float32, numClasses)),
	}
}

// Forward computes logits[b,k,p] = sum_c W[k,c] * x[b,c,p] + bias[k]
func (m *LinearSegmenter) Forward(images []float32, batchSize, height, width int) ([]float32, error) {
	pixels := height * width
	if err := checkImageShape(images, batchSize, m.inChannels, pixels); err != nil {
		return nil, err
	}

	logits := make([]float32, batchSize*m.numClasses*pixels)
	for b := 0; b < batchSize; b++ {
		imgBase := b * m.inChannels * pixels
		outBase := b * m.numClasses * pixels
		for k := 0; k < m.numClasses; k++ {
			wRow := m.weight.Data[k*m.inChannels : (k+1)*m.inChannels]
			bk := m.bias.Data[k]
			for p := 0; p < pixels; p++ {
				sum := bk
				for c := 0; c < m.inChannels; c++ {
					sum += wRow[c] * images[imgBase+c*pixels+p]
				}
				logits[outBase+k*pixels+p] = sum
			}
		}
	}
	return logits, nil
}

// Backward accumulates dW[k,c] += sum_{b,p} g[b,k,p] * x[b,c,p] and
// db[k] += sum_{b,p} g[b,k,p]
func (m *LinearSegmenter) Backward(images []float32, gradLogits []float32, batchSize, height, width int) error {
	pixels := height * width
	if err := checkImageShape(images, batchSize, m.inChannels, pixels); err != nil {
		return err
	}
	if len(gradLogits) != batchSize*m.numClasses*pixels {
		return fmt.Errorf("gradient length mismatch: expected %d, got %d",
			batchSize*m.numClasses*pixels, len(gradLogits))
	}

	for b := 0; b < batchSize; b++ {
		imgBase := b * m.inChannels * pixels
		gradBase := b * m.numClasses * pixels
		for k := 0; k < m.numClasses; k++ {
			gRow := gradLogits[gradBase+k*pixels : gradBase+(k+1)*pixels]
			for p := 0; p < pixels; p++ {
				g := gRow[p]
				if g == 0 {
					continue
				}
				m.bias.Grad[k] += g
				for c := 0; c < m.inChannels; c++ {
					m.weight.Grad[k*m.inChannels+c] += g * images[imgBase+c*pixels+p]
				}
			}
		}
	}
	return nil
}

// Parameters returns the trainable parameters
func (m *LinearSegmenter) Parameters() []*Tensor {
	return []*Tensor{m.weight, m.bias}
}

// InChannels returns the expected number of input channels
func (m *LinearSegmenter) InChannels() int { return m.inChannels }

// NumClasses returns the number of output classes
func (m *LinearSegmenter) NumClasses() int { return m.numClasses }

func checkImageShape(images []float32, batchSize, channels, pixels int) error {
	if batchSize <= 0 || pixels <= 0 {
		return fmt.Errorf("batch size and pixel count must be positive, got %d and %d", batchSize, pixels)
	}
	expected := batchSize * channels * pixels
	if len(images) != expected {
		return fmt.Errorf("image length mismatch: expected %d, got %d", expected, len(images))
	}
	return nil
}
