package model

import "fmt"

// FCNSegmenter is a small fully convolutional per-pixel network: a hidden
// 1x1 convolution with ReLU followed by a linear classification head. The
// backbone selects the hidden width.
type FCNSegmenter struct {
	inChannels int
	numClasses int
	hidden     int

	weight1 *Tensor // [hidden, inChannels]
	bias1   *Tensor // [hidden]
	weight2 *Tensor // [numClasses, hidden]
	bias2   *Tensor // [numClasses]

	// Hidden activations cached by Forward for the following Backward
	lastHidden []float32
	lastBatch  int
	lastPixels int
}

func newFCNSegmenter(inChannels, numClasses, hidden int) *FCNSegmenter {
	w1 := make([]float32, hidden*inChannels)
	xavierUniform(w1, inChannels, hidden)
	w2 := make([]float32, numClasses*hidden)
	xavierUniform(w2, hidden, numClasses)

	return &FCNSegmenter{
		inChannels: inChannels,
		numClasses: numClasses,
		hidden:     hidden,
		weight1:    newTensor("backbone.weight", []int{hidden, inChannels}, w1),
		bias1:      newTensor("backbone.bias", []int{hidden}, make([]float32, hidden)),
		weight2:    newTensor("head.weight", []int{numClasses, hidden}, w2),
		bias2:      newTensor("head.bias", []int{numClasses}, make([]float32, numClasses)),
	}
}

// Forward computes h = relu(W1 x + b1) per pixel, then logits = W2 h + b2
func (m *FCNSegmenter) Forward(images []float32, batchSize, height, width int) ([]float32, error) {
	pixels := height * width
	if err := checkImageShape(images, batchSize, m.inChannels, pixels); err != nil {
		return nil, err
	}

	hiddenAct := make([]float32, batchSize*m.hidden*pixels)
	for b := 0; b < batchSize; b++ {
		imgBase := b * m.inChannels * pixels
		hidBase := b * m.hidden * pixels
		for j := 0; j < m.hidden; j++ {
			wRow := m.weight1.Data[j*m.inChannels : (j+1)*m.inChannels]
			bj := m.bias1.Data[j]
			for p := 0; p < pixels; p++ {
				sum := bj
				for c := 0; c < m.inChannels; c++ {
					sum += wRow[c] * images[imgBase+c*pixels+p]
				}
				if sum < 0 {
					sum = 0 // ReLU
				}
				hiddenAct[hidBase+j*pixels+p] = sum
			}
		}
	}

	logits := make([]float32, batchSize*m.numClasses*pixels)
	for b := 0; b < batchSize; b++ {
		hidBase := b * m.hidden * pixels
		outBase := b * m.numClasses * pixels
		for k := 0; k < m.numClasses; k++ {
			wRow := m.weight2.Data[k*m.hidden : (k+1)*m.hidden]
			bk := m.bias2.Data[k]
			for p := 0; p < pixels; p++ {
				sum := bk
				for j := 0; j < m.hidden; j++ {
					sum += wRow[j] * hiddenAct[hidBase+j*pixels+p]
				}
				logits[outBase+k*pixels+p] = sum
			}
		}
	}

	m.lastHidden = hiddenAct
	m.lastBatch = batchSize
	m.lastPixels = pixels
	return logits, nil
}

// Backward accumulates gradients through the head and the ReLU hidden layer
func (m *FCNSegmenter) Backward(images []float32, gradLogits []float32, batchSize, height, width int) error {
	pixels := height * width
	if err := checkImageShape(images, batchSize, m.inChannels, pixels); err != nil {
		return err
	}
	if len(gradLogits) != batchSize*m.numClasses*pixels {
		return fmt.Errorf("gradient length mismatch: expected %d, got %d",
			batchSize*m.numClasses*pixels, len(gradLogits))
	}
	if m.lastHidden == nil || m.lastBatch != batchSize || m.lastPixels != pixels {
		return fmt.Errorf("backward called without a matching forward pass")
	}

	// Head gradients and dLoss/dHidden
	gradHidden := make([]float32, batchSize*m.hidden*pixels)
	for b := 0; b < batchSize; b++ {
		hidBase := b * m.hidden * pixels
		gradBase := b * m.numClasses * pixels
		for k := 0; k < m.numClasses; k++ {
			gRow := gradLogits[gradBase+k*pixels : gradBase+(k+1)*pixels]
			wRow := m.weight2.Data[k*m.hidden : (k+1)*m.hidden]
			for p := 0; p < pixels; p++ {
				g := gRow[p]
				if g == 0 {
					continue
				}
				m.bias2.Grad[k] += g
				for j := 0; j < m.hidden; j++ {
					h := m.lastHidden[hidBase+j*pixels+p]
					m.weight2.Grad[k*m.hidden+j] += g * h
					gradHidden[hidBase+j*pixels+p] += g * wRow[j]
				}
			}
		}
	}

	// ReLU gate and first layer gradients
	for b := 0; b < batchSize; b++ {
		imgBase := b * m.inChannels * pixels
		hidBase := b * m.hidden * pixels
		for j := 0; j < m.hidden; j++ {
			for p := 0; p < pixels; p++ {
				idx := hidBase + j*pixels + p
				if m.lastHidden[idx] <= 0 {
					continue // ReLU zeroed this activation
				}
				g := gradHidden[idx]
				if g == 0 {
					continue
				}
				m.bias1.Grad[j] += g
				for c := 0; c < m.inChannels; c++ {
					m.weight1.Grad[j*m.inChannels+c] += g * images[imgBase+c*pixels+p]
				}
			}
		}
	}
	return nil
}

// Parameters returns the trainable parameters
func (m *FCNSegmenter) Parameters() []*Tensor {
	return []*Tensor{m.weight1, m.bias1, m.weight2, m.bias2}
}

// InChannels returns the expected number of input channels
func (m *FCNSegmenter) InChannels() int { return m.inChannels }

// NumClasses returns the number of output classes
func (m *FCNSegmenter) NumClasses() int { return m.numClasses }
