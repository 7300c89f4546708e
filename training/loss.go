package training

import (
	"fmt"
	"math"
)

// Loss computes a scalar loss and its gradient with respect to the logits
// for per-pixel classification targets. Logits are laid out
// [batch * classes * pixels], labels [batch * pixels].
type Loss interface {
	// Forward computes the mean loss over all pixels in the batch
	Forward(logits []float32, labels []int32, batchSize, numClasses, pixels int) (float64, error)

	// Gradient computes dLoss/dLogits with the same layout as logits
	Gradient(logits []float32, labels []int32, batchSize, numClasses, pixels int) ([]float32, error)

	// Name returns the loss name for logging
	Name() string
}

// NewLoss builds a loss function by kind. Supported kinds: "ce", "focal".
func NewLoss(kind string) (Loss, error) {
	switch kind {
	case "ce":
		return &CrossEntropyLoss{}, nil
	case "focal":
		return &FocalLoss{Gamma: 2.0}, nil
	default:
		return nil, fmt.Errorf("unknown loss kind %q (supported: \"ce\", \"focal\")", kind)
	}
}

// CrossEntropyLoss implements per-pixel softmax cross-entropy, averaged
// over every pixel in the batch
type CrossEntropyLoss struct{}

func (l *CrossEntropyLoss) Name() string { return "CrossEntropy" }

// Forward computes mean -log softmax(logits)[label] over all pixels
func (l *CrossEntropyLoss) Forward(logits []float32, labels []int32, batchSize, numClasses, pixels int) (float64, error) {
	if err := checkLossShapes(logits, labels, batchSize, numClasses, pixels); err != nil {
		return 0, err
	}

	total := 0.0
	probs := make([]float64, numClasses)
	for b := 0; b < batchSize; b++ {
		base := b * numClasses * pixels
		for p := 0; p < pixels; p++ {
			trueClass := int(labels[b*pixels+p])
			if trueClass < 0 || trueClass >= numClasses {
				return 0, fmt.Errorf("label %d out of range [0, %d)", trueClass, numClasses)
			}
			softmaxPixel(logits, base, numClasses, pixels, p, probs)
			total += -math.Log(math.Max(probs[trueClass], 1e-12))
		}
	}

	return total / float64(batchSize*pixels), nil
}

// Gradient computes (softmax - onehot) / N per pixel
func (l *CrossEntropyLoss) Gradient(logits []float32, labels []int32, batchSize, numClasses, pixels int) ([]float32, error) {
	if err := checkLossShapes(logits, labels, batchSize, numClasses, pixels); err != nil {
		return nil, err
	}

	grad := make([]float32, len(logits))
	invN := 1.0 / float64(batchSize*pixels)
	probs := make([]float64, numClasses)
	for b := 0; b < batchSize; b++ {
		base := b * numClasses * pixels
		for p := 0; p < pixels; p++ {
			trueClass := int(labels[b*pixels+p])
			if trueClass < 0 || trueClass >= numClasses {
				return nil, fmt.Errorf("label %d out of range [0, %d)", trueClass, numClasses)
			}
			softmaxPixel(logits, base, numClasses, pixels, p, probs)
			for k := 0; k < numClasses; k++ {
				g := probs[k]
				if k == trueClass {
					g -= 1.0
				}
				grad[base+k*pixels+p] = float32(g * invN)
			}
		}
	}
	return grad, nil
}

// FocalLoss implements the focal loss -(1-p_t)^gamma * log(p_t), which
// down-weights well-classified pixels. Gamma 0 reduces to cross-entropy.
type FocalLoss struct {
	Gamma float64
}

func (l *FocalLoss) Name() string { return "Focal" }

func (l *FocalLoss) Forward(logits []float32, labels []int32, batchSize, numClasses, pixels int) (float64, error) {
	if err := checkLossShapes(logits, labels, batchSize, numClasses, pixels); err != nil {
		return 0, err
	}
	if l.Gamma < 0 {
		return 0, fmt.Errorf("focal gamma must be non-negative, got %g", l.Gamma)
	}

	total := 0.0
	probs := make([]float64, numClasses)
	for b := 0; b < batchSize; b++ {
		base := b * numClasses * pixels
		for p := 0; p < pixels; p++ {
			trueClass := int(labels[b*pixels+p])
			if trueClass < 0 || trueClass >= numClasses {
				return 0, fmt.Errorf("label %d out of range [0, %d)", trueClass, numClasses)
			}
			softmaxPixel(logits, base, numClasses, pixels, p, probs)
			pt := math.Max(probs[trueClass], 1e-12)
			total += -math.Pow(1-pt, l.Gamma) * math.Log(pt)
		}
	}

	return total / float64(batchSize*pixels), nil
}

func (l *FocalLoss) Gradient(logits []float32, labels []int32, batchSize, numClasses, pixels int) ([]float32, error) {
	if err := checkLossShapes(logits, labels, batchSize, numClasses, pixels); err != nil {
		return nil, err
	}
	if l.Gamma < 0 {
		return nil, fmt.Errorf("focal gamma must be non-negative, got %g", l.Gamma)
	}

	grad := make([]float32, len(logits))
	invN := 1.0 / float64(batchSize*pixels)
	probs := make([]float64, numClasses)
	for b := 0; b < batchSize; b++ {
		base := b * numClasses * pixels
		for p := 0; p < pixels; p++ {
			trueClass := int(labels[b*pixels+p])
			if trueClass < 0 || trueClass >= numClasses {
				return nil, fmt.Errorf("label %d out of range [0, %d)", trueClass, numClasses)
			}
			softmaxPixel(logits, base, numClasses, pixels, p, probs)
			pt := math.Max(probs[trueClass], 1e-12)

			// dL/dp_t for L = -(1-p_t)^gamma * log(p_t)
			oneMinus := 1 - pt
			var dLdPt float64
			if l.Gamma == 0 {
				dLdPt = -1 / pt
			} else {
				dLdPt = l.Gamma*math.Pow(oneMinus, l.Gamma-1)*math.Log(pt) - math.Pow(oneMinus, l.Gamma)/pt
			}

			// Chain through softmax: dp_t/dz_k = p_t * (delta_tk - p_k)
			for k := 0; k < numClasses; k++ {
				delta := 0.0
				if k == trueClass {
					delta = 1.0
				}
				grad[base+k*pixels+p] = float32(dLdPt * pt * (delta - probs[k]) * invN)
			}
		}
	}
	return grad, nil
}

// softmaxPixel computes a numerically stable softmax over the class axis
// for a single pixel into probs
func softmaxPixel(logits []float32, base, numClasses, pixels, p int, probs []float64) {
	maxLogit := float64(logits[base+p])
	for k := 1; k < numClasses; k++ {
		if v := float64(logits[base+k*pixels+p]); v > maxLogit {
			maxLogit = v
		}
	}

	sum := 0.0
	for k := 0; k < numClasses; k++ {
		e := math.Exp(float64(logits[base+k*pixels+p]) - maxLogit)
		probs[k] = e
		sum += e
	}
	for k := 0; k < numClasses; k++ {
		probs[k] /= sum
	}
}

func checkLossShapes(logits []float32, labels []int32, batchSize, numClasses, pixels int) error {
	if batchSize <= 0 || numClasses < 2 || pixels <= 0 {
		return fmt.Errorf("invalid shape: batch=%d classes=%d pixels=%d", batchSize, numClasses, pixels)
	}
	if len(logits) != batchSize*numClasses*pixels {
		return fmt.Errorf("logits length mismatch: expected %d, got %d",
			batchSize*numClasses*pixels, len(logits))
	}
	if len(labels) != batchSize*pixels {
		return fmt.Errorf("labels length mismatch: expected %d, got %d",
			batchSize*pixels, len(labels))
	}
	return nil
}
