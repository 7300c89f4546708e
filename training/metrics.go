package training

import (
	"fmt"
	"sort"
)

// MetricType represents the segmentation evaluation metrics
type MetricType int

const (
	// Micro-averaged metrics: aggregated over all pixels and classes jointly
	OverallAccuracy MetricType = iota
	OverallPrecision
	OverallRecall
	OverallF1

	// Macro-averaged metric: per-class IoU averaged across classes
	MeanIoU
)

func (mt MetricType) String() string {
	switch mt {
	case OverallAccuracy:
		return "accuracy"
	case OverallPrecision:
		return "precision"
	case OverallRecall:
		return "recall"
	case OverallF1:
		return "f1"
	case MeanIoU:
		return "miou"
	default:
		return fmt.Sprintf("Unknown(%d)", int(mt))
	}
}

// allMetrics is the metric set every collection computes
var allMetrics = []MetricType{OverallAccuracy, OverallPrecision, OverallRecall, OverallF1, MeanIoU}

// SegmentationMatrix accumulates a per-pixel confusion matrix for
// multi-class semantic segmentation
type SegmentationMatrix struct {
	NumClasses  int
	Matrix      [][]int64 // [true_class][predicted_class]
	TotalPixels int64

	// Cached metrics to avoid recomputation
	cachedMetrics map[MetricType]float64
	metricsValid  bool
}

// NewSegmentationMatrix creates a confusion matrix for the given class count
func NewSegmentationMatrix(numClasses int) (*SegmentationMatrix, error) {
	if numClasses < 2 {
		return nil, fmt.Errorf("class count must be at least 2, got %d", numClasses)
	}

	matrix := make([][]int64, numClasses)
	for i := range matrix {
		matrix[i] = make([]int64, numClasses)
	}

	return &SegmentationMatrix{
		NumClasses:    numClasses,
		Matrix:        matrix,
		cachedMetrics: make(map[MetricType]float64),
	}, nil
}

// Reset clears the confusion matrix
func (sm *SegmentationMatrix) Reset() {
	for i := range sm.Matrix {
		for j := range sm.Matrix[i] {
			sm.Matrix[i][j] = 0
		}
	}
	sm.TotalPixels = 0
	sm.metricsValid = false
	sm.cachedMetrics = make(map[MetricType]float64)
}

// Update accumulates one batch of per-pixel predictions. Logits are laid
// out [batch * classes * pixels] and argmaxed per pixel; labels are
// [batch * pixels]. A label outside [0, numClasses) is an error, not a
// silently skipped sample.
func (sm *SegmentationMatrix) Update(logits []float32, labels []int32, batchSize, pixels int) error {
	if batchSize <= 0 || pixels <= 0 {
		return fmt.Errorf("batch size and pixel count must be positive, got %d and %d", batchSize, pixels)
	}
	if len(logits) != batchSize*sm.NumClasses*pixels {
		return fmt.Errorf("logits length mismatch: expected %d, got %d",
			batchSize*sm.NumClasses*pixels, len(logits))
	}
	if len(labels) != batchSize*pixels {
		return fmt.Errorf("labels length mismatch: expected %d, got %d",
			batchSize*pixels, len(labels))
	}

	for b := 0; b < batchSize; b++ {
		base := b * sm.NumClasses * pixels
		for p := 0; p < pixels; p++ {
			trueClass := int(labels[b*pixels+p])
			if trueClass < 0 || trueClass >= sm.NumClasses {
				return fmt.Errorf("label %d out of range [0, %d)", trueClass, sm.NumClasses)
			}

			// Predicted class (argmax over the class axis)
			maxIdx := 0
			maxVal := logits[base+p]
			for k := 1; k < sm.NumClasses; k++ {
				if v := logits[base+k*pixels+p]; v > maxVal {
					maxVal = v
					maxIdx = k
				}
			}

			sm.Matrix[trueClass][maxIdx]++
			sm.TotalPixels++
		}
	}

	sm.metricsValid = false
	return nil
}

// GetMetric calculates and caches an evaluation metric
func (sm *SegmentationMatrix) GetMetric(metric MetricType) float64 {
	if sm.metricsValid {
		if value, exists := sm.cachedMetrics[metric]; exists {
			return value
		}
	}

	var result float64

	switch metric {
	case OverallAccuracy:
		result = sm.calculateAccuracy()
	case OverallPrecision:
		result = sm.calculateMicroPrecision()
	case OverallRecall:
		result = sm.calculateMicroRecall()
	case OverallF1:
		result = sm.calculateMicroF1()
	case MeanIoU:
		result = sm.calculateMeanIoU()
	default:
		return 0.0
	}

	sm.cachedMetrics[metric] = result
	sm.metricsValid = true
	return result
}

func (sm *SegmentationMatrix) calculateAccuracy() float64 {
	if sm.TotalPixels == 0 {
		return 0.0
	}

	var correct int64
	for i := 0; i < sm.NumClasses; i++ {
		correct += sm.Matrix[i][i]
	}

	return float64(correct) / float64(sm.TotalPixels)
}

func (sm *SegmentationMatrix) calculateMicroPrecision() float64 {
	var totalTP, totalFP int64

	for class := 0; class < sm.NumClasses; class++ {
		totalTP += sm.Matrix[class][class]
		for other := 0; other < sm.NumClasses; other++ {
			if other != class {
				totalFP += sm.Matrix[other][class]
			}
		}
	}

	if totalTP+totalFP == 0 {
		return 0.0
	}

	return float64(totalTP) / float64(totalTP+totalFP)
}

func (sm *SegmentationMatrix) calculateMicroRecall() float64 {
	var totalTP, totalFN int64

	for class := 0; class < sm.NumClasses; class++ {
		totalTP += sm.Matrix[class][class]
		for other := 0; other < sm.NumClasses; other++ {
			if other != class {
				totalFN += sm.Matrix[class][other]
			}
		}
	}

	if totalTP+totalFN == 0 {
		return 0.0
	}

	return float64(totalTP) / float64(totalTP+totalFN)
}

func (sm *SegmentationMatrix) calculateMicroF1() float64 {
	precision := sm.calculateMicroPrecision()
	recall := sm.calculateMicroRecall()

	if precision+recall == 0 {
		return 0.0
	}

	return 2 * (precision * recall) / (precision + recall)
}

// IoU returns intersection-over-union for a single class:
// TP / (TP + FP + FN). Returns 0 for an absent class.
func (sm *SegmentationMatrix) IoU(class int) float64 {
	if class < 0 || class >= sm.NumClasses {
		return 0.0
	}

	tp := sm.Matrix[class][class]
	var fp, fn int64
	for other := 0; other < sm.NumClasses; other++ {
		if other != class {
			fp += sm.Matrix[other][class]
			fn += sm.Matrix[class][other]
		}
	}

	union := tp + fp + fn
	if union == 0 {
		return 0.0
	}

	return float64(tp) / float64(union)
}

// calculateMeanIoU computes per-class IoU averaged over classes that appear
// in either labels or predictions (macro averaging)
func (sm *SegmentationMatrix) calculateMeanIoU() float64 {
	sum := 0.0
	validClasses := 0

	for class := 0; class < sm.NumClasses; class++ {
		tp := sm.Matrix[class][class]
		var fp, fn int64
		for other := 0; other < sm.NumClasses; other++ {
			if other != class {
				fp += sm.Matrix[other][class]
				fn += sm.Matrix[class][other]
			}
		}

		if tp+fp+fn > 0 {
			sum += float64(tp) / float64(tp+fp+fn)
			validClasses++
		}
	}

	if validClasses == 0 {
		return 0.0
	}

	return sum / float64(validClasses)
}

// MetricCollection binds a confusion matrix to a phase prefix so that
// train/validation/test values stay distinguishable in logs. Collections
// are fully independent of each other.
type MetricCollection struct {
	prefix string
	matrix *SegmentationMatrix
}

// NewMetricCollection creates an independent metric collection whose
// computed values are keyed with the given prefix (e.g. "train_")
func NewMetricCollection(prefix string, numClasses int) (*MetricCollection, error) {
	matrix, err := NewSegmentationMatrix(numClasses)
	if err != nil {
		return nil, err
	}
	return &MetricCollection{prefix: prefix, matrix: matrix}, nil
}

// Prefix returns the collection's name prefix
func (mc *MetricCollection) Prefix() string {
	return mc.prefix
}

// Update accumulates one batch of predictions into the collection
func (mc *MetricCollection) Update(logits []float32, labels []int32, batchSize, pixels int) error {
	return mc.matrix.Update(logits, labels, batchSize, pixels)
}

// Reset clears the accumulated state
func (mc *MetricCollection) Reset() {
	mc.matrix.Reset()
}

// Compute returns all metric values keyed by prefixed metric name
func (mc *MetricCollection) Compute() map[string]float64 {
	values := make(map[string]float64, len(allMetrics))
	for _, mt := range allMetrics {
		values[mc.prefix+mt.String()] = mc.matrix.GetMetric(mt)
	}
	return values
}

// Names returns the sorted prefixed metric names the collection produces
func (mc *MetricCollection) Names() []string {
	names := make([]string, 0, len(allMetrics))
	for _, mt := range allMetrics {
		names = append(names, mc.prefix+mt.String())
	}
	sort.Strings(names)
	return names
}

// MetricSet holds the three phase collections a task trains with
type MetricSet struct {
	Train *MetricCollection
	Val   *MetricCollection
	Test  *MetricCollection
}
