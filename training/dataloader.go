package training

import (
	"fmt"
	"math/rand"
	"sync"
)

// Sample is one image chip with its per-pixel class mask. The image uses a
// flat CHW layout [channels * height * width]; the mask is [height * width].
type Sample struct {
	Image []float32
	Mask  []int32
}

// Dataset defines the data source collaborator contract: batches of
// (image, per-pixel label) pairs consistent with the configured channel
// and class counts
type Dataset interface {
	// Len returns the total number of samples
	Len() int

	// Channels returns the number of image channels per sample
	Channels() int

	// ChipSize returns the height and width of every chip
	ChipSize() (height, width int)

	// Sample returns a single sample by index
	Sample(idx int) (*Sample, error)
}

// Batch holds a batch of image chips and masks in flat layout:
// Images is [size * channels * height * width], Masks is [size * height * width]
type Batch struct {
	Images   []float32
	Masks    []int32
	Size     int
	Channels int
	Height   int
	Width    int
}

// Pixels returns the number of pixels per chip
func (b *Batch) Pixels() int {
	return b.Height * b.Width
}

// DataLoader provides batching and optional shuffling over a Dataset
type DataLoader struct {
	dataset   Dataset
	batchSize int
	shuffle   bool
	rng       *rand.Rand
	indices   []int
	position  int
	mutex     sync.Mutex
}

// NewDataLoader creates a data loader. A fixed seed makes the shuffle order
// deterministic across runs.
func NewDataLoader(dataset Dataset, batchSize int, shuffle bool, seed int64) (*DataLoader, error) {
	if dataset == nil {
		return nil, fmt.Errorf("dataset must not be nil")
	}
	if batchSize <= 0 {
		return nil, fmt.Errorf("batch size must be positive, got %d", batchSize)
	}
	if dataset.Len() == 0 {
		return nil, fmt.Errorf("dataset is empty")
	}

	indices := make([]int, dataset.Len())
	for i := range indices {
		indices[i] = i
	}

	return &DataLoader{
		dataset:   dataset,
		batchSize: batchSize,
		shuffle:   shuffle,
		rng:       rand.New(rand.NewSource(seed)),
		indices:   indices,
	}, nil
}

// Len returns the number of batches in an epoch
func (dl *DataLoader) Len() int {
	return (dl.dataset.Len() + dl.batchSize - 1) / dl.batchSize
}

// Reset rewinds the loader for a new epoch, reshuffling if enabled
func (dl *DataLoader) Reset() {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	dl.position = 0

	if dl.shuffle {
		dl.rng.Shuffle(len(dl.indices), func(i, j int) {
			dl.indices[i], dl.indices[j] = dl.indices[j], dl.indices[i]
		})
	}
}

// Next returns the next batch, or nil when the epoch is complete
func (dl *DataLoader) Next() (*Batch, error) {
	dl.mutex.Lock()
	defer dl.mutex.Unlock()

	if dl.position >= len(dl.indices) {
		return nil, nil // End of epoch
	}

	batchEnd := dl.position + dl.batchSize
	if batchEnd > len(dl.indices) {
		batchEnd = len(dl.indices)
	}

	batchIndices := dl.indices[dl.position:batchEnd]
	dl.position = batchEnd

	return dl.loadBatch(batchIndices)
}

// loadBatch assembles samples into flat batched storage, validating that
// every sample matches the dataset's declared shape
func (dl *DataLoader) loadBatch(indices []int) (*Batch, error) {
	channels := dl.dataset.Channels()
	height, width := dl.dataset.ChipSize()
	pixels := height * width

	batch := &Batch{
		Images:   make([]float32, len(indices)*channels*pixels),
		Masks:    make([]int32, len(indices)*pixels),
		Size:     len(indices),
		Channels: channels,
		Height:   height,
		Width:    width,
	}

	for i, idx := range indices {
		sample, err := dl.dataset.Sample(idx)
		if err != nil {
			return nil, fmt.Errorf("failed to load sample %d: %v", idx, err)
		}
		if len(sample.Image) != channels*pixels {
			return nil, fmt.Errorf("sample %d image length mismatch: expected %d, got %d",
				idx, channels*pixels, len(sample.Image))
		}
		if len(sample.Mask) != pixels {
			return nil, fmt.Errorf("sample %d mask length mismatch: expected %d, got %d",
				idx, pixels, len(sample.Mask))
		}

		copy(batch.Images[i*channels*pixels:(i+1)*channels*pixels], sample.Image)
		copy(batch.Masks[i*pixels:(i+1)*pixels], sample.Mask)
	}

	return batch, nil
}
