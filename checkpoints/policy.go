package checkpoints

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Mode is the optimization direction of a monitored metric
type Mode int

const (
	ModeMin Mode = iota // lower is better (e.g. validation loss)
	ModeMax             // higher is better (e.g. mean IoU)
)

func (m Mode) String() string {
	switch m {
	case ModeMin:
		return "min"
	case ModeMax:
		return "max"
	default:
		return fmt.Sprintf("Unknown(%d)", int(m))
	}
}

// ParseMode converts "min" or "max" into a Mode
func ParseMode(s string) (Mode, error) {
	switch s {
	case "min":
		return ModeMin, nil
	case "max":
		return ModeMax, nil
	default:
		return ModeMin, fmt.Errorf("unknown monitor mode %q (expected \"min\" or \"max\")", s)
	}
}

// Policy decides at each epoch boundary whether and where to persist a
// checkpoint. Policies are independent: the trainer consults every policy
// after every epoch, and more than one may save on the same epoch.
type Policy interface {
	// OnEpochEnd is called once after each completed epoch with the epoch
	// index, the epoch's computed metrics, and the snapshot to persist
	OnEpochEnd(epoch int, metrics map[string]float64, checkpoint *Checkpoint) error

	// Name returns the policy name for logging
	Name() string
}

// PeriodicPolicy saves an unconditional snapshot every Every epochs,
// retaining all such snapshots, and additionally rewrites a "last" snapshot
// after every epoch so the most recent state is always recoverable.
type PeriodicPolicy struct {
	Dir   string
	Every int
}

// NewPeriodicPolicy creates a periodic save policy
func NewPeriodicPolicy(dir string, every int) (*PeriodicPolicy, error) {
	if every <= 0 {
		return nil, fmt.Errorf("periodic save interval must be positive, got %d", every)
	}
	if dir == "" {
		return nil, fmt.Errorf("checkpoint directory must not be empty")
	}
	return &PeriodicPolicy{Dir: dir, Every: every}, nil
}

// OnEpochEnd writes the periodic and "last" snapshots
func (p *PeriodicPolicy) OnEpochEnd(epoch int, metrics map[string]float64, checkpoint *Checkpoint) error {
	if (epoch+1)%p.Every == 0 {
		path := filepath.Join(p.Dir, fmt.Sprintf("epoch_%04d.json", epoch))
		if err := Save(checkpoint, path); err != nil {
			return fmt.Errorf("periodic save failed: %v", err)
		}
	}

	lastPath := filepath.Join(p.Dir, "last.json")
	if err := Save(checkpoint, lastPath); err != nil {
		return fmt.Errorf("last-snapshot save failed: %v", err)
	}

	return nil
}

func (p *PeriodicPolicy) Name() string {
	return "Periodic"
}

// LastPath returns the path of the always-refreshed latest snapshot
func (p *PeriodicPolicy) LastPath() string {
	return filepath.Join(p.Dir, "last.json")
}

type rankedEntry struct {
	path  string
	value float64
}

// TopKPolicy retains up to K snapshots ranked by a monitored metric,
// discarding lower-ranked snapshots as better ones arrive
type TopKPolicy struct {
	Dir     string
	K       int
	Monitor string
	Mode    Mode

	kept []rankedEntry
}

// NewTopKPolicy creates a top-K save policy ranked by the monitored metric
func NewTopKPolicy(dir string, k int, monitor string, mode Mode) (*TopKPolicy, error) {
	if k <= 0 {
		return nil, fmt.Errorf("top-k retention count must be positive, got %d", k)
	}
	if monitor == "" {
		return nil, fmt.Errorf("monitored metric name must not be empty")
	}
	if dir == "" {
		return nil, fmt.Errorf("checkpoint directory must not be empty")
	}
	return &TopKPolicy{Dir: dir, K: k, Monitor: monitor, Mode: mode}, nil
}

// OnEpochEnd saves the snapshot if it ranks within the top K by the
// monitored metric, evicting the displaced worst snapshot. Epochs that did
// not produce the monitored metric (a run without a validation split) have
// nothing to rank and are skipped.
func (p *TopKPolicy) OnEpochEnd(epoch int, metrics map[string]float64, checkpoint *Checkpoint) error {
	value, ok := metrics[p.Monitor]
	if !ok {
		return nil
	}

	if len(p.kept) >= p.K && !p.better(value, p.kept[len(p.kept)-1].value) {
		return nil // Not in the top K
	}

	path := filepath.Join(p.Dir, fmt.Sprintf("best_epoch_%04d.json", epoch))
	if err := Save(checkpoint, path); err != nil {
		return fmt.Errorf("top-k save failed: %v", err)
	}

	p.kept = append(p.kept, rankedEntry{path: path, value: value})
	sort.SliceStable(p.kept, func(i, j int) bool {
		return p.better(p.kept[i].value, p.kept[j].value)
	})

	// Evict everything beyond the top K
	for len(p.kept) > p.K {
		evicted := p.kept[len(p.kept)-1]
		p.kept = p.kept[:len(p.kept)-1]
		if err := os.Remove(evicted.path); err != nil {
			return fmt.Errorf("failed to remove evicted checkpoint %s: %v", evicted.path, err)
		}
	}

	return nil
}

func (p *TopKPolicy) Name() string {
	return "TopK"
}

// Kept returns the currently retained checkpoint paths, best first
func (p *TopKPolicy) Kept() []string {
	paths := make([]string, len(p.kept))
	for i, e := range p.kept {
		paths[i] = e.path
	}
	return paths
}

func (p *TopKPolicy) better(a, b float64) bool {
	if p.Mode == ModeMax {
		return a > b
	}
	return a < b
}
