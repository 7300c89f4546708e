package training

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

// ScalarPoint is one entry of a named scalar time series
type ScalarPoint struct {
	Step  int     `json:"step"`
	Value float64 `json:"value"`
}

// ExperimentLogger records named scalar time series (loss curves, learning
// rates, metric values) during a run. Series are append-only and queryable,
// and can be flushed to a JSON-lines file for offline inspection.
type ExperimentLogger struct {
	mu     sync.Mutex
	series map[string][]ScalarPoint
	order  []string // Series names in first-logged order
}

// NewExperimentLogger creates an empty logger
func NewExperimentLogger() *ExperimentLogger {
	return &ExperimentLogger{
		series: make(map[string][]ScalarPoint),
	}
}

// LogScalar appends a value to the named series at the given step index
func (el *ExperimentLogger) LogScalar(name string, step int, value float64) {
	el.mu.Lock()
	defer el.mu.Unlock()

	if _, exists := el.series[name]; !exists {
		el.order = append(el.order, name)
	}
	el.series[name] = append(el.series[name], ScalarPoint{Step: step, Value: value})
}

// Series returns a copy of the named series, or nil if it was never logged
func (el *ExperimentLogger) Series(name string) []ScalarPoint {
	el.mu.Lock()
	defer el.mu.Unlock()

	points, exists := el.series[name]
	if !exists {
		return nil
	}
	out := make([]ScalarPoint, len(points))
	copy(out, points)
	return out
}

// Names returns the series names in first-logged order
func (el *ExperimentLogger) Names() []string {
	el.mu.Lock()
	defer el.mu.Unlock()

	out := make([]string, len(el.order))
	copy(out, el.order)
	return out
}

// WriteJSONL flushes every series to a JSON-lines file, one record per
// logged point
func (el *ExperimentLogger) WriteJSONL(path string) error {
	el.mu.Lock()
	defer el.mu.Unlock()

	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create scalar log file: %v", err)
	}
	defer file.Close()

	type record struct {
		Series string  `json:"series"`
		Step   int     `json:"step"`
		Value  float64 `json:"value"`
	}

	encoder := json.NewEncoder(file)
	for _, name := range el.order {
		for _, point := range el.series[name] {
			if err := encoder.Encode(record{Series: name, Step: point.Step, Value: point.Value}); err != nil {
				return fmt.Errorf("failed to encode scalar record: %v", err)
			}
		}
	}
	return nil
}
