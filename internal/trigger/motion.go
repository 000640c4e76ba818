package trigger

import (
	"math"
	"sync"
	"time"

	"github.com/RevCBH/siren/internal/escalation"
)

const (
	// DefaultMotionSensitivity is the acceleration magnitude (m/s²) a shake must exceed
	DefaultMotionSensitivity = 15.0

	// DefaultMotionWindow is the number of previous samples in the rolling average
	DefaultMotionWindow = 10

	// spikeFactor scales sensitivity into the required jump above the rolling average
	spikeFactor = 0.6
)

// MotionDetector classifies acceleration samples as shakes. A sample is a
// shake when it exceeds the sensitivity and exceeds the rolling average of
// the previous samples by more than 0.6 × sensitivity.
type MotionDetector struct {
	session     string
	sink        Sink
	sensitivity float64
	window      int

	mu      sync.Mutex
	samples []float64
	next    int
	full    bool
	now     func() time.Time
}

// NewMotionDetector creates a detector. Non-positive sensitivity or window
// fall back to the defaults.
func NewMotionDetector(sessionID string, sink Sink, sensitivity float64, window int) *MotionDetector {
	if sensitivity <= 0 || math.IsNaN(sensitivity) || math.IsInf(sensitivity, 0) {
		sensitivity = DefaultMotionSensitivity
	}
	if window <= 0 {
		window = DefaultMotionWindow
	}
	return &MotionDetector{
		session:     sessionID,
		sink:        sink,
		sensitivity: sensitivity,
		window:      window,
		samples:     make([]float64, window),
		now:         time.Now,
	}
}

func (d *MotionDetector) Session() string { return d.session }

func (d *MotionDetector) Kind() escalation.TriggerKind { return escalation.TriggerMotion }

// Sensitivity returns the configured threshold
func (d *MotionDetector) Sensitivity() float64 { return d.sensitivity }

// Sample observes a three-axis accelerometer reading
func (d *MotionDetector) Sample(x, y, z float64, at time.Time) (bool, error) {
	return d.Observe(math.Sqrt(x*x+y*y+z*z), at)
}

// Observe feeds one magnitude sample. It returns true when the sample was
// classified as a shake and forwarded to the sink. Malformed samples are
// ignored.
func (d *MotionDetector) Observe(magnitude float64, at time.Time) (bool, error) {
	if math.IsNaN(magnitude) || math.IsInf(magnitude, 0) || magnitude < 0 {
		return false, nil
	}

	d.mu.Lock()
	avg, ok := d.average()
	d.push(magnitude)
	d.mu.Unlock()

	// The first sample only establishes a baseline
	if !ok {
		return false, nil
	}
	if magnitude <= d.sensitivity || magnitude-avg <= spikeFactor*d.sensitivity {
		return false, nil
	}

	if at.IsZero() {
		at = d.now()
	}
	err := d.sink.OnTrigger(d.session, escalation.TriggerEvent{
		Kind:  escalation.TriggerMotion,
		At:    at,
		Value: magnitude,
	})
	return err == nil, err
}

// average returns the mean of the buffered samples. Caller holds mu.
func (d *MotionDetector) average() (float64, bool) {
	n := d.next
	if d.full {
		n = d.window
	}
	if n == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range d.samples[:n] {
		sum += s
	}
	return sum / float64(n), true
}

func (d *MotionDetector) push(v float64) {
	d.samples[d.next] = v
	d.next++
	if d.next == d.window {
		d.next = 0
		d.full = true
	}
}
