package voice

// State is the per-frame voice activity classification.
type State int

const (
	Silent State = iota
	Voice
)

func (s State) String() string {
	if s == Voice {
		return "voice"
	}
	return "silent"
}

const (
	// DefaultThreshold is the activation level on the 0-255 energy scale.
	// Tuned against the widget's capture path; adjust per deployment.
	DefaultThreshold = 30.0

	// defaultSmoothing is the weight of the current frame in the rolling
	// energy estimate.
	defaultSmoothing = 0.35
)

// Detector classifies frames as voice or silence from a smoothed energy
// estimate. One Detector serves one call; Classify never blocks.
type Detector struct {
	threshold float64
	smoothing float64
	energy    float64
	primed    bool
}

// NewDetector returns a detector with the given activation threshold on
// the 0-255 scale. A zero or negative threshold selects the default.
func NewDetector(threshold float64) *Detector {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &Detector{threshold: threshold, smoothing: defaultSmoothing}
}

// Classify returns the voice state for one frame.
func (d *Detector) Classify(frame Frame) State {
	level := frameLevel(frame.Samples)
	if !d.primed {
		d.energy = level
		d.primed = true
	} else {
		d.energy = d.smoothing*level + (1-d.smoothing)*d.energy
	}
	if d.energy >= d.threshold {
		return Voice
	}
	return Silent
}

// Reset clears the smoothing state between calls.
func (d *Detector) Reset() {
	d.energy = 0
	d.primed = false
}

// frameLevel maps mean absolute amplitude onto the 0-255 scale the
// threshold is expressed in.
func frameLevel(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		if s < 0 {
			sum -= float64(s)
		} else {
			sum += float64(s)
		}
	}
	mean := sum / float64(len(samples))
	return mean / 32768.0 * 255.0
}
