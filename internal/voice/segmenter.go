package voice

import "time"

// EventKind tags segmenter output.
type EventKind int

const (
	// EventPrompt fires when listening has gone on past the prompt
	// timeout without a stable speech onset: play the "didn't catch
	// that" prompt, submit nothing.
	EventPrompt EventKind = iota
	// EventSegment carries one finalized speech segment.
	EventSegment
)

// Segment is the assembled audio between a speech onset and the debounce
// deadline, with bounded pre/post padding for recognizer accuracy. Handed
// to transcription and then discarded; never persisted.
type Segment struct {
	Samples []int16
	Start   time.Time
	End     time.Time
}

// Event is a segmenter transition visible to the call controller.
type Event struct {
	Kind    EventKind
	Segment *Segment
}

// SegmenterConfig holds the timing tunables. The prompt timeout is
// deliberately shorter than the debounce: a user who never started
// speaking hears the help prompt, while a natural mid-sentence pause
// after real speech only extends the capture.
type SegmenterConfig struct {
	SampleRate    int
	PromptTimeout time.Duration // silence before the repeat prompt, default 2s
	Debounce      time.Duration // silence that finalizes a segment, default 3s
	OnsetFrames   int           // consecutive voice frames to open a segment
	Padding       time.Duration // pre/post padding kept around the speech
	MaxSegment    time.Duration // hard cap on one segment's audio
}

func (c SegmenterConfig) withDefaults() SegmenterConfig {
	if c.SampleRate == 0 {
		c.SampleRate = 16000
	}
	if c.PromptTimeout == 0 {
		c.PromptTimeout = 2 * time.Second
	}
	if c.Debounce == 0 {
		c.Debounce = 3 * time.Second
	}
	if c.OnsetFrames == 0 {
		c.OnsetFrames = 3
	}
	if c.Padding == 0 {
		c.Padding = 300 * time.Millisecond
	}
	if c.MaxSegment == 0 {
		c.MaxSegment = 30 * time.Second
	}
	return c
}

type phase int

const (
	phaseListening phase = iota
	phaseCapturing
	phaseArmed
)

// Segmenter buffers classified frames into at most one in-flight segment
// per call. All deadlines are evaluated against frame timestamps, so the
// machine is deterministic under test and immune to processing jitter.
type Segmenter struct {
	cfg SegmenterConfig

	phase       phase
	voiceStreak int

	preroll    []Frame       // recent frames kept for onset padding
	prerollDur time.Duration

	segment  []int16
	segStart time.Time
	segDur   time.Duration

	tail     []Frame   // frames accumulated while the gate is armed
	deadline time.Time // debounce deadline while armed
	promptAt time.Time // next prompt deadline while listening
}

func NewSegmenter(cfg SegmenterConfig) *Segmenter {
	return &Segmenter{cfg: cfg.withDefaults()}
}

// Process consumes one classified frame and returns any resulting events.
// Events are emitted in order; a finalized segment resets the machine to
// listening before the next frame is considered.
func (s *Segmenter) Process(frame Frame, state State) []Event {
	switch s.phase {
	case phaseListening:
		return s.processListening(frame, state)
	case phaseCapturing:
		return s.processCapturing(frame, state)
	default:
		return s.processArmed(frame, state)
	}
}

// Reset discards all buffered audio and timers.
func (s *Segmenter) Reset() {
	s.phase = phaseListening
	s.voiceStreak = 0
	s.preroll = nil
	s.prerollDur = 0
	s.segment = nil
	s.segDur = 0
	s.tail = nil
	s.promptAt = time.Time{}
}

func (s *Segmenter) processListening(frame Frame, state State) []Event {
	if s.promptAt.IsZero() {
		s.promptAt = frame.Time.Add(s.cfg.PromptTimeout)
	}

	s.pushPreroll(frame)

	if state == Voice {
		s.voiceStreak++
		if s.voiceStreak >= s.cfg.OnsetFrames {
			s.openSegment()
		}
		return nil
	}
	s.voiceStreak = 0

	if !frame.Time.Before(s.promptAt) {
		s.promptAt = frame.Time.Add(s.cfg.PromptTimeout)
		return []Event{{Kind: EventPrompt}}
	}
	return nil
}

func (s *Segmenter) processCapturing(frame Frame, state State) []Event {
	s.appendSegment(frame)

	if s.segDur >= s.cfg.MaxSegment {
		return s.finalize(frame.Time)
	}

	if state == Silent {
		s.phase = phaseArmed
		s.deadline = frame.Time.Add(s.cfg.Debounce)
		s.tail = nil
	}
	return nil
}

func (s *Segmenter) processArmed(frame Frame, state State) []Event {
	if state == Voice {
		// The pause was part of the utterance: keep its audio and
		// discard the countdown.
		for _, t := range s.tail {
			s.appendSegment(t)
		}
		s.tail = nil
		s.phase = phaseCapturing
		s.appendSegment(frame)
		return nil
	}

	s.tail = append(s.tail, frame)
	if !frame.Time.Before(s.deadline) {
		return s.finalize(frame.Time)
	}
	return nil
}

func (s *Segmenter) openSegment() {
	s.phase = phaseCapturing
	s.voiceStreak = 0
	s.segment = nil
	s.segDur = 0

	if len(s.preroll) > 0 {
		s.segStart = s.preroll[0].Time
		for _, f := range s.preroll {
			s.segment = append(s.segment, f.Samples...)
			s.segDur += f.Duration(s.cfg.SampleRate)
		}
	}
	s.preroll = nil
	s.prerollDur = 0
}

func (s *Segmenter) appendSegment(frame Frame) {
	if len(s.segment) == 0 && s.segDur == 0 {
		s.segStart = frame.Time
	}
	s.segment = append(s.segment, frame.Samples...)
	s.segDur += frame.Duration(s.cfg.SampleRate)
}

// finalize emits the segment with at most Padding worth of trailing
// silence, trimmed so the audio never exceeds MaxSegment, then resets
// to listening.
func (s *Segmenter) finalize(at time.Time) []Event {
	var trailing time.Duration
	for _, t := range s.tail {
		if trailing >= s.cfg.Padding {
			break
		}
		s.segment = append(s.segment, t.Samples...)
		trailing += t.Duration(s.cfg.SampleRate)
	}

	// Frame boundaries rarely land exactly on the cap; trim the
	// overshoot so downstream duration checks accept the segment.
	maxSamples := int(s.cfg.MaxSegment * time.Duration(s.cfg.SampleRate) / time.Second)
	if maxSamples > 0 && len(s.segment) > maxSamples {
		s.segment = s.segment[:maxSamples]
	}

	segment := &Segment{Samples: s.segment, Start: s.segStart, End: at}

	s.phase = phaseListening
	s.voiceStreak = 0
	s.segment = nil
	s.segDur = 0
	s.tail = nil
	s.preroll = nil
	s.prerollDur = 0
	s.promptAt = at.Add(s.cfg.PromptTimeout)

	return []Event{{Kind: EventSegment, Segment: segment}}
}

// pushPreroll keeps a bounded window of recent frames so the segment
// includes a little audio before the detected onset.
func (s *Segmenter) pushPreroll(frame Frame) {
	s.preroll = append(s.preroll, frame)
	s.prerollDur += frame.Duration(s.cfg.SampleRate)
	for len(s.preroll) > 1 && s.prerollDur-s.preroll[0].Duration(s.cfg.SampleRate) >= s.cfg.Padding {
		s.prerollDur -= s.preroll[0].Duration(s.cfg.SampleRate)
		s.preroll = s.preroll[1:]
	}
}
