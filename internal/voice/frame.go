// Package voice implements the call-side audio pipeline: voice activity
// detection, silence-debounced segmentation, and the call state machine
// that routes finalized segments into the conversation flow.
package voice

import (
	"errors"
	"time"
)

// Frame is one timestamped chunk of 16 kHz mono PCM samples. Frames are
// ephemeral: owned by the active call and discarded once classified and
// assembled.
type Frame struct {
	Samples []int16
	Time    time.Time
}

// Duration returns the frame length at the given sample rate.
func (f Frame) Duration(sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(len(f.Samples)) * time.Second / time.Duration(sampleRate)
}

// CaptureSource is a live audio stream feeding a call. The channel closes
// when the stream ends; Close releases the underlying device or transport
// and must be safe to call more than once.
type CaptureSource interface {
	Frames() <-chan Frame
	Close() error
}

// ErrCaptureUnavailable means the audio source could not be acquired
// (microphone permission denied, transport gone). Voice mode is
// unavailable; callers fall back to typed chat.
var ErrCaptureUnavailable = errors.New("audio capture unavailable")

// ErrCallEnded is returned for operations on a call that already ended.
var ErrCallEnded = errors.New("call already ended")
