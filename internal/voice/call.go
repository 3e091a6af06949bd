package voice

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// CallState is the lifecycle of one continuous call.
type CallState int

const (
	CallIdle CallState = iota
	CallActive
	CallEnded
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "idle"
	case CallActive:
		return "active"
	default:
		return "ended"
	}
}

// TurnResult is what one finalized segment produced downstream. When
// Prompted is set the segment yielded no intelligible speech and Audio
// carries the repeat prompt instead of a reply.
type TurnResult struct {
	Transcription string
	Reply         string
	Audio         []byte
	Prompted      bool
}

// CallHooks deliver pipeline output back to the transport. Hooks are
// only invoked while the call is active; anything resolving after
// hang-up is dropped.
type CallHooks struct {
	OnResult func(result *TurnResult)
	OnPrompt func(audio []byte)
	OnEnded  func(err error)
}

// CallConfig wires one call together.
type CallConfig struct {
	Detector  *Detector
	Segmenter *Segmenter
	// HandleSegment runs a finalized WAV segment through
	// transcription, orchestration, and synthesis.
	HandleSegment func(ctx context.Context, wav []byte) (*TurnResult, error)
	// PromptAudio synthesizes the localized "didn't catch that" prompt.
	PromptAudio func(ctx context.Context) ([]byte, error)
	Hooks       CallHooks
	Logger      *zap.Logger
	SampleRate  int
	// MaxFailures is the consecutive pipeline-failure count that ends
	// the call and signals fallback to typed chat. Default 3.
	MaxFailures int
}

// Call supervises one continuous voice interaction: frames in, VAD,
// segmentation, and sequential segment handoff. Segments are processed
// strictly in onset order; a hang-up cancels in-flight work and releases
// the capture source exactly once on every exit path.
type Call struct {
	cfg    CallConfig
	logger *zap.Logger

	mu     sync.Mutex
	state  CallState
	cancel context.CancelFunc
	source CaptureSource

	endOnce  sync.Once
	done     chan struct{}
	failures int
}

// NewCall creates an idle call. Start acquires the capture source and
// begins processing.
func NewCall(cfg CallConfig) *Call {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.MaxFailures == 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Detector == nil {
		cfg.Detector = NewDetector(0)
	}
	if cfg.Segmenter == nil {
		cfg.Segmenter = NewSegmenter(SegmenterConfig{SampleRate: cfg.SampleRate})
	}
	return &Call{
		cfg:    cfg,
		logger: cfg.Logger,
		state:  CallIdle,
		done:   make(chan struct{}),
	}
}

// Start transitions Idle -> Active and begins consuming the source. A nil
// source means capture could not be acquired and the caller should fall
// back to typed chat.
func (c *Call) Start(ctx context.Context, source CaptureSource) error {
	if source == nil {
		return ErrCaptureUnavailable
	}

	c.mu.Lock()
	if c.state != CallIdle {
		c.mu.Unlock()
		return ErrCallEnded
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.state = CallActive
	c.cancel = cancel
	c.source = source
	c.mu.Unlock()

	go c.run(runCtx, source)
	return nil
}

// HangUp ends the call: cancels in-flight work and releases resources.
// Safe to call multiple times and from any goroutine.
func (c *Call) HangUp() {
	c.end(nil)
}

// State returns the current lifecycle state.
func (c *Call) State() CallState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Done closes when the call has ended and resources are released.
func (c *Call) Done() <-chan struct{} { return c.done }

func (c *Call) run(ctx context.Context, source CaptureSource) {
	for {
		select {
		case <-ctx.Done():
			c.end(nil)
			return
		case frame, ok := <-source.Frames():
			if !ok {
				c.end(nil)
				return
			}
			state := c.cfg.Detector.Classify(frame)
			for _, event := range c.cfg.Segmenter.Process(frame, state) {
				if ended := c.handleEvent(ctx, event); ended {
					return
				}
			}
		}
	}
}

// handleEvent routes one segmenter event; reports whether the call ended.
func (c *Call) handleEvent(ctx context.Context, event Event) bool {
	switch event.Kind {
	case EventPrompt:
		c.playPrompt(ctx)
	case EventSegment:
		wav := EncodeWAV(event.Segment.Samples, c.sampleRate())
		result, err := c.cfg.HandleSegment(ctx, wav)
		if ctx.Err() != nil {
			// Hung up while the segment was in flight; the result, if
			// any, must not be played back.
			c.end(nil)
			return true
		}
		if err != nil {
			c.failures++
			c.logger.Warn("segment pipeline failed",
				zap.Int("consecutive", c.failures),
				zap.Error(err))
			if c.failures >= c.cfg.MaxFailures {
				c.end(err)
				return true
			}
			return false
		}
		c.failures = 0
		c.deliver(result)
	}
	return c.State() == CallEnded
}

func (c *Call) playPrompt(ctx context.Context) {
	if c.cfg.PromptAudio == nil {
		return
	}
	audio, err := c.cfg.PromptAudio(ctx)
	if err != nil {
		// Prompt synthesis failing is not worth ending the call over.
		c.logger.Warn("prompt synthesis failed", zap.Error(err))
		return
	}
	if c.State() != CallActive {
		return
	}
	if c.cfg.Hooks.OnPrompt != nil {
		c.cfg.Hooks.OnPrompt(audio)
	}
}

// deliver hands a pipeline result to the transport unless the user
// already hung up, in which case playback is a no-op.
func (c *Call) deliver(result *TurnResult) {
	if result == nil || c.State() != CallActive {
		return
	}
	if result.Prompted {
		if c.cfg.Hooks.OnPrompt != nil {
			c.cfg.Hooks.OnPrompt(result.Audio)
		}
		return
	}
	if c.cfg.Hooks.OnResult != nil {
		c.cfg.Hooks.OnResult(result)
	}
}

func (c *Call) end(reason error) {
	c.endOnce.Do(func() {
		c.mu.Lock()
		c.state = CallEnded
		cancel := c.cancel
		source := c.source
		c.mu.Unlock()

		if cancel != nil {
			cancel()
		}
		if source != nil {
			if err := source.Close(); err != nil {
				c.logger.Warn("capture source close failed", zap.Error(err))
			}
		}
		if c.cfg.Hooks.OnEnded != nil {
			c.cfg.Hooks.OnEnded(reason)
		}
		close(c.done)
	})
}

func (c *Call) sampleRate() int {
	if c.cfg.SampleRate > 0 {
		return c.cfg.SampleRate
	}
	return 16000
}
