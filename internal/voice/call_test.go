package voice

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakeSource feeds pre-built frames and counts how many times it was
// released.
type fakeSource struct {
	ch        chan Frame
	closeOnce sync.Once
	closes    int32
}

func newFakeSource(buffer int) *fakeSource {
	return &fakeSource{ch: make(chan Frame, buffer)}
}

func (f *fakeSource) Frames() <-chan Frame { return f.ch }

func (f *fakeSource) Close() error {
	atomic.AddInt32(&f.closes, 1)
	f.closeOnce.Do(func() { close(f.ch) })
	return nil
}

func (f *fakeSource) closeCount() int32 { return atomic.LoadInt32(&f.closes) }

// utteranceFrames is a 1s voice run followed by enough silence to pass
// the debounce deadline.
func utteranceFrames(start time.Time) []Frame {
	frames := make([]Frame, 0, 250)
	at := start
	for i := 0; i < 50; i++ {
		frames = append(frames, pcmFrame(16000, frameSamples, at))
		at = at.Add(frameStep)
	}
	for i := 0; i < 200; i++ {
		frames = append(frames, pcmFrame(50, frameSamples, at))
		at = at.Add(frameStep)
	}
	return frames
}

func waitFor(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatalf("Timed out waiting for %s", what)
	}
}

func TestCallStartWithoutSourceFails(t *testing.T) {
	call := NewCall(CallConfig{SampleRate: testRate})

	if err := call.Start(context.Background(), nil); !errors.Is(err, ErrCaptureUnavailable) {
		t.Errorf("Expected ErrCaptureUnavailable, got %v", err)
	}
	if call.State() != CallIdle {
		t.Errorf("Failed start must leave the call idle, got %s", call.State())
	}
}

func TestCallProcessesSegmentAndDeliversResult(t *testing.T) {
	source := newFakeSource(512)
	gotResult := make(chan *TurnResult, 1)
	var handled int32

	call := NewCall(CallConfig{
		SampleRate: testRate,
		HandleSegment: func(ctx context.Context, wav []byte) (*TurnResult, error) {
			atomic.AddInt32(&handled, 1)
			if _, err := ParseWAVInfo(wav); err != nil {
				t.Errorf("Segment handed off is not valid WAV: %v", err)
			}
			return &TurnResult{Transcription: "hello", Reply: "hi there"}, nil
		},
		Hooks: CallHooks{
			OnResult: func(r *TurnResult) { gotResult <- r },
		},
	})

	for _, f := range utteranceFrames(time.Now()) {
		source.ch <- f
	}
	if err := call.Start(context.Background(), source); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if call.State() != CallActive {
		t.Errorf("Expected active call, got %s", call.State())
	}

	select {
	case r := <-gotResult:
		if r.Reply != "hi there" {
			t.Errorf("Unexpected reply %q", r.Reply)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for turn result")
	}
	if n := atomic.LoadInt32(&handled); n != 1 {
		t.Errorf("Expected exactly one segment handoff, got %d", n)
	}

	call.HangUp()
	waitFor(t, call.Done(), "call end")
	if source.closeCount() != 1 {
		t.Errorf("Expected source released exactly once, got %d", source.closeCount())
	}
}

func TestCallHangUpDuringInFlightSegment(t *testing.T) {
	// Scenario: user hangs up while transcription is still running. The
	// late result must not be played back and resources are released
	// exactly once.
	source := newFakeSource(512)
	started := make(chan struct{})
	release := make(chan struct{})
	var delivered int32

	call := NewCall(CallConfig{
		SampleRate: testRate,
		HandleSegment: func(ctx context.Context, wav []byte) (*TurnResult, error) {
			close(started)
			<-release
			return &TurnResult{Transcription: "late", Reply: "too late"}, nil
		},
		Hooks: CallHooks{
			OnResult: func(r *TurnResult) { atomic.AddInt32(&delivered, 1) },
			OnPrompt: func(audio []byte) { atomic.AddInt32(&delivered, 1) },
		},
	})

	for _, f := range utteranceFrames(time.Now()) {
		source.ch <- f
	}
	if err := call.Start(context.Background(), source); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	waitFor(t, started, "segment handoff")
	call.HangUp()
	close(release)

	waitFor(t, call.Done(), "call end")
	if call.State() != CallEnded {
		t.Errorf("Expected ended state, got %s", call.State())
	}
	if n := atomic.LoadInt32(&delivered); n != 0 {
		t.Errorf("Expected no playback after hang-up, got %d deliveries", n)
	}
	if source.closeCount() != 1 {
		t.Errorf("Expected source released exactly once, got %d", source.closeCount())
	}
}

func TestCallEndsAfterPersistentFailures(t *testing.T) {
	source := newFakeSource(2048)
	endedWith := make(chan error, 1)

	call := NewCall(CallConfig{
		SampleRate:  testRate,
		MaxFailures: 2,
		HandleSegment: func(ctx context.Context, wav []byte) (*TurnResult, error) {
			return nil, errors.New("recognizer down")
		},
		Hooks: CallHooks{
			OnEnded: func(err error) { endedWith <- err },
		},
	})

	start := time.Now()
	for i := 0; i < 3; i++ {
		for _, f := range utteranceFrames(start) {
			source.ch <- f
		}
		start = start.Add(6 * time.Second)
	}
	if err := call.Start(context.Background(), source); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	select {
	case err := <-endedWith:
		if err == nil {
			t.Error("Expected the ending error to surface for the fallback signal")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for call to end after persistent failures")
	}
	if call.State() != CallEnded {
		t.Errorf("Expected ended state, got %s", call.State())
	}
}

func TestCallEndsWhenSourceCloses(t *testing.T) {
	source := newFakeSource(8)
	call := NewCall(CallConfig{
		SampleRate:    testRate,
		HandleSegment: func(ctx context.Context, wav []byte) (*TurnResult, error) { return nil, nil },
	})

	if err := call.Start(context.Background(), source); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	source.Close()

	waitFor(t, call.Done(), "call end")
	if call.State() != CallEnded {
		t.Errorf("Expected ended state after stream close, got %s", call.State())
	}
}

func TestCallStartTwiceFails(t *testing.T) {
	source := newFakeSource(8)
	call := NewCall(CallConfig{
		SampleRate:    testRate,
		HandleSegment: func(ctx context.Context, wav []byte) (*TurnResult, error) { return nil, nil },
	})

	if err := call.Start(context.Background(), source); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer call.HangUp()

	if err := call.Start(context.Background(), newFakeSource(1)); !errors.Is(err, ErrCallEnded) {
		t.Errorf("Expected ErrCallEnded on double start, got %v", err)
	}
}
