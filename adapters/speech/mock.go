package speech

import (
	"context"
	"sync"

	"github.com/Fixverse25/KonvoAI/domain/repositories"
)

// MockSpeechToText is a scripted recognizer for tests and local
// development without Azure credentials. Each call consumes the next
// scripted result; after the script runs out it keeps returning the
// last one.
type MockSpeechToText struct {
	mu        sync.Mutex
	Results   []repositories.Transcription
	Errs      []error
	Calls     int
	Languages []string
}

var _ repositories.SpeechToText = (*MockSpeechToText)(nil)

func (m *MockSpeechToText) Transcribe(ctx context.Context, audio []byte, languageHint string) (repositories.Transcription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	i := m.Calls
	m.Calls++
	m.Languages = append(m.Languages, languageHint)
	if i >= len(m.Results) {
		i = len(m.Results) - 1
	}
	if i < 0 {
		return repositories.Transcription{Status: repositories.StatusNoSpeech}, nil
	}
	var err error
	if i < len(m.Errs) {
		err = m.Errs[i]
	}
	return m.Results[i], err
}

// MockTextToSpeech returns a fixed audio payload for any text.
type MockTextToSpeech struct {
	mu    sync.Mutex
	Audio []byte
	Err   error
	Texts []string
}

var _ repositories.TextToSpeech = (*MockTextToSpeech)(nil)

func (m *MockTextToSpeech) Synthesize(ctx context.Context, text string, voice string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Texts = append(m.Texts, text)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Audio != nil {
		return m.Audio, nil
	}
	return []byte("mock-audio"), nil
}
