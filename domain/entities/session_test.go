package entities

import (
	"strings"
	"testing"
	"time"
)

func TestNewSession(t *testing.T) {
	session := NewSession("sess-123", "en-US")

	if session.ID != "sess-123" {
		t.Errorf("Expected id sess-123, got %s", session.ID)
	}
	if len(session.Turns) != 0 {
		t.Errorf("Expected empty history, got %d turns", len(session.Turns))
	}
	if session.Language != "en-US" {
		t.Errorf("Expected language en-US, got %s", session.Language)
	}
	if session.CreatedAt.IsZero() || session.LastActivityAt.IsZero() {
		t.Error("Expected timestamps to be set")
	}
}

func TestAppendIsOrdered(t *testing.T) {
	session := NewSession("sess-123", "en-US")

	session.Append(RoleUser, "My charger shows error E42", SourceTyped)
	session.Append(RoleAssistant, "Let's check the connector first.", SourceTyped)

	if len(session.Turns) != 2 {
		t.Fatalf("Expected 2 turns, got %d", len(session.Turns))
	}
	if session.Turns[0].Role != RoleUser {
		t.Errorf("Expected first turn to be user, got %s", session.Turns[0].Role)
	}
	if session.Turns[1].Role != RoleAssistant {
		t.Errorf("Expected second turn to be assistant, got %s", session.Turns[1].Role)
	}
	if session.Turns[1].Timestamp.Before(session.Turns[0].Timestamp) {
		t.Error("Turn timestamps must be chronological")
	}
}

func TestTouchRefreshesActivity(t *testing.T) {
	session := NewSession("sess-123", "en-US")
	before := session.LastActivityAt

	time.Sleep(10 * time.Millisecond)
	session.Touch()

	if !session.LastActivityAt.After(before) {
		t.Error("Touch should move LastActivityAt forward")
	}
}

func TestWindowCapsHistory(t *testing.T) {
	session := NewSession("sess-123", "en-US")
	for i := 0; i < 30; i++ {
		session.Append(RoleUser, "question", SourceTyped)
		session.Append(RoleAssistant, "answer", SourceTyped)
	}

	window := session.Window(20)
	if len(window) != 20 {
		t.Errorf("Expected window of 20 turns, got %d", len(window))
	}
	if window[len(window)-1].Role != RoleAssistant {
		t.Error("Window should end with the most recent turn")
	}
}

func TestWindowDropsEmptyTurns(t *testing.T) {
	session := NewSession("sess-123", "en-US")
	session.Append(RoleUser, "   ", SourceTyped)
	session.Append(RoleUser, "hello", SourceTyped)

	window := session.Window(20)
	if len(window) != 1 {
		t.Fatalf("Expected 1 turn after dropping empties, got %d", len(window))
	}
	if window[0].Content != "hello" {
		t.Errorf("Expected content hello, got %q", window[0].Content)
	}
}

func TestWindowMergesConsecutiveRoles(t *testing.T) {
	session := NewSession("sess-123", "en-US")
	session.Append(RoleUser, "first", SourceVoice)
	session.Append(RoleUser, "second", SourceVoice)
	session.Append(RoleAssistant, "reply", SourceVoice)

	window := session.Window(20)
	if len(window) != 2 {
		t.Fatalf("Expected merged window of 2 turns, got %d", len(window))
	}
	if !strings.Contains(window[0].Content, "first") || !strings.Contains(window[0].Content, "second") {
		t.Errorf("Expected merged user content, got %q", window[0].Content)
	}
}

func TestWindowTruncatesLongContent(t *testing.T) {
	session := NewSession("sess-123", "en-US")
	session.Append(RoleUser, strings.Repeat("a", maxTurnRunes+100), SourceTyped)

	window := session.Window(20)
	if !strings.HasSuffix(window[0].Content, truncationMarker) {
		t.Error("Expected oversized content to carry the truncation marker")
	}
	if len([]rune(window[0].Content)) > maxTurnRunes+len([]rune(truncationMarker)) {
		t.Errorf("Truncated content too long: %d runes", len([]rune(window[0].Content)))
	}
}

func TestWindowDoesNotMutateHistory(t *testing.T) {
	session := NewSession("sess-123", "en-US")
	long := strings.Repeat("b", maxTurnRunes+1)
	session.Append(RoleUser, long, SourceTyped)

	session.Window(20)

	if session.Turns[0].Content != long {
		t.Error("Window must not mutate the stored history")
	}
}

func TestValidate(t *testing.T) {
	session := NewSession("sess-123", "en-US")
	if err := session.Validate(); err != nil {
		t.Errorf("Valid session should pass validation, got: %v", err)
	}

	session.ID = ""
	if err := session.Validate(); err == nil {
		t.Error("Session without id should fail validation")
	}

	session.ID = "sess-123"
	session.Turns = append(session.Turns, Turn{Role: Role("system"), Content: "x"})
	if err := session.Validate(); err == nil {
		t.Error("Session with unknown role should fail validation")
	}
}
