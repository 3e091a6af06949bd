package auth

import (
	"testing"
)

func TestIssueAndValidateWidgetToken(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret")
	if err != nil {
		t.Fatalf("NewTokenIssuer failed: %v", err)
	}

	token, err := issuer.IssueWidgetToken("sess-42", "https://fixverse.se")
	if err != nil {
		t.Fatalf("IssueWidgetToken failed: %v", err)
	}

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		t.Fatalf("ValidateToken failed: %v", err)
	}
	if claims.SessionID != "sess-42" {
		t.Errorf("Unexpected session ID %q", claims.SessionID)
	}
	if claims.Origin != "https://fixverse.se" {
		t.Errorf("Unexpected origin %q", claims.Origin)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	issuer, _ := NewTokenIssuer("secret-a")
	other, _ := NewTokenIssuer("secret-b")

	token, err := issuer.IssueWidgetToken("sess-1", "")
	if err != nil {
		t.Fatalf("IssueWidgetToken failed: %v", err)
	}

	if _, err := other.ValidateToken(token); err == nil {
		t.Error("Token signed with a different secret must not validate")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	issuer, _ := NewTokenIssuer("secret")

	if _, err := issuer.ValidateToken("not.a.token"); err == nil {
		t.Error("Garbage token must not validate")
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	if _, err := NewTokenIssuer(""); err == nil {
		t.Error("Expected error for empty secret")
	}
}
