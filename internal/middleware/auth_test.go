package middleware

import (
	"testing"

	"github.com/google/uuid"
)

func TestRunTokenRoundTrip(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	runID := uuid.New()

	token, err := auth.GenerateRunToken(runID)
	if err != nil {
		t.Fatalf("GenerateRunToken: %v", err)
	}

	got, err := auth.VerifyRunToken(token)
	if err != nil {
		t.Fatalf("VerifyRunToken: %v", err)
	}
	if got != runID {
		t.Errorf("run ID = %s, want %s", got, runID)
	}
}

func TestVerifyRunTokenRejectsWrongSecret(t *testing.T) {
	token, err := NewJWTAuth("secret-a").GenerateRunToken(uuid.New())
	if err != nil {
		t.Fatalf("GenerateRunToken: %v", err)
	}

	if _, err := NewJWTAuth("secret-b").VerifyRunToken(token); err == nil {
		t.Fatal("expected verification failure with a different secret")
	}
}

func TestVerifyRunTokenRejectsGarbage(t *testing.T) {
	auth := NewJWTAuth("test-secret")
	for _, bad := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := auth.VerifyRunToken(bad); err == nil {
			t.Errorf("expected failure for token %q", bad)
		}
	}
}
