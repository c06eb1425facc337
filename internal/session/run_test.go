package session

import (
	"strings"
	"testing"
	"time"
)

func TestRunCapturesOutputOnCleanExit(t *testing.T) {
	out, err := Run("echo run-output", nil, "", time.Second, WithAppName("controltape-test"))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !strings.Contains(string(out), "run-output") {
		t.Fatalf("expected output to contain run-output, got %q", out)
	}
}

func TestRunReturnsProcessErrorOnNonzeroExit(t *testing.T) {
	_, err := Run("sh -c 'exit 3'", nil, "", time.Second, WithAppName("controltape-test"))
	if err == nil {
		t.Fatalf("expected an error for a nonzero exit status")
	}
}
