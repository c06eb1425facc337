package session

import (
	"regexp"
	"testing"
	"time"

	"github.com/tapehouse/controltape/internal/config"
)

func TestSessionHistoryAndSaveProgramConfig(t *testing.T) {
	s, err := New("sh -c 'printf ready\\\\n; sleep 5'", WithPersist(false), WithAppName("controltape-test"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer s.Close(true)

	if _, err := s.Expect([]Pattern{RegexPattern(regexp.MustCompile(`ready`))}, time.Second); err != nil {
		t.Fatalf("Expect: %v", err)
	}

	hist := s.History()
	if len(hist) != 1 || hist[0].Pattern != "ready" {
		t.Fatalf("expected one history entry for pattern \"ready\", got %+v", hist)
	}

	dir := t.TempDir()
	if err := s.SaveProgramConfig(dir, "demo-program"); err != nil {
		t.Fatalf("SaveProgramConfig: %v", err)
	}

	programs := config.NewPrograms(dir)
	cfg, err := programs.Get("demo-program")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(cfg.ExpectSequence) != 1 || cfg.ExpectSequence[0] != "ready" {
		t.Fatalf("unexpected saved expect sequence: %+v", cfg.ExpectSequence)
	}
}
