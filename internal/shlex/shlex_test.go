package shlex

import (
	"reflect"
	"testing"
)

func TestSplitBasic(t *testing.T) {
	got := Split("demo --flag value")
	want := []string{"demo", "--flag", "value"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSplitRespectsQuotes(t *testing.T) {
	got := Split(`demo "hello world" 'single quoted'`)
	want := []string{"demo", "hello world", "single quoted"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestSplitUnbalancedQuoteFallsBackToWholeString(t *testing.T) {
	cmd := `demo "unterminated`
	got := Split(cmd)
	want := []string{cmd}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
