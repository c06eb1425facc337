package match

import "testing"

func TestDefaultStdinMatcherTrimsCRLF(t *testing.T) {
	if !DefaultStdinMatcher([]byte("status\r\n"), []byte("status")) {
		t.Fatalf("expected trailing CRLF to be ignored")
	}
	if DefaultStdinMatcher([]byte("status"), []byte("other")) {
		t.Fatalf("expected mismatch")
	}
}

func TestDefaultCommandMatcherNormalizes(t *testing.T) {
	expected := []string{"demo", "\x1b[31m--flag\x1b[0m"}
	actual := []string{"demo", "--flag"}
	if !DefaultCommandMatcher(expected, actual) {
		t.Fatalf("expected ANSI-stripped command match")
	}
}

func TestExactKeyPureFunction(t *testing.T) {
	b := NewKeyBuilder(nil, nil, nil, nil)
	ctx := MatchingContext{Program: "demo", Env: map[string]string{"A": "1"}, Cwd: "/x", Prompt: "$ "}
	k1 := b.ExactKey(ctx, []byte("status\n"))
	k2 := b.ExactKey(ctx, []byte("status\n"))
	if k1 != k2 {
		t.Fatalf("ExactKey is not pure: %q != %q", k1, k2)
	}
}

func TestFindMatchesExactHit(t *testing.T) {
	b := NewKeyBuilder(nil, nil, nil, nil)
	ctx := MatchingContext{Program: "demo", Cwd: "/x", Prompt: "$ "}
	key := b.ExactKey(ctx, []byte("status\n"))
	exact := map[string][]Candidate{key: {{TapeIdx: 0, ExchangeIdx: 0}}}
	got := b.FindMatches(exact, nil, nil, ctx, []byte("status\n"))
	if len(got) != 1 || got[0].TapeIdx != 0 {
		t.Fatalf("expected exact hit, got %v", got)
	}
}

func TestFindMatchesBucketFallback(t *testing.T) {
	b := NewKeyBuilder(nil, nil, nil, nil)
	ctx := MatchingContext{Program: "demo", Cwd: "/x", Prompt: "$ ", Env: map[string]string{"A": "1"}}
	bucketKey := b.BucketKey(ctx)
	cand := Candidate{TapeIdx: 1, ExchangeIdx: 2}
	bucket := map[string][]Candidate{bucketKey: {cand}}
	lookup := func(c Candidate) CandidateInfo {
		return CandidateInfo{
			Ctx:   MatchingContext{Program: "demo", Cwd: "/x", Prompt: "$ ", Env: map[string]string{"A": "1"}},
			Stdin: []byte("status\n"),
		}
	}
	got := b.FindMatches(nil, bucket, lookup, ctx, []byte("status\n"))
	if len(got) != 1 || got[0] != cand {
		t.Fatalf("expected bucket fallback hit, got %v", got)
	}
}

func TestFindMatchesNoneWhenNoOverlap(t *testing.T) {
	b := NewKeyBuilder(nil, nil, nil, nil)
	ctx := MatchingContext{Program: "demo", Cwd: "/x", Prompt: "$ "}
	got := b.FindMatches(nil, nil, nil, ctx, []byte("status\n"))
	if len(got) != 0 {
		t.Fatalf("expected no matches, got %v", got)
	}
}
