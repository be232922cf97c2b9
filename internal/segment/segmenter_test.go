package segment

import (
	"strings"
	"testing"
)

func TestFeedEmitsCompletedSentences(t *testing.T) {
	s := New(DefaultOptions())

	got := s.Feed("Hello there. How are you? Fine.")
	if len(got) != 2 {
		t.Fatalf("expected 2 utterances, got %d: %v", len(got), got)
	}
	if got[0].Text != "Hello there." || got[0].Seq != 0 {
		t.Fatalf("unexpected first utterance: %+v", got[0])
	}
	if got[1].Text != "How are you?" || got[1].Seq != 1 {
		t.Fatalf("unexpected second utterance: %+v", got[1])
	}

	tail, ok := s.Flush()
	if !ok {
		t.Fatal("expected trailing utterance from flush")
	}
	if tail.Text != "Fine." || tail.Seq != 2 {
		t.Fatalf("unexpected trailing utterance: %+v", tail)
	}
}

func TestFeedTokenByToken(t *testing.T) {
	s := New(DefaultOptions())

	var all []Utterance
	for _, tok := range []string{"Hel", "lo there", ". ", "How are", " you? ", "Fine", "."} {
		all = append(all, s.Feed(tok)...)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 utterances, got %d: %v", len(all), all)
	}
	if all[0].Text != "Hello there." || all[1].Text != "How are you?" {
		t.Fatalf("unexpected utterances: %v", all)
	}
	if tail, ok := s.Flush(); !ok || tail.Text != "Fine." {
		t.Fatalf("unexpected flush result: %+v ok=%v", tail, ok)
	}
}

func TestSequenceNumbersHaveNoGaps(t *testing.T) {
	s := New(DefaultOptions())
	var all []Utterance
	all = append(all, s.Feed("One sentence here. Another one there. ")...)
	all = append(all, s.Feed("A third follows! And a question? ")...)
	if tail, ok := s.Flush(); ok {
		all = append(all, tail)
	}
	for i, u := range all {
		if u.Seq != uint64(i) {
			t.Fatalf("expected seq %d at position %d, got %d", i, i, u.Seq)
		}
	}
}

func TestEmptyAndWhitespaceDeltas(t *testing.T) {
	s := New(DefaultOptions())
	if got := s.Feed(""); got != nil {
		t.Fatalf("empty delta should emit nothing, got %v", got)
	}
	if got := s.Feed("   \n\t "); got != nil {
		t.Fatalf("whitespace delta should emit nothing, got %v", got)
	}
	if _, ok := s.Flush(); ok {
		t.Fatal("flush of whitespace-only buffer should emit nothing")
	}
}

func TestShortPrefixIsRetained(t *testing.T) {
	s := New(Options{MinChars: 6, MaxChars: 220})
	// "Hi." is past a strong boundary but below the minimum length, so it
	// folds into the following sentence instead of becoming a micro-utterance.
	got := s.Feed("Hi. This works well. ")
	if len(got) != 1 {
		t.Fatalf("expected 1 utterance, got %d: %v", len(got), got)
	}
	if got[0].Text != "Hi. This works well." {
		t.Fatalf("unexpected utterance: %q", got[0].Text)
	}
}

func TestPurePunctuationPrefixFoldsForward(t *testing.T) {
	s := New(DefaultOptions())
	got := s.Feed("... okay then. ")
	if len(got) != 1 {
		t.Fatalf("expected 1 utterance, got %d: %v", len(got), got)
	}
	if got[0].Text != "... okay then." {
		t.Fatalf("unexpected utterance: %q", got[0].Text)
	}
}

func TestSizeBoundForcesWordBoundary(t *testing.T) {
	s := New(Options{MinChars: 3, MaxChars: 40})
	long := strings.Repeat("word ", 20) // no sentence marks at all
	got := s.Feed(long)
	if len(got) == 0 {
		t.Fatal("expected forced utterances for oversized buffer")
	}
	for _, u := range got {
		if len(u.Text) > 40 {
			t.Fatalf("forced utterance exceeds max chars: %q", u.Text)
		}
		if strings.HasSuffix(u.Text, " ") || strings.Contains(u.Text, "  ") {
			t.Fatalf("forced utterance not cut at a clean word boundary: %q", u.Text)
		}
	}
}

func TestClausePreferredForForcedSplit(t *testing.T) {
	s := New(Options{MinChars: 3, MaxChars: 30})
	got := s.Feed("first clause here, second clause follows with more words ")
	if len(got) == 0 {
		t.Fatal("expected a forced utterance")
	}
	if got[0].Text != "first clause here," {
		t.Fatalf("expected split at clause mark, got %q", got[0].Text)
	}
}
