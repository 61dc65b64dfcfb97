package timeline

import (
	"strings"
	"testing"
)

func span(start, end float64) IntervalSummary {
	return IntervalSummary{Start: start, End: end}
}

func TestUtteranceDistributesTimestampsEvenly(t *testing.T) {
	al := NewAligner(DefaultConfig())
	al.AddUtterance("hello world test", 5.0, 6.0, 1.0)

	got := al.AttachToInterval(span(5.0, 6.0))
	if got.FullText != "hello world test" {
		t.Fatalf("unexpected text %q", got.FullText)
	}
	if len(got.Words) != 3 {
		t.Fatalf("expected 3 words, got %d", len(got.Words))
	}
	prev := -1.0
	for _, w := range got.Words {
		if w.Timestamp < 5.0 || w.Timestamp >= 6.0 {
			t.Fatalf("word %q timestamp %.3f outside [5,6)", w.Text, w.Timestamp)
		}
		if w.Timestamp <= prev {
			t.Fatalf("timestamps not ascending at %q", w.Text)
		}
		prev = w.Timestamp
	}
	if got.Flags.Silence {
		t.Fatal("interval with words must not be silent")
	}
}

func TestWordsPartitionAcrossIntervalsRoundTrip(t *testing.T) {
	al := NewAligner(DefaultConfig())
	words := []struct {
		text string
		ts   float64
	}{
		{"one", 0.2}, {"two", 0.7}, {"three", 1.1}, {"four", 1.9}, {"five", 2.5},
	}
	// Insert out of order; sorted insertion must restore chronology.
	for _, i := range []int{3, 0, 4, 2, 1} {
		al.AddWord(words[i].text, words[i].ts, 1.0)
	}

	var pieces []string
	for _, bounds := range [][2]float64{{0, 1}, {1, 2}, {2, 3}} {
		got := al.AttachToInterval(span(bounds[0], bounds[1]))
		for _, w := range got.Words {
			if w.Timestamp < bounds[0] || w.Timestamp >= bounds[1] {
				t.Fatalf("word %q leaked into [%v,%v)", w.Text, bounds[0], bounds[1])
			}
		}
		if got.FullText != "" {
			pieces = append(pieces, got.FullText)
		}
	}

	if joined := strings.Join(pieces, " "); joined != "one two three four five" {
		t.Fatalf("round trip broke word order: %q", joined)
	}
	if al.PendingCount() != 0 {
		t.Fatalf("expected empty queue, %d words pending", al.PendingCount())
	}
}

func TestLateWordsExpire(t *testing.T) {
	al := NewAligner(DefaultConfig())
	al.AddWord("stale", 0.5, 1.0)
	al.AddWord("fresh", 3.5, 1.0)

	got := al.AttachToInterval(span(3.0, 4.0))
	if got.FullText != "fresh" {
		t.Fatalf("expected only fresh word, got %q", got.FullText)
	}
	if al.PendingCount() != 0 {
		t.Fatal("stale word should be dropped, not left pending")
	}
	if _, expired := al.Stats(); expired != 1 {
		t.Fatalf("expected 1 expired word, got %d", expired)
	}
}

func TestLookbackRescuesSlightlyLateWords(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Lookback = 2.0
	al := NewAligner(cfg)
	al.AddWord("delayed", 1.5, 0.9)

	got := al.AttachToInterval(span(3.0, 4.0))
	if got.FullText != "delayed" {
		t.Fatalf("lookback should attach the word, got %q", got.FullText)
	}
}

func TestFutureWordsStayPending(t *testing.T) {
	al := NewAligner(DefaultConfig())
	al.AddWord("later", 2.4, 1.0)

	got := al.AttachToInterval(span(1.0, 2.0))
	if !got.Flags.Silence {
		t.Fatal("interval without words is silence")
	}
	if al.PendingCount() != 1 {
		t.Fatalf("future word must stay pending, got %d", al.PendingCount())
	}

	next := al.AttachToInterval(span(2.0, 3.0))
	if next.FullText != "later" {
		t.Fatalf("expected word in following interval, got %q", next.FullText)
	}
}

func TestEmptyUtteranceIsIgnored(t *testing.T) {
	al := NewAligner(DefaultConfig())
	al.AddUtterance("   ", 0.0, 1.0, 1.0)
	if al.PendingCount() != 0 {
		t.Fatal("whitespace utterance should queue nothing")
	}
}
