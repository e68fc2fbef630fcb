package pipeline

import (
	"strings"
	"testing"
)

func TestCalculateStats(t *testing.T) {
	text := "Bruce Lee was born in San Francisco. He later moved to Hong Kong."

	stats := CalculateStats(text)
	if stats.WordCount != 13 {
		t.Errorf("word count = %d, want 13", stats.WordCount)
	}
	if stats.SentenceCount != 2 {
		t.Errorf("sentence count = %d, want 2", stats.SentenceCount)
	}
	if stats.CharCount != len(text) {
		t.Errorf("char count = %d, want %d", stats.CharCount, len(text))
	}
	if stats.AvgWordsPerSentence != 6.5 {
		t.Errorf("avg words per sentence = %v, want 6.5", stats.AvgWordsPerSentence)
	}
	// Short documents still report at least one page.
	if stats.EstimatedPages != 1 {
		t.Errorf("pages = %v, want 1", stats.EstimatedPages)
	}
}

func TestCalculateStats_Empty(t *testing.T) {
	stats := CalculateStats("")
	if stats.WordCount != 0 || stats.SentenceCount != 0 {
		t.Errorf("stats = %+v, want zeros", stats)
	}
	if stats.EstimatedPages != 1 {
		t.Errorf("pages = %v, want the 1-page floor", stats.EstimatedPages)
	}
}

func TestCalculateStats_PageEstimate(t *testing.T) {
	// 1250 words at 500 words a page is 2.5 pages.
	text := strings.Repeat("word ", 1250)
	stats := CalculateStats(text)
	if stats.EstimatedPages != 2.5 {
		t.Errorf("pages = %v, want 2.5", stats.EstimatedPages)
	}
}

func TestEstimateProcessingSeconds(t *testing.T) {
	tests := []struct {
		name   string
		sizeMB float64
		model  string
		want   int
	}{
		{"base rate", 2, "gemma3", 120},
		{"tiny document floors at base", 0, "gemma3", 30},
		{"small model halves", 2, "gemma3:270m", 60},
		{"27b model triples", 2, "gemma3:27b", 360},
		{"70b model triples", 2, "llama3.1:70b", 360},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EstimateProcessingSeconds(tt.sizeMB, tt.model); got != tt.want {
				t.Errorf("EstimateProcessingSeconds(%v, %q) = %d, want %d", tt.sizeMB, tt.model, got, tt.want)
			}
		})
	}
}
