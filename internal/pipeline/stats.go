// =============================================================================
// DOCUMENT STATISTICS AND PROCESSING TIME ESTIMATES
// =============================================================================
//
// WHAT: Cheap text statistics shown in job status, plus the rough
// time-to-completion guess displayed while a job runs. The estimate is a
// heuristic on document size and model, not a promise.
//
// =============================================================================

package pipeline

import (
	"math"
	"strings"
)

// DocumentStats summarizes extracted text for job reporting.
type DocumentStats struct {
	WordCount           int     `json:"word_count"`
	EstimatedPages      float64 `json:"estimated_pages"`
	CharCount           int     `json:"char_count"`
	SentenceCount       int     `json:"sentence_count"`
	AvgWordsPerSentence float64 `json:"avg_words_per_sentence"`
}

// wordsPerPage is the average used to estimate page count from word count.
const wordsPerPage = 500

// CalculateStats computes document statistics from raw text.
func CalculateStats(text string) DocumentStats {
	words := strings.Fields(text)
	wordCount := len(words)

	sentenceCount := 0
	for _, s := range strings.Split(text, ".") {
		if strings.TrimSpace(s) != "" {
			sentenceCount++
		}
	}

	pages := math.Round(float64(wordCount)/wordsPerPage*10) / 10
	if pages < 1 {
		pages = 1
	}

	avg := 0.0
	if sentenceCount > 0 {
		avg = float64(wordCount) / float64(sentenceCount)
	} else {
		avg = float64(wordCount)
	}

	return DocumentStats{
		WordCount:           wordCount,
		EstimatedPages:      pages,
		CharCount:           len(text),
		SentenceCount:       sentenceCount,
		AvgWordsPerSentence: avg,
	}
}

// EstimateProcessingSeconds guesses how long a document of the given size
// will take. Larger documents scale roughly linearly; heavier models get a
// multiplier.
func EstimateProcessingSeconds(sizeMB float64, model string) int {
	const baseSeconds = 30.0

	estimate := baseSeconds + sizeMB*45

	switch {
	case strings.Contains(model, "270m"):
		// Small distilled models run markedly faster.
		estimate *= 0.5
	case strings.Contains(model, "27b"), strings.Contains(model, "70b"):
		estimate *= 3
	}

	if estimate < baseSeconds {
		estimate = baseSeconds
	}
	return int(estimate)
}
