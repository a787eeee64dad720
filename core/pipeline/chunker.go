package pipeline

import (
	"strings"

	"github.com/lumenvc/dossier/model"
)

// charsPerToken approximates one token as four characters
const charsPerToken = 4

// SplitText splits raw text into overlapping, bounded segments covering the
// whole input with no gaps. Windows of TargetSize tokens are cut at the
// nearest paragraph break, else sentence end, within a bounded lookback so
// sentences are not split mid-way. Each window starts Overlap tokens before
// the previous cut. A trailing fragment shorter than MinSize is merged into
// the previous segment instead of being emitted as a tiny orphan.
//
// All window arithmetic is in runes, so multi-byte text is never split
// mid-character.
//
// No input is invalid; empty or whitespace-only text yields no segments, and
// input shorter than MinSize yields exactly one segment unmodified.
func SplitText(text string, config model.ChunkConfig) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	if config.TargetSize <= 0 {
		config = model.DefaultChunkConfig()
	}

	targetChars := config.TargetSize * charsPerToken
	overlapChars := config.Overlap * charsPerToken
	minChars := config.MinSize * charsPerToken
	if overlapChars >= targetChars {
		overlapChars = 0
	}

	runes := []rune(text)
	if len(runes) <= minChars || len(runes) <= targetChars {
		return []string{text}
	}

	var segments []string
	start := 0
	for start < len(runes) {
		end := start + targetChars
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = cutPoint(runes, start, end)
		}

		// Merge a short trailing fragment into this segment.
		if end < len(runes) && len(runes)-end < minChars {
			end = len(runes)
		}

		segments = append(segments, string(runes[start:end]))
		if end == len(runes) {
			break
		}

		next := end - overlapChars
		if next <= start {
			next = end
		}
		start = next
	}

	return segments
}

// cutPoint searches backward from end for the nearest paragraph break, else
// the nearest sentence-ending punctuation followed by whitespace, within a
// bounded lookback. Falls back to a hard cut at end when neither is found.
// All offsets are rune offsets.
func cutPoint(runes []rune, start, end int) int {
	lookback := (end - start) / 4
	floor := end - lookback
	if floor <= start {
		floor = start + 1
	}

	for i := end - 2; i >= floor; i-- {
		if runes[i] == '\n' && runes[i+1] == '\n' {
			return i + 2
		}
	}

	for i := end - 1; i >= floor; i-- {
		if isSentenceEnd(runes[i]) && i+1 < len(runes) && isWhitespace(runes[i+1]) {
			return i + 2
		}
	}

	return end
}

func isSentenceEnd(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func isWhitespace(r rune) bool {
	return r == ' ' || r == '\n' || r == '\t' || r == '\r'
}
