package pipeline

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/lumenvc/dossier/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitTextEdgeCases(t *testing.T) {
	config := model.DefaultChunkConfig()

	t.Run("Empty text yields no segments", func(t *testing.T) {
		assert.Empty(t, SplitText("", config))
		assert.Empty(t, SplitText("   \n\t  ", config))
	})

	t.Run("Short text yields exactly one unmodified segment", func(t *testing.T) {
		text := "NovaBuild raised a seed round."
		segments := SplitText(text, config)
		require.Len(t, segments, 1)
		assert.Equal(t, text, segments[0])
	})

	t.Run("Zero config falls back to defaults", func(t *testing.T) {
		segments := SplitText("Some text.", model.ChunkConfig{})
		require.Len(t, segments, 1)
		assert.Equal(t, "Some text.", segments[0])
	})
}

func TestSplitTextBoundaries(t *testing.T) {
	config := model.ChunkConfig{TargetSize: 25, Overlap: 5, MinSize: 10}
	targetChars := config.TargetSize * charsPerToken

	t.Run("Cuts at sentence boundaries", func(t *testing.T) {
		sentence := "Deal flow was strong. "
		text := strings.Repeat(sentence, 25)

		segments := SplitText(text, config)
		require.Greater(t, len(segments), 1, "Expected multiple segments")

		for i, segment := range segments[:len(segments)-1] {
			trimmed := strings.TrimRight(segment, " \n")
			assert.True(t, strings.HasSuffix(trimmed, "."),
				"Expected segment %d to end at a sentence boundary, got %q", i, trimmed[len(trimmed)-10:])
		}
	})

	t.Run("Cuts at paragraph breaks when present", func(t *testing.T) {
		para := strings.Repeat("word ", 18)
		text := strings.TrimSpace(strings.Repeat(para+"\n\n", 8))

		segments := SplitText(text, config)
		require.Greater(t, len(segments), 1)
		assert.Contains(t, segments[0], "\n\n", "Expected cut after a paragraph break")
	})

	t.Run("Hard cut when no boundaries exist", func(t *testing.T) {
		text := strings.Repeat("x", targetChars*3)

		segments := SplitText(text, config)
		require.Greater(t, len(segments), 1)
		assert.Len(t, segments[0], targetChars, "Expected hard cut at the window size")
	})
}

func TestSplitTextMultiByte(t *testing.T) {
	config := model.ChunkConfig{TargetSize: 25, Overlap: 5, MinSize: 10}
	overlapChars := config.Overlap * charsPerToken

	t.Run("Hard cuts never split a rune", func(t *testing.T) {
		// No ASCII sentence boundaries, so every cut is a hard cut.
		text := strings.Repeat("量子計算の研究が進んでいる", 300)

		segments := SplitText(text, config)
		require.Greater(t, len(segments), 1, "Expected multiple segments")

		for i, segment := range segments {
			assert.True(t, utf8.ValidString(segment), "Expected segment %d to be valid UTF-8", i)
		}

		var rebuilt strings.Builder
		rebuilt.WriteString(segments[0])
		for i := 1; i < len(segments); i++ {
			runes := []rune(segments[i])
			require.Greater(t, len(runes), overlapChars)
			rebuilt.WriteString(string(runes[overlapChars:]))
		}
		assert.Equal(t, text, rebuilt.String(), "Expected segments minus overlaps to cover the input with no gaps")
	})

	t.Run("Sentence cuts work in mixed multi-byte text", func(t *testing.T) {
		sentence := "研究は順調に進んでいる. "
		text := strings.Repeat(sentence, 40)

		segments := SplitText(text, config)
		require.Greater(t, len(segments), 1, "Expected multiple segments")

		for i, segment := range segments {
			assert.True(t, utf8.ValidString(segment), "Expected segment %d to be valid UTF-8", i)
		}
		trimmed := strings.TrimRight(segments[0], " ")
		assert.True(t, strings.HasSuffix(trimmed, "."), "Expected first cut at the sentence boundary")
	})
}

func TestSplitTextProperties(t *testing.T) {
	config := model.ChunkConfig{TargetSize: 25, Overlap: 5, MinSize: 10}

	texts := []string{
		strings.Repeat("A short sentence here. ", 40),
		strings.Repeat("word ", 300),
		strings.Repeat(strings.Repeat("para text ", 15)+"\n\n", 6),
		strings.Repeat("y", 977),
	}

	t.Run("Dropping overlaps reconstructs the input exactly", func(t *testing.T) {
		overlapChars := config.Overlap * charsPerToken
		for _, text := range texts {
			segments := SplitText(text, config)
			require.NotEmpty(t, segments)

			var rebuilt strings.Builder
			rebuilt.WriteString(segments[0])
			for i := 1; i < len(segments); i++ {
				require.Greater(t, len(segments[i]), overlapChars)
				rebuilt.WriteString(segments[i][overlapChars:])
			}
			assert.Equal(t, text, rebuilt.String(), "Expected segments minus overlaps to cover the input with no gaps")
		}
	})

	t.Run("No segment greatly exceeds the window", func(t *testing.T) {
		maxChars := (config.TargetSize + config.MinSize) * charsPerToken
		for _, text := range texts {
			for _, segment := range SplitText(text, config) {
				assert.LessOrEqual(t, len(segment), maxChars)
			}
		}
	})

	t.Run("No tiny trailing segment", func(t *testing.T) {
		minChars := config.MinSize * charsPerToken
		for _, text := range texts {
			segments := SplitText(text, config)
			last := segments[len(segments)-1]
			if len(segments) > 1 {
				assert.GreaterOrEqual(t, len(last), minChars,
					"Expected trailing fragment to be merged into the previous segment")
			}
		}
	})
}
