package services

import (
	"fmt"
	"strings"

	"github.com/bobarin/shortform/internal/models"
)

// ---------------------------------------------------------------------------
// ASS caption generator
//
// With word timings, words are shown in small chunks with the spoken word
// highlighted. Without them, each scene's text is shown for the scene's span.
// Sizes are expressed relative to a 3840-high canvas and scaled to the plan.
// ---------------------------------------------------------------------------

const (
	wordsPerChunk = 4

	subtitleFontName = "Noto Sans"

	// Reference values for a 3840-high canvas
	refCanvasHeight     = 3840
	refFontSize         = 124
	refOutlineNormal    = 6
	refOutlineHighlight = 16
	refMarginV          = 440

	// ASS colors are &HAABBGGRR
	assColorWhite     = "&H00FFFFFF"
	assColorBlack     = "&H00000000"
	assColorPurple    = "&H00CC3299"
	assColorSemiBlack = "&H80000000"
)

// GenerateASS renders the captions for plan as an ASS document. It returns false
// when the plan has nothing to caption.
func GenerateASS(plan *models.RenderPlan) (string, bool) {
	if len(plan.Captions) == 0 && !hasSceneText(plan) {
		return "", false
	}

	scale := func(v int) int {
		scaled := v * plan.Height / refCanvasHeight
		if scaled < 1 {
			return 1
		}
		return scaled
	}

	var sb strings.Builder

	sb.WriteString("[Script Info]\n")
	sb.WriteString("ScriptType: v4.00+\n")
	fmt.Fprintf(&sb, "PlayResX: %d\n", plan.Width)
	fmt.Fprintf(&sb, "PlayResY: %d\n", plan.Height)
	sb.WriteString("WrapStyle: 0\n")
	sb.WriteString("ScaledBorderAndShadow: yes\n")
	sb.WriteString("\n")

	sb.WriteString("[V4+ Styles]\n")
	sb.WriteString("Format: Name, Fontname, Fontsize, PrimaryColour, SecondaryColour, OutlineColour, BackColour, Bold, Italic, Underline, StrikeOut, ScaleX, ScaleY, Spacing, Angle, BorderStyle, Outline, Shadow, Alignment, MarginL, MarginR, MarginV, Encoding\n")
	fmt.Fprintf(&sb,
		"Style: Default,%s,%d,%s,%s,%s,%s,-1,0,0,0,100,100,2,0,1,%d,0,2,40,40,%d,1\n",
		subtitleFontName, scale(refFontSize),
		assColorWhite,
		assColorWhite,
		assColorBlack,
		assColorSemiBlack,
		scale(refOutlineNormal),
		scale(refMarginV),
	)
	sb.WriteString("\n")

	sb.WriteString("[Events]\n")
	sb.WriteString("Format: Layer, Start, End, Style, Name, MarginL, MarginR, MarginV, Effect, Text\n")

	if len(plan.Captions) > 0 {
		writeWordEvents(&sb, plan.Captions, scale(refOutlineHighlight))
	} else {
		writeSceneEvents(&sb, plan)
	}

	return sb.String(), true
}

func hasSceneText(plan *models.RenderPlan) bool {
	for _, s := range plan.Scenes {
		if strings.TrimSpace(s.Text) != "" {
			return true
		}
	}
	return false
}

// writeSceneEvents shows each scene's text for exactly the scene's frame span.
func writeSceneEvents(sb *strings.Builder, plan *models.RenderPlan) {
	fps := float64(plan.FPS)
	for _, scene := range plan.Scenes {
		text := escapeASSText(scene.Text)
		if text == "" {
			continue
		}
		start := float64(scene.StartFrame) / fps
		end := float64(scene.StartFrame+scene.DurationInFrames) / fps
		fmt.Fprintf(sb, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n", formatASSTime(start), formatASSTime(end), text)
	}
}

// writeWordEvents writes one dialogue line per word, each showing the word's chunk
// with that word highlighted.
func writeWordEvents(sb *strings.Builder, words []models.CaptionWord, highlightOutline int) {
	for _, chunk := range chunkWords(words, wordsPerChunk) {
		for wordIdx, word := range chunk {
			start := word.Start
			end := word.End
			if wordIdx < len(chunk)-1 {
				end = chunk[wordIdx+1].Start
			}

			fmt.Fprintf(sb, "Dialogue: 0,%s,%s,Default,,0,0,0,,%s\n",
				formatASSTime(start),
				formatASSTime(end),
				buildHighlightedChunkText(chunk, wordIdx, highlightOutline),
			)
		}
	}
}

// chunkWords groups words into display chunks, breaking early at sentence ends.
func chunkWords(words []models.CaptionWord, chunkSize int) [][]models.CaptionWord {
	var chunks [][]models.CaptionWord
	var current []models.CaptionWord

	for _, word := range words {
		current = append(current, word)

		isSentenceEnd := strings.ContainsAny(word.Word, ".!?")
		if len(current) >= chunkSize || (isSentenceEnd && len(current) >= 2) {
			chunks = append(chunks, current)
			current = nil
		}
	}

	if len(current) > 0 {
		chunks = append(chunks, current)
	}

	return chunks
}

// buildHighlightedChunkText renders a chunk with the word at activeIdx outlined in purple.
//
// Output example: "THE {\3c&H00CC3299\bord16}HISTORY{\r} OF COFFEE"
func buildHighlightedChunkText(chunk []models.CaptionWord, activeIdx, outline int) string {
	var parts []string

	for i, word := range chunk {
		cleanWord := escapeASSText(strings.ToUpper(strings.TrimSpace(word.Word)))
		if cleanWord == "" {
			continue
		}

		if i == activeIdx {
			parts = append(parts, fmt.Sprintf("{\\3c%s\\bord%d}%s{\\r}", assColorPurple, outline, cleanWord))
		} else {
			parts = append(parts, cleanWord)
		}
	}

	return strings.Join(parts, " ")
}

// escapeASSText neutralises override blocks and line breaks in caption text.
func escapeASSText(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "{", "(")
	s = strings.ReplaceAll(s, "}", ")")
	s = strings.ReplaceAll(s, "\r\n", "\\N")
	s = strings.ReplaceAll(s, "\n", "\\N")
	return s
}

// formatASSTime converts seconds to ASS timestamp format: H:MM:SS.CC (centiseconds)
func formatASSTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}

	hours := int(seconds) / 3600
	minutes := (int(seconds) % 3600) / 60
	secs := int(seconds) % 60
	centiseconds := int((seconds - float64(int(seconds))) * 100)

	return fmt.Sprintf("%d:%02d:%02d.%02d", hours, minutes, secs, centiseconds)
}
