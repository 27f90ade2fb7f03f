package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/bobarin/shortform/internal/logging"
	"github.com/bobarin/shortform/internal/models"
)

// Transcriber produces word-level timing for narration audio.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte) ([]models.CaptionWord, error)
}

// WhisperTranscriber transcribes narration with OpenAI Whisper.
type WhisperTranscriber struct {
	client   *openai.Client
	language string
}

func NewWhisperTranscriber(apiKey, language string) *WhisperTranscriber {
	if language == "" {
		language = "en"
	}
	return &WhisperTranscriber{
		client:   openai.NewClient(apiKey),
		language: language,
	}
}

// Transcribe sends audio to Whisper and returns word-level timestamps in seconds.
func (s *WhisperTranscriber) Transcribe(ctx context.Context, audio []byte) ([]models.CaptionWord, error) {
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    openai.Whisper1,
		Reader:   bytes.NewReader(audio),
		FilePath: "narration.mp3", // Filename hint, required by the library
		Format:   openai.AudioResponseFormatVerboseJSON,
		Language: s.language,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{
			openai.TranscriptionTimestampGranularityWord,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("whisper transcription failed: %w", err)
	}

	if len(resp.Words) == 0 {
		return nil, fmt.Errorf("whisper returned no word timestamps (text: %q)", truncate(resp.Text, 80))
	}

	words := make([]models.CaptionWord, 0, len(resp.Words))
	for _, w := range resp.Words {
		word := strings.TrimSpace(w.Word)
		if word == "" {
			continue
		}
		words = append(words, models.CaptionWord{Word: word, Start: w.Start, End: w.End})
	}

	logging.FromContext(ctx).Debug("narration transcribed",
		"words", len(words),
		"duration_sec", resp.Duration,
	)

	return words, nil
}

// truncate limits a string to maxLen bytes for log output.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
