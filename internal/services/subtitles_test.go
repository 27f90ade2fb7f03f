package services

import (
	"strings"
	"testing"

	"github.com/bobarin/shortform/internal/models"
)

func TestGenerateASSFromScenes(t *testing.T) {
	plan := &models.RenderPlan{
		Width: 1080, Height: 1920, FPS: 30,
		Scenes: []models.ScenePlan{
			{StartFrame: 0, DurationInFrames: 30, Text: "First {bold}"},
			{StartFrame: 30, DurationInFrames: 60, Text: "Second"},
		},
	}

	doc, ok := GenerateASS(plan)
	if !ok {
		t.Fatal("expected captions")
	}
	if !strings.Contains(doc, "PlayResX: 1080") || !strings.Contains(doc, "PlayResY: 1920") {
		t.Error("expected canvas to match plan resolution")
	}
	if !strings.Contains(doc, "Dialogue: 0,0:00:00.00,0:00:01.00,Default,,0,0,0,,First (bold)") {
		t.Errorf("missing first scene line:\n%s", doc)
	}
	if !strings.Contains(doc, "Dialogue: 0,0:00:01.00,0:00:03.00,Default,,0,0,0,,Second") {
		t.Errorf("missing second scene line:\n%s", doc)
	}
	// 124 * 1920 / 3840
	if !strings.Contains(doc, "Style: Default,Noto Sans,62,") {
		t.Errorf("expected scaled font size:\n%s", doc)
	}
}

func TestGenerateASSPrefersWordCaptions(t *testing.T) {
	plan := &models.RenderPlan{
		Width: 1080, Height: 1920, FPS: 30,
		Scenes: []models.ScenePlan{{StartFrame: 0, DurationInFrames: 90, Text: "ignored"}},
		Captions: []models.CaptionWord{
			{Word: "the", Start: 0, End: 0.2},
			{Word: "history", Start: 0.2, End: 0.7},
			{Word: "of", Start: 0.7, End: 0.8},
		},
	}

	doc, ok := GenerateASS(plan)
	if !ok {
		t.Fatal("expected captions")
	}
	if strings.Contains(doc, "ignored") {
		t.Error("scene text should not be used when word captions exist")
	}
	if !strings.Contains(doc, "THE {\\3c&H00CC3299\\bord8}HISTORY{\\r} OF") {
		t.Errorf("expected highlighted chunk:\n%s", doc)
	}
}

func TestGenerateASSNothingToCaption(t *testing.T) {
	plan := &models.RenderPlan{Width: 1080, Height: 1920, FPS: 30, Scenes: []models.ScenePlan{{Text: "  "}}}
	if _, ok := GenerateASS(plan); ok {
		t.Error("expected no captions")
	}
}

func TestChunkWordsBreaksAtSentenceEnd(t *testing.T) {
	words := []models.CaptionWord{{Word: "one"}, {Word: "two."}, {Word: "three"}, {Word: "four"}, {Word: "five"}, {Word: "six"}, {Word: "seven"}}
	chunks := chunkWords(words, 4)

	if len(chunks) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(chunks))
	}
	if len(chunks[0]) != 2 || len(chunks[1]) != 4 || len(chunks[2]) != 1 {
		t.Errorf("unexpected chunk sizes %d/%d/%d", len(chunks[0]), len(chunks[1]), len(chunks[2]))
	}
}

func TestFormatASSTime(t *testing.T) {
	cases := map[float64]string{
		0:      "0:00:00.00",
		1.5:    "0:00:01.50",
		61.25:  "0:01:01.25",
		3725.0: "1:02:05.00",
		-3:     "0:00:00.00",
	}
	for in, want := range cases {
		if got := formatASSTime(in); got != want {
			t.Errorf("formatASSTime(%v) = %q, want %q", in, got, want)
		}
	}
}
