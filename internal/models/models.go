package models

import (
	"time"
)

// Enums
type Tone string

const (
	ToneStoic   Tone = "STOIC"
	ToneEpic    Tone = "EPIC"
	TonePlayful Tone = "PLAYFUL"
	ToneNeutral Tone = "NEUTRAL"
)

type Platform string

const (
	PlatformTikTok    Platform = "TIKTOK"
	PlatformInstagram Platform = "INSTAGRAM"
	PlatformX         Platform = "X"
)

// JobState is the render collaborator's view of a job. Transitions are owned by the
// collaborator; the orchestrator only observes them.
type JobState string

const (
	JobStateQueued    JobState = "queued"
	JobStateRendering JobState = "rendering"
	JobStateReady     JobState = "ready"
	JobStateFailed    JobState = "failed"
)

// Terminal reports whether no further transitions can happen.
func (s JobState) Terminal() bool {
	return s == JobStateReady || s == JobStateFailed
}

type RenderStatus string

const (
	RenderStatusAccepted  RenderStatus = "accepted"
	RenderStatusSucceeded RenderStatus = "succeeded"
	RenderStatusFailed    RenderStatus = "failed"
)

// FPS is the fixed frame rate of every render plan.
const FPS = 30

// Inbound request

type RenderRequest struct {
	Scenes    []Scene       `json:"scenes"`
	Config    *RenderConfig `json:"config"`
	Narrative *Narrative    `json:"narrative,omitempty"`
}

type Scene struct {
	Text        string   `json:"text"`
	DurationMs  int      `json:"durationMs"`
	SearchTerms []string `json:"searchTerms"`
}

type RenderConfig struct {
	Resolution string     `json:"resolution"` // "WIDTHxHEIGHT", e.g. "1080x1920"
	Tone       Tone       `json:"tone"`       // Unknown values pass through untouched
	Platform   Platform   `json:"platform"`
	TTSURL     string     `json:"ttsUrl"`
	Assets     []AssetRef `json:"assets"` // Positionally aligned with scenes
}

type AssetRef struct {
	SearchTerms string  `json:"searchTerms"`
	VideoURL    *string `json:"videoUrl,omitempty"` // nil = no stock footage for this scene
}

// Narrative is opaque passthrough metadata; the pipeline records it but never interprets it.
type Narrative struct {
	SummaryID   *string `json:"summaryId,omitempty"`
	StylePackID *string `json:"stylePackId,omitempty"`
}

// TotalDurationMs sums every scene's duration.
func (r *RenderRequest) TotalDurationMs() int {
	total := 0
	for _, s := range r.Scenes {
		total += s.DurationMs
	}
	return total
}

// Pipeline intermediates

// ResolvedAsset is one position of the asset resolver's output. LocalPath is empty
// when the asset fell back to "no asset".
type ResolvedAsset struct {
	SearchTerms string `json:"searchTerms"`
	SourceURL   string `json:"sourceUrl,omitempty"`
	LocalPath   string `json:"localPath,omitempty"`
}

// HasAsset reports whether a downloaded file backs this position.
func (a ResolvedAsset) HasAsset() bool {
	return a.LocalPath != ""
}

// CaptionWord is one transcribed word of the narration, timed in seconds.
type CaptionWord struct {
	Word  string  `json:"word"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

type RenderPlan struct {
	Width      int           `json:"width"`
	Height     int           `json:"height"`
	FPS        int           `json:"fps"`
	Scenes     []ScenePlan   `json:"scenes"`
	AudioBytes []byte        `json:"audioBytes"`
	Tone       string        `json:"tone"`
	Platform   string        `json:"platform"`
	Captions   []CaptionWord `json:"captions,omitempty"` // Optional word-level narration timing
}

type ScenePlan struct {
	ID               string   `json:"id"`
	StartFrame       int      `json:"startFrame"`
	DurationInFrames int      `json:"durationInFrames"`
	DurationMs       int      `json:"durationMs"`
	Text             string   `json:"text"`
	AssetPath        string   `json:"assetPath,omitempty"` // Local handle of the bound asset, if any
	SearchTerms      []string `json:"searchTerms"`
}

// TotalFrames returns the frame count of the whole timeline.
func (p *RenderPlan) TotalFrames() int {
	if len(p.Scenes) == 0 {
		return 0
	}
	last := p.Scenes[len(p.Scenes)-1]
	return last.StartFrame + last.DurationInFrames
}

// Render history

type RenderRecord struct {
	CorrelationID   string       `json:"correlation_id"`
	Status          RenderStatus `json:"status"`
	ErrorKind       *string      `json:"error_kind,omitempty"`
	ErrorCause      *string      `json:"error_cause,omitempty"`
	ErrorMessage    *string      `json:"error_message,omitempty"`
	SceneCount      int          `json:"scene_count"`
	TotalDurationMs int          `json:"total_duration_ms"`
	ResponseMode    string       `json:"response_mode"`
	VideoURL        *string      `json:"video_url,omitempty"`
	SummaryID       *string      `json:"summary_id,omitempty"`
	StylePackID     *string      `json:"style_pack_id,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	FinishedAt      *time.Time   `json:"finished_at,omitempty"`
}

// DTOs for API responses

type RenderURLResponse struct {
	VideoURL string `json:"videoUrl"`
}

type ErrorResponse struct {
	Error         string `json:"error"`
	CorrelationID string `json:"correlationId"`
}
