package plan

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/bobarin/shortform/internal/models"
)

// maxBMP is the last code point of the Basic Multilingual Plane.
const maxBMP = 0xFFFF

// Build turns a validated request into a frame-accurate render plan. It is pure:
// identical inputs give identical plans apart from the asset paths.
//
// Assets bind to scenes by position. Scenes past the end of assets get no asset;
// assets past the end of scenes are ignored.
func Build(req *models.RenderRequest, audio []byte, assets []models.ResolvedAsset) models.RenderPlan {
	// Resolution was checked by Validate.
	width, height, _ := ParseResolution(req.Config.Resolution)

	plan := models.RenderPlan{
		Width:      width,
		Height:     height,
		FPS:        models.FPS,
		Scenes:     make([]models.ScenePlan, 0, len(req.Scenes)),
		AudioBytes: audio,
		Tone:       string(req.Config.Tone),
		Platform:   string(req.Config.Platform),
	}

	startFrame := 0
	for i, scene := range req.Scenes {
		frames := FramesForDuration(scene.DurationMs, models.FPS)

		sp := models.ScenePlan{
			ID:               fmt.Sprintf("scene-%d", i),
			StartFrame:       startFrame,
			DurationInFrames: frames,
			DurationMs:       scene.DurationMs,
			Text:             SanitizeText(scene.Text),
			SearchTerms:      append([]string(nil), scene.SearchTerms...),
		}
		if i < len(assets) && assets[i].HasAsset() {
			sp.AssetPath = assets[i].LocalPath
		}

		plan.Scenes = append(plan.Scenes, sp)
		startFrame += frames
	}

	return plan
}

// FramesForDuration converts milliseconds to a frame count, rounding up so a
// positive duration never yields zero frames.
func FramesForDuration(durationMs, fps int) int {
	if durationMs <= 0 {
		return 0
	}
	return (durationMs*fps + 999) / 1000
}

// SanitizeText drops control and format characters and anything outside the BMP
// (most emoji), leaving every other character in place.
func SanitizeText(text string) string {
	return strings.Map(func(r rune) rune {
		if r > maxBMP || unicode.Is(unicode.Cc, r) || unicode.Is(unicode.Cf, r) {
			return -1
		}
		return r
	}, text)
}
