package plan

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/bobarin/shortform/internal/apperr"
	"github.com/bobarin/shortform/internal/logging"
	"github.com/bobarin/shortform/internal/models"
)

var resolutionPattern = regexp.MustCompile(`^(\d+)x(\d+)$`)

// Validate checks a render request in a fixed order and stops at the first problem.
// It performs no I/O.
func Validate(ctx context.Context, req *models.RenderRequest) error {
	if req == nil || len(req.Scenes) == 0 {
		return apperr.Validation("scenes must be a non-empty array")
	}

	for i, scene := range req.Scenes {
		if strings.TrimSpace(SanitizeText(scene.Text)) == "" {
			return apperr.Validation("scene %d: text must be a non-empty string", i)
		}
		if scene.DurationMs <= 0 {
			return apperr.Validation("scene %d: durationMs must be a positive number", i)
		}
	}

	if req.Config == nil {
		return apperr.Validation("config is required")
	}
	if strings.TrimSpace(req.Config.TTSURL) == "" {
		return apperr.Validation("config.ttsUrl must be a non-empty string")
	}
	if _, _, err := ParseResolution(req.Config.Resolution); err != nil {
		return err
	}

	logging.FromContext(ctx).Info("render request validated",
		"scenes", len(req.Scenes),
		"assets", len(req.Config.Assets),
		"total_duration_ms", req.TotalDurationMs(),
	)
	return nil
}

// ParseResolution parses "WIDTHxHEIGHT" into positive dimensions. Every malformed
// input fails with the same format error.
func ParseResolution(resolution string) (int, int, error) {
	m := resolutionPattern.FindStringSubmatch(resolution)
	if m == nil {
		return 0, 0, resolutionError(resolution)
	}

	width, err := strconv.Atoi(m[1])
	if err != nil || width <= 0 {
		return 0, 0, resolutionError(resolution)
	}
	height, err := strconv.Atoi(m[2])
	if err != nil || height <= 0 {
		return 0, 0, resolutionError(resolution)
	}

	return width, height, nil
}

func resolutionError(resolution string) error {
	return apperr.Validation("config.resolution must be in the format WIDTHxHEIGHT, got %q", resolution)
}
