package services

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/bobarin/shortform/internal/logging"
	"github.com/bobarin/shortform/internal/models"
)

// Background colours for scenes without stock footage, keyed by tone.
var toneColors = map[models.Tone]string{
	models.ToneStoic:   "0x1f2933",
	models.ToneEpic:    "0x2b1055",
	models.TonePlayful: "0xff7a59",
	models.ToneNeutral: "0x111111",
}

const defaultSceneColor = "0x111111"

// ---------------------------------------------------------------------------
// FFmpegCompositor
// ---------------------------------------------------------------------------

// FFmpegCompositor turns a render plan into an MP4 by shelling out to ffmpeg.
// Each scene becomes a clip of exactly DurationInFrames frames, clips are
// concatenated, then narration and captions are laid over the result.
type FFmpegCompositor struct {
	ffmpegPath string
	tempDir    string
	logger     *slog.Logger
}

func NewFFmpegCompositor(ffmpegPath, tempDir string) (*FFmpegCompositor, error) {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}

	return &FFmpegCompositor{
		ffmpegPath: ffmpegPath,
		tempDir:    tempDir,
		logger:     logging.Component("ffmpeg"),
	}, nil
}

// Compose renders plan and returns the encoded video bytes.
func (c *FFmpegCompositor) Compose(ctx context.Context, plan *models.RenderPlan) ([]byte, error) {
	if len(plan.Scenes) == 0 {
		return nil, fmt.Errorf("render plan has no scenes")
	}

	workDir, err := os.MkdirTemp(c.tempDir, "render_")
	if err != nil {
		return nil, fmt.Errorf("failed to create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	audioPath := filepath.Join(workDir, "narration.audio")
	if err := os.WriteFile(audioPath, plan.AudioBytes, 0644); err != nil {
		return nil, fmt.Errorf("failed to write narration: %w", err)
	}

	clipPaths := make([]string, 0, len(plan.Scenes))
	for i, scene := range plan.Scenes {
		clipPath := filepath.Join(workDir, fmt.Sprintf("clip_%03d.mp4", i))
		if err := c.run(ctx, sceneClipArgs(plan, scene, clipPath)); err != nil {
			return nil, fmt.Errorf("render %s failed: %w", scene.ID, err)
		}
		clipPaths = append(clipPaths, clipPath)
	}

	listPath := filepath.Join(workDir, "concat_list.txt")
	if err := os.WriteFile(listPath, []byte(concatList(clipPaths)), 0644); err != nil {
		return nil, fmt.Errorf("failed to create concat list: %w", err)
	}

	joinedPath := filepath.Join(workDir, "joined.mp4")
	if err := c.run(ctx, concatArgs(listPath, joinedPath)); err != nil {
		return nil, fmt.Errorf("concatenate failed: %w", err)
	}

	subtitlePath := ""
	if doc, ok := GenerateASS(plan); ok {
		subtitlePath = filepath.Join(workDir, "captions.ass")
		if err := os.WriteFile(subtitlePath, []byte(doc), 0644); err != nil {
			return nil, fmt.Errorf("failed to write captions: %w", err)
		}
	}

	outputPath := filepath.Join(workDir, "output.mp4")
	if err := c.run(ctx, muxArgs(plan, joinedPath, audioPath, subtitlePath, outputPath)); err != nil {
		return nil, fmt.Errorf("final mux failed: %w", err)
	}

	video, err := os.ReadFile(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read rendered video: %w", err)
	}

	c.logger.Info("composition finished",
		"scenes", len(plan.Scenes),
		"frames", plan.TotalFrames(),
		"captioned", subtitlePath != "",
		"bytes", len(video),
	)
	return video, nil
}

func (c *FFmpegCompositor) run(ctx context.Context, args []string) error {
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%w: %s", err, tail(stderr.String(), 500))
	}
	return nil
}

// sceneClipArgs builds the command for one scene. Footage is looped, scaled to
// cover the canvas and cut to the exact frame count; scenes without footage get
// a solid tone colour.
func sceneClipArgs(plan *models.RenderPlan, scene models.ScenePlan, outputPath string) []string {
	var args []string
	if scene.AssetPath != "" {
		args = []string{
			"-stream_loop", "-1",
			"-i", scene.AssetPath,
			"-vf", fmt.Sprintf(
				"scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d,fps=%d,setsar=1",
				plan.Width, plan.Height, plan.Width, plan.Height, plan.FPS,
			),
		}
	} else {
		args = []string{
			"-f", "lavfi",
			"-i", fmt.Sprintf("color=c=%s:s=%dx%d:r=%d", sceneColor(plan.Tone), plan.Width, plan.Height, plan.FPS),
		}
	}

	return append(args,
		"-frames:v", fmt.Sprintf("%d", scene.DurationInFrames),
		"-an",
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", fmt.Sprintf("%d", plan.FPS),
		"-y",
		outputPath,
	)
}

func sceneColor(tone string) string {
	if color, ok := toneColors[models.Tone(strings.ToUpper(tone))]; ok {
		return color
	}
	return defaultSceneColor
}

// concatList renders clip paths in ffmpeg concat demuxer format.
func concatList(clipPaths []string) string {
	var sb strings.Builder
	for _, path := range clipPaths {
		fmt.Fprintf(&sb, "file '%s'\n", strings.ReplaceAll(path, "'", `'\''`))
	}
	return sb.String()
}

func concatArgs(listPath, outputPath string) []string {
	return []string{
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		"-y",
		outputPath,
	}
}

// muxArgs lays narration over the joined clips, burning in captions when
// subtitlePath is set. Output length is pinned to the plan's timeline.
func muxArgs(plan *models.RenderPlan, videoPath, audioPath, subtitlePath, outputPath string) []string {
	args := []string{
		"-i", videoPath,
		"-i", audioPath,
		"-map", "0:v",
		"-map", "1:a",
	}

	if subtitlePath != "" {
		args = append(args,
			"-vf", fmt.Sprintf("ass='%s'", escapeFFmpegFilterPath(subtitlePath)),
			"-c:v", "libx264",
			"-pix_fmt", "yuv420p",
		)
	} else {
		args = append(args, "-c:v", "copy")
	}

	return append(args,
		"-c:a", "aac",
		"-b:a", "192k",
		"-t", fmt.Sprintf("%.3f", float64(plan.TotalFrames())/float64(plan.FPS)),
		"-movflags", "+faststart",
		"-y",
		outputPath,
	)
}

// escapeFFmpegFilterPath escapes special characters in file paths for FFmpeg filter syntax.
func escapeFFmpegFilterPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "\\\\")
	path = strings.ReplaceAll(path, ":", "\\:")
	path = strings.ReplaceAll(path, "'", "'\\''")
	return path
}

func tail(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
