package transcode

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// Transcoder wraps the ffmpeg and ffprobe binaries.
type Transcoder struct {
	FFmpegPath  string
	FFprobePath string
}

// NewTranscoder builds a Transcoder, falling back to binaries on PATH
// when explicit paths are empty.
func NewTranscoder(ffmpegPath, ffprobePath string) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &Transcoder{FFmpegPath: ffmpegPath, FFprobePath: ffprobePath}
}

// ExtractClip cuts [startSeconds, startSeconds+durationSeconds) out of
// inputPath into outputPath without re-encoding. The clip is written to
// a temporary file first and renamed into place, so a crashed or failed
// extraction never leaves a partial clip behind.
func (t *Transcoder) ExtractClip(ctx context.Context, inputPath, outputPath string, startSeconds, durationSeconds float64) error {
	if _, err := os.Stat(inputPath); os.IsNotExist(err) {
		return fmt.Errorf("source video does not exist: %s", inputPath)
	}
	if durationSeconds <= 0 {
		return fmt.Errorf("invalid clip duration: %f", durationSeconds)
	}

	outputDir := filepath.Dir(outputPath)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("failed to create clip directory: %v", err)
	}

	tmpPath := outputPath + ".tmp" + filepath.Ext(outputPath)

	cmd := exec.CommandContext(ctx, t.FFmpegPath,
		"-ss", formatSeconds(startSeconds),
		"-i", inputPath,
		"-t", formatSeconds(durationSeconds),
		"-c", "copy",
		"-avoid_negative_ts", "make_zero",
		"-y",
		tmpPath)

	output, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(tmpPath)
		log.Printf("[transcode] ffmpeg clip extraction failed: %s", strings.TrimSpace(string(output)))
		return fmt.Errorf("failed to extract clip from %s: %v", filepath.Base(inputPath), err)
	}

	if err := os.Rename(tmpPath, outputPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize clip: %v", err)
	}
	return nil
}

// GetVideoDuration returns the duration of a video file in seconds using ffprobe.
func (t *Transcoder) GetVideoDuration(filePath string) (float64, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return 0, fmt.Errorf("video file does not exist: %s", filePath)
	}

	cmd := exec.Command(t.FFprobePath,
		"-v", "quiet",
		"-show_entries", "format=duration",
		"-of", "csv=p=0",
		filePath)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to get video duration using ffprobe: %v", err)
	}

	durationStr := strings.TrimSpace(string(output))
	if durationStr == "" {
		return 0, fmt.Errorf("empty duration output from ffprobe")
	}

	duration, err := strconv.ParseFloat(durationStr, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse duration '%s': %v", durationStr, err)
	}
	return duration, nil
}

// GetVideoFrameRate returns the average frame rate of the first video
// stream, probed with ffprobe. ffprobe reports the rate as a rational
// such as "30/1" or "30000/1001".
func (t *Transcoder) GetVideoFrameRate(filePath string) (float64, error) {
	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return 0, fmt.Errorf("video file does not exist: %s", filePath)
	}

	cmd := exec.Command(t.FFprobePath,
		"-v", "quiet",
		"-select_streams", "v:0",
		"-show_entries", "stream=r_frame_rate",
		"-of", "csv=p=0",
		filePath)

	output, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("failed to get frame rate using ffprobe: %v", err)
	}

	return ParseFrameRate(strings.TrimSpace(string(output)))
}

// ParseFrameRate converts an ffprobe rational frame rate ("30000/1001",
// "25/1", or a bare "30") into frames per second.
func ParseFrameRate(rate string) (float64, error) {
	if rate == "" {
		return 0, fmt.Errorf("empty frame rate")
	}

	num, den, found := strings.Cut(rate, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse frame rate '%s': %v", rate, err)
	}
	if !found {
		return n, nil
	}

	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0, fmt.Errorf("failed to parse frame rate '%s'", rate)
	}
	return n / d, nil
}

func formatSeconds(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
