package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// ErrSamplerUnavailable is returned when ffmpeg is not installed. Video
// artifacts are still ingested; pixel-level detectors simply skip.
var ErrSamplerUnavailable = errors.New("frame sampler unavailable")

// FrameSampler extracts still frames from video artifacts via ffmpeg.
type FrameSampler struct {
	ffmpegPath string
	tempDir    string
	log        zerolog.Logger
}

func NewFrameSampler(logger zerolog.Logger) (*FrameSampler, error) {
	ffmpegPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, ErrSamplerUnavailable
	}

	tempDir := filepath.Join(os.TempDir(), "verifyai-frames")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, fmt.Errorf("create temp directory: %w", err)
	}

	return &FrameSampler{
		ffmpegPath: ffmpegPath,
		tempDir:    tempDir,
		log:        logger.With().Str("component", "frame_sampler").Logger(),
	}, nil
}

// SampleFrames extracts count frames at evenly spaced timestamps and returns
// them as JPEG bytes. Frames that fail to extract are dropped; an error is
// returned only when no frame could be extracted.
func (fs *FrameSampler) SampleFrames(ctx context.Context, videoBytes []byte, count int) ([][]byte, error) {
	videoPath, err := fs.writeTemp(videoBytes)
	if err != nil {
		return nil, err
	}
	defer os.Remove(videoPath)

	duration, err := fs.videoDuration(ctx, videoPath)
	if err != nil {
		return nil, fmt.Errorf("probe video duration: %w", err)
	}
	if duration <= 0 {
		return nil, fmt.Errorf("invalid video duration: %f", duration)
	}

	frames := make([][]byte, 0, count)
	interval := duration / float64(count+1)

	for i := 1; i <= count; i++ {
		timestamp := interval * float64(i)
		frame, err := fs.extractFrame(ctx, videoPath, timestamp)
		if err != nil {
			fs.log.Warn().Err(err).Float64("timestamp", timestamp).Msg("frame extraction failed")
			continue
		}
		frames = append(frames, frame)
	}

	if len(frames) == 0 {
		return nil, fmt.Errorf("no frames extracted (attempted %d)", count)
	}

	fs.log.Debug().Int("extracted", len(frames)).Int("requested", count).Msg("sampled frames")
	return frames, nil
}

// MidFrame returns a single frame from the middle of the video. Pixel-level
// detectors run on this representative frame rather than the full stream.
func (fs *FrameSampler) MidFrame(ctx context.Context, videoBytes []byte) ([]byte, error) {
	frames, err := fs.SampleFrames(ctx, videoBytes, 1)
	if err != nil {
		return nil, err
	}
	return frames[0], nil
}

func (fs *FrameSampler) writeTemp(videoBytes []byte) (string, error) {
	f, err := os.CreateTemp(fs.tempDir, "artifact-*.bin")
	if err != nil {
		return "", fmt.Errorf("create temp video: %w", err)
	}
	if _, err := f.Write(videoBytes); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp video: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp video: %w", err)
	}
	return f.Name(), nil
}

func (fs *FrameSampler) videoDuration(ctx context.Context, videoPath string) (float64, error) {
	if ffprobePath, err := exec.LookPath("ffprobe"); err == nil {
		cmd := exec.CommandContext(ctx, ffprobePath,
			"-v", "error",
			"-show_entries", "format=duration",
			"-of", "default=noprint_wrappers=1:nokey=1",
			videoPath)

		var stdout bytes.Buffer
		cmd.Stdout = &stdout

		if err := cmd.Run(); err == nil {
			durationStr := strings.TrimSpace(stdout.String())
			if duration, err := strconv.ParseFloat(durationStr, 64); err == nil && duration > 0 {
				return duration, nil
			}
		}
	}

	// Fallback: parse the Duration line from ffmpeg's stderr.
	cmd := exec.CommandContext(ctx, fs.ffmpegPath, "-i", videoPath, "-f", "null", "-")
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	_ = cmd.Run()

	output := stderr.String()
	startIndex := strings.Index(output, "Duration: ")
	if startIndex == -1 {
		return 0, fmt.Errorf("duration not found in ffmpeg output")
	}
	startIndex += len("Duration: ")
	endIndex := strings.Index(output[startIndex:], ",")
	if endIndex == -1 {
		return 0, fmt.Errorf("invalid duration format")
	}

	parts := strings.Split(output[startIndex:startIndex+endIndex], ":")
	if len(parts) != 3 {
		return 0, fmt.Errorf("invalid duration format: %s", output[startIndex:startIndex+endIndex])
	}

	hours, err := strconv.ParseFloat(parts[0], 64)
	if err != nil {
		return 0, err
	}
	minutes, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, err
	}
	seconds, err := strconv.ParseFloat(parts[2], 64)
	if err != nil {
		return 0, err
	}

	return hours*3600 + minutes*60 + seconds, nil
}

// newFrameFile reserves a unique output path for one extraction. Frames
// from concurrent analyses share tempDir, so the path must never collide
// on timestamp or content.
func (fs *FrameSampler) newFrameFile() (string, error) {
	f, err := os.CreateTemp(fs.tempDir, "frame-*.jpg")
	if err != nil {
		return "", fmt.Errorf("create frame file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close frame file: %w", err)
	}
	return f.Name(), nil
}

func (fs *FrameSampler) extractFrame(ctx context.Context, videoPath string, timestamp float64) ([]byte, error) {
	tempFile, err := fs.newFrameFile()
	if err != nil {
		return nil, err
	}
	defer os.Remove(tempFile)

	args := []string{
		"-ss", fmt.Sprintf("%.2f", timestamp),
		"-i", videoPath,
		"-vframes", "1",
		"-q:v", "2",
		"-f", "mjpeg",
		"-y", tempFile,
	}

	cmd := exec.CommandContext(ctx, fs.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("extract frame at %.2f: %w (%s)", timestamp, err, strings.TrimSpace(stderr.String()))
	}

	frame, err := os.ReadFile(tempFile)
	if err != nil {
		return nil, fmt.Errorf("read extracted frame: %w", err)
	}
	return frame, nil
}

func (fs *FrameSampler) Cleanup() error {
	return os.RemoveAll(fs.tempDir)
}
