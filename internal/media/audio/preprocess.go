package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// SampleRate is the rate, in Hz, every recognition backend expects.
const SampleRate = 16000

// Filters applied when normalization is enabled: loudness to -16 LUFS with a
// -1.5 dBTP ceiling, then leading silence below -50 dB removed.
const (
	LoudnormFilter = "loudnorm=I=-16:TP=-1.5"
	SilenceFilter  = "silenceremove=start_periods=1:start_threshold=-50dB"
)

// CommandRunner executes an external command. Tests substitute it.
type CommandRunner func(ctx context.Context, name string, args ...string) error

// Options controls preprocessing.
type Options struct {
	FFmpegBinary string
	Normalize    bool
	Runner       CommandRunner
}

// Preprocess converts source to a 16 kHz mono signed 16-bit WAV at dest.
func Preprocess(ctx context.Context, source, dest string, opts Options) error {
	source = strings.TrimSpace(source)
	dest = strings.TrimSpace(dest)
	if source == "" {
		return errors.New("preprocess: source path required")
	}
	if dest == "" {
		return errors.New("preprocess: destination path required")
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("preprocess: ensure destination dir: %w", err)
	}

	binary := strings.TrimSpace(opts.FFmpegBinary)
	if binary == "" {
		binary = "ffmpeg"
	}
	runner := opts.Runner
	if runner == nil {
		runner = runFFmpeg
	}
	if err := runner(ctx, binary, BuildArgs(source, dest, opts.Normalize)...); err != nil {
		return fmt.Errorf("preprocess: %w", err)
	}
	return nil
}

// BuildArgs returns the ffmpeg argument list for a preprocessing run.
func BuildArgs(source, dest string, normalize bool) []string {
	args := []string{
		"-y",
		"-hide_banner",
		"-loglevel", "error",
		"-i", source,
		"-vn",
		"-sn",
		"-dn",
	}
	if normalize {
		args = append(args, "-af", LoudnormFilter+","+SilenceFilter)
	}
	args = append(args,
		"-ar", fmt.Sprintf("%d", SampleRate),
		"-ac", "1",
		"-sample_fmt", "s16",
		"-c:a", "pcm_s16le",
		dest,
	)
	return args
}

func runFFmpeg(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return nil
}
