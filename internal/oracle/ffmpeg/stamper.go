// Package ffmpeg runs the external ffmpeg stamping step: logo overlay,
// "VeriFYD Certified" caption, and the certificate id embedded as stream
// metadata.
package ffmpeg

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
)

// Stamper shells out to ffmpeg. The command's stderr is logged for
// operators but never surfaced to callers; the lifecycle engine maps any
// failure to a generic stamping error.
type Stamper struct {
	ffmpegPath string
	logoPath   string
	logger     *slog.Logger
}

func New(ffmpegPath, logoPath string, logger *slog.Logger) *Stamper {
	return &Stamper{
		ffmpegPath: ffmpegPath,
		logoPath:   logoPath,
		logger:     logger.With("component", "ffmpeg_stamper"),
	}
}

func (s *Stamper) Stamp(ctx context.Context, src, dst string, certID string) error {
	args := []string{
		"-y",
		"-i", src,
		"-i", s.logoPath,
		"-filter_complex",
		"overlay=W-w-20:H-h-20," +
			"drawtext=text='VeriFYD Certified':fontsize=28:fontcolor=white:x=20:y=H-th-20",
		"-metadata", fmt.Sprintf("cert_id=%s", certID),
		"-c:v", "libx264",
		"-preset", "fast",
		"-crf", "23",
		"-c:a", "aac",
		dst,
	}

	cmd := exec.CommandContext(ctx, s.ffmpegPath, args...)
	output, err := cmd.CombinedOutput()
	if err != nil {
		// A failed run may leave a truncated dst behind; remove it so no
		// half-written file can ever be mistaken for a stamped artifact.
		_ = os.Remove(dst)
		s.logger.ErrorContext(ctx, "ffmpeg stamping failed",
			"cert_id", certID,
			"error", err,
			"output", string(output),
		)
		return fmt.Errorf("ffmpeg stamp %s: %w", certID, err)
	}
	return nil
}
