// Package oracle defines the external collaborator contracts the lifecycle
// engine consumes. Both oracles are opaque: the engine only sees a
// pass/fail stamping outcome and an integer authenticity score.
package oracle

import "context"

// Scorer returns an authenticity score in [0,100] for a video file.
type Scorer interface {
	Score(ctx context.Context, path string) (int, error)
}

// Stamper embeds a tamper-evident watermark into src, writing the stamped
// output to dst. All-or-nothing: on error dst must not be left behind as a
// plausible artifact.
type Stamper interface {
	Stamp(ctx context.Context, src, dst string, certID string) error
}
