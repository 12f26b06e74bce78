package photodir

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// FFProbe reads video durations with the ffprobe binary.
type FFProbe struct {
	command string
}

// NewFFProbe returns a prober, or nil when ffprobe is not installed so the
// caller can fall back to zero durations.
func NewFFProbe() *FFProbe {
	if _, err := exec.LookPath("ffprobe"); err != nil {
		return nil
	}
	return &FFProbe{command: "ffprobe"}
}

// ProbeDuration implements DurationProber.
func (p *FFProbe) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	cmd := exec.CommandContext(ctx, p.command,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	out, err := cmd.Output()
	if err != nil {
		return 0, fmt.Errorf("probing %s: %w", path, err)
	}
	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("parsing probe output for %s: %w", path, err)
	}
	return time.Duration(seconds * float64(time.Second)), nil
}
