package engine

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner executes an external converter such as pdftotext. Tests replace
// it with a stub.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs converters as child processes.
type ExecRunner struct {
	Logger *slog.Logger
	// Timeout bounds one conversion. Zero leaves only ctx in charge.
	Timeout time.Duration
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stderr = &stderr

	started := time.Now()
	stdout, err := cmd.Output()
	if ctx.Err() == context.DeadlineExceeded {
		err = fmt.Errorf("%s timed out after %s: %w", name, time.Since(started).Round(time.Millisecond), ctx.Err())
	}

	log := r.Logger
	if log == nil {
		log = slog.Default()
	}
	attrs := []any{"converter", name, "elapsed_ms", time.Since(started).Milliseconds()}
	if err != nil {
		log.WarnContext(ctx, "document conversion failed",
			append(attrs, "error", err, "stderr", truncate(stderr.String(), 4096))...)
	} else {
		log.DebugContext(ctx, "document converted", append(attrs, "output_bytes", len(stdout))...)
	}
	return stdout, stderr.Bytes(), err
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return strings.ToValidUTF8(s[:n], "") + " [truncated]"
}
