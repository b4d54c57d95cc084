package engine

import (
	"context"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invoice-extractor/pkg/logger"
)

func TestExecRunnerCapturesOutput(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	r := ExecRunner{Logger: logger.Discard()}

	out, errb, err := r.Run(context.Background(), "sh", "-c", "printf factura; printf aviso >&2")
	require.NoError(t, err)
	assert.Equal(t, "factura", string(out))
	assert.Equal(t, "aviso", string(errb))

	_, errb, err = r.Run(context.Background(), "sh", "-c", "printf roto >&2; exit 3")
	require.Error(t, err)
	assert.Equal(t, "roto", string(errb))
}

func TestExecRunnerTimeout(t *testing.T) {
	if _, err := exec.LookPath("sleep"); err != nil {
		t.Skip("sleep not available")
	}
	r := ExecRunner{Logger: logger.Discard(), Timeout: 50 * time.Millisecond}

	start := time.Now()
	_, _, err := r.Run(context.Background(), "sleep", "5")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, "ab [truncated]", truncate("abcdef", 2))
	// "ñ" is two bytes; a cut through it drops the partial rune
	assert.True(t, strings.HasPrefix(truncate("añb", 2), "a "))
}
