package tools

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/clawdbot/clawdbot/internal/config"
)

// Transcriber invokes the externally configured voice transcriber,
// substituting {{MediaPath}} into its configured argv before exec'ing it
// directly (no shell interpolation).
type Transcriber struct {
	cfg config.TranscriptionConfig
}

func NewTranscriber(cfg config.TranscriptionConfig) *Transcriber {
	return &Transcriber{cfg: cfg}
}

// Transcribe runs the configured command against mediaPath and returns its
// trimmed stdout as the transcript text.
func (t *Transcriber) Transcribe(ctx context.Context, mediaPath string) (string, error) {
	if len(t.cfg.Args) == 0 {
		return "", fmt.Errorf("transcription: no command configured")
	}

	argv := make([]string, 0, len(t.cfg.Args))
	for _, a := range t.cfg.Args {
		argv = append(argv, strings.ReplaceAll(a, "{{MediaPath}}", mediaPath))
	}

	// Re-tokenize the binary name through shellwords so a configured
	// single-string argv[0] with embedded flags still splits correctly
	// (operators sometimes paste a full command line into args[0]).
	head, err := tokenizeShellCommand(argv[0])
	if err != nil || len(head) == 0 {
		return "", fmt.Errorf("transcription: invalid command %q: %w", argv[0], err)
	}
	full := append(head, argv[1:]...)

	timeout := time.Duration(t.cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, full[0], full[1:]...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return strings.TrimSpace(string(out)), nil
}
