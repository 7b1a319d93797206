package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"sync"
	"time"

	shellwords "github.com/mattn/go-shellwords"
)

// BashTool implements the "bash" tool: runs a shell command inside the
// workspace, gated by an ExecApprovalManager. backgroundMs/timeoutSec mirror
// agent.bash config.
type BashTool struct {
	workspace    string
	approval     *ExecApprovalManager
	timeout      time.Duration
	backgroundMs int

	mu         sync.Mutex
	background map[string]*exec.Cmd
	nextID     int
}

func NewBashTool(workspace string, approval *ExecApprovalManager, timeoutSec, backgroundMs int) *BashTool {
	if approval == nil {
		cfg := DefaultExecApprovalConfig()
		approval = NewExecApprovalManager(cfg)
	}
	timeout := time.Duration(timeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 0 // unlimited, "Timeouts"
	}
	return &BashTool{
		workspace:    workspace,
		approval:     approval,
		timeout:      timeout,
		backgroundMs: backgroundMs,
		background:   make(map[string]*exec.Cmd),
	}
}

func (t *BashTool) Name() string        { return "bash" }
func (t *BashTool) Description() string { return "Run a shell command in the workspace directory" }
func (t *BashTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"command": map[string]interface{}{"type": "string"},
		},
		"required": []string{"command"},
	}
}

func (t *BashTool) Execute(ctx context.Context, args map[string]interface{}) *Result {
	command, _ := args["command"].(string)
	if command == "" {
		return ErrorResult("command is required")
	}

	switch t.approval.CheckCommand(command) {
	case "deny":
		return ErrorResult("command execution is disabled by policy")
	case "ask":
		decision, err := t.approval.RequestApproval(command, "", 2*time.Minute)
		if err != nil {
			return ErrorResult(fmt.Sprintf("approval not granted: %v", err))
		}
		if decision == ApprovalDeny {
			return ErrorResult("command denied by approver")
		}
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if t.timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, "/bin/sh", "-c", command)
	cmd.Dir = t.workspace

	if t.backgroundMs > 0 {
		if done, res := t.runWithBackgroundDeadline(cmd); done {
			return res
		}
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()

	output := stdout.String()
	if stderr.Len() > 0 {
		output += "\n--- stderr ---\n" + stderr.String()
	}
	if err != nil {
		return &Result{ForLLM: fmt.Sprintf("%s\n(exit error: %v)", output, err), IsError: true}
	}
	return NewResult(output)
}

// runWithBackgroundDeadline starts cmd and, if it hasn't finished within
// backgroundMs, detaches it into the background registry and returns a
// handle immediately instead of blocking the turn.
func (t *BashTool) runWithBackgroundDeadline(cmd *exec.Cmd) (bool, *Result) {
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return true, ErrorResult(fmt.Sprintf("failed to start command: %v", err))
	}

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	select {
	case err := <-done:
		output := stdout.String()
		if stderr.Len() > 0 {
			output += "\n--- stderr ---\n" + stderr.String()
		}
		if err != nil {
			return true, &Result{ForLLM: fmt.Sprintf("%s\n(exit error: %v)", output, err), IsError: true}
		}
		return true, NewResult(output)
	case <-time.After(time.Duration(t.backgroundMs) * time.Millisecond):
		t.mu.Lock()
		t.nextID++
		id := fmt.Sprintf("bg-%d", t.nextID)
		t.background[id] = cmd
		t.mu.Unlock()
		return true, NewResult(fmt.Sprintf("command is still running after %dms; continuing in background as %s", t.backgroundMs, id))
	}
}

// ProcessTool implements the "process" tool: inspect/manage the background
// jobs BashTool detached.
type ProcessTool struct {
	bash *BashTool
}

func NewProcessTool(bash *BashTool) *ProcessTool {
	return &ProcessTool{bash: bash}
}

func (t *ProcessTool) Name() string        { return "process" }
func (t *ProcessTool) Description() string { return "List or signal background commands started by bash" }
func (t *ProcessTool) Parameters() map[string]interface{} {
	return map[string]interface{}{
		"type": "object",
		"properties": map[string]interface{}{
			"action": map[string]interface{}{"type": "string", "description": "list|kill"},
			"id":     map[string]interface{}{"type": "string"},
		},
		"required": []string{"action"},
	}
}

func (t *ProcessTool) Execute(_ context.Context, args map[string]interface{}) *Result {
	action, _ := args["action"].(string)
	t.bash.mu.Lock()
	defer t.bash.mu.Unlock()

	switch action {
	case "list":
		if len(t.bash.background) == 0 {
			return NewResult("(no background processes)")
		}
		var out string
		for id, cmd := range t.bash.background {
			out += fmt.Sprintf("%s: pid=%d running=%t\n", id, cmd.Process.Pid, cmd.ProcessState == nil)
		}
		return NewResult(out)
	case "kill":
		id, _ := args["id"].(string)
		cmd, ok := t.bash.background[id]
		if !ok {
			return ErrorResult(fmt.Sprintf("no background process %q", id))
		}
		if err := cmd.Process.Kill(); err != nil {
			return ErrorResult(fmt.Sprintf("kill failed: %v", err))
		}
		delete(t.bash.background, id)
		return NewResult(fmt.Sprintf("killed %s", id))
	default:
		return ErrorResult(fmt.Sprintf("unknown action: %s", action))
	}
}

// tokenizeShellCommand splits a command into argv using shell-word rules,
// for callers that need to inspect argv[0] without invoking a shell
// (e.g. the external transcriber in tools.audio.transcription).
func tokenizeShellCommand(command string) ([]string, error) {
	parser := shellwords.NewParser()
	return parser.Parse(command)
}
