// Package agent implements the Agent Runner (C5): the single-flight,
// per-session coordinator that resolves workspace/skills/model context and
// drives one turn of the Model Backend, streaming its events to callbacks.
package agent

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/clawdbot/clawdbot/internal/bootstrap"
	"github.com/clawdbot/clawdbot/internal/config"
	"github.com/clawdbot/clawdbot/internal/directives"
	"github.com/clawdbot/clawdbot/internal/sessions"
	"github.com/clawdbot/clawdbot/internal/tracing"
)

// SilentReplyToken and HeartbeatToken are the two magic strings the Reply
// Dispatcher and Heartbeat Driver look for in assistant text.
const (
	SilentReplyToken = "NO_REPLY"
	HeartbeatToken   = "HEARTBEAT_OK"
)

// IsSilentReply reports whether text is exactly the silent-reply token,
// ignoring surrounding whitespace.
func IsSilentReply(text string) bool {
	return strings.TrimSpace(text) == SilentReplyToken
}

// RunRequest is the input to one Agent Runner invocation.
type RunRequest struct {
	SessionKey    string
	Message       string
	ThinkingLevel string // overrides the directive/config default when set

	SuppressDirectives bool
	SuppressMemory     bool
	AbortPrevious      bool

	OnTextChunk  func(text string)
	OnToolUse    func(name string, args map[string]interface{})
	OnToolResult func(name, result string)
}

// RunResult is the output of one Agent Runner invocation.
type RunResult struct {
	Response   string
	SessionID  string
	SessionKey string
	Usage      *Usage
	Model      string
	Directives directives.Result
}

// AttemptError records one failed model-fallback-chain candidate.
type AttemptError struct {
	Provider string
	Model    string
	Err      error
}

// FallbackError aggregates every failed candidate when the whole chain is
// exhausted.
type FallbackError struct {
	Attempts []AttemptError
}

func (e *FallbackError) Error() string {
	parts := make([]string, len(e.Attempts))
	for i, a := range e.Attempts {
		parts[i] = fmt.Sprintf("%s/%s: %v", a.Provider, a.Model, a.Err)
	}
	return "all model candidates failed: " + strings.Join(parts, "; ")
}

// SkillsProvider discovers and filters the skills available to a run. It is
// narrowed to an interface so tests can stub it.
type SkillsProvider interface {
	Skills(workspaceDir string) ([]Skill, map[string]SkillConfig)
}

// Runner is the Agent Runner: single-flight per session key, coordinating
// directive extraction, workspace/skills resolution, model-chain fallback,
// and session persistence around one Backend invocation.
type Runner struct {
	cfg      *config.Config
	sessions *sessions.Store
	backend  Backend
	skills   SkillsProvider
	clock    func() time.Time

	keysMu sync.Mutex
	keys   map[string]*runState
}

type runState struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	stateMu sync.Mutex
}

// NewRunner wires a Runner to its dependencies. clock defaults to time.Now.
func NewRunner(cfg *config.Config, store *sessions.Store, backend Backend, skills SkillsProvider, clock func() time.Time) *Runner {
	if clock == nil {
		clock = time.Now
	}
	return &Runner{
		cfg:      cfg,
		sessions: store,
		backend:  backend,
		skills:   skills,
		clock:    clock,
		keys:     make(map[string]*runState),
	}
}

func (r *Runner) stateFor(key string) *runState {
	r.keysMu.Lock()
	defer r.keysMu.Unlock()
	st, ok := r.keys[key]
	if !ok {
		st = &runState{}
		r.keys[key] = st
	}
	return st
}

// Run executes one turn against req.SessionKey. Single-flight: if another
// Run is active for the same key, this call waits on the state's mutex
// unless req.AbortPrevious cancels it first. The mutex is a plain
// sync.Mutex, so waiting calls are not guaranteed to run in arrival order.
func (r *Runner) Run(ctx context.Context, req RunRequest) (*RunResult, error) {
	st := r.stateFor(req.SessionKey)

	if req.AbortPrevious {
		st.stateMu.Lock()
		if st.cancel != nil {
			st.cancel()
		}
		st.stateMu.Unlock()
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	runCtx, cancel := context.WithCancel(ctx)
	st.stateMu.Lock()
	st.cancel = cancel
	st.stateMu.Unlock()
	defer func() {
		st.stateMu.Lock()
		st.cancel = nil
		st.stateMu.Unlock()
		cancel()
	}()

	return r.runOnce(runCtx, req)
}

func (r *Runner) runOnce(ctx context.Context, req RunRequest) (*RunResult, error) {
	ctx, span := tracing.StartSpan(ctx, "agent.run",
		attribute.String("session_key", req.SessionKey))
	defer span.End()

	// Step 1: directive extraction.
	dres := directives.Result{CleanedText: req.Message}
	if !req.SuppressDirectives {
		dres = directives.Parse(req.Message)
	}

	// Step 2: resolve workspace, materialize bootstrap files.
	workspace := bootstrap.ExpandWorkspace(r.cfg.Agent.Workspace)
	if _, err := bootstrap.EnsureWorkspace(workspace); err != nil {
		return nil, fmt.Errorf("agent: resolving workspace: %w", err)
	}
	contextFiles := bootstrap.LoadWorkspaceFiles(workspace)
	contextFiles = bootstrap.FilterForSession(contextFiles, req.SessionKey)

	// Step 3: daily memory.
	var dailyMemory string
	if !req.SuppressMemory {
		dailyMemory = LoadDailyMemory(workspace, r.clock())
	}

	// Step 4: skill discovery + filtering.
	var skillsPrompt string
	if r.skills != nil {
		available, _ := r.skills.Skills(workspace)
		skillsPrompt = skillsSummary(available)
	}

	// Step 5: skill env overrides, undone on every exit path.
	var skillConfigs map[string]SkillConfig
	var availableSkills []Skill
	if r.skills != nil {
		availableSkills, skillConfigs = r.skills.Skills(workspace)
	}
	undo := ApplySkillEnvOverrides(availableSkills, skillConfigs)
	defer undo()

	// Step 6: resolve model chain.
	chain := r.cfg.ModelChain()
	if len(chain) == 0 {
		return nil, fmt.Errorf("agent: no model candidates configured")
	}

	// Step 7: build system-prompt suffix.
	available, denied := ResolveToolNames(nil, r.cfg.Agent.Tools.Allow, r.cfg.Agent.Tools.Deny)
	thinkLevel := req.ThinkingLevel
	if thinkLevel == "" {
		thinkLevel = dres.ThinkLevel
	}
	if thinkLevel == "" {
		thinkLevel = r.cfg.Agent.Thinking
	}
	var bootstrapCtx []bootstrap.ContextFile
	for _, f := range contextFiles {
		if !f.Missing {
			bootstrapCtx = append(bootstrapCtx, bootstrap.ContextFile{Path: f.Name, Content: f.Content})
		}
	}
	suffix := BuildSystemPrompt(SystemPromptConfig{
		Model:         chain[0].Provider + "/" + chain[0].ModelID,
		Workspace:     workspace,
		Mode:          PromptFull,
		ToolNames:     available,
		SkillsSummary: skillsPrompt,
		ContextFiles:  bootstrapCtx,
		ExtraPrompt:   dailyMemory,
	})
	suffix += runtimeFooter(denied, thinkLevel)

	// Step 8: open/resume session. Only the transcript path is computed; no
	// transcript file is created or written here.
	sess := r.sessions.GetOrCreate(req.SessionKey)
	_ = r.sessions.TranscriptPath(sess.ID)

	var contextPaths []string
	for _, f := range contextFiles {
		if !f.Missing {
			contextPaths = append(contextPaths, f.Path)
		}
	}
	if dailyMemory != "" {
		contextPaths = append(contextPaths, "memory")
	}

	// Steps 9-10: invoke with fallback discipline.
	var attempts []AttemptError
	var result *RunResult
	for _, candidate := range chain {
		res, err := r.invokeOne(ctx, candidate, suffix, skillsPrompt, thinkLevel, sess.ID, dres.CleanedText, req)
		if err == nil {
			result = res
			break
		}
		if ctx.Err() != nil {
			return nil, ctx.Err() // cancellation propagates immediately, no fallback
		}
		attempts = append(attempts, AttemptError{Provider: candidate.Provider, Model: candidate.ModelID, Err: err})
	}
	if result == nil {
		return nil, &FallbackError{Attempts: attempts}
	}

	// Step 11: persist session.
	patch := sessions.Patch{}
	if result.Usage != nil {
		patch.AddInputTokens = result.Usage.Input
		patch.AddOutputTokens = result.Usage.Output
	}
	modelParts := strings.SplitN(result.Model, "/", 2)
	if len(modelParts) == 2 {
		patch.LastModel = &sessions.ModelRef{Provider: modelParts[0], ModelID: modelParts[1]}
	}
	r.sessions.Update(req.SessionKey, patch)

	result.SessionID = sess.ID
	result.SessionKey = req.SessionKey
	result.Directives = dres
	return result, nil
}

func (r *Runner) invokeOne(ctx context.Context, candidate config.ModelRef, suffix, skillsPrompt, thinkLevel, sessionID, message string, req RunRequest) (*RunResult, error) {
	// loopCtx governs only this candidate's tool-execution loop: the tool
	// loop guard cancels it on a critical detection without touching the
	// caller's ctx, so a self-triggered stop never propagates as the
	// cancellation error path the fallback chain treats specially.
	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()

	events, err := r.backend.Invoke(loopCtx, BackendRequest{
		Provider:           candidate.Provider,
		ModelID:            candidate.ModelID,
		SystemPromptSuffix: suffix,
		SkillsPrompt:       skillsPrompt,
		ThinkingLevel:      thinkLevel,
		SessionID:          sessionID,
		Message:            message,
	})
	if err != nil {
		return nil, err
	}

	var final strings.Builder
	var usage *Usage
	var loop toolLoopState
	pendingHash := make(map[string]string)
	var stopMessage string

	for ev := range events {
		switch ev.Kind {
		case EventMessageUpdate:
			if req.OnTextChunk != nil && ev.TextDelta != "" {
				req.OnTextChunk(ev.TextDelta)
			}
		case EventToolExecutionStart:
			pendingHash[ev.ToolName] = loop.record(ev.ToolName, ev.ToolArgs)
			if req.OnToolUse != nil {
				req.OnToolUse(ev.ToolName, ev.ToolArgs)
			}
		case EventToolExecutionEnd:
			if req.OnToolResult != nil {
				req.OnToolResult(ev.ToolName, ev.ToolResult)
			}
			h := pendingHash[ev.ToolName]
			loop.recordResult(h, ev.ToolResult)
			if level, msg := loop.detect(ev.ToolName, h); level != "" {
				if req.OnTextChunk != nil {
					req.OnTextChunk(msg)
				}
				if level == "critical" {
					stopMessage = msg
					cancelLoop()
				}
			}
		case EventMessageEnd:
			final.WriteString(ev.FinalText)
			if ev.Usage != nil {
				usage = ev.Usage
			}
		}
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if stopMessage != "" && final.Len() == 0 {
		final.WriteString(stopMessage)
	}

	return &RunResult{
		Response: final.String(),
		Usage:    usage,
		Model:    candidate.Provider + "/" + candidate.ModelID,
	}, nil
}

// runtimeFooter appends the denied-tool list and default thinking level, the
// two system-prompt details BuildSystemPrompt's section set doesn't cover.
func runtimeFooter(denied []string, thinkLevel string) string {
	var b strings.Builder
	if len(denied) > 0 {
		fmt.Fprintf(&b, "\n## Denied Tools\n\nDo not call these tools (denied by policy): %s\n", strings.Join(denied, ", "))
	}
	host, _ := os.Hostname()
	fmt.Fprintf(&b, "\n## Host\n\nhost=%s os=%s arch=%s\n", host, runtime.GOOS, runtime.GOARCH)
	if thinkLevel != "" {
		fmt.Fprintf(&b, "Default thinking level: %s\n", thinkLevel)
	}
	return b.String()
}

func skillsSummary(skills []Skill) string {
	if len(skills) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("<available_skills>\n")
	for _, s := range skills {
		fmt.Fprintf(&b, "  <skill name=%q location=%q/>\n", s.Name, s.Location)
	}
	b.WriteString("</available_skills>")
	return b.String()
}
