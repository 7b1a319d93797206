package providers

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	tiktoken "github.com/pkoukk/tiktoken-go"

	"github.com/clawdbot/clawdbot/internal/agent"
)

// Endpoint names one OpenAI-compatible chat completions endpoint.
type Endpoint struct {
	BaseURL string
	APIKey  string
}

// ChatBackend implements agent.Backend against an OpenAI-compatible chat
// completions API (the shape both OpenAI and Gemini's compatibility layer
// expose), streaming via SSE.
type ChatBackend struct {
	Endpoints map[string]Endpoint // keyed by provider name
	HTTP      *http.Client
	Retry     RetryConfig
}

// NewChatBackend builds a ChatBackend with sane HTTP/retry defaults.
func NewChatBackend(endpoints map[string]Endpoint) *ChatBackend {
	return &ChatBackend{
		Endpoints: endpoints,
		HTTP:      &http.Client{Timeout: 0},
		Retry:     DefaultRetryConfig(),
	}
}

// Invoke satisfies agent.Backend, dispatching the HTTP call under the
// shared retry discipline (b.Retry; model fallback is left to the Agent
// Runner) and translating SSE chunks into
// agent.BackendEvent values.
func (b *ChatBackend) Invoke(ctx context.Context, req agent.BackendRequest) (<-chan agent.BackendEvent, error) {
	ep, ok := b.Endpoints[req.Provider]
	if !ok {
		return nil, fmt.Errorf("providers: unknown provider %q", req.Provider)
	}

	events := make(chan agent.BackendEvent, 16)

	resp, err := RetryDo(ctx, b.Retry, func() (*http.Response, error) {
		return b.startStream(ctx, ep, req)
	})
	if err != nil {
		close(events)
		return events, err
	}

	go b.pump(ctx, resp, events)
	return events, nil
}

func (b *ChatBackend) startStream(ctx context.Context, ep Endpoint, req agent.BackendRequest) (*http.Response, error) {
	msgs := []Message{
		{Role: "system", Content: req.SystemPromptSuffix + "\n\n" + req.SkillsPrompt},
		{Role: "user", Content: req.Message},
	}

	body, err := json.Marshal(map[string]interface{}{
		"model":    req.ModelID,
		"messages": msgs,
		"stream":   true,
	})
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, ep.BaseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+ep.APIKey)

	resp, err := b.HTTP.Do(httpReq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		var retryAfter time.Duration
		if v := resp.Header.Get("Retry-After"); v != "" {
			retryAfter = ParseRetryAfter(v)
		}
		return nil, &HTTPError{Status: resp.StatusCode, RetryAfter: retryAfter}
	}
	return resp, nil
}

func (b *ChatBackend) pump(ctx context.Context, resp *http.Response, events chan<- agent.BackendEvent) {
	defer close(events)
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var final strings.Builder
	var toolName string
	var toolArgs strings.Builder

	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		payload := strings.TrimPrefix(line, "data: ")
		if payload == "[DONE]" {
			break
		}

		var chunk openAIStreamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta

		if delta.Content != "" {
			final.WriteString(delta.Content)
			events <- agent.BackendEvent{Kind: agent.EventMessageUpdate, TextDelta: delta.Content, Role: "assistant"}
		}

		for _, tc := range delta.ToolCalls {
			if tc.Function.Name != "" {
				if toolName != "" {
					events <- agent.BackendEvent{Kind: agent.EventToolExecutionEnd, ToolName: toolName, ToolResult: toolArgs.String()}
					toolArgs.Reset()
				}
				toolName = tc.Function.Name
				events <- agent.BackendEvent{Kind: agent.EventToolExecutionStart, ToolName: toolName}
			}
			toolArgs.WriteString(tc.Function.Arguments)
		}

		if chunk.Choices[0].FinishReason != "" {
			var usage *agent.Usage
			if chunk.Usage != nil {
				usage = &agent.Usage{Input: int64(chunk.Usage.PromptTokens), Output: int64(chunk.Usage.CompletionTokens)}
			}
			events <- agent.BackendEvent{Kind: agent.EventMessageEnd, FinalText: final.String(), Usage: usage}
		}
	}
}

// EstimateContextTokens approximates the token count of text using a
// cl100k_base encoding, for session.contextTokens bookkeeping when the
// backend's own usage accounting is unavailable (e.g. mid-stream budgeting).
func EstimateContextTokens(text string) int {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		return len(text) / 4
	}
	return len(enc.Encode(text, nil, nil))
}
