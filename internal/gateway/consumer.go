package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/clawdbot/clawdbot/internal/agent"
	"github.com/clawdbot/clawdbot/internal/bridge"
	"github.com/clawdbot/clawdbot/internal/bus"
	"github.com/clawdbot/clawdbot/internal/commands"
	"github.com/clawdbot/clawdbot/internal/cron"
	"github.com/clawdbot/clawdbot/internal/dedup"
	"github.com/clawdbot/clawdbot/internal/dispatch"
	"github.com/clawdbot/clawdbot/internal/hooks"
	"github.com/clawdbot/clawdbot/internal/pairing"
	"github.com/clawdbot/clawdbot/internal/sessions"
)

const replyCompletedEvent = "reply.completed"

// gateReply runs the configured reply.completed hooks against an agent
// response before it is delivered. A blocking hook failure substitutes its
// feedback for the response instead of the original text.
func (gw *Gateway) gateReply(ctx context.Context, sessionKey, response string) string {
	if len(gw.cfg.Hooks) == 0 {
		return response
	}
	result, err := gw.hooks.EvaluateHooks(ctx, gw.cfg.Hooks, replyCompletedEvent, hooks.HookContext{
		Event:   replyCompletedEvent,
		Content: response,
	})
	if err != nil || result.Passed {
		return response
	}
	gw.log.Warn("reply blocked by hook", "sessionKey", sessionKey, "feedback", result.Feedback)
	return result.Feedback
}

// unauthorizedSentinel stands in for the pairing-required reply text inside
// the command router, which has no Provider/SenderID to build the real text
// from. handleInbound swaps it for the real pairing.ReplyText once the
// outcome comes back.
const unauthorizedSentinel = "\x00pairing-required\x00"

const heartbeatPrompt = "Heartbeat check-in. If there is nothing worth reporting, reply with exactly HEARTBEAT_OK and nothing else."

// registerCommands installs the Command Router's built-in commands and its
// pairing-required reply hook.
func registerCommands(gw *Gateway) {
	gw.router.UnauthorizedReply = func(commands.Request) string {
		return unauthorizedSentinel
	}

	gw.router.Register(commands.Command{
		CanonicalName: "reset",
		TextAliases:   []string{"reset", "new", "clear"},
		Policy:        commands.Policy{AllowInGroup: true, RequiresAuth: true},
		Handler: func(req commands.Request, _ string) (string, bool) {
			gw.sessions.Reset(req.SessionKey)
			return "Session reset.", true
		},
	})
}

// consumeInbound drains the bus's inbound queue until ctx is canceled.
func (gw *Gateway) consumeInbound(ctx context.Context) {
	for {
		msg, ok := gw.bus.ConsumeInbound(ctx)
		if !ok {
			return
		}
		gw.handleInbound(ctx, msg)
	}
}

// sessionKeyFor resolves the session key for an inbound message per the
// configured scope.
func (gw *Gateway) sessionKeyFor(msg bus.InboundMessage) string {
	scope := sessions.Scope(gw.cfg.Session.Scope)
	peerKind := sessions.PeerDirect
	if msg.PeerKind == "group" {
		peerKind = sessions.PeerGroup
	}
	return sessions.BuildScopedSessionKey(DefaultAgentID, msg.Provider, peerKind, msg.ChatID, scope, scope, gw.cfg.Session.MainKey)
}

// handleInbound runs one message through dedup, the command router, pairing
// admission, and (if nothing short-circuited) the Agent Runner.
func (gw *Gateway) handleInbound(ctx context.Context, msg bus.InboundMessage) {
	sessionKey := gw.sessionKeyFor(msg)
	isMain := sessions.IsMain(sessionKey, DefaultAgentID)

	if gw.dedup.ShouldSkip(ctx, dedup.Entry{
		Provider:        msg.Provider,
		OriginatingPeer: msg.ChatID,
		MessageID:       msg.MessageID,
		SessionKey:      sessionKey,
	}) {
		return
	}

	if isMain {
		gw.mainMu.Lock()
		gw.mainTarget = target{provider: msg.Provider, chatID: msg.ChatID}
		gw.mainMu.Unlock()
	}

	authorized := gw.pairing.IsAuthorized(msg.Provider, msg.SenderID)
	req := commands.Request{
		RawText:       msg.Content,
		IsGroupChat:   msg.PeerKind == "group",
		IsMainSession: isMain,
		IsAuthorized:  authorized,
		SessionKey:    sessionKey,
	}

	outcome, reply := gw.router.Route(req)
	if reply == unauthorizedSentinel {
		reply = gw.pairingReplyText(msg)
	}

	switch outcome {
	case commands.OutcomeReplyStop:
		if reply != "" {
			gw.dispatcherFor(ctx, msg.Provider, msg.ChatID).Enqueue(dispatch.KindFinal, dispatch.Payload{Text: reply})
		}
		return
	case commands.OutcomeNoReplyStop:
		return
	}

	if !authorized {
		gw.dispatcherFor(ctx, msg.Provider, msg.ChatID).Enqueue(dispatch.KindFinal, dispatch.Payload{Text: gw.pairingReplyText(msg)})
		return
	}

	result, err := gw.runner.Run(ctx, agent.RunRequest{SessionKey: sessionKey, Message: msg.Content})
	if err != nil {
		gw.log.Error("agent run failed", "sessionKey", sessionKey, "err", err)
		return
	}
	reply = gw.gateReply(ctx, sessionKey, result.Response)
	gw.dispatcherFor(ctx, msg.Provider, msg.ChatID).Enqueue(dispatch.KindFinal, dispatch.Payload{Text: reply})
	gw.archiveAsync(result.SessionID)
}

// archiveAsync best-effort-uploads a session's transcript after a turn,
// without making delivery wait on S3 reachability.
func (gw *Gateway) archiveAsync(sessionID string) {
	if gw.archiver == nil || sessionID == "" {
		return
	}
	go func() {
		path := gw.sessions.TranscriptPath(sessionID)
		if err := gw.archiver.Archive(context.Background(), sessionID, path); err != nil {
			gw.log.Warn("session archive failed", "sessionId", sessionID, "err", err)
		}
	}()
}

func (gw *Gateway) pairingReplyText(msg bus.InboundMessage) string {
	code := gw.pairing.RequestCode(msg.Provider, msg.SenderID)
	idLine := fmt.Sprintf("provider=%s sender=%s", msg.Provider, msg.SenderID)
	return pairing.ReplyText(idLine, msg.Provider, code.Value)
}

// deliverToMain routes text to whichever (provider, chatID) last spoke to
// the main session. Best-effort: if nothing has ever reached the main
// session, the delivery is dropped.
func (gw *Gateway) deliverToMain(text string) {
	gw.mainMu.Lock()
	t := gw.mainTarget
	gw.mainMu.Unlock()
	if t.provider == "" {
		gw.log.Warn("no known target for main session delivery, dropping")
		return
	}
	gw.dispatcherFor(context.Background(), t.provider, t.chatID).Enqueue(dispatch.KindFinal, dispatch.Payload{Text: text})
}

// heartbeatTick is the heartbeat.Tick callback: one Agent Runner turn
// against the main session using the fixed heartbeat prompt.
func (gw *Gateway) heartbeatTick(ctx context.Context) (string, error) {
	result, err := gw.runner.Run(ctx, agent.RunRequest{
		SessionKey:         sessions.MainKey(DefaultAgentID),
		Message:            heartbeatPrompt,
		SuppressDirectives: true,
	})
	if err != nil {
		return "", err
	}
	return result.Response, nil
}

// heartbeatDeliver is the heartbeat.Deliver callback for non-suppressed
// heartbeat responses.
func (gw *Gateway) heartbeatDeliver(text string) {
	gw.deliverToMain(text)
}

// cronDispatcher adapts the Gateway to cron.Dispatcher.
type cronDispatcher struct {
	gw *Gateway
}

func (c *cronDispatcher) runMainTurn(ctx context.Context, message string) error {
	result, err := c.gw.runner.Run(ctx, agent.RunRequest{SessionKey: sessions.MainKey(DefaultAgentID), Message: message})
	if err != nil {
		return err
	}
	c.gw.deliverToMain(c.gw.gateReply(ctx, sessions.MainKey(DefaultAgentID), result.Response))
	c.gw.archiveAsync(result.SessionID)
	return nil
}

func (c *cronDispatcher) EnqueueMainSystemEvent(ctx context.Context, text string) error {
	return c.runMainTurn(ctx, "[system event] "+text)
}

func (c *cronDispatcher) EnqueueMainAgentTurn(ctx context.Context, message string, _ cron.WakeMode) error {
	return c.runMainTurn(ctx, message)
}

func (c *cronDispatcher) RunIsolated(ctx context.Context, payload cron.Payload, timeout time.Duration) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	sessionKey := sessions.Key(DefaultAgentID, "cron:"+uuid.NewString())
	result, err := c.gw.runner.Run(ctx, agent.RunRequest{SessionKey: sessionKey, Message: payload.Message, SuppressMemory: true})
	if err != nil {
		return "", err
	}

	if payload.Deliver && payload.Provider != "" && payload.To != "" {
		c.gw.dispatcherFor(ctx, payload.Provider, payload.To).Enqueue(dispatch.KindFinal, dispatch.Payload{Text: result.Response})
	}
	return result.Response, nil
}

func (c *cronDispatcher) PostToMain(_ context.Context, text string) error {
	c.gw.deliverToMain(text)
	return nil
}

// handleBridgeCommand is the bridge.CommandHandler: a "chat" command from an
// attached companion node drives one Agent Runner turn against a session
// scoped to that node, replying over the same bridge connection.
func (gw *Gateway) handleBridgeCommand(ctx context.Context, sess *bridge.Session, cmd bridge.CommandFrame) {
	if cmd.Command != "chat" {
		return
	}
	text := cmd.Args["text"]
	if text == "" {
		return
	}

	sessionKey := sessions.Key(DefaultAgentID, "bridge:"+sess.NodeID)
	result, err := gw.runner.Run(ctx, agent.RunRequest{SessionKey: sessionKey, Message: text})
	if err != nil {
		_ = sess.Send("error", map[string]string{"message": err.Error()})
		return
	}
	_ = sess.Send("reply", map[string]string{"text": result.Response})
}
