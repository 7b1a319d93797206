// Package commands matches normalized inbound text against a registry of
// chat commands, each with its own authorization policy.
package commands

import (
	"strings"
)

// Outcome tells the admission pipeline what to do after a command lookup.
type Outcome int

const (
	// OutcomeReplyStop means the command produced a reply and the turn
	// should not reach the agent.
	OutcomeReplyStop Outcome = iota
	// OutcomeNoReplyStop means the command was handled silently.
	OutcomeNoReplyStop
	// OutcomePassThrough means no command matched; continue to the agent.
	OutcomePassThrough
)

// Policy controls who may invoke a command and in what context.
type Policy struct {
	AllowInGroup      bool
	RequiresAuth      bool
	RequireMainSession bool
}

// Request describes one inbound candidate for command matching.
type Request struct {
	RawText       string
	IsGroupChat   bool
	IsMainSession bool
	IsAuthorized  bool // caller already consulted the pairing allow-list

	// SessionKey is resolved by the caller before routing, so handlers that
	// act on session state (e.g. reset) know which session to touch.
	SessionKey string
}

// HandlerFunc executes a matched command and returns the reply text (if
// any) plus whether a reply should be sent.
type HandlerFunc func(req Request, args string) (reply string, shouldReply bool)

// Command is one entry in the router's registry.
type Command struct {
	CanonicalName string
	TextAliases   []string
	AcceptsArgs   bool
	Policy        Policy
	Handler       HandlerFunc
}

// Router holds the ordered command registry and the reply template used
// when an authorized-only command is invoked by a non-authorized sender.
type Router struct {
	commands []Command
	// UnauthorizedReply renders the pairing-required reply text. Injected so the router stays decoupled from
	// the Pairing Store.
	UnauthorizedReply func(req Request) string
}

// NewRouter creates an empty command router.
func NewRouter() *Router {
	return &Router{}
}

// Register appends a command to the registry. Registration order is the
// match-priority order: the first alias match wins.
func (r *Router) Register(c Command) {
	r.commands = append(r.commands, c)
}

// Normalize trims, collapses internal whitespace, lowercases, and strips
// at most one leading '/'.
func Normalize(text string) string {
	s := strings.TrimSpace(text)
	s = strings.Join(strings.Fields(s), " ")
	s = strings.ToLower(s)
	s = strings.TrimPrefix(s, "/")
	return s
}

// Route matches req.RawText against the registry in registration order
// and returns the outcome plus any reply text.
func (r *Router) Route(req Request) (Outcome, string) {
	normalized := Normalize(req.RawText)

	for _, cmd := range r.commands {
		alias, args, ok := matchCommand(normalized, cmd)
		if !ok {
			continue
		}
		_ = alias

		if cmd.Policy.RequireMainSession && !req.IsMainSession {
			return OutcomeNoReplyStop, ""
		}
		if cmd.Policy.RequiresAuth && !req.IsAuthorized {
			reply := ""
			if r.UnauthorizedReply != nil {
				reply = r.UnauthorizedReply(req)
			}
			return OutcomeReplyStop, reply
		}
		if req.IsGroupChat && !cmd.Policy.AllowInGroup {
			return OutcomeNoReplyStop, ""
		}

		reply, shouldReply := cmd.Handler(req, args)
		if shouldReply {
			return OutcomeReplyStop, reply
		}
		return OutcomeNoReplyStop, ""
	}

	return OutcomePassThrough, ""
}

// matchCommand checks whether normalized text matches one of cmd's
// aliases, honoring the acceptsArgs constraint.
func matchCommand(normalized string, cmd Command) (alias, args string, ok bool) {
	for _, a := range cmd.TextAliases {
		a = strings.ToLower(a)
		if normalized == a {
			return a, "", true
		}
		if cmd.AcceptsArgs && strings.HasPrefix(normalized, a+" ") {
			return a, strings.TrimSpace(normalized[len(a):]), true
		}
	}
	return "", "", false
}
