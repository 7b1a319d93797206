package commands

import "testing"

func TestNormalize(t *testing.T) {
	cases := map[string]string{
		"  /Reset   now  ": "reset now",
		"/New":             "new",
		"CLEAR":            "clear",
	}
	for in, want := range cases {
		if got := Normalize(in); got != want {
			t.Errorf("Normalize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRouter_PassThroughWhenNoCommandMatches(t *testing.T) {
	r := NewRouter()
	r.Register(Command{
		CanonicalName: "reset",
		TextAliases:   []string{"reset", "new"},
		Handler:       func(Request, string) (string, bool) { return "", false },
	})

	outcome, reply := r.Route(Request{RawText: "hello there"})
	if outcome != OutcomePassThrough {
		t.Fatalf("outcome = %v, want PassThrough", outcome)
	}
	if reply != "" {
		t.Fatalf("expected no reply, got %q", reply)
	}
}

func TestRouter_FirstAliasMatchWins(t *testing.T) {
	r := NewRouter()
	r.Register(Command{
		CanonicalName: "one",
		TextAliases:   []string{"x"},
		Handler:       func(Request, string) (string, bool) { return "first", true },
	})
	r.Register(Command{
		CanonicalName: "two",
		TextAliases:   []string{"x"},
		Handler:       func(Request, string) (string, bool) { return "second", true },
	})

	_, reply := r.Route(Request{RawText: "x"})
	if reply != "first" {
		t.Fatalf("reply = %q, want %q (registration order wins)", reply, "first")
	}
}

func TestRouter_NoTrailingTokenAllowedWhenAcceptsArgsFalse(t *testing.T) {
	r := NewRouter()
	called := false
	r.Register(Command{
		CanonicalName: "reset",
		TextAliases:   []string{"reset"},
		AcceptsArgs:   false,
		Handler: func(Request, string) (string, bool) {
			called = true
			return "ok", true
		},
	})

	outcome, _ := r.Route(Request{RawText: "reset now"})
	if outcome != OutcomePassThrough || called {
		t.Fatalf("expected a trailing token to prevent the match when acceptsArgs=false, got outcome=%v called=%v", outcome, called)
	}
}

func TestRouter_AcceptsArgsPassesRemainder(t *testing.T) {
	r := NewRouter()
	var gotArgs string
	r.Register(Command{
		CanonicalName: "reset",
		TextAliases:   []string{"reset"},
		AcceptsArgs:   true,
		Handler: func(_ Request, args string) (string, bool) {
			gotArgs = args
			return "ok", true
		},
	})

	r.Route(Request{RawText: "reset work-session"})
	if gotArgs != "work-session" {
		t.Fatalf("args = %q, want %q", gotArgs, "work-session")
	}
}

func TestRouter_RequiresAuthReturnsUnauthorizedReply(t *testing.T) {
	r := NewRouter()
	r.UnauthorizedReply = func(Request) string { return "pairing required" }
	r.Register(Command{
		CanonicalName: "admin",
		TextAliases:   []string{"admin"},
		Policy:        Policy{RequiresAuth: true},
		Handler:       func(Request, string) (string, bool) { return "secret", true },
	})

	outcome, reply := r.Route(Request{RawText: "admin", IsAuthorized: false})
	if outcome != OutcomeReplyStop {
		t.Fatalf("outcome = %v, want ReplyStop", outcome)
	}
	if reply != "pairing required" {
		t.Fatalf("reply = %q, want the unauthorized template", reply)
	}
}

func TestRouter_GroupChatDisallowedIsSilentlyDropped(t *testing.T) {
	r := NewRouter()
	called := false
	r.Register(Command{
		CanonicalName: "reset",
		TextAliases:   []string{"reset"},
		Policy:        Policy{AllowInGroup: false},
		Handler: func(Request, string) (string, bool) {
			called = true
			return "ok", true
		},
	})

	outcome, reply := r.Route(Request{RawText: "reset", IsGroupChat: true})
	if outcome != OutcomeNoReplyStop || reply != "" || called {
		t.Fatalf("expected a silent drop in group chat, got outcome=%v reply=%q called=%v", outcome, reply, called)
	}
}

func TestRouter_RequireMainSessionBlocksNonMain(t *testing.T) {
	r := NewRouter()
	r.Register(Command{
		CanonicalName: "reset",
		TextAliases:   []string{"reset"},
		Policy:        Policy{RequireMainSession: true},
		Handler:       func(Request, string) (string, bool) { return "ok", true },
	})

	outcome, _ := r.Route(Request{RawText: "reset", IsMainSession: false})
	if outcome != OutcomeNoReplyStop {
		t.Fatalf("outcome = %v, want NoReplyStop", outcome)
	}
}
