package directives

import "testing"

func TestParse_ThinkAndVerbose(t *testing.T) {
	res := Parse("/think high /v on draft a report")
	if res.CleanedText != "draft a report" {
		t.Fatalf("cleaned = %q, want %q", res.CleanedText, "draft a report")
	}
	if res.ThinkLevel != "high" {
		t.Fatalf("thinkLevel = %q, want high", res.ThinkLevel)
	}
	if res.VerboseLevel != "on" {
		t.Fatalf("verboseLevel = %q, want on", res.VerboseLevel)
	}
	if !res.HasDirectives {
		t.Fatal("expected HasDirectives = true")
	}
}

func TestParse_NoDirectives(t *testing.T) {
	res := Parse("what time is it")
	if res.HasDirectives {
		t.Fatal("expected no directives")
	}
	if res.CleanedText != "what time is it" {
		t.Fatalf("cleaned = %q, want unchanged text", res.CleanedText)
	}
}

func TestParse_UnknownArgLeavesLevelUndefined(t *testing.T) {
	res := Parse("/think bogus hello")
	if !res.HasDirectives {
		t.Fatal("expected HasDirectives = true even for unrecognized argument")
	}
	if res.ThinkLevel != "" {
		t.Fatalf("thinkLevel = %q, want empty for unrecognized argument", res.ThinkLevel)
	}
	if res.CleanedText != "hello" {
		t.Fatalf("cleaned = %q, want %q", res.CleanedText, "hello")
	}
}

func TestParse_AliasForms(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"/t max do it", "max"},
		{"/thinking ultrathink do it", "max"},
		{"/think think-hard do it", "medium"},
	}
	for _, c := range cases {
		res := Parse(c.in)
		if res.ThinkLevel != c.want {
			t.Errorf("Parse(%q).ThinkLevel = %q, want %q", c.in, res.ThinkLevel, c.want)
		}
	}
}

func TestParse_NeverFails(t *testing.T) {
	inputs := []string{"", "   ", "/", "/think", "/v", "/think/v"}
	for _, in := range inputs {
		res := Parse(in)
		_ = res // must not panic
	}
}

func TestParse_Idempotent(t *testing.T) {
	text := "/think high draft a report"
	once := Parse(text)
	twice := Parse(once.CleanedText)
	if twice.HasDirectives {
		t.Fatal("re-parsing cleaned text should find no further directives")
	}
	if twice.CleanedText != once.CleanedText {
		t.Fatalf("re-parse changed text: %q -> %q", once.CleanedText, twice.CleanedText)
	}
}
