package config

import "testing"

func TestModelChain_DefaultsWhenUnset(t *testing.T) {
	var c Config
	chain := c.ModelChain()
	if len(chain) != 1 {
		t.Fatalf("chain = %+v, want exactly the default primary", chain)
	}
	if chain[0].Provider != "anthropic" || chain[0].ModelID != "claude-sonnet-4-20250514" {
		t.Fatalf("default primary = %+v, want anthropic/claude-sonnet-4-20250514", chain[0])
	}
}

func TestModelChain_FallbacksResolvedAndDeduped(t *testing.T) {
	c := Config{
		Agent: AgentConfig{
			Model: ModelConfig{
				Provider:  "openai",
				Model:     "gpt-x",
				Fallbacks: []string{"anthropic/claude-y", "anthropic/claude-y", "google/gemini-z"},
			},
		},
	}
	chain := c.ModelChain()
	if len(chain) != 3 {
		t.Fatalf("chain = %+v, want 3 deduplicated entries", chain)
	}
	if chain[0].Provider != "openai" || chain[0].ModelID != "gpt-x" {
		t.Fatalf("primary = %+v", chain[0])
	}
	if chain[1].Provider != "anthropic" || chain[1].ModelID != "claude-y" {
		t.Fatalf("first fallback = %+v", chain[1])
	}
	if chain[2].Provider != "google" || chain[2].ModelID != "gemini-z" {
		t.Fatalf("second fallback = %+v", chain[2])
	}
}

func TestModelChain_AliasResolution(t *testing.T) {
	c := Config{
		Agent: AgentConfig{
			Model: ModelConfig{
				Provider:  "openai",
				Model:     "gpt-x",
				Fallbacks: []string{"fast"},
			},
			Models: map[string]ModelAlias{
				"fast": {Alias: "anthropic/claude-haiku"},
			},
		},
	}
	chain := c.ModelChain()
	if len(chain) != 2 {
		t.Fatalf("chain = %+v", chain)
	}
	if chain[1].Provider != "anthropic" || chain[1].ModelID != "claude-haiku" {
		t.Fatalf("resolved alias = %+v, want anthropic/claude-haiku", chain[1])
	}
}

func TestModelChain_AllowListExcludesPrimary(t *testing.T) {
	c := Config{
		Agent: AgentConfig{
			Model: ModelConfig{
				Provider:  "openai",
				Model:     "gpt-x",
				Fallbacks: []string{"anthropic/claude-y", "google/gemini-z"},
			},
			Models: map[string]ModelAlias{
				"anthropic/claude-y": {Alias: "anthropic/claude-y"},
			},
		},
	}
	chain := c.ModelChain()
	if len(chain) != 2 {
		t.Fatalf("chain = %+v, want primary plus the one allow-listed fallback", chain)
	}
	if chain[1].Provider != "anthropic" || chain[1].ModelID != "claude-y" {
		t.Fatalf("fallback = %+v, want the allow-listed candidate", chain[1])
	}
}
