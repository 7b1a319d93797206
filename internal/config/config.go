// Package config loads and holds the gateway's JSON5-permissive configuration
// tree (clawd.json / clawdbot.json), plus the CLAWD_*/CLAWDBOT_* environment
// overrides that take precedence over it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	json5 "github.com/titanous/json5"

	"github.com/clawdbot/clawdbot/internal/hooks"
)

// Config is the root configuration for the Clawdbot gateway.
type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Session   SessionConfig   `json:"session"`
	Cron      CronConfig      `json:"cron"`
	Skills    SkillsConfig    `json:"skills,omitempty"`
	Plugins   PluginsConfig   `json:"plugins,omitempty"`
	Tools     ToolsConfig     `json:"tools,omitempty"`
	Bridge    BridgeConfig    `json:"bridge,omitempty"`
	Discovery DiscoveryConfig `json:"discovery,omitempty"`
	Channels  ChannelsConfig  `json:"channels,omitempty"`
	Tracing   TracingConfig   `json:"tracing,omitempty"`
	Hooks     []hooks.HookConfig `json:"hooks,omitempty"`

	mu sync.RWMutex

	// Env-only runtime flags; never serialized, set solely from CLAWD_*/
	// CLAWDBOT_* environment variables.
	stateDirOverride  string
	discoveryDisabled bool
	bridgeDisabled    bool
	cronSkipped       bool
}

// AgentConfig configures the single resident agent.
type AgentConfig struct {
	Workspace string      `json:"workspace,omitempty"`
	Model     ModelConfig `json:"model"`
	Thinking  string      `json:"thinking,omitempty"`
	Bash      BashConfig  `json:"bash,omitempty"`
	Tools     ToolFilter  `json:"tools,omitempty"`
	Models    map[string]ModelAlias `json:"models,omitempty"`
}

// ModelConfig is the primary/fallback model chain.
type ModelConfig struct {
	Provider  string   `json:"provider,omitempty"`
	Model     string   `json:"model,omitempty"`
	Fallbacks []string `json:"fallbacks,omitempty"`
}

// ModelAlias maps a short key to a provider/model pair; also the model
// allow-list when non-empty.
type ModelAlias struct {
	Alias string `json:"alias"`
}

// BashConfig configures the bash tool's background/timeout behavior.
type BashConfig struct {
	BackgroundMs int `json:"backgroundMs,omitempty"`
	TimeoutSec   int `json:"timeoutSec,omitempty"`
}

// ToolFilter is an allow/deny pair applied to the tool registry.
type ToolFilter struct {
	Allow []string `json:"allow,omitempty"`
	Deny  []string `json:"deny,omitempty"`
}

// SessionConfig controls session-key scoping and store location.
type SessionConfig struct {
	Scope         string `json:"scope,omitempty"` // "per-sender" (default) or "global"
	MainKey       string `json:"mainKey,omitempty"`
	Store         string `json:"store,omitempty"`
	IdleMinutes   int    `json:"idleMinutes,omitempty"`
	ArchiveBucket string `json:"archiveBucket,omitempty"` // S3 bucket for best-effort transcript archival
	ArchivePrefix string `json:"archivePrefix,omitempty"`
}

// CronConfig toggles the scheduler.
type CronConfig struct {
	Enabled           bool   `json:"enabled,omitempty"`
	Store             string `json:"store,omitempty"`
	MaxConcurrentRuns int    `json:"maxConcurrentRuns,omitempty"`
}

// SkillsConfig configures per-skill activation and credentials.
type SkillsConfig struct {
	Entries map[string]SkillEntry `json:"entries,omitempty"`
}

// SkillEntry is one skill's activation state.
type SkillEntry struct {
	Enabled *bool             `json:"enabled,omitempty"`
	APIKey  string            `json:"apiKey,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// PluginsConfig configures the plugin registry (C11).
type PluginsConfig struct {
	Load    PluginLoadConfig         `json:"load,omitempty"`
	Allow   []string                 `json:"allow,omitempty"`
	Deny    []string                 `json:"deny,omitempty"`
	Entries map[string]PluginEntry   `json:"entries,omitempty"`
}

// PluginLoadConfig lists explicit plugin bundle paths.
type PluginLoadConfig struct {
	Paths []string `json:"paths,omitempty"`
}

// PluginEntry is one plugin's activation state and user config.
type PluginEntry struct {
	Enabled *bool                  `json:"enabled,omitempty"`
	Config  map[string]interface{} `json:"config,omitempty"`
}

// ToolsConfig configures ambient tool behavior outside the agent tool filter.
type ToolsConfig struct {
	Audio AudioToolsConfig `json:"audio,omitempty"`
}

// AudioToolsConfig configures the external voice transcriber.
type AudioToolsConfig struct {
	Transcription TranscriptionConfig `json:"transcription,omitempty"`
}

// TranscriptionConfig names the external transcriber invocation.
type TranscriptionConfig struct {
	Args           []string `json:"args,omitempty"`
	TimeoutSeconds int      `json:"timeoutSeconds,omitempty"`
}

// BridgeConfig configures the bridge listener (C9).
type BridgeConfig struct {
	Bind string `json:"bind,omitempty"`
	Port int    `json:"port,omitempty"`
}

// DiscoveryConfig configures mDNS/DNS-SD publishing (C10).
type DiscoveryConfig struct {
	WideArea WideAreaConfig `json:"wideArea,omitempty"`
}

// WideAreaConfig toggles clawdbot.internal. publishing.
type WideAreaConfig struct {
	Enabled bool `json:"enabled,omitempty"`
}

// ChannelsConfig configures the thin Provider Adapters. Wire encoding for
// each provider is treated as an external collaborator with a named Go
// interface; this section gives those adapters something to bind to.
type ChannelsConfig struct {
	Discord  DiscordConfig  `json:"discord,omitempty"`
	Telegram TelegramConfig `json:"telegram,omitempty"`
	Slack    SlackConfig    `json:"slack,omitempty"`
	WhatsApp WhatsAppConfig `json:"whatsapp,omitempty"`
}

// ChannelPolicy is the common shape of a provider adapter's auth policy:
// an optional explicit allow-list, plus direct/group admission modes.
type ChannelPolicy struct {
	Enabled     bool     `json:"enabled,omitempty"`
	AllowFrom   []string `json:"allowFrom,omitempty"`
	DMPolicy    string   `json:"dmPolicy,omitempty"`    // "open" | "pairing"
	GroupPolicy string   `json:"groupPolicy,omitempty"` // "open" | "pairing"
}

// DiscordConfig configures the Discord bot Provider Adapter.
type DiscordConfig struct {
	ChannelPolicy
	Token string `json:"token,omitempty"`
}

// TelegramConfig configures the Telegram bot Provider Adapter.
type TelegramConfig struct {
	ChannelPolicy
	Token string `json:"token,omitempty"`
}

// SlackConfig configures the Slack app Provider Adapter.
type SlackConfig struct {
	ChannelPolicy
	BotToken string `json:"botToken,omitempty"`
	AppToken string `json:"appToken,omitempty"` // socket-mode app-level token
}

// TracingConfig configures the OpenTelemetry exporter.
type TracingConfig struct {
	Enabled        bool   `json:"enabled,omitempty"`
	ServiceName    string `json:"serviceName,omitempty"`
	OTLPEndpoint   string `json:"otlpEndpoint,omitempty"`
	Insecure       bool   `json:"insecure,omitempty"`
}

// WhatsAppConfig configures the WhatsApp Provider Adapter (whatsmeow multi-device).
type WhatsAppConfig struct {
	ChannelPolicy
	// SessionStoreDSN is a Postgres connection string for the device/session
	// store whatsmeow persists its multi-device identity into.
	SessionStoreDSN string `json:"sessionStoreDsn,omitempty"`
}

// Defaults applied when the config omits a field.
const (
	DefaultModel       = "anthropic/claude-sonnet-4-20250514"
	DefaultBridgePort  = 18790
	DefaultBridgeBind  = "0.0.0.0"
	DefaultWorkspace   = "clawd"
)

// Load reads a JSON5 config file from path, applies defaults, then layers
// environment overrides on top. A missing file yields an empty Config with
// defaults applied rather than an error, since the config file is optional.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: reading %s: %w", path, err)
			}
		} else if err := json5.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	cfg.applyDefaults()
	cfg.applyEnvOverrides()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.Agent.Workspace == "" {
		home, _ := os.UserHomeDir()
		if profile := os.Getenv("CLAWD_PROFILE"); profile != "" {
			c.Agent.Workspace = filepath.Join(home, DefaultWorkspace+"-"+profile)
		} else {
			c.Agent.Workspace = filepath.Join(home, DefaultWorkspace)
		}
	}
	if c.Agent.Model.Model == "" {
		c.Agent.Model.Provider, c.Agent.Model.Model = splitProviderModel(DefaultModel)
	}
	if c.Session.Scope == "" {
		c.Session.Scope = "per-sender"
	}
	if c.Session.MainKey == "" {
		c.Session.MainKey = "main"
	}
	if c.Bridge.Bind == "" {
		c.Bridge.Bind = DefaultBridgeBind
	}
	if c.Bridge.Port == 0 {
		c.Bridge.Port = DefaultBridgePort
	}
}

// applyEnvOverrides layers CLAWD_*/CLAWDBOT_* environment variables on top
// of the file-loaded config: state directory, bridge host/port/enable, and
// the Bonjour and cron switches. No secrets are read here; channel tokens
// come from the config file.
func (c *Config) applyEnvOverrides() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if v := os.Getenv("CLAWD_STATE_DIR"); v != "" {
		c.stateDirOverride = v
	}
	if v := os.Getenv("CLAWDBOT_BRIDGE_HOST"); v != "" {
		c.Bridge.Bind = v
	}
	if v := os.Getenv("CLAWDBOT_BRIDGE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			c.Bridge.Port = p
		}
	}
	if v := os.Getenv("CLAWDBOT_DISABLE_BONJOUR"); v == "1" {
		c.discoveryDisabled = true
	}
	if v := os.Getenv("CLAWDBOT_BRIDGE_ENABLED"); v == "0" {
		c.bridgeDisabled = true
	}
	if v := os.Getenv("CLAWD_SKIP_CRON"); v == "1" {
		c.Cron.Enabled = false
		c.cronSkipped = true
	}
}

// StateDir resolves the effective state directory: CLAWD_STATE_DIR if set,
// else $HOME/.clawd.
func (c *Config) StateDir() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.stateDirOverride != "" {
		return c.stateDirOverride
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".clawd")
}

// DiscoveryDisabled reports whether CLAWDBOT_DISABLE_BONJOUR=1 was set.
func (c *Config) DiscoveryDisabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.discoveryDisabled
}

// BridgeDisabled reports whether CLAWDBOT_BRIDGE_ENABLED=0 was set.
func (c *Config) BridgeDisabled() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.bridgeDisabled
}

func splitProviderModel(s string) (provider, model string) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return "", s
}

// ModelChain resolves the primary/fallback model candidates: dedup on
// provider/model, enforce the allow-list (when agent.models is non-empty)
// against every candidate except the primary.
func (c *Config) ModelChain() []ModelRef {
	c.mu.RLock()
	defer c.mu.RUnlock()

	primary := ModelRef{Provider: c.Agent.Model.Provider, ModelID: c.Agent.Model.Model}
	if primary.ModelID == "" {
		primary.Provider, primary.ModelID = splitProviderModel(DefaultModel)
	}

	allowList := make(map[string]bool, len(c.Agent.Models))
	for _, alias := range c.Agent.Models {
		allowList[alias.Alias] = true
	}

	seen := map[string]bool{primary.key(): true}
	chain := []ModelRef{primary}

	for _, fb := range c.Agent.Model.Fallbacks {
		ref := c.resolveAliasLocked(fb)
		if len(allowList) > 0 && !allowList[ref.key()] {
			continue
		}
		if seen[ref.key()] {
			continue
		}
		seen[ref.key()] = true
		chain = append(chain, ref)
	}
	return chain
}

// ModelRef names a resolved provider/model pair.
type ModelRef struct {
	Provider string
	ModelID  string
}

func (m ModelRef) key() string { return m.Provider + "/" + m.ModelID }

func (c *Config) resolveAliasLocked(key string) ModelRef {
	if alias, ok := c.Agent.Models[key]; ok {
		p, m := splitProviderModel(alias.Alias)
		return ModelRef{Provider: p, ModelID: m}
	}
	p, m := splitProviderModel(key)
	return ModelRef{Provider: p, ModelID: m}
}
