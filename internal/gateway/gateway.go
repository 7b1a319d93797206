// Package gateway wires C1-C12 plus the Provider Adapters into one running
// process: the glue a teacher's cmd package would hold, generalized into a
// reusable entrypoint for the CLI.
package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/clawdbot/clawdbot/internal/agent"
	"github.com/clawdbot/clawdbot/internal/bootstrap"
	"github.com/clawdbot/clawdbot/internal/bridge"
	"github.com/clawdbot/clawdbot/internal/bus"
	"github.com/clawdbot/clawdbot/internal/channels"
	"github.com/clawdbot/clawdbot/internal/channels/discord"
	"github.com/clawdbot/clawdbot/internal/channels/slack"
	"github.com/clawdbot/clawdbot/internal/channels/telegram"
	"github.com/clawdbot/clawdbot/internal/channels/whatsapp"
	"github.com/clawdbot/clawdbot/internal/commands"
	"github.com/clawdbot/clawdbot/internal/config"
	"github.com/clawdbot/clawdbot/internal/cron"
	"github.com/clawdbot/clawdbot/internal/dedup"
	"github.com/clawdbot/clawdbot/internal/discovery"
	"github.com/clawdbot/clawdbot/internal/dispatch"
	"github.com/clawdbot/clawdbot/internal/heartbeat"
	"github.com/clawdbot/clawdbot/internal/hooks"
	"github.com/clawdbot/clawdbot/internal/pairing"
	"github.com/clawdbot/clawdbot/internal/plugins"
	"github.com/clawdbot/clawdbot/internal/providers"
	"github.com/clawdbot/clawdbot/internal/sessions"
	"github.com/clawdbot/clawdbot/internal/tools"
	"github.com/clawdbot/clawdbot/internal/tracing"
	"github.com/go-rod/rod"

	browsertool "github.com/clawdbot/clawdbot/pkg/browser"
)

// DefaultAgentID names the single resident agent this gateway drives. The
// gateway is single-tenant; C4-C8 state is all rooted under this id.
const DefaultAgentID = "main"

// Gateway owns every long-lived component and the goroutines connecting
// them.
type Gateway struct {
	cfg *config.Config
	log *slog.Logger

	bus      *bus.Bus
	sessions *sessions.Store
	pairing  *pairing.Store
	dedup    *dedup.Cache
	router   *commands.Router
	runner   *agent.Runner

	cronStore *cron.Store
	cron      *cron.Scheduler

	bridgeServer *bridge.Server
	discoveryPub *discovery.Publisher
	plugins      *plugins.Registry
	heartbeat    *heartbeat.Driver
	hooks        *hooks.Engine
	archiver     *sessions.Archiver

	channelsMu sync.RWMutex
	chs        map[string]channels.Channel

	dispatchMu sync.Mutex
	dispatchers map[string]*dispatch.Dispatcher

	mainMu   sync.Mutex
	mainTarget target // last-seen (provider, chatID) for the main session

	tracingShutdown tracing.Shutdown
}

type target struct {
	provider string
	chatID   string
}

// New assembles a Gateway from cfg. It does not start any goroutines; call
// Run to do that.
func New(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	log := slog.Default()
	stateDir := cfg.StateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("gateway: state dir: %w", err)
	}

	workspace := bootstrap.ExpandWorkspace(cfg.Agent.Workspace)
	if _, err := bootstrap.EnsureWorkspace(workspace); err != nil {
		return nil, fmt.Errorf("gateway: workspace: %w", err)
	}

	shutdown, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("gateway: tracing: %w", err)
	}

	approval := tools.NewExecApprovalManager(tools.DefaultExecApprovalConfig())
	registry := tools.NewRegistry(workspace, true, approval, cfg.Agent.Bash.TimeoutSec, cfg.Agent.Bash.BackgroundMs)
	registry.Add(browsertool.NewBrowserTool(browsertool.New(rod.New())))

	coreNames, _ := agent.ResolveToolNames(nil, nil, nil)
	pluginRegistry := plugins.New(cfg.Plugins.Allow, cfg.Plugins.Deny, coreNames)

	gw := &Gateway{
		cfg:         cfg,
		log:         log,
		bus:         bus.New(256),
		sessions:    sessions.NewStore(stateDir, DefaultAgentID, nil),
		pairing:     pairing.NewStore(stateDir, nil),
		dedup:       dedup.New(dedup.DefaultCapacity, dedup.DefaultTTL, nil),
		router:      commands.NewRouter(),
		cronStore:   cron.NewStore(stateDir),
		plugins:     pluginRegistry,
		chs:         make(map[string]channels.Channel),
		dispatchers: make(map[string]*dispatch.Dispatcher),
		tracingShutdown: shutdown,
	}

	backend := providers.NewChatBackend(buildEndpoints(cfg))
	gw.runner = agent.NewRunner(cfg, gw.sessions, backend, &skillsProvider{cfg: cfg}, nil)

	gw.cron = cron.NewScheduler(gw.cronStore, &cronDispatcher{gw: gw}, nil, func(ev cron.Event) {
		log.Info("cron event", "action", ev.Action, "jobId", ev.JobID)
	})

	gw.bridgeServer = bridge.NewServer(cfg.Bridge.Bind, cfg.Bridge.Port, "clawdbot", []string{"chat", "events"}, gw.pairing, gw.handleBridgeCommand, log)

	if !cfg.DiscoveryDisabled() {
		host, _ := os.Hostname()
		info := discovery.Info{
			InstanceName: "clawdbot-" + host,
			Role:         "gateway",
			DisplayName:  host,
			LANHost:      host,
			BridgePort:   cfg.Bridge.Port,
			Transport:    "tcp",
		}
		gw.discoveryPub = discovery.NewPublisher(info, cfg.Bridge.Port, cfg.Discovery.WideArea.Enabled, log)
	}

	gw.heartbeat = heartbeat.New(0, heartbeat.DefaultAckMaxChars, gw.heartbeatTick, gw.heartbeatDeliver)

	gw.hooks = hooks.NewEngine()
	gw.hooks.RegisterEvaluator(hooks.HookTypeCommand, hooks.NewCommandEvaluator(workspace))

	if archiver, err := sessions.NewArchiver(ctx, cfg.Session.ArchiveBucket, cfg.Session.ArchivePrefix); err != nil {
		log.Warn("session archival disabled", "err", err)
	} else {
		gw.archiver = archiver
	}

	registerCommands(gw)

	if err := gw.buildChannels(ctx); err != nil {
		return nil, err
	}

	return gw, nil
}

// NewStandaloneRunner builds an Agent Runner and its session store without
// the rest of a Gateway (channels, bridge, cron, discovery, heartbeat). The
// CLI's one-shot and interactive commands use this instead of New so they
// don't pay for goroutines they never start.
func NewStandaloneRunner(cfg *config.Config) (*agent.Runner, *sessions.Store, error) {
	stateDir := cfg.StateDir()
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("gateway: state dir: %w", err)
	}

	workspace := bootstrap.ExpandWorkspace(cfg.Agent.Workspace)
	if _, err := bootstrap.EnsureWorkspace(workspace); err != nil {
		return nil, nil, fmt.Errorf("gateway: workspace: %w", err)
	}

	store := sessions.NewStore(stateDir, DefaultAgentID, nil)
	backend := providers.NewChatBackend(buildEndpoints(cfg))
	runner := agent.NewRunner(cfg, store, backend, &skillsProvider{cfg: cfg}, nil)
	return runner, store, nil
}

func (gw *Gateway) buildChannels(ctx context.Context) error {
	ch := &gw.cfg.Channels

	if ch.Discord.Enabled {
		c, err := discord.New(ch.Discord, gw.bus)
		if err != nil {
			return fmt.Errorf("gateway: discord: %w", err)
		}
		gw.chs["discord"] = c
	}
	if ch.Telegram.Enabled {
		c, err := telegram.New(ch.Telegram, gw.bus)
		if err != nil {
			return fmt.Errorf("gateway: telegram: %w", err)
		}
		gw.chs["telegram"] = c
	}
	if ch.Slack.Enabled {
		c, err := slack.New(ch.Slack, gw.bus)
		if err != nil {
			return fmt.Errorf("gateway: slack: %w", err)
		}
		gw.chs["slack"] = c
	}
	if ch.WhatsApp.Enabled {
		c, err := whatsapp.New(ctx, ch.WhatsApp, gw.bus)
		if err != nil {
			return fmt.Errorf("gateway: whatsapp: %w", err)
		}
		gw.chs["whatsapp"] = c
	}
	return nil
}

// Run starts every goroutine and blocks until ctx is canceled.
func (gw *Gateway) Run(ctx context.Context) error {
	gw.channelsMu.RLock()
	for name, c := range gw.chs {
		if err := c.Start(); err != nil {
			gw.log.Error("channel failed to start", "channel", name, "err", err)
		}
	}
	gw.channelsMu.RUnlock()

	gw.cron.Start(ctx)
	gw.heartbeat.Start(ctx)

	if !gw.cfg.BridgeDisabled() {
		go func() {
			if err := gw.bridgeServer.Serve(ctx); err != nil {
				gw.log.Error("bridge server stopped", "err", err)
			}
		}()
	}
	if gw.discoveryPub != nil {
		if err := gw.discoveryPub.Start(ctx); err != nil {
			gw.log.Warn("discovery publisher failed to start", "err", err)
		}
	}

	go gw.consumeInbound(ctx)
	go gw.consumeOutbound(ctx)

	gw.log.Info("clawdbot gateway running", "workspace", gw.cfg.Agent.Workspace, "bridge", fmt.Sprintf("%s:%d", gw.cfg.Bridge.Bind, gw.cfg.Bridge.Port))

	<-ctx.Done()
	return gw.shutdown()
}

func (gw *Gateway) shutdown() error {
	gw.channelsMu.RLock()
	for _, c := range gw.chs {
		_ = c.Stop()
	}
	gw.channelsMu.RUnlock()

	gw.cron.Stop()
	gw.heartbeat.Stop()
	_ = gw.plugins.CloseWatch()

	gw.dispatchMu.Lock()
	for _, d := range gw.dispatchers {
		d.Stop()
	}
	gw.dispatchMu.Unlock()

	if gw.tracingShutdown != nil {
		shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return gw.tracingShutdown(shCtx)
	}
	return nil
}

// buildEndpoints resolves one providers.Endpoint per provider named in the
// model chain, from <PROVIDER>_BASE_URL/<PROVIDER>_API_KEY env vars, falling
// back to the well-known OpenAI/Gemini OpenAI-compatibility endpoints.
func buildEndpoints(cfg *config.Config) map[string]providers.Endpoint {
	defaults := map[string]string{
		"openai": "https://api.openai.com/v1",
		"gemini": "https://generativelanguage.googleapis.com/v1beta/openai",
	}

	out := make(map[string]providers.Endpoint)
	for _, m := range cfg.ModelChain() {
		if _, ok := out[m.Provider]; ok {
			continue
		}
		upper := strings.ToUpper(m.Provider)
		base := os.Getenv(upper + "_BASE_URL")
		if base == "" {
			base = defaults[m.Provider]
		}
		out[m.Provider] = providers.Endpoint{
			BaseURL: base,
			APIKey:  os.Getenv(upper + "_API_KEY"),
		}
	}
	return out
}

type skillsProvider struct {
	cfg *config.Config
}

func (p *skillsProvider) Skills(workspaceDir string) ([]agent.Skill, map[string]agent.SkillConfig) {
	discovered, _ := agent.DiscoverSkills("", nil, "", workspaceDir)
	configs := make(map[string]agent.SkillConfig, len(p.cfg.Skills.Entries))
	for name, e := range p.cfg.Skills.Entries {
		configs[name] = agent.SkillConfig{Enabled: e.Enabled, APIKey: e.APIKey, Env: e.Env}
	}
	return agent.FilterSkills(discovered, configs), configs
}
