// Package plugins implements the Plugin Registry (C11): self-describing
// bundle discovery and loading, configSchema validation, tool/method/CLI
// registration, and hot-reload.
package plugins

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Status is a plugin's lifecycle state.
type Status string

const (
	StatusLoaded Status = "loaded"
	StatusError  Status = "error"
)

// ToolSpec is a plugin-registered tool (mirrors the core Agent Runner's
// tool shape so plugin tools and core tools share one name space).
type ToolSpec struct {
	Name       string
	Parameters map[string]interface{}
	Execute    func(args map[string]interface{}) (string, error)
}

// GatewayMethodHandler handles one plugin-registered gateway RPC method.
type GatewayMethodHandler func(params map[string]interface{}) (interface{}, error)

// Service is a plugin-managed background service.
type Service struct {
	ID    string
	Start func() error
	Stop  func() error
}

// API is passed to a plugin's register function.
type API struct {
	pluginID string
	reg      *Registry
	Log      *slog.Logger
	Config   map[string]interface{}
}

func (a *API) RegisterGatewayMethod(name string, handler GatewayMethodHandler) error {
	return a.reg.registerGatewayMethod(a.pluginID, name, handler)
}

func (a *API) RegisterTool(tool ToolSpec) error {
	return a.reg.registerTool(a.pluginID, tool)
}

func (a *API) RegisterCLI(fn func()) {
	a.reg.registerCLI(a.pluginID, fn)
}

func (a *API) RegisterService(svc Service) error {
	return a.reg.registerService(a.pluginID, svc)
}

// ConfigSchema is the duck-typed validator a plugin bundle may supply.
type ConfigSchema interface {
	Parse(value map[string]interface{}) error
}

// Bundle is a loaded plugin's static description plus its entry point.
type Bundle struct {
	ID           string
	Name         string
	Description  string
	ConfigSchema ConfigSchema
	Register     func(api *API) error
}

// Plugin is a bundle's runtime record after an attempted load.
type Plugin struct {
	Bundle Bundle
	Status Status
	Error  string
}

// Registry loads and tracks plugin bundles, owning the tool/method/CLI
// name spaces they register into.
type Registry struct {
	Allow []string
	Deny  []string

	CoreToolNames []string

	mu       sync.Mutex
	plugins  map[string]*Plugin
	methods  map[string]GatewayMethodHandler
	tools    map[string]ToolSpec
	toolOwner map[string]string
	clis     []func()
	services map[string]Service

	watcher *fsnotify.Watcher
}

// New constructs an empty Registry.
func New(allow, deny []string, coreToolNames []string) *Registry {
	return &Registry{
		Allow:         allow,
		Deny:          deny,
		CoreToolNames: coreToolNames,
		plugins:       make(map[string]*Plugin),
		methods:       make(map[string]GatewayMethodHandler),
		tools:         make(map[string]ToolSpec),
		toolOwner:     make(map[string]string),
		services:      make(map[string]Service),
	}
}

// allowed implements the gating rule: id ∈ allow (when allow non-empty) AND
// id ∉ deny.
func (r *Registry) allowed(id string) bool {
	for _, d := range r.Deny {
		if d == id {
			return false
		}
	}
	if len(r.Allow) == 0 {
		return true
	}
	for _, a := range r.Allow {
		if a == id {
			return true
		}
	}
	return false
}

// Load validates and registers one bundle against userConfig, recording a
// Plugin entry either way.
func (r *Registry) Load(b Bundle, userConfig map[string]interface{}, log *slog.Logger) *Plugin {
	if log == nil {
		log = slog.Default()
	}
	p := &Plugin{Bundle: b, Status: StatusLoaded}

	r.mu.Lock()
	r.plugins[b.ID] = p
	r.mu.Unlock()

	if !r.allowed(b.ID) {
		p.Status = StatusError
		p.Error = fmt.Sprintf("plugin %q is not in the allow-list or is denied", b.ID)
		return p
	}

	if b.ConfigSchema != nil {
		if err := func() (err error) {
			defer func() {
				if rec := recover(); rec != nil {
					err = fmt.Errorf("configSchema.parse panicked: %v", rec)
				}
			}()
			return b.ConfigSchema.Parse(userConfig)
		}(); err != nil {
			p.Status = StatusError
			p.Error = fmt.Sprintf("configSchema rejected config: %v", err)
			return p
		}
	}

	api := &API{pluginID: b.ID, reg: r, Log: log.With("plugin", b.ID), Config: userConfig}
	if b.Register == nil {
		return p
	}
	if err := b.Register(api); err != nil {
		p.Status = StatusError
		p.Error = err.Error()
		r.unregisterAll(b.ID)
		return p
	}
	return p
}

func (r *Registry) registerGatewayMethod(pluginID, name string, handler GatewayMethodHandler) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.methods[name]; exists {
		return fmt.Errorf("plugin %q: gateway method %q already registered", pluginID, name)
	}
	r.methods[name] = handler
	return nil
}

// registerTool rejects collisions against core tool names and other
// plugins' tool names.
func (r *Registry) registerTool(pluginID string, tool ToolSpec) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, core := range r.CoreToolNames {
		if core == tool.Name {
			return fmt.Errorf("plugin %q: tool name %q collides with a core tool", pluginID, tool.Name)
		}
	}
	if owner, exists := r.toolOwner[tool.Name]; exists {
		return fmt.Errorf("plugin %q: tool name %q already registered by plugin %q", pluginID, tool.Name, owner)
	}
	r.tools[tool.Name] = tool
	r.toolOwner[tool.Name] = pluginID
	return nil
}

func (r *Registry) registerCLI(pluginID string, fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clis = append(r.clis, fn)
}

func (r *Registry) registerService(pluginID string, svc Service) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.services[svc.ID]; exists {
		return fmt.Errorf("plugin %q: service %q already registered", pluginID, svc.ID)
	}
	r.services[svc.ID] = svc
	if svc.Start != nil {
		go func() {
			_ = svc.Start()
		}()
	}
	return nil
}

func (r *Registry) unregisterAll(pluginID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name, owner := range r.toolOwner {
		if owner == pluginID {
			delete(r.tools, name)
			delete(r.toolOwner, name)
		}
	}
}

// Tools returns the currently registered plugin tools.
func (r *Registry) Tools() map[string]ToolSpec {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]ToolSpec, len(r.tools))
	for k, v := range r.tools {
		out[k] = v
	}
	return out
}

// StatusAll returns a snapshot of every attempted plugin load.
func (r *Registry) StatusAll() []Plugin {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Plugin, 0, len(r.plugins))
	for _, p := range r.plugins {
		out = append(out, *p)
	}
	return out
}

// WatchPaths hot-reloads bundles under dirs whenever a file changes,
// invoking reload with the changed directory.
func (r *Registry) WatchPaths(dirs []string, reload func(dir string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("plugins: new watcher: %w", err)
	}
	for _, dir := range dirs {
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := w.Add(dir); err != nil {
			return fmt.Errorf("plugins: watch %s: %w", dir, err)
		}
	}
	r.mu.Lock()
	r.watcher = w
	r.mu.Unlock()

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) != 0 {
					reload(filepath.Dir(ev.Name))
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return nil
}

// CloseWatch stops the hot-reload watcher, if any.
func (r *Registry) CloseWatch() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.watcher == nil {
		return nil
	}
	err := r.watcher.Close()
	r.watcher = nil
	return err
}
