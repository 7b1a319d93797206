package tools

// Registry holds the canonical local tool set, keyed by name, in the
// canonical order the Agent Runner's system prompt enumerates, plus any
// extras (e.g. pkg/browser's "browser" tool).
type Registry struct {
	order []string
	byName map[string]Tool
}

// NewRegistry builds the core filesystem/exec tool set rooted at workspace.
func NewRegistry(workspace string, restrict bool, approval *ExecApprovalManager, bashTimeoutSec, bashBackgroundMs int) *Registry {
	bash := NewBashTool(workspace, approval, bashTimeoutSec, bashBackgroundMs)
	core := []Tool{
		NewReadFileTool(workspace, restrict),
		NewWriteFileTool(workspace, restrict),
		NewEditFileTool(workspace, restrict),
		NewGrepTool(workspace, restrict),
		NewFindFilesTool(workspace, restrict),
		NewListFilesTool(workspace, restrict),
		bash,
		NewProcessTool(bash),
	}
	r := &Registry{byName: make(map[string]Tool, len(core))}
	for _, tool := range core {
		r.Add(tool)
	}
	return r
}

// Add registers an extra tool (e.g. pkg/browser.NewBrowserTool), appending
// it to the enumeration order unless a core tool already claims the name.
func (r *Registry) Add(t Tool) {
	if _, exists := r.byName[t.Name()]; exists {
		return
	}
	r.byName[t.Name()] = t
	r.order = append(r.order, t.Name())
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// Names returns every registered tool name in enumeration order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}
