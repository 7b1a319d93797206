package agent

import "sort"

// coreToolOrder is the canonical ordering for built-in tools in the system
// prompt's tool list.
var coreToolOrder = []string{"read", "write", "edit", "grep", "find", "ls", "bash", "process"}

// ResolveToolNames returns the tool names to advertise and the ones denied,
// applying allow/deny config over the core set plus any plugin-contributed
// extras. Core tools keep their canonical order; extras are appended
// alphabetically.
func ResolveToolNames(extras []string, allow, deny []string) (available, denied []string) {
	allowSet := toSet(allow)
	denySet := toSet(deny)

	all := append(append([]string{}, coreToolOrder...), dedupSorted(extras)...)

	for _, name := range all {
		if denySet[name] {
			denied = append(denied, name)
			continue
		}
		if len(allowSet) > 0 && !allowSet[name] {
			denied = append(denied, name)
			continue
		}
		available = append(available, name)
	}
	return available, denied
}

func toSet(list []string) map[string]bool {
	m := make(map[string]bool, len(list))
	for _, v := range list {
		m[v] = true
	}
	return m
}

func dedupSorted(list []string) []string {
	seen := make(map[string]bool, len(list))
	var out []string
	for _, v := range list {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}
