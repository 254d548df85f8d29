package config

import (
	"strings"
)

// sections are the top-level keys a config file may carry.
var sections = map[string]bool{
	"gateway": true,
	"store":   true,
	"redis":   true,
	"kafka":   true,
	"notify":  true,
	"logging": true,
}

// secretKeys name leaf keys whose values are credentials.
var secretKeys = map[string]bool{
	"token":    true,
	"password": true,
}

// KeyPath is a dotted config key such as "gateway.port", split into segments.
type KeyPath []string

// ParseKeyPath validates a dotted key. The first segment must name a known
// section and no segment may be empty.
func ParseKeyPath(raw string) (KeyPath, error) {
	if raw == "" {
		return nil, &ConfigError{Message: "empty config key"}
	}
	parts := strings.Split(raw, ".")
	for _, p := range parts {
		if p == "" {
			return nil, &ConfigError{Message: "config key " + raw + " has an empty segment"}
		}
	}
	if !sections[parts[0]] {
		return nil, &ConfigError{Message: "unknown config section: " + parts[0]}
	}
	return KeyPath(parts), nil
}

func (k KeyPath) String() string { return strings.Join(k, ".") }

// Secret reports whether the key addresses a credential.
func (k KeyPath) Secret() bool {
	return len(k) > 0 && secretKeys[k[len(k)-1]]
}

// Lookup walks root along k.
func (k KeyPath) Lookup(root map[string]any) (any, bool) {
	var cur any = root
	for _, seg := range k {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// Store writes value at k, replacing any scalar that sits where a nested
// map is needed.
func (k KeyPath) Store(root map[string]any, value any) {
	m := root
	for _, seg := range k[:len(k)-1] {
		child, ok := m[seg].(map[string]any)
		if !ok {
			child = map[string]any{}
			m[seg] = child
		}
		m = child
	}
	m[k[len(k)-1]] = value
}

// Delete removes the value at k and reports whether one was there.
func (k KeyPath) Delete(root map[string]any) bool {
	parent, ok := KeyPath(k[:len(k)-1]).Lookup(root)
	if !ok {
		return false
	}
	m, ok := parent.(map[string]any)
	if !ok {
		return false
	}
	leaf := k[len(k)-1]
	if _, ok := m[leaf]; !ok {
		return false
	}
	delete(m, leaf)
	return true
}

// Redact returns a copy of v with every credential value below k masked.
func (k KeyPath) Redact(v any) any {
	if k.Secret() {
		if s, ok := v.(string); ok && s != "" {
			return "********"
		}
		return v
	}
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for key, child := range val {
			sub := make(KeyPath, len(k)+1)
			copy(sub, k)
			sub[len(k)] = key
			out[key] = sub.Redact(child)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, child := range val {
			out[i] = k.Redact(child)
		}
		return out
	default:
		return v
	}
}
