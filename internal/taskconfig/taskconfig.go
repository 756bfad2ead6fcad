// Package taskconfig deserializes the opaque, runner-defined task
// configuration blob used only for presentation (spec.md §1's Non-goal:
// the schema itself is out of scope; the observer just needs name/user/
// ports to decorate query results).
package taskconfig

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// TaskConfig is the minimal presentation-facing shape every concrete
// runner's richer schema is expected to carry.
type TaskConfig struct {
	ID    string         `json:"id" yaml:"id"`
	Name  string         `json:"name" yaml:"name"`
	User  string         `json:"user" yaml:"user"`
	Ports map[string]int `json:"ports" yaml:"ports"`
}

// Context supplies the values {{ }} placeholders resolve against —
// the Go analogue of the source's ThermosContext template substitution
// (spec.md §9's re-architecture pointer), built from a task's Header.
type Context struct {
	TaskID string
	User   string
	Ports  map[string]int
}

// Load parses the raw task config bytes in raw, substituting {{ }}
// placeholders against ctx before unmarshaling. Format (YAML or JSON)
// is sniffed from the leading non-whitespace byte.
func Load(raw []byte, ctx Context) (*TaskConfig, error) {
	substituted := Substitute(raw, ctx)

	var cfg TaskConfig
	trimmed := bytes.TrimSpace(substituted)
	var err error
	if len(trimmed) > 0 && (trimmed[0] == '{' || trimmed[0] == '[') {
		err = json.Unmarshal(trimmed, &cfg)
	} else {
		err = yaml.Unmarshal(trimmed, &cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("taskconfig: parse: %w", err)
	}
	return &cfg, nil
}

// Substitute resolves {{task_id}}, {{user}}, and {{ports[name]}}
// tokens against ctx. Unresolved tokens are left verbatim rather than
// erroring — a missing port name is a config-authoring mistake the
// runner is responsible for, not this presentation layer.
func Substitute(raw []byte, ctx Context) []byte {
	out := raw
	out = bytes.ReplaceAll(out, []byte("{{task_id}}"), []byte(ctx.TaskID))
	out = bytes.ReplaceAll(out, []byte("{{user}}"), []byte(ctx.User))
	for name, port := range ctx.Ports {
		token := fmt.Sprintf("{{ports[%s]}}", name)
		out = bytes.ReplaceAll(out, []byte(token), []byte(fmt.Sprintf("%d", port)))
	}
	return out
}
