// Package config loads and saves the delegation engine's YAML configuration
// file, preserving any keys it does not itself recognize (P7): save-config
// merges into the existing file's node tree rather than unmarshal-modify-
// remarshal, which would silently drop unknown top-level or nested keys.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// MCPServerConfig describes one entry of the mcpServers map.
type MCPServerConfig struct {
	Transport string            `yaml:"transport"`
	Command   string            `yaml:"command,omitempty"`
	URL       string            `yaml:"url,omitempty"`
	Args      []string          `yaml:"args,omitempty"`
	Env       map[string]string `yaml:"env,omitempty"`
	Enabled   *bool             `yaml:"enabled,omitempty"`
}

// IsEnabled defaults to true when Enabled is unset.
func (c MCPServerConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }

// ModelPoolEntry is one element of modelPool.
type ModelPoolEntry struct {
	URL           string `yaml:"url"`
	Model         string `yaml:"model"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// Delegation holds the delegation.* config block.
type Delegation struct {
	Enabled            bool           `yaml:"enabled"`
	LoopLimitOverrides map[string]int `yaml:"loop_limit_overrides,omitempty"`
	PlanMode           string         `yaml:"plan_mode,omitempty"`
	MaxTasks           int            `yaml:"max_tasks"`
}

// Validation holds the validation.* config block.
type Validation struct {
	Enabled         bool     `yaml:"enabled"`
	ValidateTasks   []string `yaml:"validate_tasks,omitempty"`
	MaxRetries      int      `yaml:"max_retries"`
	ValidationModel string   `yaml:"validation_model,omitempty"`
}

// Escalation holds the escalation.* config block. Threshold and RateLimit
// together gate cmd/delegate's escalation token bucket (see
// newEscalationLimiter in cmd/delegate/wire.go): Threshold is the bucket's
// burst capacity, RateLimit its refill rate in escalations per minute. Both
// default to zero, which disables the gate entirely — escalation then runs
// unconditionally whenever the fallback chain is exhausted.
type Escalation struct {
	Enabled   bool    `yaml:"enabled"`
	Provider  string  `yaml:"provider,omitempty"`
	APIKeyRef string  `yaml:"api_key_ref,omitempty"`
	Threshold int     `yaml:"threshold"`
	RateLimit float64 `yaml:"rate_limit,omitempty"`
}

// Memory holds the memory.* config block.
type Memory struct {
	Enabled      bool   `yaml:"enabled"`
	StorageDir   string `yaml:"storage_dir"`
	DefaultDomain string `yaml:"default_domain,omitempty"`
	AutoPersist  bool   `yaml:"auto_persist"`
}

// Config is the recognized subset of keys from spec §6. Any other top-level
// or nested key present in the file is preserved verbatim by Save but is not
// surfaced here; callers that need them should read the raw yaml.Node tree
// via Raw().
type Config struct {
	MCPServers      map[string]MCPServerConfig `yaml:"mcpServers,omitempty"`
	DisabledTools   []string                   `yaml:"disabledTools,omitempty"`
	DisabledServers []string                   `yaml:"disabledServers,omitempty"`
	ModelPool       []ModelPoolEntry           `yaml:"modelPool,omitempty"`
	AgentModels     map[string]string          `yaml:"agentModels,omitempty"`
	Delegation      Delegation                 `yaml:"delegation,omitempty"`
	Validation      Validation                 `yaml:"validation,omitempty"`
	Escalation      Escalation                 `yaml:"escalation,omitempty"`
	Memory          Memory                     `yaml:"memory,omitempty"`
	SessionTimeout  int                        `yaml:"sessionTimeout,omitempty"`

	root *yaml.Node // the full, unmodified document, kept for round-tripping
}

// Load reads and parses the config file at path. A missing file yields a
// zero-value Config (defaults apply) rather than an error, matching
// first-run behavior expected by cmd/delegate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &Config{root: &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes raw YAML bytes into a Config, retaining the full node tree.
func Parse(data []byte) (*Config, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if root.Kind == 0 {
		root = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	cfg := &Config{root: &root}
	if err := root.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w", err)
	}
	return cfg, nil
}

// Save writes cfg back to path, merging the component-managed keys into the
// existing document node tree so any key this package does not model is
// preserved untouched (P7). Unknown keys are never removed; only the keys
// Config declares are added, updated, or removed (when emptied).
func (c *Config) Save(path string) error {
	if c.root == nil {
		c.root = &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	mapping := documentMapping(c.root)

	managed, err := managedNode(c)
	if err != nil {
		return fmt.Errorf("config: encode managed keys: %w", err)
	}
	mergeMapping(mapping, managed)

	out, err := yaml.Marshal(c.root)
	if err != nil {
		return fmt.Errorf("config: marshal: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, out, 0o644); err != nil {
		return fmt.Errorf("config: write temp: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("config: rename: %w", err)
	}
	return nil
}

// Raw exposes the full parsed document, including keys Config does not
// model, for callers that need to read them directly.
func (c *Config) Raw() *yaml.Node { return c.root }

// Lookup resolves a dotted key path (e.g. "delegation.max_tasks") against
// the raw node tree, so callers can read keys this package doesn't model as
// typed fields too.
func (c *Config) Lookup(key string) (*yaml.Node, bool) {
	if c.root == nil {
		return nil, false
	}
	node := documentMapping(c.root)
	for _, part := range strings.Split(key, ".") {
		if node.Kind != yaml.MappingNode {
			return nil, false
		}
		idx := findKey(node, part)
		if idx < 0 {
			return nil, false
		}
		node = node.Content[idx+1]
	}
	return node, true
}

// Set writes value at a dotted key path directly into the node tree,
// creating intermediate mapping nodes as needed, then re-decodes the typed
// fields from the updated tree so Config's struct fields and Lookup/Raw stay
// consistent with each other. Callers still need Save to persist the change.
func (c *Config) Set(key string, value any) error {
	if c.root == nil {
		c.root = &yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	parts := strings.Split(key, ".")
	node := documentMapping(c.root)
	for i, part := range parts {
		last := i == len(parts)-1
		idx := findKey(node, part)
		if last {
			var valNode yaml.Node
			if err := valNode.Encode(value); err != nil {
				return fmt.Errorf("config: encode value for %q: %w", key, err)
			}
			if idx < 0 {
				node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: part}, &valNode)
			} else {
				node.Content[idx+1] = &valNode
			}
			break
		}
		if idx < 0 {
			child := &yaml.Node{Kind: yaml.MappingNode}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: part}, child)
			node = child
			continue
		}
		next := node.Content[idx+1]
		if next.Kind != yaml.MappingNode {
			next = &yaml.Node{Kind: yaml.MappingNode}
			node.Content[idx+1] = next
		}
		node = next
	}
	return c.root.Decode(c)
}

func documentMapping(doc *yaml.Node) *yaml.Node {
	if doc.Kind == yaml.DocumentNode {
		if len(doc.Content) == 0 {
			m := &yaml.Node{Kind: yaml.MappingNode}
			doc.Content = append(doc.Content, m)
		}
		return doc.Content[0]
	}
	return doc
}

func managedNode(c *Config) (*yaml.Node, error) {
	var n yaml.Node
	if err := n.Encode(c); err != nil {
		return nil, err
	}
	return &n, nil
}

// mergeMapping merges src's key/value pairs into dst (both MappingNodes),
// overwriting values for keys src declares and leaving every other key in
// dst untouched.
func mergeMapping(dst, src *yaml.Node) {
	if dst.Kind != yaml.MappingNode || src.Kind != yaml.MappingNode {
		return
	}
	for i := 0; i+1 < len(src.Content); i += 2 {
		key, val := src.Content[i], src.Content[i+1]
		idx := findKey(dst, key.Value)
		switch {
		case idx < 0:
			dst.Content = append(dst.Content, key, val)
		case val.Kind == yaml.MappingNode && dst.Content[idx+1].Kind == yaml.MappingNode:
			// Recurse so unknown keys nested under a managed block (e.g. a
			// user's delegation.trace_enabled) survive the merge too.
			mergeMapping(dst.Content[idx+1], val)
		default:
			dst.Content[idx+1] = val
		}
	}
}

func findKey(mapping *yaml.Node, key string) int {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return i
		}
	}
	return -1
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

// ExpandEnv resolves ${VAR} / ${VAR:-default} references in s against the
// process environment, used for escalation.api_key_ref and similar secret
// pointers that should never be written back to disk in resolved form.
func ExpandEnv(s string) string {
	return envRef.ReplaceAllStringFunc(s, func(m string) string {
		sub := envRef.FindStringSubmatch(m)
		name, def := sub[1], sub[2]
		if v, ok := os.LookupEnv(name); ok {
			return v
		}
		return def
	})
}

// sessionTimeout is plain minutes; callers compute
// time.Duration(cfg.SessionTimeout) * time.Minute.
