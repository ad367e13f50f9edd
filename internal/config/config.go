// Package config handles minimcp configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./minimcp.yaml, ./mcp.json, ~/.config/minimcp/config.yaml,
// /etc/minimcp/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"minimcp.yaml", "mcp.json"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "minimcp", "config.yaml"))
	}

	paths = append(paths, "/etc/minimcp/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds all minimcp configuration.
type Config struct {
	LLM   LLMConfig   `yaml:"llm"`
	Agent AgentConfig `yaml:"agent"`
	MCP   MCPConfig   `yaml:"mcp"`
	Audit AuditConfig `yaml:"audit"`

	// MCPServers accepts the top-level "mcpServers" map used by
	// mcp.json files. Entries are merged into MCP.Servers by Load;
	// entries already present under mcp.servers win.
	MCPServers map[string]ServerConfig `yaml:"mcpServers"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"` // text (default) or json
	LogFile   string `yaml:"log_file"`
}

// LLMConfig selects the streaming completion provider.
type LLMConfig struct {
	// Provider is one of openai, anthropic, ollama, gemini.
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// BaseURL overrides the provider endpoint. For the openai provider
	// this is how OpenAI-compatible vendors (DeepSeek, vLLM) are reached.
	BaseURL string `yaml:"base_url"`
	// APIKey is passed through as the bearer token. Supports ${ENV}.
	APIKey      string  `yaml:"api_key"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float32 `yaml:"temperature"`
	// Timeout bounds a single streaming request (default 60s, 0 keeps
	// the default; negative disables).
	Timeout time.Duration `yaml:"timeout"`
}

// AgentConfig tunes the conversation loop.
type AgentConfig struct {
	// MaxRounds bounds retained history: 2*MaxRounds user/assistant
	// turns are kept after the system prompt (default 10).
	MaxRounds int `yaml:"max_rounds"`
	// MaxIterations caps LLM calls per user message (default 20).
	MaxIterations int `yaml:"max_iterations"`
	// SystemPromptFile replaces the built-in base instructions.
	SystemPromptFile string `yaml:"system_prompt_file"`
	// NotesFile is appended to the system prompt when it exists
	// (project notes the agent should always see).
	NotesFile string `yaml:"notes_file"`
	// Workspace roots read_file and ls. Empty means the process
	// working directory with no containment check.
	Workspace string `yaml:"workspace"`
}

// MCPConfig configures connections to MCP servers.
type MCPConfig struct {
	// HandshakeTimeout bounds the initialize response read (default 30s).
	HandshakeTimeout time.Duration `yaml:"handshake_timeout"`
	// CallTimeout bounds tools/list and tools/call. Zero (the default)
	// means calls wait for the server indefinitely.
	CallTimeout time.Duration `yaml:"call_timeout"`
	// CloseGrace is how long a server gets to exit after SIGTERM before
	// it is killed (default 2s).
	CloseGrace time.Duration           `yaml:"close_grace"`
	Servers    map[string]ServerConfig `yaml:"servers"`
}

// ServerConfig describes one MCP server launched as a subprocess.
type ServerConfig struct {
	// Type is the transport. Only "stdio" (or empty) is supported.
	Type     string            `yaml:"type"`
	Command  string            `yaml:"command"`
	Args     []string          `yaml:"args"`
	Env      map[string]string `yaml:"env"`
	Disabled bool              `yaml:"disabled"`
	// IncludeTools, when non-empty, limits which tools are bridged.
	IncludeTools []string `yaml:"include_tools"`
	// ExcludeTools lists tools that are never bridged.
	ExcludeTools []string `yaml:"exclude_tools"`
}

// AuditConfig enables the tool-call ledger.
type AuditConfig struct {
	// Path is the SQLite database file. Empty disables auditing.
	Path string `yaml:"path"`
}

// Configured reports whether the ledger should be opened.
func (a AuditConfig) Configured() bool {
	return a.Path != ""
}

// Stdio reports whether the server uses the stdio transport.
func (s ServerConfig) Stdio() bool {
	return s.Type == "" || s.Type == "stdio"
}

// EnvList renders Env as KEY=VALUE pairs in sorted key order.
func (s ServerConfig) EnvList() []string {
	keys := make([]string, 0, len(s.Env))
	for k := range s.Env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+s.Env[k])
	}
	return out
}

// ServerNames returns configured server names in sorted order so that
// startup and prompts are deterministic.
func (m MCPConfig) ServerNames() []string {
	names := make([]string, 0, len(m.Servers))
	for name := range m.Servers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Supported LLM providers.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderGemini    = "gemini"
)

// Load reads configuration from a YAML file. JSON is a subset of YAML,
// so mcp.json files with a top-level mcpServers map load as well.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a default configuration with no MCP servers.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderOpenAI
	}
	c.LLM.Provider = strings.ToLower(c.LLM.Provider)
	if c.LLM.Model == "" {
		switch c.LLM.Provider {
		case ProviderAnthropic:
			c.LLM.Model = "claude-3-5-haiku-latest"
		case ProviderOllama:
			c.LLM.Model = "qwen3:4b"
		case ProviderGemini:
			c.LLM.Model = "gemini-1.5-flash"
		default:
			c.LLM.Model = "deepseek-chat"
		}
	}
	if c.LLM.Provider == ProviderOpenAI && c.LLM.BaseURL == "" && c.LLM.Model == "deepseek-chat" {
		c.LLM.BaseURL = "https://api.deepseek.com/v1"
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 60 * time.Second
	}

	if c.Agent.MaxRounds <= 0 {
		c.Agent.MaxRounds = 10
	}
	if c.Agent.MaxIterations <= 0 {
		c.Agent.MaxIterations = 20
	}

	if c.MCP.HandshakeTimeout <= 0 {
		c.MCP.HandshakeTimeout = 30 * time.Second
	}
	if c.MCP.CloseGrace <= 0 {
		c.MCP.CloseGrace = 2 * time.Second
	}
	if len(c.MCPServers) > 0 {
		if c.MCP.Servers == nil {
			c.MCP.Servers = make(map[string]ServerConfig, len(c.MCPServers))
		}
		for name, s := range c.MCPServers {
			if _, exists := c.MCP.Servers[name]; !exists {
				c.MCP.Servers[name] = s
			}
		}
	}

	if c.LogFormat == "" {
		c.LogFormat = "text"
	}
}

// Validate checks for settings that cannot work at runtime.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderOpenAI, ProviderAnthropic, ProviderOllama, ProviderGemini:
	default:
		return fmt.Errorf("llm.provider %q is not supported (valid: openai, anthropic, ollama, gemini)", c.LLM.Provider)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format %q is not supported (valid: text, json)", c.LogFormat)
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		return err
	}
	for name, s := range c.MCP.Servers {
		if s.Disabled || !s.Stdio() {
			continue
		}
		if s.Command == "" {
			return fmt.Errorf("mcp server %q: command is required", name)
		}
	}
	return nil
}
