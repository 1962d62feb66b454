package toolclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"deskbroker/internal/model"
	"deskbroker/internal/shared/logging"
)

// Config is a user-editable manifest of known tool-server invocations.
// SeedLocalIndex turns each active entry into a local_tool_index row so
// the registry cascade's local stage (spec step 2) has something to
// match before any remote registry is ever consulted.
type Config struct {
	MCPServers map[string]ServerConfig `json:"mcpServers"`
}

// ServerConfig is one server's launch invocation.
type ServerConfig struct {
	Command  string            `json:"command"`
	Args     []string          `json:"args,omitempty"`
	Env      map[string]string `json:"env,omitempty"`
	Disabled bool              `json:"disabled,omitempty"`
}

func (c *Config) AddServer(name string, config ServerConfig) {
	if c.MCPServers == nil {
		c.MCPServers = make(map[string]ServerConfig)
	}
	c.MCPServers[name] = config
}

func (c *Config) RemoveServer(name string) bool {
	if _, exists := c.MCPServers[name]; exists {
		delete(c.MCPServers, name)
		return true
	}
	return false
}

func (c *Config) GetServer(name string) (ServerConfig, bool) {
	config, exists := c.MCPServers[name]
	return config, exists
}

func (c *Config) ListServers() []string {
	names := make([]string, 0, len(c.MCPServers))
	for name := range c.MCPServers {
		names = append(names, name)
	}
	return names
}

// GetActiveServers returns every server not marked disabled.
func (c *Config) GetActiveServers() map[string]ServerConfig {
	active := make(map[string]ServerConfig)
	for name, config := range c.MCPServers {
		if !config.Disabled {
			active[name] = config
		}
	}
	return active
}

func (c *Config) Validate() error {
	if c.MCPServers == nil {
		return fmt.Errorf("no servers configured")
	}
	for name, config := range c.MCPServers {
		if config.Command == "" {
			return fmt.Errorf("server %q: command is required", name)
		}
		if strings.ContainsAny(config.Command, "\n\r") {
			return fmt.Errorf("server %q: command contains invalid characters", name)
		}
	}
	return nil
}

// ConfigLoader reads and writes the tool-server manifest, expanding
// environment variable references in each invocation.
type ConfigLoader struct {
	logger *logging.Logger
}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{logger: logging.NewComponentLogger("ToolConfigLoader")}
}

func (l *ConfigLoader) LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("parse config json: %w", err)
	}

	for name, serverConfig := range config.MCPServers {
		config.MCPServers[name] = l.expandEnvVars(serverConfig)
	}
	return &config, nil
}

func (l *ConfigLoader) SaveToPath(path string, config *Config) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

func (l *ConfigLoader) expandEnvVars(config ServerConfig) ServerConfig {
	config.Command = l.expandString(config.Command)
	for i, arg := range config.Args {
		config.Args[i] = l.expandString(arg)
	}
	if config.Env != nil {
		expanded := make(map[string]string, len(config.Env))
		for k, v := range config.Env {
			expanded[k] = l.expandString(v)
		}
		config.Env = expanded
	}
	return config
}

func (l *ConfigLoader) expandString(s string) string {
	return os.Expand(s, func(key string) string {
		value, ok := os.LookupEnv(key)
		if !ok || value == "" {
			l.logger.Warn("environment variable not found: %s", key)
			return ""
		}
		return value
	})
}

// LocalIndexStore is the subset of *store.Store SeedLocalIndex needs,
// matching the decoupling pattern already used by registry.Store and
// scheduler.Store.
type LocalIndexStore interface {
	UpsertLocalIndexEntry(ctx context.Context, packageName, category string, validated bool, invocation []string, tools map[string]model.ToolDescriptor) error
}

// SeedLocalIndex upserts one local_tool_index row per active manifest
// server. A manifest entry hasn't been exercised by the pool yet, so it
// seeds as unvalidated with no enumerated tools; category is left blank
// since the manifest doesn't classify servers.
func (c *Config) SeedLocalIndex(ctx context.Context, index LocalIndexStore) error {
	for name, server := range c.GetActiveServers() {
		invocation := append([]string{server.Command}, server.Args...)
		if err := index.UpsertLocalIndexEntry(ctx, name, "", false, invocation, nil); err != nil {
			return fmt.Errorf("seed local index entry %q: %w", name, err)
		}
	}
	return nil
}
