// Package config loads runtime settings: defaults, then a TOML file, then
// KATA_* environment variables, with env winning.
package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
)

type Config struct {
	Agent    AgentConfig    `toml:"agent"`
	Tasks    TasksConfig    `toml:"tasks"`
	Provider ProviderConfig `toml:"provider"`
	Observer ObserverConfig `toml:"observer"`
}

type AgentConfig struct {
	Version        string `toml:"version"`
	WorkspacePath  string `toml:"workspace_path"`
	SkillsPath     string `toml:"skills_path"`
	MaxTurns       int    `toml:"max_turns"`
	ResultBudget   int    `toml:"result_budget"`
	CommandTimeout int    `toml:"command_timeout"` // seconds
}

type TasksConfig struct {
	Root   string `toml:"root"`    // directory holding one subdir per task list
	ListID string `toml:"list_id"` // explicit task list override
	Team   string `toml:"team"`    // team name, used when list_id is empty
}

type ProviderConfig struct {
	Name    string `toml:"name"`
	Model   string `toml:"model"`
	APIKey  string `toml:"api_key"`
	BaseURL string `toml:"base_url"`
}

type ObserverConfig struct {
	Enabled  bool   `toml:"enabled"`
	Endpoint string `toml:"endpoint"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = "/tmp"
	}
	return Config{
		Agent: AgentConfig{
			Version:        "v6",
			WorkspacePath:  filepath.Join(home, "kata-workspace"),
			SkillsPath:     filepath.Join(home, ".kata", "skills"),
			MaxTurns:       10,
			ResultBudget:   5000,
			CommandTimeout: 30,
		},
		Tasks: TasksConfig{
			Root: filepath.Join(home, ".kata", "tasks"),
		},
		Provider: ProviderConfig{
			Name:  "anthropic",
			Model: "claude-sonnet-4-5",
		},
	}
}

// Load reads config: defaults -> TOML file -> env vars (env wins).
func Load(path string) Config {
	cfg := Default()

	if path == "" {
		path = "kata.toml"
	}
	if data, err := os.ReadFile(path); err == nil {
		_ = toml.Unmarshal(data, &cfg)
	}

	// Env overrides
	if v := os.Getenv("KATA_VERSION"); v != "" {
		cfg.Agent.Version = v
	}
	if v := os.Getenv("KATA_WORKSPACE"); v != "" {
		cfg.Agent.WorkspacePath = v
	}
	if v := os.Getenv("KATA_SKILLS_PATH"); v != "" {
		cfg.Agent.SkillsPath = v
	}
	if v := os.Getenv("KATA_MAX_TURNS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Agent.MaxTurns = n
		}
	}
	if v := os.Getenv("KATA_TASKS_ROOT"); v != "" {
		cfg.Tasks.Root = v
	}
	if v := os.Getenv("KATA_TASK_LIST_ID"); v != "" {
		cfg.Tasks.ListID = v
	}
	if v := os.Getenv("KATA_TEAM_NAME"); v != "" {
		cfg.Tasks.Team = v
	}
	if v := os.Getenv("KATA_API_KEY"); v != "" {
		cfg.Provider.APIKey = v
	}
	if v := os.Getenv("KATA_BASE_URL"); v != "" {
		cfg.Provider.BaseURL = v
	}
	if v := os.Getenv("KATA_MODEL"); v != "" {
		cfg.Provider.Model = v
	}
	if v := os.Getenv("KATA_OBSERVER_ENABLED"); v == "true" || v == "1" {
		cfg.Observer.Enabled = true
	}
	return cfg
}
