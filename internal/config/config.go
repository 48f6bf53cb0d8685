// Package config provides configuration management for debussy.
package config

import (
	"fmt"
	"path/filepath"
)

const (
	// ConfigFileName is the default config file name.
	ConfigFileName = "config.yaml"
	// DebussyDir is the per-project state directory.
	DebussyDir = ".debussy"
	// StateDBName is the sqlite state-store file inside DebussyDir.
	StateDBName = "state.db"
	// PIDFileName is the orchestrator PID guard file inside DebussyDir.
	PIDFileName = "debussy.pid"
	// LogsDirName holds per-phase worker session logs inside DebussyDir.
	LogsDirName = "logs"
)

// Config is the full debussy configuration.
type Config struct {
	Worker   WorkerConfig   `yaml:"worker"`
	Gates    GatesConfig    `yaml:"gates"`
	Retry    RetryConfig    `yaml:"retry"`
	Restart  RestartConfig  `yaml:"restart"`
	Git      GitConfig      `yaml:"git"`
	Database DatabaseConfig `yaml:"database"`
	Trackers TrackersConfig `yaml:"trackers"`
	Notify   NotifyConfig   `yaml:"notify"`
	Events   EventsConfig   `yaml:"events"`
}

// WorkerConfig describes how the worker CLI is spawned.
type WorkerConfig struct {
	// Command is the worker executable (default "claude").
	Command string `yaml:"command"`
	// Args replace the default worker argv when non-empty.
	Args []string `yaml:"args,omitempty"`
	// Model is passed through as --model when set.
	Model string `yaml:"model,omitempty"`
	// SandboxCommand is prepended to the worker argv (e.g. a sandbox wrapper).
	SandboxCommand []string `yaml:"sandbox_command,omitempty"`
	// TimeoutSeconds bounds a single phase attempt.
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

// GatesConfig maps canonical gate names to shell commands.
type GatesConfig struct {
	Commands       map[string]string `yaml:"commands,omitempty"`
	TimeoutSeconds int               `yaml:"timeout_seconds"`
}

// RetryConfig bounds per-phase remediation retries. MaxRetries counts
// retries beyond the first attempt, so a phase runs at most
// MaxRetries+1 times.
type RetryConfig struct {
	MaxRetries int `yaml:"max_retries"`
}

// RestartConfig controls context-window restart behavior.
type RestartConfig struct {
	Enabled             bool `yaml:"enabled"`
	MaxRestarts         int  `yaml:"max_restarts"`
	ContextThresholdPct int  `yaml:"context_threshold_pct"`
	ToolCallLimit       int  `yaml:"tool_call_limit"`
}

// GitConfig controls per-phase auto-commits.
type GitConfig struct {
	AutoCommit      bool   `yaml:"auto_commit"`
	CommitOnFailure bool   `yaml:"commit_on_failure"`
	CommitTemplate  string `yaml:"commit_template,omitempty"`
	CoAuthor        string `yaml:"co_author,omitempty"`
}

// DatabaseConfig selects the state-store driver. Sqlite is the default;
// postgres exists for shared-store deployments.
type DatabaseConfig struct {
	Driver   string         `yaml:"driver"`
	Postgres PostgresConfig `yaml:"postgres,omitempty"`
}

// PostgresConfig holds postgres connection settings.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password,omitempty"`
	SSLMode  string `yaml:"ssl_mode,omitempty"`
}

// DSN renders the postgres connection string.
func (p PostgresConfig) DSN() string {
	ssl := p.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		p.Host, p.Port, p.Database, p.User, p.Password, ssl)
}

// TrackersConfig holds the issue-tracker sync collaborators.
type TrackersConfig struct {
	GitHub GitHubConfig `yaml:"github,omitempty"`
	GitLab GitLabConfig `yaml:"gitlab,omitempty"`
	Jira   JiraConfig   `yaml:"jira,omitempty"`
}

// GitHubConfig configures the GitHub sync collaborator.
type GitHubConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token,omitempty"`
	// Repo is "owner/name"; falls back to the plan's GitHub Repo metadata.
	Repo string `yaml:"repo,omitempty"`
}

// GitLabConfig configures the GitLab sync collaborator.
type GitLabConfig struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token,omitempty"`
	BaseURL string `yaml:"base_url,omitempty"`
	Project string `yaml:"project,omitempty"`
}

// JiraConfig configures the Jira sync collaborator.
type JiraConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BaseURL  string `yaml:"base_url,omitempty"`
	Email    string `yaml:"email,omitempty"`
	APIToken string `yaml:"api_token,omitempty"`
}

// NotifyConfig configures the webhook notifier.
type NotifyConfig struct {
	WebhookURL string `yaml:"webhook_url,omitempty"`
}

// EventsConfig configures the websocket event broadcaster.
type EventsConfig struct {
	// ListenAddr enables the /events websocket endpoint when set
	// (e.g. "127.0.0.1:7373").
	ListenAddr string `yaml:"listen_addr,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Worker: WorkerConfig{
			Command:        "claude",
			TimeoutSeconds: 1800,
		},
		Gates: GatesConfig{
			TimeoutSeconds: 300,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
		},
		Restart: RestartConfig{
			Enabled:             true,
			MaxRestarts:         3,
			ContextThresholdPct: 80,
			ToolCallLimit:       150,
		},
		Git: GitConfig{
			AutoCommit: true,
		},
		Database: DatabaseConfig{
			Driver: "sqlite",
		},
	}
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Worker.Command == "" {
		return fmt.Errorf("worker.command must not be empty")
	}
	if c.Worker.TimeoutSeconds <= 0 {
		return fmt.Errorf("worker.timeout_seconds must be positive, got %d", c.Worker.TimeoutSeconds)
	}
	if c.Gates.TimeoutSeconds <= 0 {
		return fmt.Errorf("gates.timeout_seconds must be positive, got %d", c.Gates.TimeoutSeconds)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	if c.Restart.MaxRestarts < 0 {
		return fmt.Errorf("restart.max_restarts must not be negative, got %d", c.Restart.MaxRestarts)
	}
	if pct := c.Restart.ContextThresholdPct; pct < 1 || pct > 100 {
		return fmt.Errorf("restart.context_threshold_pct must be in 1..100, got %d", pct)
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("database.driver must be sqlite or postgres, got %q", c.Database.Driver)
	}
	return nil
}

// StateDir returns the .debussy directory under root.
func StateDir(root string) string {
	return filepath.Join(root, DebussyDir)
}

// DBPath returns the state-store file under root.
func DBPath(root string) string {
	return filepath.Join(StateDir(root), StateDBName)
}

// PIDPath returns the PID guard file under root.
func PIDPath(root string) string {
	return filepath.Join(StateDir(root), PIDFileName)
}

// LogPath returns the session-log file for one phase attempt.
func LogPath(root, runID, phaseID string) string {
	return filepath.Join(StateDir(root), LogsDirName,
		fmt.Sprintf("run_%s_phase_%s.log", runID, phaseID))
}
