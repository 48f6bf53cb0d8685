package config

import (
	"os"
	"strconv"
	"strings"
)

// EnvVarMapping maps environment variables to config paths.
var EnvVarMapping = map[string]string{
	"DEBUSSY_WORKER_COMMAND":        "worker.command",
	"DEBUSSY_WORKER_MODEL":          "worker.model",
	"DEBUSSY_WORKER_TIMEOUT":        "worker.timeout_seconds",
	"DEBUSSY_GATES_TIMEOUT":         "gates.timeout_seconds",
	"DEBUSSY_RETRY_MAX_RETRIES":     "retry.max_retries",
	"DEBUSSY_RESTART_ENABLED":       "restart.enabled",
	"DEBUSSY_RESTART_MAX_RESTARTS":  "restart.max_restarts",
	"DEBUSSY_RESTART_THRESHOLD_PCT": "restart.context_threshold_pct",
	"DEBUSSY_RESTART_TOOL_LIMIT":    "restart.tool_call_limit",
	"DEBUSSY_GIT_AUTO_COMMIT":       "git.auto_commit",
	"DEBUSSY_GIT_CO_AUTHOR":         "git.co_author",
	"DEBUSSY_DB_DRIVER":             "database.driver",
	"DEBUSSY_DB_HOST":               "database.postgres.host",
	"DEBUSSY_DB_PORT":               "database.postgres.port",
	"DEBUSSY_DB_NAME":               "database.postgres.database",
	"DEBUSSY_DB_USER":               "database.postgres.user",
	"DEBUSSY_DB_PASSWORD":           "database.postgres.password",
	"DEBUSSY_DB_SSL_MODE":           "database.postgres.ssl_mode",
	"DEBUSSY_GITHUB_TOKEN":          "trackers.github.token",
	"DEBUSSY_GITHUB_REPO":           "trackers.github.repo",
	"DEBUSSY_GITLAB_TOKEN":          "trackers.gitlab.token",
	"DEBUSSY_GITLAB_BASE_URL":       "trackers.gitlab.base_url",
	"DEBUSSY_GITLAB_PROJECT":        "trackers.gitlab.project",
	"DEBUSSY_JIRA_BASE_URL":         "trackers.jira.base_url",
	"DEBUSSY_JIRA_EMAIL":            "trackers.jira.email",
	"DEBUSSY_JIRA_API_TOKEN":        "trackers.jira.api_token",
	"DEBUSSY_WEBHOOK_URL":           "notify.webhook_url",
	"DEBUSSY_EVENTS_LISTEN_ADDR":    "events.listen_addr",
}

// ApplyEnvVars applies environment variable overrides to cfg.
// Returns the config paths that were overridden.
func ApplyEnvVars(cfg *Config) []string {
	var overridden []string

	for envVar, path := range EnvVarMapping {
		value := os.Getenv(envVar)
		if value == "" {
			continue
		}
		if applyEnvVar(cfg, path, value) {
			overridden = append(overridden, path)
		}
	}

	return overridden
}

func applyEnvVar(cfg *Config, path, value string) bool {
	switch path {
	case "worker.command":
		cfg.Worker.Command = value
	case "worker.model":
		cfg.Worker.Model = value
	case "worker.timeout_seconds":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Worker.TimeoutSeconds = v
		}
	case "gates.timeout_seconds":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Gates.TimeoutSeconds = v
		}
	case "retry.max_retries":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Retry.MaxRetries = v
		}
	case "restart.enabled":
		cfg.Restart.Enabled = parseBool(value)
	case "restart.max_restarts":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Restart.MaxRestarts = v
		}
	case "restart.context_threshold_pct":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Restart.ContextThresholdPct = v
		}
	case "restart.tool_call_limit":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Restart.ToolCallLimit = v
		}
	case "git.auto_commit":
		cfg.Git.AutoCommit = parseBool(value)
	case "git.co_author":
		cfg.Git.CoAuthor = value
	case "database.driver":
		cfg.Database.Driver = value
	case "database.postgres.host":
		cfg.Database.Postgres.Host = value
	case "database.postgres.port":
		if v, err := strconv.Atoi(value); err == nil {
			cfg.Database.Postgres.Port = v
		}
	case "database.postgres.database":
		cfg.Database.Postgres.Database = value
	case "database.postgres.user":
		cfg.Database.Postgres.User = value
	case "database.postgres.password":
		cfg.Database.Postgres.Password = value
	case "database.postgres.ssl_mode":
		cfg.Database.Postgres.SSLMode = value
	case "trackers.github.token":
		cfg.Trackers.GitHub.Token = value
	case "trackers.github.repo":
		cfg.Trackers.GitHub.Repo = value
	case "trackers.gitlab.token":
		cfg.Trackers.GitLab.Token = value
	case "trackers.gitlab.base_url":
		cfg.Trackers.GitLab.BaseURL = value
	case "trackers.gitlab.project":
		cfg.Trackers.GitLab.Project = value
	case "trackers.jira.base_url":
		cfg.Trackers.Jira.BaseURL = value
	case "trackers.jira.email":
		cfg.Trackers.Jira.Email = value
	case "trackers.jira.api_token":
		cfg.Trackers.Jira.APIToken = value
	case "notify.webhook_url":
		cfg.Notify.WebhookURL = value
	case "events.listen_addr":
		cfg.Events.ListenAddr = value
	default:
		return false
	}
	return true
}

// parseBool parses a boolean string (case-insensitive).
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}
