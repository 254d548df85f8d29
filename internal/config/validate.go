package config

import (
	"fmt"
	"slices"
)

// ValidationIssue describes a problem with a config value.
type ValidationIssue struct {
	Path    string
	Message string
}

func (v ValidationIssue) String() string {
	return fmt.Sprintf("%s: %s", v.Path, v.Message)
}

// Validate checks a Config for issues. Returns nil if valid.
func Validate(cfg *Config) []ValidationIssue {
	var issues []ValidationIssue

	// Gateway validation
	if cfg.Gateway.Port < 0 || cfg.Gateway.Port > 65535 {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.port",
			Message: fmt.Sprintf("port must be 0-65535, got %d", cfg.Gateway.Port),
		})
	}

	validBinds := []string{"auto", "lan", "loopback", "custom"}
	if cfg.Gateway.Bind != "" && !slices.Contains(validBinds, cfg.Gateway.Bind) {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.bind",
			Message: fmt.Sprintf("must be one of %v, got %q", validBinds, cfg.Gateway.Bind),
		})
	}
	if cfg.Gateway.Bind == "custom" && cfg.Gateway.CustomBindHost == "" {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.customBindHost",
			Message: "required when bind is custom",
		})
	}

	if cfg.Gateway.TLS.Enabled && (cfg.Gateway.TLS.CertPath == "" || cfg.Gateway.TLS.KeyPath == "") {
		issues = append(issues, ValidationIssue{
			Path:    "gateway.tls",
			Message: "certPath and keyPath are required when TLS is enabled",
		})
	}

	seenIDs := map[string]bool{}
	seenTokens := map[string]bool{}
	for i, u := range cfg.Gateway.Auth.Users {
		path := fmt.Sprintf("gateway.auth.users[%d]", i)
		if u.ID == "" {
			issues = append(issues, ValidationIssue{Path: path + ".id", Message: "id is required"})
		} else if seenIDs[u.ID] {
			issues = append(issues, ValidationIssue{Path: path + ".id", Message: fmt.Sprintf("duplicate id %q", u.ID)})
		}
		if u.Token == "" {
			issues = append(issues, ValidationIssue{Path: path + ".token", Message: "token is required"})
		} else if seenTokens[u.Token] {
			issues = append(issues, ValidationIssue{Path: path + ".token", Message: "duplicate token"})
		}
		seenIDs[u.ID] = true
		seenTokens[u.Token] = true
	}

	// Logging validation
	validLogLevels := []string{"silent", "fatal", "error", "warn", "info", "debug", "trace"}
	if cfg.Logging.Level != "" && !slices.Contains(validLogLevels, cfg.Logging.Level) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.level",
			Message: fmt.Sprintf("must be one of %v, got %q", validLogLevels, cfg.Logging.Level),
		})
	}

	validConsoleStyles := []string{"pretty", "json"}
	if cfg.Logging.ConsoleStyle != "" && !slices.Contains(validConsoleStyles, cfg.Logging.ConsoleStyle) {
		issues = append(issues, ValidationIssue{
			Path:    "logging.consoleStyle",
			Message: fmt.Sprintf("must be one of %v, got %q", validConsoleStyles, cfg.Logging.ConsoleStyle),
		})
	}

	// Bus and stream validation (only if enabled)
	if cfg.Redis.Enabled && cfg.Redis.Addr == "" {
		issues = append(issues, ValidationIssue{Path: "redis.addr", Message: "addr is required when redis is enabled"})
	}
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) == 0 {
		issues = append(issues, ValidationIssue{Path: "kafka.brokers", Message: "at least one broker is required when kafka is enabled"})
	}

	// IRC validation (only if configured)
	if cfg.Notify.IRC != nil {
		irc := cfg.Notify.IRC
		if irc.Server == "" {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.server",
				Message: "server is required",
			})
		}
		if irc.Nick == "" {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.nick",
				Message: "nick is required",
			})
		}
		if irc.Channel == "" {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.channel",
				Message: "channel is required",
			})
		}
		if irc.Port < 0 || irc.Port > 65535 {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.port",
				Message: fmt.Sprintf("port must be 0-65535, got %d", irc.Port),
			})
		}
		if irc.SASL && irc.Password == "" {
			issues = append(issues, ValidationIssue{
				Path:    "notify.irc.sasl",
				Message: "SASL requires a password to be set",
			})
		}
	}

	if cfg.Notify.Gmail != nil {
		if cfg.Notify.Gmail.CredentialsFile == "" {
			issues = append(issues, ValidationIssue{Path: "notify.gmail.credentialsFile", Message: "credentialsFile is required"})
		}
		if cfg.Notify.Gmail.TokenFile == "" {
			issues = append(issues, ValidationIssue{Path: "notify.gmail.tokenFile", Message: "tokenFile is required"})
		}
	}

	return issues
}
