package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func issuePaths(issues []ValidationIssue) []string {
	paths := make([]string, 0, len(issues))
	for _, i := range issues {
		paths = append(paths, i.Path)
	}
	return paths
}

func TestValidate_ValidDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_Gateway(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		path   string
	}{
		{"port too high", func(c *Config) { c.Gateway.Port = 70000 }, "gateway.port"},
		{"negative port", func(c *Config) { c.Gateway.Port = -1 }, "gateway.port"},
		{"bad bind", func(c *Config) { c.Gateway.Bind = "tailnet" }, "gateway.bind"},
		{"custom bind without host", func(c *Config) { c.Gateway.Bind = "custom" }, "gateway.customBindHost"},
		{"tls without cert", func(c *Config) { c.Gateway.TLS.Enabled = true }, "gateway.tls"},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }, "logging.level"},
		{"bad console style", func(c *Config) { c.Logging.ConsoleStyle = "compact" }, "logging.consoleStyle"},
		{"kafka without brokers", func(c *Config) { c.Kafka.Enabled = true }, "kafka.brokers"},
		{"redis without addr", func(c *Config) { c.Redis.Enabled = true; c.Redis.Addr = "" }, "redis.addr"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Contains(t, issuePaths(Validate(&cfg)), tt.path)
		})
	}
}

func TestValidate_Users(t *testing.T) {
	cfg := Defaults()
	cfg.Gateway.Auth.Users = []UserEntry{
		{ID: "a", Token: "t1", Agent: true},
		{ID: "a", Token: "t1"},
		{Token: "t2"},
		{ID: "c"},
	}

	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "gateway.auth.users[1].id")
	assert.Contains(t, paths, "gateway.auth.users[1].token")
	assert.Contains(t, paths, "gateway.auth.users[2].id")
	assert.Contains(t, paths, "gateway.auth.users[3].token")
	assert.NotContains(t, paths, "gateway.auth.users[0].id")
}

func TestValidate_IRC(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.IRC = &IRCConfig{SASL: true, Port: 70000}

	paths := issuePaths(Validate(&cfg))
	assert.Contains(t, paths, "notify.irc.server")
	assert.Contains(t, paths, "notify.irc.nick")
	assert.Contains(t, paths, "notify.irc.channel")
	assert.Contains(t, paths, "notify.irc.port")
	assert.Contains(t, paths, "notify.irc.sasl")

	cfg.Notify.IRC = &IRCConfig{Server: "irc.example.com", Nick: "bot", Channel: "#ops", Port: 6667}
	assert.Empty(t, Validate(&cfg))
}

func TestValidate_Gmail(t *testing.T) {
	cfg := Defaults()
	cfg.Notify.Gmail = &GmailConfig{}
	issues := Validate(&cfg)
	require.Len(t, issues, 2)
	assert.Equal(t, "notify.gmail.credentialsFile", issues[0].Path)
}

func TestValidationIssueString(t *testing.T) {
	issue := ValidationIssue{Path: "gateway.port", Message: "bad"}
	assert.Equal(t, "gateway.port: bad", issue.String())
}
