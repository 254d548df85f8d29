package config

// Config is the root configuration for chatdesk.
type Config struct {
	Gateway GatewayConfig `yaml:"gateway,omitempty"`
	Store   StoreConfig   `yaml:"store,omitempty"`
	Redis   RedisConfig   `yaml:"redis,omitempty"`
	Kafka   KafkaConfig   `yaml:"kafka,omitempty"`
	Notify  NotifyConfig  `yaml:"notify,omitempty"`
	Logging LoggingConfig `yaml:"logging,omitempty"`
}

// GatewayConfig controls the gateway HTTP/WebSocket server.
type GatewayConfig struct {
	Port           int         `yaml:"port,omitempty"`
	Bind           string      `yaml:"bind,omitempty"` // "auto" | "lan" | "loopback" | "custom"
	CustomBindHost string      `yaml:"customBindHost,omitempty"`
	Auth           GatewayAuth `yaml:"auth,omitempty"`
	TLS            GatewayTLS  `yaml:"tls,omitempty"`
	AllowedOrigins []string    `yaml:"allowedOrigins,omitempty"`
	SendQueue      int         `yaml:"sendQueue,omitempty"` // outbound frames buffered per connection
}

// GatewayAuth lists the identities the gateway accepts. Requests without a
// token are treated as anonymous customers.
type GatewayAuth struct {
	Users []UserEntry `yaml:"users,omitempty"`
}

// UserEntry maps a bearer token to a chat identity.
type UserEntry struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name,omitempty"`
	Email string `yaml:"email,omitempty"`
	Token string `yaml:"token"`
	Agent bool   `yaml:"agent,omitempty"`
}

// GatewayTLS configures TLS for the gateway.
type GatewayTLS struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	CertPath string `yaml:"certPath,omitempty"`
	KeyPath  string `yaml:"keyPath,omitempty"`
}

// StoreConfig configures the relational store.
type StoreConfig struct {
	Path          string `yaml:"path,omitempty"`          // sqlite file; ":memory:" for ephemeral
	CallTimeoutMs int    `yaml:"callTimeoutMs,omitempty"` // per-operation deadline
}

// RedisConfig enables cross-process room broadcast over Redis Pub/Sub.
type RedisConfig struct {
	Enabled  bool   `yaml:"enabled,omitempty"`
	Addr     string `yaml:"addr,omitempty"`
	Password string `yaml:"password,omitempty"`
	DB       int    `yaml:"db,omitempty"`
	PoolSize int    `yaml:"poolSize,omitempty"`
	Channel  string `yaml:"channel,omitempty"`
}

// KafkaConfig enables the chat lifecycle event stream.
type KafkaConfig struct {
	Enabled  bool     `yaml:"enabled,omitempty"`
	Brokers  []string `yaml:"brokers,omitempty"`
	Topic    string   `yaml:"topic,omitempty"`
	Username string   `yaml:"username,omitempty"`
	Password string   `yaml:"password,omitempty"`
}

// NotifyConfig configures best-effort notification senders.
type NotifyConfig struct {
	IRC   *IRCConfig   `yaml:"irc,omitempty"`
	Gmail *GmailConfig `yaml:"gmail,omitempty"`
}

// IRCConfig posts agent alerts to an operations channel.
type IRCConfig struct {
	Server   string `yaml:"server"`
	Port     int    `yaml:"port,omitempty"`
	Nick     string `yaml:"nick"`
	Password string `yaml:"password,omitempty"`
	Channel  string `yaml:"channel"`
	UseTLS   bool   `yaml:"useTLS,omitempty"`
	SASL     bool   `yaml:"sasl,omitempty"`
}

// GmailConfig emails customers when an agent picks up their session.
type GmailConfig struct {
	CredentialsFile string `yaml:"credentialsFile"`
	TokenFile       string `yaml:"tokenFile"`
	From            string `yaml:"from,omitempty"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level        string `yaml:"level,omitempty"`        // "silent" | "fatal" | "error" | "warn" | "info" | "debug" | "trace"
	ConsoleStyle string `yaml:"consoleStyle,omitempty"` // "pretty" | "json"
	File         string `yaml:"file,omitempty"`         // JSON lines are appended here as well when set
}
