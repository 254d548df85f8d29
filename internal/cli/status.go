package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/soyeahso/chatdesk/internal/config"
	"github.com/soyeahso/chatdesk/internal/version"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration summary and probe a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s\n\n", version.Info())

			fmt.Fprintf(out, "Config:  %s\n", paths.Config)
			fmt.Fprintf(out, "Data:    %s\n", paths.Data)
			fmt.Fprintln(out)

			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(out, "Config:  error loading: %v\n", err)
				return nil
			}
			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(out, "Config:  not found (using defaults)")
			}

			agents, customers := 0, 0
			for _, u := range cfg.Gateway.Auth.Users {
				if u.Agent {
					agents++
				} else {
					customers++
				}
			}
			fmt.Fprintf(out, "Gateway: port=%d bind=%s tls=%v users=%d agents=%d\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.TLS.Enabled, customers, agents)

			dbPath := cfg.Store.Path
			if dbPath == "" {
				dbPath = paths.Database
			}
			fmt.Fprintf(out, "Store:   %s (timeout %dms)\n", dbPath, cfg.Store.CallTimeoutMs)
			fmt.Fprintf(out, "Redis:   %s\n", enabled(cfg.Redis.Enabled, cfg.Redis.Addr))
			fmt.Fprintf(out, "Kafka:   %s\n", enabled(cfg.Kafka.Enabled, cfg.Kafka.Topic))
			fmt.Fprintf(out, "IRC:     %s\n", enabled(cfg.Notify.IRC != nil, ircTarget(cfg.Notify.IRC)))
			fmt.Fprintf(out, "Gmail:   %s\n", enabled(cfg.Notify.Gmail != nil, ""))

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(out, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(out, "  - %s\n", issue)
				}
			}

			fmt.Fprintln(out)
			health, err := probe(cfg.Gateway, timeout)
			if err != nil {
				fmt.Fprintf(out, "Server:  not reachable (%v)\n", err)
				return nil
			}
			fmt.Fprintf(out, "Server:  %s version=%s clients=%d\n", health.Status, health.Version, health.Clients)
			return nil
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 3*time.Second, "health probe timeout")
	return cmd
}

func enabled(on bool, detail string) string {
	switch {
	case !on:
		return "disabled"
	case detail == "":
		return "enabled"
	default:
		return "enabled (" + detail + ")"
	}
}

func ircTarget(c *config.IRCConfig) string {
	if c == nil {
		return ""
	}
	return fmt.Sprintf("%s:%d %s", c.Server, c.Port, c.Channel)
}

type healthStatus struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Clients int    `json:"clients"`
}

// probe calls /health on the configured gateway address.
func probe(gw config.GatewayConfig, timeout time.Duration) (*healthStatus, error) {
	host := "127.0.0.1"
	if gw.Bind == "custom" && gw.CustomBindHost != "" {
		host = gw.CustomBindHost
	}
	scheme := "http"
	if gw.TLS.Enabled {
		scheme = "https"
	}
	url := fmt.Sprintf("%s://%s:%d/health", scheme, host, gw.Port)

	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", version.UserAgent())

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, body)
	}

	var h healthStatus
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return nil, fmt.Errorf("decoding health: %w", err)
	}
	return &h, nil
}
