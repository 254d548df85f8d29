package notify

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/lrstanley/girc"
	"github.com/soyeahso/chatdesk/internal/config"
	"github.com/soyeahso/chatdesk/internal/domain"
	"github.com/soyeahso/chatdesk/internal/logging"
	"github.com/soyeahso/chatdesk/internal/version"
)

// maxIRCLine keeps PRIVMSG lines well under the 512-byte protocol limit.
const maxIRCLine = 400

var errIRCNotConnected = errors.New("irc: not connected")

// IRCSender posts notifications to an operations channel so agents
// watching IRC see new assignments and messages.
type IRCSender struct {
	cfg    config.IRCConfig
	client *girc.Client
	log    *logging.Logger

	mu      sync.RWMutex
	joined  bool
	lastErr string
}

// NewIRCSender builds the girc client; Start connects it.
func NewIRCSender(cfg config.IRCConfig, log *logging.Logger) *IRCSender {
	port := cfg.Port
	if port == 0 {
		port = 6667
		if cfg.UseTLS {
			port = 6697
		}
	}

	gircCfg := girc.Config{
		Server:  cfg.Server,
		Port:    port,
		Nick:    cfg.Nick,
		User:    cfg.Nick,
		Name:    "chatdesk notifier",
		SSL:     cfg.UseTLS,
		Version: version.UserAgent(),
	}
	if cfg.UseTLS {
		gircCfg.TLSConfig = &tls.Config{ServerName: cfg.Server}
	}
	if cfg.SASL && cfg.Password != "" {
		gircCfg.SASL = &girc.SASLPlain{User: cfg.Nick, Pass: cfg.Password}
	} else if cfg.Password != "" {
		gircCfg.ServerPass = cfg.Password
	}

	s := &IRCSender{cfg: cfg, client: girc.New(gircCfg), log: log.Sub("irc")}
	s.client.Handlers.Add(girc.CONNECTED, func(c *girc.Client, _ girc.Event) {
		c.Cmd.Join(s.cfg.Channel)
	})
	s.client.Handlers.Add(girc.JOIN, func(c *girc.Client, e girc.Event) {
		if e.Source != nil && e.Source.Name == c.GetNick() && len(e.Params) > 0 && strings.EqualFold(e.Params[0], s.cfg.Channel) {
			s.mu.Lock()
			s.joined = true
			s.mu.Unlock()
			s.log.Info().Str("channel", s.cfg.Channel).Msg("joined ops channel")
		}
	})
	s.client.Handlers.Add(girc.DISCONNECTED, func(_ *girc.Client, _ girc.Event) {
		s.mu.Lock()
		s.joined = false
		s.mu.Unlock()
	})
	return s
}

// Name implements Sender.
func (s *IRCSender) Name() string { return "irc" }

// Start connects and blocks until the connection ends or ctx is done.
func (s *IRCSender) Start(ctx context.Context) error {
	s.log.Info().
		Str("server", s.cfg.Server).
		Str("nick", s.cfg.Nick).
		Str("channel", s.cfg.Channel).
		Bool("tls", s.cfg.UseTLS).
		Msg("connecting to IRC")

	errCh := make(chan error, 1)
	go func() { errCh <- s.client.Connect() }()

	select {
	case err := <-errCh:
		if err != nil {
			s.mu.Lock()
			s.lastErr = err.Error()
			s.mu.Unlock()
			return fmt.Errorf("irc connect: %w", err)
		}
		return nil
	case <-ctx.Done():
		s.client.Close()
		return ctx.Err()
	}
}

// Stop quits the server.
func (s *IRCSender) Stop() error {
	if s.client.IsConnected() {
		s.client.Quit("chatdesk shutting down")
	}
	return nil
}

// Send implements Sender.
func (s *IRCSender) Send(_ context.Context, n *domain.Notification, to domain.Identity) error {
	s.mu.RLock()
	joined := s.joined
	s.mu.RUnlock()
	if !joined || !s.client.IsConnected() {
		return errIRCNotConnected
	}
	for _, line := range ircLines(formatIRC(n, to), maxIRCLine) {
		s.client.Cmd.Message(s.cfg.Channel, line)
	}
	return nil
}

func formatIRC(n *domain.Notification, to domain.Identity) string {
	text := fmt.Sprintf("[%s] session #%d for %s: %s", n.Type, n.SessionID, to.DisplayName(), n.Title)
	if n.Body != "" {
		text += " - " + n.Body
	}
	return text
}

// ircLines splits text on newlines and then on rune boundaries so no
// line exceeds max bytes.
func ircLines(text string, max int) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		for len(line) > max {
			cut := max
			for cut > 0 && !isRuneStart(line[cut]) {
				cut--
			}
			if sp := strings.LastIndexByte(line[:cut], ' '); sp > max/2 {
				cut = sp
			}
			out = append(out, strings.TrimSpace(line[:cut]))
			line = strings.TrimSpace(line[cut:])
		}
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func isRuneStart(b byte) bool { return b&0xC0 != 0x80 }
