package notify

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/soyeahso/chatdesk/internal/config"
	"github.com/soyeahso/chatdesk/internal/domain"
	"github.com/soyeahso/chatdesk/internal/logging"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// GmailSender emails the recipient of a notification. Only types listed
// in the sender's filter are mailed; agents rarely want email for every
// chat message.
type GmailSender struct {
	svc   *gmail.Service
	from  string
	types map[string]bool
	log   *logging.Logger
}

// NewGmailSender authorizes against the Gmail API using an OAuth client
// credentials file and a previously saved token.
func NewGmailSender(ctx context.Context, cfg config.GmailConfig, log *logging.Logger) (*GmailSender, error) {
	b, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("reading gmail credentials: %w", err)
	}
	oauthCfg, err := google.ConfigFromJSON(b, gmail.GmailSendScope)
	if err != nil {
		return nil, fmt.Errorf("parsing gmail credentials: %w", err)
	}
	tok, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("no gmail token at %s: %w", cfg.TokenFile, err)
	}

	svc, err := gmail.NewService(ctx, option.WithHTTPClient(oauthCfg.Client(ctx, tok)))
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}
	return &GmailSender{
		svc:  svc,
		from: cfg.From,
		types: map[string]bool{
			domain.NotifySessionAssigned: true,
			domain.NotifySessionClosed:   true,
		},
		log: log.Sub("gmail"),
	}, nil
}

func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	tok := &oauth2.Token{}
	err = json.NewDecoder(f).Decode(tok)
	return tok, err
}

// Name implements Sender.
func (g *GmailSender) Name() string { return "gmail" }

// Send implements Sender. Recipients without an email address are skipped.
func (g *GmailSender) Send(ctx context.Context, n *domain.Notification, to domain.Identity) error {
	if !g.types[n.Type] || to.Email == "" {
		return nil
	}
	raw := buildMail(g.from, to, n)
	_, err := g.svc.Users.Messages.Send("me", &gmail.Message{Raw: raw}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("gmail send: %w", err)
	}
	g.log.Debug().Str("to", to.Email).Int64("session", n.SessionID).Msg("notification emailed")
	return nil
}

// buildMail renders an RFC 2822 message encoded for the Gmail API.
func buildMail(from string, to domain.Identity, n *domain.Notification) string {
	var b strings.Builder
	if from != "" {
		fmt.Fprintf(&b, "From: %s\r\n", from)
	}
	fmt.Fprintf(&b, "To: %s\r\n", to.Email)
	fmt.Fprintf(&b, "Subject: %s\r\n", headerSafe(n.Title))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	fmt.Fprintf(&b, "Hi %s,\r\n\r\n%s\r\n\r\nChat session #%d\r\n", to.DisplayName(), n.Body, n.SessionID)
	return base64.URLEncoding.EncodeToString([]byte(b.String()))
}

func headerSafe(s string) string {
	return strings.NewReplacer("\r", " ", "\n", " ").Replace(s)
}
