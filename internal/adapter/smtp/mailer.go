// Package smtp delivers tenant administrator invitations by e-mail.
package smtp

import (
	"context"
	"fmt"
	"html"
	"net/smtp"
	"net/url"

	"github.com/plexica/plexica-sub002/internal/domain"
)

// Config holds the SMTP relay settings and the base URL invitation links
// point to.
type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	FromName string

	InviteBaseURL string
}

// Mailer implements domain.InvitationSender over net/smtp.
type Mailer struct {
	config Config
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

var _ domain.InvitationSender = (*Mailer)(nil)

func NewMailer(config Config) *Mailer {
	return &Mailer{config: config, send: smtp.SendMail}
}

// SendInvitation e-mails inv.Email a link to accept the invitation.
func (m *Mailer) SendInvitation(ctx context.Context, inv domain.Invitation) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	link, err := m.inviteURL(inv)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("You're invited to administer %s", inv.TenantName)
	body := fmt.Sprintf(`<html><body>
		<h2>Welcome to %[1]s</h2>
		<p>You have been made the administrator of the %[1]s workspace.</p>
		<p><a href="%[2]s">Click here to accept the invitation</a></p>
		<p>Or copy this link to your browser: %[2]s</p>
	</body></html>`, html.EscapeString(inv.TenantName), html.EscapeString(link))

	var auth smtp.Auth
	if m.config.User != "" {
		auth = smtp.PlainAuth("", m.config.User, m.config.Password, m.config.Host)
	}
	addr := fmt.Sprintf("%s:%d", m.config.Host, m.config.Port)
	if err := m.send(addr, auth, m.config.From, []string{inv.Email}, m.message(inv.Email, subject, body)); err != nil {
		return fmt.Errorf("sending invitation mail: %w", err)
	}
	return nil
}

func (m *Mailer) inviteURL(inv domain.Invitation) (string, error) {
	u, err := url.Parse(m.config.InviteBaseURL)
	if err != nil {
		return "", fmt.Errorf("parsing invite base url: %w", err)
	}
	q := u.Query()
	q.Set("tenant", inv.TenantSlug)
	q.Set("token", inv.Token)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (m *Mailer) message(to, subject, body string) []byte {
	from := m.config.From
	if m.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", m.config.FromName, m.config.From)
	}
	return []byte(fmt.Sprintf("From: %s\r\nTo: %s\r\nSubject: %s\r\nMIME-Version: 1.0\r\nContent-Type: text/html; charset=UTF-8\r\n\r\n%s",
		from, to, subject, body))
}
