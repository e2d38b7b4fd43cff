// Package email sends thread notification mail via SMTP.
package email

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net/smtp"
	"strings"
	"unicode"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
	AppName  string
	// BaseURL prefixes thread links in notices, e.g. https://example.com
	BaseURL string
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   sendFunc
}

// NewService creates a new email service
func NewService(config Config) *Service {
	if config.AppName == "" {
		config.AppName = "Commentary"
	}
	var auth smtp.Auth
	if config.Username != "" {
		auth = smtp.PlainAuth("", config.Username, config.Password, config.Host)
	}
	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

func (s *Service) AppName() string {
	return s.config.AppName
}

// ThreadURL links to the commontable's thread page.
func (s *Service) ThreadURL(commontableType, commontableID string) string {
	base := strings.TrimRight(s.config.BaseURL, "/")
	return fmt.Sprintf("%s/threads/%s/%s", base, commontableType, commontableID)
}

func (s *Service) from() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// SendHTMLEmail sends a multipart email with a plain text fallback. Each
// recipient gets a separate message addressed only to them.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	var errs []error
	for _, recipient := range to {
		if strings.ContainsFunc(recipient, unicode.IsControl) {
			errs = append(errs, fmt.Errorf("invalid recipient %q", recipient))
			continue
		}
		msg := s.buildMessage(recipient, subject, textBody, htmlBody)
		if err := s.send(s.server, s.auth, s.config.From, []string{recipient}, msg); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", recipient, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) buildMessage(to, subject, textBody, htmlBody string) []byte {
	boundary := "boundary-commentary"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", to)
	fmt.Fprintf(&msg, "From: %s\r\n", s.from())
	fmt.Fprintf(&msg, "Subject: %s\r\n", encodeHeader(subject))
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", textBody)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", htmlBody)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)
	return msg.Bytes()
}

// encodeHeader drops control characters and Q-encodes anything outside
// printable ASCII, so a header value always stays on one line.
func encodeHeader(value string) string {
	cleaned := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, value)
	return mime.QEncoding.Encode("utf-8", cleaned)
}

// NoticeData is rendered into every thread notice.
type NoticeData struct {
	AppName   string
	ActorName string
	Subject   string
	ThreadURL string
	Excerpt   string
}

// SendCommentNotice tells subscribers about a new comment.
func (s *Service) SendCommentNotice(to []string, actorName, commontable, threadURL, body string) error {
	data := NoticeData{
		AppName:   s.config.AppName,
		ActorName: displayName(actorName),
		Subject:   commontable,
		ThreadURL: threadURL,
		Excerpt:   excerpt(body, 280),
	}
	subject := fmt.Sprintf("New comment on %s", commontable)
	html, err := renderTemplate(commentNoticeTemplate, data)
	if err != nil {
		return fmt.Errorf("render comment notice: %w", err)
	}
	text := fmt.Sprintf("%s commented on %s:\n\n%s\n\n%s", data.ActorName, commontable, data.Excerpt, threadURL)
	return s.SendHTMLEmail(to, subject, text, html)
}

// SendReopenNotice tells subscribers that a closed discussion is open again.
func (s *Service) SendReopenNotice(to []string, actorName, commontable, threadURL string) error {
	data := NoticeData{
		AppName:   s.config.AppName,
		ActorName: displayName(actorName),
		Subject:   commontable,
		ThreadURL: threadURL,
	}
	subject := fmt.Sprintf("Discussion reopened on %s", commontable)
	html, err := renderTemplate(reopenNoticeTemplate, data)
	if err != nil {
		return fmt.Errorf("render reopen notice: %w", err)
	}
	text := fmt.Sprintf("%s reopened the discussion on %s.\n\n%s", data.ActorName, commontable, threadURL)
	return s.SendHTMLEmail(to, subject, text, html)
}

func displayName(name string) string {
	if strings.TrimSpace(name) == "" {
		return "Someone"
	}
	return name
}

func excerpt(body string, limit int) string {
	runes := []rune(strings.TrimSpace(body))
	if len(runes) <= limit {
		return string(runes)
	}
	return strings.TrimSpace(string(runes[:limit])) + "…"
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t, err := template.New("email").Parse(tmpl)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const noticeStyle = `
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .quote { border-left: 3px solid #ccc; padding-left: 12px; color: #555; white-space: pre-wrap; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>`

const commentNoticeTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>New comment on {{.Subject}}</title>` + noticeStyle + `
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <p><strong>{{.ActorName}}</strong> commented on {{.Subject}}:</p>

    <p class="quote">{{.Excerpt}}</p>

    <p>
        <a href="{{.ThreadURL}}" class="button">View discussion</a>
    </p>

    <div class="footer">
        <p>You are receiving this because you subscribed to this discussion.</p>
    </div>
</body>
</html>`

const reopenNoticeTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Discussion reopened on {{.Subject}}</title>` + noticeStyle + `
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <p><strong>{{.ActorName}}</strong> reopened the discussion on {{.Subject}}.</p>

    <p>
        <a href="{{.ThreadURL}}" class="button">View discussion</a>
    </p>

    <div class="footer">
        <p>You are receiving this because you subscribed to this discussion.</p>
    </div>
</body>
</html>`
