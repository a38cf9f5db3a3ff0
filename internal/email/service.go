// Package email provides email sending capabilities via SMTP.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"net/smtp"
	"strings"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
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

func (s *Service) fromHeader() string {
	if s.config.FromName != "" {
		return fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	return s.config.From
}

// SendHTMLEmail sends a multipart email with a plain text fallback.
func (s *Service) SendHTMLEmail(to []string, subject, textBody, htmlBody string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}
	msg := buildMessage(s.fromHeader(), to, subject, textBody, htmlBody)
	return s.send(s.server, s.auth, s.config.From, to, msg)
}

const boundary = "boundary-portal"

func buildMessage(from string, to []string, subject, textBody, htmlBody string) []byte {
	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(to, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
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

// DecisionData holds data for the proposal decision template.
type DecisionData struct {
	AppName      string
	ProjectTitle string
	ProblemTitle string
	ProductName  string
	Outcome      string
	ProposalURL  string
}

// SendDecisionEmail tells a proposal owner that their proposal was approved
// or rejected.
func (s *Service) SendDecisionEmail(to string, data DecisionData) error {
	if data.AppName == "" {
		data.AppName = "Innovation Portal"
	}
	subject := fmt.Sprintf("Your proposal was %s", strings.ToLower(data.Outcome))
	html, err := renderTemplate(decisionEmailTemplate, data)
	if err != nil {
		return fmt.Errorf("render decision template: %w", err)
	}
	text := fmt.Sprintf("Your proposal %q for %q was %s.", displayTitle(data), data.ProblemTitle, strings.ToLower(data.Outcome))
	return s.SendHTMLEmail([]string{to}, subject, text, html)
}

func displayTitle(data DecisionData) string {
	if data.ProjectTitle != "" {
		return data.ProjectTitle
	}
	return data.ProductName
}

func renderTemplate(tmpl string, data interface{}) (string, error) {
	t := template.Must(template.New("email").Funcs(template.FuncMap{
		"approved": func(outcome string) bool { return outcome == "Approved" },
	}).Parse(tmpl))
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", err
	}
	return buf.String(), nil
}

const decisionEmailTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>{{.AppName}}: proposal {{.Outcome}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { border-bottom: 2px solid #0066cc; padding-bottom: 10px; margin-bottom: 20px; }
        .button { display: inline-block; padding: 12px 24px; background: #0066cc; color: white; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .approved { color: #1e7e34; }
        .rejected { color: #b02a37; }
        .footer { margin-top: 30px; padding-top: 20px; border-top: 1px solid #eee; font-size: 12px; color: #666; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{.AppName}}</h1>
    </div>

    <h2 class="{{if approved .Outcome}}approved{{else}}rejected{{end}}">Proposal {{.Outcome}}</h2>

    <p>Your proposal{{if .ProjectTitle}} <strong>{{.ProjectTitle}}</strong>{{end}}{{if .ProductName}} using <strong>{{.ProductName}}</strong>{{end}} for the problem statement <strong>{{.ProblemTitle}}</strong> has been {{.Outcome}}.</p>

    {{if approved .Outcome}}<p>An administrator will follow up to plan the project.</p>{{end}}

    {{if .ProposalURL}}<p><a href="{{.ProposalURL}}" class="button">View Proposal</a></p>{{end}}

    <div class="footer">
        <p>You received this email because you submitted a proposal on {{.AppName}}.</p>
    </div>
</body>
</html>`
