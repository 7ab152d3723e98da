package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/smtp"
	"strconv"
	"strings"
)

const (
	completeSubject = "Your Insight Engine Analysis is Complete!"
	errorSubject    = "There was a problem with your Insight Engine Analysis"
)

// SMTPConfig holds mail relay settings
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	BaseURL  string // used to build report links
}

type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends plain-text mails through an SMTP relay
type SMTPNotifier struct {
	cfg    SMTPConfig
	send   sendFunc
	logger *slog.Logger
}

func NewSMTPNotifier(cfg SMTPConfig, logger *slog.Logger) *SMTPNotifier {
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPNotifier{cfg: cfg, send: smtp.SendMail, logger: logger}
}

func (n *SMTPNotifier) NotifyComplete(ctx context.Context, email, jobID string) error {
	link := strings.TrimRight(n.cfg.BaseURL, "/") + "/report/" + jobID
	body := fmt.Sprintf("Your analysis for job %s is complete. View your report here: %s", jobID, link)
	return n.deliver(ctx, email, jobID, completeSubject, body)
}

func (n *SMTPNotifier) NotifyError(ctx context.Context, email, jobID, message string) error {
	body := fmt.Sprintf(
		"We're sorry, but there was an error processing your document for job %s.\n\nError: %s\n\nPlease try again or contact support.",
		jobID, message,
	)
	return n.deliver(ctx, email, jobID, errorSubject, body)
}

func (n *SMTPNotifier) deliver(ctx context.Context, to, jobID, subject, body string) error {
	if strings.TrimSpace(to) == "" {
		return fmt.Errorf("no recipient for job %s", jobID)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}
	addr := net.JoinHostPort(n.cfg.Host, strconv.Itoa(n.cfg.Port))

	if err := n.send(addr, auth, n.cfg.From, []string{to}, buildMessage(n.cfg.From, to, subject, body)); err != nil {
		return fmt.Errorf("send mail for job %s: %w", jobID, err)
	}

	n.logger.Info("Notification email sent",
		slog.String("job_id", jobID),
		slog.String("subject", subject),
	)
	return nil
}

func buildMessage(from, to, subject, body string) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return []byte(b.String())
}
