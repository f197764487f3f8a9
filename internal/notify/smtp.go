package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"mime"
	"net"
	"net/mail"
	"net/smtp"
	"strings"
	"time"
)

const defaultSendTimeout = 10 * time.Second

const (
	OutcomeApproved = "approved"
	OutcomeRejected = "rejected"
)

// ReviewNotice tells a learner what staff decided about a quiz submission.
type ReviewNotice struct {
	SubmissionID int64
	LearnerName  string
	LearnerEmail string
	QuizTitle    string
	Score        float64
	Outcome      string
	Reason       string
}

type ReviewNotifier interface {
	NotifyReview(ctx context.Context, n ReviewNotice) error
}

type SMTPConfig struct {
	Host string
	Port int
	User string
	Pass string
	From string
	// Timeout bounds the whole SMTP exchange. Zero means 10s.
	Timeout time.Duration
}

type sendFunc func(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error

type SMTPNotifier struct {
	host    string
	port    int
	user    string
	pass    string
	from    string
	timeout time.Duration
	send    sendFunc
}

// NewSMTPNotifier returns nil when SMTP is not configured.
func NewSMTPNotifier(cfg SMTPConfig) ReviewNotifier {
	if strings.TrimSpace(cfg.Host) == "" || cfg.Port <= 0 || strings.TrimSpace(cfg.From) == "" {
		return nil
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	m := &SMTPNotifier{
		host:    strings.TrimSpace(cfg.Host),
		port:    cfg.Port,
		user:    strings.TrimSpace(cfg.User),
		pass:    cfg.Pass,
		from:    strings.TrimSpace(cfg.From),
		timeout: timeout,
	}
	m.send = m.dialAndSend
	return m
}

func (m *SMTPNotifier) NotifyReview(ctx context.Context, n ReviewNotice) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(n.LearnerEmail) == "" {
		return fmt.Errorf("notify submission %d: learner has no email", n.SubmissionID)
	}
	rcpt, err := mail.ParseAddress(n.LearnerEmail)
	if err != nil {
		return fmt.Errorf("notify submission %d: invalid learner email: %w", n.SubmissionID, err)
	}
	to := rcpt.Address

	subject, body := renderReview(n)
	msg := "From: " + headerValue(m.from) + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + mime.QEncoding.Encode("utf-8", headerValue(subject)) + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/plain; charset=UTF-8\r\n\r\n" +
		body + "\r\n"

	var auth smtp.Auth
	if m.user != "" {
		auth = smtp.PlainAuth("", m.user, m.pass, m.host)
	}

	addr := fmt.Sprintf("%s:%d", m.host, m.port)
	if err := m.send(ctx, addr, auth, m.from, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send review notice: %w", err)
	}
	return nil
}

// dialAndSend is smtp.SendMail with a deadline on the dial and on every
// read and write after it.
func (m *SMTPNotifier) dialAndSend(ctx context.Context, addr string, a smtp.Auth, from string, to []string, msg []byte) error {
	ctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("dial smtp: %w", err)
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := smtp.NewClient(conn, m.host)
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("smtp greeting: %w", err)
	}
	defer c.Close()

	if ok, _ := c.Extension("STARTTLS"); ok {
		if err := c.StartTLS(&tls.Config{ServerName: m.host}); err != nil {
			return fmt.Errorf("smtp starttls: %w", err)
		}
	}
	if a != nil {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(a); err != nil {
				return fmt.Errorf("smtp auth: %w", err)
			}
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp mail from: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp rcpt: %w", err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		_ = w.Close()
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp data close: %w", err)
	}
	return c.Quit()
}

// headerValue folds CR and LF out of a header so stored text cannot add headers.
func headerValue(v string) string {
	return strings.Join(strings.FieldsFunc(v, func(r rune) bool { return r == '\r' || r == '\n' }), " ")
}

func renderReview(n ReviewNotice) (subject, body string) {
	name := strings.TrimSpace(n.LearnerName)
	if name == "" {
		name = "there"
	}
	switch n.Outcome {
	case OutcomeRejected:
		subject = fmt.Sprintf("Quiz submission rejected: %s", n.QuizTitle)
		body = fmt.Sprintf("Hi %s,\n\nYour submission for %q was rejected.\nReason: %s\n\n"+
			"Your course progress has been reset. Please complete the course again before retaking the quiz.",
			name, n.QuizTitle, n.Reason)
	default:
		subject = fmt.Sprintf("Quiz submission approved: %s", n.QuizTitle)
		body = fmt.Sprintf("Hi %s,\n\nYour submission for %q was approved with a score of %.2f.",
			name, n.QuizTitle, n.Score)
	}
	return subject, body
}
