package alert

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"github.com/TBarmak/Chess-Twitter-Bot/internal/msgcat"
	"go.uber.org/zap"
)

var ErrAlert = errors.New("alert delivery failed")

// Report is a user-submitted #error mention.
type Report struct {
	ID     int64
	Author string
	Text   string
}

type Alerter interface {
	Alert(ctx context.Context, r Report) error
}

// LogAlerter only records reports in the log. Used when no mail relay is configured.
type LogAlerter struct {
	logger *zap.Logger
}

func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAlerter{logger: logger}
}

func (a *LogAlerter) Alert(_ context.Context, r Report) error {
	a.logger.Warn("error_reported",
		zap.Int64("mention_id", r.ID),
		zap.String("author", r.Author),
		zap.String("text", r.Text))
	return nil
}

type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	From     string
	To       []string
}

type sendFunc func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error

// SMTPAlerter mails reports to the operators. smtp.SendMail upgrades to STARTTLS
// when the relay offers it.
type SMTPAlerter struct {
	cfg     SMTPConfig
	catalog *msgcat.Catalog
	send    sendFunc
	timeout time.Duration
	now     func() time.Time
}

func NewSMTPAlerter(cfg SMTPConfig, catalog *msgcat.Catalog) (*SMTPAlerter, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host required")
	}
	if cfg.From == "" || len(cfg.To) == 0 {
		return nil, errors.New("alert sender and recipients required")
	}
	if cfg.Port <= 0 {
		cfg.Port = 587
	}
	if err := catalog.Require("alert.subject", "alert.body"); err != nil {
		return nil, err
	}
	return &SMTPAlerter{
		cfg:     cfg,
		catalog: catalog,
		send:    smtp.SendMail,
		timeout: 30 * time.Second,
		now:     time.Now,
	}, nil
}

func (a *SMTPAlerter) Alert(ctx context.Context, r Report) error {
	msg, err := a.compose(r)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAlert, err)
	}

	var auth smtp.Auth
	if a.cfg.User != "" {
		auth = smtp.PlainAuth("", a.cfg.User, a.cfg.Password, a.cfg.Host)
	}
	addr := net.JoinHostPort(a.cfg.Host, strconv.Itoa(a.cfg.Port))

	// net/smtp has no context support; the send keeps running after ctx ends.
	done := make(chan error, 1)
	go func() { done <- a.send(addr, auth, a.cfg.From, a.cfg.To, msg) }()

	timer := time.NewTimer(a.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %v", ErrAlert, err)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: smtp send timed out", ErrAlert)
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrAlert, ctx.Err())
	}
}

func (a *SMTPAlerter) compose(r Report) ([]byte, error) {
	subject, err := a.catalog.Render("alert.subject", nil)
	if err != nil {
		return nil, err
	}
	body, err := a.catalog.Render("alert.body", r)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("From: " + a.cfg.From + "\r\n")
	b.WriteString("To: " + strings.Join(a.cfg.To, ", ") + "\r\n")
	b.WriteString("Subject: " + subject + "\r\n")
	b.WriteString("Date: " + a.now().Format(time.RFC1123Z) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	b.WriteString("\r\n")
	return []byte(b.String()), nil
}
