package alert

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/TBarmak/Chess-Twitter-Bot/internal/msgcat"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func newCatalog(t *testing.T) *msgcat.Catalog {
	t.Helper()
	c, err := msgcat.New("")
	if err != nil {
		t.Fatalf("msgcat.New: %v", err)
	}
	return c
}

func TestSMTPAlerterComposesReport(t *testing.T) {
	var (
		gotAddr string
		gotFrom string
		gotTo   []string
		gotMsg  string
		gotAuth smtp.Auth
	)
	a, err := NewSMTPAlerter(SMTPConfig{
		Host: "smtp.test", User: "bot", Password: "pw",
		From: "bot@example.com", To: []string{"ops@example.com"},
	}, newCatalog(t))
	if err != nil {
		t.Fatalf("NewSMTPAlerter: %v", err)
	}
	a.now = func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) }
	a.send = func(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotAuth, gotFrom, gotTo, gotMsg = addr, auth, from, to, string(msg)
		return nil
	}

	if err := a.Alert(context.Background(), Report{ID: 42, Author: "amy", Text: "@bot #error board looks wrong"}); err != nil {
		t.Fatalf("Alert: %v", err)
	}
	if gotAddr != "smtp.test:587" || gotAuth == nil {
		t.Fatalf("addr=%q auth=%v", gotAddr, gotAuth)
	}
	if gotFrom != "bot@example.com" || len(gotTo) != 1 || gotTo[0] != "ops@example.com" {
		t.Fatalf("from=%q to=%v", gotFrom, gotTo)
	}
	for _, want := range []string{
		"Subject: An Error Was Reported\r\n",
		"Mention ID: 42",
		"Username: amy",
		"Text: @bot #error board looks wrong",
	} {
		if !strings.Contains(gotMsg, want) {
			t.Fatalf("message missing %q:\n%s", want, gotMsg)
		}
	}
}

func TestSMTPAlerterWrapsSendFailure(t *testing.T) {
	a, err := NewSMTPAlerter(SMTPConfig{Host: "smtp.test", From: "a@b", To: []string{"c@d"}}, newCatalog(t))
	if err != nil {
		t.Fatalf("NewSMTPAlerter: %v", err)
	}
	a.send = func(string, smtp.Auth, string, []string, []byte) error { return errors.New("relay refused") }
	if err := a.Alert(context.Background(), Report{ID: 1}); !errors.Is(err, ErrAlert) {
		t.Fatalf("expected ErrAlert, got %v", err)
	}
}

func TestSMTPAlerterHonoursContext(t *testing.T) {
	a, err := NewSMTPAlerter(SMTPConfig{Host: "smtp.test", From: "a@b", To: []string{"c@d"}}, newCatalog(t))
	if err != nil {
		t.Fatalf("NewSMTPAlerter: %v", err)
	}
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	a.send = func(string, smtp.Auth, string, []string, []byte) error {
		<-block
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := a.Alert(ctx, Report{ID: 1}); !errors.Is(err, ErrAlert) {
		t.Fatalf("expected ErrAlert, got %v", err)
	}
}

func TestNewSMTPAlerterValidates(t *testing.T) {
	c := newCatalog(t)
	if _, err := NewSMTPAlerter(SMTPConfig{From: "a@b", To: []string{"c@d"}}, c); err == nil {
		t.Fatal("expected error without host")
	}
	if _, err := NewSMTPAlerter(SMTPConfig{Host: "h"}, c); err == nil {
		t.Fatal("expected error without sender and recipients")
	}
}

func TestLogAlerterLogsReport(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	a := NewLogAlerter(zap.New(core))
	if err := a.Alert(context.Background(), Report{ID: 7, Author: "bob", Text: "#error"}); err != nil {
		t.Fatalf("Alert: %v", err)
	}
	entries := logs.FilterMessage("error_reported").All()
	if len(entries) != 1 {
		t.Fatalf("expected one log entry, got %d", len(entries))
	}
	if got := entries[0].ContextMap()["author"]; got != "bob" {
		t.Fatalf("author field = %v", got)
	}
}
