package mail

import (
	"context"
	"strings"
	"testing"

	"github.com/unimerch/api/internal/platform/config"
)

func newTestSender(t *testing.T) *SMTPSender {
	t.Helper()
	sender, err := NewSMTPSender(config.SMTPConfig{
		Host:        "smtp.example.com",
		Port:        587,
		FromAddress: "noreply@unimerch.example",
	})
	if err != nil {
		t.Fatalf("new smtp sender: %v", err)
	}
	return sender
}

func TestNewSMTPSenderValidation(t *testing.T) {
	if _, err := NewSMTPSender(config.SMTPConfig{FromAddress: "noreply@unimerch.example"}); err == nil {
		t.Fatal("expected error for missing host")
	}
	if _, err := NewSMTPSender(config.SMTPConfig{Host: "smtp.example.com"}); err == nil {
		t.Fatal("expected error for missing from address")
	}
}

func TestBuildSanitisesHTMLBody(t *testing.T) {
	sender := newTestSender(t)

	msg, err := sender.build(Message{
		To:      []string{"buyer@example.com"},
		Subject: "Order ready for pickup",
		HTML:    `<p>Your order is ready.</p><script>alert("x")</script>`,
	})
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	body, err := msg.GetParts()[0].GetContent()
	if err != nil {
		t.Fatalf("get content: %v", err)
	}
	if strings.Contains(string(body), "<script>") {
		t.Fatalf("expected script tag stripped, got %s", body)
	}
	if !strings.Contains(string(body), "Your order is ready.") {
		t.Fatalf("expected body text preserved, got %s", body)
	}
}

func TestBuildRejectsIncompleteMessages(t *testing.T) {
	sender := newTestSender(t)

	cases := []struct {
		name string
		msg  Message
	}{
		{"no recipients", Message{Subject: "s", Text: "body"}},
		{"no subject", Message{To: []string{"a@example.com"}, Text: "body"}},
		{"no body", Message{To: []string{"a@example.com"}, Subject: "s"}},
	}
	for _, tc := range cases {
		if _, err := sender.build(tc.msg); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestNopSenderDropsMessages(t *testing.T) {
	if err := (NopSender{}).Send(context.Background(), Message{}); err != nil {
		t.Fatalf("nop sender: %v", err)
	}
}
