package slack

import (
	"strings"
	"testing"
	"time"

	"github.com/opertusmundi/normalize/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{}); err == nil {
		t.Fatal("expected error when webhook url missing")
	}
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#alerts",
		Username:   "bot",
		Timeout:    time.Second,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.TicketFailurePayload{
		Ticket:       "tok-123",
		ResourceType: "csv",
		SourceFile:   "input.csv",
		Error:        "boom",
		ErrorClass:   "test_error",
	})

	if msg["username"] != "bot" {
		t.Fatalf("expected username to be preserved, got %v", msg["username"])
	}
	if msg["channel"] != "#alerts" {
		t.Fatalf("expected channel to be set, got %v", msg["channel"])
	}

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}
	if !containsAll(
		text,
		[]string{"Normalization failure", "tok-123", "csv", "input.csv", "boom", "test_error"},
	) {
		t.Fatalf("message text missing fields: %s", text)
	}
}

func TestFormatMessageStatusLink(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL:      "https://hooks.slack.com/services/test",
		StatusURLPrefix: "https://normalize.local/status",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	msg := client.formatMessage(notify.TicketFailurePayload{
		Ticket: "tok-123",
	})

	text, ok := msg["text"].(string)
	if !ok {
		t.Fatalf("expected text field")
	}

	expected := "<https://normalize.local/status/tok-123|tok-123>"
	if !strings.Contains(text, expected) {
		t.Fatalf("expected status link %q in text: %s", expected, text)
	}
}

func TestFormatTicketValuePermutations(t *testing.T) {
	tcs := []struct {
		name   string
		ticket string
		prefix string
		want   string
	}{
		{
			name:   "ticket with link",
			ticket: "tok-1",
			prefix: "https://normalize.local/status",
			want:   "<https://normalize.local/status/tok-1|tok-1>",
		},
		{
			name:   "ticket without link",
			ticket: "tok-2",
			prefix: "not a url",
			want:   "tok-2",
		},
		{
			name:   "escapes markup",
			ticket: "tok<3>",
			want:   "tok&lt;3&gt;",
		},
		{
			name:   "empty input",
			prefix: "https://normalize.local/status",
			want:   "",
		},
	}

	for _, tc := range tcs {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(Config{
				WebhookURL:      "https://hooks.slack.com/services/test",
				StatusURLPrefix: tc.prefix,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			got := client.formatTicketValue(tc.ticket)
			if got != tc.want {
				t.Fatalf("formatTicketValue(%q) = %q, want %q", tc.ticket, got, tc.want)
			}
		})
	}
}

func containsAll(text string, substrs []string) bool {
	for _, s := range substrs {
		if !strings.Contains(text, s) {
			return false
		}
	}
	return true
}
