package messaging

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/community-broadcast/internal/delivery"
)

type fakeGateway struct {
	calls []string
	err   error
}

func (f *fakeGateway) Name() string { return "fake" }

func (f *fakeGateway) SendMessage(_ context.Context, phone, _ string) (string, error) {
	f.calls = append(f.calls, phone)
	if f.err != nil {
		return "", f.err
	}
	return "msg-1", nil
}

func TestSenderSkipsWithoutPhone(t *testing.T) {
	gw := &fakeGateway{}
	s := NewSender(gw, "+256", zerolog.Nop())

	res := s.Send(context.Background(), "n/a", "hello")
	if res.Status != delivery.StatusSkippedNoChannel {
		t.Fatalf("status=%s, expected %s", res.Status, delivery.StatusSkippedNoChannel)
	}
	if len(gw.calls) != 0 {
		t.Fatalf("gateway must not be called, got %d calls", len(gw.calls))
	}
}

func TestSenderNormalizesPhone(t *testing.T) {
	gw := &fakeGateway{}
	s := NewSender(gw, "+256", zerolog.Nop())

	res := s.Send(context.Background(), "0703268522", "hello")
	if res.Status != delivery.StatusSent {
		t.Fatalf("status=%s, expected sent", res.Status)
	}
	if res.ProviderMessageID != "msg-1" {
		t.Fatalf("unexpected provider id %q", res.ProviderMessageID)
	}
	if len(gw.calls) != 1 || gw.calls[0] != "+256703268522" {
		t.Fatalf("unexpected gateway calls: %v", gw.calls)
	}
}

func TestSenderFailureCarriesFallbackLink(t *testing.T) {
	gw := &fakeGateway{err: errors.New("recipient not in sandbox")}
	s := NewSender(gw, "+256", zerolog.Nop())

	res := s.Send(context.Background(), "+256703268522", "Eid prayers at 8am")
	if res.Status != delivery.StatusFailed {
		t.Fatalf("status=%s, expected failed", res.Status)
	}
	want := "https://wa.me/256703268522?text=Eid%20prayers%20at%208am"
	if res.FallbackURL != want {
		t.Fatalf("FallbackURL=%s, expected %s", res.FallbackURL, want)
	}
	if !strings.Contains(res.Detail, "recipient not in sandbox") || !strings.Contains(res.Detail, want) {
		t.Fatalf("detail should carry gateway error and link: %s", res.Detail)
	}
	if len(gw.calls) != 1 {
		t.Fatalf("expected a single attempt, got %d", len(gw.calls))
	}
}

func TestFallbackLinkEscapesText(t *testing.T) {
	got := FallbackLink(DefaultFallbackBase, "+15550001111", "a&b=c?")
	want := "https://wa.me/15550001111?text=a%26b%3Dc%3F"
	if got != want {
		t.Fatalf("FallbackLink=%s, expected %s", got, want)
	}
}
