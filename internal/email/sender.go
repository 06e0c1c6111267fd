package email

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/example/community-broadcast/internal/contact"
	"github.com/example/community-broadcast/internal/delivery"
)

var ErrNoProviders = errors.New("no email provider configured")

// Sender delivers one email synchronously. Providers are tried in order and
// each gets a single attempt; the first acceptance wins.
type Sender struct {
	From      string
	Providers []Provider
	Logger    zerolog.Logger
}

func (s *Sender) Send(ctx context.Context, address, subject, body string) delivery.Result {
	to := contact.NormalizeEmail(address)
	if to == "" {
		return delivery.Skipped(delivery.ChannelEmail)
	}
	if len(s.Providers) == 0 {
		return delivery.Failed(delivery.ChannelEmail, ErrNoProviders.Error())
	}

	msg := Message{From: s.From, To: to, Subject: subject, Body: body}
	var failures []string
	for _, provider := range s.Providers {
		id, err := provider.Send(ctx, msg)
		if err != nil {
			s.Logger.Warn().Err(err).Str("provider", provider.Name()).Msg("provider send failed")
			failures = append(failures, provider.Name()+": "+err.Error())
			continue
		}
		return delivery.Sent(delivery.ChannelEmail, id)
	}
	return delivery.Failed(delivery.ChannelEmail, strings.Join(failures, "; "))
}
