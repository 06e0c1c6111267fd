// Package messaging delivers broadcast text through a messaging gateway.
// A failed send carries a deep link that lets an operator open the
// conversation by hand, which is the documented path when the gateway is
// down or the recipient never joined the gateway's allow-list.
package messaging

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/example/community-broadcast/internal/contact"
	"github.com/example/community-broadcast/internal/delivery"
)

const DefaultFallbackBase = "https://wa.me/"

type Sender struct {
	gateway       Gateway
	countryPrefix string
	fallbackBase  string
	logger        zerolog.Logger
}

func NewSender(gateway Gateway, countryPrefix string, logger zerolog.Logger) *Sender {
	return &Sender{
		gateway:       gateway,
		countryPrefix: countryPrefix,
		fallbackBase:  DefaultFallbackBase,
		logger:        logger,
	}
}

// Send makes exactly one gateway call. It never retries.
func (s *Sender) Send(ctx context.Context, phone, message string) delivery.Result {
	normalized := contact.NormalizePhone(phone, s.countryPrefix)
	if normalized == "" {
		return delivery.Skipped(delivery.ChannelMessaging)
	}

	id, err := s.gateway.SendMessage(ctx, normalized, message)
	if err != nil {
		s.logger.Warn().Err(err).Str("gateway", s.gateway.Name()).Bool("permanent", isPermanent(err)).Msg("messaging send failed")
		return FallbackResult(s.fallbackBase, normalized, message, err)
	}
	return delivery.Sent(delivery.ChannelMessaging, id)
}

// FallbackResult is the failed result for a message that did not go out,
// carrying the link to send it by hand.
func FallbackResult(base, phone, message string, cause error) delivery.Result {
	link := FallbackLink(base, phone, message)
	res := delivery.Failed(delivery.ChannelMessaging, cause.Error()+"; send manually: "+link)
	res.FallbackURL = link
	return res
}

// FallbackLink builds a click-to-chat URI carrying the phone digits and the
// pre-filled message.
func FallbackLink(base, phone, message string) string {
	digits := strings.TrimPrefix(phone, "+")
	text := strings.ReplaceAll(url.QueryEscape(message), "+", "%20")
	return base + digits + "?text=" + text
}

func isPermanent(err error) bool {
	var perm *backoff.PermanentError
	return errors.As(err, &perm)
}
