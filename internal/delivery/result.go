// Package delivery holds the per-recipient, per-channel outcome returned by
// every channel sender. Senders never return errors across the recipient
// loop; failures are carried in Result.Detail instead.
package delivery

type Channel string

const (
	ChannelMessaging Channel = "messaging"
	ChannelEmail     Channel = "email"
)

type Status string

const (
	StatusSent             Status = "sent"
	StatusSkippedNoChannel Status = "skipped-no-channel"
	StatusFailed           Status = "failed"
)

// Result is the outcome of one send attempt. It is returned to the caller as
// part of a broadcast summary and is never persisted.
type Result struct {
	RecipientID       string  `json:"recipient_id"`
	Channel           Channel `json:"channel"`
	Status            Status  `json:"status"`
	Detail            string  `json:"detail,omitempty"`
	ProviderMessageID string  `json:"provider_message_id,omitempty"`
	// FallbackURL is set on failed messaging sends so an operator can deliver
	// the message by hand.
	FallbackURL string `json:"fallback_url,omitempty"`
}

// Attempted reports whether the send reached the point of calling a gateway.
func (r Result) Attempted() bool {
	return r.Status == StatusSent || r.Status == StatusFailed
}

func Sent(channel Channel, providerMessageID string) Result {
	return Result{Channel: channel, Status: StatusSent, ProviderMessageID: providerMessageID}
}

func Skipped(channel Channel) Result {
	return Result{Channel: channel, Status: StatusSkippedNoChannel, Detail: "recipient has no " + string(channel) + " contact"}
}

func Failed(channel Channel, detail string) Result {
	return Result{Channel: channel, Status: StatusFailed, Detail: detail}
}
