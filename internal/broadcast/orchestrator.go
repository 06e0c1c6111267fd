// Package broadcast fans a notification out to every contactable recipient
// over the messaging and email channels and records which channels were
// attempted.
package broadcast

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/example/community-broadcast/internal/common"
	"github.com/example/community-broadcast/internal/delivery"
	"github.com/example/community-broadcast/internal/messaging"
	"github.com/example/community-broadcast/internal/notification"
	"github.com/example/community-broadcast/internal/recipient"
)

// ErrInProgress is returned when a broadcast for the same notification is
// already running.
var ErrInProgress = errors.New("broadcast already in progress")

type RecipientSource interface {
	ListUniqueContactableRecipients(ctx context.Context, f recipient.Filter) ([]recipient.Recipient, error)
}

type MessagingSender interface {
	Send(ctx context.Context, phone, message string) delivery.Result
}

type EmailSender interface {
	Send(ctx context.Context, address, subject, body string) delivery.Result
}

type SentMarker interface {
	MarkSent(ctx context.Context, id string, viaMessaging, viaEmail bool) error
}

type Options struct {
	Workers           int
	MessagingInterval time.Duration
	Timeout           time.Duration
}

type Request struct {
	NotificationID string
	Subject        string
	Body           string
	Filter         recipient.Filter
}

type Summary struct {
	NotificationID   string            `json:"notification_id"`
	MessagingSent    int               `json:"messaging_sent"`
	MessagingFailed  int               `json:"messaging_failed"`
	MessagingSkipped int               `json:"messaging_skipped"`
	EmailSent        int               `json:"email_sent"`
	EmailFailed      int               `json:"email_failed"`
	EmailSkipped     int               `json:"email_skipped"`
	TotalRecipients  int               `json:"total_recipients"`
	Unprocessed      int               `json:"unprocessed"`
	Results          []delivery.Result `json:"results"`
	StartedAt        time.Time         `json:"started_at"`
	CompletedAt      time.Time         `json:"completed_at"`
}

func (s Summary) MessagingAttempted() bool {
	return s.MessagingSent+s.MessagingFailed > 0
}

func (s Summary) EmailAttempted() bool {
	return s.EmailSent+s.EmailFailed > 0
}

type Orchestrator struct {
	Recipients RecipientSource
	Messaging  MessagingSender
	Email      EmailSender
	Store      SentMarker
	Guard      Guard
	Publisher  Publisher
	Logger     zerolog.Logger

	opts    Options
	limiter *rate.Limiter
	tracer  trace.Tracer
}

func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	o := &Orchestrator{
		Guard:  NewMemoryGuard(),
		Logger: zerolog.Nop(),
		opts:   opts,
		tracer: otel.Tracer("broadcast"),
	}
	if opts.MessagingInterval > 0 {
		// one limiter per process so parallel broadcasts share the gateway budget
		o.limiter = rate.NewLimiter(rate.Every(opts.MessagingInterval), 1)
	}
	return o
}

// Broadcast delivers the notification to every unique contactable recipient.
// Per-recipient failures end up in the summary; only a failure to resolve
// recipients or a concurrent run for the same notification is returned as an
// error.
func (o *Orchestrator) Broadcast(ctx context.Context, req Request) (Summary, error) {
	logger := common.WithContext(ctx, o.Logger).With().Str("notification_id", req.NotificationID).Logger()

	acquired, err := o.Guard.Acquire(ctx, req.NotificationID)
	switch {
	case err != nil:
		// the guard backend being down must not block broadcasts
		logger.Warn().Err(err).Msg("broadcast guard unavailable, continuing without it")
	case !acquired:
		broadcastsTotal.WithLabelValues("rejected").Inc()
		return Summary{}, ErrInProgress
	default:
		defer func() {
			if err := o.Guard.Release(context.WithoutCancel(ctx), req.NotificationID); err != nil {
				logger.Warn().Err(err).Msg("failed to release broadcast guard")
			}
		}()
	}

	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	ctx, span := o.tracer.Start(ctx, "broadcast")
	defer span.End()
	span.SetAttributes(
		attribute.String("notification.id", req.NotificationID),
		attribute.String("audience", string(req.Filter.Audience)),
	)

	summary := Summary{NotificationID: req.NotificationID, StartedAt: time.Now().UTC()}

	recipients, err := o.Recipients.ListUniqueContactableRecipients(ctx, req.Filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "recipient lookup failed")
		broadcastsTotal.WithLabelValues("error").Inc()
		return Summary{}, fmt.Errorf("list recipients: %w", err)
	}
	span.SetAttributes(attribute.Int("recipients", len(recipients)))

	perRecipient, started := o.fanOut(ctx, recipients, composeText(req.Subject, req.Body), req.Subject, req.Body)
	for i, results := range perRecipient {
		if !started[i] {
			summary.Unprocessed++
			continue
		}
		if len(results) == 0 {
			continue
		}
		summary.TotalRecipients++
		for _, r := range results {
			summary.tally(r)
			deliveriesTotal.WithLabelValues(string(r.Channel), string(r.Status)).Inc()
		}
		summary.Results = append(summary.Results, results...)
	}
	summary.CompletedAt = time.Now().UTC()

	// The outcome is recorded even when the deadline cut the run short.
	markCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := o.Store.MarkSent(markCtx, req.NotificationID, summary.MessagingAttempted(), summary.EmailAttempted()); err != nil {
		if errors.Is(err, notification.ErrNotFound) {
			logger.Warn().Msg("notification removed during broadcast, sent flags not recorded")
		} else {
			span.RecordError(err)
			logger.Error().Err(err).Msg("failed to record sent flags")
		}
	}

	if o.Publisher != nil {
		if err := o.Publisher.Publish(markCtx, summary); err != nil {
			logger.Warn().Err(err).Msg("failed to publish broadcast completion")
		}
	}

	broadcastDuration.Observe(summary.CompletedAt.Sub(summary.StartedAt).Seconds())
	broadcastsTotal.WithLabelValues("completed").Inc()

	event := logger.Info()
	if summary.MessagingFailed+summary.EmailFailed > 0 || summary.Unprocessed > 0 {
		event = logger.Warn()
	}
	event.
		Int("recipients", summary.TotalRecipients).
		Int("messaging_sent", summary.MessagingSent).
		Int("messaging_failed", summary.MessagingFailed).
		Int("email_sent", summary.EmailSent).
		Int("email_failed", summary.EmailFailed).
		Int("unprocessed", summary.Unprocessed).
		Dur("duration", summary.CompletedAt.Sub(summary.StartedAt)).
		Msg("broadcast finished")

	return summary, nil
}

// fanOut runs recipients through a bounded worker pool. Results keep the
// recipient order. Once ctx is done no further recipient is started.
func (o *Orchestrator) fanOut(ctx context.Context, recipients []recipient.Recipient, text, subject, body string) ([][]delivery.Result, []bool) {
	results := make([][]delivery.Result, len(recipients))
	started := make([]bool, len(recipients))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < o.opts.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if ctx.Err() != nil {
					continue
				}
				started[i] = true
				results[i] = o.deliver(ctx, recipients[i], text, subject, body)
			}
		}()
	}

feed:
	for i := range recipients {
		if ctx.Err() != nil {
			break
		}
		select {
		case <-ctx.Done():
			break feed
		case jobs <- i:
		}
	}
	close(jobs)
	wg.Wait()
	return results, started
}

func (o *Orchestrator) deliver(ctx context.Context, r recipient.Recipient, text, subject, body string) []delivery.Result {
	ctx, span := o.tracer.Start(ctx, "broadcast.recipient")
	defer span.End()
	span.SetAttributes(
		attribute.String("recipient.id", r.ID),
		attribute.String("recipient.source", string(r.Source)),
	)

	var out []delivery.Result
	if r.Phone != "" {
		res := o.sendMessaging(ctx, r.Phone, text)
		res.RecipientID = r.ID
		out = append(out, res)
	}
	if r.Email != "" {
		res := guarded(delivery.ChannelEmail, func() delivery.Result {
			return o.Email.Send(ctx, r.Email, subject, body)
		})
		res.RecipientID = r.ID
		out = append(out, res)
	}
	for _, res := range out {
		if res.Status == delivery.StatusFailed {
			span.SetStatus(codes.Error, string(res.Channel)+" delivery failed")
		}
	}
	return out
}

func (o *Orchestrator) sendMessaging(ctx context.Context, phone, text string) delivery.Result {
	if o.limiter != nil {
		if err := o.limiter.Wait(ctx); err != nil {
			return messaging.FallbackResult(messaging.DefaultFallbackBase, phone, text, fmt.Errorf("rate limiter: %w", err))
		}
	}
	return guarded(delivery.ChannelMessaging, func() delivery.Result {
		return o.Messaging.Send(ctx, phone, text)
	})
}

// guarded turns a panicking sender into a failed result so one recipient
// cannot take the whole broadcast down.
func guarded(channel delivery.Channel, send func() delivery.Result) (res delivery.Result) {
	defer func() {
		if p := recover(); p != nil {
			res = delivery.Failed(channel, fmt.Sprintf("sender panic: %v", p))
		}
	}()
	res = send()
	res.Channel = channel
	return res
}

func (s *Summary) tally(r delivery.Result) {
	switch r.Channel {
	case delivery.ChannelMessaging:
		switch r.Status {
		case delivery.StatusSent:
			s.MessagingSent++
		case delivery.StatusFailed:
			s.MessagingFailed++
		case delivery.StatusSkippedNoChannel:
			s.MessagingSkipped++
		}
	case delivery.ChannelEmail:
		switch r.Status {
		case delivery.StatusSent:
			s.EmailSent++
		case delivery.StatusFailed:
			s.EmailFailed++
		case delivery.StatusSkippedNoChannel:
			s.EmailSkipped++
		}
	}
}

// composeText builds the single-string messaging payload.
func composeText(subject, body string) string {
	if subject == "" {
		return body
	}
	if body == "" {
		return subject
	}
	return subject + "\n\n" + body
}
