package notification

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"
)

type Kind string

const (
	KindInfo                    Kind = "info"
	KindReminder                Kind = "reminder"
	KindAnnouncement            Kind = "announcement"
	KindRecurringRitualReminder Kind = "recurring-ritual-reminder"
	KindFastingReminder         Kind = "fasting-reminder"
)

type Audience string

const (
	AudienceAll      Audience = "all"
	AudienceMale     Audience = "male"
	AudienceFemale   Audience = "female"
	AudienceSpecific Audience = "specific"
)

var ErrNotFound = errors.New("notification not found")

type Notification struct {
	ID                      string     `json:"id"`
	Title                   string     `json:"title"`
	Body                    string     `json:"body"`
	Kind                    Kind       `json:"kind"`
	Audience                Audience   `json:"audience"`
	IsRead                  bool       `json:"is_read"`
	SentViaMessagingChannel bool       `json:"sent_via_messaging"`
	SentViaEmailChannel     bool       `json:"sent_via_email"`
	CreatedAt               time.Time  `json:"created_at"`
	SentAt                  *time.Time `json:"sent_at,omitempty"`
}

// Repository persists notifications. Every list it returns is ordered
// unread first, then newest first.
type Repository interface {
	Create(ctx context.Context, title, body string, kind Kind, audience Audience) (Notification, error)
	Get(ctx context.Context, id string) (Notification, error)
	List(ctx context.Context, kind *Kind) ([]Notification, error)
	MarkRead(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	// MarkSent records a completed broadcast attempt. Flags only ever move
	// from false to true. Returns ErrNotFound for an unknown id.
	MarkSent(ctx context.Context, id string, messagingSent, emailSent bool) error
}

// ParseKind coerces free-form input into a Kind, falling back to KindInfo.
func ParseKind(raw string) Kind {
	k, ok := lookupKind(raw)
	if !ok {
		return KindInfo
	}
	return k
}

// ParseKindFilter is ParseKind without the fallback, for list filters where
// an unknown value means "no filter".
func ParseKindFilter(raw string) (Kind, bool) {
	return lookupKind(raw)
}

func lookupKind(raw string) (Kind, bool) {
	switch k := Kind(canonical(raw)); k {
	case KindInfo, KindReminder, KindAnnouncement, KindRecurringRitualReminder, KindFastingReminder:
		return k, true
	default:
		return "", false
	}
}

// ParseAudience coerces free-form input into an Audience, falling back to
// AudienceAll.
func ParseAudience(raw string) Audience {
	switch a := Audience(canonical(raw)); a {
	case AudienceAll, AudienceMale, AudienceFemale, AudienceSpecific:
		return a
	default:
		return AudienceAll
	}
}

func canonical(raw string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(raw)), "_", "-")
}

// SortForDisplay orders notifications unread before read, then by
// CreatedAt descending.
func SortForDisplay(items []Notification) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].IsRead != items[j].IsRead {
			return !items[i].IsRead
		}
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}
