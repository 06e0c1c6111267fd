package recipient

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/example/community-broadcast/internal/contact"
	"github.com/example/community-broadcast/internal/notification"
)

type Source string

const (
	SourcePrimary Source = "PRIMARY"
	SourceLegacy  Source = "LEGACY"
)

// ErrStoreUnavailable marks a recipient store that cannot be queried, such
// as a legacy table that was never created.
var ErrStoreUnavailable = errors.New("recipient store unavailable")

// Recipient is a contactable person resolved for one broadcast. Email and
// Phone hold normalized values; either may be empty but not both.
type Recipient struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Source      Source `json:"source"`
}

func (r Recipient) Contactable() bool {
	return r.Email != "" || r.Phone != ""
}

// Row is the raw shape both stores return.
type Row struct {
	ID        string
	Email     string
	Phone     string
	FirstName string
	LastName  string
	Name      string
	Gender    string
	CreatedAt time.Time
}

type Store interface {
	ListRecipients(ctx context.Context, f Filter) ([]Row, error)
}

// Filter selects the audience of a broadcast. Emails is only consulted for
// notification.AudienceSpecific.
type Filter struct {
	Audience notification.Audience `json:"audience"`
	Emails   []string              `json:"emails,omitempty"`
}

// Matches reports whether a store row belongs to the audience.
func (f Filter) Matches(row Row) bool {
	switch f.Audience {
	case notification.AudienceMale, notification.AudienceFemale:
		g := normalizeGender(row.Gender)
		return g != "" && g == string(f.Audience)
	case notification.AudienceSpecific:
		email := contact.NormalizeEmail(row.Email)
		if email == "" {
			return false
		}
		for _, e := range f.Emails {
			if contact.NormalizeEmail(e) == email {
				return true
			}
		}
		return false
	default:
		return true
	}
}

// genderValues lists the stored spellings that select a gendered audience.
// Nil means no gender restriction.
func (f Filter) genderValues() []string {
	switch f.Audience {
	case notification.AudienceMale:
		return []string{"male", "m"}
	case notification.AudienceFemale:
		return []string{"female", "f"}
	default:
		return nil
	}
}

func normalizeGender(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "male", "m":
		return string(notification.AudienceMale)
	case "female", "f":
		return string(notification.AudienceFemale)
	default:
		return ""
	}
}

func displayName(row Row) string {
	full := strings.TrimSpace(strings.TrimSpace(row.FirstName) + " " + strings.TrimSpace(row.LastName))
	if full != "" {
		return full
	}
	return strings.TrimSpace(row.Name)
}

func toRecipient(row Row, source Source, countryPrefix string) Recipient {
	return Recipient{
		ID:          row.ID,
		Email:       contact.NormalizeEmail(row.Email),
		Phone:       contact.NormalizePhone(row.Phone, countryPrefix),
		DisplayName: displayName(row),
		Source:      source,
	}
}
