package recipient

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/rs/zerolog"

	"github.com/example/community-broadcast/internal/notification"
)

type memoryStore struct {
	rows  []Row
	err   error
	calls int
}

func (m *memoryStore) ListRecipients(_ context.Context, f Filter) ([]Row, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	var out []Row
	for _, r := range m.rows {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	return out, nil
}

func newAggregator(primary, legacy Store) *Aggregator {
	return NewAggregator(primary, legacy, "+256", zerolog.Nop())
}

var everyone = Filter{Audience: notification.AudienceAll}

func TestAggregatorDedupPrefersPrimary(t *testing.T) {
	primary := &memoryStore{rows: []Row{{ID: "1", Email: "a@x.com"}}}
	legacy := &memoryStore{rows: []Row{{ID: "9", Email: "A@X.com ", Phone: "0700000001"}}}

	got, err := newAggregator(primary, legacy).ListUniqueContactableRecipients(context.Background(), everyone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 recipient, got %d: %+v", len(got), got)
	}
	if got[0].Source != SourcePrimary || got[0].ID != "1" {
		t.Fatalf("expected primary recipient, got %+v", got[0])
	}
}

func TestAggregatorPrimaryWinsWholesale(t *testing.T) {
	primary := &memoryStore{rows: []Row{{ID: "1", Email: "bob@x.com", Phone: ""}}}
	legacy := &memoryStore{rows: []Row{{ID: "9", Email: "bob@x.com", Phone: "0703111222"}}}

	got, err := newAggregator(primary, legacy).ListUniqueContactableRecipients(context.Background(), everyone)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 recipient, got %d", len(got))
	}
	if got[0].Source != SourcePrimary || got[0].Phone != "" {
		t.Fatalf("legacy phone must not be merged in: %+v", got[0])
	}
}

func TestAggregatorExcludesContactless(t *testing.T) {
	primary := &memoryStore{rows: []Row{
		{ID: "1", Email: "  ", Phone: "n/a"},
		{ID: "2", Phone: "0703111222"},
	}}
	legacy := &memoryStore{rows: []Row{{ID: "9", FirstName: "No", LastName: "Contact"}}}

	got, _ := newAggregator(primary, legacy).ListUniqueContactableRecipients(context.Background(), everyone)
	if len(got) != 1 || got[0].ID != "2" {
		t.Fatalf("expected only recipient 2, got %+v", got)
	}
	if got[0].Phone != "+256703111222" {
		t.Fatalf("phone should be normalized, got %s", got[0].Phone)
	}
}

func TestAggregatorKeepsLegacyOnlyContacts(t *testing.T) {
	primary := &memoryStore{rows: []Row{{ID: "1", Email: "a@x.com"}}}
	legacy := &memoryStore{rows: []Row{
		{ID: "7", Email: "c@x.com", Name: "Fatuma"},
		{ID: "8", Phone: "0772000000"},
		{ID: "9", Email: "C@x.com"},
	}}

	got, _ := newAggregator(primary, legacy).ListUniqueContactableRecipients(context.Background(), everyone)
	if len(got) != 4 {
		t.Fatalf("expected 4 recipients, got %d: %+v", len(got), got)
	}
	if got[1].Source != SourceLegacy || got[1].DisplayName != "Fatuma" {
		t.Fatalf("unexpected legacy recipient: %+v", got[1])
	}
	if got[2].ID != "8" {
		t.Fatalf("phone-only legacy contact should be kept, got %+v", got[2])
	}
	if got[3].ID != "9" || got[3].Email != "c@x.com" {
		t.Fatalf("legacy rows are only deduped against primary emails, got %+v", got[3])
	}
}

func TestAggregatorIsIdempotent(t *testing.T) {
	primary := &memoryStore{rows: []Row{{ID: "1", Email: "a@x.com"}, {ID: "2", Phone: "0700000002"}}}
	legacy := &memoryStore{rows: []Row{{ID: "9", Email: "a@x.com"}, {ID: "10", Email: "z@x.com"}}}
	agg := newAggregator(primary, legacy)

	first, _ := agg.ListUniqueContactableRecipients(context.Background(), everyone)
	second, _ := agg.ListUniqueContactableRecipients(context.Background(), everyone)
	if fmt.Sprint(first) != fmt.Sprint(second) {
		t.Fatalf("aggregation not stable:\n%v\n%v", first, second)
	}
}

func TestAggregatorDegradesWithoutLegacy(t *testing.T) {
	primary := &memoryStore{rows: []Row{{ID: "1", Email: "a@x.com"}}}

	tests := []struct {
		name   string
		legacy Store
	}{
		{name: "absent", legacy: nil},
		{name: "unreachable", legacy: &memoryStore{err: ErrStoreUnavailable}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := newAggregator(primary, tc.legacy).ListUniqueContactableRecipients(context.Background(), everyone)
			if err != nil {
				t.Fatalf("legacy failure must not fail aggregation: %v", err)
			}
			if len(got) != 1 {
				t.Fatalf("expected primary results only, got %+v", got)
			}
		})
	}
}

func TestAggregatorPrimaryFailure(t *testing.T) {
	primary := &memoryStore{err: errors.New("connection refused")}
	legacy := &memoryStore{rows: []Row{{ID: "9", Email: "a@x.com"}}}

	if _, err := newAggregator(primary, legacy).ListUniqueContactableRecipients(context.Background(), everyone); err == nil {
		t.Fatalf("expected error when primary store fails")
	}
	if legacy.calls != 0 {
		t.Fatalf("legacy store should not be queried after primary failure")
	}
}

func TestAggregatorAppliesAudience(t *testing.T) {
	primary := &memoryStore{rows: []Row{
		{ID: "1", Email: "a@x.com", Gender: "Male"},
		{ID: "2", Email: "b@x.com", Gender: "female"},
	}}
	legacy := &memoryStore{rows: []Row{{ID: "9", Email: "c@x.com", Gender: "M"}}}

	got, _ := newAggregator(primary, legacy).ListUniqueContactableRecipients(context.Background(), Filter{Audience: notification.AudienceMale})
	if len(got) != 2 || got[0].ID != "1" || got[1].ID != "9" {
		t.Fatalf("unexpected male audience: %+v", got)
	}
}
