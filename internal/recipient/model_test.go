package recipient

import (
	"strings"
	"testing"

	"github.com/example/community-broadcast/internal/notification"
)

func TestFilterMatches(t *testing.T) {
	tests := []struct {
		name   string
		filter Filter
		row    Row
		want   bool
	}{
		{name: "all", filter: Filter{Audience: notification.AudienceAll}, row: Row{}, want: true},
		{name: "male long form", filter: Filter{Audience: notification.AudienceMale}, row: Row{Gender: " MALE"}, want: true},
		{name: "female short form", filter: Filter{Audience: notification.AudienceFemale}, row: Row{Gender: "f"}, want: true},
		{name: "gender unknown", filter: Filter{Audience: notification.AudienceFemale}, row: Row{Gender: ""}, want: false},
		{name: "specific hit", filter: Filter{Audience: notification.AudienceSpecific, Emails: []string{"A@x.com"}}, row: Row{Email: "a@X.com "}, want: true},
		{name: "specific miss", filter: Filter{Audience: notification.AudienceSpecific, Emails: []string{"a@x.com"}}, row: Row{Email: "b@x.com"}, want: false},
		{name: "specific without email", filter: Filter{Audience: notification.AudienceSpecific, Emails: []string{""}}, row: Row{Phone: "0700"}, want: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.filter.Matches(tc.row); got != tc.want {
				t.Fatalf("Matches=%v, expected %v", got, tc.want)
			}
		})
	}
}

func TestDisplayName(t *testing.T) {
	cases := map[string]Row{
		"Amina Nakato": {FirstName: "Amina", LastName: " Nakato"},
		"Amina":        {FirstName: "Amina", Name: "ignored"},
		"Single Field": {Name: " Single Field "},
		"":             {},
	}

	for expected, row := range cases {
		if got := displayName(row); got != expected {
			t.Fatalf("displayName(%+v)=%q, expected %q", row, got, expected)
		}
	}
}

func TestSelectExprsSkipsMissingColumns(t *testing.T) {
	exprs := selectExprs(map[string]bool{"id": true, "email": true, "created_at": true})
	if len(exprs) != 3 {
		t.Fatalf("expected 3 expressions, got %v", exprs)
	}
	joined := strings.Join(exprs, ", ")
	if strings.Contains(joined, "phone") {
		t.Fatalf("missing phone column must not be selected: %s", joined)
	}
	if exprs[2] != "created_at" {
		t.Fatalf("created_at should be selected raw, got %s", exprs[2])
	}
}

func TestTableIdentifier(t *testing.T) {
	tests := []struct {
		table, want string
	}{
		{"users", `"users"`},
		{"public.users", `"public"."users"`},
		{`odd"name`, `"odd""name"`},
	}
	for _, tc := range tests {
		if got := tableIdentifier(tc.table); got != tc.want {
			t.Fatalf("tableIdentifier(%q)=%s, expected %s", tc.table, got, tc.want)
		}
	}
}
