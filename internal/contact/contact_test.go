package contact

import "testing"

func TestNormalizeEmail(t *testing.T) {
	cases := map[string]string{
		"a@x.com":           "a@x.com",
		"A@X.com ":          "a@x.com",
		"  Bob@Example.ORG": "bob@example.org",
		"":                  "",
		"   ":               "",
	}

	for input, expected := range cases {
		if got := NormalizeEmail(input); got != expected {
			t.Fatalf("NormalizeEmail(%q)=%q, expected %q", input, got, expected)
		}
	}
}

func TestNormalizePhone(t *testing.T) {
	tests := []struct {
		name   string
		raw    string
		prefix string
		want   string
	}{
		{name: "local with trunk zero", raw: "0703268522", prefix: "+256", want: "+256703268522"},
		{name: "not a phone", raw: "not-a-phone", prefix: "+256", want: ""},
		{name: "already international", raw: "+256 703-268-522", prefix: "+1", want: "+256703268522"},
		{name: "punctuation stripped", raw: "(0703) 111 222", prefix: "+256", want: "+256703111222"},
		{name: "prefix without plus", raw: "703111222", prefix: "256", want: "+256703111222"},
		{name: "only zeros", raw: "000", prefix: "+256", want: ""},
		{name: "bare plus", raw: "+", prefix: "+256", want: ""},
		{name: "empty", raw: "", prefix: "+256", want: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizePhone(tc.raw, tc.prefix); got != tc.want {
				t.Fatalf("NormalizePhone(%q, %q)=%q, expected %q", tc.raw, tc.prefix, got, tc.want)
			}
		})
	}
}
