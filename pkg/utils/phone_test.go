package utils

import "testing"

func TestSanitizePhone(t *testing.T) {
	cases := map[string]string{
		"+62 812-3456":   "628123456",
		"628123":         "628123",
		" 00628123 ":     "628123",
		"(555) 010-9999": "5550109999",
		"":               "",
	}
	for in, want := range cases {
		got := in
		SanitizePhone(&got)
		if got != want {
			t.Errorf("SanitizePhone(%q) = %q, want %q", in, got, want)
		}
	}

	SanitizePhone(nil)
}
