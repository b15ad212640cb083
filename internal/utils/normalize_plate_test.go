package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizePlate(t *testing.T) {
	testCases := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty", in: "", want: ""},
		{name: "lowercase", in: "abc1234", want: "ABC1234"},
		{name: "separators", in: " abc-12 34 ", want: "ABC1234"},
		{name: "punctuation", in: "A.12:BCD|", want: "A12BCD"},
		{name: "non ascii", in: "Ñá·ABC 123·D", want: "ABC123D"},
		{name: "only noise", in: "--- ***", want: ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SanitizePlate(tc.in))
		})
	}
}

func TestSanitizePlateIdempotent(t *testing.T) {
	for _, in := range []string{"", "abc", "a-b c.1 2 3", "ÄÖÜ xyz 987", "MNR-952-A", "\t\n"} {
		once := SanitizePlate(in)
		assert.Equal(t, once, SanitizePlate(once), "input %q", in)
	}
}

func TestNormalizePlate(t *testing.T) {
	assert.Equal(t, "ABC1234", NormalizePlate(" abc-12 34 "))
	assert.Equal(t, SanitizePlate("ABC-12-34"), NormalizePlate("ABC-12-34"))
}
