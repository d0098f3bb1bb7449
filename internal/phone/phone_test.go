package phone

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain ten digits", in: "7035551234", want: "+17035551234"},
		{name: "formatted", in: "(703) 555-1234", want: "+17035551234"},
		{name: "already e164", in: "+17035551234", want: "+17035551234"},
		{name: "plus passes through untouched", in: "+44 20 7946", want: "+44 20 7946"},
		{name: "empty", in: "", want: "+1"},
		{name: "letters only", in: "abc", want: "+1"},
		{name: "leading country digit kept", in: "1-703-555-1234", want: "+117035551234"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Normalize(tt.in))
		})
	}
}

func TestNormalize_ResultShape(t *testing.T) {
	inputs := []string{"", "1", "a1b2c3", "  555 ", "☎ 703.555.0000", "0000000000000000"}
	for _, in := range inputs {
		got := Normalize(in)
		assert.True(t, strings.HasPrefix(got, "+1"), "input %q", in)
		rest := got[2:]
		if rest != "" {
			assert.True(t, isDigits(rest), "input %q produced %q", in, got)
		}
	}
}

func TestLocal(t *testing.T) {
	assert.Equal(t, "7035551234", Local("+17035551234"))
	assert.Equal(t, "", Local("+1"))
	assert.Equal(t, "442079460000", Local("+442079460000"))
	assert.Equal(t, "7035551234", Local(Normalize("703-555-1234")))
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
