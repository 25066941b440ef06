package gate_test

import (
	"strings"
	"testing"

	"github.com/goliatone/go-gate"
	"github.com/stretchr/testify/assert"
)

func TestSecureCompare(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want bool
	}{
		{"equal values", "correct-horse-battery", "correct-horse-battery", true},
		{"empty values", "", "", true},
		{"differ in last char", "secret-a", "secret-b", false},
		{"differ in first char", "aecret-x", "becret-x", false},
		{"different lengths", "short", "short-but-longer", false},
		{"prefix of the other", strings.Repeat("a", 64), strings.Repeat("a", 65), false},
		{"empty vs non-empty", "", "x", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, gate.SecureCompare(tt.a, tt.b))
			assert.Equal(t, tt.want, gate.SecureCompare(tt.b, tt.a))
		})
	}
}
