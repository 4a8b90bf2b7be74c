// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package credentials

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func codes(errs []ValidationError) []string {
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Code
	}
	return out
}

func TestPasswordValidator_Validate(t *testing.T) {
	v := DefaultPasswordValidator(8)

	tests := []struct {
		name     string
		password string
		attrs    []string
		want     []string
	}{
		{"valid", "Tr0ub4dor&3", nil, []string{}},
		{"too short", "Ab1!", nil, []string{"min_length"}},
		{"too long", strings.Repeat("a", 73) + "B!", nil, []string{"max_length"}},
		{"entirely numeric", "8675309123", nil, []string{"entirely_numeric"}},
		{"common", "Password123", nil, []string{"common_password"}},
		{"contains username", "alice-rocks", []string{"alice", "alice@x.com"}, []string{"too_similar"}},
		{"contains email local part", "xbobbyx99", []string{"someone", "bobby@x.com"}, []string{"too_similar"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ElementsMatch(t, tt.want, codes(v.Validate(tt.password, tt.attrs...)))
		})
	}
}

func TestPasswordValidator_OptionalRules(t *testing.T) {
	v := &PasswordValidator{MinLength: 1, RequireUppercase: true, RequireDigit: true}

	assert.ElementsMatch(t, []string{"no_uppercase", "no_digit"}, codes(v.Validate("lowercase")))
	assert.Empty(t, v.Validate("Upper1"))
}

func TestCommonPasswordsLoaded(t *testing.T) {
	assert.NotEmpty(t, commonPasswords)
	assert.True(t, isCommonPassword("QWERTY"))
	assert.False(t, isCommonPassword("# frequently leaked passwords, compared case-insensitively."))
}

func TestSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, similarity("abc", "abc"), 0.001)
	assert.InDelta(t, 0.0, similarity("", "abc"), 0.001)
	assert.Equal(t, 3, longestCommonSubsequence("abcdef", "axbycz"))
}
