package cache

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchPattern(t *testing.T) {
	cases := []struct {
		pattern string
		key     string
		want    bool
	}{
		{"*", "anything", true},
		{"t1:a", "t1:a", true},
		{"t1:a", "t1:b", false},
		{"t1:a", "t1:ab", false},
		{"t1:*", "t1:a", true},
		{"t1:*", "t1:", true},
		{"t1:*", "t2:a", false},
		{"*:answer", "t1:answer", true},
		{"*:answer", "t1:question", false},
		{"t1:*:v2", "t1:query:v2", true},
		{"t1:*:v2", "t1:query:v3", false},
		{"a*b*c", "aXbYc", true},
		{"a*b*c", "abc", true},
		{"a*b*c", "acb", false},
		// Regexp metacharacters in keys are literal.
		{"t1.x:*", "t1.x:a", true},
		{"t1.x:*", "t1Qx:a", false},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, matchPattern(tc.pattern, tc.key),
			"pattern %q key %q", tc.pattern, tc.key)
	}
}

func TestPatternToLike(t *testing.T) {
	assert.Equal(t, "t1:%", patternToLike("t1:*"))
	assert.Equal(t, "%", patternToLike("*"))
	assert.Equal(t, "t1:a", patternToLike("t1:a"))
	assert.Equal(t, `t1\_x:%`, patternToLike("t1_x:*"))
	assert.Equal(t, `50\%:%`, patternToLike("50%:*"))
	assert.Equal(t, `a\\b`, patternToLike(`a\b`))
}
