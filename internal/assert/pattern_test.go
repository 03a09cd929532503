package assert

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePatternRaw(t *testing.T) {
	re, err := ParsePattern(`^item-\d+$`)
	require.NoError(t, err)
	assert.True(t, re.MatchString("item-42"))
	assert.False(t, re.MatchString("item-"))
}

func TestParsePatternSlashForm(t *testing.T) {
	re, err := ParsePattern(`/welcome back/i`)
	require.NoError(t, err)
	assert.True(t, re.MatchString("WELCOME BACK"))
	assert.True(t, re.MatchString("Welcome Back, Pat"))
	assert.False(t, re.MatchString("goodbye"))
}

func TestParsePatternSlashFormMultiline(t *testing.T) {
	re, err := ParsePattern(`/^total:/im`)
	require.NoError(t, err)
	assert.True(t, re.MatchString("subtotal: 5\nTotal: 10"))
}

func TestParsePatternUnknownFlagsTreatedAsRaw(t *testing.T) {
	// "/x/q" is not flag syntax; the whole string compiles as a literal.
	re, err := ParsePattern(`/x/q`)
	require.NoError(t, err)
	assert.True(t, re.MatchString("a/x/qb"))
}

func TestParsePatternErrors(t *testing.T) {
	_, err := ParsePattern("")
	assert.Error(t, err)

	_, err = ParsePattern(`[unclosed`)
	assert.Error(t, err)

	_, err = ParsePattern(`/[unclosed/i`)
	assert.Error(t, err)
}
