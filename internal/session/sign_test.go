package session

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignUnsign_RoundTrip(t *testing.T) {
	signed := Sign("session-id-123", "secret-a")
	assert.True(t, strings.HasPrefix(signed, "s:"))

	value, err := Unsign(signed, []string{"secret-a"})
	require.NoError(t, err)
	assert.Equal(t, "session-id-123", value)
}

func TestUnsign_SecretRotation(t *testing.T) {
	// A cookie signed with the old secret still verifies as long as the
	// old secret remains in the list.
	signed := Sign("session-id-123", "secret-old")

	value, err := Unsign(signed, []string{"secret-new", "secret-old"})
	require.NoError(t, err)
	assert.Equal(t, "session-id-123", value)

	_, err = Unsign(signed, []string{"secret-new"})
	require.ErrorIs(t, err, ErrVerificationFailed)
}

func TestUnsign_TamperedValue(t *testing.T) {
	signed := Sign("session-id-123", "secret-a")

	tampered := strings.Replace(signed, "session-id-123", "session-id-456", 1)
	_, err := Unsign(tampered, []string{"secret-a"})
	require.ErrorIs(t, err, ErrVerificationFailed)
}

func TestUnsign_WrongPrefix(t *testing.T) {
	_, err := Unsign("x:value.signature", []string{"secret-a"})
	require.ErrorIs(t, err, ErrWrongPrefix)
}

func TestUnsign_Malformed(t *testing.T) {
	cases := []string{
		"",
		"s:",
		"s:no-separator",
		"s:.signature-only",
		"s:value-only.",
	}
	for _, c := range cases {
		_, err := Unsign(c, []string{"secret-a"})
		assert.Error(t, err, "input %q", c)
		assert.NotErrorIs(t, err, ErrVerificationFailed, "input %q", c)
	}
}

func TestSign_ValueWithDots(t *testing.T) {
	// The signature separator is the last dot, so dotted values survive.
	signed := Sign("a.b.c", "secret-a")

	value, err := Unsign(signed, []string{"secret-a"})
	require.NoError(t, err)
	assert.Equal(t, "a.b.c", value)
}
