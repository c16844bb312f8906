package secret

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_JSONToken(t *testing.T) {
	cred, err := Parse(`{"token": "test-token-123"}`)
	require.NoError(t, err)

	assert.Equal(t, Bearer, cred.Kind)
	assert.Equal(t, "test-token-123", cred.Token)
}

func TestParse_JSONUsernamePassword(t *testing.T) {
	cred, err := Parse(`{"username": "user123", "password": "pass456"}`)
	require.NoError(t, err)

	assert.Equal(t, Basic, cred.Kind)
	assert.Equal(t, "user123", cred.Username)
	assert.Equal(t, "pass456", cred.Password)
}

func TestParse_JSONFieldsAreTrimmed(t *testing.T) {
	cred, err := Parse(`{"token": "  token-with-spaces  "}`)
	require.NoError(t, err)

	assert.Equal(t, "token-with-spaces", cred.Token)
}

func TestParse_PlainToken(t *testing.T) {
	cred, err := Parse("plain-token-value")
	require.NoError(t, err)

	assert.Equal(t, Bearer, cred.Kind)
	assert.Equal(t, "plain-token-value", cred.Token)
}

func TestParse_PlainUsernamePassword(t *testing.T) {
	cred, err := Parse("user:pass")
	require.NoError(t, err)

	assert.Equal(t, Basic, cred.Kind)
	assert.Equal(t, "user", cred.Username)
	assert.Equal(t, "pass", cred.Password)
}

func TestParse_MultipleSeparatorsIsBearer(t *testing.T) {
	// more than one ":" is ambiguous as a user:pass split, so the whole
	// string is treated as a token
	cred, err := Parse("a:b:c")
	require.NoError(t, err)

	assert.Equal(t, Bearer, cred.Kind)
	assert.Equal(t, "a:b:c", cred.Token)
}

func TestParse_InvalidJSONFallsBackToPlain(t *testing.T) {
	cred, err := Parse("not-json-token")
	require.NoError(t, err)

	assert.Equal(t, Bearer, cred.Kind)
	assert.Equal(t, "not-json-token", cred.Token)
}

func TestParse_MalformedJSONObjectIsUnsupported(t *testing.T) {
	// A "{"-prefixed value that fails to decode must not be mistaken for a
	// plain text user:pass pair.
	for _, raw := range []string{`{"token": 123}`, `{"username": "u", "password":}`} {
		_, err := Parse(raw)
		assert.ErrorIs(t, err, ErrUnsupportedShape, "input %q", raw)
	}
}

func TestParse_EmptySecret(t *testing.T) {
	_, err := Parse("")
	assert.ErrorIs(t, err, ErrEmptySecret)

	_, err = Parse("   ")
	assert.ErrorIs(t, err, ErrEmptySecret)
}

func TestParse_UnsupportedShape(t *testing.T) {
	_, err := Parse(`{"invalid": "field"}`)
	assert.ErrorIs(t, err, ErrUnsupportedShape)
}

func TestParse_PartialBasicPairIsUnsupported(t *testing.T) {
	_, err := Parse(`{"username": "only-user"}`)
	assert.ErrorIs(t, err, ErrUnsupportedShape)
}

func TestCredentialString_MasksSecrets(t *testing.T) {
	bearer := Credential{Kind: Bearer, Token: "abcdefghijklmnop"}
	assert.Equal(t, "bearer abcd...mnop", bearer.String())

	basic := Credential{Kind: Basic, Username: "user", Password: "hunter2"}
	assert.NotContains(t, basic.String(), "hunter2")
}

func TestMask(t *testing.T) {
	assert.Equal(t, "abcd...mnop", Mask("abcdefghijklmnop"))
	assert.Equal(t, "ab...op", Mask("abcdefghijklmnop", 2))
	assert.Equal(t, "***", Mask("abc"))
	assert.Equal(t, "***", Mask(""))
}

func TestValidateTTL(t *testing.T) {
	assert.Equal(t, 300, ValidateTTL(300, DefaultTTLSeconds))
	assert.Equal(t, 600, ValidateTTL(600, DefaultTTLSeconds))
	assert.Equal(t, 300, ValidateTTL(0, DefaultTTLSeconds))
	assert.Equal(t, 300, ValidateTTL(-10, DefaultTTLSeconds))
	assert.Equal(t, 600, ValidateTTL(0, 600))
	assert.Equal(t, 3600, ValidateTTL(5000, DefaultTTLSeconds, 1, 3600))
	assert.Equal(t, 5, ValidateTTL(1, DefaultTTLSeconds, 5))
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45))
	assert.Equal(t, "1s", FormatDuration(1))
	assert.Equal(t, "1m", FormatDuration(60))
	assert.Equal(t, "2m 5s", FormatDuration(125))
	assert.Equal(t, "2m", FormatDuration(120))
	assert.Equal(t, "1h", FormatDuration(3600))
	assert.Equal(t, "1h 1m", FormatDuration(3660))
	assert.Equal(t, "2h", FormatDuration(7200))
}
