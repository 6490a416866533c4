package jwt

import (
	"strings"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-at-least-32-chars-long-for-security"

func TestSignAndParse(t *testing.T) {
	m := New(testSecret)
	token, err := m.Sign("user-1", 15*time.Minute)
	require.NoError(t, err)

	claims, err := m.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
}

func TestParseExpired(t *testing.T) {
	m := New(testSecret)
	token, err := m.Sign("user-1", -time.Hour)
	require.NoError(t, err)

	_, err = m.Parse(token)
	assert.ErrorIs(t, err, ErrExpired)
}

func TestParseRejectsTampering(t *testing.T) {
	m := New(testSecret)
	token, err := m.Sign("user-1", time.Hour)
	require.NoError(t, err)

	_, err = New("another-secret-also-long-enough-for-hs256").Parse(token)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrExpired)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	_, err = m.Parse(parts[0] + "." + parts[1] + ".invalidsig")
	assert.Error(t, err)

	_, err = m.Parse("not-a-jwt")
	assert.Error(t, err)
	_, err = m.Parse("")
	assert.Error(t, err)
}

func TestParseRejectsNoneAlgAndMissingUser(t *testing.T) {
	m := New(testSecret)

	none := jwtlib.NewWithClaims(jwtlib.SigningMethodNone, Claims{UserID: "user-1"})
	raw, err := none.SignedString(jwtlib.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = m.Parse(raw)
	assert.Error(t, err)

	anon := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, Claims{})
	raw, err = anon.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = m.Parse(raw)
	assert.Error(t, err)
}
