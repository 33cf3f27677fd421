package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignAndParse(t *testing.T) {
	tok, err := SignJWT(42, 7, "s3cret", time.Hour)
	require.NoError(t, err)

	claims, err := ParseJWT(tok, "s3cret")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), claims.UserID)
	assert.Equal(t, uint64(7), claims.CourseID)
	assert.Equal(t, "42", claims.Subject)
}

func TestParse_Rejects(t *testing.T) {
	tok, err := SignJWT(42, 0, "s3cret", time.Hour)
	require.NoError(t, err)

	_, err = ParseJWT(tok, "other")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := SignJWT(42, 0, "s3cret", -time.Minute)
	require.NoError(t, err)
	_, err = ParseJWT(expired, "s3cret")
	assert.ErrorIs(t, err, ErrInvalidToken)

	anon, err := SignJWT(0, 0, "s3cret", time.Hour)
	require.NoError(t, err)
	_, err = ParseJWT(anon, "s3cret")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
