package tokengenerator

import (
	"testing"
	"time"

	"github.com/go-chi/jwtauth/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateAndParse(t *testing.T) {
	gen := NewJwtTokenGenerator("secret", "devicegate", "public")
	accountID := uuid.New()

	tokenStr, expires, err := gen.GenerateToken(accountID, time.Hour, "sam@example.com", []string{"member"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expires, time.Minute)

	_, claims, err := gen.ParseToken(tokenStr)
	require.NoError(t, err)
	assert.Equal(t, accountID.String(), claims.Subject)
	assert.Equal(t, "sam@example.com", claims.Email)
	assert.Equal(t, []string{"member"}, claims.Roles)

	_, _, err = NewJwtTokenGenerator("other", "devicegate", "public").ParseToken(tokenStr)
	assert.Error(t, err)
}

func TestGenerateToken_Expired(t *testing.T) {
	gen := NewJwtTokenGenerator("secret", "devicegate", "public")
	tokenStr, _, err := gen.GenerateToken(uuid.New(), time.Minute, "", nil)
	require.NoError(t, err)

	gen.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, _, err = gen.ParseToken(tokenStr)
	assert.Error(t, err)

	_, _, err = gen.GenerateToken(uuid.Nil, time.Minute, "", nil)
	assert.Error(t, err)
}

func TestToken_AcceptedByJWTAuth(t *testing.T) {
	gen := NewJwtTokenGenerator("secret", "devicegate", "public")
	accountID := uuid.New()
	tokenStr, _, err := gen.GenerateToken(accountID, time.Hour, "", nil)
	require.NoError(t, err)

	ja := jwtauth.New("HS256", []byte("secret"), nil)
	token, err := jwtauth.VerifyToken(ja, tokenStr)
	require.NoError(t, err)
	assert.Equal(t, accountID.String(), token.Subject())
}
