package auth

import (
	"testing"
	"time"

	"github.com/angelmondragon/labstock-backend/pkg/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "labstock", ExpirationMinutes: 30}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testConfig()
	now := time.Now().UTC()
	adminID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{AdminID: adminID, Username: "admin", JTI: "session-1"})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, adminID, claims.AdminID)
	assert.Equal(t, "admin", claims.Username)
	assert.Equal(t, "session-1", claims.ID)
	assert.Equal(t, adminID.String(), claims.Subject)
	assert.Equal(t, cfg.Issuer, claims.Issuer)
	assert.WithinDuration(t, now.Add(30*time.Minute), claims.ExpiresAt.Time, time.Second)
}

func TestMintGeneratesSessionID(t *testing.T) {
	token, err := MintAccessToken(testConfig(), time.Now(), AccessTokenPayload{AdminID: uuid.New()})
	require.NoError(t, err)
	claims, err := ParseAccessToken(testConfig(), token)
	require.NoError(t, err)
	_, err = uuid.Parse(claims.ID)
	assert.NoError(t, err)
}

func TestMintRejectsBadInput(t *testing.T) {
	_, err := MintAccessToken(config.JWTConfig{Issuer: "labstock", ExpirationMinutes: 1}, time.Now(), AccessTokenPayload{AdminID: uuid.New()})
	assert.Error(t, err)

	_, err = MintAccessToken(testConfig(), time.Now(), AccessTokenPayload{})
	assert.Error(t, err)
}

func TestParseRejectsForeignTokens(t *testing.T) {
	cfg := testConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{AdminID: uuid.New()})
	require.NoError(t, err)

	other := cfg
	other.Secret = "different"
	_, err = ParseAccessToken(other, token)
	assert.Error(t, err)

	other = cfg
	other.Issuer = "someone-else"
	_, err = ParseAccessToken(other, token)
	assert.Error(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{AdminID: uuid.New()})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, unsigned)
	assert.Error(t, err)
}

func TestExpiredTokens(t *testing.T) {
	cfg := testConfig()
	past := time.Now().Add(-2 * time.Hour)
	token, err := MintAccessToken(cfg, past, AccessTokenPayload{AdminID: uuid.New(), JTI: "old"})
	require.NoError(t, err)

	_, err = ParseAccessToken(cfg, token)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)

	claims, err := ParseAccessTokenAllowExpired(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "old", claims.ID)
}
