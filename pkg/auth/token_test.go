package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	"github.com/angelmondragon/cartsplit-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{Secret: "secret", Issuer: "cartsplit", ExpirationMinutes: 30}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: userID, Role: enums.RoleCourier, JTI: " jti-1 "})
	require.NoError(t, err)

	claims, err := ParseAccessToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, userID, claims.UserID)
	assert.Equal(t, enums.RoleCourier, claims.Role)
	assert.Equal(t, cfg.Issuer, claims.Issuer)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, "jti-1", claims.ID)
	assert.True(t, claims.ExpiresAt.After(now))
}

func TestParseAccessTokenReasons(t *testing.T) {
	cfg := testJWTConfig()
	valid, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleSeller})
	require.NoError(t, err)
	expired, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleBuyer})
	require.NoError(t, err)

	wrongSecret := cfg
	wrongSecret.Secret = "other"
	wrongIssuer := cfg
	wrongIssuer.Issuer = "someone-else"

	tests := []struct {
		name   string
		cfg    config.JWTConfig
		token  string
		reason string
	}{
		{"expired", cfg, expired, ReasonTokenExpired},
		{"wrong secret", wrongSecret, valid, ReasonTokenInvalid},
		{"wrong issuer", wrongIssuer, valid, ReasonTokenInvalid},
		{"garbage", cfg, "not.a.jwt", ReasonTokenInvalid},
		{"empty", cfg, "  ", ReasonTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseAccessToken(tt.cfg, tt.token)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))
			assert.Equal(t, tt.reason, pkgerrors.ReasonOf(err))
		})
	}
}

func TestParseAccessTokenToleratesClockSkew(t *testing.T) {
	cfg := testJWTConfig()
	cfg.ExpirationMinutes = 1
	token, err := MintAccessToken(cfg, time.Now().Add(-time.Minute-10*time.Second), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleBuyer})
	require.NoError(t, err)
	_, err = ParseAccessToken(cfg, token)
	assert.NoError(t, err)
}

func TestParseAccessTokenRejectsForeignClaims(t *testing.T) {
	cfg := testJWTConfig()
	sign := func(c AccessTokenClaims, method jwt.SigningMethod) string {
		c.Issuer = cfg.Issuer
		c.ExpiresAt = jwt.NewNumericDate(time.Now().Add(time.Hour))
		token, err := jwt.NewWithClaims(method, c).SignedString([]byte(cfg.Secret))
		require.NoError(t, err)
		return token
	}

	unknownRole := sign(AccessTokenClaims{UserID: uuid.New(), Role: enums.Role("owner")}, jwt.SigningMethodHS256)
	noUser := sign(AccessTokenClaims{Role: enums.RoleBuyer}, jwt.SigningMethodHS256)
	otherAlg := sign(AccessTokenClaims{UserID: uuid.New(), Role: enums.RoleBuyer}, jwt.SigningMethodHS512)

	for _, token := range []string{unknownRole, noUser, otherAlg} {
		_, err := ParseAccessToken(cfg, token)
		assert.Equal(t, ReasonTokenInvalid, pkgerrors.ReasonOf(err))
	}
}

func TestMintAccessTokenValidation(t *testing.T) {
	cfg := testJWTConfig()
	_, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.RoleBuyer})
	assert.ErrorContains(t, err, "user_id")

	_, err = MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: "nobody"})
	assert.ErrorContains(t, err, "role")

	noTTL := cfg
	noTTL.ExpirationMinutes = 0
	_, err = MintAccessToken(noTTL, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleBuyer})
	assert.ErrorContains(t, err, "expiration")

	_, err = ParseAccessToken(config.JWTConfig{Issuer: "x"}, "t")
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInternal))
}
