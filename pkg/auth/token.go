package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/cartsplit-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/cartsplit-backend/pkg/errors"
)

const (
	// clockSkew tolerated on exp / iat between the identity service and us.
	clockSkew = 30 * time.Second

	ReasonTokenExpired = "token_expired"
	ReasonTokenInvalid = "token_invalid"
)

var signingMethod = jwt.SigningMethodHS256

// MintAccessToken signs payload with the configured TTL. Production tokens
// come from the identity service; tests and local tooling mint their own.
func MintAccessToken(cfg config.JWTConfig, now time.Time, payload AccessTokenPayload) (string, error) {
	if err := checkConfig(cfg); err != nil {
		return "", err
	}
	if cfg.ExpirationMinutes <= 0 {
		return "", errors.New("jwt expiration minutes must be positive")
	}
	claims := AccessTokenClaims{
		UserID: payload.UserID,
		Role:   payload.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    cfg.Issuer,
			Subject:   payload.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(cfg.ExpirationMinutes) * time.Minute)),
			ID:        strings.TrimSpace(payload.JTI),
		},
	}
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
	if err := claims.Validate(); err != nil {
		return "", err
	}
	signed, err := jwt.NewWithClaims(signingMethod, claims).SignedString([]byte(cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("sign jwt: %w", err)
	}
	return signed, nil
}

// ParseAccessToken verifies signature, issuer and expiry. Failures come back
// as CodeUnauthorized with details["reason"] telling expired from invalid.
func ParseAccessToken(cfg config.JWTConfig, raw string) (*AccessTokenClaims, error) {
	if err := checkConfig(cfg); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "jwt verification not configured")
	}
	if strings.TrimSpace(raw) == "" {
		return nil, unauthorized(ReasonTokenInvalid, errors.New("empty token"))
	}

	claims := &AccessTokenClaims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return []byte(cfg.Secret), nil },
		jwt.WithValidMethods([]string{signingMethod.Alg()}),
		jwt.WithIssuer(cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithLeeway(clockSkew),
	)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, unauthorized(ReasonTokenExpired, err)
	case err != nil:
		return nil, unauthorized(ReasonTokenInvalid, err)
	}
	return claims, nil
}

func checkConfig(cfg config.JWTConfig) error {
	if cfg.Secret == "" {
		return errors.New("jwt secret is required")
	}
	if cfg.Issuer == "" {
		return errors.New("jwt issuer is required")
	}
	return nil
}

func unauthorized(reason string, cause error) error {
	return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, cause, "invalid access token").With("reason", reason)
}
