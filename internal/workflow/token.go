package workflow

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"concierge-automation/internal/common/errors"
	"concierge-automation/internal/common/utils"
)

// TokenIssuer mints and verifies signed approval tokens. Each token
// carries the execution id and a unique token id (jti); single use is
// enforced by the engine, which stores the outstanding jti on the
// execution and clears it on consumption.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates an issuer. A zero ttl mints tokens without an
// expiry, matching the unbounded approval wait.
func NewTokenIssuer(secret string, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{secret: []byte(secret), ttl: ttl}
}

// Issue returns a signed token for the execution and the embedded jti.
func (t *TokenIssuer) Issue(executionID string) (token, tokenID string, err error) {
	tokenID = utils.NewID()
	claims := jwt.MapClaims{
		"execution_id": executionID,
		"jti":          tokenID,
		"iat":          time.Now().Unix(),
	}
	if t.ttl > 0 {
		claims["exp"] = time.Now().Add(t.ttl).Unix()
	}

	token, err = jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", "", errors.InternalError("failed to sign approval token", err)
	}
	return token, tokenID, nil
}

// Verify checks the signature and expiry and returns the embedded
// execution id and jti.
func (t *TokenIssuer) Verify(token string) (executionID, tokenID string, err error) {
	parsed, err := jwt.Parse(token, func(tok *jwt.Token) (interface{}, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return "", "", errors.InvalidTokenError("approval token is invalid or expired")
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return "", "", errors.InvalidTokenError("approval token has malformed claims")
	}
	executionID, _ = claims["execution_id"].(string)
	tokenID, _ = claims["jti"].(string)
	if executionID == "" || tokenID == "" {
		return "", "", errors.InvalidTokenError("approval token is missing required claims")
	}
	return executionID, tokenID, nil
}
