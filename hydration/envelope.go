package hydration

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// EnvelopeConfig configures signed snapshot envelopes.
type EnvelopeConfig struct {
	// Key is the HMAC key shared by the signing and verifying sides.
	Key []byte

	// Issuer is set as the iss claim and, when non-empty, required on
	// verification.
	Issuer string

	// TTL bounds how long a signed snapshot is accepted.
	// Default: 0 (no expiry)
	TTL time.Duration
}

type snapshotClaims struct {
	jwt.RegisteredClaims
	Snapshot Snapshot `json:"snapshot"`
}

// SignSnapshot wraps snap in an HS256 JWT so the receiving process can
// check that the snapshot was produced by a trusted peer before
// hydrating it.
func SignSnapshot(snap Snapshot, cfg EnvelopeConfig) (string, error) {
	if len(cfg.Key) == 0 {
		return "", ErrMissingKey
	}

	now := time.Now()
	claims := snapshotClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   cfg.Issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
		Snapshot: snap,
	}
	if cfg.TTL > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(cfg.TTL))
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(cfg.Key)
	if err != nil {
		return "", fmt.Errorf("hydration: sign snapshot: %w", err)
	}
	return token, nil
}

// VerifySnapshot checks the signature, issuer and expiry of a token made
// by SignSnapshot and returns the snapshot it carries. Every failure wraps
// ErrInvalidEnvelope.
func VerifySnapshot(token string, cfg EnvelopeConfig) (Snapshot, error) {
	if len(cfg.Key) == 0 {
		return nil, ErrMissingKey
	}

	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}

	var claims snapshotClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) {
		return cfg.Key, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEnvelope, err)
	}
	if !parsed.Valid {
		return nil, ErrInvalidEnvelope
	}
	if claims.Snapshot == nil {
		return Snapshot{}, nil
	}
	return claims.Snapshot, nil
}
