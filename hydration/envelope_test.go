package hydration

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

func TestSignSnapshot_RoundTrip(t *testing.T) {
	cfg := EnvelopeConfig{Key: testKey, Issuer: "server", TTL: time.Minute}

	token, err := SignSnapshot(sampleSnapshot(), cfg)
	if err != nil {
		t.Fatalf("SignSnapshot() error = %v", err)
	}
	snap, err := VerifySnapshot(token, cfg)
	if err != nil {
		t.Fatalf("VerifySnapshot() error = %v", err)
	}
	if len(snap) != 3 {
		t.Errorf("VerifySnapshot() = %d entries, want 3", len(snap))
	}
	if snap[`["string"]`].InitialData != "string" {
		t.Errorf("InitialData = %v, want string", snap[`["string"]`].InitialData)
	}
}

func TestVerifySnapshot_Rejects(t *testing.T) {
	good := EnvelopeConfig{Key: testKey, Issuer: "server"}
	token, err := SignSnapshot(sampleSnapshot(), good)
	if err != nil {
		t.Fatalf("SignSnapshot() error = %v", err)
	}

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, snapshotClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "server",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}).SignedString(testKey)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	otherAlg, err := jwt.NewWithClaims(jwt.SigningMethodHS512, snapshotClaims{
		RegisteredClaims: jwt.RegisteredClaims{Issuer: "server"},
	}).SignedString(testKey)
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	tests := []struct {
		name  string
		token string
		cfg   EnvelopeConfig
	}{
		{"wrong key", token, EnvelopeConfig{Key: []byte("another-key-another-key-another!"), Issuer: "server"}},
		{"wrong issuer", token, EnvelopeConfig{Key: testKey, Issuer: "elsewhere"}},
		{"expired", expired, good},
		{"other algorithm", otherAlg, good},
		{"malformed", "not.a.token", good},
		{"tampered", token + "x", good},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := VerifySnapshot(tc.token, tc.cfg)
			if !errors.Is(err, ErrInvalidEnvelope) {
				t.Errorf("VerifySnapshot() error = %v, want %v", err, ErrInvalidEnvelope)
			}
		})
	}
}

func TestEnvelope_MissingKey(t *testing.T) {
	if _, err := SignSnapshot(Snapshot{}, EnvelopeConfig{}); !errors.Is(err, ErrMissingKey) {
		t.Errorf("SignSnapshot() error = %v, want %v", err, ErrMissingKey)
	}
	if _, err := VerifySnapshot("x", EnvelopeConfig{}); !errors.Is(err, ErrMissingKey) {
		t.Errorf("VerifySnapshot() error = %v, want %v", err, ErrMissingKey)
	}
}

func TestEnvelope_EmptySnapshot(t *testing.T) {
	cfg := EnvelopeConfig{Key: testKey}
	token, err := SignSnapshot(nil, cfg)
	if err != nil {
		t.Fatalf("SignSnapshot() error = %v", err)
	}
	snap, err := VerifySnapshot(token, cfg)
	if err != nil {
		t.Fatalf("VerifySnapshot() error = %v", err)
	}
	if snap == nil || len(snap) != 0 {
		t.Errorf("VerifySnapshot() = %v, want empty snapshot", snap)
	}
}
