package stepup

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultStateTTL = 10 * time.Minute

// ErrInvalidState is returned for a tampered, foreign or expired state value.
var ErrInvalidState = errors.New("invalid or expired step-up state")

type stateClaims struct {
	DeviceID string `json:"did"`
	jwt.RegisteredClaims
}

// StateSigner binds the authorization round trip to the device that started it.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateSigner builds a signer using an HMAC secret.
func NewStateSigner(secret string, ttl time.Duration) (*StateSigner, error) {
	if len(secret) < 16 {
		return nil, errors.New("step-up state secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &StateSigner{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// Sign returns a state token for deviceID.
func (s *StateSigner) Sign(deviceID string) (string, error) {
	now := s.now()
	claims := stateClaims{
		DeviceID: deviceID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "stepup",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign state: %w", err)
	}
	return token, nil
}

// Verify returns the device identity carried by state.
func (s *StateSigner) Verify(state string) (string, error) {
	var claims stateClaims
	_, err := jwt.ParseWithClaims(state, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidState, err)
	}
	if claims.DeviceID == "" || claims.Subject != "stepup" || claims.ExpiresAt == nil {
		return "", ErrInvalidState
	}
	return claims.DeviceID, nil
}
