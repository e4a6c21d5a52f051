// Package instrument turns a raw payment instrument into the keyed
// fingerprint and display mask that are stored in place of the card number.
package instrument

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// ErrInvalidInstrument is returned for input that is not a 12-19 digit card number.
var ErrInvalidInstrument = errors.New("invalid payment instrument")

// Instrument is the stored representation of a payment instrument.
type Instrument struct {
	Key  string
	Mask string
}

// Fingerprinter derives stable instrument keys with a secret BLAKE2b key.
type Fingerprinter struct {
	key []byte
}

// NewFingerprinter builds a fingerprinter. The secret must be 1-64 bytes.
func NewFingerprinter(secret string) (*Fingerprinter, error) {
	if len(secret) == 0 || len(secret) > blake2b.Size {
		return nil, fmt.Errorf("instrument secret must be between 1 and %d bytes", blake2b.Size)
	}
	return &Fingerprinter{key: []byte(secret)}, nil
}

// Identify validates raw and returns its fingerprint and mask.
func (f *Fingerprinter) Identify(raw string) (Instrument, error) {
	digits, err := Normalize(raw)
	if err != nil {
		return Instrument{}, err
	}
	h, err := blake2b.New256(f.key)
	if err != nil {
		return Instrument{}, err
	}
	h.Write([]byte(digits))
	return Instrument{Key: hex.EncodeToString(h.Sum(nil)), Mask: Mask(digits)}, nil
}

// Normalize strips spaces and dashes and checks the digit count.
func Normalize(raw string) (string, error) {
	digits := strings.NewReplacer(" ", "", "-", "").Replace(strings.TrimSpace(raw))
	if len(digits) < 12 || len(digits) > 19 {
		return "", fmt.Errorf("%w: must be between 12 and 19 digits", ErrInvalidInstrument)
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("%w: must be numeric", ErrInvalidInstrument)
		}
	}
	return digits, nil
}

// Mask keeps the last four digits.
func Mask(digits string) string {
	if len(digits) <= 4 {
		return "****"
	}
	return "**** " + digits[len(digits)-4:]
}
