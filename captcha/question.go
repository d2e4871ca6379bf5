// Package captcha fetches chiral carbon questions from the remote captcha
// service and normalises the handful of response shapes it is known to emit.
package captcha

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrProviderUnavailable is returned when the captcha service cannot be
	// reached, times out, or answers with a non-2xx status.
	ErrProviderUnavailable = errors.New("captcha provider unavailable")
	// ErrProviderMalformed is returned when a response cannot yield a
	// usable question (no image payload, no answer signal).
	ErrProviderMalformed = errors.New("captcha provider response malformed")
)

// Question is one puzzle as issued by the provider. It is immutable once
// fetched and owned by exactly one verification session.
type Question struct {
	ID string
	// Encoded is the image exactly as the provider sent it: bare base64 or a
	// data URI. Chat transports forward it without re-encoding.
	Encoded string
	// Image is the decoded binary payload.
	Image []byte
	// CorrectCount is the number of chiral carbons in the molecule.
	CorrectCount int
	// Label is an optional display name for the molecule.
	Label string
}

// StripDataURI removes a leading "data:<mime>;base64," prefix if present.
func StripDataURI(encoded string) string {
	encoded = strings.TrimSpace(encoded)
	if strings.HasPrefix(encoded, "data:") {
		if i := strings.IndexByte(encoded, ','); i >= 0 {
			return encoded[i+1:]
		}
	}
	return encoded
}

// DecodeImage decodes a base64 image payload, accepting data URIs as well as
// padded and unpadded standard encodings.
func DecodeImage(encoded string) ([]byte, error) {
	raw := StripDataURI(encoded)
	if raw == "" {
		return nil, errors.New("empty image payload")
	}
	if b, err := base64.StdEncoding.DecodeString(raw); err == nil {
		return b, nil
	}
	b, err := base64.RawStdEncoding.DecodeString(strings.TrimRight(raw, "="))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return b, nil
}
