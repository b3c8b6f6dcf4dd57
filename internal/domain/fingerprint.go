package domain

import (
	"encoding/hex"
	"strings"
)

// Fingerprint is the lowercase hex encoding of a torrent's 160-bit info hash.
// It is the only key the cache admits torrents under.
type Fingerprint string

const fingerprintHexLen = 40

func ParseFingerprint(raw string) (Fingerprint, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if len(value) != fingerprintHexLen {
		return "", ErrInvalidFingerprint
	}
	if _, err := hex.DecodeString(value); err != nil {
		return "", ErrInvalidFingerprint
	}
	return Fingerprint(value), nil
}

func (f Fingerprint) String() string {
	return string(f)
}

// Short returns the first 8 characters, for log lines.
func (f Fingerprint) Short() string {
	if len(f) <= 8 {
		return string(f)
	}
	return string(f[:8])
}
