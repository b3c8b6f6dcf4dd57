package resolver

import (
	"encoding/base32"
	"encoding/hex"
	"fmt"
	"regexp"
	"strings"

	"torrentcache/internal/domain"
)

var btihPattern = regexp.MustCompile(`(?i)xt=urn:btih:([a-z0-9]+)`)

func isMagnet(value string) bool {
	return strings.HasPrefix(strings.ToLower(value), "magnet:")
}

// ParseMagnet extracts the fingerprint from a magnet URI. Both the 40
// character hex and the 32 character base32 info hash forms are accepted.
func ParseMagnet(uri string) (domain.Source, domain.Fingerprint, error) {
	uri = strings.TrimSpace(uri)
	if uri == "" {
		return domain.Source{}, "", fmt.Errorf("%w: redirect without location", ErrMalformedSource)
	}
	if !isMagnet(uri) {
		return domain.Source{}, "", fmt.Errorf("%w: redirect target is not a magnet uri", ErrMalformedSource)
	}
	match := btihPattern.FindStringSubmatch(uri)
	if match == nil {
		return domain.Source{}, "", fmt.Errorf("%w: magnet uri has no btih parameter", ErrMalformedSource)
	}
	fp, err := normalizeInfoHash(match[1])
	if err != nil {
		return domain.Source{}, "", fmt.Errorf("%w: %v", ErrMalformedSource, err)
	}
	return domain.MagnetSource(uri), fp, nil
}

func normalizeInfoHash(raw string) (domain.Fingerprint, error) {
	switch len(raw) {
	case 40:
		return domain.ParseFingerprint(raw)
	case 32:
		decoded, err := base32.StdEncoding.DecodeString(strings.ToUpper(raw))
		if err != nil || len(decoded) != 20 {
			return "", domain.ErrInvalidFingerprint
		}
		return domain.Fingerprint(hex.EncodeToString(decoded)), nil
	default:
		return "", domain.ErrInvalidFingerprint
	}
}
