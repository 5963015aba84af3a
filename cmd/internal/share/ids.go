package share

import (
	"crypto/rand"
	"encoding/base64"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// newOpaqueToken returns a URL-safe random token (base64url, no padding).
func newOpaqueToken(nBytes int) (string, error) {
	if nBytes <= 0 {
		nBytes = DefaultConfig().TokenBytes
	}
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// newULID returns a 26-char ULID for now.
func newULID(now time.Time) (string, error) {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	id, err := ulid.New(ulid.Timestamp(now), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func trimPtr(v *string) *string {
	if v == nil {
		return nil
	}
	s := strings.TrimSpace(*v)
	if s == "" {
		return nil
	}
	return &s
}

// clip trims v and caps it to maxRunes runes.
func clip(v *string, maxRunes int) *string {
	s := trimPtr(v)
	if s == nil || maxRunes <= 0 {
		return s
	}
	r := []rune(*s)
	if len(r) <= maxRunes {
		return s
	}
	out := string(r[:maxRunes])
	return &out
}
