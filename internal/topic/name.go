package topic

import (
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxProgress is the value at which a job is fully processed.
const MaxProgress = 100

// NormalizeName returns the key form of a job name: surrounding whitespace
// trimmed and NFC-normalized, so that names typed into a form and names
// echoed back by the server compare equal.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// ClampProgress bounds p to [0, MaxProgress].
func ClampProgress(p int) int {
	if p < 0 {
		return 0
	}
	if p > MaxProgress {
		return MaxProgress
	}
	return p
}

// IsAbsoluteURL reports whether raw is a well-formed absolute http(s) URL.
// Only such URLs are rendered as preview or download links.
func IsAbsoluteURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != ""
}
