// Package uid generates globally-unique, domain-qualified identifiers for
// calendar events. A UID is the sole key correlating a REQUEST with its
// later CANCEL, so values must never collide within or across processes.
package uid

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Pattern is the shape every generated UID conforms to: a hyphenated
// alphanumeric token, exactly one "@", then a domain.
var Pattern = regexp.MustCompile(`^[A-Za-z0-9-]+@[A-Za-z0-9.-]+$`)

// Generate returns a new UID of the form <token>@<domain>. The token
// combines a UTC timestamp with a random UUID, giving far more than the
// 36 bits of entropy needed to make in-process collisions negligible.
func Generate(domain string) (string, error) {
	domain = strings.TrimSpace(domain)
	if domain == "" {
		return "", errors.New("uid: domain is empty")
	}
	if strings.ContainsRune(domain, '@') {
		return "", errors.New("uid: domain must not contain @")
	}

	token := time.Now().UTC().Format("20060102T150405") + "-" + uuid.NewString()
	out := token + "@" + domain

	if !Pattern.MatchString(out) {
		return "", errors.New("uid: domain contains characters outside [A-Za-z0-9.-]")
	}
	return out, nil
}

// Valid reports whether s is a well-formed UID: non-empty token and
// domain joined by exactly one "@".
func Valid(s string) bool {
	return Pattern.MatchString(s)
}
